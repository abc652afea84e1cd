package reactor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevToolsSnapshot(t *testing.T) {
	var events []string
	r, err := New(appState{},
		WithName[appState]("checkout"),
		WithHistory[appState](),
		WithMiddleware(Middleware[appState]{Name: "audit"}),
		WithPlugins[appState](&recordPlugin{name: "tracker", events: &events}))
	require.NoError(t, err)

	require.NoError(t, r.Update(func(s *appState) error { s.Value = 3; return nil }, "set3"))
	require.True(t, r.Undo())

	snap := r.DevTools()
	assert.Equal(t, r.ID(), snap.ID)
	assert.Equal(t, "checkout", snap.Name)
	assert.Equal(t, []string{"audit"}, snap.Middlewares)
	assert.Equal(t, []string{"tracker"}, snap.Plugins)

	// The exported state is the current (post-undo) snapshot
	state, ok := snap.State.(appState)
	require.True(t, ok)
	assert.Equal(t, 0, state.Value)

	require.NotNil(t, snap.History)
	assert.False(t, snap.History.CanUndo)
	assert.True(t, snap.History.CanRedo)
	assert.Equal(t, 1, snap.History.FutureLen)
	assert.Empty(t, snap.History.Past)
}

func TestDevToolsHistoryEntries(t *testing.T) {
	r, err := New(appState{}, WithHistory[appState]())
	require.NoError(t, err)

	require.NoError(t, r.Update(func(s *appState) error { s.Value = 1; return nil }, "one"))
	require.NoError(t, r.Update(func(s *appState) error { s.Value = 2; return nil }, "two"))

	snap := r.DevTools()
	require.NotNil(t, snap.History)
	require.Len(t, snap.History.Past, 2)
	assert.Equal(t, "one", snap.History.Past[0].Action)
	assert.Equal(t, "two", snap.History.Past[1].Action)
	assert.False(t, snap.History.Past[0].Timestamp.IsZero())
}

func TestDevToolsWithoutHistory(t *testing.T) {
	r, err := New(appState{})
	require.NoError(t, err)

	snap := r.DevTools()
	assert.Nil(t, snap.History)
}

func TestDevToolsStateSchema(t *testing.T) {
	r, err := New(appState{})
	require.NoError(t, err)

	snap := r.DevTools()
	schema, ok := snap.StateSchema.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "Value")
	assert.Contains(t, props, "Items")
}

func TestDevToolsSnapshotIsSerializable(t *testing.T) {
	r, err := New(appState{}, WithHistory[appState]())
	require.NoError(t, err)
	require.NoError(t, r.Update(func(s *appState) error { s.Value = 1; return nil }))

	data, err := json.Marshal(r.DevTools())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state"`)
	assert.Contains(t, string(data), `"history"`)
}
