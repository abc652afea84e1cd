package reactor

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLogger is a simple logger implementation for testing
type TestLogger struct {
	t *testing.T

	mu       sync.Mutex
	messages []string
}

func (l *TestLogger) record(level, format string, args ...interface{}) {
	l.mu.Lock()
	l.messages = append(l.messages, fmt.Sprintf("["+level+"] "+format, args...))
	l.mu.Unlock()
	if l.t != nil {
		l.t.Logf("["+level+"] "+format, args...)
	}
}

func (l *TestLogger) Debug(format string, args ...interface{}) { l.record("DEBUG", format, args...) }
func (l *TestLogger) Info(format string, args ...interface{})  { l.record("INFO", format, args...) }
func (l *TestLogger) Warn(format string, args ...interface{})  { l.record("WARN", format, args...) }
func (l *TestLogger) Error(format string, args ...interface{}) { l.record("ERROR", format, args...) }

func (l *TestLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.messages...)
}

// appState is the state shape used across the package tests
type appState struct {
	Value int
	Text  string
	Items []string
	Meta  map[string]int
}

func newAppState() appState {
	return appState{Items: []string{}, Meta: map[string]int{}}
}

func TestNewValidation(t *testing.T) {
	// Nil pointer state is rejected
	var nilState *appState
	_, err := New(nilState)
	require.Error(t, err)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	// Nil map state is rejected
	var nilMap map[string]any
	_, err = New(nilMap)
	assert.Error(t, err)

	// Value state is accepted
	r, err := New(newAppState())
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID())
}

func TestUpdateCommitsAndNotifies(t *testing.T) {
	r, err := New(newAppState(), WithName[appState]("test"))
	require.NoError(t, err)

	var notified []appState
	unsubscribe := r.Subscribe(func(s appState) {
		notified = append(notified, s)
	})
	defer unsubscribe()

	err = r.Update(func(s *appState) error {
		s.Value = 42
		return nil
	}, "set42")
	require.NoError(t, err)

	assert.Equal(t, 42, r.State().Value)
	require.Len(t, notified, 1)
	assert.Equal(t, 42, notified[0].Value)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Updates)
	assert.Equal(t, uint64(0), stats.Skipped)
}

func TestUpdateNilUpdater(t *testing.T) {
	r, err := New(newAppState())
	require.NoError(t, err)

	err = r.Update(nil)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestUpdateSkipsWhenStateUnchanged(t *testing.T) {
	r, err := New(newAppState(), WithHistory[appState]())
	require.NoError(t, err)

	notifications := 0
	r.Subscribe(func(appState) { notifications++ })

	afterHookRan := false
	r.Use(Middleware[appState]{
		Name: "probe",
		OnAfterUpdate: func(prev, next *appState, action string) error {
			afterHookRan = true
			return nil
		},
	})

	// The updater touches nothing, so the commit must be skipped entirely
	err = r.Update(func(s *appState) error { return nil }, "noop")
	require.NoError(t, err)

	assert.Equal(t, 0, notifications)
	assert.False(t, afterHookRan)
	assert.False(t, r.History().CanUndo())
	assert.Equal(t, uint64(1), r.Stats().Skipped)
	assert.Equal(t, uint64(0), r.Stats().Updates)
}

func TestSetDotNotation(t *testing.T) {
	r, err := New(newAppState())
	require.NoError(t, err)

	err = r.Set(map[string]any{
		"Value": 7,
		"Text":  "hello",
	})
	require.NoError(t, err)

	state := r.State()
	assert.Equal(t, 7, state.Value)
	assert.Equal(t, "hello", state.Text)
}

func TestSetOnMapState(t *testing.T) {
	r, err := New(map[string]any{"count": 0})
	require.NoError(t, err)

	err = r.Set(map[string]any{"count": 3, "label": "x"})
	require.NoError(t, err)

	state := r.State()
	assert.Equal(t, 3, state["count"])
	assert.Equal(t, "x", state["label"])
}

func TestMiddlewareInvocationOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware[appState] {
		return Middleware[appState]{
			Name: name,
			OnBeforeUpdate: func(prev, next *appState, action string) error {
				order = append(order, "before:"+name)
				return nil
			},
			OnAfterUpdate: func(prev, next *appState, action string) error {
				order = append(order, "after:"+name)
				return nil
			},
		}
	}

	r, err := New(newAppState(), WithMiddleware(mw("first"), mw("second")))
	require.NoError(t, err)

	err = r.Update(func(s *appState) error {
		s.Value = 1
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"before:first", "before:second", "after:first", "after:second"}, order)
}

func TestMiddlewareBeforeHookAbortsCommit(t *testing.T) {
	hookErr := errors.New("rejected")
	var onErrorSeen error

	r, err := New(newAppState(), WithMiddleware(Middleware[appState]{
		Name: "guard",
		OnBeforeUpdate: func(prev, next *appState, action string) error {
			if next.Value < 0 {
				return hookErr
			}
			return nil
		},
		OnError: func(err error, action string) {
			onErrorSeen = err
		},
	}))
	require.NoError(t, err)

	err = r.Update(func(s *appState) error {
		s.Value = -1
		return nil
	})
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, hookErr, onErrorSeen)
	assert.Equal(t, 0, r.State().Value)
}

func TestMutationErrorLeavesStateUntouched(t *testing.T) {
	var onErrorSeen error
	r, err := New(newAppState(),
		WithHistory[appState](),
		WithMiddleware(Middleware[appState]{
			Name:    "probe",
			OnError: func(err error, action string) { onErrorSeen = err },
		}))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = r.Update(func(s *appState) error {
		s.Value = 99
		return boom
	}, "explode")

	var merr *MutationError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "explode", merr.Action)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, err, onErrorSeen)

	// State and history are untouched
	assert.Equal(t, 0, r.State().Value)
	assert.False(t, r.History().CanUndo())
}

func TestSubscriberSnapshotIsolation(t *testing.T) {
	r, err := New(newAppState())
	require.NoError(t, err)

	r.Subscribe(func(s appState) {
		// Mutating the snapshot must not reach the live state
		s.Items = append(s.Items, "rogue")
		s.Meta["rogue"] = 1
	})

	err = r.Update(func(s *appState) error {
		s.Items = append(s.Items, "real")
		return nil
	})
	require.NoError(t, err)

	state := r.State()
	assert.Equal(t, []string{"real"}, state.Items)
	assert.Empty(t, state.Meta)
}

func TestSubscribersReceiveIndependentSnapshots(t *testing.T) {
	r, err := New(newAppState())
	require.NoError(t, err)

	// The first subscriber misbehaves and mutates its snapshot
	r.Subscribe(func(s appState) {
		s.Meta["rogue"] = 1
		s.Items = append(s.Items, "rogue")
	})

	var second appState
	r.Subscribe(func(s appState) { second = s })

	err = r.Update(func(s *appState) error {
		s.Items = append(s.Items, "real")
		return nil
	})
	require.NoError(t, err)

	// The second subscriber must not observe the first one's mutations
	assert.Equal(t, []string{"real"}, second.Items)
	assert.Empty(t, second.Meta)
}

func TestUnsubscribe(t *testing.T) {
	r, err := New(newAppState())
	require.NoError(t, err)

	calls := 0
	unsubscribe := r.Subscribe(func(appState) { calls++ })

	require.NoError(t, r.Update(func(s *appState) error { s.Value = 1; return nil }))
	unsubscribe()
	unsubscribe() // safe to call twice
	require.NoError(t, r.Update(func(s *appState) error { s.Value = 2; return nil }))

	assert.Equal(t, 1, calls)
}

func TestBatchWithoutHistoryDegrades(t *testing.T) {
	r, err := New(newAppState())
	require.NoError(t, err)

	ran := false
	r.Batch(func() {
		ran = true
		require.NoError(t, r.Update(func(s *appState) error { s.Value = 5; return nil }))
	})

	assert.True(t, ran)
	assert.Equal(t, 5, r.State().Value)
}

func TestDestroyIsIdempotentAndSilencesUpdates(t *testing.T) {
	logger := &TestLogger{t: t}
	r, err := New(newAppState(), WithLogger[appState](logger))
	require.NoError(t, err)

	notifications := 0
	r.Subscribe(func(appState) { notifications++ })

	r.Destroy()
	r.Destroy() // idempotent
	assert.True(t, r.Destroyed())

	// Post-teardown operations are diagnostic no-ops, not panics
	err = r.Update(func(s *appState) error { s.Value = 1; return nil })
	assert.NoError(t, err)
	assert.False(t, r.Undo())
	assert.False(t, r.Redo())
	r.Batch(func() { t.Fatal("batch body must not run after destroy") })

	assert.Equal(t, 0, notifications)

	warned := false
	for _, msg := range logger.Messages() {
		if len(msg) > 6 && msg[:6] == "[WARN]" {
			warned = true
		}
	}
	assert.True(t, warned, "expected a diagnostic for post-destroy usage")
}

func TestScenarioSet5UndoRedo(t *testing.T) {
	// reactor {value:0}; update set 5; undo => 0; redo => 5
	r, err := New(appState{}, WithHistory[appState]())
	require.NoError(t, err)

	require.NoError(t, r.Update(func(s *appState) error { s.Value = 5; return nil }, "set5"))
	assert.Equal(t, 5, r.State().Value)

	require.True(t, r.Undo())
	assert.Equal(t, 0, r.State().Value)

	require.True(t, r.Redo())
	assert.Equal(t, 5, r.State().Value)
}

func TestUndoBypassesMiddleware(t *testing.T) {
	hookCalls := 0
	r, err := New(appState{},
		WithHistory[appState](),
		WithMiddleware(Middleware[appState]{
			Name: "probe",
			OnAfterUpdate: func(prev, next *appState, action string) error {
				hookCalls++
				return nil
			},
		}))
	require.NoError(t, err)

	require.NoError(t, r.Update(func(s *appState) error { s.Value = 5; return nil }))
	assert.Equal(t, 1, hookCalls)

	// History replay is not a user action: middleware must not run
	require.True(t, r.Undo())
	require.True(t, r.Redo())
	assert.Equal(t, 1, hookCalls)
}

func TestUndoNotifiesSubscribers(t *testing.T) {
	r, err := New(appState{}, WithHistory[appState]())
	require.NoError(t, err)

	require.NoError(t, r.Update(func(s *appState) error { s.Value = 5; return nil }))

	var seen []int
	r.Subscribe(func(s appState) { seen = append(seen, s.Value) })

	require.True(t, r.Undo())
	require.True(t, r.Redo())
	assert.Equal(t, []int{0, 5}, seen)
}

func TestStatsCounters(t *testing.T) {
	r, err := New(appState{})
	require.NoError(t, err)

	r.Subscribe(func(appState) {})

	require.NoError(t, r.Update(func(s *appState) error { s.Value = 1; return nil }))
	require.NoError(t, r.Update(func(s *appState) error { return nil }))
	_ = r.Update(func(s *appState) error { return errors.New("bad") })

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Updates)
	assert.Equal(t, uint64(1), stats.Skipped)
	assert.Equal(t, uint64(1), stats.Errors)
	assert.Equal(t, uint64(1), stats.Notifications)
	assert.Equal(t, 0, stats.Pending)
}
