package reactor

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// HistoryEntryInfo is a read-only projection of one history entry.
type HistoryEntryInfo struct {
	Action    string    `json:"action,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryInfo is a read-only projection of the history stacks.
type HistoryInfo struct {
	Past      []HistoryEntryInfo `json:"past"`
	FutureLen int                `json:"futureLen"`
	CanUndo   bool               `json:"canUndo"`
	CanRedo   bool               `json:"canRedo"`
}

// DevToolsSnapshot is a read-only projection of a reactor for inspection and
// devtools integrations. Any external mutation (time travel included) must
// re-enter through the normal Update/Set path, never write state directly.
type DevToolsSnapshot struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	State       any          `json:"state"`
	History     *HistoryInfo `json:"history,omitempty"`
	Middlewares []string     `json:"middlewares"`
	Plugins     []string     `json:"plugins"`
	StateSchema any          `json:"stateSchema,omitempty"`
}

// DevTools exports a read-only projection of the reactor: a deep-copied
// state snapshot, a lens over the history stacks, registered middleware and
// plugin names, and a JSON Schema describing the state type.
func (r *Reactor[S]) DevTools() DevToolsSnapshot {
	r.mu.Lock()
	state := clone(r.state)
	middlewares := make([]string, 0, len(r.middlewares))
	for _, mw := range r.middlewares {
		middlewares = append(middlewares, mw.Name)
	}
	history := r.history
	r.mu.Unlock()

	plugins := make([]string, 0, len(r.plugins))
	for _, p := range r.plugins {
		plugins = append(plugins, p.Name())
	}

	snap := DevToolsSnapshot{
		ID:          r.id,
		Name:        r.name,
		State:       state,
		Middlewares: middlewares,
		Plugins:     plugins,
		StateSchema: typeSchema(reflect.TypeOf(state)),
	}

	if history != nil {
		snap.History = &HistoryInfo{
			Past:      history.entriesInfo(),
			FutureLen: history.FutureLen(),
			CanUndo:   history.CanUndo(),
			CanRedo:   history.CanRedo(),
		}
	}
	return snap
}

// typeSchema converts a reflect.Type to a JSON schema map.
func typeSchema(t reflect.Type) any {
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	instance := reflect.New(t).Interface()
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(instance)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	if _, ok := schemaMap["type"]; !ok {
		schemaMap["type"] = "object"
	}
	if _, ok := schemaMap["properties"]; !ok {
		schemaMap["properties"] = map[string]any{}
	}
	return schemaMap
}
