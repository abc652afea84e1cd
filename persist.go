package reactor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/davidroman0O/reactor/storage"
)

// persistSchemaVersion tags the serialized envelope. The payload format is
// the plugin's own concern; the reactor core treats it as opaque.
const persistSchemaVersion = 1

// persistEnvelope wraps the serialized state with a version so the plugin
// can migrate or reject payloads it does not understand.
type persistEnvelope struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
}

// Persist returns a plugin that hydrates the state once at construction and
// persists it after every committed update. Hydration re-enters through the
// normal Update path tagged "persist:hydrate"; persistence is an explicit
// after-update middleware, not implicit dependency tracking.
func Persist[S any](store storage.Store, key string) Plugin[S] {
	return &persistPlugin[S]{store: store, key: key}
}

type persistPlugin[S any] struct {
	store  storage.Store
	key    string
	logger Logger
}

func (p *persistPlugin[S]) Name() string { return "persist" }

func (p *persistPlugin[S]) Init(pc *PluginContext[S]) error {
	if p.store == nil {
		return fmt.Errorf("persist: store is required")
	}
	if p.key == "" {
		return fmt.Errorf("persist: key is required")
	}
	p.logger = pc.Logger()

	if err := p.hydrate(pc); err != nil {
		return err
	}

	pc.Use(Middleware[S]{
		Name: "persist",
		OnAfterUpdate: func(prev, next *S, action string) error {
			return p.save(next)
		},
	})
	return nil
}

func (p *persistPlugin[S]) hydrate(pc *PluginContext[S]) error {
	data, err := p.store.Get(p.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("persist: load %q: %w", p.key, err)
	}
	if len(data) == 0 {
		return nil
	}

	var env persistEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("persist: decode envelope for %q: %w", p.key, err)
	}
	if env.Version != persistSchemaVersion {
		return fmt.Errorf("persist: unsupported envelope version %d for %q", env.Version, p.key)
	}

	if err := pc.Reactor().Update(func(s *S) error {
		return json.Unmarshal(env.State, s)
	}, "persist:hydrate"); err != nil {
		return err
	}

	// The hydrated state is the history baseline: undo must not step back
	// past it to the pre-hydration zero value.
	if h := pc.Reactor().History(); h != nil {
		h.Clear()
	}
	return nil
}

func (p *persistPlugin[S]) save(next *S) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("persist: encode state for %q: %w", p.key, err)
	}
	data, err := json.Marshal(persistEnvelope{Version: persistSchemaVersion, State: raw})
	if err != nil {
		return fmt.Errorf("persist: encode envelope for %q: %w", p.key, err)
	}
	if err := p.store.Set(p.key, data); err != nil {
		return fmt.Errorf("persist: save %q: %w", p.key, err)
	}
	return nil
}

func (p *persistPlugin[S]) Destroy() {}
