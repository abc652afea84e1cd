package reactor

// Plugin extends a reactor at construction time. Init is called once per
// plugin in registration order; a failing Init is logged as a
// PluginInitError and does not abort initialization of the remaining
// plugins. Destroy is called once at teardown.
type Plugin[S any] interface {
	// Name identifies the plugin in diagnostics and DevTools exports.
	Name() string

	// Init wires the plugin into the reactor. It may append middlewares and
	// install a history manager through the context.
	Init(pc *PluginContext[S]) error

	// Destroy releases plugin resources at reactor teardown.
	Destroy()
}

// PluginContext is handed to Plugin.Init. It exposes the installation
// surface a plugin may touch.
type PluginContext[S any] struct {
	r *Reactor[S]
}

// Reactor returns the reactor being constructed. State mutations must go
// through its Update/Set path.
func (pc *PluginContext[S]) Reactor() *Reactor[S] { return pc.r }

// Logger returns the reactor's logger.
func (pc *PluginContext[S]) Logger() Logger { return pc.r.logger }

// Use appends middlewares to the reactor's chain.
func (pc *PluginContext[S]) Use(mw ...Middleware[S]) {
	pc.r.mu.Lock()
	defer pc.r.mu.Unlock()
	pc.r.middlewares = append(pc.r.middlewares, mw...)
}

// InstallHistory installs a history manager seeded from the current state.
// A later install overwrites an earlier one; at most one history manager is
// active per reactor.
func (pc *PluginContext[S]) InstallHistory(opts ...HistoryOption) *History[S] {
	pc.r.mu.Lock()
	defer pc.r.mu.Unlock()
	if pc.r.history != nil {
		pc.r.logger.Warn("plugin replaced an existing history manager on reactor %s", pc.r.id)
	}
	pc.r.history = NewHistory(pc.r.state, opts...)
	return pc.r.history
}
