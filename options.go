package reactor

// Option is a function that configures a Reactor
type Option[S any] func(*Reactor[S])

// WithName sets a human-readable name used in diagnostics and DevTools
// exports
func WithName[S any](name string) Option[S] {
	return func(r *Reactor[S]) {
		r.name = name
	}
}

// WithLogger sets the logger for the reactor
func WithLogger[S any](logger Logger) Option[S] {
	return func(r *Reactor[S]) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMiddleware appends middlewares to the chain, invoked in registration
// order around every committed mutation
func WithMiddleware[S any](mw ...Middleware[S]) Option[S] {
	return func(r *Reactor[S]) {
		r.middlewares = append(r.middlewares, mw...)
	}
}

// WithHistory enables the undo/redo history manager
func WithHistory[S any](opts ...HistoryOption) Option[S] {
	return func(r *Reactor[S]) {
		r.historyOpts = opts
		r.historyEnabled = true
	}
}

// WithPlugins registers plugins, initialized in registration order during New
func WithPlugins[S any](plugins ...Plugin[S]) Option[S] {
	return func(r *Reactor[S]) {
		r.plugins = append(r.plugins, plugins...)
	}
}

// WithActionPrefix overrides the label prefix used when asynchronous action
// results are committed to state. The default is "action".
func WithActionPrefix[S any](prefix string) Option[S] {
	return func(r *Reactor[S]) {
		if prefix != "" {
			r.actionPrefix = prefix
		}
	}
}
