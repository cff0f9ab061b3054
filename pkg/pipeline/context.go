package pipeline

// Context is the opaque scripting/environment handle attached to each
// Pipeline and made available to user filter callbacks (§6). The core
// never interprets Values itself — it is the (out-of-scope) scripting VM's
// storage.
type Context struct {
	ic     *InputContext
	Values map[string]any
}

// NewContext creates a Context bound to the given thread-affine
// InputContext, with an empty Values map.
func NewContext(ic *InputContext) *Context {
	return &Context{ic: ic, Values: make(map[string]any)}
}

// Detach returns a new Context sharing the same thread affinity (the same
// InputContext — it is never safe to run a Context's callbacks from a
// different goroutine than the one that owns its InputContext) but with
// independent Values storage. Used by the demuxer's Isolate mode so that
// concurrent streams do not leak state between each other.
func (c *Context) Detach() *Context {
	return &Context{ic: c.ic, Values: make(map[string]any)}
}

// InputContext returns the thread-affine dispatch guard this Context uses.
func (c *Context) InputContext() *InputContext { return c.ic }
