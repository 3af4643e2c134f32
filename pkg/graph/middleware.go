package graph

// Middleware wraps the execution of a named node.
type Middleware func(name string, next Node) Node

// Chain composes middleware so the first one is outermost.
func Chain(mw ...Middleware) Middleware {
	return func(name string, next Node) Node {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](name, next)
		}
		return next
	}
}
