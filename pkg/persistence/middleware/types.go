// Package middleware decorates a Checkpointer with encryption at rest and
// redaction of sensitive state fields.
package middleware

import "github.com/aretw0/agentgraph/pkg/ports"

// Middleware allows wrapping a Checkpointer to add behavior.
type Middleware func(ports.Checkpointer) ports.Checkpointer

// Chain applies mw so that the first one sees calls first.
func Chain(cp ports.Checkpointer, mw ...Middleware) ports.Checkpointer {
	for i := len(mw) - 1; i >= 0; i-- {
		cp = mw[i](cp)
	}
	return cp
}
