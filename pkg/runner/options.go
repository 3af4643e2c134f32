package runner

import (
	"log/slog"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithThreadID pins the conversation thread. Without it a new id is generated.
func WithThreadID(id string) Option {
	return func(r *Runner) {
		r.threadID = id
	}
}

// WithHandler configures the IOHandler.
func WithHandler(h IOHandler) Option {
	return func(r *Runner) {
		r.handler = h
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithInterruptSource replaces OS signals as the source of per-turn interrupts.
func WithInterruptSource(ch <-chan struct{}) Option {
	return func(r *Runner) {
		r.interrupts = ch
	}
}
