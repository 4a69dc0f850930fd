package queue

import "context"

// Handler processes jobs of the type its owning Source was constructed
// with. Execute's error classification (permanent vs retryable) is the
// caller's (internal/pipeline's error taxonomy) responsibility; Handler
// itself just reports what happened.
type Handler interface {
	// Execute runs job to completion or failure. ctx carries the
	// cancellation signal wired from the originating HTTP request
	// (spec §5): an aborted context must abort any outbound HTTP call the
	// handler makes.
	Execute(ctx context.Context, job *Job) (*Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) (*Result, error)

func (f HandlerFunc) Execute(ctx context.Context, job *Job) (*Result, error) { return f(ctx, job) }
