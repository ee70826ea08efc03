package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/neoclaw-ai/completions/internal/provider"
)

// Executor sends built requests to their provider. It never retries.
type Executor struct {
	providers map[provider.Kind]provider.Provider
}

// NewExecutor dispatches to providers by kind.
func NewExecutor(providers map[provider.Kind]provider.Provider) *Executor {
	return &Executor{providers: providers}
}

// Execute calls kind's provider once. Upstream failures are returned as
// TransportError with the original error still reachable through errors.As.
func (e *Executor) Execute(ctx context.Context, kind provider.Kind, req provider.Request) (*provider.Response, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	p, ok := e.providers[kind]
	if !ok || p == nil {
		return nil, fmt.Errorf("provider %s is not configured", kind)
	}
	if req.Provider() != kind {
		return nil, fmt.Errorf("cannot execute %s request on %s", req.Provider(), kind)
	}

	resp, err := p.CreateCompletion(ctx, req)
	if err != nil {
		return nil, newError(CodeTransportError, fmt.Sprintf("%s completion", kind), err)
	}
	if resp == nil {
		return nil, newError(CodeTransportError, fmt.Sprintf("%s completion", kind), errors.New("empty response"))
	}
	return resp, nil
}
