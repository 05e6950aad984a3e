package charges

import (
	"context"
	"sync"

	"github.com/spacearena/lead-pipeline/schemas"
)

// Func adapts a function to the gateway contract.
type Func func(ctx context.Context, req schemas.ChargeRequest) (schemas.ChargeResult, error)

func (f Func) Charge(ctx context.Context, req schemas.ChargeRequest) (schemas.ChargeResult, error) {
	return f(ctx, req)
}

// Static returns the same result for every charge and remembers the requests.
type Static struct {
	Result schemas.ChargeResult
	Err    error

	mu       sync.Mutex
	requests []schemas.ChargeRequest
}

func Approving() *Static {
	return &Static{Result: schemas.ChargeResult{Success: true}}
}

func Declining(message string) *Static {
	return &Static{Result: schemas.ChargeResult{Success: false, Message: message}}
}

func (s *Static) Charge(ctx context.Context, req schemas.ChargeRequest) (schemas.ChargeResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.Result, s.Err
}

func (s *Static) Requests() []schemas.ChargeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.ChargeRequest(nil), s.requests...)
}

// Disabled refuses every charge; used when no billing backend is configured.
type Disabled struct{}

func (Disabled) Charge(ctx context.Context, req schemas.ChargeRequest) (schemas.ChargeResult, error) {
	return schemas.ChargeResult{Success: false, Message: "cobrança não configurada"}, nil
}
