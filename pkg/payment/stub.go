package payment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubProvider settles every initialized transaction immediately. Development only.
type StubProvider struct {
	mu      sync.Mutex
	amounts map[string]int64
}

func NewStubProvider() *StubProvider {
	return &StubProvider{amounts: make(map[string]int64)}
}

func (s *StubProvider) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	s.mu.Lock()
	s.amounts[req.Reference] = req.Amount
	s.mu.Unlock()

	return &Session{
		Reference:        req.Reference,
		AuthorizationURL: fmt.Sprintf("https://checkout.invalid/stub/%s", req.Reference),
		AccessCode:       "stub",
	}, nil
}

func (s *StubProvider) Verify(ctx context.Context, reference string) (*Confirmation, error) {
	s.mu.Lock()
	amount, ok := s.amounts[reference]
	s.mu.Unlock()

	if !ok {
		return &Confirmation{Reference: reference, Status: StatusAbandoned}, nil
	}
	now := time.Now()
	return &Confirmation{Reference: reference, Status: StatusSuccess, Amount: amount, PaidAt: &now}, nil
}

func (s *StubProvider) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	return "stub_" + req.Reference, nil
}
