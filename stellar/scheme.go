package stellar

import (
	"context"
	"fmt"
	"sort"
	"sync"

	x402 "github.com/nacorid/x402-stellar"
	"github.com/nacorid/x402-stellar/facilitator"
)

// Scheme serves the "exact" scheme on one or more Stellar networks, each
// with its own ledger and facilitator signer.
type Scheme struct {
	opts []Option

	mu       sync.RWMutex
	bindings map[string]binding
}

type binding struct {
	facilitator *Facilitator
	signer      Signer
}

var _ facilitator.Interface = (*Scheme)(nil)

// NewScheme creates an empty Scheme. opts apply to every network added.
func NewScheme(opts ...Option) *Scheme {
	return &Scheme{opts: opts, bindings: make(map[string]binding)}
}

// AddNetwork binds a Stellar network to a ledger client and signer.
func (s *Scheme) AddNetwork(network string, ledger LedgerClient, signer Signer) error {
	if _, err := x402.StellarPassphrase(network); err != nil {
		return err
	}
	if signer == nil {
		return fmt.Errorf("%w: signer is required for %s", x402.ErrInvalidKey, network)
	}
	f, err := New(ledger, s.opts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[network] = binding{facilitator: f, signer: signer}
	return nil
}

// Networks returns the bound networks in lexical order.
func (s *Scheme) Networks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bindings))
	for n := range s.bindings {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *Scheme) lookup(network string) (binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[network]
	return b, ok
}

// Verify implements facilitator.Interface. Domain failures are reported in
// the response; the error is always nil.
func (s *Scheme) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	b, ok := s.lookup(requirements.Network)
	if !ok {
		return &x402.VerifyResponse{InvalidReason: x402.ReasonInvalidNetwork}, nil
	}
	resp := b.facilitator.Verify(ctx, b.signer, payload, requirements)
	return &resp, nil
}

// Settle implements facilitator.Interface. Domain failures are reported in
// the response; the error is always nil.
func (s *Scheme) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	b, ok := s.lookup(requirements.Network)
	if !ok {
		return &x402.SettleResponse{ErrorReason: x402.ReasonInvalidNetwork, Network: requirements.Network}, nil
	}
	resp := b.facilitator.Settle(ctx, b.signer, payload, requirements)
	return &resp, nil
}

// Supported implements facilitator.Interface. Every bound network is
// advertised with the facilitator account as fee payer.
func (s *Scheme) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	resp := &x402.SupportedResponse{Kinds: []x402.SupportedKind{}}
	for _, network := range s.Networks() {
		b, ok := s.lookup(network)
		if !ok {
			continue
		}
		resp.Kinds = append(resp.Kinds, x402.SupportedKind{
			X402Version: x402.X402Version,
			Scheme:      x402.SchemeExact,
			Network:     network,
			Extra: map[string]interface{}{
				"feePayer":         b.signer.Address(),
				"areFeesSponsored": true,
			},
		})
	}
	return resp, nil
}
