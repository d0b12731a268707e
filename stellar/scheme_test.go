package stellar

import (
	"context"
	"errors"
	"reflect"
	"testing"

	x402 "github.com/nacorid/x402-stellar"
)

func TestSchemeAddNetwork(t *testing.T) {
	f := newFixture(t)
	s := NewScheme(WithPollInterval(0))

	if err := s.AddNetwork(x402.NetworkBase, newMockLedger(f), f.signer()); !errors.Is(err, x402.ErrInvalidNetwork) {
		t.Errorf("AddNetwork(base) error = %v, want ErrInvalidNetwork", err)
	}
	if err := s.AddNetwork(x402.NetworkStellarTestnet, nil, f.signer()); err == nil {
		t.Error("AddNetwork with nil ledger succeeded")
	}
	if err := s.AddNetwork(x402.NetworkStellarTestnet, newMockLedger(f), nil); !errors.Is(err, x402.ErrInvalidKey) {
		t.Errorf("AddNetwork with nil signer error = %v, want ErrInvalidKey", err)
	}
	if err := s.AddNetwork(x402.NetworkStellarTestnet, newMockLedger(f), f.signer()); err != nil {
		t.Fatalf("AddNetwork() error = %v", err)
	}
	if got := s.Networks(); !reflect.DeepEqual(got, []string{x402.NetworkStellarTestnet}) {
		t.Errorf("Networks() = %v", got)
	}
}

func TestSchemeVerifyAndSettle(t *testing.T) {
	f := newFixture(t)
	ledger := newMockLedger(f)
	s := NewScheme(WithPollInterval(0))
	if err := s.AddNetwork(x402.NetworkStellarTestnet, ledger, f.signer()); err != nil {
		t.Fatalf("AddNetwork() error = %v", err)
	}
	ctx := context.Background()

	vr, err := s.Verify(ctx, f.payload(txShape{}), f.requirements())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !vr.IsValid || vr.Payer != f.payer.Address() {
		t.Errorf("Verify() = %+v", vr)
	}

	sr, err := s.Settle(ctx, f.payload(txShape{}), f.requirements())
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if !sr.Success || sr.Transaction == "" {
		t.Errorf("Settle() = %+v", sr)
	}
}

func TestSchemeUnboundNetwork(t *testing.T) {
	f := newFixture(t)
	s := NewScheme()
	if err := s.AddNetwork(x402.NetworkStellarTestnet, newMockLedger(f), f.signer()); err != nil {
		t.Fatalf("AddNetwork() error = %v", err)
	}
	reqs := f.requirements()
	reqs.Network = x402.NetworkStellar
	payload := f.payload(txShape{})
	payload.Network = x402.NetworkStellar

	vr, err := s.Verify(context.Background(), payload, reqs)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if vr.InvalidReason != x402.ReasonInvalidNetwork {
		t.Errorf("InvalidReason = %q, want %q", vr.InvalidReason, x402.ReasonInvalidNetwork)
	}

	sr, err := s.Settle(context.Background(), payload, reqs)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if sr.ErrorReason != x402.ReasonInvalidNetwork || sr.Network != x402.NetworkStellar {
		t.Errorf("Settle() = %+v", sr)
	}
}

func TestSchemeSupported(t *testing.T) {
	f := newFixture(t)
	s := NewScheme()
	if err := s.AddNetwork(x402.NetworkStellarTestnet, newMockLedger(f), f.signer()); err != nil {
		t.Fatalf("AddNetwork() error = %v", err)
	}

	resp, err := s.Supported(context.Background())
	if err != nil {
		t.Fatalf("Supported() error = %v", err)
	}
	if len(resp.Kinds) != 1 {
		t.Fatalf("kinds = %d, want 1", len(resp.Kinds))
	}
	k := resp.Kinds[0]
	if k.X402Version != 1 || k.Scheme != x402.SchemeExact || k.Network != x402.NetworkStellarTestnet {
		t.Errorf("kind = %+v", k)
	}
	if k.Extra["feePayer"] != f.facilitator.Address() {
		t.Errorf("feePayer = %v, want %s", k.Extra["feePayer"], f.facilitator.Address())
	}
	if k.Extra["areFeesSponsored"] != true {
		t.Errorf("areFeesSponsored = %v", k.Extra["areFeesSponsored"])
	}
}
