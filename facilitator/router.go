package facilitator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	x402 "github.com/nacorid/x402-stellar"
)

// Router dispatches facilitator calls to the implementation registered for
// the network family of the requirements. The family is resolved once per
// call from requirements.Network; implementations never see a payment for
// another family.
type Router struct {
	evm     Interface
	svm     Interface
	stellar Interface

	logger    *slog.Logger
	callbacks []x402.PaymentCallback
}

var _ Interface = (*Router)(nil)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithEVM registers the implementation serving EVM networks.
func WithEVM(impl Interface) RouterOption {
	return func(r *Router) { r.evm = impl }
}

// WithSVM registers the implementation serving Solana networks.
func WithSVM(impl Interface) RouterOption {
	return func(r *Router) { r.svm = impl }
}

// WithStellar registers the implementation serving Stellar networks.
func WithStellar(impl Interface) RouterOption {
	return func(r *Router) { r.stellar = impl }
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEventCallback registers a callback for verify and settle events.
func WithEventCallback(cb PaymentCallback) RouterOption {
	return func(r *Router) {
		if cb != nil {
			r.callbacks = append(r.callbacks, cb)
		}
	}
}

// PaymentCallback is re-exported for option call sites.
type PaymentCallback = x402.PaymentCallback

// NewRouter creates a Router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// route selects the implementation for network.
func (r *Router) route(network string) (Interface, error) {
	family, err := x402.ValidateNetwork(network)
	if err != nil {
		return nil, err
	}
	var impl Interface
	switch family {
	case x402.NetworkTypeEVM:
		impl = r.evm
	case x402.NetworkTypeSVM:
		impl = r.svm
	case x402.NetworkTypeStellar:
		impl = r.stellar
	}
	if impl == nil {
		return nil, fmt.Errorf("%w: no %s facilitator for %s", x402.ErrInvalidNetwork, family, network)
	}
	return impl, nil
}

// Verify routes to the family implementation.
func (r *Router) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (resp *x402.VerifyResponse, err error) {
	start := time.Now()
	r.emit(newEvent(x402.PaymentEventAttempt, "verify", requirements))

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("verify panicked", "panic", fmt.Sprint(rec), "network", requirements.Network)
			resp, err = &x402.VerifyResponse{InvalidReason: x402.ReasonUnexpected}, nil
		}
		r.finish("verify", requirements, start, resp != nil && resp.IsValid, verifyDetails(resp))
	}()

	impl, rerr := r.route(requirements.Network)
	if rerr != nil {
		r.logger.Info("unroutable payment", "network", requirements.Network, "error", rerr)
		return &x402.VerifyResponse{InvalidReason: x402.ReasonInvalidNetwork}, nil
	}
	return impl.Verify(ctx, payload, requirements)
}

// Settle routes to the family implementation.
func (r *Router) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (resp *x402.SettleResponse, err error) {
	start := time.Now()
	r.emit(newEvent(x402.PaymentEventAttempt, "settle", requirements))

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("settle panicked", "panic", fmt.Sprint(rec), "network", requirements.Network)
			resp, err = &x402.SettleResponse{ErrorReason: x402.ReasonUnexpected, Network: requirements.Network}, nil
		}
		r.finish("settle", requirements, start, resp != nil && resp.Success, settleDetails(resp))
	}()

	impl, rerr := r.route(requirements.Network)
	if rerr != nil {
		r.logger.Info("unroutable payment", "network", requirements.Network, "error", rerr)
		return &x402.SettleResponse{ErrorReason: x402.ReasonInvalidNetwork, Network: requirements.Network}, nil
	}
	return impl.Settle(ctx, payload, requirements)
}

// Supported merges the kinds of every registered implementation. A failing
// implementation is logged and skipped.
func (r *Router) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	impls := []struct {
		family x402.NetworkType
		impl   Interface
	}{
		{x402.NetworkTypeEVM, r.evm},
		{x402.NetworkTypeSVM, r.svm},
		{x402.NetworkTypeStellar, r.stellar},
	}

	var wg sync.WaitGroup
	sets := make([][]x402.SupportedKind, len(impls))
	for i, entry := range impls {
		if entry.impl == nil {
			continue
		}
		wg.Add(1)
		go func(i int, family x402.NetworkType, impl Interface) {
			defer wg.Done()
			resp, err := impl.Supported(ctx)
			if err != nil {
				r.logger.Warn("supported query failed", "family", family.String(), "error", err)
				return
			}
			var kinds []x402.SupportedKind
			for _, k := range resp.Kinds {
				// Remote facilitators may serve more than one family.
				if f, err := x402.ValidateNetwork(k.Network); err == nil && f == family {
					kinds = append(kinds, k)
				}
			}
			sets[i] = kinds
		}(i, entry.family, entry.impl)
	}
	wg.Wait()

	out := &x402.SupportedResponse{Kinds: []x402.SupportedKind{}}
	for _, kinds := range sets {
		out.Kinds = append(out.Kinds, kinds...)
	}
	return out, nil
}

type outcomeDetails struct {
	payer       string
	transaction string
	reason      x402.ErrorReason
}

func verifyDetails(resp *x402.VerifyResponse) outcomeDetails {
	if resp == nil {
		return outcomeDetails{}
	}
	return outcomeDetails{payer: resp.Payer, reason: resp.InvalidReason}
}

func settleDetails(resp *x402.SettleResponse) outcomeDetails {
	if resp == nil {
		return outcomeDetails{}
	}
	return outcomeDetails{payer: resp.Payer, transaction: resp.Transaction, reason: resp.ErrorReason}
}

func (r *Router) finish(method string, requirements x402.PaymentRequirements, start time.Time, ok bool, d outcomeDetails) {
	typ := x402.PaymentEventFailure
	if ok {
		typ = x402.PaymentEventSuccess
	}
	ev := newEvent(typ, method, requirements)
	ev.Payer = d.payer
	ev.Transaction = d.transaction
	ev.Reason = d.reason
	ev.Duration = time.Since(start)
	r.emit(ev)
}

func newEvent(typ x402.PaymentEventType, method string, requirements x402.PaymentRequirements) x402.PaymentEvent {
	return x402.PaymentEvent{
		Type:      typ,
		Timestamp: time.Now(),
		Method:    method,
		Amount:    requirements.MaxAmountRequired,
		Asset:     requirements.Asset,
		Network:   requirements.Network,
		Scheme:    requirements.Scheme,
		Recipient: requirements.PayTo,
	}
}

func (r *Router) emit(ev x402.PaymentEvent) {
	for _, cb := range r.callbacks {
		cb(ev)
	}
}
