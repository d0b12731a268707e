// Package sorobanrpc implements stellar.LedgerClient over the Stellar RPC
// JSON-RPC 2.0 API. Request and result bodies are the protocol types of
// github.com/stellar/go/protocols/rpc; resty carries the envelope.
package sorobanrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	protocol "github.com/stellar/go/protocols/rpc"
	"github.com/stellar/go/xdr"

	x402 "github.com/nacorid/x402-stellar"
	"github.com/nacorid/x402-stellar/stellar"
)

// DefaultTestnetURL is the public SDF testnet RPC endpoint.
const DefaultTestnetURL = "https://soroban-testnet.stellar.org"

// DefaultURL returns the public RPC endpoint for a network. Pubnet has no
// public endpoint and must be configured explicitly.
func DefaultURL(network string) (string, error) {
	switch network {
	case x402.NetworkStellarTestnet:
		return DefaultTestnetURL, nil
	case x402.NetworkStellar:
		return "", fmt.Errorf("%w: no public rpc endpoint for %s, configure one", x402.ErrInvalidNetwork, network)
	default:
		return "", fmt.Errorf("%w: %s", x402.ErrInvalidNetwork, network)
	}
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client talks to one RPC endpoint. It is safe for concurrent use.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
	nextID atomic.Uint64
}

var _ stellar.LedgerClient = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithHeader adds a header to every request, e.g. a provider API key.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.http.SetHeader(key, value) }
}

// WithRetry retries requests that failed at the transport level. Every
// method is safe to retry: submitting the same signed envelope twice is
// answered with DUPLICATE.
func WithRetry(count int, wait time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the RPC endpoint at url.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("x402: rpc url is required")
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(url).
			SetHeader("Content-Type", "application/json").
			SetTimeout(30 * time.Second),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type response[T any] struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Result  *T        `json:"result"`
	Error   *RPCError `json:"error"`
}

// call performs one JSON-RPC round trip.
func call[T any](ctx context.Context, c *Client, method string, params interface{}) (*T, error) {
	id := c.nextID.Add(1)
	var out response[T]

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", x402.ErrLedgerUnavailable, method, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: status %d", x402.ErrLedgerUnavailable, method, resp.StatusCode())
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, out.Error)
	}
	if out.Result == nil {
		return nil, fmt.Errorf("%w: %s: empty result", x402.ErrLedgerUnavailable, method)
	}
	c.logger.Debug("rpc call", "method", method, "id", id, "duration", resp.Time())
	return out.Result, nil
}

// SimulateTransaction implements stellar.LedgerClient.
func (c *Client) SimulateTransaction(ctx context.Context, txXDR string) (*stellar.SimulationResult, error) {
	res, err := call[protocol.SimulateTransactionResponse](ctx, c, protocol.SimulateTransactionMethodName,
		protocol.SimulateTransactionRequest{Transaction: txXDR})
	if err != nil {
		return nil, err
	}

	out := &stellar.SimulationResult{
		Error:           res.Error,
		TransactionData: res.TransactionDataXDR,
		LatestLedger:    res.LatestLedger,
	}
	if res.Error != "" {
		return out, nil
	}
	out.MinResourceFee = res.MinResourceFee
	for _, r := range res.Results {
		if r.AuthXDR != nil {
			out.Auth = append(out.Auth, *r.AuthXDR...)
		}
	}
	if res.RestorePreamble != nil {
		out.RestorePreamble = &stellar.RestorePreamble{
			TransactionData: res.RestorePreamble.TransactionDataXDR,
			MinResourceFee:  res.RestorePreamble.MinResourceFee,
		}
	}
	return out, nil
}

// GetAccount implements stellar.LedgerClient by reading the account
// ledger entry.
func (c *Client) GetAccount(ctx context.Context, address string) (*stellar.Account, error) {
	id, err := stellar.ParseAccountID(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	ledgerKey, err := id.LedgerKey()
	if err != nil {
		return nil, fmt.Errorf("build ledger key: %w", err)
	}
	key, err := xdr.MarshalBase64(ledgerKey)
	if err != nil {
		return nil, fmt.Errorf("encode ledger key: %w", err)
	}

	res, err := call[protocol.GetLedgerEntriesResponse](ctx, c, protocol.GetLedgerEntriesMethodName,
		protocol.GetLedgerEntriesRequest{Keys: []string{key}})
	if err != nil {
		return nil, err
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", x402.ErrAccountNotFound, address)
	}

	var data xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(res.Entries[0].DataXDR, &data); err != nil {
		return nil, fmt.Errorf("decode account entry: %w", err)
	}
	if data.Type != xdr.LedgerEntryTypeAccount || data.Account == nil {
		return nil, fmt.Errorf("decode account entry: unexpected type %s", data.Type)
	}
	return &stellar.Account{Address: address, Sequence: int64(data.Account.SeqNum)}, nil
}

// SendTransaction implements stellar.LedgerClient.
func (c *Client) SendTransaction(ctx context.Context, txXDR string) (*stellar.SendResult, error) {
	res, err := call[protocol.SendTransactionResponse](ctx, c, protocol.SendTransactionMethodName,
		protocol.SendTransactionRequest{Transaction: txXDR})
	if err != nil {
		return nil, err
	}
	return &stellar.SendResult{
		Status:         stellar.SendStatus(res.Status),
		Hash:           res.Hash,
		ErrorResultXDR: res.ErrorResultXDR,
	}, nil
}

// GetTransaction implements stellar.LedgerClient.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*stellar.TransactionStatus, error) {
	res, err := call[protocol.GetTransactionResponse](ctx, c, protocol.GetTransactionMethodName,
		protocol.GetTransactionRequest{Hash: hash})
	if err != nil {
		return nil, err
	}
	return &stellar.TransactionStatus{
		Status:    stellar.TxStatus(res.Status),
		Ledger:    res.Ledger,
		ResultXDR: res.ResultXDR,
	}, nil
}
