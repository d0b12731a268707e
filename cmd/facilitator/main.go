// Command facilitator runs an x402 facilitator for the exact scheme on a
// Stellar network. EVM and SVM payments can be forwarded to an upstream
// facilitator.
//
// Every flag can be set through an X402_* environment variable named after
// it, e.g. -rpc-url through X402_RPC_URL. Flags given on the command line
// win. The facilitator account secret is read from X402_FACILITATOR_SECRET
// only.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	x402 "github.com/nacorid/x402-stellar"
	"github.com/nacorid/x402-stellar/facilitator"
	x402http "github.com/nacorid/x402-stellar/http"
	ginx402 "github.com/nacorid/x402-stellar/http/gin"
	"github.com/nacorid/x402-stellar/internal/sorobanrpc"
	signers "github.com/nacorid/x402-stellar/signers/stellar"
	"github.com/nacorid/x402-stellar/stellar"
)

// SecretEnv holds the facilitator account secret seed.
const SecretEnv = "X402_FACILITATOR_SECRET"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Getenv, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "facilitator:", err)
		os.Exit(1)
	}
}

type config struct {
	addr           string
	network        string
	rpcURL         string
	secret         string
	pollInterval   time.Duration
	maxFee         uint
	verifyTimeout  time.Duration
	settleTimeout  time.Duration
	evmUpstream    string
	svmUpstream    string
	upstreamAuth   string
	logLevel       string
	verbose        bool
	shutdownPeriod time.Duration
}

func parseConfig(args []string, getenv func(string) string, output io.Writer) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("facilitator", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.addr, "addr", ":8402", "Listen address")
	fs.StringVar(&cfg.network, "network", x402.NetworkStellarTestnet, "Stellar network (stellar or stellar-testnet)")
	fs.StringVar(&cfg.rpcURL, "rpc-url", "", "Soroban RPC URL (default: public endpoint of the network)")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", x402.DefaultPollInterval, "Delay between transaction status queries")
	fs.UintVar(&cfg.maxFee, "max-fee", 0, "Largest total fee in stroops the facilitator will sign for (0: no cap)")
	fs.DurationVar(&cfg.verifyTimeout, "verify-timeout", x402.DefaultTimeouts.VerifyTimeout, "Verify deadline")
	fs.DurationVar(&cfg.settleTimeout, "settle-timeout", x402.DefaultTimeouts.SettleTimeout, "Settle deadline, covering confirmation polling")
	fs.StringVar(&cfg.evmUpstream, "evm-facilitator", "", "Upstream facilitator URL for EVM networks")
	fs.StringVar(&cfg.svmUpstream, "svm-facilitator", "", "Upstream facilitator URL for Solana networks")
	fs.StringVar(&cfg.upstreamAuth, "upstream-authorization", "", "Authorization header sent to upstream facilitators")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Human-readable debug logging")
	fs.DurationVar(&cfg.shutdownPeriod, "shutdown-timeout", 30*time.Second, "Grace period for in-flight settlements on shutdown")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := applyEnv(fs, getenv); err != nil {
		return nil, err
	}

	cfg.secret = getenv(SecretEnv)
	if cfg.secret == "" {
		return nil, fmt.Errorf("%s is required", SecretEnv)
	}
	if _, err := x402.StellarPassphrase(cfg.network); err != nil {
		return nil, err
	}
	if cfg.rpcURL == "" {
		url, err := sorobanrpc.DefaultURL(cfg.network)
		if err != nil {
			return nil, err
		}
		cfg.rpcURL = url
	}
	if cfg.maxFee > 1<<32-1 {
		return nil, fmt.Errorf("max-fee %d does not fit a transaction fee", cfg.maxFee)
	}
	if err := cfg.timeouts().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv sets every flag not given on the command line from its X402_*
// variable.
func applyEnv(fs *flag.FlagSet, getenv func(string) string) error {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	var err error
	fs.VisitAll(func(f *flag.Flag) {
		if err != nil || explicit[f.Name] {
			return
		}
		name := envName(f.Name)
		if v := getenv(name); v != "" {
			if serr := fs.Set(f.Name, v); serr != nil {
				err = fmt.Errorf("%s: %w", name, serr)
			}
		}
	})
	return err
}

func envName(flagName string) string {
	return "X402_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func (c *config) timeouts() x402.TimeoutConfig {
	return x402.DefaultTimeouts.
		WithVerifyTimeout(c.verifyTimeout).
		WithSettleTimeout(c.settleTimeout).
		WithRequestTimeout(max(c.settleTimeout, x402.DefaultTimeouts.RequestTimeout))
}

func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) error {
	cfg, err := parseConfig(args, getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, flush, err := newLogger(cfg.logLevel, cfg.verbose)
	if err != nil {
		return err
	}
	defer flush()
	slog.SetDefault(logger)

	router, err := newRouter(cfg, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: cfg.addr,
		Handler: ginx402.NewServer(ginx402.ServerConfig{
			Facilitator: router,
			Timeouts:    cfg.timeouts(),
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("facilitator listening", "addr", cfg.addr, "network", cfg.network, "rpc_url", cfg.rpcURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace_period", cfg.shutdownPeriod)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newRouter(cfg *config, logger *slog.Logger) (*facilitator.Router, error) {
	ledger, err := sorobanrpc.New(cfg.rpcURL, sorobanrpc.WithLogger(logger), sorobanrpc.WithRetry(2, 250*time.Millisecond))
	if err != nil {
		return nil, err
	}
	var signerOpts []signers.Option
	if cfg.maxFee > 0 {
		signerOpts = append(signerOpts, signers.WithMaxFee(uint32(cfg.maxFee)))
	}
	signer, err := signers.NewSigner(cfg.network, cfg.secret, signerOpts...)
	if err != nil {
		return nil, err
	}

	scheme := stellar.NewScheme(stellar.WithLogger(logger), stellar.WithPollInterval(cfg.pollInterval))
	if err := scheme.AddNetwork(cfg.network, ledger, signer); err != nil {
		return nil, err
	}
	logger.Info("facilitator account", "address", signer.Address(), "network", cfg.network)

	opts := []facilitator.RouterOption{
		facilitator.WithStellar(scheme),
		facilitator.WithRouterLogger(logger),
		facilitator.WithEventCallback(func(ev x402.PaymentEvent) {
			if ev.Type == x402.PaymentEventAttempt {
				return
			}
			logger.Info("payment event",
				"method", ev.Method,
				"outcome", string(ev.Type),
				"network", ev.Network,
				"payer", ev.Payer,
				"transaction", ev.Transaction,
				"reason", ev.Reason.String(),
				"duration", ev.Duration,
			)
		}),
	}
	if cfg.evmUpstream != "" {
		opts = append(opts, facilitator.WithEVM(upstream(cfg, cfg.evmUpstream)))
		logger.Info("forwarding evm payments", "upstream", cfg.evmUpstream)
	}
	if cfg.svmUpstream != "" {
		opts = append(opts, facilitator.WithSVM(upstream(cfg, cfg.svmUpstream)))
		logger.Info("forwarding svm payments", "upstream", cfg.svmUpstream)
	}
	return facilitator.NewRouter(opts...), nil
}

func upstream(cfg *config, url string) *x402http.FacilitatorClient {
	timeouts := cfg.timeouts()
	return &x402http.FacilitatorClient{
		BaseURL:       url,
		Client:        &http.Client{Timeout: timeouts.RequestTimeout},
		Timeouts:      timeouts,
		MaxRetries:    2,
		Authorization: cfg.upstreamAuth,
	}
}
