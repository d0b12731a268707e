package gin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	x402 "github.com/nacorid/x402-stellar"
	"github.com/nacorid/x402-stellar/facilitator"
)

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// ServerConfig configures the facilitator server.
type ServerConfig struct {
	// Facilitator serves the calls, usually a facilitator.Router.
	Facilitator facilitator.Interface

	// Timeouts bound verify and settle calls. Zero values use
	// x402.DefaultTimeouts.
	Timeouts x402.TimeoutConfig

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type server struct {
	impl     facilitator.Interface
	timeouts x402.TimeoutConfig
	logger   *slog.Logger
}

// NewServer returns a Gin engine exposing POST /verify, POST /settle,
// GET /supported and GET /healthz.
//
// Verify and settle answer 200 with the structured response whatever the
// outcome. 400 means the body was not a request at all.
func NewServer(config ServerConfig) *gin.Engine {
	s := &server{impl: config.Facilitator, timeouts: config.Timeouts, logger: config.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.timeouts.VerifyTimeout <= 0 {
		s.timeouts.VerifyTimeout = x402.DefaultTimeouts.VerifyTimeout
	}
	if s.timeouts.SettleTimeout <= 0 {
		s.timeouts.SettleTimeout = x402.DefaultTimeouts.SettleTimeout
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())
	r.POST("/verify", s.verify)
	r.POST("/settle", s.settle)
	r.GET("/supported", s.supported)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

// requestID reuses a well-formed incoming X-Request-ID or issues a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.GetString(RequestIDHeader),
		)
	}
}

// bind decodes a verify or settle body. Both share one shape.
func (s *server) bind(c *gin.Context) (facilitator.VerifyRequest, bool) {
	var req facilitator.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Info("rejecting malformed request", "path", c.Request.URL.Path, "error", err,
			"request_id", c.GetString(RequestIDHeader))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return req, false
	}
	return req, true
}

func (s *server) verify(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	if req.X402Version != x402.X402Version {
		c.JSON(http.StatusOK, x402.VerifyResponse{InvalidReason: x402.ReasonInvalidVersion})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeouts.VerifyTimeout)
	defer cancel()

	resp, err := s.impl.Verify(ctx, req.PaymentPayload, req.PaymentRequirements)
	if err != nil || resp == nil {
		s.logger.Error("verify failed", "error", err, "network", req.PaymentRequirements.Network,
			"request_id", c.GetString(RequestIDHeader))
		resp = &x402.VerifyResponse{InvalidReason: x402.ReasonUnexpectedVerify}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) settle(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	network := req.PaymentRequirements.Network
	if req.X402Version != x402.X402Version {
		c.JSON(http.StatusOK, x402.SettleResponse{ErrorReason: x402.ReasonInvalidVersion, Network: network})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeouts.SettleTimeout)
	defer cancel()

	resp, err := s.impl.Settle(ctx, req.PaymentPayload, req.PaymentRequirements)
	if err != nil || resp == nil {
		s.logger.Error("settle failed", "error", err, "network", network,
			"request_id", c.GetString(RequestIDHeader))
		resp = &x402.SettleResponse{ErrorReason: x402.ReasonUnexpectedSettle, Network: network}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) supported(c *gin.Context) {
	resp, err := s.impl.Supported(c.Request.Context())
	if err != nil {
		s.logger.Error("supported failed", "error", err, "request_id", c.GetString(RequestIDHeader))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "supported kinds unavailable"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
