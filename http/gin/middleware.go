// Package gin provides the Gin facilitator server and a Gin adapter of the
// resource-server payment middleware.
package gin

import (
	"context"

	"github.com/gin-gonic/gin"

	x402 "github.com/nacorid/x402-stellar"
	x402http "github.com/nacorid/x402-stellar/http"
	"github.com/nacorid/x402-stellar/http/internal/helpers"
)

// Config is an alias for x402http.Config for convenience.
type Config = x402http.Config

// PaymentContextKey is the gin context key for storing verified payment information.
const PaymentContextKey = "x402_payment"

// NewX402Middleware creates a payment middleware for Gin.
//
// Unlike the net/http middleware it settles before calling c.Next, since a
// Gin handler writes its response through the shared writer.
//
//	r := gin.Default()
//	r.Use(gin.NewX402Middleware(gin.Config{
//	    FacilitatorURL: "http://localhost:8402",
//	    PaymentRequirements: []x402.PaymentRequirements{{
//	        Scheme:            "exact",
//	        Network:           x402.NetworkStellarTestnet,
//	        MaxAmountRequired: "1000000",
//	        Asset:             x402.StellarTestnet.USDCAddress,
//	        PayTo:             "GC...",
//	        MaxTimeoutSeconds: 60,
//	    }},
//	}))
func NewX402Middleware(config Config) gin.HandlerFunc {
	gate := x402http.NewGate(config)

	return func(c *gin.Context) {
		verified, rej := gate.Verify(c.Request)
		if rej != nil {
			c.AbortWithStatusJSON(rej.Status, rej.Body)
			return
		}

		settlement, rej := gate.Settle(c.Request.Context(), verified)
		if rej != nil {
			c.AbortWithStatusJSON(rej.Status, rej.Body)
			return
		}
		if settlement != nil {
			// The payment already settled; a missing header is not fatal.
			_ = helpers.AddPaymentResponseHeader(c.Writer, settlement)
		}

		c.Set(PaymentContextKey, verified.Response)
		ctx := context.WithValue(c.Request.Context(), x402http.PaymentContextKey, verified.Response)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetPaymentFromContext extracts the verified payment information from the Gin context.
// Returns nil if no payment was verified or the context does not contain payment info.
func GetPaymentFromContext(c *gin.Context) *x402.VerifyResponse {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil
	}
	resp, ok := value.(*x402.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}
