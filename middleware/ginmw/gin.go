// Package ginmw provides Gin HTTP middleware for the protocol.
//
// All middleware functions accept a *walletgate.Client and use its
// interfaces (CredentialService, PaymentVerifier, PaymentSettler, Ledger) —
// no direct dependency on any specific backend.
package ginmw

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	walletgate "github.com/walletgate/walletgate-go"
	"github.com/walletgate/walletgate-go/audit"
	"github.com/walletgate/walletgate-go/metrics"
	"github.com/walletgate/walletgate-go/payment"
)

// Context keys for storing protocol data in gin.Context.
const (
	KeyUserID  = "walletgate_user_id"
	KeyAddress = "walletgate_address"
	KeyRole    = "walletgate_role"
	KeyClaims  = "walletgate_claims"
	KeyPayment = "walletgate_payment"
)

// HeaderPayment carries the encoded signed payment authorization.
const HeaderPayment = "X-Payment"

// HeaderPaymentResponse carries the encoded settlement result.
const HeaderPaymentResponse = "X-Payment-Response"

// AuthOption configures Auth middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedPaths map[string]bool
}

// WithExcludedPaths sets paths that skip authentication (e.g. health checks).
func WithExcludedPaths(paths ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// Auth returns Gin middleware that verifies bearer credentials via
// client.Credentials(). On success, it stores claims in the context
// (retrievable via GetAddress, GetClaims, etc.).
// Responds with 401 if the credential is missing, invalid, or expired.
func Auth(client *walletgate.Client, opts ...AuthOption) gin.HandlerFunc {
	cfg := &authConfig{excludedPaths: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		tokenStr := extractBearerToken(c.Request)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
			return
		}

		creds := client.Credentials()
		if creds == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "credential service not configured"})
			return
		}

		claims, err := creds.Decode(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}

		c.Set(KeyClaims, claims)
		c.Set(KeyUserID, claims.Subject)
		c.Set(KeyAddress, claims.Address)
		c.Set(KeyRole, claims.Role)

		c.Next()
	}
}

// PricedRoute describes one resource gated behind payment.
type PricedRoute struct {
	// Price in atomic units of the configured asset.
	Price string

	// Description shown in the payment challenge.
	Description string
}

// PaymentOption configures Payment middleware behavior.
type PaymentOption func(*paymentConfig)

type paymentConfig struct {
	skipPaths map[string]bool
	metrics   *metrics.Metrics
	auditor   *audit.Logger
}

// WithSkipPaths sets paths that bypass payment checks entirely.
func WithSkipPaths(paths ...string) PaymentOption {
	return func(cfg *paymentConfig) {
		for _, p := range paths {
			cfg.skipPaths[p] = true
		}
	}
}

// WithMetrics sets the recorder for verification and settlement metrics.
func WithMetrics(m *metrics.Metrics) PaymentOption {
	return func(cfg *paymentConfig) {
		if m != nil {
			cfg.metrics = m
		}
	}
}

// WithAuditLogger sets the sink for payment_verify and payment_settle
// audit events.
func WithAuditLogger(l *audit.Logger) PaymentOption {
	return func(cfg *paymentConfig) { cfg.auditor = l }
}

func (cfg *paymentConfig) emit(e audit.Event) {
	if cfg.auditor != nil {
		cfg.auditor.Log(e)
	}
}

// Payment returns Gin middleware gating routes behind the payment protocol.
//
// Absent header: responds 402 with the payment requirements. Header present:
// runs verify then settle; every failed attempt is recorded in the ledger
// with a "verify:" or "settle:" reason prefix before the 402 is returned.
// On success the settlement result is stored in the context and echoed in
// the X-Payment-Response header.
func Payment(client *walletgate.Client, routes map[string]PricedRoute, opts ...PaymentOption) gin.HandlerFunc {
	cfg := &paymentConfig{
		skipPaths: make(map[string]bool),
		metrics:   metrics.New(false),
	}
	for _, o := range opts {
		o(cfg)
	}
	builder := payment.NewRequirementsBuilder(client.Config())

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if cfg.skipPaths[path] {
			c.Next()
			return
		}
		route, priced := routes[path]
		if !priced {
			c.Next()
			return
		}

		req := builder.Build(path, route.Price, route.Description)

		rawHeader := c.GetHeader(HeaderPayment)
		if rawHeader == "" {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":               "Payment Required",
				"paymentRequirements": req,
			})
			return
		}

		ctx := c.Request.Context()

		result, payload, err := client.Verifier().Verify(ctx, rawHeader, req)
		if err != nil {
			cfg.metrics.RecordPaymentVerification("failure", reasonOf(err))
			cfg.emit(audit.Event{
				Action:   audit.ActionPaymentVerify,
				Resource: req.Resource,
				Result:   audit.ResultFailure,
				Address:  payerOf(payload),
				Error:    reasonOf(err),
			})
			recordFailure(c, client, req, payload, "verify", err)
			abortPayment(c, req, err)
			return
		}
		cfg.metrics.RecordPaymentVerification("success", "")
		cfg.emit(audit.Event{
			Action:   audit.ActionPaymentVerify,
			Resource: req.Resource,
			Result:   audit.ResultSuccess,
			Address:  result.Payer,
			Value:    result.Value,
		})

		settleStart := time.Now()
		settled, err := client.Settler().Settle(ctx, payload, req)
		if err != nil {
			cfg.metrics.RecordSettlement("failure", time.Since(settleStart).Seconds())
			cfg.emit(audit.Event{
				Action:   audit.ActionPaymentSettle,
				Resource: req.Resource,
				Result:   audit.ResultFailure,
				Address:  payerOf(payload),
				Error:    reasonOf(err),
			})
			// The settler resolves claimed records itself; only attempts
			// that never reached a claim are recorded here.
			if pe, ok := walletgate.AsProtocolError(err); ok && pe.Code != walletgate.CodeSettlementFailed {
				recordFailure(c, client, req, payload, "settle", err)
			}
			abortPayment(c, req, err)
			return
		}
		cfg.metrics.RecordSettlement("success", time.Since(settleStart).Seconds())
		cfg.emit(audit.Event{
			Action:   audit.ActionPaymentSettle,
			Resource: req.Resource,
			Result:   audit.ResultSuccess,
			Address:  settled.Payer,
			Value:    settled.Value,
			TxHash:   settled.TxHash,
		})

		c.Set(KeyPayment, settled)
		c.Request = c.Request.WithContext(walletgate.WithPayment(ctx, settled))
		setPaymentResponseHeader(c, settled)

		client.Logger().Info("payment settled",
			"resource", req.Resource,
			"payer", result.Payer,
			"value", result.Value,
			"tx", settled.TxHash,
		)

		c.Next()
	}
}

// recordFailure appends a failed attempt to the ledger with a stage-prefixed
// reason. Recording failure must never mask the protocol error.
func recordFailure(c *gin.Context, client *walletgate.Client, req walletgate.PaymentRequirements, payload *walletgate.PaymentPayload, stage string, cause error) {
	rec := walletgate.PaymentRecord{
		Resource: req.Resource,
		PayTo:    req.PayTo,
		Network:  req.Network,
		Event:    walletgate.EventFailed,
		Error:    stage + ": " + reasonOf(cause),
	}
	if payload != nil && payload.Authorization != nil {
		rec.Payer = walletgate.CanonicalAddress(payload.Authorization.From)
		rec.Value = payload.Authorization.Value
		rec.Nonce = payload.Authorization.Nonce
	}
	if err := client.Ledger().Append(c.Request.Context(), rec); err != nil {
		client.Logger().Warn("failed to record payment failure", "err", err)
	}
}

func reasonOf(err error) string {
	if pe, ok := walletgate.AsProtocolError(err); ok {
		return pe.Reason
	}
	return err.Error()
}

func payerOf(payload *walletgate.PaymentPayload) string {
	if payload == nil || payload.Authorization == nil {
		return ""
	}
	return walletgate.CanonicalAddress(payload.Authorization.From)
}

func abortPayment(c *gin.Context, req walletgate.PaymentRequirements, err error) {
	details := "payment rejected"
	if pe, ok := walletgate.AsProtocolError(err); ok {
		details = pe.Message
	}
	c.AbortWithStatusJSON(walletgate.HTTPStatus(err), gin.H{
		"error":               "Payment Required",
		"details":             details,
		"paymentRequirements": req,
	})
}

func setPaymentResponseHeader(c *gin.Context, settled *walletgate.SettleResult) {
	raw, err := json.Marshal(gin.H{
		"success":     true,
		"transaction": settled.TxHash,
		"network":     settled.Network,
		"payer":       settled.Payer,
	})
	if err != nil {
		return
	}
	c.Header(HeaderPaymentResponse, base64.StdEncoding.EncodeToString(raw))
}

// GetClaims returns the credential claims stored by Auth.
func GetClaims(c *gin.Context) *walletgate.Claims {
	v, ok := c.Get(KeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*walletgate.Claims)
	return claims
}

// GetUserID returns the user ID stored by Auth.
func GetUserID(c *gin.Context) string {
	return c.GetString(KeyUserID)
}

// GetAddress returns the wallet address stored by Auth.
func GetAddress(c *gin.Context) string {
	return c.GetString(KeyAddress)
}

// GetRole returns the role stored by Auth.
func GetRole(c *gin.Context) string {
	return c.GetString(KeyRole)
}

// GetPayment returns the settlement result stored by Payment.
func GetPayment(c *gin.Context) *walletgate.SettleResult {
	v, ok := c.Get(KeyPayment)
	if !ok {
		return nil
	}
	settled, _ := v.(*walletgate.SettleResult)
	return settled
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
