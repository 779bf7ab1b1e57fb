package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	walletgate "github.com/walletgate/walletgate-go"
	"github.com/walletgate/walletgate-go/audit"
	"github.com/walletgate/walletgate-go/middleware/ginmw"
)

// nonceRequest is the body of POST /identity/nonce. The address shape is
// validated at the boundary, before any stateful work.
type nonceRequest struct {
	Address string `json:"address" binding:"required"`
}

func (s *Server) handleNonce(c *gin.Context) {
	var req nonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !walletgate.ValidAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address must be 0x followed by 40 hex characters"})
		return
	}

	value, err := s.client.Nonces().Issue(c.Request.Context(), req.Address)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.metrics.RecordNonceIssue()
	s.emit(audit.Event{
		Action:  audit.ActionNonceIssue,
		Address: walletgate.CanonicalAddress(req.Address),
		Result:  audit.ResultSuccess,
	})
	c.JSON(http.StatusOK, gin.H{"nonce": value})
}

// verifyRequest is the body of POST /identity/verify.
type verifyRequest struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()

	address, err := s.client.Identity().Verify(ctx, req.Message, req.Signature)
	if err != nil {
		reason := "authentication_failed"
		if pe, ok := walletgate.AsProtocolError(err); ok {
			reason = pe.Reason
		}
		s.metrics.RecordAuthFailure(reason)
		s.emit(audit.Event{
			Action: audit.ActionIdentityVerify,
			Result: audit.ResultFailure,
			Error:  reason,
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "authentication failed",
			"details": reason,
		})
		return
	}

	// First verification creates the account with the default role; the
	// role never changes afterwards.
	u, err := s.client.Users().UpsertByAddress(ctx, address)
	if err != nil {
		s.fail(c, err)
		return
	}

	token, err := s.client.Credentials().Issue(u.Address, u.Role, u.ID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.emit(audit.Event{
		Action:  audit.ActionIdentityVerify,
		Address: address,
		Result:  audit.ResultSuccess,
	})
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":      u.ID,
			"address": u.Address,
			"role":    u.Role,
		},
	})
}

func (s *Server) handleListPayments(c *gin.Context) {
	filter := walletgate.RecordFilter{
		Resource: c.Query("resource"),
		Payer:    c.Query("payer"),
	}
	records, total, err := s.client.Ledger().List(c.Request.Context(), filter, walletgate.ListOptions{
		Page:     intQuery(c, "page", 1),
		PageSize: intQuery(c, "page_size", 50),
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]gin.H, 0, len(records))
	for _, r := range records {
		out = append(out, gin.H{
			"id":        r.ID,
			"resource":  r.Resource,
			"payer":     r.Payer,
			"payTo":     r.PayTo,
			"value":     r.Value,
			"network":   r.Network,
			"event":     r.Event,
			"txHash":    r.TxHash,
			"error":     r.Error,
			"createdAt": r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"payments": out, "total": total})
}

// handlePricedResource serves a paid resource after the Payment middleware
// has verified and settled. The settlement outlives the response: a client
// disconnect after this point does not roll anything back. Audit and
// metrics for the payment itself are emitted by the middleware.
func (s *Server) handlePricedResource(c *gin.Context) {
	settled := ginmw.GetPayment(c)
	if settled == nil {
		s.fail(c, walletgate.NewProtocolError(walletgate.CodeInternal, "",
			"priced route reached without settlement", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"resource": c.Request.URL.Path,
		"data":     gin.H{"granted": true},
		"payment": gin.H{
			"txHash":  settled.TxHash,
			"from":    settled.Payer,
			"to":      settled.PayTo,
			"value":   settled.Value,
			"network": settled.Network,
		},
	})
}

// fail reports an error without leaking internal detail to the client.
func (s *Server) fail(c *gin.Context, err error) {
	status := walletgate.HTTPStatus(err)
	msg := "internal error"
	if pe, ok := walletgate.AsProtocolError(err); ok && status < http.StatusInternalServerError {
		msg = pe.Message
	}
	if status >= http.StatusInternalServerError {
		s.client.Logger().Error("request failed", "err", err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func intQuery(c *gin.Context, key string, def int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}
