package walletgate

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes, one per failure class the protocol can surface.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodePaymentRequired      = "PAYMENT_REQUIRED"
	CodeVerificationFailed   = "PAYMENT_VERIFICATION_FAILED"
	CodeSettlementFailed     = "PAYMENT_SETTLEMENT_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL"
)

// Identity verification subreasons.
const (
	ReasonMalformedMessage  = "malformed_message"
	ReasonDomainMismatch    = "domain_mismatch"
	ReasonMessageExpired    = "message_expired"
	ReasonSignatureMismatch = "signature_mismatch"
	ReasonInvalidNonce      = "invalid_nonce"
)

// Payment verification subreasons.
const (
	ReasonMalformedPayment      = "malformed_payment"
	ReasonSignatureInvalid      = "signature_invalid"
	ReasonRecipientMismatch     = "recipient_mismatch"
	ReasonInsufficientValue     = "insufficient_value"
	ReasonNotYetValid           = "not_yet_valid"
	ReasonAuthorizationExpired  = "authorization_expired"
	ReasonReplayedAuthorization = "replayed_authorization"
)

// Settlement subreasons.
const (
	ReasonSettlementTimeout  = "settlement_timeout"
	ReasonSettlementRejected = "settlement_rejected"
	ReasonAlreadySettling    = "already_settling"
)

// ProtocolError is the typed error surfaced by verifiers and settlers.
// Code selects the HTTP status; Reason is the machine-readable subreason.
type ProtocolError struct {
	Code    string
	Reason  string
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// NewProtocolError creates a ProtocolError.
func NewProtocolError(code, reason, message string, cause error) *ProtocolError {
	return &ProtocolError{Code: code, Reason: reason, Message: message, Cause: cause}
}

// AsProtocolError extracts a ProtocolError from an error chain.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// HTTPStatus maps an error to its HTTP response status. Unknown errors map
// to 500 so internal detail never leaks with a misleading status.
func HTTPStatus(err error) int {
	pe, ok := AsProtocolError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch pe.Code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeAuthenticationFailed:
		return http.StatusUnauthorized
	case CodePaymentRequired, CodeVerificationFailed, CodeSettlementFailed:
		return http.StatusPaymentRequired
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
