package walletgate

import "time"

// Claims represents the claims embedded in an issued access credential.
type Claims struct {
	Subject   string
	Address   string // canonical lowercase 0x-prefixed
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// User represents a wallet-identified account.
type User struct {
	ID        string
	Address   string // canonical lowercase 0x-prefixed
	Role      string
	CreatedAt time.Time
}

// Nonce is a single-use challenge value issued to a wallet address.
type Nonce struct {
	Address   string
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// TypedDataDomain identifies the EIP-712 signing domain shared by the
// requirement builder and the payment verifier.
type TypedDataDomain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// PaymentRequirements describes what payment a priced resource demands.
// Shape follows the x402 "exact" scheme.
type PaymentRequirements struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"` // atomic units
	Resource          string          `json:"resource"`
	Description       string          `json:"description,omitempty"`
	MimeType          string          `json:"mimeType,omitempty"`
	PayTo             string          `json:"payTo"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	Asset             string          `json:"asset"`         // token contract address
	AssetDecimals     int             `json:"assetDecimals"` // token decimal precision
	Extra             TypedDataDomain `json:"extra"`
}

// PaymentAuthorization contains the EIP-3009 transferWithAuthorization
// parameters signed by the payer.
type PaymentAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // uint256 as decimal string
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"` // 32-byte hex
}

// PaymentPayload is the decoded contents of a payment header.
type PaymentPayload struct {
	X402Version   int                   `json:"x402Version"`
	Scheme        string                `json:"scheme"`
	Network       string                `json:"network"`
	Signature     string                `json:"signature"`
	Authorization *PaymentAuthorization `json:"authorization"`
}

// VerifyResult is returned by a successful payment verification.
type VerifyResult struct {
	Payer string
	Value string
}

// SettleResult is returned by a successful settlement.
type SettleResult struct {
	TxHash  string
	Network string
	Payer   string
	PayTo   string
	Value   string
}

// PaymentEvent is the lifecycle state recorded for a payment attempt.
type PaymentEvent string

const (
	EventRequested PaymentEvent = "requested"
	EventSettled   PaymentEvent = "settled"
	EventFailed    PaymentEvent = "failed"
)

// PaymentRecord is one append-only ledger entry for a verify/settle attempt.
type PaymentRecord struct {
	ID        string
	Resource  string
	Payer     string
	PayTo     string
	Value     string
	Network   string
	Nonce     string // authorization nonce, the idempotency key
	Event     PaymentEvent
	TxHash    string
	Error     string
	CreatedAt time.Time
}

// Terminal reports whether the record has reached a final outcome.
func (r PaymentRecord) Terminal() bool {
	return r.Event == EventSettled || r.Event == EventFailed
}

// RecordFilter narrows ledger reads.
type RecordFilter struct {
	Resource string
	Payer    string
	Event    PaymentEvent
}

// ListOptions holds pagination parameters for ledger reads.
type ListOptions struct {
	Page     int
	PageSize int
}
