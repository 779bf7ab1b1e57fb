package walletgate

import "context"

// NonceStore issues and consumes single-use challenge nonces keyed by
// wallet address.
// Implementations: nonce/ (in-memory), fake/ (testing).
type NonceStore interface {
	// Issue generates a fresh nonce for the address, superseding any
	// prior unconsumed nonce.
	Issue(ctx context.Context, address string) (string, error)

	// Consume atomically marks the nonce consumed. It fails if the stored
	// nonce does not match, has expired, or was already consumed.
	Consume(ctx context.Context, address, value string) error
}

// IdentityVerifier validates a signed sign-in message and recovers the
// signer's wallet address.
type IdentityVerifier interface {
	// Verify checks the message and signature and returns the canonical
	// lowercase address on success, consuming the bound nonce.
	Verify(ctx context.Context, message, signature string) (string, error)
}

// CredentialService mints and decodes stateless access credentials.
type CredentialService interface {
	// Issue returns a signed credential bound to a verified address.
	Issue(address, role, subjectID string) (string, error)

	// Decode validates the credential signature and expiry and returns
	// the embedded claims.
	Decode(token string) (*Claims, error)
}

// PaymentVerifier validates a transport-encoded payment authorization
// against a requirement without settling it.
type PaymentVerifier interface {
	Verify(ctx context.Context, rawHeader string, req PaymentRequirements) (*VerifyResult, *PaymentPayload, error)
}

// PaymentSettler executes a verified authorization against the settlement
// path, enforcing at-most-once settlement per authorization nonce.
type PaymentSettler interface {
	Settle(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (*SettleResult, error)
}

// SettlementPath is the external system that actually moves value once an
// authorization is verified (on-chain execution or a facilitator service).
// Implementations: payment/ (facilitator HTTP client), fake/ (testing).
type SettlementPath interface {
	Submit(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (txHash string, err error)
}

// Ledger is the append-only record of every verify/settle attempt. It is
// both the audit trail and the idempotency anchor: Claim is the atomic
// check-and-insert settlement gates on.
type Ledger interface {
	// Claim inserts a `requested` record for the nonce if and only if no
	// record for that nonce exists. Returns false if already claimed.
	Claim(ctx context.Context, rec PaymentRecord) (bool, error)

	// Append inserts a record without claiming semantics.
	Append(ctx context.Context, rec PaymentRecord) error

	// Resolve moves the claimed record for the nonce to its terminal
	// event, setting txHash or error.
	Resolve(ctx context.Context, nonce string, event PaymentEvent, txHash, errMsg string) error

	// Get returns the record for an authorization nonce, if any.
	Get(ctx context.Context, nonce string) (*PaymentRecord, bool, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, f RecordFilter, opts ListOptions) ([]PaymentRecord, int, error)
}

// UserRepository persists wallet-identified accounts.
type UserRepository interface {
	// UpsertByAddress returns the existing user for the address or
	// creates one with the default role.
	UpsertByAddress(ctx context.Context, address string) (*User, error)

	// GetByAddress returns the user for an address.
	GetByAddress(ctx context.Context, address string) (*User, error)
}
