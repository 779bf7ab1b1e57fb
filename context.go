package walletgate

import "context"

type ctxKey string

const (
	ctxKeyAddress ctxKey = "walletgate_address"
	ctxKeyUserID  ctxKey = "walletgate_user_id"
	ctxKeyRole    ctxKey = "walletgate_role"
	ctxKeyClaims  ctxKey = "walletgate_claims"
	ctxKeyPayment ctxKey = "walletgate_payment"
)

// WithAddress stores the verified wallet address in the context.
func WithAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, ctxKeyAddress, address)
}

// AddressFromContext extracts the verified wallet address from the context.
func AddressFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyAddress).(string)
	return v
}

// WithUserID stores the authenticated user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserIDFromContext extracts the authenticated user ID from the context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

// WithRole stores the user role in the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

// RoleFromContext extracts the user role from the context.
func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRole).(string)
	return v
}

// WithClaims stores the full credential claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFromContext extracts the full credential claims from the context.
func ClaimsFromContext(ctx context.Context) *Claims {
	v, _ := ctx.Value(ctxKeyClaims).(*Claims)
	return v
}

// WithPayment stores the settled payment result in the context.
func WithPayment(ctx context.Context, result *SettleResult) context.Context {
	return context.WithValue(ctx, ctxKeyPayment, result)
}

// PaymentFromContext extracts the settled payment result from the context.
func PaymentFromContext(ctx context.Context) *SettleResult {
	v, _ := ctx.Value(ctxKeyPayment).(*SettleResult)
	return v
}
