// Package grpcmw provides gRPC interceptors for the protocol.
//
// Use this package to gate gRPC services with the same credentials and
// payment authorizations as the HTTP surface. Credentials travel in the
// standard authorization metadata key; payment authorizations travel in
// the x-payment metadata key, encoded exactly like the HTTP header.
//
// All interceptors accept a *walletgate.Client and use its interfaces —
// no direct dependency on any specific backend.
package grpcmw

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	walletgate "github.com/walletgate/walletgate-go"
	"github.com/walletgate/walletgate-go/payment"
)

// MetadataPayment is the incoming metadata key carrying the encoded signed
// payment authorization.
const MetadataPayment = "x-payment"

// AuthOption configures auth interceptor behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedMethods map[string]bool
}

// WithExcludedMethods sets gRPC methods that skip authentication.
// Methods should be fully qualified (e.g. "/package.Service/Method").
func WithExcludedMethods(methods ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, m := range methods {
			cfg.excludedMethods[m] = true
		}
	}
}

// UnaryAuth returns a gRPC unary server interceptor that verifies bearer
// credentials. On success, it stores claims in the context via
// walletgate.WithClaims, walletgate.WithAddress, etc.
func UnaryAuth(client *walletgate.Client, opts ...AuthOption) grpc.UnaryServerInterceptor {
	cfg := &authConfig{excludedMethods: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if cfg.excludedMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		ctx, err := authenticate(ctx, client)
		if err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

// StreamAuth returns a gRPC stream server interceptor that verifies bearer
// credentials.
func StreamAuth(client *walletgate.Client, opts ...AuthOption) grpc.StreamServerInterceptor {
	cfg := &authConfig{excludedMethods: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.excludedMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		ctx, err := authenticate(ss.Context(), client)
		if err != nil {
			return err
		}

		wrapped := &wrappedStream{ServerStream: ss, ctx: ctx}
		return handler(srv, wrapped)
	}
}

// MethodPrice prices one gRPC method.
type MethodPrice struct {
	Price       string
	Description string
}

// UnaryPayment returns a gRPC unary server interceptor gating priced
// methods behind the payment protocol. Unpriced methods pass through.
// Verified and settled payments are stored in the context via
// walletgate.WithPayment.
func UnaryPayment(client *walletgate.Client, methods map[string]MethodPrice) grpc.UnaryServerInterceptor {
	builder := payment.NewRequirementsBuilder(client.Config())

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		price, priced := methods[info.FullMethod]
		if !priced {
			return handler(ctx, req)
		}

		requirements := builder.Build(info.FullMethod, price.Price, price.Description)

		md, _ := metadata.FromIncomingContext(ctx)
		vals := md.Get(MetadataPayment)
		if len(vals) == 0 {
			return nil, status.Error(codes.FailedPrecondition, "payment required")
		}

		_, payload, err := client.Verifier().Verify(ctx, vals[0], requirements)
		if err != nil {
			return nil, status.Errorf(codes.FailedPrecondition, "payment verification failed: %s", reasonOf(err))
		}

		settled, err := client.Settler().Settle(ctx, payload, requirements)
		if err != nil {
			return nil, status.Errorf(codes.FailedPrecondition, "payment settlement failed: %s", reasonOf(err))
		}

		return handler(walletgate.WithPayment(ctx, settled), req)
	}
}

// --- internal helpers ---

func authenticate(ctx context.Context, client *walletgate.Client) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}

	tokenStr := extractBearerFromMD(md)
	if tokenStr == "" {
		return ctx, status.Error(codes.Unauthenticated, "missing credential")
	}

	creds := client.Credentials()
	if creds == nil {
		return ctx, status.Error(codes.Internal, "credential service not configured")
	}

	claims, err := creds.Decode(tokenStr)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, "invalid credential")
	}

	ctx = walletgate.WithClaims(ctx, claims)
	ctx = walletgate.WithUserID(ctx, claims.Subject)
	ctx = walletgate.WithAddress(ctx, claims.Address)
	ctx = walletgate.WithRole(ctx, claims.Role)

	return ctx, nil
}

func extractBearerFromMD(md metadata.MD) string {
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	parts := strings.SplitN(vals[0], " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func reasonOf(err error) string {
	if pe, ok := walletgate.AsProtocolError(err); ok {
		return pe.Reason
	}
	return "internal"
}

// wrappedStream wraps grpc.ServerStream to override Context().
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
