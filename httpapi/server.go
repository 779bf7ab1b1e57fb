// Package httpapi exposes the protocol over HTTP: identity challenge and
// verification endpoints, a ledger read surface, and payment-gated resource
// routes.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	walletgate "github.com/walletgate/walletgate-go"
	"github.com/walletgate/walletgate-go/audit"
	"github.com/walletgate/walletgate-go/metrics"
	"github.com/walletgate/walletgate-go/middleware/ginmw"
)

// Server wires the protocol client into a gin engine.
type Server struct {
	client  *walletgate.Client
	engine  *gin.Engine
	auditor *audit.Logger
	metrics *metrics.Metrics
	routes  map[string]ginmw.PricedRoute
}

// Option configures the Server.
type Option func(*Server)

// WithAuditLogger sets the audit event sink.
func WithAuditLogger(l *audit.Logger) Option {
	return func(s *Server) { s.auditor = l }
}

// WithMetrics sets the Prometheus metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPricedRoute registers a payment-gated resource route. The handler
// runs only after a successful verify+settle cycle.
func WithPricedRoute(path, price, description string) Option {
	return func(s *Server) {
		s.routes[path] = ginmw.PricedRoute{Price: price, Description: description}
	}
}

// New creates the HTTP server around a configured protocol client.
func New(client *walletgate.Client, opts ...Option) *Server {
	s := &Server{
		client:  client,
		routes:  make(map[string]ginmw.PricedRoute),
		metrics: metrics.New(false),
	}
	for _, o := range opts {
		o(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.POST("/identity/nonce", s.handleNonce)
	engine.POST("/identity/verify", s.handleVerify)

	protected := engine.Group("/", ginmw.Auth(client))
	protected.GET("/payments", s.handleListPayments)

	paid := engine.Group("/", ginmw.Payment(client, s.routes,
		ginmw.WithMetrics(s.metrics),
		ginmw.WithAuditLogger(s.auditor),
	))
	for path := range s.routes {
		paid.GET(path, s.handlePricedResource)
	}

	s.engine = engine
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.engine }

// Run starts serving on addr, blocking until the listener fails.
func (s *Server) Run(addr string) error { return s.engine.Run(addr) }

func (s *Server) emit(e audit.Event) {
	if s.auditor != nil {
		s.auditor.Log(e)
	}
}
