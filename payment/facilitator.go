package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	walletgate "github.com/walletgate/walletgate-go"
)

// FacilitatorClient implements walletgate.SettlementPath against an x402
// facilitator service, the intermediary that executes the on-chain transfer
// once an authorization is verified.
type FacilitatorClient struct {
	baseURL    string
	httpClient *http.Client

	supportedTTL time.Duration
	sf           singleflight.Group

	mu          sync.RWMutex
	supported   *SupportedResponse
	supportedAt time.Time
}

// compile-time check
var _ walletgate.SettlementPath = (*FacilitatorClient)(nil)

// settleRequest is the wire request to the facilitator settle endpoint.
type settleRequest struct {
	PaymentPayload      *walletgate.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements walletgate.PaymentRequirements `json:"paymentRequirements"`
}

// settleResponse is the wire response from the facilitator settle endpoint.
type settleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
}

// SupportedKind is one scheme+network pair the facilitator can settle.
type SupportedKind struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
}

// SupportedResponse lists the facilitator's supported kinds.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// Supports reports whether the facilitator can settle the given
// scheme on the given network.
func (r *SupportedResponse) Supports(scheme, network string) bool {
	if r == nil {
		return false
	}
	for _, k := range r.Kinds {
		if k.Scheme == scheme && k.Network == network {
			return true
		}
	}
	return false
}

// ClientOption configures the FacilitatorClient.
type ClientOption func(*FacilitatorClient)

// WithHTTPClient sets a custom HTTP client for facilitator requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(f *FacilitatorClient) { f.httpClient = c }
}

// WithSupportedTTL sets how long the supported-kinds response is cached.
// Default: 5 minutes.
func WithSupportedTTL(d time.Duration) ClientOption {
	return func(f *FacilitatorClient) { f.supportedTTL = d }
}

// NewFacilitatorClient creates a settlement path client for the facilitator
// at baseURL.
func NewFacilitatorClient(baseURL string, opts ...ClientOption) *FacilitatorClient {
	f := &FacilitatorClient{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		supportedTTL: 5 * time.Minute,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Submit asks the facilitator to execute the authorization on-chain and
// returns the transaction reference.
func (f *FacilitatorClient) Submit(ctx context.Context, payload *walletgate.PaymentPayload, req walletgate.PaymentRequirements) (string, error) {
	var resp settleResponse
	err := f.post(ctx, "/settle", &settleRequest{
		PaymentPayload:      payload,
		PaymentRequirements: req,
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("walletgate/payment: facilitator rejected settlement: %s", resp.ErrorReason)
	}
	return resp.Transaction, nil
}

// Supported returns the facilitator's supported scheme+network pairs.
// Responses are cached; concurrent refreshes collapse into one request.
func (f *FacilitatorClient) Supported(ctx context.Context) (*SupportedResponse, error) {
	f.mu.RLock()
	cached, fetchedAt := f.supported, f.supportedAt
	f.mu.RUnlock()
	if cached != nil && time.Since(fetchedAt) < f.supportedTTL {
		return cached, nil
	}

	// singleflight prevents thundering herd
	result, err, _ := f.sf.Do("supported", func() (interface{}, error) {
		var resp SupportedResponse
		if err := f.get(ctx, "/supported", &resp); err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.supported = &resp
		f.supportedAt = time.Now()
		f.mu.Unlock()
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*SupportedResponse), nil
}

func (f *FacilitatorClient) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("walletgate/payment: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("walletgate/payment: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, out)
}

func (f *FacilitatorClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("walletgate/payment: create request: %w", err)
	}
	return f.do(req, out)
}

func (f *FacilitatorClient) do(req *http.Request, out interface{}) error {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("walletgate/payment: facilitator call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("walletgate/payment: facilitator returned %d: %s", resp.StatusCode, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("walletgate/payment: decode response: %w", err)
	}
	return nil
}
