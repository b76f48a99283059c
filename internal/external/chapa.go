package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperr "staybook/internal/errors"
	"staybook/internal/metrics"
)

const statusSuccess = "success"

type ChapaConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// ChapaClient talks to a Chapa compatible payment gateway. It keeps no state
// between calls.
type ChapaClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

type Customization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type InitializeRequest struct {
	Amount        string        `json:"amount"`
	Currency      string        `json:"currency"`
	Email         string        `json:"email"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	TxRef         string        `json:"tx_ref"`
	CallbackURL   string        `json:"callback_url"`
	ReturnURL     string        `json:"return_url"`
	Customization Customization `json:"customization"`
}

type InitializeResponse struct {
	Message string `json:"-"`
	Status  string `json:"status"`
	Data    struct {
		CheckoutURL string `json:"checkout_url"`
		TxRef       string `json:"tx_ref"`
	} `json:"data"`
}

type VerifyResponse struct {
	Message string `json:"-"`
	Status  string `json:"status"`
	Data    struct {
		Status    string          `json:"status"`
		TxRef     string          `json:"tx_ref"`
		Reference string          `json:"reference"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
		Email     string          `json:"email"`
	} `json:"data"`
}

// ProviderError is a well-formed refusal from the gateway. Its message is
// the provider's own and may be shown to the payer.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return apperr.ErrGatewayBusinessFailure
}

// envelope is the outer shape shared by every gateway response. message is
// a string on most responses but an object of field errors on validation
// failures.
type envelope struct {
	Message json.RawMessage `json:"message"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) messageText() string {
	var text string
	if err := json.Unmarshal(e.Message, &text); err == nil {
		return text
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, e.Message); err == nil && buf.Len() > 0 && buf.String() != "null" {
		return buf.String()
	}
	return ""
}

func NewChapaClient(cfg ChapaConfig) *ChapaClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &ChapaClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Initialize registers a transaction and returns the hosted checkout URL
func (c *ChapaClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp InitializeResponse
	msg, err := c.do(ctx, "initialize", http.MethodPost, "/v1/transaction/initialize", bytes.NewReader(body), &resp)
	if err != nil {
		return nil, err
	}
	resp.Message = msg
	if resp.Data.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: initialize response has no checkout_url", apperr.ErrGatewayUnavailable)
	}

	return &resp, nil
}

// Verify fetches the gateway's view of a transaction
func (c *ChapaClient) Verify(ctx context.Context, txRef string) (*VerifyResponse, error) {
	var resp VerifyResponse
	msg, err := c.do(ctx, "verify", http.MethodGet, "/v1/transaction/verify/"+url.PathEscape(txRef), nil, &resp)
	if err != nil {
		return nil, err
	}
	resp.Message = msg

	return &resp, nil
}

// do performs one gateway call and sorts the outcome into success (out is
// filled), *ProviderError, or an error wrapping ErrGatewayUnavailable.
func (c *ChapaClient) do(ctx context.Context, operation, method, path string, body io.Reader, out any) (string, error) {
	started := time.Now()
	outcome := "transport_error"
	defer func() { metrics.ObserveGateway(operation, outcome, started) }()

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", apperr.ErrGatewayUnavailable, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %s request failed: %v", apperr.ErrGatewayUnavailable, operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s response: %v", apperr.ErrGatewayUnavailable, operation, err)
	}

	// Outages, throttling and a rejected secret key say nothing about the
	// transaction itself, whatever the body contains.
	if unavailableStatus(resp.StatusCode) {
		outcome = "unavailable"
		return "", fmt.Errorf("%w: %s returned status %d: %s",
			apperr.ErrGatewayUnavailable, operation, resp.StatusCode, truncate(raw, 200))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: undecodable %s response (status %d): %v",
			apperr.ErrGatewayUnavailable, operation, resp.StatusCode, err)
	}

	msg := env.messageText()
	if resp.StatusCode != http.StatusOK || env.Status != statusSuccess {
		if msg == "" {
			msg = "Payment " + operation + " failed"
		}
		outcome = "rejected"
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return "", fmt.Errorf("%w: failed to decode %s response: %v", apperr.ErrGatewayUnavailable, operation, err)
	}

	outcome = "ok"
	return msg, nil
}

func unavailableStatus(code int) bool {
	return code >= http.StatusInternalServerError ||
		code == http.StatusTooManyRequests ||
		code == http.StatusUnauthorized
}

func truncate(raw []byte, n int) string {
	if len(raw) > n {
		return string(raw[:n]) + "..."
	}
	return string(raw)
}

// IsProviderError reports whether err carries a provider refusal and returns it
func IsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
