package paystack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/utafrali/adexify/internal/provider"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/httpclient"
)

const (
	providerName   = "paystack"
	DefaultBaseURL = "https://api.paystack.co"
)

// Config holds the Paystack credentials and transport settings.
type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// Client talks to the Paystack transaction API. Requests are never retried:
// every call is a single attempt guarded by a circuit breaker.
type Client struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	secret  string
}

var _ provider.Gateway = (*Client)(nil)

func New(cfg Config, logger *slog.Logger) *Client {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	httpCfg.MaxRetries = 0

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	return &Client{
		http: httpclient.NewCircuitBreakerClient(
			httpclient.New(httpCfg),
			httpclient.DefaultCircuitBreakerConfig(providerName),
			logger,
		),
		baseURL: base,
		secret:  cfg.SecretKey,
	}
}

func (c *Client) Name() string {
	return providerName
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

func (c *Client) Initialize(ctx context.Context, in provider.InitializeInput) (*provider.InitializeResult, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", initializeRequest{
		Email:       in.Email,
		Amount:      in.AmountMinor,
		Reference:   in.Reference,
		CallbackURL: in.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("build initialize request: %w", err)
	}

	var data initializeData
	if err := c.do(ctx, req, &data); err != nil {
		return nil, err
	}
	if data.AuthorizationURL == "" {
		return nil, apperrors.Gateway("paystack: initialize returned no authorization url", nil)
	}
	if data.Reference == "" {
		data.Reference = in.Reference
	}
	return &provider.InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

type verifyData struct {
	Status    string     `json:"status"`
	Reference string     `json:"reference"`
	Amount    int64      `json:"amount"`
	PaidAt    *time.Time `json:"paid_at"`
}

func (c *Client) Verify(ctx context.Context, reference string) (*provider.VerifyResult, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodGet,
		c.baseURL+"/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}

	var data verifyData
	if err := c.do(ctx, req, &data); err != nil {
		return nil, err
	}

	res := &provider.VerifyResult{
		Reference:   data.Reference,
		Status:      data.Status,
		AmountMinor: data.Amount,
	}
	if res.Reference == "" {
		res.Reference = reference
	}
	if data.PaidAt != nil {
		res.PaidAt = data.PaidAt.UTC()
	}
	return res, nil
}

func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifySignature(body, signature, c.secret)
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		if errors.Is(err, httpclient.ErrCircuitOpen) {
			return apperrors.Gateway("paystack is unavailable", err)
		}
		return apperrors.Gateway("could not reach paystack", err)
	}
	return httpclient.DecodeEnvelope(resp, providerName, out)
}
