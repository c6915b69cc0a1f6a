// Package gateway is the HTTP client of the redirect payment gateway: IPN
// registration, order submission and transaction status lookup.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/paycart/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

var ErrEmptyResponse = errors.New("gateway returned an empty response")

// HTTPError is a non-2xx answer from the gateway.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Breaker           circuitbreaker.Config
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.Breaker
	log     *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid gateway base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	// business errors and client errors say nothing about gateway health
	if cfg.Breaker.IsSuccessful == nil {
		cfg.Breaker.IsSuccessful = func(err error) bool {
			var apiErr *APIError
			var httpErr *HTTPError
			if errors.As(err, &apiErr) {
				return true
			}
			if errors.As(err, &httpErr) {
				return httpErr.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		}
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		breaker: circuitbreaker.New("payment-gateway", cfg.Breaker, log),
		log:     log,
	}, nil
}

// RegisterIPN registers the notification listener url and returns the
// notification id the gateway requires on every submitted order.
func (c *Client) RegisterIPN(ctx context.Context, listenerURL, notificationType string) (string, error) {
	var resp ipnRegistrationResponse
	err := c.do(ctx, http.MethodPost, "register_ipn_combined", nil, ipnRegistrationRequest{
		URL:              listenerURL,
		NotificationType: notificationType,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("register ipn: %w", err)
	}
	if !resp.Error.empty() {
		return "", fmt.Errorf("register ipn: %w", resp.Error)
	}
	if resp.Registration.IPNID == "" {
		return "", fmt.Errorf("register ipn: %w", ErrEmptyResponse)
	}
	return resp.Registration.IPNID, nil
}

// SubmitOrder initiates a payment. A response without a redirect url is
// returned as is; callers decide how to surface it.
func (c *Client) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	var resp SubmitOrderResponse
	if err := c.do(ctx, http.MethodPost, "submit_order", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("submit order %s: %w", req.ID, err)
	}
	if resp.Error.empty() {
		resp.Error = nil
	}
	return &resp, nil
}

func (c *Client) GetTransactionStatus(ctx context.Context, trackingID string) (*TransactionStatus, error) {
	var resp TransactionStatus
	query := url.Values{"orderTrackingId": {trackingID}}
	if err := c.do(ctx, http.MethodGet, "check_status", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("check status %s: %w", trackingID, err)
	}
	if !resp.Error.empty() {
		return nil, fmt.Errorf("check status %s: %w", trackingID, resp.Error)
	}
	if resp.PaymentStatusDescription == "" {
		return nil, fmt.Errorf("check status %s: %w", trackingID, ErrEmptyResponse)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	return c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.log.WarnContext(ctx, "gateway request failed",
				slog.String("path", path),
				slog.Int("status", resp.StatusCode))
			return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return ErrEmptyResponse
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
