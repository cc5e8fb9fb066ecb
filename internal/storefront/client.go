package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront-sync/internal/model"
	"storefront-sync/internal/transport"
)

const (
	serviceName = "storefront"
	userAgent   = "storefront-sync/1.0"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// Config holds storefront client configuration.
type Config struct {
	Endpoint    string        // GraphQL endpoint, e.g. https://shop.example.com/api/2025-01/graphql.json
	AccessToken string        // Public storefront access token
	Timeout     time.Duration // Per-request timeout; 0 means 30s
	Fingerprint bool          // Present a browser TLS fingerprint

	// HTTPClient overrides the transport entirely (tests).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the storefront GraphQL client. It never retries; callers decide.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	accessToken string
	logger      *slog.Logger
	now         func() time.Time
}

// NewClient creates a storefront client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storefront endpoint is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("storefront access token is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport.New(transport.Options{Timeout: timeout, Fingerprint: cfg.Fingerprint}),
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		httpClient:  httpClient,
		endpoint:    cfg.Endpoint,
		accessToken: cfg.AccessToken,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// === HTTP Helpers ===

// newRequest builds the POST carrying a GraphQL operation.
func (c *Client) newRequest(ctx context.Context, operation, query string, variables map[string]any) (*http.Request, error) {
	body, err := json.Marshal(graphQLRequest{Query: query, OperationName: operation, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Storefront-Access-Token", c.accessToken)

	return req, nil
}

// do executes one GraphQL operation and decodes data into result.
// Every failure is returned as a *model.RemoteError.
func (c *Client) do(ctx context.Context, operation, query string, variables map[string]any, result any) error {
	req, err := c.newRequest(ctx, operation, query, variables)
	if err != nil {
		return model.NewNetworkError(serviceName, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("storefront request failed", "operation", operation, "error", err)
		return model.NewNetworkError(serviceName, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("storefront request",
		"operation", operation,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.NewNetworkError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return c.parseError(resp, body)
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return model.NewNetworkError(serviceName, fmt.Errorf("parsing response: %w", err))
	}
	if len(envelope.Errors) > 0 {
		return graphQLErrors(envelope.Errors)
	}

	if result != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return model.NewNetworkError(serviceName, fmt.Errorf("parsing data: %w", err))
		}
	}
	return nil
}

// parseError converts HTTP error statuses to RemoteErrors.
func (c *Client) parseError(resp *http.Response, body []byte) error {
	var envelope graphQLResponse
	json.Unmarshal(body, &envelope) // Best effort parse

	message := ""
	if len(envelope.Errors) > 0 {
		message = envelope.Errors[0].Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return model.NewUnauthorizedError("storefront authentication failed")
	case resp.StatusCode == http.StatusForbidden:
		return model.NewUnauthorizedError("storefront access denied")
	case resp.StatusCode == http.StatusTooManyRequests:
		err := model.NewNetworkError(serviceName, fmt.Errorf("status 429: throttled"))
		err.Message = "storefront rate limit exceeded"
		err.RetryAfter = retryAfter(resp.Header, c.now())
		return err
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		code := "BAD_REQUEST"
		if resp.StatusCode == http.StatusNotFound {
			code = "NOT_FOUND"
		}
		return model.NewValidationError(code, message)
	case resp.StatusCode >= 500:
		return model.NewNetworkError(serviceName, fmt.Errorf("status %d: %s", resp.StatusCode, message))
	default:
		return model.NewValidationError(fmt.Sprintf("HTTP_%d", resp.StatusCode), message)
	}
}

// graphQLErrors maps top-level GraphQL errors. The first error decides the kind.
func graphQLErrors(errs []graphQLError) error {
	first := errs[0]
	switch first.Extensions.Code {
	case "UNAUTHORIZED", "ACCESS_DENIED", "UNAUTHENTICATED":
		return model.NewUnauthorizedError(first.Message)
	case "THROTTLED":
		err := model.NewNetworkError(serviceName, errors.New(first.Message))
		err.Message = "storefront rate limit exceeded"
		return err
	case "INTERNAL_SERVER_ERROR":
		return model.NewNetworkError(serviceName, errors.New(first.Message))
	}

	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	return model.NewValidationError(first.Extensions.Code, strings.Join(messages, "; "))
}

// userErrorsToError maps mutation userErrors. Errors on the cart id field
// mean the handle no longer names a live cart.
func userErrorsToError(handle model.CartHandle, errs []UserError) error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	if handle != "" && len(first.Field) > 0 && first.Field[0] == "cartId" {
		return model.NewStaleHandleError(handle)
	}
	err := model.NewValidationError(first.Code, first.Message)
	if handle != "" && model.IsStaleHandle(err) {
		return model.NewStaleHandleError(handle)
	}
	return err
}
