package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/qcom/banksession/internal/config"
	"github.com/qcom/banksession/internal/metrics"
	"github.com/qcom/banksession/internal/models"
	"github.com/qcom/banksession/internal/repository"
	"github.com/qcom/banksession/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	maxErrorBody = 64 << 10
)

// Client talks to the banking backend. It attaches the stored access credential
// to protected routes, an idempotency key to mutating calls and keeps a cookie
// jar for deployments that authenticate with server-set cookies. It never retries.
type Client struct {
	baseURL string
	http    *http.Client
	store   repository.CredentialStore
	keys    service.KeyGenerator
	routes  Routes
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport. A jar is added when hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		clone := *hc
		if clone.Jar == nil {
			clone.Jar = c.http.Jar
		}
		c.http = &clone
	}
}

func WithKeyGenerator(keys service.KeyGenerator) Option {
	return func(c *Client) { c.keys = keys }
}

func WithRoutes(routes Routes) Option {
	return func(c *Client) { c.routes = routes }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(cfg config.APIConfig, store repository.CredentialStore, logger *logrus.Logger, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	routes := CanonicalRoutes
	if cfg.LegacyRoutes {
		routes = LegacyRoutes
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout, Jar: jar},
		store:   store,
		keys:    service.UUIDKeyGenerator{},
		routes:  routes,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Routes returns the paths this client calls.
func (c *Client) Routes() Routes {
	return c.routes
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

type errorPayload struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Error   *models.ErrorBody `json:"error"`
}

func (c *Client) do(ctx context.Context, method, route string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + route
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s body: %w", route, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", route, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if isMutating(method) {
		req.Header.Set(IdempotencyHeader, c.keys.NewKey())
	}

	if IsProtected(route) {
		token, err := c.store.Get(ctx, models.AccessToken)
		if err != nil {
			return fmt.Errorf("failed to read access token: %w", err)
		}
		// Without a credential the request still goes out; the server decides.
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, route, 0, time.Since(start))
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"route":  route,
		}).Warn("Backend request failed")
		return &APIError{Message: NetworkErrorMessage, Code: CodeNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.metrics.ObserveRequest(method, route, resp.StatusCode, time.Since(start))
	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"route":    route,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{
			Message: GenericErrorMessage,
			Status:  resp.StatusCode,
			Code:    CodeInvalidResponse,
			Err:     fmt.Errorf("failed to decode %s response: %w", route, err),
		}
	}
	return nil
}

// decodeError turns a failure response into an *APIError. Both the flat
// {message,code} body and the nested {"error":{...}} envelope are understood.
func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Message: GenericErrorMessage, Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apiErr
	}

	switch {
	case payload.Message != "":
		apiErr.Message = payload.Message
		apiErr.Code = payload.Code
	case payload.Error != nil && payload.Error.Message != "":
		apiErr.Message = payload.Error.Message
		apiErr.Code = payload.Error.Code
	}
	return apiErr
}
