// Package supabase provides clients for the Supabase project backing
// the platform: GoTrue (identity/session provider) and PostgREST
// (profile store).
package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/infra/resilience"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase GoTrue and PostgREST APIs.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// do executes a request and returns status + body. The caller decides
// what each status means; auth endpoints need the code for error
// classification.
func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err),
		)
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	c.logger.Debug("supabase: request done",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
	)

	return resp.StatusCode, respBody, nil
}

// rest executes a service-role PostgREST request. 404/204 map to a nil
// body; other non-2xx statuses are errors.
func (c *Client) rest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", c.serviceRoleKey),
		"Prefer":        "return=representation",
	}

	status, respBody, err := c.do(ctx, method, url, body, headers)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || status == http.StatusNoContent {
		return nil, nil
	}
	if status < 200 || status >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("body", string(respBody)),
		)
		return nil, fmt.Errorf("supabase returned status %d: %s", status, string(respBody))
	}

	return respBody, nil
}

// auth executes a GoTrue request with an optional user bearer token.
func (c *Client) auth(ctx context.Context, method, path string, body []byte, bearer string) (int, []byte, error) {
	url := fmt.Sprintf("%s/auth/v1/%s", c.baseURL, path)
	headers := map[string]string{}
	if bearer != "" {
		headers["Authorization"] = fmt.Sprintf("Bearer %s", bearer)
	}
	return c.do(ctx, method, url, body, headers)
}
