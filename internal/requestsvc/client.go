package requestsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"water-dispatch-backend/config"
)

// StatusError is returned when the service answers with a non-2xx status code.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: received status code %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client talks to the external emergency request service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

// NewClient creates a client from configuration.
func NewClient(cfg config.RequestServiceConfig, log *zap.Logger) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn("invalid proxy URL, request service client will not use a proxy",
				zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		log: log,
	}
}

// CreateRequest submits a new request. The returned record carries the service-assigned id and status.
func (c *Client) CreateRequest(ctx context.Context, req EmergencyRequest) (*EmergencyRequest, error) {
	payload := createPayload{
		RequesterID:         req.RequesterID,
		RequesterLabel:      req.RequesterLabel,
		LocationLabel:       req.LocationLabel,
		Coordinates:         req.Coordinates,
		RequestType:         req.RequestType,
		Priority:            req.Priority,
		WaterLevelAtRequest: req.WaterLevelAtRequest,
		Description:         req.Description,
		CreatedAt:           req.CreatedAt,
	}
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}

	var created EmergencyRequest
	if err := c.do(ctx, http.MethodPost, "/requests", nil, payload, headers, &created); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return &created, nil
}

// ListByRequester returns every request submitted by a requester.
func (c *Client) ListByRequester(ctx context.Context, requesterID string) ([]EmergencyRequest, error) {
	query := url.Values{"requesterId": []string{requesterID}}

	var requests []EmergencyRequest
	if err := c.do(ctx, http.MethodGet, "/requests", query, nil, nil, &requests); err != nil {
		return nil, fmt.Errorf("list requests for %s: %w", requesterID, err)
	}
	return requests, nil
}

// UpdateStatus changes the status of a request.
func (c *Client) UpdateStatus(ctx context.Context, id string, status Status) (*EmergencyRequest, error) {
	var updated EmergencyRequest
	path := "/requests/" + url.PathEscape(id) + "/status"
	if err := c.do(ctx, http.MethodPut, path, nil, statusPayload{Status: status}, nil, &updated); err != nil {
		return nil, fmt.Errorf("update status of request %s: %w", id, err)
	}
	return &updated, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, headers map[string]string, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, URL: endpoint, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 256)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(respBody), out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	c.log.Debug("request service call", zap.String("method", method), zap.String("url", endpoint), zap.Int("status", resp.StatusCode))
	return nil
}

// unwrapData accepts both bare payloads and {"data": ...} envelopes.
func unwrapData(body []byte) []byte {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Data) > 0 {
			return envelope.Data
		}
	}
	return trimmed
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
