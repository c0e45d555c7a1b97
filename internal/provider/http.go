package provider

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

	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// HTTPConfig configures the provider HTTP client.
type HTTPConfig struct {
	BaseURL     string // e.g. https://video.example.com/v1
	TokenID     string
	TokenSecret string
	Timeout     time.Duration
}

// HTTPClient talks to the provider's REST API:
//
//	POST   {base}/streams                 {"room_id"}  -> CreatedSession
//	GET    {base}/streams/{roomID}/status               -> Status | 404
//	DELETE {base}/streams/{sessionID}                   -> 2xx | 404
type HTTPClient struct {
	base   string
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates a provider client with a fixed per-request timeout.
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider: base url required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("provider: parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type createRequest struct {
	RoomID string `json:"room_id"`
}

// envelope is the provider's response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// CreateSession asks the provider for a new live session for roomID.
func (c *HTTPClient) CreateSession(ctx context.Context, roomID string) (*CreatedSession, error) {
	var out CreatedSession
	if err := c.do(ctx, http.MethodPost, "/streams", createRequest{RoomID: roomID}, &out); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &out, nil
}

// GetSessionStatus fetches the status of roomID's current session.
func (c *HTTPClient) GetSessionStatus(ctx context.Context, roomID string) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/streams/"+url.PathEscape(roomID)+"/status", nil, &out); err != nil {
		return nil, fmt.Errorf("session status: %w", err)
	}
	return &out, nil
}

// DeleteSession deletes a session. Deleting a session that no longer exists succeeds.
func (c *HTTPClient) DeleteSession(ctx context.Context, sessionID string) error {
	err := c.do(ctx, http.MethodDelete, "/streams/"+url.PathEscape(sessionID), nil, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.TokenID != "" {
		req.SetBasicAuth(c.cfg.TokenID, c.cfg.TokenSecret)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("provider request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrUnavailable, err)
	}
	return nil
}
