package services

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

	"github.com/google/uuid"

	"paydesk/internal/models"
)

const maxResponseBytes = 8 << 20

var (
	ErrInvalidResponseFormat = errors.New("server returned invalid JSON response")
	ErrSessionReset          = errors.New("session expired, reload required")
	ErrTransport             = errors.New("network error, please try again")
)

// APIError is a failed remote API call with a parseable body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// TokenSource hands out identity tokens. *identity.Adapter satisfies it.
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
	RefreshIDToken(ctx context.Context) (string, error)
}

// TokenCache is the session the client reads and writes the bearer token in.
type TokenCache interface {
	Token() string
	SetToken(ctx context.Context, token string)
	Clear(ctx context.Context)
}

type APIClientConfig struct {
	BaseURL string
	Client  *http.Client
	Tokens  TokenSource
	Session TokenCache
	Logger  *slog.Logger
	// OnReset runs after an unrecoverable authorization failure cleared the session.
	OnReset func()
}

// APIClient is the authenticated request pipeline to the remote payments API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	session    TokenCache
	logger     *slog.Logger
	onReset    func()
}

func NewAPIClient(cfg APIClientConfig) (*APIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("api client: base url is required")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("api client: session is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
		tokens:     cfg.Tokens,
		session:    cfg.Session,
		logger:     logger,
		onReset:    cfg.OnReset,
	}, nil
}

// Call sends body as JSON to endpoint and decodes the envelope's data into
// out when out is non-nil. A 401 with a token attached is retried once with
// a refreshed token; if that fails too the session is cleared and
// ErrSessionReset returned.
func (c *APIClient) Call(ctx context.Context, method, endpoint string, body, out any) (*models.Envelope, error) {
	requestID := uuid.NewString()
	log := c.logger.With("request_id", requestID, "method", method, "endpoint", endpoint)
	log.Debug("api call")

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	token := c.session.Token()
	if token == "" && c.tokens != nil {
		t, err := c.tokens.IDToken(ctx)
		if err == nil && t != "" {
			token = t
			c.session.SetToken(ctx, t)
		} else {
			log.Warn("no valid session", "err", err)
		}
	}

	resp, err := c.send(ctx, method, endpoint, payload, token, requestID)
	if err != nil {
		log.Error("api transport failed", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		drain(resp)
		fresh, err := c.refresh(ctx)
		if err != nil {
			log.Warn("token refresh failed", "err", err)
			return nil, c.reset(ctx, log)
		}
		c.session.SetToken(ctx, fresh)

		resp, err = c.send(ctx, method, endpoint, payload, fresh, requestID)
		if err != nil {
			log.Error("api retry transport failed", "err", err)
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			log.Warn("retry still unauthorized")
			return nil, c.reset(ctx, log)
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Error("api response is not JSON", "status", resp.StatusCode)
		return nil, ErrInvalidResponseFormat
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.ErrorMessage("API request failed")}
		log.Warn("api call failed", "status", resp.StatusCode, "message", apiErr.Message)
		return &env, apiErr
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, fmt.Errorf("%w: %v", ErrInvalidResponseFormat, err)
		}
	}
	return &env, nil
}

func (c *APIClient) send(ctx context.Context, method, endpoint string, payload []byte, token, requestID string) (*http.Response, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient.Do(req)
}

func (c *APIClient) refresh(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", errors.New("no token source")
	}
	t, err := c.tokens.RefreshIDToken(ctx)
	if err != nil {
		return "", err
	}
	if t == "" {
		return "", errors.New("empty token from refresh")
	}
	return t, nil
}

func (c *APIClient) reset(ctx context.Context, log *slog.Logger) error {
	c.session.Clear(ctx)
	if c.onReset != nil {
		c.onReset()
	}
	log.Info("session reset after authorization failure")
	return ErrSessionReset
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
}
