// Package remote talks to the BMS REST backend, the source of truth for
// carts and orders. Every endpoint answers with the same envelope:
//
//	{"isSuccess": true, "data": {...}, "messages": ["..."]}
//
// Any failure, network or business, comes back as *apperr.RemoteError.
// Reads are retried with exponential backoff; writes are sent once.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint64
	// InitialInterval is the first retry delay; zero uses the backoff default.
	InitialInterval time.Duration
	Logger          *zap.Logger
}

// Client is an HTTP client for the BMS API.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	maxRetries      uint64
	initialInterval time.Duration
	log             *zap.Logger
}

// NewClient creates a Client for cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		log:             cfg.Logger.Named("remote"),
	}
}

type envelope struct {
	IsSuccess bool            `json:"isSuccess"`
	Data      json.RawMessage `json:"data"`
	Messages  []string        `json:"messages"`
}

// get performs a GET with bounded exponential backoff. Only network errors
// and 5xx responses are retried.
func (c *Client) get(ctx context.Context, op, token, path string, out any) error {
	eb := backoff.NewExponentialBackOff()
	if c.initialInterval > 0 {
		eb.InitialInterval = c.initialInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := c.do(ctx, op, http.MethodGet, token, path, nil, out)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.log.Warn("retrying remote read",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err == nil {
		return nil
	}
	var re *apperr.RemoteError
	if errors.As(err, &re) {
		return err
	}
	// Context cancellation surfaces here unwrapped.
	return &apperr.RemoteError{Op: op, Err: err}
}

// send performs a single mutating request.
func (c *Client) send(ctx context.Context, op, method, token, path string, body, out any) error {
	return c.do(ctx, op, method, token, path, body, out)
}

func (c *Client) do(ctx context.Context, op, method, token, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &apperr.RemoteError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return &apperr.RemoteError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperr.RemoteError{Op: op, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.RemoteError{Op: op, StatusCode: resp.StatusCode, Messages: env.Messages}
	}
	if decodeErr != nil {
		return &apperr.RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if !env.IsSuccess {
		return &apperr.RemoteError{Op: op, StatusCode: resp.StatusCode, Messages: env.Messages}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = env.Data
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &apperr.RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

// retryable reports whether a failed read may succeed on a later attempt.
// A 2xx with isSuccess=false is a business answer and is final.
func retryable(err error) bool {
	var re *apperr.RemoteError
	if !errors.As(err, &re) {
		return true
	}
	if re.StatusCode == 0 {
		return !errors.Is(re.Err, context.Canceled) && !errors.Is(re.Err, context.DeadlineExceeded)
	}
	return re.StatusCode >= 500
}
