package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ingest/internal/api"
	"ingest/internal/records"
)

// ErrUnavailable reports that no daemon answered at the configured address.
var ErrUnavailable = errors.New("ingest API unavailable")

// Client is a thin JSON client for the ingest API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a client for bind ("host:port" or a URL). An empty bind yields a
// nil client whose calls return ErrUnavailable.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ingest API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("ingest API returned status %d: %s", e.StatusCode, e.Message)
}

// ErrorKind implements records.ErrorClassifier.
func (e *Error) ErrorKind() string {
	if e.Kind != "" {
		return e.Kind
	}
	return records.KindInternal
}

// Unwrap maps the reported kind back onto the records sentinels.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case records.KindNotFound:
		return records.ErrNotFound
	case records.KindConflict:
		return records.ErrRevisionConflict
	case records.KindInvalidTransition:
		return records.ErrInvalidTransition
	case records.KindValidation:
		return records.ErrValidation
	default:
		return nil
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Poll claims up to req.Limit READY records.
func (c *Client) Poll(ctx context.Context, req api.PollRequest) (api.PollResponse, error) {
	var out api.PollResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/poll", req, &out)
	return out, err
}

// Transact reports a worker status change.
func (c *Client) Transact(ctx context.Context, req api.TransactionRequest) (api.TransactionResponse, error) {
	var out api.TransactionResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/transactions", req, &out)
	return out, err
}

// Content downloads a record attachment.
func (c *Client) Content(ctx context.Context, contentURL string) ([]byte, error) {
	if c == nil {
		return nil, ErrUnavailable
	}
	resp, err := c.send(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	endpoint := c.base.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	apiErr := &Error{StatusCode: resp.StatusCode}
	var payload api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
		apiErr.Message = payload.Error
		apiErr.Kind = payload.Kind
	}
	return apiErr
}

// IsUnavailable reports whether err means no daemon could be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}
