package cart

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

	"github.com/oklog/ulid/v2"
)

const (
	defaultRemoteTimeout = 8 * time.Second
	idempotencyHeader    = "Idempotency-Key"
)

// Remote is the per-account cart store behind the CMS API. Pushes are
// best-effort: callers log failures and move on.
type Remote interface {
	Fetch(ctx context.Context, token string) (State, error)
	Push(ctx context.Context, token string, state State) error
}

// RemoteClient talks to the account cart endpoint over HTTP.
type RemoteClient struct {
	baseURL string
	http    *http.Client
	newKey  func() string
}

// NewRemoteClient constructs a client for the given API base URL.
func NewRemoteClient(baseURL string) (*RemoteClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("cart remote: base url is required")
	}
	return &RemoteClient{
		baseURL: trimmed,
		http: &http.Client{
			Timeout: defaultRemoteTimeout,
		},
		newKey: func() string { return ulid.Make().String() },
	}, nil
}

type cartEnvelope struct {
	Cart State `json:"cart"`
}

// Fetch retrieves the account cart. A missing cart (first use) resolves to
// the empty state, not an error.
func (c *RemoteClient) Fetch(ctx context.Context, token string) (State, error) {
	endpoint, err := url.JoinPath(c.baseURL, "me", "cart")
	if err != nil {
		return State{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return State{}, err
	}
	req.Header.Set("Accept", "application/json")
	setBearer(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return State{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return State{}, nil
	}
	if resp.StatusCode >= 400 {
		return State{}, fmt.Errorf("cart remote: fetch status %d: %s", resp.StatusCode, drainBody(resp.Body))
	}

	var envelope cartEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if errors.Is(err, io.EOF) {
			return State{}, nil
		}
		return State{}, err
	}
	return normalize(envelope.Cart), nil
}

// Push replaces the account cart. Non-2xx responses are errors for the
// caller to log; nothing is retried here.
func (c *RemoteClient) Push(ctx context.Context, token string, state State) error {
	endpoint, err := url.JoinPath(c.baseURL, "me", "cart")
	if err != nil {
		return err
	}

	payload, err := json.Marshal(cartEnvelope{Cart: state})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(idempotencyHeader, c.newKey())
	setBearer(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cart remote: push status %d: %s", resp.StatusCode, drainBody(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func setBearer(req *http.Request, token string) {
	if trimmed := strings.TrimSpace(token); trimmed != "" {
		req.Header.Set("Authorization", "Bearer "+trimmed)
	}
}

func drainBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return "unreadable body"
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "empty body"
	}
	return text
}
