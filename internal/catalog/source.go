package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hanko-field/storefront/internal/urlstate"
)

const defaultSourceTimeout = 8 * time.Second

// Result is what a catalog query yields: metadata for the store. Item
// payloads belong to the rendering layer and are not carried here.
type Result struct {
	Meta Meta
}

// Source answers catalog queries. Implementations must honour context
// cancellation so a superseded query can be aborted.
type Source interface {
	Query(ctx context.Context, state urlstate.QueryState) (Result, error)
}

// Client queries the CMS catalog endpoint over HTTP.
type Client struct {
	baseURL string
	codec   *urlstate.Codec
	http    *http.Client
}

// NewClient constructs a catalog API client.
func NewClient(baseURL string, codec *urlstate.Codec) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("catalog client: base url is required")
	}
	if codec == nil {
		return nil, errors.New("catalog client: codec is required")
	}
	return &Client{
		baseURL: trimmed,
		codec:   codec,
		http: &http.Client{
			Timeout: defaultSourceTimeout,
		},
	}, nil
}

type catalogPayload struct {
	Total            int                       `json:"total"`
	TotalPages       int                       `json:"totalPages"`
	AvailableFilters map[string][]string       `json:"availableFilters"`
	FacetCounts      map[string]map[string]int `json:"facetCounts"`
}

// Query issues the catalog request for the given state.
func (c *Client) Query(ctx context.Context, state urlstate.QueryState) (Result, error) {
	endpoint, err := url.JoinPath(c.baseURL, "catalog")
	if err != nil {
		return Result{}, err
	}
	if query := c.codec.Serialize(state); query != "" {
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("catalog client: status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var payload catalogPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, err
	}

	return Result{Meta: Meta{
		Total:            payload.Total,
		TotalPages:       payload.TotalPages,
		AvailableFilters: payload.AvailableFilters,
		FacetCounts:      payload.FacetCounts,
	}}, nil
}

func drainError(body io.Reader) string {
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
