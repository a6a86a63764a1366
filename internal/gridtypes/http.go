package gridtypes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SecretHeader is the HTTP header every 🔒 intra-cluster mutation carries
// the registration secret in.
const SecretHeader = "X-Registration-Secret"

var defaultClient = &http.Client{Timeout: 10 * time.Second}

// Client wraps the intra-cluster HTTP conventions: JSON bodies, a shared
// timeout, and an optional registration secret attached to every request.
// Every role constructs its own Client so tests can point it at an
// httptest.Server without touching global state.
type Client struct {
	HTTP   *http.Client
	Secret string
}

// NewClient returns a Client with the shared 10s timeout. secret may be
// empty for roles that never call an authenticated endpoint.
func NewClient(secret string) *Client {
	return &Client{HTTP: defaultClient, Secret: secret}
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &Transport{Op: method + " " + url, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Secret != "" {
		req.Header.Set(SecretHeader, c.Secret)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Transport{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &UnauthorizedSecret{}
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return &Transport{Op: method + " " + url, Err: fmt.Errorf("http %d: %s", resp.StatusCode, msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Transport{Op: method + " " + url, Err: err}
	}
	return nil
}

// Post sends body (marshaled as JSON, or no body if nil) and decodes the
// response into out (ignored if nil).
func (c *Client) Post(ctx context.Context, url string, body, out any) error {
	return c.do(ctx, http.MethodPost, url, body, out)
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

// Delete issues a DELETE and decodes the response into out.
func (c *Client) Delete(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodDelete, url, nil, out)
}

// WriteJSON encodes v as the HTTP response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
