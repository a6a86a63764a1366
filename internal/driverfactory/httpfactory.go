package driverfactory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/node"
)

// HTTPFactory forwards newSession and every subsequent in-session
// command to a fixed upstream WebDriver endpoint, unmarshalling nothing
// in between — the downstream's own encoded response is what the node
// hands back to the caller.
type HTTPFactory struct {
	upstream string
	client   *http.Client
}

// NewHTTPFactory returns a factory bound to a single upstream base URL,
// e.g. "http://localhost:9515" for a locally running chromedriver.
func NewHTTPFactory(upstream string, timeout time.Duration) *HTTPFactory {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFactory{
		upstream: strings.TrimRight(upstream, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFactory) NewSession(ctx context.Context, req gridtypes.CreateSessionRequest) (node.SessionHandle, []byte, error) {
	payload, err := json.Marshal(map[string]any{"capabilities": req.Capabilities})
	if err != nil {
		return nil, nil, fmt.Errorf("driverfactory: encode newSession body: %w", err)
	}

	status, body, err := f.do(ctx, http.MethodPost, "/session", payload)
	if err != nil {
		return nil, nil, &gridtypes.RetryableRequest{Reason: err.Error()}
	}
	if status >= 500 {
		return nil, nil, &gridtypes.RetryableRequest{Reason: fmt.Sprintf("upstream returned %d", status)}
	}
	if status >= 400 {
		return nil, nil, &gridtypes.SessionNotCreated{Reason: fmt.Sprintf("upstream returned %d", status)}
	}

	return &httpHandle{upstream: f.upstream, client: f.client}, body, nil
}

// httpHandle relays every subsequent command straight through to the
// same upstream. It does not track the downstream sessionId; the
// upstream is expected to be dedicated to this one slot for the
// lifetime of the session.
type httpHandle struct {
	upstream string
	client   *http.Client
}

func (h *httpHandle) Forward(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	return doRequest(ctx, h.client, method, h.upstream+path, body)
}

func (h *httpHandle) Stop(ctx context.Context) error {
	status, _, err := doRequest(ctx, h.client, http.MethodDelete, h.upstream+"/session", nil)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("driverfactory: stop returned %d", status)
	}
	return nil
}

func (f *HTTPFactory) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	return doRequest(ctx, f.client, method, f.upstream+path, body)
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("driverfactory: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("driverfactory: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("driverfactory: reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
