package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ContentAdapter looks up published guidance content over HTTP, for
// handlers that enrich a capability result with service content.
type ContentAdapter struct {
	baseURL string
	client  *http.Client
	ready   bool
}

// NewContentAdapter creates an adapter against a content API base URL.
func NewContentAdapter(baseURL string) *ContentAdapter {
	return &ContentAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Initialize implements Adapter.
func (a *ContentAdapter) Initialize(_ context.Context, config map[string]any) error {
	if base, ok := config["base_url"].(string); ok && base != "" {
		a.baseURL = strings.TrimRight(base, "/")
	}
	a.ready = a.baseURL != ""
	return nil
}

// Execute fetches input["path"] relative to the base URL. JSON bodies are
// decoded; anything else is returned as text.
func (a *ContentAdapter) Execute(ctx context.Context, req Request) Response {
	path, _ := req.Input["path"].(string)
	if path == "" {
		return Response{Success: false, Error: "path is required"}
	}
	url := a.baseURL + "/" + strings.TrimLeft(path, "/")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Response{Success: false, Error: fmt.Sprintf("content api returned status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}

	var decoded any
	if json.Unmarshal(body, &decoded) == nil {
		return Response{Success: true, Output: decoded, Metadata: map[string]string{"url": url}}
	}
	return Response{Success: true, Output: string(body), Metadata: map[string]string{"url": url}}
}

// IsReady implements Adapter.
func (a *ContentAdapter) IsReady() bool { return a.ready }

// Shutdown implements Adapter.
func (a *ContentAdapter) Shutdown(context.Context) error {
	a.ready = false
	return nil
}
