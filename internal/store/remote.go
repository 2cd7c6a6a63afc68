package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/reconcile"
)

// Remote talks to an external document store over HTTP. The remote side is
// expected to apply each change-set transactionally and report success or
// failure as a unit.
type Remote struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRemote creates a client for the store at baseURL.
func NewRemote(baseURL, apiKey string) *Remote {
	return &Remote{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Remote) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// applyRequest is the body for POST /documents/{id}/changes.
type applyRequest struct {
	Content string             `json:"content"`
	Changes []reconcile.Change `json:"changes"`
}

// contentResponse is the body of GET /documents/{id}/content.
type contentResponse struct {
	Content string `json:"content"`
}

func (c *Remote) Nodes(ctx context.Context, docID string) ([]fragment.Node, error) {
	var nodes []fragment.Node
	if err := c.get(ctx, c.docPath(docID)+"/nodes", &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *Remote) Content(ctx context.Context, docID string) (string, error) {
	var resp contentResponse
	if err := c.get(ctx, c.docPath(docID)+"/content", &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Remote) Apply(ctx context.Context, docID, content string, changes []reconcile.Change) error {
	return c.send(ctx, http.MethodPost, c.docPath(docID)+"/changes", applyRequest{
		Content: content,
		Changes: changes,
	})
}

func (c *Remote) UpdateMetadata(ctx context.Context, docID, nodeID string, patch MetaPatch) error {
	return c.send(ctx, http.MethodPatch, c.docPath(docID)+"/nodes/"+url.PathEscape(nodeID), patch)
}

func (c *Remote) docPath(docID string) string {
	return c.baseURL + "/documents/" + url.PathEscape(docID)
}

func (c *Remote) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("get %s: status %d: %s", u, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Remote) send(ctx context.Context, method, u string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, u, resp.StatusCode, string(respBody))
	}
	return nil
}
