// Package flows talks to the external flow engine over HTTP.
package flows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/pkg/util"
)

// Client is a thin HTTP client for the flow engine.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates the flow engine client.
func NewClient(cfg config.FlowsConfig, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SyncContactFields pushes a room's custom-field edit to the contact
// record held by the flow engine. Synchronous by contract: the edit is
// rejected when the engine refuses it.
func (c *Client) SyncContactFields(ctx context.Context, contactExternalID string, fields map[string]any) error {
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/v2/contacts/%s/fields", c.baseURL, contactExternalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return util.NewTransient("flow engine unreachable", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return util.NewValidationError("flow engine rejected field sync",
			map[string]any{"status": resp.StatusCode})
	}
	return nil
}
