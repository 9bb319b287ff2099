package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

// maxErrorBody bounds how much of an error response ends up in the error text.
const maxErrorBody = 4 << 10

// CoordinatorConfig holds connection settings for the remote coordinator.
type CoordinatorConfig struct {
	BaseURL    string
	AuthKey    string
	InstanceID string
	Hostname   string
}

// Coordinator implements ports.Coordinator with JSON over HTTP POST.
type Coordinator struct {
	cfg    CoordinatorConfig
	client ports.HTTPClient
	logger ports.Logger
}

// NewCoordinator creates a new HTTP coordinator client.
func NewCoordinator(cfg CoordinatorConfig, client ports.HTTPClient, logger ports.Logger) *Coordinator {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Coordinator{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Call posts payload as JSON to target and decodes a JSON answer into result.
//
// Transport failures and 5xx answers wrap domain.ErrTransient; 429 and 503
// wrap domain.ErrNotReady. Other non-2xx answers are definitive.
func (c *Coordinator) Call(ctx context.Context, requestID, target string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.AuthKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("X-Agent-Instance-Id", c.cfg.InstanceID)
	req.Header.Set("X-Agent-Hostname", c.cfg.Hostname)
	req.Header.Set("X-Agent-OSArch", runtime.GOOS+"/"+runtime.GOARCH)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: send request: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(resp.StatusCode, respBody)
	}

	c.logger.Debug("coordinator call succeeded",
		ports.String("target", target),
		ports.String("request_id", requestID),
		ports.Int("status", resp.StatusCode),
	)

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrTransient, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch {
	case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: server returned %d: %s", domain.ErrNotReady, code, msg)
	case code >= 500:
		return fmt.Errorf("%w: server returned %d: %s", domain.ErrTransient, code, msg)
	default:
		return fmt.Errorf("server returned %d: %s", code, msg)
	}
}
