package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 4096
	userAgent          = "webmon"
)

// serviceClient is the JSON-over-HTTP plumbing shared by the classifier and
// question clients.
type serviceClient struct {
	client  *http.Client
	baseURL string
	service string
}

func newServiceClient(baseURL, service string, client *http.Client) serviceClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return serviceClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		service: service,
	}
}

// do sends in (if non-nil) as JSON and decodes a 2xx body into out (if non-nil).
// Transport failures and non-2xx statuses become *domain.RemoteError; a 403
// unwraps to ErrForbidden, everything else to ErrRemoteUnavailable.
func (c serviceClient) do(ctx context.Context, method, path, op string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.RemoteError{
			Service: c.service,
			Op:      op,
			Message: err.Error(),
			Err:     domain.ErrRemoteUnavailable,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		remoteErr := &domain.RemoteError{
			Service: c.service,
			Op:      op,
			Status:  resp.StatusCode,
			Message: errorMessage(raw, resp.Status),
			Err:     domain.ErrRemoteUnavailable,
		}
		if resp.StatusCode == http.StatusForbidden {
			remoteErr.Err = domain.ErrForbidden
		}
		return remoteErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.RemoteError{
			Service: c.service,
			Op:      op,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("failed to parse response: %v", err),
			Err:     domain.ErrRemoteUnavailable,
		}
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a body, falling back to the raw
// text or the status line.
func errorMessage(raw []byte, status string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return status
}
