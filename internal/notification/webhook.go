// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

const maxRetryDelay = 30 * time.Second

// WebhookSender posts notifications to a single endpoint
type WebhookSender struct {
	url         string
	method      string
	headers     map[string]string
	maxAttempts int
	baseDelay   time.Duration
	logger      *NotificationLogger
	httpClient  *http.Client
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Version   string                 `json:"version"`
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(cfg *config.NotificationConfig, logger *NotificationLogger) *WebhookSender {
	method := cfg.WebhookMethod
	if method == "" {
		method = http.MethodPost
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &WebhookSender{
		url:         cfg.WebhookURL,
		method:      method,
		headers:     cfg.Headers,
		maxAttempts: attempts,
		baseDelay:   cfg.RetryDelay,
		logger:      logger.WithField("sender", "webhook"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Send delivers n, retrying non-2xx responses and transport errors with exponential backoff.
// It returns the number of attempts made.
func (ws *WebhookSender) Send(ctx context.Context, n *models.Notification) (int, error) {
	body, err := json.Marshal(&WebhookPayload{
		ID:        n.ID,
		Event:     n.Event,
		Title:     n.Title,
		Message:   n.Message,
		Timestamp: n.CreatedAt,
		Source:    "gamma-ops",
		Data:      n.Data,
		Version:   "1.0",
	})
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	var lastErr error
	for attempt := 1; attempt <= ws.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := ws.retryDelay(attempt)
			ws.logger.LogRetryAttempt("webhook", attempt, ws.maxAttempts, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			}
		}

		if lastErr = ws.sendOnce(ctx, body); lastErr == nil {
			return attempt, nil
		}
	}
	return ws.maxAttempts, lastErr
}

func (ws *WebhookSender) sendOnce(ctx context.Context, body []byte) error {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, ws.method, ws.url, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
	}
	ws.setRequestHeaders(req)

	resp, err := ws.httpClient.Do(req)
	if err != nil {
		err = utils.NewAppError(utils.ErrCodeExternal, "Failed to send webhook", err.Error())
		ws.logger.LogWebhookResponse(ws.url, 0, time.Since(startTime), err)
		return err
	}
	defer resp.Body.Close()

	// Read response body (limited to prevent memory issues)
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = utils.NewAppError(utils.ErrCodeExternal,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, respBody))
	}
	ws.logger.LogWebhookResponse(ws.url, resp.StatusCode, time.Since(startTime), err)
	return err
}

func (ws *WebhookSender) setRequestHeaders(req *http.Request) {
	for key, value := range ws.headers {
		req.Header.Set(key, value)
	}

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "gamma-ops/1.0")
	}
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Request-ID", utils.GenerateID())
}

// retryDelay is base_delay * 2^(attempt-2), capped
func (ws *WebhookSender) retryDelay(attempt int) time.Duration {
	delay := ws.baseDelay << uint(attempt-2)
	if delay > maxRetryDelay || delay < 0 {
		delay = maxRetryDelay
	}
	return delay
}
