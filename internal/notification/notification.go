// File: internal/notification/notification.go
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Notifier announces keeper and migration outcomes
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// NotificationManager logs every notification and forwards it to a webhook when one is configured
type NotificationManager struct {
	config  *config.NotificationConfig
	logger  *NotificationLogger
	webhook *WebhookSender
	metrics *metrics.PrometheusMetrics

	mu      sync.RWMutex
	running bool
	stats   *NotificationStats
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalNotificationsSent   uint64        `json:"total_notifications_sent"`
	TotalWebhooksSent        uint64        `json:"total_webhooks_sent"`
	TotalNotificationsFailed uint64        `json:"total_notifications_failed"`
	AverageResponseTime      time.Duration `json:"average_response_time"`
	LastError                *string       `json:"last_error,omitempty"`
	LastErrorTime            *time.Time    `json:"last_error_time,omitempty"`
}

type NotificationHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(cfg *config.NotificationConfig) *NotificationManager {
	logger := NewNotificationLogger()
	nm := &NotificationManager{
		config: cfg,
		logger: logger,
		stats:  &NotificationStats{},
	}
	if cfg.Enabled && cfg.WebhookURL != "" {
		nm.webhook = NewWebhookSender(cfg, logger)
	}
	return nm
}

// SetMetrics attaches prometheus metrics
func (nm *NotificationManager) SetMetrics(m *metrics.PrometheusMetrics) {
	nm.metrics = m
}

// Start starts the notification manager
func (nm *NotificationManager) Start(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running", "")
	}
	nm.running = true
	nm.logger.Info("Notification manager started", map[string]interface{}{
		"webhook_enabled": nm.webhook != nil,
	})
	return nil
}

// Stop stops the notification manager
func (nm *NotificationManager) Stop() error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if !nm.running {
		return nil
	}
	nm.running = false
	nm.logger.Info("Notification manager stopped")
	return nil
}

// IsHealthy returns whether the notification manager is healthy
func (nm *NotificationManager) IsHealthy() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.running
}

// Notify records n in the log and delivers it to the webhook if one is configured.
// The notification is updated in place with its ID, status and attempts.
func (nm *NotificationManager) Notify(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return utils.NewAppError(utils.ErrCodeValidation, "Notification is nil", "")
	}
	startTime := time.Now()

	if n.ID == "" {
		n.ID = utils.GenerateID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = startTime.UTC()
	}
	n.Type = models.NotificationTypeLog
	if nm.webhook != nil {
		n.Type = models.NotificationTypeWebhook
		n.Target = nm.config.WebhookURL
	}
	n.Status = "pending"

	nm.logger.LogNotification(n)

	var err error
	if nm.webhook != nil {
		var attempts int
		attempts, err = nm.webhook.Send(ctx, n)
		n.Attempts = attempts
	} else {
		n.Attempts = 1
	}

	nm.updateNotificationStats(startTime, err)
	if err != nil {
		msg := err.Error()
		n.Status = "failed"
		n.Error = &msg
		if nm.metrics != nil {
			nm.metrics.RecordNotificationFailure(string(n.Type), n.Event, errorType(err))
		}
		return fmt.Errorf("notify %s: %w", n.Event, err)
	}

	sentAt := time.Now().UTC()
	n.Status = "sent"
	n.SentAt = &sentAt
	if nm.metrics != nil {
		nm.metrics.RecordNotificationSent(string(n.Type), n.Event, time.Since(startTime))
	}
	return nil
}

func errorType(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "unknown"
}

// updateNotificationStats updates notification statistics
func (nm *NotificationManager) updateNotificationStats(startTime time.Time, err error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.stats.TotalNotificationsSent++
	if nm.webhook != nil && err == nil {
		nm.stats.TotalWebhooksSent++
	}

	if err != nil {
		nm.stats.TotalNotificationsFailed++
		errorStr := err.Error()
		nm.stats.LastError = &errorStr
		now := time.Now()
		nm.stats.LastErrorTime = &now
	}

	responseTime := time.Since(startTime)
	if nm.stats.TotalNotificationsSent == 1 {
		nm.stats.AverageResponseTime = responseTime
	} else {
		nm.stats.AverageResponseTime = (nm.stats.AverageResponseTime + responseTime) / 2
	}
}

// GetStats returns a copy of the notification statistics
func (nm *NotificationManager) GetStats() NotificationStats {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return *nm.stats
}

func (nm *NotificationManager) GetHealth() *NotificationHealth {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	health := &NotificationHealth{
		Healthy: nm.running,
	}
	if nm.stats.LastError != nil {
		health.Error = *nm.stats.LastError
	}
	return health
}
