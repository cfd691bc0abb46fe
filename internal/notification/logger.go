// File: internal/notification/logger.go
package notification

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// NotificationLogger handles logging for notification operations
type NotificationLogger struct {
	entry   *logrus.Entry
	context map[string]interface{}
}

// NewNotificationLogger creates a new notification logger
func NewNotificationLogger() *NotificationLogger {
	return &NotificationLogger{
		entry:   utils.ComponentLogger("notification"),
		context: make(map[string]interface{}),
	}
}

// WithField returns a logger carrying an extra field
func (nl *NotificationLogger) WithField(key string, value interface{}) *NotificationLogger {
	newLogger := &NotificationLogger{
		entry:   nl.entry,
		context: make(map[string]interface{}, len(nl.context)+1),
	}
	for k, v := range nl.context {
		newLogger.context[k] = v
	}
	newLogger.context[key] = value
	return newLogger
}

// Debug logs a debug message
func (nl *NotificationLogger) Debug(message string, context ...map[string]interface{}) {
	nl.log(logrus.DebugLevel, message, context...)
}

// Info logs an info message
func (nl *NotificationLogger) Info(message string, context ...map[string]interface{}) {
	nl.log(logrus.InfoLevel, message, context...)
}

// Warn logs a warning message
func (nl *NotificationLogger) Warn(message string, context ...map[string]interface{}) {
	nl.log(logrus.WarnLevel, message, context...)
}

// Error logs an error message
func (nl *NotificationLogger) Error(message string, context ...map[string]interface{}) {
	nl.log(logrus.ErrorLevel, message, context...)
}

func (nl *NotificationLogger) log(level logrus.Level, message string, context ...map[string]interface{}) {
	merged := make(logrus.Fields, len(nl.context))
	for k, v := range nl.context {
		merged[k] = v
	}
	for _, ctx := range context {
		for k, v := range ctx {
			merged[k] = v
		}
	}
	nl.entry.WithFields(merged).Log(level, message)
}

// LogNotification writes the notification itself. With no webhook this is the only delivery channel.
func (nl *NotificationLogger) LogNotification(n *models.Notification) {
	fields := map[string]interface{}{
		"notification_id": n.ID,
		"event":           n.Event,
		"title":           n.Title,
	}
	for k, v := range n.Data {
		fields["data."+k] = v
	}

	if n.Event == models.EventSubmissionFailed || n.Event == models.EventKeeperRunFailed {
		nl.Warn(n.Message, fields)
		return
	}
	nl.Info(n.Message, fields)
}

// LogWebhookResponse logs a webhook response
func (nl *NotificationLogger) LogWebhookResponse(url string, statusCode int, duration time.Duration, err error) {
	context := map[string]interface{}{
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	if err != nil {
		context["error"] = err.Error()
		nl.Error("Webhook failed", context)
	} else {
		nl.Debug("Webhook completed", context)
	}
}

// LogRetryAttempt logs a retry attempt
func (nl *NotificationLogger) LogRetryAttempt(operation string, attempt int, maxAttempts int, delay time.Duration) {
	nl.Warn("Retrying operation", map[string]interface{}{
		"operation":    operation,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"retry_delay":  delay.String(),
	})
}
