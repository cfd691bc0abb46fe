package models

import (
	"time"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotificationTypeWebhook NotificationType = "webhook"
	NotificationTypeLog     NotificationType = "log"
)

// Notification events
const (
	EventPriceSubmitted   = "price_submitted"
	EventSubmissionFailed = "submission_failed"
	EventKeeperRunFailed  = "keeper_run_failed"
	EventMigrationApplied = "migration_applied"
)

// Notification represents a notification to be sent
type Notification struct {
	ID        string                 `json:"id"`
	Type      NotificationType       `json:"type"`
	Event     string                 `json:"event"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Target    string                 `json:"target"`
	Status    string                 `json:"status"` // pending, sent, failed
	Attempts  int                    `json:"attempts"`
	CreatedAt time.Time              `json:"created_at"`
	SentAt    *time.Time             `json:"sent_at,omitempty"`
	Error     *string                `json:"error,omitempty"`
}
