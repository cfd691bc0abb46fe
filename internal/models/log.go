package models

import "time"

// LogEntry is an operational record kept alongside the domain tables
// (keeper runs, ops script invocations)
type LogEntry struct {
	ID        string                 `json:"id" db:"id"`
	Type      string                 `json:"type" db:"type"`
	Data      map[string]interface{} `json:"data" db:"data"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
