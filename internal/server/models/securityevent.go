package models

import "time"

// SecurityEvent is one row of the append-only security log. Email and
// IPAddress are already masked and Details already sanitized when a value
// of this type reaches a repository.
type SecurityEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	UserID    *int64         `json:"user_id,omitempty"`
	Email     string         `json:"email,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
