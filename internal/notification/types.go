// Package notification delivers run summaries to external services.
package notification

import (
	"context"
	"time"
)

// Type classifies a notification.
type Type string

const (
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Notification is one message to deliver.
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Timestamp time.Time
}

// NewNotification creates a notification stamped with the current time.
func NewNotification(t Type, title, message string) *Notification {
	return &Notification{
		Type:      t,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Provider delivers notifications to one destination.
type Provider interface {
	GetName() string
	IsEnabled() bool
	SupportsType(t Type) bool
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
}
