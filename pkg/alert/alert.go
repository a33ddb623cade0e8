// Package alert notifies operators when a coverage source keeps failing.
// Alerts are informational only: a failure streak never disables a source.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Notification describes a source whose failure streak crossed the alert
// threshold.
type Notification struct {
	SourceID            int64     `json:"source_id"`
	SourceName          string    `json:"source_name"`
	SourceType          string    `json:"source_type"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastRunMessage      string    `json:"last_run_message"`
	LastRunAt           time.Time `json:"last_run_at"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
