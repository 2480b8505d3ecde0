// Package notify hands match and message events to the push-notification
// pipeline. Delivery itself happens elsewhere; a sink only publishes.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oggyb/muzz-matching/internal/metrics"
)

type EventType string

const (
	MatchCreated EventType = "MatchCreated"
	MessageSent  EventType = "MessageSent"
)

type Event struct {
	Type       EventType         `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    map[string]string `json:"payload"`
	// Recipients are the users a push should reach.
	Recipients []string `json:"recipients"`
}

// Sink receives events after the change that caused them is committed.
// Errors are logged by the caller and never undo the change.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, ev Event) error {
	s.Logger.InfoContext(ctx, "notification", "type", ev.Type, "recipients", ev.Recipients, "payload", ev.Payload)
	metrics.NotificationsSent.WithLabelValues(string(ev.Type), "logged").Inc()
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
