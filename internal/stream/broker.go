// Package stream fans conversation events out to live subscribers over
// Redis pub/sub, one channel per conversation. Delivery is best effort:
// a subscriber that connects late misses earlier events and catches up
// through history.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-matching/internal/domain"
)

type EventType string

const (
	MessageAppended    EventType = "message_appended"
	MessagesRead       EventType = "messages_read"
	ConversationFrozen EventType = "conversation_frozen"
	// SafetyChanged asks subscribers to re-check the safety gate now. It is
	// never forwarded to clients.
	SafetyChanged EventType = "safety_changed"
)

type Event struct {
	Type    EventType           `json:"type"`
	MatchID string              `json:"match_id"`
	At      time.Time           `json:"at"`
	Message *domain.MessageView `json:"message,omitempty"`
	// ActorID is the reader for MessagesRead and the user who caused
	// ConversationFrozen / SafetyChanged.
	ActorID string `json:"actor_id,omitempty"`
	Count   int64  `json:"count,omitempty"`
}

// Channel is the Redis channel of a conversation.
func Channel(matchID string) string {
	return fmt.Sprintf("conversation:%s", matchID)
}

type Broker struct {
	client *redis.Client
	logger *slog.Logger
}

func NewBroker(client *redis.Client, logger *slog.Logger) *Broker {
	return &Broker{client: client, logger: logger}
}

// Publish sends ev to every live subscriber of its conversation.
func (b *Broker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if err := b.client.Publish(ctx, Channel(ev.MatchID), data).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

// Feed is one live subscription to a conversation channel.
type Feed struct {
	ps     *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Subscribe returns once Redis confirmed the subscription, so events
// published after it returns are not missed.
func (b *Broker) Subscribe(ctx context.Context, matchID string) (*Feed, error) {
	ps := b.client.Subscribe(ctx, Channel(matchID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(matchID), err)
	}

	f := &Feed{ps: ps, events: make(chan Event), done: make(chan struct{})}
	go f.pump(ps.Channel(), b.logger)
	return f, nil
}

func (f *Feed) pump(in <-chan *redis.Message, logger *slog.Logger) {
	defer close(f.events)
	for msg := range in {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("dropping malformed conversation event", "channel", msg.Channel, "err", err)
			continue
		}
		select {
		case f.events <- ev:
		case <-f.done:
			return
		}
	}
}

// Events is closed after Close or when the Redis connection goes away.
func (f *Feed) Events() <-chan Event { return f.events }

func (f *Feed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = f.ps.Close()
	})
	return err
}
