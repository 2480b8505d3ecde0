package conversation

import (
	"context"
	"errors"
	"sync"

	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/stream"
)

// ErrStreamClosed ends a subscription whose event source went away.
var ErrStreamClosed = errors.New("conversation stream closed")

// Subscription is one reader's live view of a conversation.
type Subscription struct {
	MatchID  string
	ReaderID string

	events chan stream.Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Subscribe streams message_appended, messages_read and
// conversation_frozen events of the conversation to readerID.
//
// The safety gate is checked again before every delivery; once the pair
// has a block the stream ends with ErrMatchNotActive and nothing more is
// delivered. Cancelling ctx or calling Close ends it as well.
func (s *Service) Subscribe(ctx context.Context, matchID, readerID string) (*Subscription, error) {
	m, err := s.access(ctx, matchID, readerID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	feed, err := s.broker.Subscribe(ctx, matchID)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		MatchID:  matchID,
		ReaderID: readerID,
		events:   make(chan stream.Event),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	metrics.ActiveSubscriptions.Inc()
	go sub.run(ctx, s, feed, m.UserLow, m.UserHigh)
	return sub, nil
}

func (sub *Subscription) run(ctx context.Context, s *Service, feed *stream.Feed, low, high string) {
	defer func() {
		_ = feed.Close()
		close(sub.events)
		metrics.ActiveSubscriptions.Dec()
		close(sub.done)
	}()

	for {
		var ev stream.Event
		select {
		case <-ctx.Done():
			return
		case e, ok := <-feed.Events():
			if !ok {
				sub.fail(ctx, ErrStreamClosed)
				return
			}
			ev = e
		}

		blocked, err := s.gate.IsBlocked(ctx, low, high)
		if err != nil {
			sub.fail(ctx, err)
			return
		}
		if blocked {
			sub.fail(ctx, svcErr.ErrMatchNotActive)
			return
		}
		if ev.Type == stream.SafetyChanged {
			continue
		}

		select {
		case sub.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// fail records why the stream ended, unless it was cancelled.
func (sub *Subscription) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	sub.mu.Lock()
	sub.err = err
	sub.mu.Unlock()
}

// Events is closed when the stream ends.
func (sub *Subscription) Events() <-chan stream.Event { return sub.events }

// Err explains why Events was closed. Nil after Close or cancellation.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Close ends the stream and waits for it to wind down; no event is
// delivered once it returns. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.cancel()
	<-sub.done
}
