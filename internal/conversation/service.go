// Package conversation owns the message log of each match: appending,
// read state, history, the per-user conversation list and live streams.
package conversation

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/oggyb/muzz-matching/internal/clock"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/stream"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// MaxContentRunes bounds a message after trimming.
const MaxContentRunes = 2000

var tracer = otel.Tracer("github.com/oggyb/muzz-matching/internal/conversation")

// Gate is satisfied by *safety.Gate.
type Gate interface {
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	BlockedWith(ctx context.Context, userID string) ([]string, error)
}

// Broker is satisfied by *stream.Broker.
type Broker interface {
	Publish(ctx context.Context, ev stream.Event) error
	Subscribe(ctx context.Context, matchID string) (*stream.Feed, error)
}

type Options struct {
	// MessageRate is the sustained messages per second per sender; zero
	// disables the limiter.
	MessageRate  float64
	MessageBurst int
	History      pagination.PageSize
}

type Service struct {
	repos  *repository.Repositories
	gate   Gate
	broker Broker
	sink   notify.Sink
	clock  clock.Clock
	logger *slog.Logger

	limiter *senderLimiter
	history pagination.PageSize
}

func NewService(
	repos *repository.Repositories,
	gate Gate,
	broker Broker,
	sink notify.Sink,
	clk clock.Clock,
	logger *slog.Logger,
	opts Options,
) *Service {
	if sink == nil {
		sink = notify.Nop{}
	}
	if opts.History.Default == 0 {
		opts.History = pagination.PageSize{Default: 50, Max: 200}
	}
	return &Service{
		repos:   repos,
		gate:    gate,
		broker:  broker,
		sink:    sink,
		clock:   clk,
		logger:  logger,
		limiter: newSenderLimiter(opts.MessageRate, opts.MessageBurst),
		history: opts.History,
	}
}

// access loads the match and checks that userID takes part in it and
// that the pair has no block.
func (s *Service) access(ctx context.Context, matchID, userID string) (*db.Match, error) {
	if strings.TrimSpace(matchID) == "" || strings.TrimSpace(userID) == "" {
		return nil, svcErr.Validation("match id and user id are required")
	}
	m, err := s.repos.Matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.Pair().Has(userID) {
		return nil, svcErr.ErrNotParticipant
	}
	blocked, err := s.gate.IsBlocked(ctx, m.UserLow, m.UserHigh)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, svcErr.ErrMatchNotActive
	}
	return m, nil
}

// AppendMessage stores a message from senderID and returns it.
//
// Behavior:
//   - Unknown match → NotFound; sender outside the pair → NotParticipant.
//   - Inactive match, frozen conversation or a block either way →
//     MatchNotActive.
//   - Content is trimmed and must hold 1..2000 characters.
//   - seq is allocated under the conversation row lock, so concurrent
//     appends get strictly increasing numbers.
//
// Example:
//
//	msg, err := svc.AppendMessage(ctx, matchID, "alice", "hi")
func (s *Service) AppendMessage(ctx context.Context, matchID, senderID, content string) (domain.MessageView, error) {
	ctx, span := tracer.Start(ctx, "conversation.AppendMessage")
	defer span.End()
	span.SetAttributes(attribute.String("match.id", matchID))

	view, err := s.appendMessage(ctx, matchID, senderID, content)
	if err != nil {
		reason := strings.ToLower(string(svcErr.KindOf(err)))
		if reason == "" {
			reason = "internal"
		}
		metrics.MessagesRejected.WithLabelValues(reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.MessageView{}, err
	}
	return view, nil
}

func (s *Service) appendMessage(ctx context.Context, matchID, senderID, content string) (domain.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.MessageView{}, svcErr.Validation("message content is empty")
	}
	if n := utf8.RuneCountInString(content); n > MaxContentRunes {
		return domain.MessageView{}, svcErr.Validation("message is %d characters, the limit is %d", n, MaxContentRunes)
	}

	m, err := s.access(ctx, matchID, senderID)
	if err != nil {
		return domain.MessageView{}, err
	}
	if !m.Active {
		return domain.MessageView{}, svcErr.ErrMatchNotActive
	}
	refund, ok := s.limiter.Take(senderID)
	if !ok {
		return domain.MessageView{}, svcErr.ErrRateLimited
	}

	var msg db.Message
	err = s.repos.InTx(ctx, func(tx *repository.Repositories) error {
		// the seq bump takes the row lock before frozen is read
		seq, err := tx.Conversations.AllocateSeq(ctx, matchID)
		if err != nil {
			return err
		}
		conv, err := tx.Conversations.Get(ctx, matchID)
		if err != nil {
			return err
		}
		if conv.Frozen {
			return svcErr.ErrMatchNotActive
		}
		msg = db.Message{
			MatchID:   matchID,
			Seq:       seq,
			SenderID:  senderID,
			Content:   content,
			CreatedAt: s.clock.Now(),
		}
		return tx.Conversations.AppendMessage(ctx, &msg)
	})
	if err != nil {
		// only stored messages count against the sender
		refund()
		return domain.MessageView{}, err
	}

	view := toView(msg, []string{senderID})
	metrics.MessagesSent.Inc()

	ev := stream.Event{Type: stream.MessageAppended, MatchID: matchID, At: msg.CreatedAt, Message: &view, ActorID: senderID}
	if err := s.broker.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish message", "match_id", matchID, "err", err)
	}
	note := notify.Event{
		Type:       notify.MessageSent,
		OccurredAt: msg.CreatedAt,
		Payload: map[string]string{
			"match_id":   matchID,
			"message_id": msg.ID,
			"sender_id":  senderID,
			"seq":        strconv.FormatUint(msg.Seq, 10),
		},
		Recipients: []string{m.Pair().Other(senderID)},
	}
	if err := s.sink.Notify(ctx, note); err != nil {
		s.logger.WarnContext(ctx, "message notification failed", "match_id", matchID, "err", err)
	}
	return view, nil
}

// MarkRead adds readerID to the read set of every message the other
// participant sent. Returns how many messages became read; repeating the
// call returns 0. Unmatched conversations stay readable, blocked ones
// don't.
func (s *Service) MarkRead(ctx context.Context, matchID, readerID string) (int64, error) {
	if _, err := s.access(ctx, matchID, readerID); err != nil {
		return 0, err
	}
	n, err := s.repos.Conversations.MarkRead(ctx, matchID, readerID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	ev := stream.Event{Type: stream.MessagesRead, MatchID: matchID, At: s.clock.Now(), ActorID: readerID, Count: n}
	if err := s.broker.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish read receipt", "match_id", matchID, "err", err)
	}
	return n, nil
}

// ListMessages pages backwards through history, newest first. beforeSeq
// of zero starts at the newest message; pass the smallest seq of the
// previous page to continue. Messages older than the reader's deletion
// marker are never returned.
func (s *Service) ListMessages(ctx context.Context, matchID, readerID string, beforeSeq uint64, limit int) ([]domain.MessageView, error) {
	if _, err := s.access(ctx, matchID, readerID); err != nil {
		return nil, err
	}
	var afterSeq uint64
	tomb, err := s.repos.Conversations.Tombstone(ctx, matchID, readerID)
	if err != nil {
		return nil, err
	}
	if tomb != nil {
		afterSeq = tomb.UpToSeq
	}

	msgs, err := s.repos.Conversations.ListMessages(ctx, matchID, afterSeq, beforeSeq, pagination.ClampPageSize(limit, s.history))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	readers, err := s.repos.Conversations.ReadersOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toView(m, readers[m.ID]))
	}
	return out, nil
}

// ListConversations is the conversation list of userID, most recent
// activity first. Blocked pairs are hidden, and so are conversations the
// user deleted that have had no message since.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, svcErr.Validation("user id is required")
	}
	convs, matches, err := s.repos.Conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	blockedIDs, err := s.gate.BlockedWith(ctx, userID)
	if err != nil {
		return nil, err
	}
	blocked := make(map[string]bool, len(blockedIDs))
	for _, id := range blockedIDs {
		blocked[id] = true
	}
	byMatch := make(map[string]db.Match, len(matches))
	for _, m := range matches {
		byMatch[m.ID] = m
	}

	type row struct {
		summary domain.ConversationSummary
		sortAt  int64
	}
	rows := make([]row, 0, len(convs))
	for _, c := range convs {
		m, ok := byMatch[c.MatchID]
		if !ok {
			continue
		}
		other := m.Pair().Other(userID)
		if blocked[other] {
			continue
		}

		var afterSeq uint64
		tomb, err := s.repos.Conversations.Tombstone(ctx, c.MatchID, userID)
		if err != nil {
			return nil, err
		}
		if tomb != nil {
			if c.NextSeq <= tomb.UpToSeq {
				continue
			}
			afterSeq = tomb.UpToSeq
		}
		unread, err := s.repos.Conversations.UnreadCount(ctx, c.MatchID, userID, afterSeq)
		if err != nil {
			return nil, err
		}

		sum := domain.ConversationSummary{
			MatchID:           c.MatchID,
			CounterpartID:     other,
			Active:            m.Active,
			Frozen:            c.Frozen,
			LastMessage:       c.LastMessage,
			LastMessageSender: c.LastMessageSender,
			LastMessageAt:     c.LastMessageAt,
			Unread:            unread,
		}
		sortAt := m.CreatedAt.UnixMilli()
		if c.LastMessageAt != nil {
			sortAt = c.LastMessageAt.UnixMilli()
		}
		rows = append(rows, row{summary: sum, sortAt: sortAt})
	}

	slices.SortFunc(rows, func(a, b row) int {
		if c := cmp.Compare(b.sortAt, a.sortAt); c != 0 {
			return c
		}
		return cmp.Compare(b.summary.MatchID, a.summary.MatchID)
	})
	out := make([]domain.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.summary)
	}
	return out, nil
}

// DeleteConversation hides the current history from userID only. The
// counterpart keeps the full history; later messages show up again for
// both.
func (s *Service) DeleteConversation(ctx context.Context, matchID, userID string) error {
	if strings.TrimSpace(matchID) == "" || strings.TrimSpace(userID) == "" {
		return svcErr.Validation("match id and user id are required")
	}
	m, err := s.repos.Matches.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if !m.Pair().Has(userID) {
		return svcErr.ErrNotParticipant
	}
	conv, err := s.repos.Conversations.Get(ctx, matchID)
	if err != nil {
		return err
	}
	return s.repos.Conversations.PutTombstone(ctx, matchID, userID, conv.NextSeq, s.clock.Now())
}

func toView(m db.Message, readBy []string) domain.MessageView {
	if readBy == nil {
		readBy = []string{}
	}
	return domain.MessageView{
		ID:        m.ID,
		MatchID:   m.MatchID,
		Seq:       m.Seq,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		ReadBy:    readBy,
	}
}
