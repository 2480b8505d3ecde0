// Package matching turns converging interests into matches. The Ledger
// records one-directional interest; the Registry decides, inside the same
// pair transaction, whether the pair just became a match.
package matching

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/clock"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/stream"
)

var tracer = otel.Tracer("github.com/oggyb/muzz-matching/internal/matching")

// EventPublisher is satisfied by *stream.Broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev stream.Event) error
}

// CountCache is satisfied by *cache.RedisCache.
type CountCache interface {
	KeyForReceivedCount(userID string) string
	CountOrLoad(ctx context.Context, key string, load cache.CountLoader) (int64, error)
	InvalidateReceivedCount(ctx context.Context, userIDs ...string) error
}

// Registry is the only writer of matches.
type Registry struct {
	repos  *repository.Repositories
	clock  clock.Clock
	logger *slog.Logger

	sink   notify.Sink
	events EventPublisher
	counts CountCache
}

func NewRegistry(repos *repository.Repositories, clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{repos: repos, clock: clk, logger: logger, sink: notify.Nop{}}
}

// WithNotifier sets where MatchCreated events go.
func (r *Registry) WithNotifier(s notify.Sink) *Registry {
	if s != nil {
		r.sink = s
	}
	return r
}

// WithEvents makes Unmatch announce the frozen conversation to live streams.
func (r *Registry) WithEvents(p EventPublisher) *Registry {
	r.events = p
	return r
}

func (r *Registry) WithCounts(c CountCache) *Registry {
	r.counts = c
	return r
}

// TryCreateMatch checks the pair for reciprocity in its own pair
// transaction. RecordInterest already does this; the standalone form is
// for repair jobs that replay interests.
//
// Behavior:
//   - Active match exists → it is returned with created=false.
//   - Inactive match exists → ErrAlreadyUnmatched.
//   - Both directions pending → match and empty conversation are created,
//     both interests are consumed, created=true.
//   - Otherwise → nil, false.
func (r *Registry) TryCreateMatch(ctx context.Context, from, to string, kind domain.InterestKind) (*db.Match, bool, error) {
	ctx, span := tracer.Start(ctx, "matching.TryCreateMatch")
	defer span.End()

	if err := validatePair(from, to); err != nil {
		return nil, false, endSpan(span, err)
	}

	var (
		match   *db.Match
		created bool
	)
	err := r.repos.InPair(ctx, domain.NewPair(from, to), func(tx *repository.Repositories) error {
		var err error
		match, created, err = r.tryCreateMatchTx(ctx, tx, from, to, kind)
		return err
	})
	if err != nil {
		return nil, false, endSpan(span, err)
	}
	if created {
		r.afterMatch(ctx, match)
	}
	span.SetAttributes(attribute.Bool("match.created", created))
	return match, created, nil
}

// tryCreateMatchTx runs with the pair lock held by tx.
func (r *Registry) tryCreateMatchTx(
	ctx context.Context,
	tx *repository.Repositories,
	from, to string,
	kind domain.InterestKind,
) (*db.Match, bool, error) {
	pair := domain.NewPair(from, to)

	existing, err := tx.Matches.GetByPair(ctx, pair)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if !existing.Active {
			return nil, false, svcErr.ErrAlreadyUnmatched
		}
		return existing, false, nil
	}

	own, err := tx.Interests.Get(ctx, from, to)
	if err != nil {
		return nil, false, err
	}
	reciprocal, err := tx.Interests.Get(ctx, to, from)
	if err != nil {
		return nil, false, err
	}
	if own == nil || reciprocal == nil ||
		own.Status != db.InterestPending || reciprocal.Status != db.InterestPending {
		return nil, false, nil
	}

	origin := domain.KindLike
	for _, k := range []domain.InterestKind{kind, domain.InterestKind(own.Kind), domain.InterestKind(reciprocal.Kind)} {
		if k.Stronger(origin) {
			origin = k
		}
	}

	now := r.clock.Now()
	match, err := tx.Matches.Create(ctx, pair, origin, now)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Conversations.Create(ctx, match.ID, now); err != nil {
		return nil, false, err
	}
	if err := tx.Interests.ConsumePair(ctx, pair, now); err != nil {
		return nil, false, err
	}
	return match, true, nil
}

// afterMatch runs once the match is committed. Failures here are logged
// and never undo the match.
func (r *Registry) afterMatch(ctx context.Context, m *db.Match) {
	metrics.MatchesCreated.WithLabelValues(m.Origin).Inc()
	r.logger.InfoContext(ctx, "match created", "match_id", m.ID, "pair", m.Pair().String(), "origin", m.Origin)

	if r.counts != nil {
		if err := r.counts.InvalidateReceivedCount(ctx, m.UserLow, m.UserHigh); err != nil {
			r.logger.WarnContext(ctx, "failed to invalidate like counters", "match_id", m.ID, "err", err)
		}
	}

	ev := notify.Event{
		Type:       notify.MatchCreated,
		OccurredAt: m.CreatedAt,
		Payload: map[string]string{
			"match_id": m.ID,
			"origin":   m.Origin,
		},
		Recipients: []string{m.UserLow, m.UserHigh},
	}
	if err := r.sink.Notify(ctx, ev); err != nil {
		r.logger.WarnContext(ctx, "match notification failed", "match_id", m.ID, "err", err)
	}
}

// Unmatch marks the pair's match inactive and freezes its conversation.
// History stays readable. Unmatching an inactive match is a no-op; a pair
// that never matched gets NotFound.
func (r *Registry) Unmatch(ctx context.Context, userA, userB string) error {
	ctx, span := tracer.Start(ctx, "matching.Unmatch")
	defer span.End()

	if err := validatePair(userA, userB); err != nil {
		return endSpan(span, err)
	}

	var (
		match   *db.Match
		changed bool
	)
	err := r.repos.InPair(ctx, domain.NewPair(userA, userB), func(tx *repository.Repositories) error {
		var err error
		match, err = tx.Matches.GetByPair(ctx, domain.NewPair(userA, userB))
		if err != nil {
			return err
		}
		if match == nil {
			return svcErr.NotFound("no match between %s and %s", userA, userB)
		}
		changed, err = tx.Matches.Deactivate(ctx, match.ID, userA, r.clock.Now())
		if err != nil || !changed {
			return err
		}
		return tx.Conversations.Freeze(ctx, match.ID)
	})
	if err != nil {
		return endSpan(span, err)
	}
	if !changed {
		return nil
	}

	metrics.Unmatches.Inc()
	r.logger.InfoContext(ctx, "unmatched", "match_id", match.ID, "by", userA)
	if r.events != nil {
		ev := stream.Event{Type: stream.ConversationFrozen, MatchID: match.ID, ActorID: userA, At: r.clock.Now()}
		if err := r.events.Publish(ctx, ev); err != nil {
			r.logger.WarnContext(ctx, "failed to publish freeze", "match_id", match.ID, "err", err)
		}
	}
	return nil
}

// ListMatches returns the active matches of userID, newest first. Pairs
// with a block in either direction are hidden.
func (r *Registry) ListMatches(ctx context.Context, userID string) ([]db.Match, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, svcErr.Validation("user id is required")
	}
	return r.repos.Matches.ListActive(ctx, userID)
}

func validatePair(a, b string) error {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return svcErr.Validation("both user ids are required")
	}
	if a == b {
		return svcErr.ErrSelfInterest
	}
	return nil
}

// endSpan records err on span and hands it back.
func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
