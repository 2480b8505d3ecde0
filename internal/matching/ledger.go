package matching

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/oggyb/muzz-matching/internal/clock"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// InterestResult is what RecordInterest did.
type InterestResult struct {
	Interest *db.Interest
	// Match is set whenever the pair is matched, whether by this call or
	// an earlier one.
	Match *db.Match
	// Matched is true only for the call that created Match.
	Matched bool
}

// Ledger records interest signals and hands reciprocity to the Registry.
type Ledger struct {
	repos    *repository.Repositories
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger

	counts   CountCache
	pageSize pagination.PageSize
}

func NewLedger(repos *repository.Repositories, registry *Registry, clk clock.Clock, logger *slog.Logger) *Ledger {
	return &Ledger{
		repos:    repos,
		registry: registry,
		clock:    clk,
		logger:   logger,
		pageSize: pagination.PageSize{Default: 10, Max: 50},
	}
}

// WithCounts caches CountReceived and keeps it fresh on writes.
func (l *Ledger) WithCounts(c CountCache) *Ledger {
	l.counts = c
	return l
}

func (l *Ledger) WithPageSize(ps pagination.PageSize) *Ledger {
	l.pageSize = ps
	return l
}

// RecordInterest records from -> to and, in the same pair transaction,
// lets the Registry create the match if to -> from is already pending.
//
// Behavior:
//   - from == to → ErrSelfInterest.
//   - Either user unknown → NotFound.
//   - Block in either direction → ErrAlreadyBlocked.
//   - Pair already matched → the match is returned, nothing is written.
//   - Pair unmatched earlier → ErrAlreadyUnmatched.
//   - Repeating a pending interest is a no-op; Like upgrades to SuperLike.
//
// Example:
//
//	res, err := ledger.RecordInterest(ctx, "alice", "bob", domain.KindLike)
//	if res.Matched { ... }
func (l *Ledger) RecordInterest(ctx context.Context, from, to string, kind domain.InterestKind) (InterestResult, error) {
	ctx, span := tracer.Start(ctx, "matching.RecordInterest")
	defer span.End()
	span.SetAttributes(attribute.String("interest.kind", string(kind)))

	if err := validatePair(from, to); err != nil {
		return InterestResult{}, endSpan(span, err)
	}
	if !kind.Valid() {
		return InterestResult{}, endSpan(span, svcErr.Validation("unknown interest kind %q", kind))
	}

	var (
		res     InterestResult
		changed bool
	)
	err := l.repos.InPair(ctx, domain.NewPair(from, to), func(tx *repository.Repositories) error {
		res, changed = InterestResult{}, false

		n, err := tx.Profiles.CountExisting(ctx, from, to)
		if err != nil {
			return err
		}
		if n != 2 {
			return svcErr.NotFound("user %s or %s not found", from, to)
		}
		blocked, err := tx.Safety.IsBlocked(ctx, from, to)
		if err != nil {
			return err
		}
		if blocked {
			return svcErr.ErrAlreadyBlocked
		}

		existing, err := tx.Matches.GetByPair(ctx, domain.NewPair(from, to))
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.Active {
				return svcErr.ErrAlreadyUnmatched
			}
			res.Match = existing
			return nil
		}

		res.Interest, changed, err = tx.Interests.Put(ctx, from, to, kind, l.clock.Now())
		if err != nil {
			return err
		}
		res.Match, res.Matched, err = l.registry.tryCreateMatchTx(ctx, tx, from, to, kind)
		return err
	})
	if err != nil {
		return InterestResult{}, endSpan(span, err)
	}

	outcome := "noop"
	switch {
	case res.Matched:
		outcome = "matched"
		l.registry.afterMatch(ctx, res.Match)
	case changed:
		outcome = "pending"
		l.invalidate(ctx, to)
	}
	metrics.InterestsRecorded.WithLabelValues(string(kind), outcome).Inc()
	l.logger.DebugContext(ctx, "interest recorded", "from", from, "to", to, "kind", kind, "outcome", outcome)
	span.SetAttributes(attribute.String("interest.outcome", outcome))
	return res, nil
}

// WithdrawInterest deletes a pending interest. An interest that never
// existed, or that a match already consumed, is NotFound.
func (l *Ledger) WithdrawInterest(ctx context.Context, from, to string) error {
	if err := validatePair(from, to); err != nil {
		return err
	}
	var removed bool
	err := l.repos.InPair(ctx, domain.NewPair(from, to), func(tx *repository.Repositories) error {
		var err error
		removed, err = tx.Interests.DeletePending(ctx, from, to)
		return err
	})
	if err != nil {
		return err
	}
	if !removed {
		return svcErr.NotFound("no pending interest from %s to %s", from, to)
	}
	l.invalidate(ctx, to)
	return nil
}

// ListReceived pages through the pending interests sent to userID, hiding
// senders that are blocked either way or that userID passed on.
func (l *Ledger) ListReceived(ctx context.Context, userID string, token *string, limit int) ([]db.Interest, *string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, svcErr.Validation("user id is required")
	}
	limit = pagination.ClampPageSize(limit, l.pageSize)
	return l.repos.Interests.ListReceived(ctx, userID, token, limit, l.clock.Now())
}

// CountReceived is the total ListReceived would page through. It is
// served from the counter cache when one is configured.
func (l *Ledger) CountReceived(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, svcErr.Validation("user id is required")
	}
	if l.counts == nil {
		return l.repos.Interests.CountReceived(ctx, userID, l.clock.Now())
	}
	// an expiring pass changes the count without any write, so the
	// cached value must not outlive it
	load := func(ctx context.Context) (int64, time.Duration, error) {
		now := l.clock.Now()
		n, err := l.repos.Interests.CountReceived(ctx, userID, now)
		if err != nil {
			return 0, 0, err
		}
		next, err := l.repos.Passes.NextExpiry(ctx, userID, now)
		if err != nil {
			return 0, 0, err
		}
		if next == nil {
			return n, 0, nil
		}
		return n, next.Sub(now), nil
	}
	return l.counts.CountOrLoad(ctx, l.counts.KeyForReceivedCount(userID), load)
}

func (l *Ledger) invalidate(ctx context.Context, userIDs ...string) {
	if l.counts == nil {
		return
	}
	if err := l.counts.InvalidateReceivedCount(ctx, userIDs...); err != nil {
		l.logger.WarnContext(ctx, "failed to invalidate like counters", "users", userIDs, "err", err)
	}
}
