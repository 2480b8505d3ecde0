// Package safety owns blocks and reports. The feed, the matching registry
// and conversations ask the gate before showing one user anything of
// another; the gate itself never rewrites their data.
package safety

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oggyb/muzz-matching/internal/clock"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/stream"
	"github.com/oggyb/muzz-matching/internal/validation"
)

// EventPublisher is satisfied by *stream.Broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev stream.Event) error
}

// CountInvalidator is satisfied by *cache.RedisCache.
type CountInvalidator interface {
	InvalidateReceivedCount(ctx context.Context, userIDs ...string) error
}

type Gate struct {
	repos  *repository.Repositories
	clock  clock.Clock
	logger *slog.Logger

	events EventPublisher
	counts CountInvalidator
}

func NewGate(repos *repository.Repositories, clk clock.Clock, logger *slog.Logger) *Gate {
	return &Gate{repos: repos, clock: clk, logger: logger}
}

// WithEvents makes Block nudge live conversation streams of the pair.
func (g *Gate) WithEvents(p EventPublisher) *Gate {
	g.events = p
	return g
}

// WithCounts makes Block drop cached "who liked you" counters.
func (g *Gate) WithCounts(c CountInvalidator) *Gate {
	g.counts = c
	return g
}

// Block records blocker -> blocked. Blocking twice is a no-op.
//
// Nothing else is rewritten: the feed, matching and conversations see
// the block on their next check. If the pair has a match, open streams
// are told to re-check right away.
func (g *Gate) Block(ctx context.Context, blocker, blocked string) error {
	blocker, blocked = strings.TrimSpace(blocker), strings.TrimSpace(blocked)
	if blocker == "" || blocked == "" {
		return svcErr.Validation("blocker and blocked are required")
	}
	if blocker == blocked {
		return svcErr.Validation("cannot block yourself")
	}

	created, err := g.repos.Safety.Block(ctx, blocker, blocked, g.clock.Now())
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	metrics.SafetyActions.WithLabelValues("block").Inc()
	g.logger.InfoContext(ctx, "user blocked", "blocker", blocker, "blocked", blocked)

	if g.counts != nil {
		if err := g.counts.InvalidateReceivedCount(ctx, blocker, blocked); err != nil {
			g.logger.WarnContext(ctx, "failed to invalidate like counters", "err", err)
		}
	}

	if g.events != nil {
		m, err := g.repos.Matches.GetByPair(ctx, domain.NewPair(blocker, blocked))
		if err != nil {
			g.logger.WarnContext(ctx, "block: match lookup failed", "err", err)
			return nil
		}
		if m != nil {
			ev := stream.Event{Type: stream.SafetyChanged, MatchID: m.ID, ActorID: blocker, At: g.clock.Now()}
			if err := g.events.Publish(ctx, ev); err != nil {
				g.logger.WarnContext(ctx, "block: failed to notify live streams", "match_id", m.ID, "err", err)
			}
		}
	}
	return nil
}

// IsBlocked reports whether a block exists in either direction.
func (g *Gate) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	return g.repos.Safety.IsBlocked(ctx, a, b)
}

// BlockedWith lists every user with a block to or from userID.
func (g *Gate) BlockedWith(ctx context.Context, userID string) ([]string, error) {
	return g.repos.Safety.BlockedWith(ctx, userID)
}

// ReportInput is a report as filed by a user.
type ReportInput struct {
	ReporterID string                  `json:"reporter_id" validate:"required,max=64"`
	TargetID   string                  `json:"target_id" validate:"required,max=64"`
	TargetKind domain.ReportTargetKind `json:"target_kind" validate:"required,oneof=user photo message"`
	Reason     string                  `json:"reason" validate:"required,max=1000"`
}

// Report files a pending report. It only fails on malformed input and
// changes no matching or conversation state.
func (g *Gate) Report(ctx context.Context, in ReportInput) (*db.Report, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.TargetKind == domain.TargetUser && in.TargetID == in.ReporterID {
		return nil, svcErr.Validation("cannot report yourself")
	}

	rep := &db.Report{
		ReporterID: in.ReporterID,
		TargetID:   in.TargetID,
		TargetKind: string(in.TargetKind),
		Reason:     in.Reason,
		Status:     string(domain.ReportPending),
		CreatedAt:  g.clock.Now(),
		UpdatedAt:  g.clock.Now(),
	}
	if err := g.repos.Safety.CreateReport(ctx, rep); err != nil {
		return nil, err
	}
	metrics.SafetyActions.WithLabelValues("report").Inc()
	g.logger.InfoContext(ctx, "report filed", "report_id", rep.ID, "kind", rep.TargetKind)
	return rep, nil
}

// AdvanceReport moves a report forward for the review process. Moving
// backwards is a validation error; repeating the current status is a
// no-op.
func (g *Gate) AdvanceReport(ctx context.Context, reportID string, next domain.ReportStatus) (*db.Report, error) {
	if !next.Valid() {
		return nil, svcErr.Validation("unknown report status %q", next)
	}
	rep, err := g.repos.Safety.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	current := domain.ReportStatus(rep.Status)
	if !current.CanAdvanceTo(next) {
		return nil, svcErr.Validation("report status cannot go from %s to %s", current, next)
	}
	if current == next {
		return rep, nil
	}

	ok, err := g.repos.Safety.SetReportStatus(ctx, reportID, current, next, g.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// moved concurrently; re-evaluate against the fresh status
		return g.AdvanceReport(ctx, reportID, next)
	}
	return g.repos.Safety.GetReport(ctx, reportID)
}

// ReportsAgainst lists reports about targetID for reviewers.
func (g *Gate) ReportsAgainst(ctx context.Context, targetID string) ([]db.Report, error) {
	return g.repos.Safety.ReportsAgainst(ctx, targetID)
}
