// Package feed builds the candidate feed: a stable, filtered,
// cursor-paginated walk over profiles in (created_at DESC, id DESC) order.
package feed

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/oggyb/muzz-matching/internal/clock"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
	"github.com/oggyb/muzz-matching/internal/validation"
)

// ProfileStore is the read side of the profile records.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*db.Profile, error)
	ListAfter(ctx context.Context, cursor pagination.Cursor, limit int) ([]db.Profile, error)
	IsVisible(ctx context.Context, userID string, field domain.ProfileField) (bool, error)
}

// BlockLister is satisfied by *safety.Gate.
type BlockLister interface {
	BlockedWith(ctx context.Context, userID string) ([]string, error)
}

// CountInvalidator is satisfied by *cache.RedisCache.
type CountInvalidator interface {
	InvalidateReceivedCount(ctx context.Context, userIDs ...string) error
}

// scanBatch is how many profiles one ListAfter call reads.
const scanBatch = 50

type Page struct {
	Candidates []domain.ProfileView `json:"candidates"`
	// NextCursor is empty once the feed is exhausted.
	NextCursor string `json:"next_cursor,omitempty"`
}

type Feed struct {
	profiles ProfileStore
	blocks   BlockLister
	repos    *repository.Repositories
	clock    clock.Clock
	logger   *slog.Logger

	pageSize pagination.PageSize
	passTTL  time.Duration
	counts   CountInvalidator
}

func New(
	profiles ProfileStore,
	blocks BlockLister,
	repos *repository.Repositories,
	clk clock.Clock,
	logger *slog.Logger,
) *Feed {
	return &Feed{
		profiles: profiles,
		blocks:   blocks,
		repos:    repos,
		clock:    clk,
		logger:   logger,
		pageSize: pagination.PageSize{Default: 10, Max: 50},
	}
}

func (f *Feed) WithPageSize(ps pagination.PageSize) *Feed {
	f.pageSize = ps
	return f
}

// WithPassTTL makes passes expire after ttl. Zero keeps them forever.
func (f *Feed) WithPassTTL(ttl time.Duration) *Feed {
	f.passTTL = ttl
	return f
}

// WithCounts drops the viewer's cached "who liked you" counter on pass,
// since passed senders leave that list.
func (f *Feed) WithCounts(c CountInvalidator) *Feed {
	f.counts = c
	return f
}

// NextPage returns up to pageSize candidates after cursor.
//
// Behavior:
//   - pageSize is clamped to the configured default and maximum.
//   - An empty cursor starts from the newest profile.
//   - NextCursor resumes right after the last returned candidate and is
//     empty when nothing eligible is left.
//
// Example:
//
//	page, err := feed.NextPage(ctx, "alice", domain.AllPreferences(), "", 20)
//	next, err := feed.NextPage(ctx, "alice", domain.AllPreferences(), page.NextCursor, 20)
func (f *Feed) NextPage(ctx context.Context, viewerID string, prefs domain.Preferences, cursor string, pageSize int) (Page, error) {
	start := time.Now()
	defer func() { metrics.FeedPageDuration.Observe(time.Since(start).Seconds()) }()

	size := pagination.ClampPageSize(pageSize, f.pageSize)
	page := Page{Candidates: make([]domain.ProfileView, 0, size)}

	// one candidate of lookahead tells whether the feed is exhausted
	for view, err := range f.Candidates(ctx, viewerID, prefs, cursor) {
		if err != nil {
			return Page{}, err
		}
		if len(page.Candidates) == size {
			last := page.Candidates[size-1]
			page.NextCursor = pagination.MustEncode(pagination.After(last.UserID, last.CreatedAt))
			break
		}
		page.Candidates = append(page.Candidates, view)
	}
	return page, nil
}

// Candidates is the lazy sequence behind NextPage. It reads profiles in
// batches and stops at the first error, when the caller stops, or when
// ctx is done.
func (f *Feed) Candidates(ctx context.Context, viewerID string, prefs domain.Preferences, cursor string) iter.Seq2[domain.ProfileView, error] {
	return func(yield func(domain.ProfileView, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(domain.ProfileView{}, err)
			return
		}
		pos, err := pagination.Decode(cursor)
		if err != nil {
			yield(domain.ProfileView{}, err)
			return
		}
		filter, err := f.newFilter(ctx, viewerID, prefs)
		if err != nil {
			yield(domain.ProfileView{}, err)
			return
		}

		for {
			if err := ctx.Err(); err != nil {
				yield(domain.ProfileView{}, err)
				return
			}
			batch, err := f.profiles.ListAfter(ctx, pos, scanBatch)
			if err != nil {
				yield(domain.ProfileView{}, err)
				return
			}
			for i := range batch {
				p := &batch[i]
				pos = pagination.After(p.ID, p.CreatedAt)

				decision := filter.decide(p)
				metrics.FeedScanned.WithLabelValues(decision).Inc()
				if decision != decisionShown {
					continue
				}
				if !yield(p.View(), nil) {
					return
				}
			}
			if len(batch) < scanBatch {
				return
			}
		}
	}
}

// RecordPass hides target from viewer's feed until the pass expires.
// Passing again refreshes the expiry.
func (f *Feed) RecordPass(ctx context.Context, viewerID, targetID string) error {
	viewerID, targetID = strings.TrimSpace(viewerID), strings.TrimSpace(targetID)
	if viewerID == "" || targetID == "" {
		return svcErr.Validation("viewer and target are required")
	}
	if viewerID == targetID {
		return svcErr.Validation("cannot pass on yourself")
	}
	if _, err := f.profiles.Get(ctx, targetID); err != nil {
		return err
	}

	now := f.clock.Now()
	var expiresAt *time.Time
	if f.passTTL > 0 {
		at := now.Add(f.passTTL)
		expiresAt = &at
	}
	if err := f.repos.Passes.Put(ctx, viewerID, targetID, now, expiresAt); err != nil {
		return err
	}
	if f.counts != nil {
		if err := f.counts.InvalidateReceivedCount(ctx, viewerID); err != nil {
			f.logger.WarnContext(ctx, "failed to invalidate like counter", "user_id", viewerID, "err", err)
		}
	}
	return nil
}

const (
	decisionShown      = "shown"
	decisionSelf       = "self"
	decisionBlocked    = "blocked"
	decisionMatched    = "matched"
	decisionPassed     = "passed"
	decisionHidden     = "hidden"
	decisionPreference = "preference"
)

// filter holds everything the viewer's exclusions need, loaded once per
// walk.
type filter struct {
	viewer  *db.Profile
	prefs   domain.Preferences
	blocked map[string]struct{}
	matched map[string]struct{}
	passed  map[string]struct{}
}

func (f *Feed) newFilter(ctx context.Context, viewerID string, prefs domain.Preferences) (*filter, error) {
	if strings.TrimSpace(viewerID) == "" {
		return nil, svcErr.Validation("viewer id is required")
	}
	if err := validation.Struct(prefs); err != nil {
		return nil, err
	}
	if prefs.Age.Min > 0 && prefs.Age.Max > 0 && prefs.Age.Min > prefs.Age.Max {
		return nil, svcErr.Validation("age range min %d is above max %d", prefs.Age.Min, prefs.Age.Max)
	}

	viewer, err := f.profiles.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	blocked, err := f.blocks.BlockedWith(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	matched, err := f.repos.Matches.CounterpartsOf(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	passed, err := f.repos.Passes.ActivePassed(ctx, viewerID, f.clock.Now())
	if err != nil {
		return nil, err
	}
	return &filter{
		viewer:  viewer,
		prefs:   prefs,
		blocked: toSet(blocked),
		matched: toSet(matched),
		passed:  toSet(passed),
	}, nil
}

// decide applies the exclusions in order, then the preferences. Filters
// read stored values; visibility flags only shape the view.
func (fl *filter) decide(p *db.Profile) string {
	switch {
	case p.ID == fl.viewer.ID:
		return decisionSelf
	case has(fl.blocked, p.ID):
		return decisionBlocked
	case has(fl.matched, p.ID):
		return decisionMatched
	case has(fl.passed, p.ID):
		return decisionPassed
	case !p.ProfileVisible:
		return decisionHidden
	}

	if !fl.prefs.Age.Matches(p.Age) ||
		!fl.prefs.Genders.Matches(p.GenderIdentity) ||
		!fl.prefs.Orientations.Matches(p.Orientation) {
		return decisionPreference
	}
	if fl.prefs.MaxDistanceKm > 0 {
		from, to := fl.viewer.Location(), p.Location()
		// no stored coordinates on either side: distance can't be judged
		if from != nil && to != nil && domain.DistanceKm(*from, *to) > fl.prefs.MaxDistanceKm {
			return decisionPreference
		}
	}
	return decisionShown
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func has(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}
