package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// InterestRepository provides data access methods for the Interest model.
// It encapsulates all queries related to likes between users.
type InterestRepository struct {
	db *gorm.DB
}

// NewInterestRepository creates a new repository bound to the given DB connection.
func NewInterestRepository(database *gorm.DB) *InterestRepository {
	return &InterestRepository{db: database}
}

// Get returns the interest from -> to, or nil when there is none.
func (r *InterestRepository) Get(ctx context.Context, from, to string) (*db.Interest, error) {
	var in db.Interest
	err := r.db.WithContext(ctx).Where("from_id = ? AND to_id = ?", from, to).Take(&in).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// Put records a pending interest from -> to.
//
// Behavior:
//   - No row yet → a pending row is inserted.
//   - Pending row exists → kept as is, except a Like is upgraded to a
//     SuperLike. Never downgraded.
//   - Consumed row exists → untouched; the pair already matched.
//
// Returns the row as stored and whether anything changed.
//
// Example:
//
//	repo.Put(ctx, "alice", "bob", domain.KindLike, now)
func (r *InterestRepository) Put(
	ctx context.Context,
	from, to string,
	kind domain.InterestKind,
	now time.Time,
) (*db.Interest, bool, error) {
	existing, err := r.Get(ctx, from, to)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		in := db.Interest{
			FromID:    from,
			ToID:      to,
			Kind:      string(kind),
			Status:    db.InterestPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.db.WithContext(ctx).Create(&in).Error; err != nil {
			return nil, false, err
		}
		return &in, true, nil
	}

	if existing.Status != db.InterestPending || !kind.Stronger(domain.InterestKind(existing.Kind)) {
		return existing, false, nil
	}

	err = r.db.WithContext(ctx).
		Model(&db.Interest{}).
		Where("from_id = ? AND to_id = ? AND status = ?", from, to, db.InterestPending).
		Updates(map[string]any{"kind": string(kind), "updated_at": now}).Error
	if err != nil {
		return nil, false, err
	}
	existing.Kind = string(kind)
	existing.UpdatedAt = now
	return existing, true, nil
}

// DeletePending removes a pending interest. Reports false when there was
// no pending row to remove.
func (r *InterestRepository) DeletePending(ctx context.Context, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("from_id = ? AND to_id = ? AND status = ?", from, to, db.InterestPending).
		Delete(&db.Interest{})
	return res.RowsAffected > 0, res.Error
}

// ConsumePair marks both directions of a pair as consumed by a match.
func (r *InterestRepository) ConsumePair(ctx context.Context, pair domain.Pair, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Interest{}).
		Where("(from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)",
			pair.Low, pair.High, pair.High, pair.Low).
		Updates(map[string]any{"status": db.InterestConsumed, "updated_at": now}).Error
}

// receivedQuery selects pending interests addressed to recipientID,
// hiding senders the recipient blocked, was blocked by, or passed on.
func (r *InterestRepository) receivedQuery(ctx context.Context, recipientID string, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("interests i").
		Where("i.to_id = ? AND i.status = ?", recipientID, db.InterestPending).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = i.to_id AND b.blocked_id = i.from_id)
				   OR (b.blocker_id = i.from_id AND b.blocked_id = i.to_id)
			)`).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM passes p
				WHERE p.user_id = i.to_id
				  AND p.passed_id = i.from_id
				  AND (p.expires_at IS NULL OR p.expires_at > ?)
			)`, now)
}

// ListReceived returns pending interests sent to recipientID ("who liked
// you").
//
// Behavior:
//   - Excludes blocked users (either direction) and unexpired passes.
//   - Ordered by updated_at DESC, from_id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListReceived(ctx, "bob", nil, 20, now)
func (r *InterestRepository) ListReceived(
	ctx context.Context,
	recipientID string,
	paginationToken *string,
	limit int,
	now time.Time,
) ([]db.Interest, *string, error) {
	var interests []db.Interest

	// decode cursor if provided
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.receivedQuery(ctx, recipientID, now).
		Select("i.*").
		Order("i.updated_at DESC, i.from_id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := cursor.Time()
		query = query.Where(
			"(i.updated_at < ? OR (i.updated_at = ? AND i.from_id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&interests).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(interests) > limit {
		last := interests[limit-1]
		token, _ := pagination.Encode(pagination.After(last.FromID, last.UpdatedAt))
		nextToken = &token
		interests = interests[:limit]
	}

	return interests, nextToken, nil
}

// CountReceived counts what ListReceived would return across all pages.
// Used in conjunction with Redis cache (DB is fallback).
func (r *InterestRepository) CountReceived(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	var count int64
	if err := r.receivedQuery(ctx, recipientID, now).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
