package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// MatchRepository stores matches. Only the matching registry writes here.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// GetByPair returns the match of a pair, active or not, or nil.
func (r *MatchRepository) GetByPair(ctx context.Context, pair domain.Pair) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", pair.Low, pair.High).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Get returns a match by id or a NotFound error.
func (r *MatchRepository) Get(ctx context.Context, matchID string) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).Where("id = ?", matchID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("match %s not found", matchID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts an active match. The unique pair index rejects a second
// row for the same pair.
func (r *MatchRepository) Create(ctx context.Context, pair domain.Pair, origin domain.InterestKind, now time.Time) (*db.Match, error) {
	m := db.Match{
		UserLow:   pair.Low,
		UserHigh:  pair.High,
		Origin:    string(origin),
		Active:    true,
		CreatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Deactivate marks the match inactive. Reports false when it already was.
func (r *MatchRepository) Deactivate(ctx context.Context, matchID, by string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND active = ?", matchID, true).
		Updates(map[string]any{"active": false, "unmatched_at": now, "unmatched_by": by})
	return res.RowsAffected > 0, res.Error
}

// ListActive returns the active matches of userID, newest first, hiding
// pairs with a block in either direction.
func (r *MatchRepository) ListActive(ctx context.Context, userID string) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Table("matches m").
		Select("m.*").
		Where("(m.user_low = ? OR m.user_high = ?) AND m.active = ?", userID, userID, true).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = m.user_low AND b.blocked_id = m.user_high)
				   OR (b.blocker_id = m.user_high AND b.blocked_id = m.user_low)
			)`).
		Order("m.created_at DESC, m.id DESC").
		Find(&matches).Error
	return matches, err
}

// CounterpartsOf returns every user ever matched with userID, active or
// inactive.
func (r *MatchRepository) CounterpartsOf(ctx context.Context, userID string) ([]string, error) {
	var low, high []string
	if err := r.db.WithContext(ctx).Model(&db.Match{}).
		Where("user_high = ?", userID).Pluck("user_low", &low).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&db.Match{}).
		Where("user_low = ?", userID).Pluck("user_high", &high).Error; err != nil {
		return nil, err
	}
	return append(low, high...), nil
}
