package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// ProfileRepository reads the profile records owned by the profile
// service. The matching core never edits them; Upsert exists for seeding
// and for the profile sync job.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// Get returns the stored profile or a NotFound error.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).Where("id = ?", userID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("user %s not found", userID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CountExisting returns how many of ids have a profile.
func (r *ProfileRepository) CountExisting(ctx context.Context, ids ...string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Profile{}).Where("id IN ?", ids).Count(&n).Error
	return n, err
}

// ListAfter returns up to limit profiles strictly after cursor in
// (created_at DESC, id DESC) order. A zero cursor starts from the newest.
//
// Example:
//
//	repo.ListAfter(ctx, pagination.Cursor{}, 50) // newest 50 profiles
func (r *ProfileRepository) ListAfter(ctx context.Context, cursor pagination.Cursor, limit int) ([]db.Profile, error) {
	var profiles []db.Profile

	query := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if !cursor.IsZero() {
		ts := cursor.Time()
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// IsVisible reports the owner's visibility flag for one field.
func (r *ProfileRepository) IsVisible(ctx context.Context, userID string, field domain.ProfileField) (bool, error) {
	p, err := r.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.IsVisible(field), nil
}

// Upsert writes a profile, replacing every column of an existing row.
func (r *ProfileRepository) Upsert(ctx context.Context, p *db.Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(p).Error
}
