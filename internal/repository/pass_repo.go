package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
)

// PassRepository stores feed passes. Passes carry no safety weight.
type PassRepository struct {
	db *gorm.DB
}

func NewPassRepository(database *gorm.DB) *PassRepository {
	return &PassRepository{db: database}
}

// Put records or refreshes userID passing on passedID. A nil expiresAt
// never expires.
//
// Behavior:
//   - If (user_id, passed_id) exists → created_at and expires_at are refreshed.
//   - If it doesn't exist → a new row is inserted.
func (r *PassRepository) Put(ctx context.Context, userID, passedID string, now time.Time, expiresAt *time.Time) error {
	p := db.Pass{UserID: userID, PassedID: passedID, CreatedAt: now, ExpiresAt: expiresAt}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "passed_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"created_at", "expires_at"}),
		}).
		Create(&p).Error
}

// ActivePassed lists the users userID passed on whose pass has not
// expired at now.
func (r *PassRepository) ActivePassed(ctx context.Context, userID string, now time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&db.Pass{}).
		Where("user_id = ? AND (expires_at IS NULL OR expires_at > ?)", userID, now).
		Pluck("passed_id", &ids).Error
	return ids, err
}

// NextExpiry is the soonest expiry among userID's passes still active at
// now, or nil when none of them expires.
func (r *PassRepository) NextExpiry(ctx context.Context, userID string, now time.Time) (*time.Time, error) {
	var passes []db.Pass
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at IS NOT NULL AND expires_at > ?", userID, now).
		Order("expires_at ASC").
		Limit(1).
		Find(&passes).Error
	if err != nil || len(passes) == 0 {
		return nil, err
	}
	return passes[0].ExpiresAt, nil
}
