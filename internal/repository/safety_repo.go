package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// SafetyRepository stores blocks and reports.
type SafetyRepository struct {
	db *gorm.DB
}

func NewSafetyRepository(database *gorm.DB) *SafetyRepository {
	return &SafetyRepository{db: database}
}

// Block inserts blocker -> blocked. Reports false when it already existed.
func (r *SafetyRepository) Block(ctx context.Context, blocker, blocked string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.Block{BlockerID: blocker, BlockedID: blocked, CreatedAt: now})
	return res.RowsAffected > 0, res.Error
}

// IsBlocked checks both directions.
func (r *SafetyRepository) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// BlockedWith lists everyone userID blocked or was blocked by.
func (r *SafetyRepository) BlockedWith(ctx context.Context, userID string) ([]string, error) {
	var blocked, blockers []string
	if err := r.db.WithContext(ctx).Model(&db.Block{}).
		Where("blocker_id = ?", userID).Pluck("blocked_id", &blocked).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&db.Block{}).
		Where("blocked_id = ?", userID).Pluck("blocker_id", &blockers).Error; err != nil {
		return nil, err
	}
	return append(blocked, blockers...), nil
}

func (r *SafetyRepository) CreateReport(ctx context.Context, rep *db.Report) error {
	return r.db.WithContext(ctx).Create(rep).Error
}

func (r *SafetyRepository) GetReport(ctx context.Context, id string) (*db.Report, error) {
	var rep db.Report
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("report %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// SetReportStatus moves a report from one status to the next. The
// expected current status in the WHERE clause makes the write a
// compare-and-set; false means someone else moved it first.
func (r *SafetyRepository) SetReportStatus(ctx context.Context, id string, from, to domain.ReportStatus, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Report{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": now})
	return res.RowsAffected > 0, res.Error
}

// ReportsAgainst lists reports filed about targetID, newest first.
func (r *SafetyRepository) ReportsAgainst(ctx context.Context, targetID string) ([]db.Report, error) {
	var reps []db.Report
	err := r.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("created_at DESC, id DESC").
		Find(&reps).Error
	return reps, err
}
