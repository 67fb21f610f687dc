package repository

import (
	"context"

	"gorm.io/gorm"

	"mindbridge-go/internal/model"
)

// SeverityCount 是某量表某等级的结果数量。
type SeverityCount struct {
	ScreeningType string `json:"screeningType"`
	Severity      string `json:"severity"`
	Count         int64  `json:"count"`
}

// ScreeningRepository 定义了量表结果的持久化操作。
type ScreeningRepository interface {
	Create(ctx context.Context, result *model.ScreeningResult) error
	FindByID(ctx context.Context, id uint) (*model.ScreeningResult, error)
	ListByUser(ctx context.Context, userID uint) ([]model.ScreeningResult, error)
	CountByTypeAndSeverity(ctx context.Context) ([]SeverityCount, error)
	MarkCounselorNotified(ctx context.Context, id uint) error
	Count(ctx context.Context) (int64, error)
	Recent(ctx context.Context, limit int) ([]model.ScreeningResult, error)
}

type screeningRepository struct {
	db *gorm.DB
}

func NewScreeningRepository(db *gorm.DB) ScreeningRepository {
	return &screeningRepository{db: db}
}

func (r *screeningRepository) Create(ctx context.Context, result *model.ScreeningResult) error {
	return wrap(r.db.WithContext(ctx).Create(result).Error, "create screening result for user %d", result.UserID)
}

func (r *screeningRepository) FindByID(ctx context.Context, id uint) (*model.ScreeningResult, error) {
	var res model.ScreeningResult
	if err := r.db.WithContext(ctx).First(&res, id).Error; err != nil {
		return nil, wrap(err, "find screening result %d", id)
	}
	return &res, nil
}

// ListByUser 按完成时间倒序返回，不含逐题作答。
func (r *screeningRepository) ListByUser(ctx context.Context, userID uint) ([]model.ScreeningResult, error) {
	var results []model.ScreeningResult
	err := r.db.WithContext(ctx).
		Select("id", "user_id", "screening_type", "total_score", "severity", "interpretation",
			"follow_up_required", "follow_up_date", "completed_at").
		Where("user_id = ?", userID).
		Order("completed_at DESC").
		Find(&results).Error
	return results, wrap(err, "list screening results of user %d", userID)
}

func (r *screeningRepository) CountByTypeAndSeverity(ctx context.Context) ([]SeverityCount, error) {
	var rows []SeverityCount
	err := r.db.WithContext(ctx).Model(&model.ScreeningResult{}).
		Select("screening_type, severity, COUNT(*) AS count").
		Group("screening_type, severity").
		Order("screening_type").
		Scan(&rows).Error
	return rows, wrap(err, "count screening results")
}

// MarkCounselorNotified 是结果创建后唯一允许的修改。
func (r *screeningRepository) MarkCounselorNotified(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&model.ScreeningResult{}).Where("id = ?", id).Update("counselor_notified", true)
	if res.Error != nil {
		return wrap(res.Error, "mark screening result %d notified", id)
	}
	if res.RowsAffected == 0 {
		return wrap(gorm.ErrRecordNotFound, "mark screening result %d notified", id)
	}
	return nil
}

func (r *screeningRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ScreeningResult{}).Count(&n).Error
	return n, wrap(err, "count screening results")
}

func (r *screeningRepository) Recent(ctx context.Context, limit int) ([]model.ScreeningResult, error) {
	var results []model.ScreeningResult
	err := r.db.WithContext(ctx).Omit("responses").Order("completed_at DESC").Limit(limit).Find(&results).Error
	return results, wrap(err, "list recent screening results")
}
