package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"mindbridge-go/internal/model"
)

// AppointmentRepository 定义了预约的持久化操作。
// Create/Update 在 slot_key 唯一索引冲突时返回 apperr.ErrConflict。
type AppointmentRepository interface {
	Create(ctx context.Context, appt *model.Appointment) error
	FindByID(ctx context.Context, id uint) (*model.Appointment, error)
	Update(ctx context.Context, appt *model.Appointment) error
	ListByCounselorBetween(ctx context.Context, counselorID uint, from, to time.Time) ([]model.Appointment, error)
	ListByStudent(ctx context.Context, studentID uint) ([]model.Appointment, error)
	ListByCounselor(ctx context.Context, counselorID uint) ([]model.Appointment, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[model.AppointmentStatus]int64, error)
	Recent(ctx context.Context, limit int) ([]model.Appointment, error)
}

type appointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) AppointmentRepository {
	return &appointmentRepository{db: db}
}

func (r *appointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	return wrap(r.db.WithContext(ctx).Create(appt).Error, "create appointment for counselor %d", appt.CounselorID)
}

func (r *appointmentRepository) FindByID(ctx context.Context, id uint) (*model.Appointment, error) {
	var appt model.Appointment
	if err := r.db.WithContext(ctx).First(&appt, id).Error; err != nil {
		return nil, wrap(err, "find appointment %d", id)
	}
	return &appt, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appt *model.Appointment) error {
	return wrap(r.db.WithContext(ctx).Save(appt).Error, "update appointment %d", appt.ID)
}

// ListByCounselorBetween 返回 [from, to) 内该咨询师的全部预约（含已取消），由调用方过滤。
func (r *appointmentRepository) ListByCounselorBetween(ctx context.Context, counselorID uint, from, to time.Time) ([]model.Appointment, error) {
	var appts []model.Appointment
	err := r.db.WithContext(ctx).
		Where("counselor_id = ? AND appointment_date >= ? AND appointment_date < ?", counselorID, from, to).
		Order("appointment_date").
		Find(&appts).Error
	return appts, wrap(err, "list appointments of counselor %d", counselorID)
}

func (r *appointmentRepository) ListByStudent(ctx context.Context, studentID uint) ([]model.Appointment, error) {
	var appts []model.Appointment
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).Order("appointment_date DESC").Find(&appts).Error
	return appts, wrap(err, "list appointments of student %d", studentID)
}

func (r *appointmentRepository) ListByCounselor(ctx context.Context, counselorID uint) ([]model.Appointment, error) {
	var appts []model.Appointment
	err := r.db.WithContext(ctx).Where("counselor_id = ?", counselorID).Order("appointment_date").Find(&appts).Error
	return appts, wrap(err, "list appointments of counselor %d", counselorID)
}

func (r *appointmentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Appointment{}).Count(&n).Error
	return n, wrap(err, "count appointments")
}

func (r *appointmentRepository) CountByStatus(ctx context.Context) (map[model.AppointmentStatus]int64, error) {
	var rows []struct {
		Status model.AppointmentStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.Appointment{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, wrap(err, "count appointments by status")
	}
	out := make(map[model.AppointmentStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *appointmentRepository) Recent(ctx context.Context, limit int) ([]model.Appointment, error) {
	var appts []model.Appointment
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&appts).Error
	return appts, wrap(err, "list recent appointments")
}
