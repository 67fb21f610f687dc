package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mindbridge-go/internal/availability"
	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/lock"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/tasks"
)

// DefaultCompletionFollowUp 是预约完成后默认的回访间隔。
const DefaultCompletionFollowUp = 7 * 24 * time.Hour

// BookRequest 是预约请求。Type/Mode/Priority 为空时使用默认值。
type BookRequest struct {
	StudentID       uint
	CounselorID     uint
	AppointmentDate time.Time
	Reason          string
	Type            model.AppointmentType
	Mode            model.AppointmentMode
	Priority        model.Priority
	Location        string
	MeetingLink     string
	StudentNotes    string
}

// AppointmentService 接口定义了预约生命周期相关的业务操作。
type AppointmentService interface {
	ListCounselors(ctx context.Context) ([]model.User, error)
	Availability(ctx context.Context, counselorID uint, date string) ([]availability.Slot, error)
	Book(ctx context.Context, actor Actor, req BookRequest) (*model.Appointment, error)
	Get(ctx context.Context, actor Actor, id uint) (*model.Appointment, error)
	ListForStudent(ctx context.Context, actor Actor, studentID uint) ([]model.Appointment, error)
	ListForCounselor(ctx context.Context, actor Actor, counselorID uint, date string) ([]model.Appointment, error)
	Cancel(ctx context.Context, actor Actor, id uint, reason string) (*model.Appointment, error)
	Reschedule(ctx context.Context, actor Actor, id uint, newDate time.Time, reason string) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, actor Actor, id uint, status model.AppointmentStatus, notes string) (*model.Appointment, error)
	SubmitFeedback(ctx context.Context, actor Actor, id uint, rating int, comments string) (*model.Appointment, error)
}

type appointmentService struct {
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	locker       lock.Locker
	publisher    TaskPublisher
	policy       availability.Policy
	followUp     time.Duration
	now          func() time.Time
}

// NewAppointmentService 创建一个新的 AppointmentService 实例。
// publisher 可以为 nil，此时不发送通知。
func NewAppointmentService(
	appointments repository.AppointmentRepository,
	users repository.UserRepository,
	locker lock.Locker,
	publisher TaskPublisher,
	policy availability.Policy,
	completionFollowUp time.Duration,
) AppointmentService {
	return newAppointmentService(appointments, users, locker, publisher, policy, completionFollowUp)
}

func newAppointmentService(
	appointments repository.AppointmentRepository,
	users repository.UserRepository,
	locker lock.Locker,
	publisher TaskPublisher,
	policy availability.Policy,
	completionFollowUp time.Duration,
) *appointmentService {
	if completionFollowUp <= 0 {
		completionFollowUp = DefaultCompletionFollowUp
	}
	return &appointmentService{
		appointments: appointments,
		users:        users,
		locker:       locker,
		publisher:    publisher,
		policy:       policy,
		followUp:     completionFollowUp,
		now:          time.Now,
	}
}

func counselorLockKey(counselorID uint) string {
	return fmt.Sprintf("appointment:counselor:%d", counselorID)
}

// ListCounselors 返回所有启用的咨询师。
func (s *appointmentService) ListCounselors(ctx context.Context) ([]model.User, error) {
	return s.users.ListActiveByRole(ctx, model.RoleCounselor)
}

func (s *appointmentService) activeCounselor(ctx context.Context, counselorID uint) (*model.User, error) {
	u, err := s.users.FindByID(ctx, counselorID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("counselor %d: %w", counselorID, ErrCounselorNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActiveCounselor() {
		return nil, fmt.Errorf("user %d is not an active counselor: %w", counselorID, ErrCounselorNotFound)
	}
	return u, nil
}

func (s *appointmentService) dayBookings(ctx context.Context, counselorID uint, date time.Time, excludeID uint) ([]availability.Booking, error) {
	from, to := s.policy.DayBounds(date)
	appts, err := s.appointments.ListByCounselorBetween(ctx, counselorID, from, to)
	if err != nil {
		return nil, err
	}
	bookings := make([]availability.Booking, 0, len(appts))
	for _, a := range appts {
		if a.ID == excludeID {
			continue
		}
		bookings = append(bookings, availability.Booking{Start: a.AppointmentDate, Status: a.Status})
	}
	return bookings, nil
}

// Availability 返回咨询师某天的空闲时段，date 格式为 YYYY-MM-DD。
func (s *appointmentService) Availability(ctx context.Context, counselorID uint, date string) ([]availability.Slot, error) {
	day, err := availability.ParseDate(date, s.policy.Location)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeCounselor(ctx, counselorID); err != nil {
		return nil, err
	}
	bookings, err := s.dayBookings(ctx, counselorID, day, 0)
	if err != nil {
		return nil, err
	}
	return s.policy.Slots(day, bookings), nil
}

// validateInstant 预约时间必须在未来，且正好是某个时段的起点。
func (s *appointmentService) validateInstant(field string, at time.Time) error {
	if at.IsZero() {
		return apperr.Invalid(field, "is required")
	}
	if !at.After(s.now()) {
		return apperr.Invalid(field, "must be in the future")
	}
	if !s.policy.OnGrid(at) {
		return apperr.Invalid(field, "must be the start of a bookable slot within working hours")
	}
	return nil
}

func normalizeBooking(req *BookRequest) error {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return apperr.Invalid("reason", "is required")
	}
	if req.Type == "" {
		req.Type = model.TypeIndividual
	} else if !req.Type.Valid() {
		return apperr.Invalid("type", "unknown appointment type")
	}
	if req.Mode == "" {
		req.Mode = model.ModeInPerson
	} else if !req.Mode.Valid() {
		return apperr.Invalid("mode", "unknown appointment mode")
	}
	if req.Priority == "" {
		req.Priority = model.PriorityMedium
	} else if !req.Priority.Valid() {
		return apperr.Invalid("priority", "unknown priority")
	}
	return nil
}

// Book 创建预约。检查和写入在咨询师级别的锁内完成，
// 数据库的 slot_key 唯一索引兜底多实例并发。
func (s *appointmentService) Book(ctx context.Context, actor Actor, req BookRequest) (*model.Appointment, error) {
	if actor.IsStudent() {
		if req.StudentID != 0 && req.StudentID != actor.UserID {
			return nil, ErrNotOwner
		}
		req.StudentID = actor.UserID
	}
	if req.StudentID == 0 {
		return nil, apperr.Invalid("studentId", "is required")
	}
	if err := normalizeBooking(&req); err != nil {
		return nil, err
	}
	if err := s.validateInstant("appointmentDate", req.AppointmentDate); err != nil {
		return nil, err
	}
	if _, err := s.activeCounselor(ctx, req.CounselorID); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, counselorLockKey(req.CounselorID))
	if err != nil {
		return nil, fmt.Errorf("lock counselor %d: %w", req.CounselorID, err)
	}
	defer unlock()

	bookings, err := s.dayBookings(ctx, req.CounselorID, req.AppointmentDate, 0)
	if err != nil {
		return nil, err
	}
	if !s.policy.IsFree(req.AppointmentDate, bookings) {
		return nil, ErrSlotUnavailable
	}

	appt := &model.Appointment{
		StudentID:       req.StudentID,
		CounselorID:     req.CounselorID,
		AppointmentDate: req.AppointmentDate,
		Duration:        int(s.policy.Slot / time.Minute),
		Status:          model.AppointmentScheduled,
		Type:            req.Type,
		Mode:            req.Mode,
		Priority:        req.Priority,
		Reason:          req.Reason,
		Location:        req.Location,
		MeetingLink:     req.MeetingLink,
		StudentNotes:    req.StudentNotes,
	}
	appt.SyncSlotKey()
	if err := s.appointments.Create(ctx, appt); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	log.Infow("appointment booked", "appointmentId", appt.ID, "studentId", appt.StudentID,
		"counselorId", appt.CounselorID, "at", appt.AppointmentDate)
	publish(ctx, s.publisher, tasks.NotificationTask{
		Kind:          tasks.KindAppointmentBooked,
		AppointmentID: appt.ID,
		UserID:        appt.StudentID,
		CounselorID:   appt.CounselorID,
		Status:        string(appt.Status),
		ScheduledFor:  &appt.AppointmentDate,
	}, s.now())
	return appt, nil
}

func (s *appointmentService) load(ctx context.Context, actor Actor, id uint) (*model.Appointment, error) {
	appt, err := s.appointments.FindByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("appointment %d: %w", id, ErrAppointmentNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !actor.canAccessAppointment(appt) {
		return nil, ErrNotOwner
	}
	return appt, nil
}

// mutate 在咨询师锁内重新读取预约并执行 fn，fn 返回 nil 时保存。
func (s *appointmentService) mutate(ctx context.Context, actor Actor, id uint, fn func(appt *model.Appointment) error) (*model.Appointment, error) {
	appt, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, counselorLockKey(appt.CounselorID))
	if err != nil {
		return nil, fmt.Errorf("lock counselor %d: %w", appt.CounselorID, err)
	}
	defer unlock()

	// 加锁后重新读取，避免基于过期状态做判断
	appt, err = s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := fn(appt); err != nil {
		return nil, err
	}
	appt.SyncSlotKey()
	if err := s.appointments.Update(ctx, appt); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	return appt, nil
}

func (s *appointmentService) Get(ctx context.Context, actor Actor, id uint) (*model.Appointment, error) {
	return s.load(ctx, actor, id)
}

func (s *appointmentService) ListForStudent(ctx context.Context, actor Actor, studentID uint) ([]model.Appointment, error) {
	if actor.IsStudent() && actor.UserID != studentID {
		return nil, ErrNotOwner
	}
	return s.appointments.ListByStudent(ctx, studentID)
}

// ListForCounselor 返回咨询师的预约，date 非空时只返回当天的。
func (s *appointmentService) ListForCounselor(ctx context.Context, actor Actor, counselorID uint, date string) ([]model.Appointment, error) {
	if actor.IsStudent() || (actor.IsCounselor() && actor.UserID != counselorID) {
		return nil, ErrNotOwner
	}
	if date == "" {
		return s.appointments.ListByCounselor(ctx, counselorID)
	}
	day, err := availability.ParseDate(date, s.policy.Location)
	if err != nil {
		return nil, err
	}
	from, to := s.policy.DayBounds(day)
	return s.appointments.ListByCounselorBetween(ctx, counselorID, from, to)
}

// Cancel 取消预约。已完成的返回 ErrAlreadyCompleted，重复取消返回 ErrAlreadyCancelled。
func (s *appointmentService) Cancel(ctx context.Context, actor Actor, id uint, reason string) (*model.Appointment, error) {
	appt, err := s.mutate(ctx, actor, id, func(appt *model.Appointment) error {
		switch {
		case appt.Status == model.AppointmentCompleted:
			return ErrAlreadyCompleted
		case appt.Status == model.AppointmentCancelled:
			return ErrAlreadyCancelled
		case !appt.Status.CanTransitionTo(model.AppointmentCancelled):
			return fmt.Errorf("cancel from %s: %w", appt.Status, ErrInvalidTransition)
		}
		now := s.now()
		appt.Status = model.AppointmentCancelled
		appt.CancellationReason = strings.TrimSpace(reason)
		if appt.CancellationReason == "" {
			appt.CancellationReason = "Appointment cancelled"
		}
		appt.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infow("appointment cancelled", "appointmentId", appt.ID, "by", actor.UserID)
	publish(ctx, s.publisher, tasks.NotificationTask{
		Kind:          tasks.KindAppointmentCancelled,
		AppointmentID: appt.ID,
		UserID:        appt.StudentID,
		CounselorID:   appt.CounselorID,
		Status:        string(appt.Status),
		Reason:        appt.CancellationReason,
	}, s.now())
	return appt, nil
}

// Reschedule 原地修改预约时间，预约 ID 不变。只有 scheduled/confirmed 可以改期。
func (s *appointmentService) Reschedule(ctx context.Context, actor Actor, id uint, newDate time.Time, reason string) (*model.Appointment, error) {
	if err := s.validateInstant("newDate", newDate); err != nil {
		return nil, err
	}
	appt, err := s.mutate(ctx, actor, id, func(appt *model.Appointment) error {
		switch appt.Status {
		case model.AppointmentCompleted:
			return ErrAlreadyCompleted
		case model.AppointmentScheduled, model.AppointmentConfirmed:
		default:
			return fmt.Errorf("reschedule from %s: %w", appt.Status, ErrInvalidTransition)
		}
		bookings, err := s.dayBookings(ctx, appt.CounselorID, newDate, appt.ID)
		if err != nil {
			return err
		}
		if !s.policy.IsFree(newDate, bookings) {
			return ErrSlotUnavailable
		}
		old := appt.AppointmentDate
		appt.RescheduledFrom = &old
		appt.AppointmentDate = newDate
		appt.RescheduleReason = strings.TrimSpace(reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infow("appointment rescheduled", "appointmentId", appt.ID, "from", appt.RescheduledFrom, "to", appt.AppointmentDate)
	publish(ctx, s.publisher, tasks.NotificationTask{
		Kind:          tasks.KindAppointmentMoved,
		AppointmentID: appt.ID,
		UserID:        appt.StudentID,
		CounselorID:   appt.CounselorID,
		Status:        string(appt.Status),
		Reason:        appt.RescheduleReason,
		ScheduledFor:  &appt.AppointmentDate,
	}, s.now())
	return appt, nil
}

// UpdateStatus 按状态机推进预约，备注写入操作者角色对应的字段。
// status 与当前状态相同时只更新备注。学生只能取消或写备注，
// 其余迁移由咨询师或管理员操作；完成和爽约不能早于预约开始时间。
func (s *appointmentService) UpdateStatus(ctx context.Context, actor Actor, id uint, status model.AppointmentStatus, notes string) (*model.Appointment, error) {
	if !status.Valid() {
		return nil, apperr.Invalid("status", "unknown appointment status")
	}
	changed := false
	appt, err := s.mutate(ctx, actor, id, func(appt *model.Appointment) error {
		if appt.Status == model.AppointmentCompleted {
			return ErrAlreadyCompleted
		}
		now := s.now()
		if status != appt.Status {
			if actor.IsStudent() && status != model.AppointmentCancelled {
				return fmt.Errorf("student cannot set status %s: %w", status, ErrNotOwner)
			}
			if !appt.Status.CanTransitionTo(status) {
				return fmt.Errorf("%s -> %s: %w", appt.Status, status, ErrInvalidTransition)
			}
			if (status == model.AppointmentCompleted || status == model.AppointmentNoShow) && now.Before(appt.AppointmentDate) {
				return fmt.Errorf("%s before the appointment starts: %w", status, ErrInvalidTransition)
			}
			appt.Status = status
			changed = true
		}
		if notes = strings.TrimSpace(notes); notes != "" {
			switch actor.Role {
			case model.RoleCounselor:
				appt.CounselorNotes = notes
			case model.RoleStudent:
				appt.StudentNotes = notes
			default:
				appt.Notes = notes
			}
		}
		if !changed {
			return nil
		}
		switch status {
		case model.AppointmentCompleted:
			due := now.Add(s.followUp)
			appt.CompletedAt = &now
			appt.FollowUpRequired = true
			appt.FollowUpDate = &due
		case model.AppointmentCancelled:
			appt.CancelledAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return appt, nil
	}

	log.Infow("appointment status updated", "appointmentId", appt.ID, "status", appt.Status, "by", actor.UserID)
	publish(ctx, s.publisher, tasks.NotificationTask{
		Kind:          tasks.KindAppointmentStatus,
		AppointmentID: appt.ID,
		UserID:        appt.StudentID,
		CounselorID:   appt.CounselorID,
		Status:        string(appt.Status),
		ScheduledFor:  appt.FollowUpDate,
	}, s.now())
	return appt, nil
}

// SubmitFeedback 只允许对已完成的预约评价一次。
func (s *appointmentService) SubmitFeedback(ctx context.Context, actor Actor, id uint, rating int, comments string) (*model.Appointment, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.Invalid("rating", "must be between 1 and 5")
	}
	if actor.IsCounselor() {
		return nil, ErrNotOwner
	}
	return s.mutate(ctx, actor, id, func(appt *model.Appointment) error {
		if appt.Status != model.AppointmentCompleted {
			return ErrNotCompleted
		}
		if appt.Feedback != nil {
			return ErrFeedbackExists
		}
		appt.Feedback = &model.Feedback{
			Rating:      rating,
			Comments:    strings.TrimSpace(comments),
			SubmittedAt: s.now(),
		}
		return nil
	})
}
