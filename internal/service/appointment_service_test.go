package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindbridge-go/internal/availability"
	"mindbridge-go/internal/model"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/lock"
	"mindbridge-go/pkg/tasks"
)

var (
	student   = Actor{UserID: 1, Role: model.RoleStudent}
	student2  = Actor{UserID: 2, Role: model.RoleStudent}
	counselor = Actor{UserID: 10, Role: model.RoleCounselor}
	admin     = Actor{UserID: 99, Role: model.RoleAdmin}

	// 2030-03-04 是周一
	apptToday = time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC)
)

func testUsers() *stubUserRepo {
	return newStubUserRepo(
		model.User{ID: 1, Username: "alice", Role: model.RoleStudent, IsActive: true},
		model.User{ID: 2, Username: "bob", Role: model.RoleStudent, IsActive: true},
		model.User{ID: 10, Username: "dr_lee", Role: model.RoleCounselor, IsActive: true},
		model.User{ID: 11, Username: "dr_kim", Role: model.RoleCounselor, IsActive: true},
		model.User{ID: 12, Username: "dr_gone", Role: model.RoleCounselor, IsActive: false},
		model.User{ID: 99, Username: "root", Role: model.RoleAdmin, IsActive: true},
	)
}

type apptFixture struct {
	svc   *appointmentService
	repo  *stubAppointmentRepo
	users *stubUserRepo
	pub   *recordingPublisher
}

func newApptFixture(t *testing.T) *apptFixture {
	t.Helper()
	f := &apptFixture{
		repo:  newStubAppointmentRepo(),
		users: testUsers(),
		pub:   &recordingPublisher{},
	}
	f.svc = newAppointmentService(f.repo, f.users, lock.NewLocalLocker(), f.pub, availability.DefaultPolicy(), 0)
	f.svc.now = func() time.Time { return apptToday }
	return f
}

func at(hour int) time.Time {
	return time.Date(2030, 3, 4, hour, 0, 0, 0, time.UTC)
}

func (f *apptFixture) book(t *testing.T, actor Actor, counselorID uint, hour int) *model.Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), actor, BookRequest{
		CounselorID:     counselorID,
		AppointmentDate: at(hour),
		Reason:          "exam stress",
	})
	require.NoError(t, err)
	return appt
}

// complete 把时钟拨到预约开始一小时后，由咨询师走完整个流程。
func (f *apptFixture) complete(t *testing.T, id uint) *model.Appointment {
	t.Helper()
	ctx := context.Background()
	appt, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	now := f.svc.now
	defer func() { f.svc.now = now }()
	after := appt.AppointmentDate.Add(time.Hour)
	f.svc.now = func() time.Time { return after }

	for _, st := range []model.AppointmentStatus{model.AppointmentConfirmed, model.AppointmentInProgress, model.AppointmentCompleted} {
		appt, err = f.svc.UpdateStatus(ctx, counselor, id, st, "")
		require.NoError(t, err)
	}
	return appt
}

func TestBookAppliesDefaults(t *testing.T) {
	f := newApptFixture(t)
	appt := f.book(t, student, 10, 10)

	assert.Equal(t, uint(1), appt.StudentID)
	assert.Equal(t, model.AppointmentScheduled, appt.Status)
	assert.Equal(t, model.TypeIndividual, appt.Type)
	assert.Equal(t, model.ModeInPerson, appt.Mode)
	assert.Equal(t, model.PriorityMedium, appt.Priority)
	assert.Equal(t, 60, appt.Duration)
	require.NotNil(t, appt.SlotKey)
	assert.Equal(t, model.SlotKeyFor(10, at(10)), *appt.SlotKey)
	assert.Equal(t, []tasks.Kind{tasks.KindAppointmentBooked}, f.pub.kinds())
}

func TestBookSameSlotTwice(t *testing.T) {
	f := newApptFixture(t)
	f.book(t, student, 10, 10)

	_, err := f.svc.Book(context.Background(), student2, BookRequest{CounselorID: 10, AppointmentDate: at(10), Reason: "sleep"})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// 同一时段的另一位咨询师不受影响
	other, err := f.svc.Book(context.Background(), student2, BookRequest{CounselorID: 11, AppointmentDate: at(10), Reason: "sleep"})
	require.NoError(t, err)
	assert.Equal(t, uint(11), other.CounselorID)
}

func TestBookConcurrentOnlyOneWins(t *testing.T) {
	f := newApptFixture(t)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflict int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), Actor{UserID: uint(100 + i), Role: model.RoleStudent},
				BookRequest{CounselorID: 10, AppointmentDate: at(14), Reason: "anxiety"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrSlotUnavailable):
				conflict++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflict)
}

func TestBookValidation(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  BookRequest
		want error
	}{
		{"missing reason", BookRequest{CounselorID: 10, AppointmentDate: at(10)}, apperr.ErrValidation},
		{"in the past", BookRequest{CounselorID: 10, AppointmentDate: at(7).AddDate(0, 0, -1), Reason: "x"}, apperr.ErrValidation},
		{"off grid", BookRequest{CounselorID: 10, AppointmentDate: at(10).Add(30 * time.Minute), Reason: "x"}, apperr.ErrValidation},
		{"after hours", BookRequest{CounselorID: 10, AppointmentDate: at(17), Reason: "x"}, apperr.ErrValidation},
		{"bad mode", BookRequest{CounselorID: 10, AppointmentDate: at(10), Reason: "x", Mode: "carrier-pigeon"}, apperr.ErrValidation},
		{"unknown counselor", BookRequest{CounselorID: 404, AppointmentDate: at(10), Reason: "x"}, ErrCounselorNotFound},
		{"inactive counselor", BookRequest{CounselorID: 12, AppointmentDate: at(10), Reason: "x"}, ErrCounselorNotFound},
		{"student is not a counselor", BookRequest{CounselorID: 2, AppointmentDate: at(10), Reason: "x"}, ErrCounselorNotFound},
		{"booking for someone else", BookRequest{StudentID: 2, CounselorID: 10, AppointmentDate: at(10), Reason: "x"}, ErrNotOwner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, student, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.pub.kinds())
}

func TestAvailabilityExcludesHeldSlots(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()
	f.book(t, student, 10, 9)
	cancelled := f.book(t, student, 10, 11)
	_, err := f.svc.Cancel(ctx, student, cancelled.ID, "")
	require.NoError(t, err)

	slots, err := f.svc.Availability(ctx, 10, "2030-03-04")
	require.NoError(t, err)
	require.Len(t, slots, 7)
	assert.True(t, slots[0].Time.Equal(at(10)))
	assert.Equal(t, "10:00 AM", slots[0].DisplayTime)
	// 取消后的时段重新开放
	assert.True(t, slots[1].Time.Equal(at(11)))

	_, err = f.svc.Availability(ctx, 10, "04/03/2030")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Availability(ctx, 404, "2030-03-04")
	assert.ErrorIs(t, err, ErrCounselorNotFound)
}

func TestCancelledSlotCanBeRebooked(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()
	first := f.book(t, student, 10, 13)

	cancelled, err := f.svc.Cancel(ctx, student, first.ID, "  ")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentCancelled, cancelled.Status)
	assert.Equal(t, "Appointment cancelled", cancelled.CancellationReason)
	assert.Nil(t, cancelled.SlotKey)
	require.NotNil(t, cancelled.CancelledAt)

	second := f.book(t, student2, 10, 13)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCancelRules(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()

	appt := f.book(t, student, 10, 10)
	_, err := f.svc.Cancel(ctx, student2, appt.ID, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Cancel(ctx, student, appt.ID, "feeling better")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, student, appt.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.ErrorIs(t, err, apperr.ErrState)

	done := f.book(t, student, 10, 15)
	f.complete(t, done.ID)
	_, err = f.svc.Cancel(ctx, student, done.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.ErrorIs(t, err, apperr.ErrState)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Cancel(ctx, student, 12345, "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestRescheduleKeepsIdentity(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()
	appt := f.book(t, student, 10, 10)
	f.book(t, student2, 10, 12)

	_, err := f.svc.Reschedule(ctx, student, appt.ID, at(12), "clash")
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	moved, err := f.svc.Reschedule(ctx, student, appt.ID, at(14), "clash")
	require.NoError(t, err)
	assert.Equal(t, appt.ID, moved.ID)
	assert.True(t, moved.AppointmentDate.Equal(at(14)))
	require.NotNil(t, moved.RescheduledFrom)
	assert.True(t, moved.RescheduledFrom.Equal(at(10)))
	assert.Equal(t, "clash", moved.RescheduleReason)
	assert.Equal(t, model.SlotKeyFor(10, at(14)), *moved.SlotKey)

	// 原时段被释放
	slots, err := f.svc.Availability(ctx, 10, "2030-03-04")
	require.NoError(t, err)
	assert.True(t, slots[1].Time.Equal(at(10)))

	_, err = f.svc.Reschedule(ctx, student, appt.ID, at(7), "early")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Contains(t, f.pub.kinds(), tasks.KindAppointmentMoved)
}

func TestRescheduleTerminalAppointments(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()

	done := f.book(t, student, 10, 10)
	f.complete(t, done.ID)
	_, err := f.svc.Reschedule(ctx, student, done.ID, at(16), "")
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	gone := f.book(t, student, 10, 11)
	_, err = f.svc.Cancel(ctx, student, gone.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Reschedule(ctx, student, gone.ID, at(16), "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()
	appt := f.book(t, student, 10, 10)

	_, err := f.svc.UpdateStatus(ctx, counselor, appt.ID, model.AppointmentCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, counselor, appt.ID, "bogus", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	confirmed, err := f.svc.UpdateStatus(ctx, counselor, appt.ID, model.AppointmentConfirmed, "see you then")
	require.NoError(t, err)
	assert.Equal(t, "see you then", confirmed.CounselorNotes)

	// 其他咨询师不能操作
	_, err = f.svc.UpdateStatus(ctx, Actor{UserID: 11, Role: model.RoleCounselor}, appt.ID, model.AppointmentInProgress, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	noShow := f.book(t, student2, 10, 16)
	f.svc.now = func() time.Time { return at(17) }
	ns, err := f.svc.UpdateStatus(ctx, admin, noShow.ID, model.AppointmentNoShow, "did not attend")
	require.NoError(t, err)
	assert.Nil(t, ns.SlotKey)
	assert.Equal(t, "did not attend", ns.Notes)
}

func TestCompletionSetsFollowUp(t *testing.T) {
	f := newApptFixture(t)
	appt := f.book(t, student, 10, 10)

	done := f.complete(t, appt.ID)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, done.CompletedAt.Equal(at(11)))
	assert.True(t, done.FollowUpRequired)
	require.NotNil(t, done.FollowUpDate)
	assert.True(t, done.FollowUpDate.Equal(at(11).Add(7*24*time.Hour)))

	_, err := f.svc.UpdateStatus(context.Background(), counselor, appt.ID, model.AppointmentCancelled, "")
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestStudentStatusUpdatesLimitedToNotesAndCancel(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()
	appt := f.book(t, student, 10, 10)

	for _, st := range []model.AppointmentStatus{model.AppointmentConfirmed, model.AppointmentInProgress, model.AppointmentCompleted, model.AppointmentNoShow} {
		_, err := f.svc.UpdateStatus(ctx, student, appt.ID, st, "")
		assert.ErrorIs(t, err, apperr.ErrForbidden, st)
	}

	published := len(f.pub.kinds())
	noted, err := f.svc.UpdateStatus(ctx, student, appt.ID, model.AppointmentScheduled, " running late ")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentScheduled, noted.Status)
	assert.Equal(t, "running late", noted.StudentNotes)
	assert.Len(t, f.pub.kinds(), published)

	cancelled, err := f.svc.UpdateStatus(ctx, student, appt.ID, model.AppointmentCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
}

func TestCompletionNotBeforeAppointmentStarts(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()
	appt := f.book(t, student, 10, 10)

	_, err := f.svc.UpdateStatus(ctx, counselor, appt.ID, model.AppointmentConfirmed, "")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, counselor, appt.ID, model.AppointmentInProgress, "")
	require.NoError(t, err)

	// 08:00 时 10:00 的预约还没开始
	_, err = f.svc.UpdateStatus(ctx, counselor, appt.ID, model.AppointmentCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.SubmitFeedback(ctx, student, appt.ID, 5, "")
	assert.ErrorIs(t, err, ErrNotCompleted)

	early := f.book(t, student2, 10, 14)
	_, err = f.svc.UpdateStatus(ctx, admin, early.ID, model.AppointmentNoShow, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.svc.now = func() time.Time { return at(10) }
	done, err := f.svc.UpdateStatus(ctx, counselor, appt.ID, model.AppointmentCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentCompleted, done.Status)
}

func TestSubmitFeedback(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()
	appt := f.book(t, student, 10, 10)

	_, err := f.svc.SubmitFeedback(ctx, student, appt.ID, 5, "great")
	assert.ErrorIs(t, err, ErrNotCompleted)

	f.complete(t, appt.ID)

	_, err = f.svc.SubmitFeedback(ctx, student, appt.ID, 0, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.SubmitFeedback(ctx, student, appt.ID, 6, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.SubmitFeedback(ctx, counselor, appt.ID, 5, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	rated, err := f.svc.SubmitFeedback(ctx, student, appt.ID, 5, " very helpful ")
	require.NoError(t, err)
	require.NotNil(t, rated.Feedback)
	assert.Equal(t, 5, rated.Feedback.Rating)
	assert.Equal(t, "very helpful", rated.Feedback.Comments)

	_, err = f.svc.SubmitFeedback(ctx, student, appt.ID, 4, "again")
	assert.ErrorIs(t, err, ErrFeedbackExists)
}

func TestListingRespectsOwnership(t *testing.T) {
	f := newApptFixture(t)
	ctx := context.Background()
	f.book(t, student, 10, 10)
	f.book(t, student2, 11, 10)

	mine, err := f.svc.ListForStudent(ctx, student, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.svc.ListForStudent(ctx, student, 2)
	assert.ErrorIs(t, err, ErrNotOwner)

	list, err := f.svc.ListForCounselor(ctx, counselor, 10, "2030-03-04")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListForCounselor(ctx, counselor, 11, "")
	assert.ErrorIs(t, err, ErrNotOwner)

	all, err := f.svc.ListForCounselor(ctx, admin, 11, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	counselors, err := f.svc.ListCounselors(ctx)
	require.NoError(t, err)
	assert.Len(t, counselors, 2)
}
