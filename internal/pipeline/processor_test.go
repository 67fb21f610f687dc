package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/tasks"
)

type fakeUsers struct {
	repository.UserRepository
	counselors []model.User
	err        error
}

func (f *fakeUsers) ListActiveByRole(_ context.Context, role model.Role) ([]model.User, error) {
	if role != model.RoleCounselor {
		return nil, nil
	}
	return f.counselors, f.err
}

type fakeScreenings struct {
	repository.ScreeningRepository
	notified []uint
	missing  bool
}

func (f *fakeScreenings) MarkCounselorNotified(_ context.Context, id uint) error {
	if f.missing {
		return fmt.Errorf("mark screening result %d notified: %w", id, apperr.ErrNotFound)
	}
	f.notified = append(f.notified, id)
	return nil
}

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) recipients() []uint {
	var ids []uint
	for _, n := range r.sent {
		ids = append(ids, n.RecipientID)
	}
	return ids
}

func newFixture() (*Processor, *fakeUsers, *fakeScreenings, *recordingNotifier) {
	users := &fakeUsers{counselors: []model.User{{ID: 10}, {ID: 11}}}
	screenings := &fakeScreenings{}
	n := &recordingNotifier{}
	return NewProcessor(users, screenings, n), users, screenings, n
}

func TestCrisisEscalationNotifiesOnCallCounselors(t *testing.T) {
	p, _, _, n := newFixture()

	err := p.Process(context.Background(), tasks.NotificationTask{
		ID: "t1", Kind: tasks.KindChatEscalated, SessionID: "session_x", RiskLevel: "critical",
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{10, 11}, n.recipients())
	assert.Contains(t, n.sent[0].Subject, "session_x")
}

func TestManualEscalationNotifiesAssignedCounselor(t *testing.T) {
	p, _, _, n := newFixture()

	err := p.Process(context.Background(), tasks.NotificationTask{
		ID: "t2", Kind: tasks.KindChatEscalated, SessionID: "session_y", CounselorID: 11,
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{11}, n.recipients())
}

func TestEscalationWithoutCounselorsIsDropped(t *testing.T) {
	p, users, _, n := newFixture()
	users.counselors = nil

	err := p.Process(context.Background(), tasks.NotificationTask{ID: "t3", Kind: tasks.KindChatEscalated})
	require.NoError(t, err)
	assert.Empty(t, n.sent)
}

func TestScreeningFollowUpMarksNotified(t *testing.T) {
	p, _, screenings, n := newFixture()
	due := time.Date(2030, 3, 11, 0, 0, 0, 0, time.UTC)

	err := p.Process(context.Background(), tasks.NotificationTask{
		ID: "t4", Kind: tasks.KindScreeningFollowUp, UserID: 1, ScreeningID: 7, Severity: "severe", ScheduledFor: &due,
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{7}, screenings.notified)
	require.Len(t, n.sent, 2)
	assert.Contains(t, n.sent[0].Body, "2030-03-11")
}

func TestScreeningFollowUpForDeletedResult(t *testing.T) {
	p, _, screenings, _ := newFixture()
	screenings.missing = true

	err := p.Process(context.Background(), tasks.NotificationTask{ID: "t5", Kind: tasks.KindScreeningFollowUp, ScreeningID: 9})
	assert.NoError(t, err)
}

func TestNotifierFailureIsRetried(t *testing.T) {
	p, _, screenings, n := newFixture()
	n.err = errors.New("smtp down")

	err := p.Process(context.Background(), tasks.NotificationTask{ID: "t6", Kind: tasks.KindScreeningFollowUp, ScreeningID: 7})
	assert.Error(t, err)
	assert.Empty(t, screenings.notified)
}

func TestAppointmentNotifiesBothParties(t *testing.T) {
	p, _, _, n := newFixture()
	at := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)

	err := p.Process(context.Background(), tasks.NotificationTask{
		ID: "t7", Kind: tasks.KindAppointmentBooked, AppointmentID: 3, UserID: 1, CounselorID: 10,
		Status: "scheduled", ScheduledFor: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 10}, n.recipients())
	assert.Contains(t, n.sent[0].Body, "2030-03-04 10:00")
}

func TestUnknownKindIsAcknowledged(t *testing.T) {
	p, _, _, n := newFixture()
	assert.NoError(t, p.Process(context.Background(), tasks.NotificationTask{ID: "t8", Kind: "mystery"}))
	assert.Empty(t, n.sent)
}

func TestPeerContentFlaggedNotifiesOnCall(t *testing.T) {
	p, users, _, n := newFixture()

	err := p.Process(context.Background(), tasks.NotificationTask{
		ID: "t9", Kind: tasks.KindPeerContentFlagged, UserID: 1, PostID: 4, CommentID: 7, Reason: "comment matched: want to die",
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{10, 11}, n.recipients())
	assert.Contains(t, n.sent[0].Subject, "#7")

	users.counselors = nil
	n.sent = nil
	require.NoError(t, p.Process(context.Background(), tasks.NotificationTask{ID: "t10", Kind: tasks.KindPeerContentFlagged, PostID: 5}))
	assert.Empty(t, n.sent)
}
