package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindbridge-go/internal/model"
	"mindbridge-go/pkg/apperr"
)

func TestDashboardStats(t *testing.T) {
	users := testUsers()
	appts := newStubAppointmentRepo()
	chats := newStubChatRepo()
	screenings := &stubScreeningRepo{}
	resources := newStubResourceRepo()
	ctx := context.Background()

	require.NoError(t, appts.Create(ctx, &model.Appointment{StudentID: 1, CounselorID: 10, Status: model.AppointmentScheduled, AppointmentDate: at(10)}))
	require.NoError(t, appts.Create(ctx, &model.Appointment{StudentID: 2, CounselorID: 10, Status: model.AppointmentCancelled, AppointmentDate: at(11)}))
	require.NoError(t, chats.CreateSession(ctx, &model.ChatSession{SessionID: "s1", UserID: 1, Status: model.SessionActive, RiskLevel: model.RiskLow}))
	require.NoError(t, chats.CreateSession(ctx, &model.ChatSession{SessionID: "s2", UserID: 2, Status: model.SessionEscalated, RiskLevel: model.RiskCritical}))
	require.NoError(t, screenings.Create(ctx, &model.ScreeningResult{UserID: 1, ScreeningType: "PHQ-9", Severity: "mild"}))
	require.NoError(t, screenings.Create(ctx, &model.ScreeningResult{UserID: 2, ScreeningType: "GAD-7", Severity: "mild"}))
	require.NoError(t, screenings.Create(ctx, &model.ScreeningResult{UserID: 2, ScreeningType: "PHQ-9", Severity: "severe"}))
	require.NoError(t, resources.Create(ctx, &model.Resource{Title: "x", IsActive: true}))

	svc := NewAdminService(users, appts, chats, screenings, resources)
	stats, err := svc.DashboardStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, Overview{
		TotalStudents:     2,
		TotalCounselors:   3,
		TotalAppointments: 2,
		TotalChatSessions: 2,
		TotalScreenings:   3,
		TotalResources:    1,
	}, stats.Overview)
	assert.Equal(t, int64(1), stats.RiskDistribution[model.RiskCritical])
	assert.Equal(t, int64(0), stats.RiskDistribution[model.RiskHigh])
	assert.Len(t, stats.RiskDistribution, 4)
	assert.Equal(t, int64(2), stats.SeverityDistribution["mild"])
	assert.Equal(t, int64(1), stats.SeverityDistribution["severe"])
	assert.Equal(t, int64(1), stats.AppointmentsByStatus[model.AppointmentCancelled])
	assert.Len(t, stats.RecentAppointments, 2)
	assert.Len(t, stats.RecentScreenings, 3)
}

func TestListUsersPagination(t *testing.T) {
	svc := NewAdminService(testUsers(), nil, nil, nil, nil)
	ctx := context.Background()

	page, err := svc.ListUsers(ctx, "", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 2)
	assert.Equal(t, uint(12), page.Content[0].UserID)

	page, err = svc.ListUsers(ctx, model.RoleCounselor, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Number)
	assert.Equal(t, 20, page.Size)
	assert.Len(t, page.Content, 3)

	_, err = svc.ListUsers(ctx, "superuser", 1, 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListUsersFormatsTimes(t *testing.T) {
	login := time.Date(2030, 3, 4, 9, 30, 0, 0, time.UTC)
	users := newStubUserRepo(model.User{ID: 1, Username: "alice", Role: model.RoleStudent, LastLogin: &login})
	svc := NewAdminService(users, nil, nil, nil, nil)

	page, err := svc.ListUsers(context.Background(), "", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	require.NotNil(t, page.Content[0].LastLogin)
	b, err := page.Content[0].LastLogin.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2030-03-04 09:30:00"`, string(b))
}

func TestSetUserActive(t *testing.T) {
	users := testUsers()
	svc := NewAdminService(users, nil, nil, nil, nil)
	ctx := context.Background()

	u, err := svc.SetUserActive(ctx, admin, 12, true)
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	stored, err := users.FindByID(ctx, 12)
	require.NoError(t, err)
	assert.True(t, stored.IsActiveCounselor())

	_, err = svc.SetUserActive(ctx, admin, 99, false)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.SetUserActive(ctx, admin, 404, false)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
