package service

import (
	"context"
	"errors"
	"fmt"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/log"
)

const (
	recentLimit     = 5
	maxUserPageSize = 100
)

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID    uint             `json:"userId"`
	Username  string           `json:"username"`
	FullName  string           `json:"fullName"`
	Email     string           `json:"email"`
	Role      model.Role       `json:"role"`
	IsActive  bool             `json:"isActive"`
	LastLogin *model.LocalTime `json:"lastLogin,omitempty"`
	CreatedAt model.LocalTime  `json:"createdAt"`
}

// Overview 是仪表盘顶部的计数。
type Overview struct {
	TotalStudents     int64 `json:"totalStudents"`
	TotalCounselors   int64 `json:"totalCounselors"`
	TotalAppointments int64 `json:"totalAppointments"`
	TotalChatSessions int64 `json:"totalChatSessions"`
	TotalScreenings   int64 `json:"totalScreenings"`
	TotalResources    int64 `json:"totalResources"`
}

// DashboardStats 是管理员仪表盘的统计数据。
type DashboardStats struct {
	Overview             Overview                          `json:"overview"`
	RiskDistribution     map[model.RiskLevel]int64         `json:"riskDistribution"`
	SeverityDistribution map[string]int64                  `json:"severityDistribution"`
	AppointmentsByStatus map[model.AppointmentStatus]int64 `json:"appointmentsByStatus"`
	RecentAppointments   []model.Appointment               `json:"recentAppointments"`
	RecentScreenings     []model.ScreeningResult           `json:"recentScreenings"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	DashboardStats(ctx context.Context) (*DashboardStats, error)
	ListUsers(ctx context.Context, role model.Role, page, size int) (*UserListResponse, error)
	SetUserActive(ctx context.Context, actor Actor, userID uint, active bool) (*model.User, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo        repository.UserRepository
	appointmentRepo repository.AppointmentRepository
	chatRepo        repository.ChatRepository
	screeningRepo   repository.ScreeningRepository
	resourceRepo    repository.ResourceRepository
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(
	userRepo repository.UserRepository,
	appointmentRepo repository.AppointmentRepository,
	chatRepo repository.ChatRepository,
	screeningRepo repository.ScreeningRepository,
	resourceRepo repository.ResourceRepository,
) AdminService {
	return &adminService{
		userRepo:        userRepo,
		appointmentRepo: appointmentRepo,
		chatRepo:        chatRepo,
		screeningRepo:   screeningRepo,
		resourceRepo:    resourceRepo,
	}
}

// DashboardStats 汇总各模块的计数与分布。
func (s *adminService) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	var (
		stats DashboardStats
		err   error
	)
	if stats.Overview.TotalStudents, err = s.userRepo.CountByRole(ctx, model.RoleStudent); err != nil {
		return nil, err
	}
	if stats.Overview.TotalCounselors, err = s.userRepo.CountByRole(ctx, model.RoleCounselor); err != nil {
		return nil, err
	}
	if stats.Overview.TotalAppointments, err = s.appointmentRepo.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Overview.TotalChatSessions, err = s.chatRepo.CountSessions(ctx); err != nil {
		return nil, err
	}
	if stats.Overview.TotalScreenings, err = s.screeningRepo.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Overview.TotalResources, err = s.resourceRepo.Count(ctx); err != nil {
		return nil, err
	}

	if stats.RiskDistribution, err = s.chatRepo.CountByRiskLevel(ctx); err != nil {
		return nil, err
	}
	// 所有等级都出现在结果里，前端无需判空
	for _, lvl := range []model.RiskLevel{model.RiskLow, model.RiskMedium, model.RiskHigh, model.RiskCritical} {
		if _, ok := stats.RiskDistribution[lvl]; !ok {
			stats.RiskDistribution[lvl] = 0
		}
	}

	counts, err := s.screeningRepo.CountByTypeAndSeverity(ctx)
	if err != nil {
		return nil, err
	}
	stats.SeverityDistribution = make(map[string]int64)
	for _, c := range counts {
		stats.SeverityDistribution[c.Severity] += c.Count
	}

	if stats.AppointmentsByStatus, err = s.appointmentRepo.CountByStatus(ctx); err != nil {
		return nil, err
	}
	if stats.RecentAppointments, err = s.appointmentRepo.Recent(ctx, recentLimit); err != nil {
		return nil, err
	}
	if stats.RecentScreenings, err = s.screeningRepo.Recent(ctx, recentLimit); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListUsers 以分页的形式返回用户列表，page 从 1 开始。
func (s *adminService) ListUsers(ctx context.Context, role model.Role, page, size int) (*UserListResponse, error) {
	if role != "" && !role.Valid() {
		return nil, apperr.Invalid("role", "unknown role")
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > maxUserPageSize {
		size = 20
	}
	offset := (page - 1) * size
	users, total, err := s.userRepo.FindWithPagination(ctx, role, offset, size)
	if err != nil {
		return nil, err
	}

	userResponses := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		item := UserDetailResponse{
			UserID:    u.ID,
			Username:  u.Username,
			FullName:  u.FullName,
			Email:     u.Email,
			Role:      u.Role,
			IsActive:  u.IsActive,
			LastLogin: model.NewLocalTime(u.LastLogin),
			CreatedAt: model.LocalTime(u.CreatedAt),
		}
		userResponses = append(userResponses, item)
	}

	totalPages := 0
	if total > 0 && size > 0 {
		totalPages = (int(total) + size - 1) / size
	}

	response := &UserListResponse{
		Content:       userResponses,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}
	return response, nil
}

// SetUserActive 启用或停用账号。管理员不能停用自己。
func (s *adminService) SetUserActive(ctx context.Context, actor Actor, userID uint, active bool) (*model.User, error) {
	if !active && actor.UserID == userID {
		return nil, apperr.Invalid("userId", "cannot deactivate your own account")
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
		}
		return nil, err
	}
	user.IsActive = active
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	log.Infow("user status changed", "userId", userID, "active", active, "by", actor.UserID)
	return user, nil
}
