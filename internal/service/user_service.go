package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/hash"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/token"
)

// RegisterRequest 是注册请求。Role 为空时注册为学生。
type RegisterRequest struct {
	Username       string
	Password       string
	Email          string
	FullName       string
	Role           model.Role
	StudentID      string
	University     string
	Specialization string
}

// UpdateProfileRequest 是资料修改请求，nil 字段保持不变。
// 用户名、密码、角色和启用状态不能通过这里修改。
type UpdateProfileRequest struct {
	Email          *string
	FullName       *string
	StudentID      *string
	University     *string
	Specialization *string
}

// TokenPair 是登录或刷新后签发的一对 token。
type TokenPair struct {
	AccessToken  string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         *model.User `json:"user,omitempty"`
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(ctx context.Context, req RegisterRequest) (*model.User, error)
	Login(ctx context.Context, username, password string) (*TokenPair, error)
	GetProfile(ctx context.Context, userID uint) (*model.User, error)
	UpdateProfile(ctx context.Context, userID uint, req UpdateProfileRequest) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	RefreshToken(ctx context.Context, refreshTokenString string) (*TokenPair, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	blacklist  repository.TokenBlacklist
	jwtManager *token.JWTManager
	now        func() time.Time
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) UserService {
	return newUserService(userRepo, blacklist, jwtManager)
}

func newUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) *userService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		jwtManager: jwtManager,
		now:        time.Now,
	}
}

func validateRegistration(req *RegisterRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	if n := utf8.RuneCountInString(req.Username); n < 3 || n > 32 {
		return apperr.Invalid("username", "must be between 3 and 32 characters")
	}
	if utf8.RuneCountInString(req.Password) < 6 {
		return apperr.Invalid("password", "must be at least 6 characters")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return apperr.Invalid("email", "is not a valid address")
	}
	switch req.Role {
	case "":
		req.Role = model.RoleStudent
	case model.RoleStudent, model.RoleCounselor:
	default:
		return apperr.Invalid("role", "must be student or counselor")
	}
	return nil
}

// Register 处理用户注册的业务逻辑。自助注册的咨询师账号需要管理员启用后才能被预约。
func (s *userService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	if err := validateRegistration(&req); err != nil {
		return nil, err
	}

	// 1. 检查用户名是否已存在
	_, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	// 3. 创建用户
	newUser := &model.User{
		Username:       req.Username,
		Password:       hashedPassword,
		Email:          req.Email,
		FullName:       strings.TrimSpace(req.FullName),
		Role:           req.Role,
		StudentID:      req.StudentID,
		University:     req.University,
		Specialization: req.Specialization,
		IsActive:       req.Role == model.RoleStudent,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		// 并发注册同名用户时由唯一索引兜底
		if errors.Is(err, apperr.ErrConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	log.Infow("user registered", "userId", newUser.ID, "username", newUser.Username, "role", newUser.Role)
	return newUser, nil
}

func (s *userService) issue(user *model.User) (*TokenPair, error) {
	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	// 3. 记录登录时间，失败不影响登录
	now := s.now()
	user.LastLogin = &now
	if err := s.userRepo.Update(ctx, user); err != nil {
		log.Errorf("[UserService] 更新最后登录时间失败, userId: %d, error: %v", user.ID, err)
	}

	// 4. 生成 access token 和 refresh token
	return s.issue(user)
}

// GetProfile 根据用户 ID 获取用户详细信息。
func (s *userService) GetProfile(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	return user, err
}

// UpdateProfile 修改当前用户的个人资料。专业方向只对咨询师有意义。
func (s *userService) UpdateProfile(ctx context.Context, userID uint, req UpdateProfileRequest) (*model.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" && !strings.Contains(email, "@") {
			return nil, apperr.Invalid("email", "is not a valid address")
		}
		user.Email = email
	}
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.StudentID != nil {
		user.StudentID = strings.TrimSpace(*req.StudentID)
	}
	if req.University != nil {
		user.University = strings.TrimSpace(*req.University)
	}
	if req.Specialization != nil {
		if user.Role != model.RoleCounselor {
			return nil, apperr.Invalid("specialization", "only counselors have a specialization")
		}
		user.Specialization = strings.TrimSpace(*req.Specialization)
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	log.Infow("profile updated", "userId", user.ID)
	return user, nil
}

// Logout 将 token 加入黑名单，黑名单过期时间为 token 的剩余有效期。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	return s.blacklist.Add(ctx, tokenString, claims.ExpiresAt.Time.Sub(s.now()))
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
// 旧的 refresh token 会被拉黑，不能重复使用。
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	// 1. 验证 refresh token 是否有效
	claims, err := s.jwtManager.VerifyRefreshToken(refreshTokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrInvalidToken, err)
	}
	revoked, err := s.blacklist.Contains(ctx, refreshTokenString)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, token.ErrInvalidToken
	}

	// 2. 检查用户是否存在且可用
	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", claims.UserID, ErrUserNotFound)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	// 3. 签发新的 token
	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	if err := s.blacklist.Add(ctx, refreshTokenString, claims.ExpiresAt.Time.Sub(s.now())); err != nil {
		log.Errorf("[UserService] 拉黑旧 refresh token 失败, userId: %d, error: %v", user.ID, err)
	}
	return pair, nil
}
