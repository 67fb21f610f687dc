package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/middleware"
	"mindbridge-go/internal/model"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/log"
)

// UserHandler 负责处理用户注册、登录等 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRequest 定义了注册请求的结构体。
type RegisterRequest struct {
	Username       string     `json:"username" binding:"required"`
	Password       string     `json:"password" binding:"required"`
	Email          string     `json:"email"`
	FullName       string     `json:"fullName"`
	Role           model.Role `json:"role"`
	StudentID      string     `json:"studentId"`
	University     string     `json:"university"`
	Specialization string     `json:"specialization"`
}

// LoginRequest 定义了登录请求的结构体。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest 只包含允许自助修改的字段。
type UpdateProfileRequest struct {
	Email          *string `json:"email"`
	FullName       *string `json:"fullName"`
	StudentID      *string `json:"studentId"`
	University     *string `json:"university"`
	Specialization *string `json:"specialization"`
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		badRequest(c, "无效的请求负载：用户名和密码不能为空")
		return
	}

	user, err := h.userService.Register(c.Request.Context(), service.RegisterRequest{
		Username:       req.Username,
		Password:       req.Password,
		Email:          req.Email,
		FullName:       req.FullName,
		Role:           req.Role,
		StudentID:      req.StudentID,
		University:     req.University,
		Specialization: req.Specialization,
	})
	if err != nil {
		respondError(c, "Register", err)
		return
	}

	respond(c, http.StatusCreated, "注册成功", user)
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		badRequest(c, "无效的请求负载：用户名和密码不能为空")
		return
	}

	pair, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, "Login", err)
		return
	}

	log.Infow("user logged in", "userId", pair.User.ID, "username", pair.User.Username)
	respond(c, http.StatusOK, "登录成功", pair)
}

// GetProfile 返回当前登录用户的信息。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respond(c, http.StatusUnauthorized, "未登录", nil)
		return
	}
	success(c, user)
}

// UpdateProfile 修改当前登录用户的资料。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载")
		return
	}
	user, err := h.userService.UpdateProfile(c.Request.Context(), actor.UserID, service.UpdateProfileRequest{
		Email:          req.Email,
		FullName:       req.FullName,
		StudentID:      req.StudentID,
		University:     req.University,
		Specialization: req.Specialization,
	})
	if err != nil {
		respondError(c, "UpdateProfile", err)
		return
	}
	success(c, user)
}

// Logout 使当前 access token 失效。
func (h *UserHandler) Logout(c *gin.Context) {
	tokenString := c.GetString(middleware.ContextToken)
	if tokenString == "" {
		respond(c, http.StatusUnauthorized, "未登录", nil)
		return
	}
	if err := h.userService.Logout(c.Request.Context(), tokenString); err != nil {
		respondError(c, "Logout", err)
		return
	}
	respond(c, http.StatusOK, "已退出登录", nil)
}
