package handler

import (
	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/log"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// SetUserStatusRequest 用指针区分 false 与缺省。
type SetUserStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// DashboardStats 返回仪表盘统计。
func (h *AdminHandler) DashboardStats(c *gin.Context) {
	stats, err := h.adminService.DashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, "DashboardStats", err)
		return
	}
	success(c, stats)
}

// ListUsers 处理获取用户列表的请求，支持分页和按角色过滤。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page := intQuery(c, "page", 1)
	size := intQuery(c, "size", 20)
	role := model.Role(c.Query("role"))

	users, err := h.adminService.ListUsers(c.Request.Context(), role, page, size)
	if err != nil {
		respondError(c, "ListUsers", err)
		return
	}
	success(c, users)
}

// SetUserStatus 启用或停用账号，咨询师注册后需要在这里激活。
func (h *AdminHandler) SetUserStatus(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req SetUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SetUserStatus: Invalid request payload, error: %v", err)
		badRequest(c, "无效的请求负载：isActive 不能为空")
		return
	}
	user, err := h.adminService.SetUserActive(c.Request.Context(), actor, id, *req.IsActive)
	if err != nil {
		respondError(c, "SetUserStatus", err)
		return
	}
	success(c, user)
}
