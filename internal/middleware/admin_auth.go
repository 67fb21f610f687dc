package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/model"
)

// RoleMiddleware 只放行指定角色的用户，必须在 AuthMiddleware 之后使用。
func RoleMiddleware(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			// AuthMiddleware 未能成功解析，属于路由配置错误
			abort(c, http.StatusInternalServerError, "无法获取用户信息")
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "权限不足")
	}
}

// AdminAuthMiddleware 检查用户是否具有管理员权限。
func AdminAuthMiddleware() gin.HandlerFunc {
	return RoleMiddleware(model.RoleAdmin)
}

// StaffMiddleware 允许咨询师和管理员访问。
func StaffMiddleware() gin.HandlerFunc {
	return RoleMiddleware(model.RoleCounselor, model.RoleAdmin)
}
