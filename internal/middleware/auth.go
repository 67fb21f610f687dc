// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/token"
)

// 上下文中的键
const (
	ContextUser   = "user"
	ContextClaims = "claims"
	ContextActor  = "actor"
	ContextToken  = "token"
)

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// bearerToken 从 Authorization 请求头中提取 token。
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	// Token 通常以 "Bearer <token>" 的形式提供
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", false
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	return tokenString, tokenString != ""
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会校验 token 是否有效、是否已登出，并将用户、claims 和 Actor 存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService, blacklist repository.TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "请求未包含有效的授权头")
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			abort(c, http.StatusUnauthorized, "无效或已过期的 token")
			return
		}

		if blacklist != nil {
			revoked, err := blacklist.Contains(c.Request.Context(), tokenString)
			if err != nil {
				// Redis 不可用时拒绝请求，避免已登出的 token 继续生效
				log.Errorf("检查 token 黑名单失败: %v", err)
				abort(c, http.StatusInternalServerError, "服务器内部错误")
				return
			}
			if revoked {
				abort(c, http.StatusUnauthorized, "token 已失效，请重新登录")
				return
			}
		}

		// 使用 claims 中的用户 ID 从数据库获取完整的用户信息，角色以数据库为准
		user, err := userService.GetProfile(c.Request.Context(), claims.UserID)
		if err != nil {
			abort(c, http.StatusUnauthorized, "用户不存在")
			return
		}
		if !user.IsActive {
			abort(c, http.StatusForbidden, "账号已被停用")
			return
		}

		c.Set(ContextUser, user)
		c.Set(ContextClaims, claims)
		c.Set(ContextToken, tokenString)
		c.Set(ContextActor, service.Actor{UserID: user.ID, Role: user.Role})
		c.Next()
	}
}

// CurrentActor 返回 AuthMiddleware 写入的 Actor。
func CurrentActor(c *gin.Context) (service.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return service.Actor{}, false
	}
	actor, ok := v.(service.Actor)
	return actor, ok
}

// CurrentUser 返回 AuthMiddleware 写入的用户。
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}
