// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/middleware"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/token"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func success(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "success", data)
}

func badRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, message, nil)
}

// statusOf 将错误类别映射为 HTTP 状态码。
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrWrongKind):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrState):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError 写出错误响应。5xx 不向客户端暴露内部细节。
func respondError(c *gin.Context, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s: 处理请求失败, error: %v", op, err)
		respond(c, status, "服务器内部错误", nil)
		return
	}
	log.Warnf("%s: 请求被拒绝, status: %d, error: %v", op, status, err)
	respond(c, status, err.Error(), nil)
}

// actorOf 取出当前用户，路由未挂 AuthMiddleware 时返回 401。
func actorOf(c *gin.Context) (service.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		respond(c, http.StatusUnauthorized, "未登录", nil)
	}
	return actor, ok
}

// uintParam 解析路径参数中的 ID。
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, "无效的参数: "+name)
		return 0, false
	}
	return uint(v), true
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
