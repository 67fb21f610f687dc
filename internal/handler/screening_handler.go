package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/screening"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/log"
)

// ScreeningHandler 处理心理量表相关的请求。
type ScreeningHandler struct {
	screeningService service.ScreeningService
}

func NewScreeningHandler(screeningService service.ScreeningService) *ScreeningHandler {
	return &ScreeningHandler{screeningService: screeningService}
}

// SubmitScreeningRequest 是量表提交请求，userId 为空时为当前用户提交。
type SubmitScreeningRequest struct {
	UserID        uint                 `json:"userId"`
	ScreeningType string               `json:"screeningType" binding:"required"`
	Responses     []screening.Response `json:"responses" binding:"required"`
}

// Questions 返回量表题目。
func (h *ScreeningHandler) Questions(c *gin.Context) {
	set, err := h.screeningService.Questions(c.Param("type"))
	if err != nil {
		respondError(c, "Questions", err)
		return
	}
	success(c, set)
}

// Submit 计分并保存一次量表结果。
func (h *ScreeningHandler) Submit(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req SubmitScreeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SubmitScreening: Invalid request payload, error: %v", err)
		badRequest(c, "无效的请求负载")
		return
	}
	if req.UserID == 0 {
		req.UserID = actor.UserID
	}

	result, err := h.screeningService.Submit(c.Request.Context(), actor, req.UserID, req.ScreeningType, req.Responses)
	if err != nil {
		respondError(c, "SubmitScreening", err)
		return
	}
	respond(c, http.StatusCreated, "提交成功", result)
}

// History 返回用户的量表历史，按完成时间倒序。
func (h *ScreeningHandler) History(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	results, err := h.screeningService.History(c.Request.Context(), actor, userID)
	if err != nil {
		respondError(c, "ScreeningHistory", err)
		return
	}
	success(c, results)
}

// Stats 返回各量表按严重程度的统计。
func (h *ScreeningHandler) Stats(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	stats, err := h.screeningService.Stats(c.Request.Context(), actor)
	if err != nil {
		respondError(c, "ScreeningStats", err)
		return
	}
	success(c, stats)
}
