package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/log"
)

// AppointmentHandler 处理预约相关的请求。
type AppointmentHandler struct {
	appointmentService service.AppointmentService
}

func NewAppointmentHandler(appointmentService service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{appointmentService: appointmentService}
}

// BookAppointmentRequest 是预约请求，时间使用 RFC3339 格式。
type BookAppointmentRequest struct {
	StudentID       uint                  `json:"studentId"`
	CounselorID     uint                  `json:"counselorId" binding:"required"`
	AppointmentDate time.Time             `json:"appointmentDate" binding:"required"`
	Reason          string                `json:"reason" binding:"required"`
	Type            model.AppointmentType `json:"type"`
	Mode            model.AppointmentMode `json:"mode"`
	Priority        model.Priority        `json:"priority"`
	Location        string                `json:"location"`
	MeetingLink     string                `json:"meetingLink"`
	StudentNotes    string                `json:"studentNotes"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	NewDate time.Time `json:"newDate" binding:"required"`
	Reason  string    `json:"reason"`
}

type UpdateStatusRequest struct {
	Status model.AppointmentStatus `json:"status" binding:"required"`
	Notes  string                  `json:"notes"`
}

type FeedbackRequest struct {
	Rating   int    `json:"rating" binding:"required"`
	Comments string `json:"comments"`
}

// ListCounselors 返回可预约的咨询师。
func (h *AppointmentHandler) ListCounselors(c *gin.Context) {
	counselors, err := h.appointmentService.ListCounselors(c.Request.Context())
	if err != nil {
		respondError(c, "ListCounselors", err)
		return
	}
	success(c, counselors)
}

// Availability 返回咨询师某天的可预约时段，?date=YYYY-MM-DD。
func (h *AppointmentHandler) Availability(c *gin.Context) {
	counselorID, ok := uintParam(c, "counselorId")
	if !ok {
		return
	}
	slots, err := h.appointmentService.Availability(c.Request.Context(), counselorID, c.Query("date"))
	if err != nil {
		respondError(c, "Availability", err)
		return
	}
	success(c, slots)
}

// Book 创建预约，成功返回 201。
func (h *AppointmentHandler) Book(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("BookAppointment: Invalid request payload, error: %v", err)
		badRequest(c, "无效的请求负载")
		return
	}
	if req.StudentID == 0 {
		req.StudentID = actor.UserID
	}

	appt, err := h.appointmentService.Book(c.Request.Context(), actor, service.BookRequest{
		StudentID:       req.StudentID,
		CounselorID:     req.CounselorID,
		AppointmentDate: req.AppointmentDate,
		Reason:          req.Reason,
		Type:            req.Type,
		Mode:            req.Mode,
		Priority:        req.Priority,
		Location:        req.Location,
		MeetingLink:     req.MeetingLink,
		StudentNotes:    req.StudentNotes,
	})
	if err != nil {
		respondError(c, "BookAppointment", err)
		return
	}
	respond(c, http.StatusCreated, "预约成功", appt)
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	appt, err := h.appointmentService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, "GetAppointment", err)
		return
	}
	success(c, appt)
}

func (h *AppointmentHandler) ListForStudent(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	studentID, ok := uintParam(c, "studentId")
	if !ok {
		return
	}
	appts, err := h.appointmentService.ListForStudent(c.Request.Context(), actor, studentID)
	if err != nil {
		respondError(c, "ListStudentAppointments", err)
		return
	}
	success(c, appts)
}

// ListForCounselor 返回咨询师的预约，可选 ?date=YYYY-MM-DD 过滤某一天。
func (h *AppointmentHandler) ListForCounselor(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	counselorID, ok := uintParam(c, "counselorId")
	if !ok {
		return
	}
	appts, err := h.appointmentService.ListForCounselor(c.Request.Context(), actor, counselorID, c.Query("date"))
	if err != nil {
		respondError(c, "ListCounselorAppointments", err)
		return
	}
	success(c, appts)
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req CancelAppointmentRequest
	// 取消原因可选，允许空请求体
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "无效的请求负载")
			return
		}
	}
	appt, err := h.appointmentService.Cancel(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, "CancelAppointment", err)
		return
	}
	success(c, appt)
}

func (h *AppointmentHandler) Reschedule(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req RescheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("RescheduleAppointment: Invalid request payload, error: %v", err)
		badRequest(c, "无效的请求负载：newDate 不能为空")
		return
	}
	appt, err := h.appointmentService.Reschedule(c.Request.Context(), actor, id, req.NewDate, req.Reason)
	if err != nil {
		respondError(c, "RescheduleAppointment", err)
		return
	}
	success(c, appt)
}

func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：status 不能为空")
		return
	}
	appt, err := h.appointmentService.UpdateStatus(c.Request.Context(), actor, id, req.Status, req.Notes)
	if err != nil {
		respondError(c, "UpdateAppointmentStatus", err)
		return
	}
	success(c, appt)
}

func (h *AppointmentHandler) SubmitFeedback(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：rating 不能为空")
		return
	}
	appt, err := h.appointmentService.SubmitFeedback(c.Request.Context(), actor, id, req.Rating, req.Comments)
	if err != nil {
		respondError(c, "SubmitFeedback", err)
		return
	}
	success(c, appt)
}
