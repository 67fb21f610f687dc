package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/log"
)

// 附件大小上限
const maxAttachmentSize = 50 << 20

// ResourceHandler 处理心理健康资源库的请求。
type ResourceHandler struct {
	resourceService service.ResourceService
}

func NewResourceHandler(resourceService service.ResourceService) *ResourceHandler {
	return &ResourceHandler{resourceService: resourceService}
}

type CreateResourceRequest struct {
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description" binding:"required"`
	Type        model.ResourceType     `json:"type" binding:"required"`
	Category    model.ResourceCategory `json:"category" binding:"required"`
	Language    string                 `json:"language"`
	ContentURL  string                 `json:"contentUrl"`
	ContentText string                 `json:"contentText"`
	Duration    int                    `json:"duration"`
	Tags        []string               `json:"tags"`
	Difficulty  string                 `json:"difficulty"`
}

// List 分页列出资源，支持 ?type= 和 ?category= 过滤。
func (h *ResourceHandler) List(c *gin.Context) {
	filter := repository.ResourceFilter{
		Type:     model.ResourceType(c.Query("type")),
		Category: model.ResourceCategory(c.Query("category")),
	}
	page, err := h.resourceService.List(c.Request.Context(), filter, intQuery(c, "page", 1), intQuery(c, "size", 20))
	if err != nil {
		respondError(c, "ListResources", err)
		return
	}
	success(c, page)
}

// Search 全文检索资源，?q=关键词&size=条数。
func (h *ResourceHandler) Search(c *gin.Context) {
	hits, err := h.resourceService.Search(c.Request.Context(), c.Query("q"), intQuery(c, "size", 0))
	if err != nil {
		respondError(c, "SearchResources", err)
		return
	}
	success(c, hits)
}

func (h *ResourceHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res, err := h.resourceService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, "GetResource", err)
		return
	}
	success(c, res)
}

func (h *ResourceHandler) Create(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("CreateResource: Invalid request payload, error: %v", err)
		badRequest(c, "无效的请求负载")
		return
	}
	res, err := h.resourceService.Create(c.Request.Context(), actor, service.CreateResourceRequest{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Category:    req.Category,
		Language:    req.Language,
		ContentURL:  req.ContentURL,
		ContentText: req.ContentText,
		Duration:    req.Duration,
		Tags:        req.Tags,
		Difficulty:  req.Difficulty,
	})
	if err != nil {
		respondError(c, "CreateResource", err)
		return
	}
	respond(c, http.StatusCreated, "创建成功", res)
}

// UploadAttachment 接收 multipart 表单中的 file 字段并上传到对象存储。
func (h *ResourceHandler) UploadAttachment(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少文件")
		return
	}
	if fileHeader.Size > maxAttachmentSize {
		respond(c, http.StatusRequestEntityTooLarge, "文件过大", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("UploadAttachment: 打开上传文件失败, error: %v", err)
		respond(c, http.StatusInternalServerError, "服务器内部错误", nil)
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	res, err := h.resourceService.UploadAttachment(c.Request.Context(), actor, id, fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		respondError(c, "UploadAttachment", err)
		return
	}
	success(c, res)
}

// Download 返回附件的临时下载链接。
func (h *ResourceHandler) Download(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	url, err := h.resourceService.DownloadURL(c.Request.Context(), id)
	if err != nil {
		respondError(c, "DownloadResource", err)
		return
	}
	success(c, gin.H{"url": url})
}

// RateResourceRequest 是资源评分请求。
type RateResourceRequest struct {
	Rating int `json:"rating" binding:"required"`
}

// Rate 给资源打分。
func (h *ResourceHandler) Rate(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req RateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：rating 不能为空")
		return
	}
	res, err := h.resourceService.Rate(c.Request.Context(), actor, id, req.Rating)
	if err != nil {
		respondError(c, "RateResource", err)
		return
	}
	success(c, gin.H{"ratingAverage": res.RatingAverage, "ratingCount": res.RatingCount})
}
