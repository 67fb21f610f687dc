package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/internal/service"
)

// PeerSupportHandler 处理同伴互助社区的帖子和小组请求。
type PeerSupportHandler struct {
	peerService service.PeerSupportService
}

func NewPeerSupportHandler(peerService service.PeerSupportService) *PeerSupportHandler {
	return &PeerSupportHandler{peerService: peerService}
}

type CreatePostRequest struct {
	Title       string             `json:"title" binding:"required"`
	Content     string             `json:"content" binding:"required"`
	Category    model.PostCategory `json:"category" binding:"required"`
	Tags        []string           `json:"tags"`
	IsAnonymous bool               `json:"isAnonymous"`
}

type CommentRequest struct {
	Content     string `json:"content" binding:"required"`
	IsAnonymous bool   `json:"isAnonymous"`
}

type ModerateRequest struct {
	Status model.ModerationStatus `json:"status" binding:"required"`
	Notes  string                 `json:"notes"`
}

type CreateGroupRequest struct {
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description" binding:"required"`
	Category    model.GroupCategory `json:"category" binding:"required"`
	IsPrivate   bool                `json:"isPrivate"`
	MaxMembers  int                 `json:"maxMembers"`
	Rules       []string            `json:"rules"`
}

// ListPosts 支持 ?category= ?status= ?authorId= ?flagged=true 过滤，status 和 flagged 仅对工作人员生效。
func (h *PeerSupportHandler) ListPosts(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	filter := repository.PostFilter{
		Category: model.PostCategory(c.Query("category")),
		Status:   model.ModerationStatus(c.Query("status")),
		Flagged:  c.Query("flagged") == "true",
	}
	if v, err := strconv.ParseUint(c.Query("authorId"), 10, 64); err == nil {
		filter.AuthorID = uint(v)
	}
	page, err := h.peerService.ListPosts(c.Request.Context(), actor, filter, intQuery(c, "page", 1), intQuery(c, "limit", 10))
	if err != nil {
		respondError(c, "ListPosts", err)
		return
	}
	success(c, page)
}

func (h *PeerSupportHandler) GetPost(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	post, err := h.peerService.GetPost(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, "GetPost", err)
		return
	}
	success(c, post)
}

func (h *PeerSupportHandler) CreatePost(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：标题、内容和分类不能为空")
		return
	}
	post, err := h.peerService.CreatePost(c.Request.Context(), actor, service.CreatePostRequest{
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		Tags:        req.Tags,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		respondError(c, "CreatePost", err)
		return
	}
	respond(c, http.StatusCreated, "帖子已提交，等待审核", post)
}

func (h *PeerSupportHandler) AddComment(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：评论内容不能为空")
		return
	}
	comment, err := h.peerService.AddComment(c.Request.Context(), actor, id, req.Content, req.IsAnonymous)
	if err != nil {
		respondError(c, "AddComment", err)
		return
	}
	respond(c, http.StatusCreated, "评论成功", comment)
}

func (h *PeerSupportHandler) LikePost(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	likes, err := h.peerService.LikePost(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, "LikePost", err)
		return
	}
	success(c, gin.H{"likes": likes})
}

func (h *PeerSupportHandler) ModeratePost(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req ModerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：status 不能为空")
		return
	}
	post, err := h.peerService.ModeratePost(c.Request.Context(), actor, id, req.Status, req.Notes)
	if err != nil {
		respondError(c, "ModeratePost", err)
		return
	}
	success(c, post)
}

func (h *PeerSupportHandler) ModerateComment(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	postID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	commentID, ok := uintParam(c, "commentId")
	if !ok {
		return
	}
	var req ModerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：status 不能为空")
		return
	}
	comment, err := h.peerService.ModerateComment(c.Request.Context(), actor, postID, commentID, req.Status)
	if err != nil {
		respondError(c, "ModerateComment", err)
		return
	}
	success(c, comment)
}

func (h *PeerSupportHandler) UserPosts(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	posts, err := h.peerService.UserPosts(c.Request.Context(), actor, userID)
	if err != nil {
		respondError(c, "UserPosts", err)
		return
	}
	success(c, posts)
}

func (h *PeerSupportHandler) ListGroups(c *gin.Context) {
	groups, err := h.peerService.ListGroups(c.Request.Context())
	if err != nil {
		respondError(c, "ListGroups", err)
		return
	}
	success(c, groups)
}

func (h *PeerSupportHandler) CreateGroup(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：名称、描述和类别不能为空")
		return
	}
	group, err := h.peerService.CreateGroup(c.Request.Context(), actor, service.CreateGroupRequest{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
		Rules:       req.Rules,
	})
	if err != nil {
		respondError(c, "CreateGroup", err)
		return
	}
	respond(c, http.StatusCreated, "小组创建成功", group)
}

func (h *PeerSupportHandler) JoinGroup(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	group, err := h.peerService.JoinGroup(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, "JoinGroup", err)
		return
	}
	success(c, group)
}

func (h *PeerSupportHandler) LeaveGroup(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.peerService.LeaveGroup(c.Request.Context(), actor, id); err != nil {
		respondError(c, "LeaveGroup", err)
		return
	}
	respond(c, http.StatusOK, "已退出小组", nil)
}

func (h *PeerSupportHandler) UserGroups(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	groups, err := h.peerService.UserGroups(c.Request.Context(), actor, userID)
	if err != nil {
		respondError(c, "UserGroups", err)
		return
	}
	success(c, groups)
}
