package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/internal/risk"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/lock"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/tasks"
)

const (
	maxPostTitle      = 200
	maxPostContent    = 10000
	defaultMaxMembers = 50
	maxGroupMembers   = 500
	userPostLimit     = 100
)

// CreatePostRequest 是发帖请求。
type CreatePostRequest struct {
	Title       string
	Content     string
	Category    model.PostCategory
	Tags        []string
	IsAnonymous bool
}

// CreateGroupRequest 是创建互助小组的请求，MaxMembers 为 0 时默认 50。
type CreateGroupRequest struct {
	Name        string
	Description string
	Category    model.GroupCategory
	IsPrivate   bool
	MaxMembers  int
	Rules       []string
}

// PostPage 是分页的帖子列表。
type PostPage struct {
	Content       []model.Post `json:"content"`
	TotalElements int64        `json:"totalElements"`
	Size          int          `json:"size"`
	Number        int          `json:"number"`
}

// PeerSupportService 定义了同伴互助社区的业务操作。
type PeerSupportService interface {
	ListPosts(ctx context.Context, actor Actor, filter repository.PostFilter, page, size int) (*PostPage, error)
	GetPost(ctx context.Context, actor Actor, id uint) (*model.Post, error)
	CreatePost(ctx context.Context, actor Actor, req CreatePostRequest) (*model.Post, error)
	AddComment(ctx context.Context, actor Actor, postID uint, content string, anonymous bool) (*model.PostComment, error)
	LikePost(ctx context.Context, actor Actor, postID uint) (int, error)
	ModeratePost(ctx context.Context, actor Actor, postID uint, status model.ModerationStatus, notes string) (*model.Post, error)
	ModerateComment(ctx context.Context, actor Actor, postID, commentID uint, status model.ModerationStatus) (*model.PostComment, error)
	UserPosts(ctx context.Context, actor Actor, userID uint) ([]model.Post, error)

	ListGroups(ctx context.Context) ([]model.SupportGroup, error)
	CreateGroup(ctx context.Context, actor Actor, req CreateGroupRequest) (*model.SupportGroup, error)
	JoinGroup(ctx context.Context, actor Actor, groupID uint) (*model.SupportGroup, error)
	LeaveGroup(ctx context.Context, actor Actor, groupID uint) error
	UserGroups(ctx context.Context, actor Actor, userID uint) ([]model.SupportGroup, error)
}

type peerSupportService struct {
	repo       repository.PeerSupportRepository
	classifier risk.Classifier
	locker     lock.Locker
	publisher  TaskPublisher
	now        func() time.Time
}

// NewPeerSupportService 创建一个新的 PeerSupportService 实例。
// 新帖和评论都会经过危机识别，命中的内容进入人工审核并通知值班咨询师。
func NewPeerSupportService(repo repository.PeerSupportRepository, classifier risk.Classifier, locker lock.Locker, publisher TaskPublisher) PeerSupportService {
	return newPeerSupportService(repo, classifier, locker, publisher)
}

func newPeerSupportService(repo repository.PeerSupportRepository, classifier risk.Classifier, locker lock.Locker, publisher TaskPublisher) *peerSupportService {
	if classifier == nil {
		classifier = risk.NewKeywordClassifier(nil)
	}
	return &peerSupportService{
		repo:       repo,
		classifier: classifier,
		locker:     locker,
		publisher:  publisher,
		now:        time.Now,
	}
}

func groupLockKey(groupID uint) string {
	return fmt.Sprintf("peer:group:%d", groupID)
}

// canSeePost 已发布的帖子所有人可见，其余只有作者和工作人员可见。
func (a Actor) canSeePost(p *model.Post) bool {
	return a.IsStaff() || p.AuthorID == a.UserID || p.Status == model.ModerationApproved
}

// present 隐去匿名作者，并过滤掉当前用户不应看到的评论。
func present(actor Actor, p *model.Post) {
	if p.IsAnonymous && !actor.IsStaff() && p.AuthorID != actor.UserID {
		p.AuthorID = 0
	}
	if len(p.Comments) == 0 {
		return
	}
	visible := p.Comments[:0]
	for _, c := range p.Comments {
		own := c.AuthorID == actor.UserID
		if c.Status != model.ModerationApproved && !own && !actor.IsStaff() {
			continue
		}
		if c.IsAnonymous && !own && !actor.IsStaff() {
			c.AuthorID = 0
		}
		visible = append(visible, c)
	}
	p.Comments = visible
}

func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *peerSupportService) findPost(ctx context.Context, id uint) (*model.Post, error) {
	post, err := s.repo.FindPost(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("post %d: %w", id, ErrPostNotFound)
	}
	return post, err
}

// ListPosts 普通用户只能看到已发布的帖子，查看自己的帖子时不限状态。
func (s *peerSupportService) ListPosts(ctx context.Context, actor Actor, filter repository.PostFilter, page, size int) (*PostPage, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, apperr.Invalid("category", "unknown post category")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Invalid("status", "unknown moderation status")
	}
	if !actor.IsStaff() {
		filter.Flagged = false
		if filter.AuthorID != actor.UserID {
			filter.Status = model.ModerationApproved
		}
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > maxUserPageSize {
		size = 10
	}
	items, total, err := s.repo.ListPosts(ctx, filter, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Post{}
	}
	for i := range items {
		present(actor, &items[i])
	}
	return &PostPage{Content: items, TotalElements: total, Size: size, Number: page}, nil
}

// GetPost 返回帖子及可见评论，并累计浏览次数。
func (s *peerSupportService) GetPost(ctx context.Context, actor Actor, id uint) (*model.Post, error) {
	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canSeePost(post) {
		return nil, fmt.Errorf("post %d: %w", id, ErrPostNotFound)
	}
	if err := s.repo.IncrementPostViews(ctx, id); err != nil {
		log.Errorf("更新帖子浏览次数失败: postId=%d, error: %v", id, err)
	} else {
		post.Views++
	}
	present(actor, post)
	return post, nil
}

// flag 通知值班咨询师处理命中危机关键词的内容。
func (s *peerSupportService) flag(ctx context.Context, authorID, postID, commentID uint, a risk.Assessment) {
	log.Warnw("peer support content flagged by crisis detection", "postId", postID,
		"commentId", commentID, "authorId", authorID, "keywords", a.Matched)
	reason := "post"
	if commentID != 0 {
		reason = "comment"
	}
	publish(ctx, s.publisher, tasks.NotificationTask{
		Kind:      tasks.KindPeerContentFlagged,
		UserID:    authorID,
		PostID:    postID,
		CommentID: commentID,
		RiskLevel: string(a.Level),
		Reason:    reason + " matched: " + strings.Join(a.Matched, ", "),
	}, s.now())
}

// CreatePost 新帖进入待审核状态。
func (s *peerSupportService) CreatePost(ctx context.Context, actor Actor, req CreatePostRequest) (*model.Post, error) {
	req.Title = strings.TrimSpace(req.Title)
	if n := utf8.RuneCountInString(req.Title); n == 0 || n > maxPostTitle {
		return nil, apperr.Invalid("title", fmt.Sprintf("must be between 1 and %d characters", maxPostTitle))
	}
	req.Content = strings.TrimSpace(req.Content)
	if n := utf8.RuneCountInString(req.Content); n == 0 || n > maxPostContent {
		return nil, apperr.Invalid("content", fmt.Sprintf("must be between 1 and %d characters", maxPostContent))
	}
	if !req.Category.Valid() {
		return nil, apperr.Invalid("category", "unknown post category")
	}

	assessment := s.classifier.Classify(req.Title + "\n" + req.Content)
	post := &model.Post{
		AuthorID:    actor.UserID,
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		Tags:        datatypes.JSONSlice[string](normalizeTags(req.Tags)),
		IsAnonymous: req.IsAnonymous,
		Status:      model.ModerationPending,
		Flagged:     assessment.Crisis,
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	log.Infow("post created", "postId", post.ID, "authorId", actor.UserID, "flagged", post.Flagged)
	if assessment.Crisis {
		s.flag(ctx, actor.UserID, post.ID, 0, assessment)
	}
	return post, nil
}

// AddComment 只能评论已发布的帖子。普通评论直接发布，命中危机关键词的评论转入待审核。
func (s *peerSupportService) AddComment(ctx context.Context, actor Actor, postID uint, content string, anonymous bool) (*model.PostComment, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > maxPostContent {
		return nil, apperr.Invalid("content", fmt.Sprintf("must be between 1 and %d characters", maxPostContent))
	}
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !actor.canSeePost(post) {
		return nil, fmt.Errorf("post %d: %w", postID, ErrPostNotFound)
	}
	if post.Status != model.ModerationApproved {
		return nil, ErrPostNotOpen
	}

	assessment := s.classifier.Classify(content)
	comment := &model.PostComment{
		PostID:      postID,
		AuthorID:    actor.UserID,
		Content:     content,
		IsAnonymous: anonymous,
		Status:      model.ModerationApproved,
		Flagged:     assessment.Crisis,
	}
	if assessment.Crisis {
		comment.Status = model.ModerationPending
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	if assessment.Crisis {
		s.flag(ctx, actor.UserID, postID, comment.ID, assessment)
	}
	return comment, nil
}

// LikePost 每人对同一帖子只能点赞一次，返回最新点赞数。
func (s *peerSupportService) LikePost(ctx context.Context, actor Actor, postID uint) (int, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return 0, err
	}
	if !actor.canSeePost(post) {
		return 0, fmt.Errorf("post %d: %w", postID, ErrPostNotFound)
	}
	if post.Status != model.ModerationApproved {
		return 0, ErrPostNotOpen
	}
	likes, err := s.repo.AddLike(ctx, postID, actor.UserID)
	if errors.Is(err, apperr.ErrConflict) {
		return 0, ErrAlreadyLiked
	}
	return likes, err
}

// ModeratePost 由咨询师或管理员审核帖子。审核通过即视为已处理，清除危机标记。
func (s *peerSupportService) ModeratePost(ctx context.Context, actor Actor, postID uint, status model.ModerationStatus, notes string) (*model.Post, error) {
	if !actor.IsStaff() {
		return nil, ErrNotOwner
	}
	if !status.Valid() {
		return nil, apperr.Invalid("status", "unknown moderation status")
	}
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	post.Status = status
	post.ModeratedBy = &actor.UserID
	post.ModeratedAt = &now
	post.ModerationNotes = strings.TrimSpace(notes)
	if status == model.ModerationApproved {
		post.Flagged = false
	}
	if err := s.repo.UpdatePost(ctx, post); err != nil {
		return nil, err
	}
	log.Infow("post moderated", "postId", postID, "status", status, "by", actor.UserID)
	return post, nil
}

func (s *peerSupportService) ModerateComment(ctx context.Context, actor Actor, postID, commentID uint, status model.ModerationStatus) (*model.PostComment, error) {
	if !actor.IsStaff() {
		return nil, ErrNotOwner
	}
	switch status {
	case model.ModerationPending, model.ModerationApproved, model.ModerationRejected:
	default:
		return nil, apperr.Invalid("status", "must be pending, approved or rejected")
	}
	comment, err := s.repo.FindComment(ctx, postID, commentID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("comment %d: %w", commentID, ErrCommentNotFound)
		}
		return nil, err
	}
	now := s.now()
	comment.Status = status
	comment.ModeratedBy = &actor.UserID
	comment.ModeratedAt = &now
	if status == model.ModerationApproved {
		comment.Flagged = false
	}
	if err := s.repo.UpdateComment(ctx, comment); err != nil {
		return nil, err
	}
	log.Infow("comment moderated", "postId", postID, "commentId", commentID, "status", status, "by", actor.UserID)
	return comment, nil
}

// UserPosts 他人只能看到该用户已发布且非匿名的帖子。
func (s *peerSupportService) UserPosts(ctx context.Context, actor Actor, userID uint) ([]model.Post, error) {
	filter := repository.PostFilter{AuthorID: userID}
	self := actor.IsStaff() || actor.UserID == userID
	if !self {
		filter.Status = model.ModerationApproved
	}
	items, _, err := s.repo.ListPosts(ctx, filter, 0, userPostLimit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Post, 0, len(items))
	for _, p := range items {
		if !self && p.IsAnonymous {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *peerSupportService) ListGroups(ctx context.Context) ([]model.SupportGroup, error) {
	groups, err := s.repo.ListActiveGroups(ctx)
	if groups == nil && err == nil {
		groups = []model.SupportGroup{}
	}
	return groups, err
}

// CreateGroup 创建者自动成为小组 admin。
func (s *peerSupportService) CreateGroup(ctx context.Context, actor Actor, req CreateGroupRequest) (*model.SupportGroup, error) {
	req.Name = strings.TrimSpace(req.Name)
	if n := utf8.RuneCountInString(req.Name); n == 0 || n > 128 {
		return nil, apperr.Invalid("name", "must be between 1 and 128 characters")
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return nil, apperr.Invalid("description", "is required")
	}
	if !req.Category.Valid() {
		return nil, apperr.Invalid("category", "unknown group category")
	}
	if req.MaxMembers == 0 {
		req.MaxMembers = defaultMaxMembers
	}
	if req.MaxMembers < 2 || req.MaxMembers > maxGroupMembers {
		return nil, apperr.Invalid("maxMembers", fmt.Sprintf("must be between 2 and %d", maxGroupMembers))
	}
	rules := make([]string, 0, len(req.Rules))
	for _, r := range req.Rules {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, r)
		}
	}

	group := &model.SupportGroup{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
		Rules:       datatypes.JSONSlice[string](rules),
		IsActive:    true,
		CreatedBy:   actor.UserID,
	}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	log.Infow("support group created", "groupId", group.ID, "name", group.Name, "by", actor.UserID)
	return group, nil
}

func (s *peerSupportService) findGroup(ctx context.Context, id uint) (*model.SupportGroup, error) {
	group, err := s.repo.FindGroup(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("group %d: %w", id, ErrGroupNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !group.IsActive {
		return nil, fmt.Errorf("group %d: %w", id, ErrGroupNotFound)
	}
	return group, nil
}

// JoinGroup 在小组锁内检查人数上限，私密小组只能由工作人员直接加入。
func (s *peerSupportService) JoinGroup(ctx context.Context, actor Actor, groupID uint) (*model.SupportGroup, error) {
	unlock, err := s.locker.Lock(ctx, groupLockKey(groupID))
	if err != nil {
		return nil, fmt.Errorf("lock group %d: %w", groupID, err)
	}
	defer unlock()

	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.IsPrivate && !actor.IsStaff() {
		return nil, ErrNotOwner
	}
	if _, err := s.repo.FindMember(ctx, groupID, actor.UserID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if group.MemberCount >= group.MaxMembers {
		return nil, ErrGroupFull
	}
	if err := s.repo.AddMember(ctx, &model.GroupMember{GroupID: groupID, UserID: actor.UserID, Role: model.GroupRoleMember}); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, ErrAlreadyMember
		}
		return nil, err
	}
	group.MemberCount++
	log.Infow("joined support group", "groupId", groupID, "userId", actor.UserID)
	return group, nil
}

func (s *peerSupportService) LeaveGroup(ctx context.Context, actor Actor, groupID uint) error {
	unlock, err := s.locker.Lock(ctx, groupLockKey(groupID))
	if err != nil {
		return fmt.Errorf("lock group %d: %w", groupID, err)
	}
	defer unlock()

	if _, err := s.findGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.repo.RemoveMember(ctx, groupID, actor.UserID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return ErrNotMember
		}
		return err
	}
	log.Infow("left support group", "groupId", groupID, "userId", actor.UserID)
	return nil
}

// UserGroups 小组成员关系只对本人和工作人员可见。
func (s *peerSupportService) UserGroups(ctx context.Context, actor Actor, userID uint) ([]model.SupportGroup, error) {
	if !actor.IsStaff() && actor.UserID != userID {
		return nil, ErrNotOwner
	}
	groups, err := s.repo.ListGroupsByMember(ctx, userID)
	if groups == nil && err == nil {
		groups = []model.SupportGroup{}
	}
	return groups, err
}
