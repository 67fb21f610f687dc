package repository

import (
	"context"

	"gorm.io/gorm"

	"mindbridge-go/internal/model"
)

// PostFilter 是帖子列表的过滤条件，零值表示不过滤。
type PostFilter struct {
	Category model.PostCategory
	Status   model.ModerationStatus
	AuthorID uint
	Flagged  bool
}

// PeerSupportRepository 定义了互助社区（帖子、评论、点赞、小组）的持久化操作。
type PeerSupportRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	// FindPost 连同全部评论一起返回，评论按时间升序。
	FindPost(ctx context.Context, id uint) (*model.Post, error)
	UpdatePost(ctx context.Context, post *model.Post) error
	ListPosts(ctx context.Context, filter PostFilter, offset, limit int) ([]model.Post, int64, error)
	IncrementPostViews(ctx context.Context, id uint) error
	// AddLike 重复点赞返回 apperr.ErrConflict。
	AddLike(ctx context.Context, postID, userID uint) (int, error)

	CreateComment(ctx context.Context, comment *model.PostComment) error
	FindComment(ctx context.Context, postID, commentID uint) (*model.PostComment, error)
	UpdateComment(ctx context.Context, comment *model.PostComment) error

	// CreateGroup 创建小组并把创建者加入为 admin 成员。
	CreateGroup(ctx context.Context, group *model.SupportGroup) error
	FindGroup(ctx context.Context, id uint) (*model.SupportGroup, error)
	ListActiveGroups(ctx context.Context) ([]model.SupportGroup, error)
	ListGroupsByMember(ctx context.Context, userID uint) ([]model.SupportGroup, error)
	FindMember(ctx context.Context, groupID, userID uint) (*model.GroupMember, error)
	// AddMember 与 RemoveMember 同时维护 member_count。
	AddMember(ctx context.Context, member *model.GroupMember) error
	RemoveMember(ctx context.Context, groupID, userID uint) error
}

type peerSupportRepository struct {
	db *gorm.DB
}

func NewPeerSupportRepository(db *gorm.DB) PeerSupportRepository {
	return &peerSupportRepository{db: db}
}

func (r *peerSupportRepository) CreatePost(ctx context.Context, post *model.Post) error {
	return wrap(r.db.WithContext(ctx).Omit("Comments").Create(post).Error, "create post %q", post.Title)
}

func (r *peerSupportRepository) FindPost(ctx context.Context, id uint) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		First(&post, id).Error
	if err != nil {
		return nil, wrap(err, "find post %d", id)
	}
	return &post, nil
}

func (r *peerSupportRepository) UpdatePost(ctx context.Context, post *model.Post) error {
	return wrap(r.db.WithContext(ctx).Omit("Comments").Save(post).Error, "update post %d", post.ID)
}

func (r *peerSupportRepository) ListPosts(ctx context.Context, filter PostFilter, offset, limit int) ([]model.Post, int64, error) {
	var out []model.Post
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Post{})
	if filter.Category != "" {
		db = db.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.AuthorID != 0 {
		db = db.Where("author_id = ?", filter.AuthorID)
	}
	if filter.Flagged {
		db = db.Where("flagged = ?", true)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "count posts")
	}
	if err := db.Order("is_pinned DESC, created_at DESC").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, 0, wrap(err, "list posts")
	}
	return out, total, nil
}

func (r *peerSupportRepository) IncrementPostViews(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&model.Post{}).Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1)).Error
	return wrap(err, "increment views of post %d", id)
}

func (r *peerSupportRepository) AddLike(ctx context.Context, postID, userID uint) (int, error) {
	var likes int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model.PostLike{PostID: postID, UserID: userID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Post{}).Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Model(&model.Post{}).Where("id = ?", postID).Pluck("like_count", &likes).Error
	})
	return likes, wrap(err, "like post %d by user %d", postID, userID)
}

func (r *peerSupportRepository) CreateComment(ctx context.Context, comment *model.PostComment) error {
	return wrap(r.db.WithContext(ctx).Create(comment).Error, "comment on post %d", comment.PostID)
}

func (r *peerSupportRepository) FindComment(ctx context.Context, postID, commentID uint) (*model.PostComment, error) {
	var c model.PostComment
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).First(&c, commentID).Error; err != nil {
		return nil, wrap(err, "find comment %d of post %d", commentID, postID)
	}
	return &c, nil
}

func (r *peerSupportRepository) UpdateComment(ctx context.Context, comment *model.PostComment) error {
	return wrap(r.db.WithContext(ctx).Save(comment).Error, "update comment %d", comment.ID)
}

func (r *peerSupportRepository) CreateGroup(ctx context.Context, group *model.SupportGroup) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group.MemberCount = 1
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		return tx.Create(&model.GroupMember{GroupID: group.ID, UserID: group.CreatedBy, Role: model.GroupRoleAdmin}).Error
	})
	return wrap(err, "create group %q", group.Name)
}

func (r *peerSupportRepository) FindGroup(ctx context.Context, id uint) (*model.SupportGroup, error) {
	var g model.SupportGroup
	if err := r.db.WithContext(ctx).First(&g, id).Error; err != nil {
		return nil, wrap(err, "find group %d", id)
	}
	return &g, nil
}

func (r *peerSupportRepository) ListActiveGroups(ctx context.Context) ([]model.SupportGroup, error) {
	var out []model.SupportGroup
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at DESC").Find(&out).Error
	return out, wrap(err, "list groups")
}

func (r *peerSupportRepository) ListGroupsByMember(ctx context.Context, userID uint) ([]model.SupportGroup, error) {
	var out []model.SupportGroup
	err := r.db.WithContext(ctx).
		Joins("JOIN support_group_members m ON m.group_id = support_groups.id").
		Where("m.user_id = ?", userID).
		Order("m.joined_at DESC").
		Find(&out).Error
	return out, wrap(err, "list groups of user %d", userID)
}

func (r *peerSupportRepository) FindMember(ctx context.Context, groupID, userID uint) (*model.GroupMember, error) {
	var m model.GroupMember
	if err := r.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).First(&m).Error; err != nil {
		return nil, wrap(err, "find member %d of group %d", userID, groupID)
	}
	return &m, nil
}

func (r *peerSupportRepository) AddMember(ctx context.Context, member *model.GroupMember) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(member).Error; err != nil {
			return err
		}
		return tx.Model(&model.SupportGroup{}).Where("id = ?", member.GroupID).
			UpdateColumn("member_count", gorm.Expr("member_count + ?", 1)).Error
	})
	return wrap(err, "add member %d to group %d", member.UserID, member.GroupID)
}

func (r *peerSupportRepository) RemoveMember(ctx context.Context, groupID, userID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&model.GroupMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&model.SupportGroup{}).Where("id = ?", groupID).
			UpdateColumn("member_count", gorm.Expr("member_count - ?", 1)).Error
	})
	return wrap(err, "remove member %d from group %d", userID, groupID)
}
