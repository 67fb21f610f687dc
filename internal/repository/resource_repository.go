package repository

import (
	"context"

	"gorm.io/gorm"

	"mindbridge-go/internal/model"
)

// ResourceFilter 是资源列表的过滤条件，零值表示不过滤。
type ResourceFilter struct {
	Type     model.ResourceType
	Category model.ResourceCategory
}

// ResourceRepository 定义了资源库的持久化操作。
type ResourceRepository interface {
	Create(ctx context.Context, res *model.Resource) error
	FindByID(ctx context.Context, id uint) (*model.Resource, error)
	FindByIDs(ctx context.Context, ids []uint) ([]model.Resource, error)
	Update(ctx context.Context, res *model.Resource) error
	List(ctx context.Context, filter ResourceFilter, offset, limit int) ([]model.Resource, int64, error)
	SearchLike(ctx context.Context, query string, limit int) ([]model.Resource, error)
	IncrementViews(ctx context.Context, id uint) error
	AddRating(ctx context.Context, id uint, rating int) error
	Count(ctx context.Context) (int64, error)
}

type resourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) ResourceRepository {
	return &resourceRepository{db: db}
}

func (r *resourceRepository) Create(ctx context.Context, res *model.Resource) error {
	return wrap(r.db.WithContext(ctx).Create(res).Error, "create resource %q", res.Title)
}

func (r *resourceRepository) FindByID(ctx context.Context, id uint) (*model.Resource, error) {
	var res model.Resource
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).First(&res, id).Error; err != nil {
		return nil, wrap(err, "find resource %d", id)
	}
	return &res, nil
}

func (r *resourceRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Resource, error) {
	var out []model.Resource
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true).Find(&out).Error
	return out, wrap(err, "find resources")
}

func (r *resourceRepository) Update(ctx context.Context, res *model.Resource) error {
	return wrap(r.db.WithContext(ctx).Save(res).Error, "update resource %d", res.ID)
}

func (r *resourceRepository) List(ctx context.Context, filter ResourceFilter, offset, limit int) ([]model.Resource, int64, error) {
	var out []model.Resource
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Resource{}).Where("is_active = ?", true)
	if filter.Type != "" {
		db = db.Where("type = ?", filter.Type)
	}
	if filter.Category != "" {
		db = db.Where("category = ?", filter.Category)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "count resources")
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, 0, wrap(err, "list resources")
	}
	return out, total, nil
}

// SearchLike 是 Elasticsearch 不可用时的降级搜索。
func (r *resourceRepository) SearchLike(ctx context.Context, query string, limit int) ([]model.Resource, error) {
	var out []model.Resource
	like := "%" + query + "%"
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND (title LIKE ? OR description LIKE ?)", true, like, like).
		Order("views DESC").
		Limit(limit).
		Find(&out).Error
	return out, wrap(err, "search resources")
}

func (r *resourceRepository) IncrementViews(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&model.Resource{}).Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1)).Error
	return wrap(err, "increment views of resource %d", id)
}

// AddRating 在一条语句里更新均值和次数，MySQL 按书写顺序求值 SET 子句。
func (r *resourceRepository) AddRating(ctx context.Context, id uint, rating int) error {
	res := r.db.WithContext(ctx).Exec(
		"UPDATE resources SET rating_average = (rating_average * rating_count + ?) / (rating_count + 1), "+
			"rating_count = rating_count + 1 WHERE id = ? AND is_active = ?",
		rating, id, true)
	if res.Error != nil {
		return wrap(res.Error, "rate resource %d", id)
	}
	if res.RowsAffected == 0 {
		return wrap(gorm.ErrRecordNotFound, "rate resource %d", id)
	}
	return nil
}

func (r *resourceRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Resource{}).Where("is_active = ?", true).Count(&n).Error
	return n, wrap(err, "count resources")
}
