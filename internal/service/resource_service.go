package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/es"
	"mindbridge-go/pkg/log"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
	downloadURLExpiry = time.Hour
)

// ResourceIndexer 是资源全文检索，es.ResourceIndex 实现了该接口。
type ResourceIndexer interface {
	Index(ctx context.Context, doc model.ResourceDocument) error
	Search(ctx context.Context, query string, size int) ([]es.Hit, error)
}

// ObjectStore 是附件的对象存储，storage.Bucket 实现了该接口。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, objectName, fileName string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, objectName string) error
}

// CreateResourceRequest 是新建资源的请求。
type CreateResourceRequest struct {
	Title       string
	Description string
	Type        model.ResourceType
	Category    model.ResourceCategory
	Language    string
	ContentURL  string
	ContentText string
	Duration    int
	Tags        []string
	Difficulty  string
}

// ResourcePage 是分页的资源列表。
type ResourcePage struct {
	Content       []model.Resource `json:"content"`
	TotalElements int64            `json:"totalElements"`
	Size          int              `json:"size"`
	Number        int              `json:"number"`
}

// ResourceService 定义了资源库的业务操作。
type ResourceService interface {
	Create(ctx context.Context, actor Actor, req CreateResourceRequest) (*model.Resource, error)
	Get(ctx context.Context, id uint) (*model.Resource, error)
	List(ctx context.Context, filter repository.ResourceFilter, page, size int) (*ResourcePage, error)
	Search(ctx context.Context, query string, size int) ([]model.ResourceHit, error)
	UploadAttachment(ctx context.Context, actor Actor, id uint, fileName string, r io.Reader, size int64, contentType string) (*model.Resource, error)
	DownloadURL(ctx context.Context, id uint) (string, error)
	Rate(ctx context.Context, actor Actor, id uint, rating int) (*model.Resource, error)
}

type resourceService struct {
	resources repository.ResourceRepository
	index     ResourceIndexer
	store     ObjectStore
}

// NewResourceService 创建一个新的 ResourceService 实例。
// index 为 nil 时搜索直接走数据库，store 为 nil 时不支持附件。
func NewResourceService(resources repository.ResourceRepository, index ResourceIndexer, store ObjectStore) ResourceService {
	return &resourceService{resources: resources, index: index, store: store}
}

func normalizeResource(req *CreateResourceRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return apperr.Invalid("title", "is required")
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return apperr.Invalid("description", "is required")
	}
	if !req.Type.Valid() {
		return apperr.Invalid("type", "unknown resource type")
	}
	if !req.Category.Valid() {
		return apperr.Invalid("category", "unknown resource category")
	}
	if req.Language == "" {
		req.Language = "en"
	}
	switch req.Difficulty {
	case "":
		req.Difficulty = "beginner"
	case "beginner", "intermediate", "advanced":
	default:
		return apperr.Invalid("difficulty", "must be beginner, intermediate or advanced")
	}
	if req.Duration < 0 {
		return apperr.Invalid("duration", "must not be negative")
	}
	tags := make([]string, 0, len(req.Tags))
	for _, t := range req.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	req.Tags = tags
	return nil
}

// Create 保存资源并写入搜索索引。索引失败只记录日志，搜索会降级到数据库。
func (s *resourceService) Create(ctx context.Context, actor Actor, req CreateResourceRequest) (*model.Resource, error) {
	if !actor.IsStaff() {
		return nil, ErrNotOwner
	}
	if err := normalizeResource(&req); err != nil {
		return nil, err
	}
	res := &model.Resource{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Category:    req.Category,
		Language:    req.Language,
		ContentURL:  req.ContentURL,
		ContentText: req.ContentText,
		Duration:    req.Duration,
		Tags:        datatypes.JSONSlice[string](req.Tags),
		Difficulty:  req.Difficulty,
		IsActive:    true,
		CreatedBy:   actor.UserID,
	}
	if err := s.resources.Create(ctx, res); err != nil {
		return nil, err
	}
	s.reindex(ctx, res)
	log.Infow("resource created", "resourceId", res.ID, "title", res.Title, "by", actor.UserID)
	return res, nil
}

func (s *resourceService) reindex(ctx context.Context, res *model.Resource) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, model.NewResourceDocument(res)); err != nil {
		log.Errorf("资源写入索引失败: resourceId=%d, error: %v", res.ID, err)
	}
}

func (s *resourceService) find(ctx context.Context, id uint) (*model.Resource, error) {
	res, err := s.resources.FindByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("resource %d: %w", id, ErrResourceNotFound)
	}
	return res, err
}

// Get 返回资源并累计浏览次数。
func (s *resourceService) Get(ctx context.Context, id uint) (*model.Resource, error) {
	res, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.resources.IncrementViews(ctx, id); err != nil {
		log.Errorf("更新资源浏览次数失败: resourceId=%d, error: %v", id, err)
	} else {
		res.Views++
	}
	return res, nil
}

func (s *resourceService) List(ctx context.Context, filter repository.ResourceFilter, page, size int) (*ResourcePage, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperr.Invalid("type", "unknown resource type")
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, apperr.Invalid("category", "unknown resource category")
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > maxUserPageSize {
		size = 20
	}
	items, total, err := s.resources.List(ctx, filter, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Resource{}
	}
	return &ResourcePage{Content: items, TotalElements: total, Size: size, Number: page}, nil
}

// Search 优先使用 Elasticsearch，按相关度排序；不可用时降级为数据库模糊查询。
func (s *resourceService) Search(ctx context.Context, query string, size int) ([]model.ResourceHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Invalid("q", "is required")
	}
	if size < 1 {
		size = defaultSearchSize
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}

	if s.index != nil {
		hits, err := s.index.Search(ctx, query, size)
		if err == nil {
			return s.hydrate(ctx, hits)
		}
		log.Warnf("Elasticsearch 搜索失败，降级为数据库查询: %v", err)
	}

	items, err := s.resources.SearchLike(ctx, query, size)
	if err != nil {
		return nil, err
	}
	out := make([]model.ResourceHit, 0, len(items))
	for _, r := range items {
		out = append(out, model.ResourceHit{Resource: r})
	}
	return out, nil
}

// hydrate 按命中顺序回表，索引中已删除或停用的资源会被跳过。
func (s *resourceService) hydrate(ctx context.Context, hits []es.Hit) ([]model.ResourceHit, error) {
	ids := make([]uint, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ResourceID)
	}
	items, err := s.resources.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.Resource, len(items))
	for _, r := range items {
		byID[r.ID] = r
	}
	out := make([]model.ResourceHit, 0, len(hits))
	for _, h := range hits {
		if r, ok := byID[h.ResourceID]; ok {
			out = append(out, model.ResourceHit{Resource: r, Score: h.Score})
		}
	}
	return out, nil
}

func attachmentKey(id uint, fileName string) string {
	return fmt.Sprintf("resources/%d/%s-%s", id, uuid.NewString(), path.Base(fileName))
}

// UploadAttachment 上传附件并替换旧附件。
func (s *resourceService) UploadAttachment(ctx context.Context, actor Actor, id uint, fileName string, r io.Reader, size int64, contentType string) (*model.Resource, error) {
	if !actor.IsStaff() {
		return nil, ErrNotOwner
	}
	if s.store == nil {
		return nil, errors.New("object storage is not configured")
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, apperr.Invalid("file", "file name is required")
	}
	res, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	key := attachmentKey(id, fileName)
	if err := s.store.Put(ctx, key, r, size, contentType); err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	old := res.ObjectKey
	res.ObjectKey = key
	res.FileName = path.Base(fileName)
	if err := s.resources.Update(ctx, res); err != nil {
		if rmErr := s.store.Remove(ctx, key); rmErr != nil {
			log.Errorf("清理未关联的附件失败: key=%s, error: %v", key, rmErr)
		}
		return nil, err
	}
	if old != "" {
		if err := s.store.Remove(ctx, old); err != nil {
			log.Errorf("删除旧附件失败: key=%s, error: %v", old, err)
		}
	}
	log.Infow("resource attachment uploaded", "resourceId", id, "object", key, "size", size)
	return res, nil
}

// DownloadURL 返回附件的临时下载链接。
func (s *resourceService) DownloadURL(ctx context.Context, id uint) (string, error) {
	res, err := s.find(ctx, id)
	if err != nil {
		return "", err
	}
	if res.ObjectKey == "" || s.store == nil {
		return "", ErrNoAttachment
	}
	return s.store.PresignedURL(ctx, res.ObjectKey, res.FileName, downloadURLExpiry)
}

// Rate 记录一次 1-5 分的评分并返回更新后的资源。
func (s *resourceService) Rate(ctx context.Context, actor Actor, id uint, rating int) (*model.Resource, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.Invalid("rating", "must be between 1 and 5")
	}
	if err := s.resources.AddRating(ctx, id, rating); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("resource %d: %w", id, ErrResourceNotFound)
		}
		return nil, err
	}
	log.Infow("resource rated", "resourceId", id, "rating", rating, "by", actor.UserID)
	return s.find(ctx, id)
}
