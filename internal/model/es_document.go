package model

// ResourceDocument 是资源在 Elasticsearch 中的索引结构。
type ResourceDocument struct {
	ResourceID  uint     `json:"resource_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ContentText string   `json:"content_text"`
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Language    string   `json:"language"`
	IsActive    bool     `json:"is_active"`
}

// NewResourceDocument 从数据库模型构建索引文档。
func NewResourceDocument(r *Resource) ResourceDocument {
	return ResourceDocument{
		ResourceID:  r.ID,
		Title:       r.Title,
		Description: r.Description,
		ContentText: r.ContentText,
		Type:        string(r.Type),
		Category:    string(r.Category),
		Tags:        []string(r.Tags),
		Language:    r.Language,
		IsActive:    r.IsActive,
	}
}

// ResourceHit 是搜索返回给前端的一条结果。
type ResourceHit struct {
	Resource
	Score float64 `json:"score"`
}
