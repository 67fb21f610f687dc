// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"mindbridge-go/internal/config"
	"mindbridge-go/internal/model"
	"mindbridge-go/pkg/log"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

const resourceMapping = `{
	"mappings": {
		"properties": {
			"resource_id": { "type": "long" },
			"title": { "type": "text", "fields": { "keyword": { "type": "keyword" } } },
			"description": { "type": "text" },
			"content_text": { "type": "text" },
			"type": { "type": "keyword" },
			"category": { "type": "keyword" },
			"tags": { "type": "keyword" },
			"language": { "type": "keyword" },
			"is_active": { "type": "boolean" }
		}
	}
}`

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	created, err := ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(resourceMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer created.Body.Close()
	if created.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, created.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// Hit 是一条搜索命中。
type Hit struct {
	ResourceID uint
	Score      float64
}

// ResourceIndex 封装资源索引的读写。
type ResourceIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewResourceIndex 使用给定客户端创建资源索引访问器。
func NewResourceIndex(client *elasticsearch.Client, indexName string) *ResourceIndex {
	return &ResourceIndex{client: client, indexName: indexName}
}

// Index 写入或覆盖一条资源文档。
func (ri *ResourceIndex) Index(ctx context.Context, doc model.ResourceDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      ri.indexName,
		DocumentID: strconv.FormatUint(uint64(doc.ResourceID), 10),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ri.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// BuildSearchQuery 构建多字段全文检索，只返回启用的资源。
func BuildSearchQuery(query string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":     query,
						"fields":    []string{"title^3", "tags^2", "description", "content_text"},
						"fuzziness": "AUTO",
					},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"is_active": true}},
				},
			},
		},
		"_source": []string{"resource_id"},
	}
}

// Search 返回按相关度排序的资源 ID。
func (ri *ResourceIndex) Search(ctx context.Context, query string, size int) ([]Hit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildSearchQuery(query, size)); err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	res, err := ri.client.Search(
		ri.client.Search.WithContext(ctx),
		ri.client.Search.WithIndex(ri.indexName),
		ri.client.Search.WithBody(&buf),
		ri.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}
	return decodeHits(res.Body)
}

func decodeHits(body io.Reader) ([]Hit, error) {
	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source struct {
					ResourceID uint `json:"resource_id"`
				} `json:"_source"`
				Score float64 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, Hit{ResourceID: h.Source.ResourceID, Score: h.Score})
	}
	return hits, nil
}
