// Package es 提供了与 Elasticsearch 交互的客户端功能。
// 消息在写入日志后以尽力而为的方式索引到这里，支撑关键词检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"heartalk-go/internal/config"
	"heartalk-go/internal/model"
	"heartalk-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
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

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
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

	// 消息内容使用 ik 中文分词器
	mapping := `{
		"mappings": {
			"properties": {
				"id": { "type": "keyword" },
				"container": { "type": "keyword" },
				"senderId": { "type": "long" },
				"role": { "type": "keyword" },
				"content": {
					"type": "text",
					"analyzer": "ik_max_word",
					"search_analyzer": "ik_smart"
				},
				"createdAt": { "type": "long" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexMessage 将单条消息索引到 Elasticsearch。
func IndexMessage(ctx context.Context, indexName string, msg *model.Message) error {
	docBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: msg.ID,
		Body:       bytes.NewReader(docBytes),
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引消息到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index message")
	}

	return nil
}

// DeleteMessage 从索引中移除一条消息（消息删除时的尽力而为清理）。
func DeleteMessage(ctx context.Context, indexName, messageID string) error {
	req := esapi.DeleteRequest{
		Index:      indexName,
		DocumentID: messageID,
	}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	// 文档不存在视为已删除
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete message from index: %s", res.String())
	}
	return nil
}

// SearchMessages 在给定容器范围内对消息内容做关键词检索，按时间倒序返回。
func SearchMessages(ctx context.Context, indexName string, containers []string, query string, limit int) ([]model.Message, error) {
	searchBody := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{"content": query},
				},
				"filter": map[string]interface{}{
					"terms": map[string]interface{}{"container": containers},
				},
			},
		},
		"sort": []map[string]interface{}{
			{"createdAt": map[string]interface{}{"order": "desc"}},
		},
	}
	bodyBytes, err := json.Marshal(searchBody)
	if err != nil {
		return nil, err
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(bytes.NewReader(bodyBytes)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search returned error: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source model.Message `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	messages := make([]model.Message, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		messages = append(messages, hit.Source)
	}
	return messages, nil
}
