// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionContextChunks 上下文 chunk 集合
	CollectionContextChunks = "context_chunks"

	// VectorDimension 向量维度
	VectorDimension = 1024
)

// ContextChunksSchema 上下文 chunk Collection Schema
// 只存标识与排序所需文本，事实记录在事件日志与关系库
func ContextChunksSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionContextChunks,
		Description:    "Project context chunks for semantic search",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": "1024",
				},
			},
			{
				Name:     "project_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "source_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "text_content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// ChunkVector 待写入的 chunk 向量数据
type ChunkVector struct {
	ID          string    `json:"id"`
	Vector      []float32 `json:"vector"`
	ProjectID   string    `json:"project_id"`
	SourceType  string    `json:"source_type"`
	TextContent string    `json:"text_content"`
}

// PartitionName 生成项目分区名称
// Milvus 分区名不允许连字符，uuid 中的连字符替换为下划线
func PartitionName(projectID string) string {
	return "proj_" + strings.ReplaceAll(projectID, "-", "_")
}
