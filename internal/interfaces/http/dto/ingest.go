package dto

// IngestRequest 文档摄取请求
type IngestRequest struct {
	SourceType string   `json:"source_type" binding:"required"`
	Title      string   `json:"title,omitempty"`
	Text       string   `json:"text" binding:"required"`
	Entities   []string `json:"entities,omitempty"`
	Producer   string   `json:"producer,omitempty"`

	// Async 为真时进入流式队列，由 index worker 消费
	Async bool `json:"async,omitempty"`
}

// IngestResponse 文档摄取响应
type IngestResponse struct {
	ChunkIDs []string `json:"chunk_ids,omitempty"`
	Queued   bool     `json:"queued"`
}

// RemoveChunksRequest 删除 chunk 请求
type RemoveChunksRequest struct {
	ChunkIDs []string `json:"chunk_ids" binding:"required"`
}
