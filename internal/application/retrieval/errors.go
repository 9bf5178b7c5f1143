package retrieval

import "errors"

var (
	// ErrVectorDisabled 表示向量检索能力未配置（Milvus 或 Embedder 不可用）
	ErrVectorDisabled = errors.New("vector retrieval is disabled")

	// ErrLexicalDisabled 表示词法索引能力未配置
	ErrLexicalDisabled = errors.New("lexical retrieval is disabled")

	// ErrAllSourcesFailed 表示扇出的所有来源均失败或超时
	// 单一来源失败只降级为空贡献，全部失败才升级为显式错误
	ErrAllSourcesFailed = errors.New("all retrieval sources failed")
)
