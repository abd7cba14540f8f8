package models

import "errors"

// 核心错误分类
// 管道各阶段的失败映射到这些哨兵错误，调用方用errors.Is判断
var (
	// ErrDocumentNotFound 源文件路径不存在
	ErrDocumentNotFound = errors.New("document not found")

	// ErrUnsupportedFormat 不支持的文件格式
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrTokenization 分词器调用失败（视为致命的配置级错误，不在本地重试）
	ErrTokenization = errors.New("tokenization failed")

	// ErrEmbeddingFailure 外部嵌入调用失败（按chunk id上报，不静默丢弃）
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrStoreWriteFailure 向量库拒绝写入（按id上报，其余条目继续处理）
	ErrStoreWriteFailure = errors.New("vector store write failed")

	// ErrStoreUnavailable 向量库不可达（直接上抛，重试策略由调用方决定）
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrNoRelevantMaterial 知识库中没有与问题相关的材料
	// 显式哨兵而非空列表，调用方据此渲染兜底回答
	ErrNoRelevantMaterial = errors.New("no relevant course material found")

	// ErrInvalidDocumentStatus 无效的文档状态
	ErrInvalidDocumentStatus = errors.New("invalid document status")

	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
)
