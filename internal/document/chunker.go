package document

import (
	"fmt"
	"strings"

	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/fyerfyer/math-tutor/internal/tokenizer"
)

// Chunk 带元数据的文本块
// 入库后不可变，id在单个source内唯一且连续
type Chunk struct {
	ID         string // 确定性ID：{source}_chunk_{index}
	Text       string // chunk文本内容
	Source     string // 来源文件名
	Index      int    // 序号，单个source内从0开始单调递增
	TokenCount int    // 分词器统计的token数
}

// ChunkerConfig 分块器配置
type ChunkerConfig struct {
	ChunkSize int // token预算，超出则切分
	Overlap   int // 相邻chunk间保留的尾部token数
}

// DefaultChunkerConfig 返回默认分块器配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize: 600,
		Overlap:   100,
	}
}

// Chunker 按token预算的段落感知分块器
// 对固定的(text, source, chunk_size, overlap)输出完全可复现
type Chunker struct {
	tokenizer tokenizer.Tokenizer
	config    ChunkerConfig
}

// NewChunker 创建新的分块器
func NewChunker(tk tokenizer.Tokenizer, config ChunkerConfig) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkerConfig().ChunkSize
	}
	if config.Overlap < 0 {
		config.Overlap = 0
	}

	return &Chunker{
		tokenizer: tk,
		config:    config,
	}
}

// Chunk 将文本切分为有序的、带重叠的chunk序列
// 按空行段落边界切分；缓冲区加入下一段落会超出token预算时先产出当前缓冲区，
// 并用其尾部overlap个token作为下一块的种子。
// 单个段落自身超出预算时不再细分，作为超长chunk单独产出。
func (c *Chunker) Chunk(text string, source string) ([]Chunk, error) {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return []Chunk{}, nil
	}

	var chunks []Chunk
	var buffer string
	index := 0

	for _, p := range paragraphs {
		if buffer == "" {
			buffer = p
			continue
		}

		candidate := buffer + "\n\n" + p
		count, err := c.tokenizer.Count(candidate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrTokenization, err)
		}

		if count > c.config.ChunkSize {
			chunk, err := c.emit(buffer, source, index)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, chunk)
			index++

			// 用上一块尾部的overlap个token作为种子，保留跨块的局部上下文；
			// 缓冲区不足overlap个token时整体复用
			seed, err := c.tokenizer.TailTokens(buffer, c.config.Overlap)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrTokenization, err)
			}
			if seed == "" {
				buffer = p
			} else {
				buffer = seed + "\n\n" + p
			}
		} else {
			buffer = candidate
		}
	}

	if strings.TrimSpace(buffer) != "" {
		chunk, err := c.emit(buffer, source, index)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// emit 将缓冲区内容构造为Chunk
func (c *Chunker) emit(buffer string, source string, index int) (Chunk, error) {
	count, err := c.tokenizer.Count(buffer)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %v", models.ErrTokenization, err)
	}

	return Chunk{
		ID:         fmt.Sprintf("%s_chunk_%d", source, index),
		Text:       strings.TrimSpace(buffer),
		Source:     source,
		Index:      index,
		TokenCount: count,
	}, nil
}

// splitParagraphs 按空行切分段落并丢弃空段落
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}

	return result
}
