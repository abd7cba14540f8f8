package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/fyerfyer/math-tutor/internal/models"
)

// TiktokenTokenizer 基于tiktoken编码的分词器
// 与嵌入模型使用相同的词表，保证token预算的确定性
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// NewTiktoken 创建tiktoken分词器
// 根据模型名称解析对应编码，未知模型视为配置错误
func NewTiktoken(config Config) (Tokenizer, error) {
	model := config.Model
	if model == "" {
		model = DefaultConfig().Model
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("%w: no encoding for model %s: %v", models.ErrTokenization, model, err)
	}

	return &TiktokenTokenizer{
		encoding: encoding,
		model:    model,
	}, nil
}

// Count 统计文本的token数量
func (t *TiktokenTokenizer) Count(text string) (int, error) {
	return len(t.encoding.Encode(text, nil, nil)), nil
}

// TailTokens 解码文本编码的最后n个token
func (t *TiktokenTokenizer) TailTokens(text string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}

	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= n {
		return text, nil
	}

	return t.encoding.Decode(tokens[len(tokens)-n:]), nil
}

// Name 返回分词模型名称
func (t *TiktokenTokenizer) Name() string {
	return t.model
}

// 在包初始化时注册tiktoken分词器
func init() {
	Register("tiktoken", NewTiktoken)
}
