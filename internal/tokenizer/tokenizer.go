package tokenizer

// Tokenizer 分词能力接口
// 为分块器提供确定性的token计数和按token切片能力
// 作为可注入依赖，测试中可替换为确定性的假实现
type Tokenizer interface {
	// Count 统计文本的token数量
	Count(text string) (int, error)

	// TailTokens 取文本编码后最后n个token，解码回文本
	// n大于等于文本token总数时返回原文本
	TailTokens(text string, n int) (string, error)

	// Name 返回分词模型名称
	Name() string
}

// Config 分词器配置
type Config struct {
	Model string // 目标模型名称，决定词表
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Model: "gpt-4o-mini",
	}
}

// Factory 分词器工厂函数类型
type Factory func(config Config) (Tokenizer, error)

// 注册的分词器实现
var registry = make(map[string]Factory)

// Register 注册分词器工厂函数
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New 根据名称创建分词器
func New(name string, config Config) (Tokenizer, error) {
	if factory, ok := registry[name]; ok {
		return factory(config)
	}
	// 默认使用tiktoken实现
	return NewTiktoken(config)
}
