package llm

// 消息角色常量
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 对话消息
type Message struct {
	Role    string `json:"role"`    // 消息角色：system/user/assistant
	Content string `json:"content"` // 消息内容
}

// Response 大模型响应
type Response struct {
	Text         string // 生成的文本
	TokensUsed   int    // 消耗的token数量
	ModelName    string // 使用的模型名称
	FinishReason string // 结束原因
}
