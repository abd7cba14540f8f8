package llm

import (
	"fmt"
	"strings"
)

// TutorSystemPrompt 数学辅导系统提示词
// 要求模型在解题和讲解时使用芬兰语
const TutorSystemPrompt = `You are an expert Finnish math tutor. Your role is to help students learn and understand mathematical concepts deeply.

TUTORING PRINCIPLES:
1. Be patient and encouraging
2. Explain concepts step-by-step
3. Use the retrieved course materials when relevant
4. Provide hints before giving direct answers
5. Ask guiding questions to promote critical thinking
6. Use clear mathematical notation and explanations
7. Relate new concepts to previously learned material
8. Verify computations when needed

When solving problems:
- Break down complex problems into manageable steps
- Explain the reasoning behind each step
- Highlight common pitfalls and misconceptions
- Encourage the student to try solving parts themselves
- Use Finnish language when solving problems

When explaining concepts:
- Start with intuition before formal definitions
- Use examples and analogies
- Connect to real-world applications when possible
- Use Finnish language when explaining concepts`

// DefaultTutorTemplate 默认辅导提示词模板
// 包含变量：
// {{.Question}} - 学生问题
// {{.Context}} - 检索到的课程材料
const DefaultTutorTemplate = `{{.Context}}

STUDENT QUESTION:
{{.Question}}

Please provide a clear, pedagogical response that helps the student understand. If this is a computational problem, explain your approach and consider using symbolic math for accuracy.`

// QuizSystemPrompt 出题系统提示词
const QuizSystemPrompt = `You are an expert math tutor creating practice problems.`

// QuizTemplate 出题提示词模板
// 包含变量：
// {{.NumQuestions}} - 题目数量
// {{.Topic}} - 题目主题
const QuizTemplate = `Generate {{.NumQuestions}} practice problems on the topic: {{.Topic}}

Create problems that:
1. Start easier and gradually increase in difficulty
2. Cover different aspects of the topic
3. Are clear and well-formatted
4. Include a mix of conceptual and computational questions

Format each question clearly with numbering.`

// NoMaterialContext 没有检索到相关材料时的上下文占位文本
const NoMaterialContext = "No relevant course materials found for this query."

// FormatContext 格式化检索到的课程材料
// 每个片段带独立编号，方便模型在回答中引用
func FormatContext(chunks []string) string {
	if len(chunks) == 0 {
		return NoMaterialContext
	}

	var builder strings.Builder
	builder.WriteString("RELEVANT COURSE MATERIALS:\n\n")
	for i, chunk := range chunks {
		builder.WriteString(fmt.Sprintf("--- Section %d ---\n%s\n\n", i+1, chunk))
	}
	return builder.String()
}

// BuildTutorPrompt 构建辅导用户提示词
func BuildTutorPrompt(question string, chunks []string) string {
	prompt := DefaultTutorTemplate
	prompt = strings.ReplaceAll(prompt, "{{.Context}}", FormatContext(chunks))
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)
	return prompt
}

// BuildTutorMessages 构建完整的辅导对话消息
// 消息顺序为：系统提示词、最近的历史消息、当前问题
func BuildTutorMessages(question string, chunks []string, history []Message) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: TutorSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: BuildTutorPrompt(question, chunks)})
	return messages
}

// BuildQuizMessages 构建出题对话消息
func BuildQuizMessages(topic string, numQuestions int) []Message {
	prompt := QuizTemplate
	prompt = strings.ReplaceAll(prompt, "{{.NumQuestions}}", fmt.Sprintf("%d", numQuestions))
	prompt = strings.ReplaceAll(prompt, "{{.Topic}}", topic)

	return []Message{
		{Role: RoleSystem, Content: QuizSystemPrompt},
		{Role: RoleUser, Content: prompt},
	}
}
