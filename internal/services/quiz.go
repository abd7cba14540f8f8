package services

import (
	"context"
	"fmt"

	"github.com/fyerfyer/math-tutor/internal/llm"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/sirupsen/logrus"
)

// DefaultQuizQuestions 默认生成的题目数量
const DefaultQuizQuestions = 3

// Quiz 生成的练习题
type Quiz struct {
	Topic        string `json:"topic"`         // 题目主题
	NumQuestions int    `json:"num_questions"` // 题目数量
	Markdown     string `json:"markdown"`      // Markdown格式的题目内容
	HTML         string `json:"html"`          // 渲染后的HTML，可直接嵌入前端
}

// QuizService 练习题生成服务
// 使用大模型按主题生成由易到难的练习题
type QuizService struct {
	llm    llm.Client     // 大模型客户端
	logger *logrus.Logger // 日志记录器
}

// NewQuizService 创建练习题服务实例
func NewQuizService(llmClient llm.Client, logger *logrus.Logger) *QuizService {
	if logger == nil {
		logger = logrus.New()
	}

	return &QuizService{
		llm:    llmClient,
		logger: logger,
	}
}

// GenerateQuiz 按主题生成练习题
// numQuestions小于等于0时使用默认数量
func (s *QuizService) GenerateQuiz(ctx context.Context, topic string, numQuestions int) (*Quiz, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if numQuestions <= 0 {
		numQuestions = DefaultQuizQuestions
	}

	messages := llm.BuildQuizMessages(topic, numQuestions)
	response, err := s.llm.Chat(ctx, messages,
		llm.WithChatMaxTokens(1500),
		llm.WithChatTemperature(0.8),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate quiz: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"topic":         topic,
		"num_questions": numQuestions,
		"tokens_used":   response.TokensUsed,
	}).Info("Quiz generated")

	return &Quiz{
		Topic:        topic,
		NumQuestions: numQuestions,
		Markdown:     response.Text,
		HTML:         renderMarkdown(response.Text),
	}, nil
}

// renderMarkdown 将Markdown渲染为HTML
func renderMarkdown(source string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(source))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags,
	})

	return string(markdown.Render(doc, renderer))
}
