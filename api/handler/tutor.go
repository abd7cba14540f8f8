package handler

import (
	"net/http"

	"github.com/fyerfyer/math-tutor/api/middleware"
	"github.com/fyerfyer/math-tutor/api/model"
	"github.com/fyerfyer/math-tutor/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TutorHandler 处理辅导问答和出题相关的API请求
type TutorHandler struct {
	tutorService *services.TutorService // 辅导服务
	quizService  *services.QuizService  // 出题服务
	logger       *logrus.Logger         // 日志记录器
}

// NewTutorHandler 创建新的辅导处理器
func NewTutorHandler(tutorService *services.TutorService, quizService *services.QuizService) *TutorHandler {
	return &TutorHandler{
		tutorService: tutorService,
		quizService:  quizService,
		logger:       middleware.GetLogger(),
	}
}

// Ask 回答学生问题
// POST /api/ask
func (h *TutorHandler) Ask(c *gin.Context) {
	var req model.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithField("error", err.Error()).Warn("Invalid ask request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest, "question is required"))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"session_id":      req.SessionID,
		"question_length": len(req.Question),
	}).Info("Student question received")

	answer, err := h.tutorService.Ask(c.Request.Context(), req.SessionID, req.Question)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":      err.Error(),
			"session_id": req.SessionID,
		}).Error("Failed to answer question")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to answer question: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.AskResponse{
		Question:  req.Question,
		Answer:    answer.Answer,
		Sources:   model.ConvertToSourceInfo(answer.Sources),
		SessionID: answer.SessionID,
		Model:     answer.Model,
		Cached:    answer.Cached,
	}))
}

// GenerateQuiz 按主题生成练习题
// POST /api/quiz
func (h *TutorHandler) GenerateQuiz(c *gin.Context) {
	var req model.QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithField("error", err.Error()).Warn("Invalid quiz request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest, "topic is required"))
		return
	}

	quiz, err := h.quizService.GenerateQuiz(c.Request.Context(), req.Topic, req.NumQuestions)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
			"topic": req.Topic,
		}).Error("Failed to generate quiz")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to generate quiz: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.QuizResponse{
		Topic:        quiz.Topic,
		NumQuestions: quiz.NumQuestions,
		Markdown:     quiz.Markdown,
		HTML:         quiz.HTML,
	}))
}
