package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/math-tutor/api/middleware"
	"github.com/fyerfyer/math-tutor/api/model"
	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/fyerfyer/math-tutor/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SessionHandler 处理辅导会话相关的API请求
type SessionHandler struct {
	sessions *services.SessionManager // 会话管理器
	logger   *logrus.Logger           // 日志记录器
}

// NewSessionHandler 创建新的会话处理器
func NewSessionHandler(sessions *services.SessionManager) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   middleware.GetLogger(),
	}
}

// CreateSession 创建新的辅导会话
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req model.SessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid session request"))
		return
	}

	session, err := h.sessions.CreateSession(req.Title)
	if err != nil {
		h.logger.WithField("error", err.Error()).Error("Failed to create session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to create session"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToSessionInfo(session)))
}

// ListSessions 获取会话列表
// GET /api/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	var req model.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid list parameters"))
		return
	}

	page := req.GetPage()
	pageSize := req.GetPageSize()
	offset := (page - 1) * pageSize

	sessions, total, err := h.sessions.ListSessions(offset, pageSize)
	if err != nil {
		h.logger.WithField("error", err.Error()).Error("Failed to list sessions")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to list sessions"))
		return
	}

	infos := make([]model.SessionInfo, len(sessions))
	for i, session := range sessions {
		infos[i] = model.ConvertToSessionInfo(session)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SessionListResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Sessions: infos,
	}))
}

// GetSession 获取会话信息
// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	var req model.SessionIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid session id"))
		return
	}

	session, err := h.sessions.GetSession(req.ID)
	if err != nil {
		h.handleSessionError(c, req.ID, err, "Failed to get session")
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToSessionInfo(session)))
}

// GetMessages 获取会话的完整历史
// GET /api/sessions/:id/messages
func (h *SessionHandler) GetMessages(c *gin.Context) {
	var req model.SessionIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid session id"))
		return
	}

	if _, err := h.sessions.GetSession(req.ID); err != nil {
		h.handleSessionError(c, req.ID, err, "Failed to get session")
		return
	}

	messages, err := h.sessions.GetMessages(req.ID)
	if err != nil {
		h.handleSessionError(c, req.ID, err, "Failed to get session messages")
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SessionMessagesResponse{
		SessionID: req.ID,
		Messages:  model.ConvertToMessageInfo(messages),
	}))
}

// ClearMessages 清空会话历史
// POST /api/sessions/:id/clear
func (h *SessionHandler) ClearMessages(c *gin.Context) {
	var req model.SessionIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid session id"))
		return
	}

	if err := h.sessions.ClearHistory(req.ID); err != nil {
		h.handleSessionError(c, req.ID, err, "Failed to clear session history")
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"cleared": true}))
}

// DeleteSession 删除会话及其历史
// DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	var req model.SessionIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid session id"))
		return
	}

	if err := h.sessions.DeleteSession(req.ID); err != nil {
		h.handleSessionError(c, req.ID, err, "Failed to delete session")
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"deleted": true}))
}

// handleSessionError 将会话服务错误映射为HTTP响应
func (h *SessionHandler) handleSessionError(c *gin.Context, sessionID string, err error, logMsg string) {
	if errors.Is(err, models.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "session not found"))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"session_id": sessionID,
	}).Error(logMsg)

	c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
		http.StatusInternalServerError, err.Error()))
}
