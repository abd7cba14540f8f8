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

// DocumentHandler 处理课程材料相关的API请求
type DocumentHandler struct {
	documentService *services.DocumentService // 材料服务
	logger          *logrus.Logger            // 日志记录器
}

// NewDocumentHandler 创建新的材料处理器
func NewDocumentHandler(documentService *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          middleware.GetLogger(),
	}
}

// UploadDocument 处理材料上传请求
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithField("error", err.Error()).Warn("Invalid document upload request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"invalid upload request: file is required",
		))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"file_name": req.File.Filename,
		}).Error("Failed to open uploaded file")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to open uploaded file",
		))
		return
	}
	defer file.Close()

	doc, err := h.documentService.UploadDocument(c.Request.Context(), file, req.File.Filename)
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, model.NewErrorResponse(
				http.StatusBadRequest,
				"unsupported file type, only .pdf, .md, .markdown and .txt are accepted",
			))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"file_name": req.File.Filename,
		}).Error("Failed to save uploaded document")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to save uploaded document",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentUploadResponse{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Status:     string(doc.Status),
	}))
}

// ProcessDocument 触发材料入库
// POST /api/documents/:id/process
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	result, err := h.documentService.ProcessDocument(c.Request.Context(), req.ID)
	if err != nil {
		h.handleDocumentError(c, req.ID, err, "Failed to process document")
		return
	}

	// 异步模式下任务已入队，结果通过任务状态查询
	if result == nil {
		c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.IngestResultResponse{
			DocumentID: req.ID,
			Async:      true,
		}))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.IngestResultResponse{
		DocumentID:   result.DocumentID,
		ChunkCount:   result.ChunkCount,
		StoredCount:  result.StoredCount,
		FailedChunks: result.FailedChunks,
	}))
}

// GetDocument 获取材料信息和处理状态
// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	doc, err := h.documentService.GetDocument(c.Request.Context(), req.ID)
	if err != nil {
		h.handleDocumentError(c, req.ID, err, "Failed to get document")
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToDocumentInfo(doc)))
}

// ListDocuments 获取材料列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid list parameters"))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.FileName != "" {
		filters["file_name"] = req.FileName
	}
	if req.FileType != "" {
		filters["file_type"] = req.FileType
	}

	page := req.GetPage()
	pageSize := req.GetPageSize()
	offset := (page - 1) * pageSize

	docs, total, err := h.documentService.ListDocuments(c.Request.Context(), offset, pageSize, filters)
	if err != nil {
		h.logger.WithField("error", err.Error()).Error("Failed to list documents")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to list documents"))
		return
	}

	infos := make([]model.DocumentInfo, len(docs))
	for i, doc := range docs {
		infos[i] = model.ConvertToDocumentInfo(doc)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentListResponse{
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		Documents: infos,
	}))
}

// DeleteDocument 删除材料
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	if err := h.documentService.DeleteDocument(c.Request.Context(), req.ID); err != nil {
		h.handleDocumentError(c, req.ID, err, "Failed to delete document")
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentDeleteResponse{
		Success:    true,
		DocumentID: req.ID,
	}))
}

// RetryDocument 重试材料中写入失败的分块
// POST /api/documents/:id/retry
func (h *DocumentHandler) RetryDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	result, err := h.documentService.RetryFailedChunks(c.Request.Context(), req.ID)
	if err != nil {
		h.handleDocumentError(c, req.ID, err, "Failed to retry document chunks")
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.IngestResultResponse{
		DocumentID:   result.DocumentID,
		ChunkCount:   result.ChunkCount,
		StoredCount:  result.StoredCount,
		FailedChunks: result.FailedChunks,
	}))
}

// KnowledgeStats 获取知识库统计信息
// GET /api/knowledge/stats
func (h *DocumentHandler) KnowledgeStats(c *gin.Context) {
	stats, err := h.documentService.KnowledgeStats(c.Request.Context())
	if err != nil {
		h.logger.WithField("error", err.Error()).Error("Failed to get knowledge base stats")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to get knowledge base stats"))
		return
	}

	_, total, err := h.documentService.ListDocuments(c.Request.Context(), 0, 1, nil)
	if err != nil {
		h.logger.WithField("error", err.Error()).Warn("Failed to count documents")
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.KnowledgeStatsResponse{
		TotalChunks:    stats.TotalChunks,
		CollectionName: stats.CollectionName,
		DocumentCount:  total,
	}))
}

// ResetKnowledge 清空知识库
// POST /api/knowledge/reset
func (h *DocumentHandler) ResetKnowledge(c *gin.Context) {
	if err := h.documentService.ResetKnowledgeBase(c.Request.Context()); err != nil {
		h.logger.WithField("error", err.Error()).Error("Failed to reset knowledge base")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to reset knowledge base"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"reset": true}))
}

// handleDocumentError 将材料服务错误映射为HTTP响应
func (h *DocumentHandler) handleDocumentError(c *gin.Context, documentID string, err error, logMsg string) {
	if errors.Is(err, models.ErrDocumentNotFound) {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "document not found"))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"error":       err.Error(),
		"document_id": documentID,
	}).Error(logMsg)

	c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
		http.StatusInternalServerError, err.Error()))
}
