package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/math-tutor/api/middleware"
	"github.com/fyerfyer/math-tutor/api/model"
	"github.com/fyerfyer/math-tutor/internal/compute"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ComputeHandler 处理符号计算相关的API请求
// 请求转发给外部SymPy计算服务执行
type ComputeHandler struct {
	client compute.Client // 符号计算客户端
	logger *logrus.Logger // 日志记录器
}

// NewComputeHandler 创建新的计算处理器
func NewComputeHandler(client compute.Client) *ComputeHandler {
	return &ComputeHandler{
		client: client,
		logger: middleware.GetLogger(),
	}
}

// Compute 执行符号计算
// POST /api/compute
func (h *ComputeHandler) Compute(c *gin.Context) {
	var req model.ComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithField("error", err.Error()).Warn("Invalid compute request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest, "expression and a valid operation are required"))
		return
	}

	result, err := h.client.Compute(c.Request.Context(), &compute.Request{
		Expression: req.Expression,
		Operation:  req.Operation,
		Variable:   req.Variable,
		Order:      req.Order,
		LowerBound: req.LowerBound,
		UpperBound: req.UpperBound,
	})
	if err != nil {
		if errors.Is(err, compute.ErrUnknownOperation) {
			c.JSON(http.StatusBadRequest, model.NewErrorResponse(
				http.StatusBadRequest, err.Error()))
			return
		}

		var apiErr *compute.APIError
		if errors.As(err, &apiErr) {
			h.logger.WithFields(logrus.Fields{
				"status_code": apiErr.StatusCode,
				"operation":   req.Operation,
			}).Warn("Compute service rejected request")

			c.JSON(http.StatusBadGateway, model.NewErrorResponse(
				http.StatusBadGateway, "compute service error: "+apiErr.Message))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"operation": req.Operation,
		}).Error("Failed to execute computation")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to execute computation"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}
