package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fyerfyer/math-tutor/api/model"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandler 兜底错误处理中间件
// 恢复处理器中的panic，并把通过c.Error上报而未被处理的错误
// 转换成标准错误响应。处理器自行映射的业务错误不经过这里。
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				traceID := c.GetString(contextTraceKey)

				log.WithFields(logrus.Fields{
					"panic":      fmt.Sprintf("%v", r),
					"stack":      string(debug.Stack()),
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: traceID,
				}).Error("Panic recovered in API request")

				resp := model.NewErrorResponse(
					http.StatusInternalServerError, "An unexpected error occurred")
				resp.TraceID = traceID

				// 调试模式下暴露panic内容，方便排查
				if gin.Mode() == gin.DebugMode {
					resp.Message = fmt.Sprintf("panic: %v", r)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		traceID := c.GetString(contextTraceKey)

		log.WithFields(logrus.Fields{
			FieldPath:    c.Request.URL.Path,
			FieldTraceID: traceID,
		}).Error(err.Error())

		resp := model.NewErrorResponse(http.StatusInternalServerError, "Internal server error")
		resp.TraceID = traceID
		if gin.Mode() == gin.DebugMode {
			resp.Message = err.Error()
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
	}
}
