package api

import (
	"github.com/fyerfyer/math-tutor/api/handler"
	"github.com/fyerfyer/math-tutor/api/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers 路由需要的处理器集合
// Compute和Task为可选，对应功能未启用时传nil
type Handlers struct {
	Document *handler.DocumentHandler
	Tutor    *handler.TutorHandler
	Session  *handler.SessionHandler
	Compute  *handler.ComputeHandler
	Task     *handler.TaskHandler
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(h Handlers) *gin.Engine {
	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())

	api := router.Group("/api")
	{
		// 课程材料管理API
		docGroup := api.Group("/documents")
		{
			// 上传材料 - POST /api/documents
			docGroup.POST("", h.Document.UploadDocument)

			// 获取材料列表 - GET /api/documents
			docGroup.GET("", h.Document.ListDocuments)

			// 获取材料信息和处理状态 - GET /api/documents/:id
			docGroup.GET("/:id", h.Document.GetDocument)

			// 触发材料入库 - POST /api/documents/:id/process
			docGroup.POST("/:id/process", h.Document.ProcessDocument)

			// 重试失败的分块 - POST /api/documents/:id/retry
			docGroup.POST("/:id/retry", h.Document.RetryDocument)

			// 删除材料 - DELETE /api/documents/:id
			docGroup.DELETE("/:id", h.Document.DeleteDocument)

			// 查询材料的异步任务 - GET /api/documents/:id/tasks
			if h.Task != nil {
				docGroup.GET("/:id/tasks", h.Task.GetDocumentTasks)
			}
		}

		// 知识库管理API
		knowledgeGroup := api.Group("/knowledge")
		{
			// 知识库统计 - GET /api/knowledge/stats
			knowledgeGroup.GET("/stats", h.Document.KnowledgeStats)

			// 清空知识库 - POST /api/knowledge/reset
			knowledgeGroup.POST("/reset", h.Document.ResetKnowledge)
		}

		// 辅导问答API - POST /api/ask
		api.POST("/ask", h.Tutor.Ask)

		// 练习题生成API - POST /api/quiz
		api.POST("/quiz", h.Tutor.GenerateQuiz)

		// 会话管理API
		sessionGroup := api.Group("/sessions")
		{
			// 创建会话 - POST /api/sessions
			sessionGroup.POST("", h.Session.CreateSession)

			// 会话列表 - GET /api/sessions
			sessionGroup.GET("", h.Session.ListSessions)

			// 获取会话信息 - GET /api/sessions/:id
			sessionGroup.GET("/:id", h.Session.GetSession)

			// 获取会话历史 - GET /api/sessions/:id/messages
			sessionGroup.GET("/:id/messages", h.Session.GetMessages)

			// 清空会话历史 - POST /api/sessions/:id/clear
			sessionGroup.POST("/:id/clear", h.Session.ClearMessages)

			// 删除会话 - DELETE /api/sessions/:id
			sessionGroup.DELETE("/:id", h.Session.DeleteSession)
		}

		// 符号计算API - POST /api/compute
		if h.Compute != nil {
			api.POST("/compute", h.Compute.Compute)
		}

		// 异步任务查询API - GET /api/tasks/:id
		if h.Task != nil {
			api.GET("/tasks/:id", h.Task.GetTask)
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
// 需要支持浏览器前端跨域请求时启用
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
