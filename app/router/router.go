package router

import (
	"taskstream/app/handler"
	"taskstream/app/middleware"
	"taskstream/pkg/config"
	"taskstream/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	statusHandler *handler.StatusHandler
	wsHandler     *handler.WebSocketHandler
	metrics       *metrics.Metrics
}

// NewRouter creates a new Router
func NewRouter(statusHandler *handler.StatusHandler, wsHandler *handler.WebSocketHandler, m *metrics.Metrics) *Router {
	return &Router{
		statusHandler: statusHandler,
		wsHandler:     wsHandler,
		metrics:       m,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	// WebSocket endpoints - token auth happens inside the handshake
	ws := engine.Group("/ws")
	{
		ws.GET("/notifications", r.wsHandler.Notifications)
		ws.GET("/document/:document_id", r.wsHandler.Document)
		ws.GET("/query/:query_id", r.wsHandler.Query)
		ws.GET("/source/:source_id", r.wsHandler.Source)
		ws.GET("/project/:project_id", r.wsHandler.Project)
		ws.GET("/stats", r.wsHandler.Stats)
	}

	// V1 API - status query and queue control interface
	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		tasks := v1.Group("/tasks")
		{
			tasks.GET("/:task_id/status", r.statusHandler.GetTaskStatus)
			tasks.GET("/:task_id/history", r.statusHandler.GetTaskHistory)
			tasks.POST("/:task_id/cancel", r.statusHandler.Cancel)
		}

		v1.GET("/documents/:document_id/tasks", r.statusHandler.ListDocumentTasks)
		v1.GET("/queue/stats", r.statusHandler.QueueStats)

		deadLetters := v1.Group("/dead-letters")
		{
			deadLetters.GET("", r.statusHandler.ListDeadLetters)
			deadLetters.POST("/requeue", r.statusHandler.RequeueDeadLetter)
		}
	}

	// Prometheus scrape endpoint
	if r.metrics != nil && config.GlobalConfig.Metrics.Enabled {
		engine.GET(config.GlobalConfig.Metrics.Path, gin.WrapH(r.metrics.Handler()))
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
