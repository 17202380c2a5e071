package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// setupRoutes wires every endpoint the server exposes. jwtSecret gates the
// mutating endpoints (query, reload, scan, conversation writes, import);
// read-only endpoints (stats, detected models, list/get/search/export,
// metrics, health) stay open so dashboards and CLIs can poll freely.
func (s *Server) setupRoutes(jwtSecret string) {
	r := s.engine
	auth := jwtAuth(jwtSecret, nil)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	routerGroup := r.Group("/router")
	{
		routerGroup.POST("/query", auth, s.handleQuery)
		routerGroup.GET("/stats", s.handleStats)
		routerGroup.POST("/config/reload", auth, s.handleReloadConfig)
		routerGroup.POST("/fallback-priority", auth, s.handleSetFallbackPriority)
	}

	models := r.Group("/models")
	{
		models.POST("/scan", auth, s.handleScan)
		models.GET("/detected", s.handleDetectedModels)
	}

	v1 := r.Group("/api/v1")
	{
		conversations := v1.Group("/conversations")
		{
			conversations.GET("", s.handleListConversations)
			conversations.POST("", auth, s.handleCreateConversation)
			conversations.GET("/:id", s.handleGetConversation)
			conversations.PUT("/:id", auth, s.handleUpdateConversation)
			conversations.DELETE("/:id", auth, s.handleDeleteConversation)
			conversations.POST("/:id/messages", auth, s.handleAppendMessage)
		}
		v1.GET("/search", s.handleSearch)
		v1.POST("/export", auth, s.handleExport)
		v1.POST("/import", auth, s.handleImport)
	}

	r.GET("/metrics", s.handleMetrics)
}
