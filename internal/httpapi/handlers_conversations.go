package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/store"
	"github.com/gin-gonic/gin"
)

// handleListConversations handles GET /api/v1/conversations.
func (s *Server) handleListConversations(c *gin.Context) {
	convs, err := s.store.ListConversations(c.Request.Context(), c.Query("topic"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// handleCreateConversation handles POST /api/v1/conversations.
func (s *Server) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	conv, err := s.store.CreateConversation(c.Request.Context(), req.Title, req.Topic)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_ERROR"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// handleGetConversation handles GET /api/v1/conversations/:id.
func (s *Server) handleGetConversation(c *gin.Context) {
	conv, err := s.store.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// handleUpdateConversation handles PUT /api/v1/conversations/:id, renaming it.
func (s *Server) handleUpdateConversation(c *gin.Context) {
	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if err := s.store.UpdateTitle(c.Request.Context(), c.Param("id"), req.Title); err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// handleDeleteConversation handles DELETE /api/v1/conversations/:id.
func (s *Server) handleDeleteConversation(c *gin.Context) {
	if err := s.store.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// handleAppendMessage handles POST /api/v1/conversations/:id/messages.
func (s *Server) handleAppendMessage(c *gin.Context) {
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	msg := coretypes.Message{Role: coretypes.Role(req.Role), Content: req.Content}
	if req.Model != "" {
		msg.ModelRef = &req.Model
	}
	saved, err := s.store.AppendMessage(c.Request.Context(), c.Param("id"), msg)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// handleSearch handles GET /api/v1/search?q=...
func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "q is required", Code: "INVALID_REQUEST"})
		return
	}
	filter := store.SearchFilter{TopicName: c.Query("topic")}
	hits, err := s.store.SearchConversations(c.Request.Context(), query, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

// handleExport handles POST /api/v1/export.
func (s *Server) handleExport(c *gin.Context) {
	var req exportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
			return
		}
	}
	doc, err := s.store.Export(c.Request.Context(), store.ExportFilter{
		ConversationIDs: req.ConversationIDs, TopicName: req.Topic,
	}, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// handleImport handles POST /api/v1/import.
func (s *Server) handleImport(c *gin.Context) {
	var doc importRequest
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	result, err := s.store.Import(c.Request.Context(), doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_ids": result.ConversationIDs})
}

// writeStoreError translates a store error into the matching HTTP status.
func (s *Server) writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
		return
	}
	if errors.Is(err, store.ErrMissingModelRef) || errors.Is(err, store.ErrOrphanMessage) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_ERROR"})
}
