package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/config"
	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/registry"
	"github.com/SHINZO111/llm-smart-router/internal/router"
	"github.com/gin-gonic/gin"
)

// handleQuery handles POST /router/query.
//
// Description:
//
//	Routes one input through triage and the fallback chain, persisting
//	both sides of the exchange, and returns the unified outcome shape.
func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	rreq := router.Request{Input: req.Input, ForceModelRef: req.ForceModel}
	if req.Context != nil {
		if sid, ok := req.Context["session_id"].(string); ok {
			rreq.SessionID = sid
		}
		if hasImage, ok := req.Context["has_image"].(bool); ok {
			rreq.HasImage = hasImage
		}
	}

	outcome, err := s.router.Query(c.Request.Context(), rreq)
	if err != nil {
		if err == router.ErrBusy {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "BUSY"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "QUERY_FAILED"})
		return
	}

	status := http.StatusOK
	if !outcome.Succeeded() {
		status = http.StatusBadGateway
	}
	c.JSON(status, queryResponse{
		Success:  outcome.Succeeded(),
		Model:    outcome.ModelRef,
		Response: outcome.Response,
		Metadata: queryMetadata{
			Attempts:    outcome.Attempts,
			CostWarning: outcome.CostWarning,
			SavedCost:   outcome.SavedCost,
			Warning:     outcome.Warning,
		},
	})
}

// handleStats handles GET /router/stats.
func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.router.Stats())
}

// handleReloadConfig handles POST /router/config/reload.
func (s *Server) handleReloadConfig(c *gin.Context) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "CONFIG_INVALID"})
		return
	}
	if s.fallbackDB != nil {
		if chain, ok := registry.LoadFallbackPriority(s.fallbackDB); ok {
			cfg.Fallback.Chain = chain
		}
	}
	s.router.ReloadConfig(cfg)
	c.JSON(http.StatusOK, gin.H{"reloaded": true})
}

// handleSetFallbackPriority handles POST /router/fallback-priority: an
// operator-supplied ordered list of refs that overrides the config
// file's fallback.chain until cleared, persisted as an on-disk
// fallback_priority.json equivalent.
func (s *Server) handleSetFallbackPriority(c *gin.Context) {
	if s.fallbackDB == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "fallback priority override is not available", Code: "NOT_AVAILABLE"})
		return
	}
	var body struct {
		Chain coretypes.FallbackChain `json:"chain"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Chain) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "chain must be a non-empty list of model refs", Code: "INVALID_REQUEST"})
		return
	}
	if err := registry.SaveFallbackPriority(s.fallbackDB, body.Chain); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "SAVE_FAILED"})
		return
	}
	if cfg, err := config.Load(s.configPath); err == nil {
		cfg.Fallback.Chain = body.Chain
		s.router.ReloadConfig(cfg)
	} else {
		s.logger.Warn("fallback priority saved but live config reload failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"saved": true, "chain": body.Chain})
}

// handleScan handles POST /models/scan: it returns immediately with
// 202 Accepted while the refresh runs in the background.
func (s *Server) handleScan(c *gin.Context) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.registry.Refresh(ctx); err != nil {
			s.logger.Error("background registry scan failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "scan started"})
}

// handleDetectedModels handles GET /models/detected.
func (s *Server) handleDetectedModels(c *gin.Context) {
	meta := s.registry.Meta()
	c.JSON(http.StatusOK, detectedModelsResponse{
		Models:     s.registry.ListAll(),
		LastScan:   meta.LastScanAt.Format(time.RFC3339),
		CacheValid: !meta.Stale(time.Now()),
	})
}

// handleMetrics serves the Router's private Prometheus registry.
func (s *Server) handleMetrics(c *gin.Context) {
	s.metricsHandler.ServeHTTP(c.Writer, c.Request)
}
