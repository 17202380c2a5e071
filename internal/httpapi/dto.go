package httpapi

import (
	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/store"
)

// ErrorResponse is the uniform error body every handler returns on
// failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// queryRequest is the body of POST /router/query.
type queryRequest struct {
	Input      string         `json:"input" binding:"required"`
	ForceModel string         `json:"force_model,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// queryMetadata carries the attempt trail and cost bookkeeping alongside
// the response text.
type queryMetadata struct {
	Attempts    []coretypes.AttemptRecord `json:"attempts"`
	CostWarning bool                      `json:"cost_warning"`
	SavedCost   float64                   `json:"saved_cost"`
	Warning     string                    `json:"warning,omitempty"`
}

// queryResponse is the body of a successful POST /router/query.
type queryResponse struct {
	Success  bool          `json:"success"`
	Model    string        `json:"model,omitempty"`
	Response string        `json:"response"`
	Metadata queryMetadata `json:"metadata"`
}

// detectedModelsResponse is the body of GET /models/detected.
type detectedModelsResponse struct {
	Models     []coretypes.ModelEntry `json:"models"`
	LastScan   string                 `json:"last_scan"`
	CacheValid bool                   `json:"cache_valid"`
}

// createConversationRequest is the body of POST /api/v1/conversations.
type createConversationRequest struct {
	Title string `json:"title"`
	Topic string `json:"topic,omitempty"`
}

// updateConversationRequest is the body of PUT /api/v1/conversations/:id.
type updateConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

// appendMessageRequest is the body of POST /api/v1/conversations/:id/messages.
type appendMessageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
	Model   string `json:"model,omitempty"`
}

// exportRequest is the body of POST /api/v1/export.
type exportRequest struct {
	ConversationIDs []string `json:"conversation_ids,omitempty"`
	Topic           string   `json:"topic,omitempty"`
}

// importRequest wraps the exported document directly: the request
// body is an ExportDocument verbatim.
type importRequest = store.ExportDocument
