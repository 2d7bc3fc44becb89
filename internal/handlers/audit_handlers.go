package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tesseralabs/tessera-api/internal/audit"
)

// AuditHandler exposes the commitment chain
type AuditHandler struct {
	common *CommonServices
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(common *CommonServices) *AuditHandler {
	return &AuditHandler{common: common}
}

// PublishRequest commits one lifecycle transition
type PublishRequest struct {
	ScopeID      string `json:"scope_id" binding:"required"`
	Stage        string `json:"stage" binding:"required"`
	UpstreamRef1 string `json:"ref1"`
	UpstreamRef2 string `json:"ref2"`
}

// Publish hashes the transition and appends it to the scope's public topic
func (h *AuditHandler) Publish(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.common.Audit.Publish(c.Request.Context(), req.ScopeID, req.Stage, req.UpstreamRef1, req.UpstreamRef2)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to record commitment", err)
		return
	}
	sendSuccess(c, http.StatusCreated, entry)
}

// Log returns the commitment entries recorded for a scope
func (h *AuditHandler) Log(c *gin.Context) {
	entries := h.common.Audit.Log(c.Param("scope_id"))
	sendSuccess(c, http.StatusOK, gin.H{
		"object": "list",
		"data":   entries,
	})
}

// VerifyResponse reports whether a stored entry still matches its hash
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// Verify recomputes an entry's commitment hash from its own fields
func (h *AuditHandler) Verify(c *gin.Context) {
	var entry audit.Entry
	if err := c.ShouldBindJSON(&entry); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sendSuccess(c, http.StatusOK, VerifyResponse{Valid: h.common.Audit.Verify(&entry)})
}
