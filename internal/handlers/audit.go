package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gatehouse-idp/gatehouse/internal/services"
	appErrors "github.com/gatehouse-idp/gatehouse/pkg/errors"
	"github.com/gatehouse-idp/gatehouse/pkg/response"
)

// AuditHandler exposes the interaction audit trail.
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	entries, err := h.audit.List(c.Request.Context(), services.AuditFilter{
		SubjectID: c.Query("subject_id"),
		Action:    c.Query("action"),
		ClientID:  c.Query("client_id"),
		Limit:     parseIntQuery(c, "limit", 100),
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"entries": entries})
}
