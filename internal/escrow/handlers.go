package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/rentrail/internal/anchor"
)

// Handler provides HTTP endpoints for escrow operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/escrow/holds", h.CreateHold)
	r.GET("/escrow/holds", h.ListHolds)
	r.GET("/escrow/holds/:id", h.GetHold)
	r.POST("/escrow/holds/:id/release", h.ReleaseHold)
}

// CreateHold handles POST /v1/escrow/holds
func (h *Handler) CreateHold(c *gin.Context) {
	var req CreateHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.CallerID = c.GetString("userID")

	hold, err := h.service.CreateHold(c.Request.Context(), req)
	if err != nil {
		respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"hold": hold})
}

// GetHold handles GET /v1/escrow/holds/:id
func (h *Handler) GetHold(c *gin.Context) {
	hold, err := h.service.Get(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"hold": hold})
}

// ListHolds handles GET /v1/escrow/holds
func (h *Handler) ListHolds(c *gin.Context) {
	holds, err := h.service.ListByParty(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"holds": holds, "count": len(holds)})
}

// ReleaseHold handles POST /v1/escrow/holds/:id/release
func (h *Handler) ReleaseHold(c *gin.Context) {
	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.HoldID = c.Param("id")
	req.CallerID = c.GetString("userID")

	hold, err := h.service.Release(c.Request.Context(), req)
	if err != nil {
		respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"hold": hold})
}

func respondEscrowError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrHoldNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotAuthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrDuplicateHold):
		status = http.StatusConflict
		code = "duplicate_hold"
	case errors.Is(err, ErrInvalidWallet):
		status = http.StatusBadRequest
		code = "invalid_wallet"
	case errors.Is(err, ErrInvalidStatus):
		status = http.StatusConflict
		code = "invalid_state"
	case errors.Is(err, ErrAgreementActive):
		status = http.StatusConflict
		code = "agreement_active"
	case errors.Is(err, ErrAgreementEnded):
		status = http.StatusConflict
		code = "agreement_ended"
	case errors.Is(err, anchor.ErrUnavailable):
		status = http.StatusBadGateway
		code = "ledger_unavailable"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
