package agreements

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for agreement operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new agreement handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up agreement routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/agreements", h.CreateAgreement)
	r.GET("/agreements/:id", h.GetAgreement)
	r.POST("/agreements/:id/terminate", h.TerminateAgreement)
	r.POST("/agreements/:id/anchor", h.AnchorAgreement)
	r.GET("/agreements/:id/blockchain", h.GetBlockchainStatus)
}

// CreateAgreement handles POST /v1/agreements
func (h *Handler) CreateAgreement(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	callerID := c.GetString("userID")
	if callerID != req.LandlordID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Only the landlord can create an agreement",
		})
		return
	}

	agreement, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		if errors.Is(err, ErrInvalidStatus) {
			status = http.StatusBadRequest
			code = "invalid_request"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"agreement": agreement})
}

// GetAgreement handles GET /v1/agreements/:id
func (h *Handler) GetAgreement(c *gin.Context) {
	agreement, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrAgreementNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Agreement not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	callerID := c.GetString("userID")
	if callerID != agreement.LandlordID && callerID != agreement.TenantID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Not a party to this agreement",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agreement": agreement})
}

// TerminateRequest carries the optional termination note.
type TerminateRequest struct {
	Note string `json:"note"`
}

// TerminateAgreement handles POST /v1/agreements/:id/terminate
func (h *Handler) TerminateAgreement(c *gin.Context) {
	var req TerminateRequest
	_ = c.ShouldBindJSON(&req) // note is optional

	agreement, err := h.service.Terminate(c.Request.Context(), c.Param("id"), c.GetString("userID"), req.Note)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrAgreementNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrNotAuthorized):
			status = http.StatusForbidden
			code = "unauthorized"
		case errors.Is(err, ErrInvalidStatus):
			status = http.StatusConflict
			code = "invalid_state"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agreement": agreement})
}

// AnchorAgreement handles POST /v1/agreements/:id/anchor
func (h *Handler) AnchorAgreement(c *gin.Context) {
	agreement, err := h.service.AnchorAgreement(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrAgreementNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrNotAuthorized):
			status = http.StatusForbidden
			code = "unauthorized"
		case errors.Is(err, ErrAlreadyAnchored):
			status = http.StatusConflict
			code = "already_anchored"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agreement": agreement})
}

// GetBlockchainStatus handles GET /v1/agreements/:id/blockchain
func (h *Handler) GetBlockchainStatus(c *gin.Context) {
	agreement, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrAgreementNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Agreement not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agreementId": agreement.ID,
		"anchor":      agreement.Anchor,
	})
}
