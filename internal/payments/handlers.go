package payments

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/rentrail/internal/gateway"
)

// Handler provides HTTP endpoints for payment operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up payment routes. The webhook route is registered
// separately on the public group: the gateway does not send identity
// headers.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/orders", h.CreateOrder)
	r.POST("/payments/verify", h.ConfirmPayment)
	r.POST("/payments/manual", h.RecordManualPayment)
	r.POST("/payments/:id/refund", h.IssueRefund)
	r.POST("/payments/:id/anchor", h.AnchorPayment)
	r.GET("/payments/:id", h.GetPayment)
	r.GET("/payments", h.ListPayments)
}

// RegisterWebhook sets up the gateway callback route.
func (h *Handler) RegisterWebhook(r *gin.RouterGroup) {
	r.POST("/payments/webhook", h.HandleWebhook)
}

// CreateOrder handles POST /v1/payments/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.CallerID = c.GetString("userID")

	order, rec, err := h.service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":   order,
		"payment": rec,
	})
}

// ConfirmPayment handles POST /v1/payments/verify
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	rec, err := h.service.ConfirmPayment(c.Request.Context(), req)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": view(rec)})
}

// HandleWebhook handles POST /v1/payments/webhook. The body is read raw;
// signature verification happens over the exact bytes received.
func (h *Handler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Could not read body"})
		return
	}

	sig := c.GetHeader("X-Razorpay-Signature")
	if err := h.service.HandleWebhookEvent(c.Request.Context(), body, sig); err != nil {
		if errors.Is(err, ErrInvalidWebhookSignature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature", "message": "Webhook signature verification failed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RecordManualPayment handles POST /v1/payments/manual
func (h *Handler) RecordManualPayment(c *gin.Context) {
	var req ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.CallerID = c.GetString("userID")

	rec, err := h.service.RecordManualPayment(c.Request.Context(), req)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment": view(rec)})
}

// IssueRefund handles POST /v1/payments/:id/refund
func (h *Handler) IssueRefund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.RecordID = c.Param("id")
	req.CallerID = c.GetString("userID")

	rec, err := h.service.IssueRefund(c.Request.Context(), req)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": view(rec)})
}

// AnchorPayment handles POST /v1/payments/:id/anchor
func (h *Handler) AnchorPayment(c *gin.Context) {
	rec, err := h.service.AnchorPayment(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": view(rec)})
}

// GetPayment handles GET /v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": view(rec)})
}

// ListPayments handles GET /v1/payments?limit=n
func (h *Handler) ListPayments(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	recs, err := h.service.ListByParty(c.Request.Context(), c.GetString("userID"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	views := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		views = append(views, view(rec))
	}
	c.JSON(http.StatusOK, gin.H{"payments": views, "count": len(views)})
}

// view wraps a record with its display-time projections.
func view(rec *Record) gin.H {
	now := time.Now().UTC()
	return gin.H{
		"record":        rec,
		"displayStatus": DisplayStatus(rec, now),
		"daysOverdue":   DaysOverdue(rec, now),
	}
}

func respondPaymentError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrRecordNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotAuthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrInvalidAmount):
		status = http.StatusBadRequest
		code = "invalid_request"
	case errors.Is(err, ErrSignatureMismatch):
		status = http.StatusBadRequest
		code = "signature_mismatch"
	case errors.Is(err, ErrInvalidStateTransition):
		status = http.StatusConflict
		code = "invalid_state"
	case errors.Is(err, ErrAlreadyAnchored):
		status = http.StatusConflict
		code = "already_anchored"
	case errors.Is(err, gateway.ErrUnavailable):
		status = http.StatusBadGateway
		code = "gateway_unavailable"
	case errors.Is(err, gateway.ErrRejected):
		status = http.StatusUnprocessableEntity
		code = "gateway_rejected"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
