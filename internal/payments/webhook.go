package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/rentrail/internal/gateway"
	"github.com/mbd888/rentrail/internal/metrics"
)

// webhookEnvelope is the gateway's server-to-server event shape.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Method           string `json:"method"`
	Amount           int64  `json:"amount"`
	CreatedAt        int64  `json:"created_at"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	CreatedAt int64  `json:"created_at"`
}

// HandleWebhookEvent processes a raw gateway webhook delivery. The
// signature is verified over the exact raw body before any parsing.
//
// Events referencing unknown records and unrecognized event types are
// acknowledged without effect so the gateway stops redelivering them.
func (s *Service) HandleWebhookEvent(ctx context.Context, rawBody []byte, signature string) error {
	if !s.verifier.VerifyWebhook(rawBody, signature) {
		metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
		return ErrInvalidWebhookSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return fmt.Errorf("malformed webhook payload: %w", err)
	}

	switch env.Event {
	case "payment.captured":
		return s.webhookCaptured(ctx, env.Payload.Payment.Entity)
	case "payment.failed":
		return s.webhookFailed(ctx, env.Payload.Payment.Entity)
	case "refund.created":
		return s.webhookRefund(ctx, env.Payload.Refund.Entity)
	default:
		s.logger.Debug("ignoring webhook event", "event", env.Event)
		metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		return nil
	}
}

func (s *Service) webhookCaptured(ctx context.Context, entity paymentEntity) error {
	rec, err := s.store.GetByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			s.logger.Warn("webhook for unknown order", "order", entity.OrderID)
			metrics.WebhookEventsTotal.WithLabelValues("unmatched").Inc()
			return nil
		}
		return err
	}

	unlock := s.locks.Lock(rec.ID)
	defer unlock()

	// Re-read under the lock: the client confirm path may have won.
	rec, err = s.store.Get(ctx, rec.ID)
	if err != nil {
		return err
	}

	settle := &gateway.Payment{
		ID:        entity.ID,
		OrderID:   entity.OrderID,
		Amount:    entity.Amount,
		Method:    entity.Method,
		CreatedAt: entity.CreatedAt,
	}
	_, err = s.completeLocked(ctx, rec, settle, "")
	if err != nil {
		return err
	}
	metrics.WebhookEventsTotal.WithLabelValues("captured").Inc()
	return nil
}

func (s *Service) webhookFailed(ctx context.Context, entity paymentEntity) error {
	rec, err := s.store.GetByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			metrics.WebhookEventsTotal.WithLabelValues("unmatched").Inc()
			return nil
		}
		return err
	}

	unlock := s.locks.Lock(rec.ID)
	defer unlock()

	rec, err = s.store.Get(ctx, rec.ID)
	if err != nil {
		return err
	}

	// A record the confirm path already settled keeps its outcome.
	if !rec.settleable() {
		metrics.WebhookEventsTotal.WithLabelValues("stale").Inc()
		return nil
	}

	rec.Status = StatusFailed
	rec.FailureDetail = fmt.Sprintf("gateway reported failure: %s %s", entity.ErrorCode, entity.ErrorDescription)
	rec.Gateway.PaymentID = entity.ID
	rec.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, rec); err != nil {
		return err
	}

	metrics.PaymentsTotal.WithLabelValues(string(StatusFailed)).Inc()
	metrics.WebhookEventsTotal.WithLabelValues("failed").Inc()
	s.emit("payment.failed", rec)
	return nil
}

// webhookRefund records gateway-initiated refunds (issued from the
// provider dashboard rather than through IssueRefund).
func (s *Service) webhookRefund(ctx context.Context, entity refundEntity) error {
	rec, err := s.store.GetByGatewayPaymentID(ctx, entity.PaymentID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			metrics.WebhookEventsTotal.WithLabelValues("unmatched").Inc()
			return nil
		}
		return err
	}

	unlock := s.locks.Lock(rec.ID)
	defer unlock()

	rec, err = s.store.Get(ctx, rec.ID)
	if err != nil {
		return err
	}

	if rec.Refund.Refunded && rec.Refund.TxID == entity.ID {
		// Redelivery of a refund we already recorded.
		metrics.WebhookEventsTotal.WithLabelValues("stale").Inc()
		return nil
	}

	refundedAt := time.Now().UTC()
	if entity.CreatedAt > 0 {
		refundedAt = time.Unix(entity.CreatedAt, 0).UTC()
	}

	rec.Refund = RefundInfo{
		Refunded: true,
		Amount:   entity.Amount,
		Date:     &refundedAt,
		Reason:   "gateway-initiated refund",
		TxID:     entity.ID,
	}
	if rec.Status == StatusCompleted && entity.Amount == rec.Amount.Total {
		rec.Status = StatusRefunded
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, rec); err != nil {
		return err
	}

	metrics.RefundsTotal.Inc()
	metrics.WebhookEventsTotal.WithLabelValues("refund").Inc()
	s.emit("payment.refunded", rec)
	return nil
}
