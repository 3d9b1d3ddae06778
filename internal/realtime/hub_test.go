package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mbd888/rentrail/internal/payments"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func paymentEvent(eventType, landlordID, tenantID string, amount int64) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data: paymentData{
			PaymentID:  "pay_1",
			LandlordID: landlordID,
			TenantID:   tenantID,
			Amount:     amount,
		},
	}
}

func TestShouldSendAllEvents(t *testing.T) {
	h := testHub()
	c := &Client{sub: Subscription{AllEvents: true}}

	if !h.shouldSend(c, paymentEvent("payment.completed", "l1", "t1", 100)) {
		t.Fatal("all-events subscription should match everything")
	}
}

func TestShouldSendEventTypeFilter(t *testing.T) {
	h := testHub()
	c := &Client{sub: Subscription{EventTypes: []string{"payment.refunded"}}}

	if h.shouldSend(c, paymentEvent("payment.completed", "l1", "t1", 100)) {
		t.Fatal("non-matching event type should be filtered")
	}
	if !h.shouldSend(c, paymentEvent("payment.refunded", "l1", "t1", 100)) {
		t.Fatal("matching event type should pass")
	}
}

func TestShouldSendPartyFilter(t *testing.T) {
	h := testHub()
	c := &Client{sub: Subscription{PartyIDs: []string{"landlord_7"}}}

	if h.shouldSend(c, paymentEvent("payment.completed", "l1", "t1", 100)) {
		t.Fatal("event for other parties should be filtered")
	}
	if !h.shouldSend(c, paymentEvent("payment.completed", "landlord_7", "t1", 100)) {
		t.Fatal("event naming the watched landlord should pass")
	}
	if !h.shouldSend(c, paymentEvent("payment.completed", "l1", "landlord_7", 100)) {
		t.Fatal("tenant position should also match")
	}
}

func TestShouldSendMinAmountFilter(t *testing.T) {
	h := testHub()
	c := &Client{sub: Subscription{MinAmount: 1_000_000}}

	if h.shouldSend(c, paymentEvent("payment.completed", "l1", "t1", 999_999)) {
		t.Fatal("payment below the threshold should be filtered")
	}
	if !h.shouldSend(c, paymentEvent("payment.completed", "l1", "t1", 1_000_000)) {
		t.Fatal("payment at the threshold should pass")
	}
}

func TestStatsInitial(t *testing.T) {
	h := testHub()
	stats := h.Stats()

	if stats["connectedClients"].(int) != 0 {
		t.Fatal("expected no connected clients")
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Fatal("expected no events")
	}
}

func TestPaymentEventBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	defer cancel()

	rec := &payments.Record{
		ID:         "pay_1",
		LandlordID: "l1",
		TenantID:   "t1",
		Kind:       payments.KindRent,
		Amount:     payments.Amount{Total: 100},
		Status:     payments.StatusCompleted,
	}
	h.PaymentEvent("payment.completed", rec)

	deadline := time.After(time.Second)
	for h.totalEvents.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("broadcast not processed in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestContextCancellationStopsHub(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after context cancellation")
	}
}
