// Package signing verifies payment gateway signatures.
//
// The gateway signs two different messages with two independent secrets:
//
//   - per-payment: HMAC-SHA256(keySecret, orderID + "|" + paymentID),
//     returned to the client after checkout and echoed back on verify
//   - webhook: HMAC-SHA256(webhookSecret, raw request body), carried in
//     the X-Razorpay-Signature header
//
// Neither secret is derived from the other. Verification never fails with
// an error; it returns a boolean and the caller decides the side effect.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier checks gateway signatures with process-wide, read-only secrets.
type Verifier struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewVerifier creates a verifier from the two gateway secrets.
func NewVerifier(keySecret, webhookSecret string) *Verifier {
	return &Verifier{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
	}
}

// PaymentSignature computes the expected per-payment signature for
// orderID and paymentID.
func (v *Verifier) PaymentSignature(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.keySecret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayment checks the per-payment signature in constant time.
func (v *Verifier) VerifyPayment(orderID, paymentID, signature string) bool {
	expected := v.PaymentSignature(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhook checks the payload-level signature over the exact raw
// body bytes in constant time.
func (v *Verifier) VerifyWebhook(rawBody []byte, signature string) bool {
	expected := v.webhookSignature(rawBody)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (v *Verifier) webhookSignature(rawBody []byte) string {
	mac := hmac.New(sha256.New, v.webhookSecret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
