package signing

import "testing"

func TestVerifyPayment(t *testing.T) {
	v := NewVerifier("key-secret", "webhook-secret")

	sig := v.PaymentSignature("order_123", "pay_456")
	if !v.VerifyPayment("order_123", "pay_456", sig) {
		t.Fatal("expected valid signature to verify")
	}

	// Flipping a single character must fail verification.
	tampered := []byte(sig)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	if v.VerifyPayment("order_123", "pay_456", string(tampered)) {
		t.Fatal("tampered signature verified")
	}

	if v.VerifyPayment("order_124", "pay_456", sig) {
		t.Fatal("signature verified against wrong order")
	}
}

func TestVerifyWebhook(t *testing.T) {
	v := NewVerifier("key-secret", "webhook-secret")

	body := []byte(`{"event":"payment.captured","payload":{}}`)
	// Compute the expected header the way the gateway does.
	sig := NewVerifier("ignored", "webhook-secret").webhookSignature(body)

	if !v.VerifyWebhook(body, sig) {
		t.Fatal("expected valid webhook signature to verify")
	}

	// A single flipped byte in the body must fail.
	flipped := append([]byte(nil), body...)
	flipped[10] ^= 0x01
	if v.VerifyWebhook(flipped, sig) {
		t.Fatal("webhook signature verified against tampered body")
	}
}

func TestSecretsIndependent(t *testing.T) {
	v := NewVerifier("secret-a", "secret-b")

	// Signing the webhook message with the payment secret must not verify.
	body := []byte("order_1|pay_1")
	paymentSig := v.PaymentSignature("order_1", "pay_1")
	if v.VerifyWebhook(body, paymentSig) {
		t.Fatal("payment secret produced a valid webhook signature")
	}
}
