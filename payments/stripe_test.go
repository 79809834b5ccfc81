package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"

	"djtunez-api/domain"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header over the exact payload bytes,
// the same scheme the provider uses: v1 = HMAC-SHA256(secret, "<ts>.<body>").
func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func webhookPayload(eventType string, object map[string]any) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":   "evt_test_1",
		"type": eventType,
		"data": map[string]any{"object": object},
	})
	return payload
}

func TestVerifyWebhookValidSignature(t *testing.T) {
	s := New("sk_test_key", testWebhookSecret)
	payload := webhookPayload("checkout.session.completed", map[string]any{
		"id":             "cs_1",
		"payment_status": "paid",
		"metadata": map[string]string{
			"djId":           "dj-1",
			"eventId":        "ev-1",
			"title":          "X",
			"artist":         "Y",
			"requesterEmail": "fan@example.com",
			"amount":         "2.99",
			"currency":       "eur",
		},
	})

	event, err := s.VerifyWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if event.ID != "evt_test_1" || event.Kind != domain.WebhookCheckoutCompleted {
		t.Fatalf("unexpected classification: %+v", event)
	}
	if event.Payment == nil || !event.Payment.Paid {
		t.Fatalf("expected a paid confirmation: %+v", event.Payment)
	}
	if event.Payment.Metadata.EventID != "ev-1" || event.Payment.Metadata.Amount != "2.99" {
		t.Fatalf("metadata not carried through: %+v", event.Payment.Metadata)
	}
}

func TestVerifyWebhookWrongSecret(t *testing.T) {
	s := New("sk_test_key", testWebhookSecret)
	payload := webhookPayload("payment_intent.succeeded", map[string]any{"id": "pi_1"})

	if _, err := s.VerifyWebhook(payload, signPayload(payload, "whsec_other", time.Now())); err == nil {
		t.Fatal("expected a signature error for the wrong secret")
	}
}

func TestVerifyWebhookTamperedPayload(t *testing.T) {
	s := New("sk_test_key", testWebhookSecret)
	payload := webhookPayload("payment_intent.succeeded", map[string]any{"id": "pi_1"})
	header := signPayload(payload, testWebhookSecret, time.Now())

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'X'
	if _, err := s.VerifyWebhook(tampered, header); err == nil {
		t.Fatal("expected a signature error for a tampered body")
	}
}

func TestVerifyWebhookStaleTimestamp(t *testing.T) {
	s := New("sk_test_key", testWebhookSecret)
	payload := webhookPayload("payment_intent.succeeded", map[string]any{"id": "pi_1"})

	stale := time.Now().Add(-time.Hour)
	if _, err := s.VerifyWebhook(payload, signPayload(payload, testWebhookSecret, stale)); err == nil {
		t.Fatal("expected a tolerance error for a stale timestamp")
	}
}

func TestClassifyAccountUpdated(t *testing.T) {
	event := stripe.Event{
		ID:   "evt_1",
		Type: "account.updated",
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"acct_1","details_submitted":true}`)},
	}

	out, err := classifyEvent(event)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if out.Kind != domain.WebhookAccountUpdated {
		t.Fatalf("unexpected kind: %v", out.Kind)
	}
	if out.Account == nil || out.Account.AccountID != "acct_1" || !out.Account.DetailsSubmitted {
		t.Fatalf("unexpected account update: %+v", out.Account)
	}
}

func TestClassifyPaymentIntentSucceeded(t *testing.T) {
	event := stripe.Event{
		ID:   "evt_1",
		Type: "payment_intent.succeeded",
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"pi_1","metadata":{"eventId":"ev-1","amount":"2.99"}}`)},
	}

	out, err := classifyEvent(event)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if out.Kind != domain.WebhookPaymentSucceeded {
		t.Fatalf("unexpected kind: %v", out.Kind)
	}
	// A succeeded intent is paid by definition.
	if out.Payment == nil || !out.Payment.Paid {
		t.Fatalf("unexpected confirmation: %+v", out.Payment)
	}
	if out.Payment.Metadata.EventID != "ev-1" {
		t.Fatalf("metadata not carried through: %+v", out.Payment.Metadata)
	}
}

func TestClassifyUnpaidCheckoutSession(t *testing.T) {
	event := stripe.Event{
		ID:   "evt_1",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"cs_1","payment_status":"unpaid","metadata":{"eventId":"ev-1"}}`)},
	}

	out, err := classifyEvent(event)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if out.Payment == nil || out.Payment.Paid {
		t.Fatal("an unpaid session must not be marked paid")
	}
}

func TestClassifyUnhandledType(t *testing.T) {
	event := stripe.Event{
		ID:   "evt_1",
		Type: "invoice.paid",
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"in_1"}`)},
	}

	out, err := classifyEvent(event)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if out.Kind != domain.WebhookUnhandled || out.Payment != nil || out.Account != nil {
		t.Fatalf("unexpected classification: %+v", out)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{2.99, 299},
		{0.1, 10},
		{10, 1000},
		{19.999, 2000},
	}
	for _, tc := range cases {
		if got := minorUnits(tc.in); got != tc.want {
			t.Fatalf("minorUnits(%v): expected %d, got %d", tc.in, tc.want, got)
		}
	}
}
