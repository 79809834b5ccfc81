package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"djtunez-api/domain"
)

func paidEvent(id string) domain.WebhookEvent {
	return domain.WebhookEvent{
		ID:   id,
		Kind: domain.WebhookCheckoutCompleted,
		Payment: &domain.PaymentConfirmation{
			Paid: true,
			Metadata: domain.QueueMetadata{
				DJID:           "dj-1",
				EventID:        "ev-1",
				Title:          "X",
				Artist:         "Y",
				Cover:          "https://img.example/c.png",
				RequesterEmail: "fan@example.com",
				Amount:         "2.99",
				Currency:       "eur",
			},
		},
	}
}

func deliverWebhook(t *testing.T, store Storage, payments *mockPayments, deduper Deduper) int {
	t.Helper()
	e := newTestServer(store, &mockIdentity{}, payments, deduper)
	rec := doJSON(e, http.MethodPost, "/webhooks/stripe", `{"id":"evt"}`, map[string]string{
		"Stripe-Signature": "t=1,v1=abc",
	})
	return rec.Code
}

func TestWebhookBadSignature(t *testing.T) {
	store := newMemStore()
	store.events["ev-1"] = domain.Event{ID: "ev-1"}
	payments := &mockPayments{webhookErr: errors.New("no valid signature")}

	code := deliverWebhook(t, store, payments, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if store.totalWrites() != 0 {
		t.Fatal("a rejected signature must cause no writes")
	}
}

func TestWebhookOversizedBodyRejected(t *testing.T) {
	store := newMemStore()
	store.events["ev-1"] = domain.Event{ID: "ev-1"}
	payments := &mockPayments{webhookEvent: paidEvent("evt_1")}
	e := newTestServer(store, &mockIdentity{}, payments, nil)

	body := strings.Repeat("a", webhookBodyMaxSize+1)
	rec := doJSON(e, http.MethodPost, "/webhooks/stripe", body, map[string]string{
		"Stripe-Signature": "t=1,v1=abc",
	})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if store.totalWrites() != 0 {
		t.Fatal("an oversized delivery must cause no writes")
	}
}

func TestWebhookPaidCheckoutWritesQueue(t *testing.T) {
	store := newMemStore()
	store.events["ev-1"] = domain.Event{ID: "ev-1"}
	payments := &mockPayments{webhookEvent: paidEvent("evt_1")}

	code := deliverWebhook(t, store, payments, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	queue := store.queue("ev-1")
	if len(queue) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(queue))
	}
	req := queue[0].req
	if req.Title != "X" || req.Amount != 2.99 || req.Currency != "eur" {
		t.Fatalf("metadata not replayed into the entry: %+v", req)
	}
	if req.Status != domain.RequestPending || req.Position != 0 {
		t.Fatalf("writer must stamp status and position: %+v", req)
	}
}

func TestWebhookUnpaidCheckoutNoWrite(t *testing.T) {
	store := newMemStore()
	store.events["ev-1"] = domain.Event{ID: "ev-1"}
	event := paidEvent("evt_1")
	event.Payment.Paid = false
	payments := &mockPayments{webhookEvent: event}

	code := deliverWebhook(t, store, payments, nil)
	if code != http.StatusOK {
		t.Fatalf("unpaid completion must still be acknowledged, got %d", code)
	}
	if store.totalWrites() != 0 {
		t.Fatal("unpaid completion must not reach the queue")
	}
}

func TestWebhookUnhandledKindAcknowledged(t *testing.T) {
	store := newMemStore()
	payments := &mockPayments{webhookEvent: domain.WebhookEvent{ID: "evt_1", Kind: domain.WebhookUnhandled}}

	code := deliverWebhook(t, store, payments, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if store.totalWrites() != 0 {
		t.Fatal("unhandled kinds must cause no writes")
	}
}

func TestWebhookMalformedMetadataAcknowledged(t *testing.T) {
	store := newMemStore()
	store.events["ev-1"] = domain.Event{ID: "ev-1"}
	event := paidEvent("evt_1")
	event.Payment.Metadata.Amount = "not-a-number"
	payments := &mockPayments{webhookEvent: event}

	code := deliverWebhook(t, store, payments, nil)
	if code != http.StatusOK {
		t.Fatalf("malformed metadata is not retryable, expected 200, got %d", code)
	}
	if store.totalWrites() != 0 {
		t.Fatal("malformed metadata must not reach the queue")
	}
}

func TestWebhookEventDeletedBeforeConfirmation(t *testing.T) {
	store := newMemStore()
	payments := &mockPayments{webhookEvent: paidEvent("evt_1")}

	code := deliverWebhook(t, store, payments, nil)
	if code != http.StatusOK {
		t.Fatalf("a vanished event is not retryable, expected 200, got %d", code)
	}
}

func TestWebhookAccountUpdatedSyncsOnboarding(t *testing.T) {
	store := newMemStore()
	store.users["uid-1"] = userRecord{accountID: "acct_1"}
	payments := &mockPayments{webhookEvent: domain.WebhookEvent{
		ID:      "evt_1",
		Kind:    domain.WebhookAccountUpdated,
		Account: &domain.AccountUpdate{AccountID: "acct_1", DetailsSubmitted: true},
	}}

	code := deliverWebhook(t, store, payments, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !store.users["uid-1"].onboarded {
		t.Fatal("onboarding flag not synced")
	}
}

// Without a deduper a redelivered confirmation lands in the queue twice. The
// write path is not transactional, so this is the documented behavior, not a
// bug the handler silently papers over.
func TestWebhookRedeliveryWithoutDeduper(t *testing.T) {
	store := newMemStore()
	store.events["ev-1"] = domain.Event{ID: "ev-1"}
	payments := &mockPayments{webhookEvent: paidEvent("evt_1")}
	e := newTestServer(store, &mockIdentity{}, payments, nil)

	for i := 0; i < 2; i++ {
		rec := doJSON(e, http.MethodPost, "/webhooks/stripe", `{"id":"evt"}`, map[string]string{
			"Stripe-Signature": "t=1,v1=abc",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
	}
	if n := store.totalWrites(); n != 2 {
		t.Fatalf("expected 2 entries without dedupe, got %d", n)
	}
}

func TestWebhookRedeliveryWithDeduper(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	deduper := NewRedisDeduper(client, time.Hour)

	store := newMemStore()
	store.events["ev-1"] = domain.Event{ID: "ev-1"}
	payments := &mockPayments{webhookEvent: paidEvent("evt_1")}
	e := newTestServer(store, &mockIdentity{}, payments, deduper)

	for i := 0; i < 2; i++ {
		rec := doJSON(e, http.MethodPost, "/webhooks/stripe", `{"id":"evt"}`, map[string]string{
			"Stripe-Signature": "t=1,v1=abc",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
	}
	if n := store.totalWrites(); n != 1 {
		t.Fatalf("expected 1 entry with dedupe, got %d", n)
	}
}

func TestWebhookFailedWriteReleasesDedupeKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	deduper := NewRedisDeduper(client, time.Hour)

	store := newMemStore()
	store.events["ev-1"] = domain.Event{ID: "ev-1"}
	store.appendErr = errors.New("store unavailable")
	payments := &mockPayments{webhookEvent: paidEvent("evt_1")}

	code := deliverWebhook(t, store, payments, deduper)
	if code != http.StatusInternalServerError {
		t.Fatalf("storage failure must return 500 for a retry, got %d", code)
	}
	if mr.Exists("webhook:stripe:evt_1") {
		t.Fatal("failed write must release the dedupe key so the retry is processed")
	}

	// The retry finds the store healthy and lands exactly once.
	store.appendErr = nil
	if code := deliverWebhook(t, store, payments, deduper); code != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d", code)
	}
	if n := store.totalWrites(); n != 1 {
		t.Fatalf("expected 1 entry after retry, got %d", n)
	}
}
