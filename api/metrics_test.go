package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"djtunez-api/domain"
)

func recordingTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return exporter
}

func TestQueueRequestMetricsLog(t *testing.T) {
	exporter := recordingTracer(t)
	logger, hook := logtest.NewNullLogger()

	metrics, _ := newQueueRequestMetrics(context.Background(), logger)
	metrics.ObserveWrite(5 * time.Millisecond)
	metrics.SetErrorStage("storage")
	metrics.Log(http.StatusInternalServerError, errors.New("boom"))

	if len(hook.Entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(hook.Entries))
	}
	entry := hook.LastEntry()
	if entry.Message != "queue.request.metrics" {
		t.Fatalf("unexpected message: %q", entry.Message)
	}
	if entry.Data["status"] != http.StatusInternalServerError {
		t.Fatalf("unexpected status field: %v", entry.Data["status"])
	}
	if entry.Data["error_stage"] != "storage" {
		t.Fatalf("unexpected error_stage: %v", entry.Data["error_stage"])
	}
	if _, ok := entry.Data["write_ms"]; !ok {
		t.Fatal("write_ms missing")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "queue.submit" {
		t.Fatalf("unexpected span name: %q", spans[0].Name)
	}
}

func TestWebhookMetricsLog(t *testing.T) {
	exporter := recordingTracer(t)
	logger, hook := logtest.NewNullLogger()

	metrics, _ := newWebhookMetrics(context.Background(), logger)
	metrics.ObserveVerify(time.Millisecond)
	metrics.SetEventKind(domain.WebhookCheckoutCompleted)
	metrics.SetDuplicate(true)
	metrics.Log(http.StatusOK, nil)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Message != "webhook.request.metrics" {
		t.Fatalf("unexpected message: %q", entry.Message)
	}
	if entry.Data["event_kind"] != "checkout.session.completed" {
		t.Fatalf("unexpected event_kind: %v", entry.Data["event_kind"])
	}
	if entry.Data["duplicate"] != true {
		t.Fatalf("unexpected duplicate flag: %v", entry.Data["duplicate"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "webhook.dispatch" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
}

func TestWebhookKindName(t *testing.T) {
	cases := map[domain.WebhookKind]string{
		domain.WebhookUnhandled:         "unhandled",
		domain.WebhookAccountUpdated:    "account.updated",
		domain.WebhookPaymentSucceeded:  "payment_intent.succeeded",
		domain.WebhookCheckoutCompleted: "checkout.session.completed",
	}
	for kind, want := range cases {
		if got := webhookKindName(kind); got != want {
			t.Fatalf("kind %d: expected %q, got %q", kind, want, got)
		}
	}
}
