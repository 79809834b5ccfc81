package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"djtunez-api/domain"
)

const tracerName = "djtunez-api"

// queueRequestMetrics tracks one direct queue submission end to end.
type queueRequestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	writeDuration time.Duration
	errorStage    string
}

func newQueueRequestMetrics(ctx context.Context, logger *log.Logger) (*queueRequestMetrics, context.Context) {
	m := &queueRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "queue.submit")
	m.span = span
	return m, spanCtx
}

func (m *queueRequestMetrics) ObserveWrite(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.writeDuration = duration
}

func (m *queueRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *queueRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":    "/djtunez/queue/:eventId",
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.writeDuration > 0 {
		fields["write_ms"] = durationToMillis(m.writeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("queue.request.metrics")

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", "/djtunez/queue/:eventId"),
			attribute.Int("http.status_code", status),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("djtunez.error_stage", m.errorStage))
		}
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
		}
		m.span.End()
	}
}

// webhookMetrics tracks one webhook delivery through verification and
// dispatch.
type webhookMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	verifyDuration time.Duration
	writeDuration  time.Duration
	kind           domain.WebhookKind
	duplicate      bool
	errorStage     string
}

func newWebhookMetrics(ctx context.Context, logger *log.Logger) (*webhookMetrics, context.Context) {
	m := &webhookMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "webhook.dispatch")
	m.span = span
	return m, spanCtx
}

func (m *webhookMetrics) ObserveVerify(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.verifyDuration = duration
}

func (m *webhookMetrics) ObserveWrite(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.writeDuration = duration
}

func (m *webhookMetrics) SetEventKind(kind domain.WebhookKind) {
	m.kind = kind
}

func (m *webhookMetrics) SetDuplicate(dup bool) {
	m.duplicate = dup
}

func (m *webhookMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func webhookKindName(kind domain.WebhookKind) string {
	switch kind {
	case domain.WebhookAccountUpdated:
		return "account.updated"
	case domain.WebhookPaymentSucceeded:
		return "payment_intent.succeeded"
	case domain.WebhookCheckoutCompleted:
		return "checkout.session.completed"
	default:
		return "unhandled"
	}
}

func (m *webhookMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":      "/webhooks/stripe",
		"status":     status,
		"event_kind": webhookKindName(m.kind),
		"duplicate":  m.duplicate,
		"total_ms":   durationToMillis(time.Since(m.start)),
	}
	if m.verifyDuration > 0 {
		fields["verify_ms"] = durationToMillis(m.verifyDuration)
	}
	if m.writeDuration > 0 {
		fields["write_ms"] = durationToMillis(m.writeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("webhook.request.metrics")

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", "/webhooks/stripe"),
			attribute.Int("http.status_code", status),
			attribute.String("djtunez.webhook.kind", webhookKindName(m.kind)),
			attribute.Bool("djtunez.webhook.duplicate", m.duplicate),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("djtunez.error_stage", m.errorStage))
		}
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
		}
		m.span.End()
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
