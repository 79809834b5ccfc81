package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"djtunez-api/domain"
)

const (
	webhookBodyMaxSize = 512 * 1024
	webhookProvider    = "stripe"
)

var receivedAck = map[string]bool{"received": true}

// handleWebhook is the payment-confirmation dispatcher. Signature rejection
// is permanent and answered with 400 so the provider stops retrying;
// processing failures are transient and answered with 500 so it retries
// later. Everything the dispatcher cannot classify is acknowledged without
// action, otherwise the provider would retry indefinitely and eventually
// disable the endpoint.
func handleWebhook(store Storage, payments Payments, deduper Deduper, logger *log.Logger, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		metrics, ctx := newWebhookMetrics(ctx, logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		// The raw bytes, never a re-parsed object: re-serialization
		// would change byte layout and break signature verification.
		// One byte past the cap distinguishes an oversized delivery from
		// a full-sized one; a truncated body must never reach the
		// verifier, where it would read as a permanent signature failure.
		payload, readErr := io.ReadAll(io.LimitReader(c.Request().Body, webhookBodyMaxSize+1))
		if readErr != nil {
			metrics.SetErrorStage("read_body")
			return jsonError(c, http.StatusBadRequest, "failed to read body")
		}
		if len(payload) > webhookBodyMaxSize {
			metrics.SetErrorStage("body_too_large")
			return jsonError(c, http.StatusRequestEntityTooLarge, "body too large")
		}

		verifyStart := time.Now()
		event, verifyErr := payments.VerifyWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
		metrics.ObserveVerify(time.Since(verifyStart))
		if verifyErr != nil {
			metrics.SetErrorStage("signature")
			return jsonError(c, http.StatusBadRequest, "Webhook signature invalid: "+verifyErr.Error())
		}
		metrics.SetEventKind(event.Kind)

		switch event.Kind {
		case domain.WebhookAccountUpdated:
			if event.Account == nil {
				break
			}
			if syncErr := store.SyncOnboarding(ctx, event.Account.AccountID, event.Account.DetailsSubmitted); syncErr != nil {
				metrics.SetErrorStage("onboarding_sync")
				c.Logger().Error(syncErr)
				err = jsonError(c, http.StatusInternalServerError, "Webhook handler failed")
				return err
			}

		case domain.WebhookPaymentSucceeded, domain.WebhookCheckoutCompleted:
			status, writeErr := confirmPayment(ctx, store, deduper, event, metrics, logger)
			if writeErr != nil {
				c.Logger().Error(writeErr)
				err = jsonError(c, status, "Webhook handler failed")
				return err
			}

		default:
			// Unhandled event type: acknowledge without processing.
		}

		return c.JSON(http.StatusOK, receivedAck)
	}
}

// confirmPayment routes a confirmed payment to the queue writer. Missing or
// unpaid confirmations are silent no-ops: the delivery is still acknowledged.
// A non-nil return carries the HTTP status the caller should answer with.
func confirmPayment(ctx context.Context, store Storage, deduper Deduper, event domain.WebhookEvent, metrics *webhookMetrics, logger *log.Logger) (int, error) {
	p := event.Payment
	if p == nil || event.ID == "" || p.Metadata.EventID == "" {
		return 0, nil
	}
	if !p.Paid {
		// Delayed payment methods complete the session before paying.
		metrics.SetErrorStage("unpaid")
		return 0, nil
	}

	// Without a deduper the provider's at-least-once delivery can produce
	// duplicate queue entries; with one, payment events are keyed by the
	// provider event id and redeliveries are acknowledged without a write.
	if deduper != nil {
		first, err := deduper.Add(ctx, webhookProvider, event.ID)
		if err != nil {
			metrics.SetErrorStage("dedupe")
			return http.StatusInternalServerError, err
		}
		if !first {
			metrics.SetDuplicate(true)
			return 0, nil
		}
	}

	req, err := p.Metadata.SongRequest()
	if err != nil {
		// Malformed metadata cannot be fixed by a retry; log and ack.
		metrics.SetErrorStage("metadata")
		logger.WithFields(log.Fields{
			"event_id": event.ID,
			"error":    err.Error(),
		}).Warn("webhook metadata rejected")
		return 0, nil
	}

	writeStart := time.Now()
	_, writeErr := store.AppendToQueue(ctx, p.Metadata.EventID, req)
	metrics.ObserveWrite(time.Since(writeStart))
	if errors.Is(writeErr, domain.ErrNotFound) {
		// The event was deleted between payment and confirmation.
		metrics.SetErrorStage("event_missing")
		return 0, nil
	}
	if writeErr != nil {
		metrics.SetErrorStage("storage")
		if deduper != nil {
			if remErr := deduper.Remove(ctx, webhookProvider, event.ID); remErr != nil {
				logger.WithFields(log.Fields{
					"event_id": event.ID,
					"error":    remErr.Error(),
				}).Warn("failed to release dedupe key")
			}
		}
		return http.StatusInternalServerError, writeErr
	}
	return 0, nil
}
