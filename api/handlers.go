package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"djtunez-api/domain"
)

const requestBodyMaxSize = 16 * 1024

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, identity Identity, payments Payments, deduper Deduper, logger *log.Logger, timeout time.Duration) {
	e.GET("/health", health())

	dj := e.Group("/djtunez")
	dj.POST("/register", registerDJ(identity, timeout))
	dj.GET("/event/:id", getEvent(store, timeout))
	dj.GET("/dj/:id", getDJ(store, timeout))
	dj.GET("/dj/:djId/live-event", getLiveEvent(store, timeout))
	dj.POST("/queue/:eventId", submitSongRequest(store, logger, timeout))
	dj.POST("/checkout", createCheckout(store, payments, timeout))

	e.POST("/payment/create-intent", createIntent(store, payments, timeout))

	e.POST("/webhooks/stripe", handleWebhook(store, payments, deduper, logger, timeout))

	requireDJ := RequireRole(identity, domain.RoleDJ)
	user := e.Group("/user", requireDJ)
	user.DELETE("", deleteAccount(store, identity, payments, logger, timeout))

	connect := e.Group("/stripe", requireDJ)
	registerConnect(connect, payments, timeout)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}

// opContext bounds every external call made on behalf of one request. The
// underlying SDKs carry no timeout defaults worth relying on.
func opContext(c echo.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), timeout)
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func health() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// registerDJ stamps role=dj on a freshly created account. No role check: the
// whole point of the endpoint is to assign the role, so any verified token
// is accepted.
func registerDJ(identity Identity, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		session, err := identity.VerifySession(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return jsonError(c, http.StatusUnauthorized, err.Error())
		}
		// A failed grant is a provider outage, not a credential problem.
		if err := identity.GrantDJRole(ctx, session.UID); err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to register DJ")
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

type eventResponse struct {
	Message string       `json:"message"`
	Event   domain.Event `json:"event"`
}

func getEvent(store Storage, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		event, err := store.FetchEvent(ctx, c.Param("id"))
		if errors.Is(err, domain.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "Event not found")
		}
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to fetch event")
		}
		return c.JSON(http.StatusOK, eventResponse{Message: "Successful", Event: event})
	}
}

type djResponse struct {
	Message string    `json:"message"`
	DJ      domain.DJ `json:"dj"`
}

func getDJ(store Storage, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		dj, err := store.FetchDJ(ctx, c.Param("id"))
		if errors.Is(err, domain.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "DJ not found")
		}
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to fetch DJ info")
		}
		return c.JSON(http.StatusOK, djResponse{Message: "Successful", DJ: dj})
	}
}

func getLiveEvent(store Storage, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		event, err := store.FetchLiveEvent(ctx, c.Param("djId"))
		if errors.Is(err, domain.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "No live event")
		}
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to fetch live event")
		}
		return c.JSON(http.StatusOK, eventResponse{Message: "Successful", Event: event})
	}
}

type songRequestBody struct {
	Title          string  `json:"title"`
	Artist         string  `json:"artist"`
	Cover          string  `json:"cover"`
	RequesterEmail string  `json:"requesterEmail"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
}

type submitResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// submitSongRequest is the direct intake path: payment confirmation already
// happened client-side, so the request goes straight to the queue writer.
// The DJ's payment account, not this service, remains the source of truth
// for funds movement.
func submitSongRequest(store Storage, logger *log.Logger, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		metrics, ctx := newQueueRequestMetrics(ctx, logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		var body songRequestBody
		if err := decodeBody(c, &body); err != nil {
			metrics.SetErrorStage("decode")
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		if msg := validateSongRequest(body.Title, body.Artist, body.Cover, body.RequesterEmail, body.Amount, body.Currency); msg != "" {
			metrics.SetErrorStage("validate")
			return jsonError(c, http.StatusBadRequest, msg)
		}

		writeStart := time.Now()
		requestID, writeErr := store.AppendToQueue(ctx, c.Param("eventId"), domain.SongRequest{
			Title:          body.Title,
			Artist:         body.Artist,
			Cover:          body.Cover,
			RequesterEmail: body.RequesterEmail,
			Amount:         body.Amount,
			Currency:       body.Currency,
		})
		metrics.ObserveWrite(time.Since(writeStart))
		if errors.Is(writeErr, domain.ErrNotFound) {
			metrics.SetErrorStage("event_missing")
			return jsonError(c, http.StatusNotFound, "Event not found")
		}
		if writeErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(writeErr)
			err = jsonError(c, http.StatusInternalServerError, "Failed to submit song request")
			return err
		}
		return c.JSON(http.StatusCreated, submitResponse{Message: "Song request submitted", RequestID: requestID})
	}
}

type checkoutBody struct {
	DJID           string `json:"djId"`
	EventID        string `json:"eventId"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Cover          string `json:"cover"`
	RequesterEmail string `json:"requesterEmail"`
	SuccessURL     string `json:"successUrl"`
	CancelURL      string `json:"cancelUrl"`
}

// createCheckout starts the provider-hosted payment path. Price, currency and
// the connected account id are read server-side; the queue write happens
// later, exclusively through the confirming webhook.
func createCheckout(store Storage, payments Payments, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		var body checkoutBody
		if err := decodeBody(c, &body); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		if msg := validateCheckout(body); msg != "" {
			return jsonError(c, http.StatusBadRequest, msg)
		}

		profile, err := store.FetchCheckoutProfile(ctx, body.DJID)
		if errors.Is(err, domain.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "DJ not found")
		}
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to create checkout session")
		}
		if profile.AccountID == "" {
			return jsonError(c, http.StatusBadRequest, "DJ has not connected a Stripe account")
		}

		metadata := domain.QueueMetadata{
			DJID:           body.DJID,
			EventID:        body.EventID,
			Title:          body.Title,
			Artist:         body.Artist,
			Cover:          body.Cover,
			RequesterEmail: body.RequesterEmail,
			Amount:         strconv.FormatFloat(profile.Price, 'f', -1, 64),
			Currency:       profile.Currency,
		}
		session, err := payments.CreateCheckout(ctx, profile.AccountID, body.SuccessURL, body.CancelURL, metadata)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to create checkout session")
		}
		return c.JSON(http.StatusCreated, session)
	}
}

type intentBody struct {
	DJID           string `json:"djId"`
	EventID        string `json:"eventId"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Cover          string `json:"cover"`
	RequesterEmail string `json:"requesterEmail"`
}

// createIntent is the embedded-payment path. Pricing comes from the DJ's
// profile, never from the client; the metadata mirrors the checkout path so
// the same webhook write reconstructs the queue entry.
func createIntent(store Storage, payments Payments, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		var body intentBody
		if err := decodeBody(c, &body); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		if msg := validateIntent(body); msg != "" {
			return jsonError(c, http.StatusBadRequest, msg)
		}

		profile, err := store.FetchCheckoutProfile(ctx, body.DJID)
		if errors.Is(err, domain.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "DJ not found")
		}
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to create payment intent")
		}

		metadata := domain.QueueMetadata{
			DJID:           body.DJID,
			EventID:        body.EventID,
			Title:          body.Title,
			Artist:         body.Artist,
			Cover:          body.Cover,
			RequesterEmail: body.RequesterEmail,
			Amount:         strconv.FormatFloat(profile.Price, 'f', -1, 64),
			Currency:       profile.Currency,
		}
		clientSecret, err := payments.CreateIntent(ctx, metadata)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to create payment intent")
		}
		return c.JSON(http.StatusOK, map[string]string{"clientSecret": clientSecret})
	}
}
