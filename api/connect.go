package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"djtunez-api/domain"
)

// registerConnect wires the payment-provider account management surface for
// DJs: connected accounts, onboarding links, products, balance and payouts.
// All routes require the dj role; the group carries that middleware.
func registerConnect(g *echo.Group, payments Payments, timeout time.Duration) {
	g.POST("/accounts", createConnectedAccount(payments, timeout))
	g.GET("/accounts/:accountId", getAccountStatus(payments, timeout))
	g.POST("/account-links", createOnboardingLink(payments, timeout))
	g.POST("/products", createProduct(payments, timeout))
	g.GET("/products", listProducts(payments, timeout))
	g.GET("/balance/:accountId", getBalance(payments, timeout))
	g.POST("/payout", requestPayout(payments, timeout))
}

type createAccountBody struct {
	DisplayName string `json:"displayName"`
	Country     string `json:"country"`
	Email       string `json:"email"`
}

func createConnectedAccount(payments Payments, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		var body createAccountBody
		if err := decodeBody(c, &body); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		switch {
		case !validText(body.DisplayName):
			return jsonError(c, http.StatusBadRequest, "displayName is required")
		case len(body.Country) != 2:
			return jsonError(c, http.StatusBadRequest, "country must be a 2-letter code")
		case !validEmail(body.Email):
			return jsonError(c, http.StatusBadRequest, "email must be a valid email address")
		}

		accountID, err := payments.CreateAccount(ctx, body.DisplayName, body.Country, body.Email)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to create account")
		}
		return c.JSON(http.StatusCreated, map[string]any{
			"account": map[string]string{"id": accountID, "display_name": body.DisplayName},
		})
	}
}

func getAccountStatus(payments Payments, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		status, err := payments.AccountStatus(ctx, c.Param("accountId"))
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to retrieve account")
		}
		return c.JSON(http.StatusOK, status)
	}
}

type accountLinkBody struct {
	AccountID  string `json:"accountId"`
	ReturnURL  string `json:"returnUrl"`
	RefreshURL string `json:"refreshUrl"`
}

func createOnboardingLink(payments Payments, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		var body accountLinkBody
		if err := decodeBody(c, &body); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		switch {
		case body.AccountID == "":
			return jsonError(c, http.StatusBadRequest, "accountId is required")
		case !validURI(body.ReturnURL):
			return jsonError(c, http.StatusBadRequest, "returnUrl must be a valid http(s) URI")
		case !validURI(body.RefreshURL):
			return jsonError(c, http.StatusBadRequest, "refreshUrl must be a valid http(s) URI")
		}

		url, err := payments.OnboardingLink(ctx, body.AccountID, body.ReturnURL, body.RefreshURL)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to create onboarding link")
		}
		return c.JSON(http.StatusOK, map[string]string{"url": url})
	}
}

type createProductBody struct {
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	Amount             float64 `json:"amount"`
	Currency           string  `json:"currency"`
	ConnectedAccountID string  `json:"connectedAccountId"`
}

func createProduct(payments Payments, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		var body createProductBody
		if err := decodeBody(c, &body); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		switch {
		case !validText(body.Name):
			return jsonError(c, http.StatusBadRequest, "name is required")
		case body.Amount <= 0:
			return jsonError(c, http.StatusBadRequest, "amount must be positive")
		case !validCurrency(body.Currency):
			return jsonError(c, http.StatusBadRequest, "currency must be a 2-5 character code")
		case body.ConnectedAccountID == "":
			return jsonError(c, http.StatusBadRequest, "connectedAccountId is required")
		}

		product, err := payments.CreateProduct(ctx, body.Name, body.Description, body.Amount, body.Currency, body.ConnectedAccountID)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to create product")
		}
		return c.JSON(http.StatusCreated, map[string]domain.Product{"product": product})
	}
}

func listProducts(payments Payments, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		products, err := payments.ListProducts(ctx, c.QueryParam("connectedAccountId"))
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to list products")
		}
		return c.JSON(http.StatusOK, map[string][]domain.Product{"products": products})
	}
}

func getBalance(payments Payments, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		balance, err := payments.Balance(ctx, c.Param("accountId"))
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to retrieve balance")
		}
		return c.JSON(http.StatusOK, balance)
	}
}

type payoutBody struct {
	AccountID string  `json:"accountId"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

func requestPayout(payments Payments, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		var body payoutBody
		if err := decodeBody(c, &body); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		switch {
		case body.AccountID == "":
			return jsonError(c, http.StatusBadRequest, "accountId is required")
		case body.Amount <= 0:
			return jsonError(c, http.StatusBadRequest, "amount must be positive")
		case !validCurrency(body.Currency):
			return jsonError(c, http.StatusBadRequest, "currency must be a 2-5 character code")
		}

		payout, err := payments.Payout(ctx, body.AccountID, body.Amount, body.Currency)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to create payout")
		}
		return c.JSON(http.StatusCreated, map[string]domain.Payout{"payout": payout})
	}
}
