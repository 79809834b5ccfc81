package api

import (
	"net/mail"
	"net/url"
)

const maxTextField = 200

func validText(s string) bool {
	return s != "" && len(s) <= maxTextField
}

func validURI(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func validEmail(s string) bool {
	_, err := mail.ParseAddress(s)
	return err == nil
}

func validCurrency(s string) bool {
	return len(s) >= 2 && len(s) <= 5
}

// validateSongRequest checks a direct queue submission. Returns the first
// failure message, empty when the payload is acceptable.
func validateSongRequest(title, artist, cover, email string, amount float64, currency string) string {
	switch {
	case !validText(title):
		return "title must be a non-empty string of at most 200 characters"
	case !validText(artist):
		return "artist must be a non-empty string of at most 200 characters"
	case !validURI(cover):
		return "cover must be a valid http(s) URI"
	case !validEmail(email):
		return "requesterEmail must be a valid email address"
	case amount <= 0:
		return "amount must be positive"
	case !validCurrency(currency):
		return "currency must be a 2-5 character code"
	}
	return ""
}

func validateCheckout(body checkoutBody) string {
	switch {
	case body.DJID == "":
		return "djId is required"
	case body.EventID == "":
		return "eventId is required"
	case !validText(body.Title):
		return "title must be a non-empty string of at most 200 characters"
	case !validText(body.Artist):
		return "artist must be a non-empty string of at most 200 characters"
	case body.Cover != "" && !validURI(body.Cover):
		return "cover must be a valid http(s) URI"
	case !validEmail(body.RequesterEmail):
		return "requesterEmail must be a valid email address"
	case !validURI(body.SuccessURL):
		return "successUrl must be a valid http(s) URI"
	case !validURI(body.CancelURL):
		return "cancelUrl must be a valid http(s) URI"
	}
	return ""
}

func validateIntent(body intentBody) string {
	switch {
	case body.DJID == "":
		return "djId is required"
	case body.EventID == "":
		return "eventId is required"
	case !validText(body.Title):
		return "title must be a non-empty string of at most 200 characters"
	case !validText(body.Artist):
		return "artist must be a non-empty string of at most 200 characters"
	case body.Cover != "" && !validURI(body.Cover):
		return "cover must be a valid http(s) URI"
	case !validEmail(body.RequesterEmail):
		return "requesterEmail must be a valid email address"
	}
	return ""
}
