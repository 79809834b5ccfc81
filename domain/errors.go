package domain

import "errors"

var (
	// ErrNotFound marks a referenced event, DJ or account that is absent
	// from the store. Handlers convert it to a 404.
	ErrNotFound = errors.New("not found")

	// ErrNoLinkedAccount marks a DJ without a connected payment account.
	// A business precondition, so handlers convert it to a 400.
	ErrNoLinkedAccount = errors.New("no linked payment account")
)
