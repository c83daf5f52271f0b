package main

import (
	"errors"
	"net/http"
)

// Domain errors raised by the settlement engine. They are detected before any
// mutation and propagate to the handler layer unchanged; handlers translate
// them into HTTP statuses via httpStatus.
var (
	// ErrNotFound: a referenced holder, loan, or account number does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount: the requested amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds: the sender's balance, in the sender's own
	// currency and before any conversion, cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrIneligibleHolder: the holder is blocked, or the card has expired.
	ErrIneligibleHolder = errors.New("holder is not eligible for settlement")

	// ErrUnsupportedCurrency: unknown currency code or no rate for the pair.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrIncompatibleTransfer: cross-currency transfer between accounts of
	// different owners. Policy rejection, not a funds problem.
	ErrIncompatibleTransfer = errors.New("cross-currency transfer requires same owner")

	// ErrOverRepayment: repayment amount exceeds the remaining principal.
	ErrOverRepayment = errors.New("repayment exceeds remaining principal")

	// ErrSameAccount: sender and recipient are the same account.
	ErrSameAccount = errors.New("sender and recipient are the same account")
)

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrUnsupportedCurrency),
		errors.Is(err, ErrOverRepayment),
		errors.Is(err, ErrSameAccount):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrIneligibleHolder),
		errors.Is(err, ErrIncompatibleTransfer):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
