package main

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is a closed set of supported currency codes. Anything else is
// rejected at the boundary with ErrUnsupportedCurrency.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	RUB Currency = "RUB"
	CZK Currency = "CZK"
)

// ParseCurrency validates a raw currency code against the supported set.
func ParseCurrency(code string) (Currency, error) {
	switch Currency(code) {
	case USD, EUR, RUB, CZK:
		return Currency(code), nil
	}
	return "", ErrUnsupportedCurrency
}

type HolderStatus string

const (
	StatusActive  HolderStatus = "active"
	StatusBlocked HolderStatus = "blocked"
)

type TransactionType string

const (
	TxTransfer     TransactionType = "transfer"
	TxDeposit      TransactionType = "deposit"
	TxCardPayment  TransactionType = "card_payment"
	TxLoanRepay    TransactionType = "loan_repayment"
	TxLoanDisburse TransactionType = "loan_disbursement"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	LoanID       string    `json:"loan_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Account struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Number    string          `json:"number"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  Currency        `json:"currency"`
	Status    HolderStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type Card struct {
	ID          string       `json:"id"`
	AccountID   string       `json:"account_id"`
	Number      string       `json:"number"`
	ExpiryMonth int          `json:"expiry_month"`
	ExpiryYear  int          `json:"expiry_year"`
	CVV         string       `json:"-"`
	Status      HolderStatus `json:"status"`
	LoanID      string       `json:"loan_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Expired reports whether the card's validity window has passed. Cards stay
// usable through the last day of their expiry month.
func (c Card) Expired(now time.Time) bool {
	end := time.Date(c.ExpiryYear, time.Month(c.ExpiryMonth)+1, 0, 23, 59, 59, 0, time.UTC)
	return now.After(end)
}

// Loan is owned by exactly one user or one card, never both. Principal is the
// amount still owed; RepaidTotal accumulates repayments in the loan currency.
type Loan struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id,omitempty"`
	CardID          string          `json:"card_id,omitempty"`
	AccountID       string          `json:"account_id"`
	Principal       decimal.Decimal `json:"principal"`
	RepaidTotal     decimal.Decimal `json:"repaid_total"`
	Currency        Currency        `json:"currency"`
	InterestRate    decimal.Decimal `json:"interest_rate"`
	TermMonths      int             `json:"term_months"`
	StartDate       time.Time       `json:"start_date"`
	PaymentSchedule []Payment       `json:"payment_schedule"`
}

type Payment struct {
	DueDate       time.Time       `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	PrincipalPart decimal.Decimal `json:"principal_part"`
	InterestPart  decimal.Decimal `json:"interest_part"`
	Paid          bool            `json:"paid"`
}

const TxStatusReceived = "received"

// Transaction is append-only: the store offers no update or delete path for
// it. Amount and Currency always carry the post-conversion figure actually
// applied to the mutated holder.
type Transaction struct {
	ID          string          `json:"id"`
	FromRef     string          `json:"from_ref,omitempty"`
	ToRef       string          `json:"to_ref,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	Type        TransactionType `json:"type"`
	Status      string          `json:"status"`
	Description string          `json:"description,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateAccountRequest struct {
	UserID   string `json:"user_id"`
	Currency string `json:"currency,omitempty"`
}

type GenerateCardRequest struct {
	AccountID string `json:"account_id"`
}

type CardPaymentRequest struct {
	AccountID string `json:"account_id"`
	CardID    string `json:"card_id"`
}

type TransferRequest struct {
	FromAccountID   string          `json:"from_account_id"`
	ToAccountNumber string          `json:"to_account_number"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description,omitempty"`
}

type DepositRequest struct {
	ToAccountID string          `json:"to_account_id"`
	Amount      decimal.Decimal `json:"amount"`
}

type ApplyLoanRequest struct {
	UserID     string          `json:"user_id,omitempty"`
	CardID     string          `json:"card_id,omitempty"`
	AccountID  string          `json:"account_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency,omitempty"`
	TermMonths int             `json:"term_months"`
}

type RepayLoanRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}
