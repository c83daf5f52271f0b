package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEngine moves value between holders. Every variant follows the
// same pattern: validate, convert when the currencies differ, mutate through
// one atomic store primitive, record. All domain errors surface before any
// mutation; the store primitives re-verify funds under their own lock.
type SettlementEngine struct {
	store *Store
	rates *RateSource

	paymentMin decimal.Decimal
	paymentMax decimal.Decimal
}

func NewSettlementEngine(store *Store, rates *RateSource, cfg Config) *SettlementEngine {
	return &SettlementEngine{
		store:      store,
		rates:      rates,
		paymentMin: cfg.CardPaymentMin,
		paymentMax: cfg.CardPaymentMax,
	}
}

// Convert expresses amount, currently in from, in to. Matching currencies
// short-circuit without a rate lookup; otherwise the full-precision product
// of amount and the pair rate is returned, unrounded.
func (e *SettlementEngine) Convert(amount decimal.Decimal, from, to Currency) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	rate, err := e.rates.Rate(from, to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return amount.Mul(rate), nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	return nil
}

func validateAccount(acc Account) error {
	if acc.Status == StatusBlocked {
		return fmt.Errorf("account %s is blocked: %w", acc.ID, ErrIneligibleHolder)
	}
	return nil
}

func validateCard(card Card, now time.Time) error {
	if card.Status == StatusBlocked {
		return fmt.Errorf("card %s is blocked: %w", card.ID, ErrIneligibleHolder)
	}
	if card.Expired(now) {
		return fmt.Errorf("card %s is expired: %w", card.ID, ErrIneligibleHolder)
	}
	return nil
}

// checkFunds compares the balance against the amount in the sender's own
// currency, before any conversion.
func checkFunds(balance, amount decimal.Decimal) error {
	if balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// newRecord is the transaction recorder: fresh ID, creation timestamp,
// received status. Records are never touched again after the store appends
// them.
func newRecord(txType TransactionType, amount decimal.Decimal, currency Currency, fromRef, toRef, description string) Transaction {
	return Transaction{
		ID:          GenerateID(),
		FromRef:     fromRef,
		ToRef:       toRef,
		Amount:      amount,
		Currency:    currency,
		Type:        txType,
		Status:      TxStatusReceived,
		Description: description,
		Timestamp:   time.Now(),
	}
}

// TransferBetweenAccounts settles variant (a): the sender, addressed by ID,
// is debited amount in its own currency; the recipient, addressed by account
// number, is credited the converted figure. Cross-currency transfers are
// only allowed between accounts of the same user. The record carries the
// credited amount in the recipient's currency.
func (e *SettlementEngine) TransferBetweenAccounts(senderAccountID, recipientNumber string, amount decimal.Decimal, description string) (*Transaction, error) {
	sender, ok := e.store.GetAccount(senderAccountID)
	if !ok {
		return nil, fmt.Errorf("account %s: %w", senderAccountID, ErrNotFound)
	}
	recipient, ok := e.store.GetAccountByNumber(recipientNumber)
	if !ok {
		return nil, fmt.Errorf("account number %s: %w", recipientNumber, ErrNotFound)
	}
	if sender.ID == recipient.ID {
		return nil, ErrSameAccount
	}

	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if err := validateAccount(sender); err != nil {
		return nil, err
	}
	if err := validateAccount(recipient); err != nil {
		return nil, err
	}
	if err := checkFunds(sender.Balance, amount); err != nil {
		return nil, err
	}

	credit := amount
	recordCurrency := sender.Currency
	if sender.Currency != recipient.Currency {
		if sender.UserID != recipient.UserID {
			return nil, ErrIncompatibleTransfer
		}
		converted, err := e.Convert(amount, sender.Currency, recipient.Currency)
		if err != nil {
			return nil, err
		}
		credit = converted
		recordCurrency = recipient.Currency
	}

	if description == "" {
		description = fmt.Sprintf("Transfer from %s to %s", sender.Number, recipient.Number)
	}

	tx := newRecord(TxTransfer, credit, recordCurrency, sender.ID, recipient.ID, description)
	if err := e.store.TransferFunds(sender.ID, recipient.ID, amount, credit, tx); err != nil {
		return nil, err
	}

	logger.Infow("transfer settled",
		"from", sender.ID, "to", recipient.ID,
		"debit", amount.String(), "credit", credit.String(), "currency", recordCurrency)
	return &tx, nil
}

var merchantCategories = []string{
	"groceries", "restaurants", "transport", "entertainment",
	"utilities", "electronics", "travel", "pharmacy",
}

var paymentCurrencies = []Currency{USD, EUR, RUB, CZK}

// PayWithCard settles variant (b): a simulated purchase. The amount and
// merchant category are drawn pseudo-randomly, the purchase currency is
// picked independently of the account, and the account is debited the
// equivalent in its own currency. No recipient: the value leaves the system.
func (e *SettlementEngine) PayWithCard(accountID, cardID string) (*Transaction, error) {
	account, ok := e.store.GetAccount(accountID)
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	card, ok := e.store.GetCard(cardID)
	if !ok || card.AccountID != account.ID {
		return nil, fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}

	if err := validateAccount(account); err != nil {
		return nil, err
	}
	if err := validateCard(card, time.Now()); err != nil {
		return nil, err
	}

	amount, payCurrency, merchant := e.simulatePurchase()

	equivalent, err := e.Convert(amount, payCurrency, account.Currency)
	if err != nil {
		return nil, err
	}
	if err := checkFunds(account.Balance, equivalent); err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Card payment: %s (%s %s)", merchant, amount.String(), payCurrency)
	tx := newRecord(TxCardPayment, equivalent, account.Currency, account.ID, "", description)
	if err := e.store.DebitAccount(account.ID, equivalent, tx); err != nil {
		return nil, err
	}

	logger.Infow("card payment settled",
		"account", account.ID, "card", card.ID, "merchant", merchant,
		"amount", equivalent.String(), "currency", account.Currency)
	return &tx, nil
}

// simulatePurchase draws the pseudo-random purchase: an amount between the
// configured bounds, a currency, and a merchant category.
func (e *SettlementEngine) simulatePurchase() (decimal.Decimal, Currency, string) {
	span := e.paymentMax.Sub(e.paymentMin)
	amount := e.paymentMin.Add(span.Mul(decimal.NewFromFloat(rand.Float64()))).Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		amount = e.paymentMin
	}
	currency := paymentCurrencies[rand.IntN(len(paymentCurrencies))]
	merchant := merchantCategories[rand.IntN(len(merchantCategories))]
	return amount, currency, merchant
}

// RepayLoan settles variant (c): the repayment, expressed in the caller's
// currency, is converted into the loan currency and applied to the
// principal. Over-repayment is rejected on the raw amount before conversion.
// Returns closed=true when the settlement deleted the loan and cleared its
// owner's link.
func (e *SettlementEngine) RepayLoan(loanID string, amount decimal.Decimal, currency Currency) (*Transaction, bool, error) {
	loan, ok := e.store.GetLoan(loanID)
	if !ok {
		return nil, false, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}

	if err := validateAmount(amount); err != nil {
		return nil, false, err
	}
	if amount.GreaterThan(loan.Principal) {
		return nil, false, ErrOverRepayment
	}

	converted, err := e.Convert(amount, currency, loan.Currency)
	if err != nil {
		return nil, false, err
	}

	ownerRef := loan.UserID
	if ownerRef == "" {
		ownerRef = loan.CardID
	}

	tx := newRecord(TxLoanRepay, converted, loan.Currency, ownerRef, "", "Loan repayment")
	closed, err := e.store.SettleLoan(loan.ID, amount, converted, tx)
	if err != nil {
		return nil, false, err
	}

	logger.Infow("loan repayment settled",
		"loan", loan.ID, "amount", converted.String(), "currency", loan.Currency, "closed", closed)
	return &tx, closed, nil
}
