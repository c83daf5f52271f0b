package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*SettlementEngine, *Store, *RateSource) {
	t.Helper()
	store := NewStore()
	rates := NewRateSource()
	cfg := Config{
		CardPaymentMin: decimal.NewFromInt(5),
		CardPaymentMax: decimal.NewFromInt(5),
	}
	return NewSettlementEngine(store, rates, cfg), store, rates
}

func seedUser(t *testing.T, store *Store, username string) User {
	t.Helper()
	user := User{
		ID:        GenerateID(),
		Username:  username,
		Email:     username + "@example.com",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AddUser(user))
	return user
}

func seedAccount(t *testing.T, store *Store, userID string, currency Currency, balance string) Account {
	t.Helper()
	account := Account{
		ID:        GenerateID(),
		UserID:    userID,
		Number:    GenerateAccountNumber(),
		Balance:   decimal.RequireFromString(balance),
		Currency:  currency,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AddAccount(account))
	return account
}

func seedCard(t *testing.T, store *Store, accountID string, expiryYearOffset int) Card {
	t.Helper()
	now := time.Now()
	card := Card{
		ID:          GenerateID(),
		AccountID:   accountID,
		Number:      GenerateCardNumber(),
		ExpiryMonth: int(now.Month()),
		ExpiryYear:  now.Year() + expiryYearOffset,
		CVV:         GenerateCVV(),
		Status:      StatusActive,
		CreatedAt:   now,
	}
	require.NoError(t, store.AddCard(card))
	return card
}

func seedLoan(t *testing.T, store *Store, userID, accountID string, currency Currency, principal string) Loan {
	t.Helper()
	loan := Loan{
		ID:          GenerateID(),
		UserID:      userID,
		AccountID:   accountID,
		Principal:   decimal.RequireFromString(principal),
		RepaidTotal: decimal.Zero,
		Currency:    currency,
		TermMonths:  12,
		StartDate:   time.Now(),
	}
	tx := newRecord(TxLoanDisburse, loan.Principal, currency, "", accountID, "Loan disbursement")
	require.NoError(t, store.DisburseLoan(loan, loan.Principal, tx))
	return loan
}

func TestTransferSameCurrencyConservesBalances(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	from := seedAccount(t, store, alice.ID, USD, "100")
	to := seedAccount(t, store, bob.ID, USD, "50")

	tx, err := engine.TransferBetweenAccounts(from.ID, to.Number, decimal.RequireFromString("40"), "")
	require.NoError(t, err)

	fromAfter, _ := store.GetAccount(from.ID)
	toAfter, _ := store.GetAccount(to.ID)
	assert.True(t, fromAfter.Balance.Equal(decimal.RequireFromString("60")), "got %s", fromAfter.Balance)
	assert.True(t, toAfter.Balance.Equal(decimal.RequireFromString("90")), "got %s", toAfter.Balance)

	assert.Equal(t, TxTransfer, tx.Type)
	assert.Equal(t, USD, tx.Currency)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("40")))
	assert.Equal(t, TxStatusReceived, tx.Status)
}

func TestTransferCrossCurrencySameOwner(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	usd := seedAccount(t, store, alice.ID, USD, "100")
	eur := seedAccount(t, store, alice.ID, EUR, "50")

	tx, err := engine.TransferBetweenAccounts(usd.ID, eur.Number, decimal.RequireFromString("40"), "")
	require.NoError(t, err)

	// 40 USD at 0.92 credits 36.8 EUR; the record reports the recipient side.
	usdAfter, _ := store.GetAccount(usd.ID)
	eurAfter, _ := store.GetAccount(eur.ID)
	assert.True(t, usdAfter.Balance.Equal(decimal.RequireFromString("60")), "got %s", usdAfter.Balance)
	assert.True(t, eurAfter.Balance.Equal(decimal.RequireFromString("86.8")), "got %s", eurAfter.Balance)

	assert.Equal(t, EUR, tx.Currency)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("36.8")), "got %s", tx.Amount)
}

func TestTransferCrossCurrencyDifferentOwnersRejected(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	usd := seedAccount(t, store, alice.ID, USD, "100")
	eur := seedAccount(t, store, bob.ID, EUR, "50")

	_, err := engine.TransferBetweenAccounts(usd.ID, eur.Number, decimal.RequireFromString("40"), "")
	assert.ErrorIs(t, err, ErrIncompatibleTransfer)

	usdAfter, _ := store.GetAccount(usd.ID)
	eurAfter, _ := store.GetAccount(eur.ID)
	assert.True(t, usdAfter.Balance.Equal(decimal.RequireFromString("100")))
	assert.True(t, eurAfter.Balance.Equal(decimal.RequireFromString("50")))
}

func TestTransferInsufficientFundsLeavesStateUntouched(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	from := seedAccount(t, store, alice.ID, USD, "10")
	to := seedAccount(t, store, bob.ID, USD, "0")

	_, err := engine.TransferBetweenAccounts(from.ID, to.Number, decimal.RequireFromString("10.01"), "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	fromAfter, _ := store.GetAccount(from.ID)
	toAfter, _ := store.GetAccount(to.ID)
	assert.True(t, fromAfter.Balance.Equal(decimal.RequireFromString("10")))
	assert.True(t, toAfter.Balance.IsZero())
	assert.Empty(t, store.GetAccountTransactions(from.ID))
}

func TestTransferRejectionsAreIdempotent(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	from := seedAccount(t, store, alice.ID, USD, "100")
	to := seedAccount(t, store, bob.ID, USD, "0")
	require.NoError(t, store.SetAccountStatus(from.ID, StatusBlocked))

	for i := 0; i < 2; i++ {
		_, err := engine.TransferBetweenAccounts(from.ID, to.Number, decimal.RequireFromString("10"), "")
		assert.ErrorIs(t, err, ErrIneligibleHolder)
	}

	fromAfter, _ := store.GetAccount(from.ID)
	assert.True(t, fromAfter.Balance.Equal(decimal.RequireFromString("100")))
	assert.Empty(t, store.GetAccountTransactions(from.ID))
}

func TestTransferValidationErrors(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	from := seedAccount(t, store, alice.ID, USD, "100")
	to := seedAccount(t, store, bob.ID, USD, "50")

	t.Run("unknown sender", func(t *testing.T) {
		_, err := engine.TransferBetweenAccounts("missing", to.Number, decimal.RequireFromString("1"), "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown recipient number", func(t *testing.T) {
		_, err := engine.TransferBetweenAccounts(from.ID, "00000000000000000000", decimal.RequireFromString("1"), "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := engine.TransferBetweenAccounts(from.ID, to.Number, decimal.Zero, "")
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = engine.TransferBetweenAccounts(from.ID, to.Number, decimal.RequireFromString("-5"), "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("same account", func(t *testing.T) {
		_, err := engine.TransferBetweenAccounts(from.ID, from.Number, decimal.RequireFromString("1"), "")
		assert.ErrorIs(t, err, ErrSameAccount)
	})

	t.Run("blocked recipient", func(t *testing.T) {
		require.NoError(t, store.SetAccountStatus(to.ID, StatusBlocked))
		_, err := engine.TransferBetweenAccounts(from.ID, to.Number, decimal.RequireFromString("1"), "")
		assert.ErrorIs(t, err, ErrIneligibleHolder)
		require.NoError(t, store.SetAccountStatus(to.ID, StatusActive))
	})
}

func TestCardPaymentDebitsAccountCurrency(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, USD, "100000")
	card := seedCard(t, store, account.ID, 4)

	tx, err := engine.PayWithCard(account.ID, card.ID)
	require.NoError(t, err)

	after, _ := store.GetAccount(account.ID)
	assert.Equal(t, USD, tx.Currency)
	assert.Empty(t, tx.ToRef)
	assert.True(t, tx.Amount.IsPositive())
	assert.True(t, after.Balance.Equal(account.Balance.Sub(tx.Amount)),
		"balance %s, debited %s", after.Balance, tx.Amount)
}

func TestCardPaymentExpiredCard(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, USD, "100")
	card := seedCard(t, store, account.ID, -1)

	_, err := engine.PayWithCard(account.ID, card.ID)
	assert.ErrorIs(t, err, ErrIneligibleHolder)

	after, _ := store.GetAccount(account.ID)
	assert.True(t, after.Balance.Equal(decimal.RequireFromString("100")))
	assert.Empty(t, store.GetAccountTransactions(account.ID))
}

func TestCardPaymentBlockedCard(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, USD, "100000")
	card := seedCard(t, store, account.ID, 4)
	require.NoError(t, store.SetCardStatus(card.ID, StatusBlocked))

	_, err := engine.PayWithCard(account.ID, card.ID)
	assert.ErrorIs(t, err, ErrIneligibleHolder)
}

func TestCardPaymentInsufficientFunds(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, USD, "0")
	card := seedCard(t, store, account.ID, 4)

	_, err := engine.PayWithCard(account.ID, card.ID)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestCardPaymentForeignCardRejected(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, USD, "100")
	other := seedAccount(t, store, alice.ID, USD, "100")
	card := seedCard(t, store, other.ID, 4)

	_, err := engine.PayWithCard(account.ID, card.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepayLoanPartial(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, CZK, "0")
	loan := seedLoan(t, store, alice.ID, account.ID, CZK, "500")

	tx, closed, err := engine.RepayLoan(loan.ID, decimal.RequireFromString("200"), CZK)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, CZK, tx.Currency)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("200")))

	after, ok := store.GetLoan(loan.ID)
	require.True(t, ok)
	assert.True(t, after.Principal.Equal(decimal.RequireFromString("300")))
	assert.True(t, after.RepaidTotal.Equal(decimal.RequireFromString("200")))
}

func TestRepayLoanToZeroClosesAndUnlinks(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, CZK, "0")
	loan := seedLoan(t, store, alice.ID, account.ID, CZK, "500")

	owner, _ := store.GetUser(alice.ID)
	require.Equal(t, loan.ID, owner.LoanID)

	_, closed, err := engine.RepayLoan(loan.ID, decimal.RequireFromString("500"), CZK)
	require.NoError(t, err)
	assert.True(t, closed)

	_, ok := store.GetLoan(loan.ID)
	assert.False(t, ok, "settled loan must be deleted")

	owner, _ = store.GetUser(alice.ID)
	assert.Empty(t, owner.LoanID, "owner link must be cleared with the deletion")
	assert.Empty(t, store.GetUserLoans(alice.ID))
}

func TestRepayLoanCardOwnedUnlinksCard(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, CZK, "0")
	card := seedCard(t, store, account.ID, 4)

	loan := Loan{
		ID:          GenerateID(),
		CardID:      card.ID,
		AccountID:   account.ID,
		Principal:   decimal.RequireFromString("500"),
		RepaidTotal: decimal.Zero,
		Currency:    CZK,
		TermMonths:  12,
		StartDate:   time.Now(),
	}
	tx := newRecord(TxLoanDisburse, loan.Principal, CZK, "", account.ID, "Loan disbursement")
	require.NoError(t, store.DisburseLoan(loan, loan.Principal, tx))

	linked, _ := store.GetCard(card.ID)
	require.Equal(t, loan.ID, linked.LoanID)

	_, closed, err := engine.RepayLoan(loan.ID, decimal.RequireFromString("500"), CZK)
	require.NoError(t, err)
	assert.True(t, closed)

	unlinked, _ := store.GetCard(card.ID)
	assert.Empty(t, unlinked.LoanID)
	_, ok := store.GetLoan(loan.ID)
	assert.False(t, ok)
}

func TestRepayLoanCrossCurrency(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, CZK, "0")
	loan := seedLoan(t, store, alice.ID, account.ID, CZK, "500")

	// 10 USD at 23.26 applies 232.6 CZK.
	tx, closed, err := engine.RepayLoan(loan.ID, decimal.RequireFromString("10"), USD)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, CZK, tx.Currency)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("232.6")), "got %s", tx.Amount)

	after, _ := store.GetLoan(loan.ID)
	assert.True(t, after.Principal.Equal(decimal.RequireFromString("267.4")), "got %s", after.Principal)
}

func TestRepayLoanOverRepaymentRejected(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, CZK, "0")
	loan := seedLoan(t, store, alice.ID, account.ID, CZK, "500")

	_, _, err := engine.RepayLoan(loan.ID, decimal.RequireFromString("500.01"), CZK)
	assert.ErrorIs(t, err, ErrOverRepayment)

	after, ok := store.GetLoan(loan.ID)
	require.True(t, ok)
	assert.True(t, after.Principal.Equal(decimal.RequireFromString("500")))
	assert.True(t, after.RepaidTotal.IsZero())
}

func TestRepayLoanValidation(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	alice := seedUser(t, store, "alice")
	account := seedAccount(t, store, alice.ID, CZK, "0")
	loan := seedLoan(t, store, alice.ID, account.ID, CZK, "500")

	_, _, err := engine.RepayLoan("missing", decimal.RequireFromString("10"), CZK)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = engine.RepayLoan(loan.ID, decimal.Zero, CZK)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestConvertIdentityNeedsNoRate(t *testing.T) {
	engine, _, rates := newTestEngine(t)

	// Unknown to the rate table, but identity conversion never looks it up.
	rates.mu.Lock()
	delete(rates.toUSD, CZK)
	delete(rates.fromUSD, CZK)
	rates.mu.Unlock()

	amount := decimal.RequireFromString("123.456789")
	got, err := engine.Convert(amount, CZK, CZK)
	require.NoError(t, err)
	assert.True(t, got.Equal(amount))

	_, err = engine.Convert(amount, CZK, USD)
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}

func TestConvertKeepsFullPrecision(t *testing.T) {
	engine, _, rates := newTestEngine(t)
	rates.SetRate(EUR, decimal.RequireFromString("1.0931"), decimal.RequireFromString("0.914835"))

	got, err := engine.Convert(decimal.RequireFromString("33.33"), USD, EUR)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("30.49145055")), "got %s", got)
}
