package main

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Store is the in-memory persistence collaborator. All settlement mutations
// go through the atomic primitives at the bottom of this file: each one takes
// the write lock, re-checks funds against the live balance, applies every
// balance change and appends the transaction record before releasing. Two
// concurrent settlements against the same holder therefore cannot both pass
// the funds check on a stale snapshot, and no partial mutation is ever
// observable.
type Store struct {
	mu           sync.RWMutex
	users        map[string]User
	accounts     map[string]Account
	cards        map[string]Card
	loans        map[string]Loan
	transactions []Transaction
	userIndex    map[string]string   // username -> userID
	emailIndex   map[string]string   // email -> userID
	numberIndex  map[string]string   // account number -> accountID
	accountIndex map[string][]string // userID -> accountIDs
	cardIndex    map[string][]string // accountID -> cardIDs
	loanIndex    map[string][]string // userID -> loanIDs
}

func NewStore() *Store {
	return &Store{
		users:        make(map[string]User),
		accounts:     make(map[string]Account),
		cards:        make(map[string]Card),
		loans:        make(map[string]Loan),
		transactions: make([]Transaction, 0),
		userIndex:    make(map[string]string),
		emailIndex:   make(map[string]string),
		numberIndex:  make(map[string]string),
		accountIndex: make(map[string][]string),
		cardIndex:    make(map[string][]string),
		loanIndex:    make(map[string][]string),
	}
}

func (s *Store) AddUser(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.userIndex[user.Username]; exists {
		return fmt.Errorf("username %q already taken", user.Username)
	}
	if _, exists := s.emailIndex[user.Email]; exists {
		return fmt.Errorf("email %q already registered", user.Email)
	}

	s.users[user.ID] = user
	s.userIndex[user.Username] = user.ID
	s.emailIndex[user.Email] = user.ID
	return nil
}

func (s *Store) GetUser(userID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	return user, ok
}

func (s *Store) GetUserByUsername(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.userIndex[username]
	if !ok {
		return User{}, false
	}
	user, ok := s.users[userID]
	return user, ok
}

func (s *Store) AddAccount(account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[account.UserID]; !exists {
		return fmt.Errorf("user %s: %w", account.UserID, ErrNotFound)
	}

	s.accounts[account.ID] = account
	s.numberIndex[account.Number] = account.ID
	s.accountIndex[account.UserID] = append(s.accountIndex[account.UserID], account.ID)
	return nil
}

func (s *Store) GetAccount(accountID string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	return acc, ok
}

func (s *Store) GetAccountByNumber(number string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.numberIndex[number]
	if !ok {
		return Account{}, false
	}
	acc, ok := s.accounts[id]
	return acc, ok
}

func (s *Store) GetUserAccounts(userID string) []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.accountIndex[userID]
	accounts := make([]Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := s.accounts[id]; ok {
			accounts = append(accounts, acc)
		}
	}
	return accounts
}

func (s *Store) SetAccountStatus(accountID string, status HolderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	acc.Status = status
	s.accounts[accountID] = acc
	return nil
}

func (s *Store) AddCard(card Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[card.AccountID]; !exists {
		return fmt.Errorf("account %s: %w", card.AccountID, ErrNotFound)
	}

	s.cards[card.ID] = card
	s.cardIndex[card.AccountID] = append(s.cardIndex[card.AccountID], card.ID)
	return nil
}

func (s *Store) GetCard(cardID string) (Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[cardID]
	return card, ok
}

func (s *Store) GetAccountCards(accountID string) []Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.cardIndex[accountID]
	cards := make([]Card, 0, len(ids))
	for _, id := range ids {
		if card, ok := s.cards[id]; ok {
			cards = append(cards, card)
		}
	}
	return cards
}

func (s *Store) SetCardStatus(cardID string, status HolderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[cardID]
	if !ok {
		return fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}
	card.Status = status
	s.cards[cardID] = card
	return nil
}

func (s *Store) GetLoan(loanID string) (Loan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[loanID]
	return loan, ok
}

func (s *Store) GetUserLoans(userID string) []Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.loanIndex[userID]
	loans := make([]Loan, 0, len(ids))
	for _, id := range ids {
		if loan, ok := s.loans[id]; ok {
			loans = append(loans, loan)
		}
	}
	return loans
}

func (s *Store) GetAccountTransactions(accountID string) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var txs []Transaction
	for _, tx := range s.transactions {
		if tx.FromRef == accountID || tx.ToRef == accountID {
			txs = append(txs, tx)
		}
	}
	return txs
}

// TransferFunds debits one account and credits another as a single unit.
// The funds check runs against the live balance under the write lock; the
// record lands in the same critical section.
func (s *Store) TransferFunds(fromID, toID string, debit, credit decimal.Decimal, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.accounts[fromID]
	if !ok {
		return fmt.Errorf("account %s: %w", fromID, ErrNotFound)
	}
	to, ok := s.accounts[toID]
	if !ok {
		return fmt.Errorf("account %s: %w", toID, ErrNotFound)
	}

	if from.Balance.LessThan(debit) {
		return ErrInsufficientFunds
	}

	from.Balance = from.Balance.Sub(debit)
	to.Balance = to.Balance.Add(credit)
	s.accounts[fromID] = from
	s.accounts[toID] = to
	s.transactions = append(s.transactions, tx)
	return nil
}

// DebitAccount removes funds with no counterparty (card payment).
func (s *Store) DebitAccount(accountID string, amount decimal.Decimal, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if acc.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}

	acc.Balance = acc.Balance.Sub(amount)
	s.accounts[accountID] = acc
	s.transactions = append(s.transactions, tx)
	return nil
}

// CreditAccount adds funds arriving from outside the system (deposit, loan
// disbursement).
func (s *Store) CreditAccount(accountID string, amount decimal.Decimal, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	acc.Balance = acc.Balance.Add(amount)
	s.accounts[accountID] = acc
	s.transactions = append(s.transactions, tx)
	return nil
}

// DisburseLoan links the loan to its owner, credits the target account with
// credit (already expressed in the account's currency) and records the
// disbursement, all under one lock. An owner already carrying a loan keeps
// it; a second application fails.
func (s *Store) DisburseLoan(loan Loan, credit decimal.Decimal, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[loan.AccountID]
	if !ok {
		return fmt.Errorf("account %s: %w", loan.AccountID, ErrNotFound)
	}

	switch {
	case loan.UserID != "":
		user, ok := s.users[loan.UserID]
		if !ok {
			return fmt.Errorf("user %s: %w", loan.UserID, ErrNotFound)
		}
		if user.LoanID != "" {
			return fmt.Errorf("user %s already has an open loan", loan.UserID)
		}
		user.LoanID = loan.ID
		s.users[loan.UserID] = user
		s.loanIndex[loan.UserID] = append(s.loanIndex[loan.UserID], loan.ID)
	case loan.CardID != "":
		card, ok := s.cards[loan.CardID]
		if !ok {
			return fmt.Errorf("card %s: %w", loan.CardID, ErrNotFound)
		}
		if card.LoanID != "" {
			return fmt.Errorf("card %s already has an open loan", loan.CardID)
		}
		card.LoanID = loan.ID
		s.cards[loan.CardID] = card
	default:
		return fmt.Errorf("loan %s has no owner", loan.ID)
	}

	s.loans[loan.ID] = loan
	acc.Balance = acc.Balance.Add(credit)
	s.accounts[loan.AccountID] = acc
	s.transactions = append(s.transactions, tx)
	return nil
}

// SettleLoan applies a converted repayment to the loan. The over-repayment
// check runs against the live principal under the write lock, mirroring the
// funds re-check in TransferFunds, so two concurrent repayments cannot both
// pass validation on a stale snapshot. Reaching zero principal deletes the
// loan and clears the owner's link in the same critical section, so the link
// and a settled loan never coexist.
func (s *Store) SettleLoan(loanID string, amount, converted decimal.Decimal, tx Transaction) (closed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok {
		return false, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}

	// amount is the pre-conversion figure; the rejection rule compares it
	// against the remaining principal directly.
	if amount.GreaterThan(loan.Principal) {
		return false, ErrOverRepayment
	}

	loan.RepaidTotal = loan.RepaidTotal.Add(converted)
	loan.Principal = loan.Principal.Sub(converted)

	if loan.Principal.LessThanOrEqual(decimal.Zero) {
		delete(s.loans, loanID)
		s.unlinkLoanOwner(loan)
		s.transactions = append(s.transactions, tx)
		return true, nil
	}

	s.loans[loanID] = loan
	s.transactions = append(s.transactions, tx)
	return false, nil
}

func (s *Store) unlinkLoanOwner(loan Loan) {
	if loan.UserID != "" {
		if user, ok := s.users[loan.UserID]; ok && user.LoanID == loan.ID {
			user.LoanID = ""
			s.users[loan.UserID] = user
		}
		ids := s.loanIndex[loan.UserID]
		for i, id := range ids {
			if id == loan.ID {
				s.loanIndex[loan.UserID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	if loan.CardID != "" {
		if card, ok := s.cards[loan.CardID]; ok && card.LoanID == loan.ID {
			card.LoanID = ""
			s.cards[loan.CardID] = card
		}
	}
}
