package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// App wires the HTTP surface to the store, the settlement engine and the
// mailer. Handlers decode, validate the payload shape, call through and map
// domain errors to statuses; no settlement logic lives here.
type App struct {
	cfg    Config
	store  *Store
	rates  *RateSource
	engine *SettlementEngine
	mailer *Mailer
}

func NewApp(cfg Config) *App {
	store := NewStore()
	rates := NewRateSource()
	return &App{
		cfg:    cfg,
		store:  store,
		rates:  rates,
		engine: NewSettlementEngine(store, rates, cfg),
		mailer: NewMailer(cfg),
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Errorw("error marshalling response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, code int, message string) {
	logger.Warnw("request failed", "status", code, "error", message)
	respondJSON(w, code, map[string]string{"error": message})
}

func respondDomainError(w http.ResponseWriter, err error) {
	respondError(w, httpStatus(err), err.Error())
}

func (a *App) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username, email, and password are required")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	user := User{
		ID:           GenerateID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := a.store.AddUser(user); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	go func() {
		body := fmt.Sprintf("Hello %s,\n\nThank you for registering at ClearBank.", user.Username)
		if err := a.mailer.Send(user.Email, "Welcome to ClearBank!", body); err != nil {
			logger.Warnw("registration email failed", "email", user.Email, "error", err)
		}
	}()

	logger.Infow("user registered", "username", user.Username, "id", user.ID)
	respondJSON(w, http.StatusCreated, user)
}

func (a *App) LoginUser(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	user, ok := a.store.GetUserByUsername(req.Username)
	if !ok || !CheckPasswordHash(req.Password, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	logger.Infow("user logged in", "username", user.Username)
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"user_id": user.ID,
	})
}

func (a *App) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "UserID is required")
		return
	}

	currency := USD
	if req.Currency != "" {
		parsed, err := ParseCurrency(req.Currency)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		currency = parsed
	}

	account := Account{
		ID:        GenerateID(),
		UserID:    req.UserID,
		Number:    GenerateAccountNumber(),
		Balance:   decimal.Zero,
		Currency:  currency,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}

	if err := a.store.AddAccount(account); err != nil {
		respondDomainError(w, err)
		return
	}

	logger.Infow("account created", "number", account.Number, "user", account.UserID, "currency", currency)
	respondJSON(w, http.StatusCreated, account)
}

func (a *App) GetUserAccounts(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	accounts := a.store.GetUserAccounts(userID)
	respondJSON(w, http.StatusOK, accounts)
}

func (a *App) setAccountStatus(w http.ResponseWriter, r *http.Request, status HolderStatus) {
	accountID := mux.Vars(r)["accountId"]
	if err := a.store.SetAccountStatus(accountID, status); err != nil {
		respondDomainError(w, err)
		return
	}
	logger.Infow("account status changed", "account", accountID, "status", status)
	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (a *App) BlockAccount(w http.ResponseWriter, r *http.Request) {
	a.setAccountStatus(w, r, StatusBlocked)
}

func (a *App) UnblockAccount(w http.ResponseWriter, r *http.Request) {
	a.setAccountStatus(w, r, StatusActive)
}

func (a *App) GenerateCard(w http.ResponseWriter, r *http.Request) {
	var req GenerateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if _, ok := a.store.GetAccount(req.AccountID); !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Account %s not found", req.AccountID))
		return
	}

	month, year := GenerateExpiryDate()
	card := Card{
		ID:          GenerateID(),
		AccountID:   req.AccountID,
		Number:      GenerateCardNumber(),
		ExpiryMonth: month,
		ExpiryYear:  year,
		CVV:         GenerateCVV(),
		Status:      StatusActive,
		CreatedAt:   time.Now(),
	}

	if err := a.store.AddCard(card); err != nil {
		respondDomainError(w, err)
		return
	}

	logger.Infow("card generated", "account", card.AccountID)
	respondJSON(w, http.StatusCreated, card)
}

func (a *App) GetAccountCards(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]
	if _, ok := a.store.GetAccount(accountID); !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Account %s not found", accountID))
		return
	}
	respondJSON(w, http.StatusOK, a.store.GetAccountCards(accountID))
}

func (a *App) setCardStatus(w http.ResponseWriter, r *http.Request, status HolderStatus) {
	cardID := mux.Vars(r)["cardId"]
	if err := a.store.SetCardStatus(cardID, status); err != nil {
		respondDomainError(w, err)
		return
	}
	logger.Infow("card status changed", "card", cardID, "status", status)
	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (a *App) BlockCard(w http.ResponseWriter, r *http.Request) {
	a.setCardStatus(w, r, StatusBlocked)
}

func (a *App) UnblockCard(w http.ResponseWriter, r *http.Request) {
	a.setCardStatus(w, r, StatusActive)
}

func (a *App) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := validateAmount(req.Amount); err != nil {
		respondDomainError(w, err)
		return
	}

	account, ok := a.store.GetAccount(req.ToAccountID)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Account %s not found", req.ToAccountID))
		return
	}

	tx := newRecord(TxDeposit, req.Amount, account.Currency, "", account.ID,
		fmt.Sprintf("Deposit to account %s", account.Number))
	if err := a.store.CreditAccount(account.ID, req.Amount, tx); err != nil {
		respondDomainError(w, err)
		return
	}

	logger.Infow("deposit processed", "account", account.ID, "amount", req.Amount.String())
	respondJSON(w, http.StatusOK, tx)
}

func (a *App) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	tx, err := a.engine.TransferBetweenAccounts(req.FromAccountID, req.ToAccountNumber, req.Amount, req.Description)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (a *App) PayWithCard(w http.ResponseWriter, r *http.Request) {
	var req CardPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	tx, err := a.engine.PayWithCard(req.AccountID, req.CardID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (a *App) ApplyLoan(w http.ResponseWriter, r *http.Request) {
	var req ApplyLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if req.Amount.LessThanOrEqual(decimal.Zero) || req.TermMonths <= 0 {
		respondError(w, http.StatusBadRequest, "Loan amount and term must be positive")
		return
	}
	if (req.UserID == "") == (req.CardID == "") {
		respondError(w, http.StatusBadRequest, "Loan must belong to exactly one user or one card")
		return
	}

	account, ok := a.store.GetAccount(req.AccountID)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Account %s not found", req.AccountID))
		return
	}

	currency := account.Currency
	if req.Currency != "" {
		parsed, err := ParseCurrency(req.Currency)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		currency = parsed
	}

	interestRate := a.rates.KeyRate().Add(a.cfg.LoanMarginPercent)
	startDate := time.Now()
	monthlyPayment := CalculateMonthlyPayment(req.Amount, interestRate, req.TermMonths)

	loan := Loan{
		ID:              GenerateID(),
		UserID:          req.UserID,
		CardID:          req.CardID,
		AccountID:       req.AccountID,
		Principal:       req.Amount,
		RepaidTotal:     decimal.Zero,
		Currency:        currency,
		InterestRate:    interestRate,
		TermMonths:      req.TermMonths,
		StartDate:       startDate,
		PaymentSchedule: GeneratePaymentSchedule(req.Amount, interestRate, req.TermMonths, startDate, monthlyPayment),
	}

	credit, err := a.engine.Convert(req.Amount, currency, account.Currency)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	tx := newRecord(TxLoanDisburse, credit, account.Currency, "", account.ID,
		fmt.Sprintf("Loan disbursement (ID: %s)", loan.ID))
	if err := a.store.DisburseLoan(loan, credit, tx); err != nil {
		respondDomainError(w, err)
		return
	}

	logger.Infow("loan approved", "loan", loan.ID, "amount", req.Amount.String(),
		"rate", interestRate.String(), "term_months", req.TermMonths)
	respondJSON(w, http.StatusCreated, loan)
}

func (a *App) RepayLoan(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	var req RepayLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	currency, err := ParseCurrency(req.Currency)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	tx, closed, err := a.engine.RepayLoan(loanID, req.Amount, currency)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": tx,
		"loan_closed": closed,
	})
}

func (a *App) GetLoanSchedule(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]
	loan, ok := a.store.GetLoan(loanID)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Loan %s not found", loanID))
		return
	}
	respondJSON(w, http.StatusOK, loan.PaymentSchedule)
}

func (a *App) GetTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]
	if _, ok := a.store.GetAccount(accountID); !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Account %s not found", accountID))
		return
	}

	transactions := a.store.GetAccountTransactions(accountID)
	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].Timestamp.After(transactions[j].Timestamp)
	})
	respondJSON(w, http.StatusOK, transactions)
}

func (a *App) GetFinancialSummary(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	accounts := a.store.GetUserAccounts(userID)
	loans := a.store.GetUserLoans(userID)

	totalBalance := decimal.Zero
	for _, acc := range accounts {
		totalBalance = totalBalance.Add(acc.Balance)
	}

	totalLoanDebt := decimal.Zero
	for _, loan := range loans {
		totalLoanDebt = totalLoanDebt.Add(loan.Principal)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":               userID,
		"total_account_balance": totalBalance,
		"number_of_accounts":    len(accounts),
		"total_loan_debt":       totalLoanDebt,
		"active_loans":          len(loans),
	})
}
