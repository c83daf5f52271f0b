package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// logger is replaced with a real zap logger in main; the nop default keeps
// tests quiet.
var logger = zap.NewNop().Sugar()

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zl.Sync()
	logger = zl.Sugar()

	cfg := LoadConfig()
	logger.Infow("starting ClearBank API", "port", cfg.Port)

	app := NewApp(cfg)

	stop := make(chan struct{})
	defer close(stop)
	app.rates.StartRefresher(cfg.RateRefreshInterval, stop)

	r := app.Routes()

	logger.Infow("server listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, loggingMiddleware(r)); err != nil {
		logger.Fatalw("server failed", "error", err)
	}
}

func (a *App) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/register", a.RegisterUser).Methods("POST")
	r.HandleFunc("/login", a.LoginUser).Methods("POST")

	r.HandleFunc("/accounts", a.CreateAccount).Methods("POST")
	r.HandleFunc("/users/{userId}/accounts", a.GetUserAccounts).Methods("GET")
	r.HandleFunc("/accounts/{accountId}/block", a.BlockAccount).Methods("POST")
	r.HandleFunc("/accounts/{accountId}/unblock", a.UnblockAccount).Methods("POST")

	r.HandleFunc("/cards", a.GenerateCard).Methods("POST")
	r.HandleFunc("/accounts/{accountId}/cards", a.GetAccountCards).Methods("GET")
	r.HandleFunc("/cards/{cardId}/block", a.BlockCard).Methods("POST")
	r.HandleFunc("/cards/{cardId}/unblock", a.UnblockCard).Methods("POST")

	r.HandleFunc("/deposits", a.Deposit).Methods("POST")
	r.HandleFunc("/transfers", a.Transfer).Methods("POST")
	r.HandleFunc("/payments/card", a.PayWithCard).Methods("POST")

	r.HandleFunc("/loans", a.ApplyLoan).Methods("POST")
	r.HandleFunc("/loans/{loanId}/repay", a.RepayLoan).Methods("POST")
	r.HandleFunc("/loans/{loanId}/schedule", a.GetLoanSchedule).Methods("GET")

	r.HandleFunc("/analytics/transactions/{accountId}", a.GetTransactions).Methods("GET")
	r.HandleFunc("/analytics/summary/{userId}", a.GetFinancialSummary).Methods("GET")

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Infow("request", "method", r.Method, "path", r.RequestURI, "duration", time.Since(start))
	})
}
