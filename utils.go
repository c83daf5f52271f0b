package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func GenerateID() string {
	return uuid.NewString()
}

// GenerateAccountNumber produces a 20-digit demo account number with a fixed
// bank prefix.
func GenerateAccountNumber() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(9000000000))
	return fmt.Sprintf("40817810%010d", n.Int64()+1000000000)
}

func GenerateCardNumber() string {
	n1, _ := rand.Int(rand.Reader, big.NewInt(9000))
	n2, _ := rand.Int(rand.Reader, big.NewInt(10000))
	n3, _ := rand.Int(rand.Reader, big.NewInt(10000))
	n4, _ := rand.Int(rand.Reader, big.NewInt(10000))
	return fmt.Sprintf("4%03d%04d%04d%04d", n1.Int64()+100, n2.Int64(), n3.Int64(), n4.Int64())
}

func GenerateCVV() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(900))
	return fmt.Sprintf("%03d", n.Int64()+100)
}

// GenerateExpiryDate returns a month/year four years out.
func GenerateExpiryDate() (month, year int) {
	now := time.Now()
	return int(now.Month()), now.Year() + 4
}

var twelve = decimal.NewFromInt(12)
var oneHundred = decimal.NewFromInt(100)

// CalculateMonthlyPayment computes the annuity payment for a loan at the
// given annual percentage rate.
func CalculateMonthlyPayment(principal, annualRate decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths <= 0 {
		return decimal.Zero
	}

	monthlyRate := annualRate.Div(twelve).Div(oneHundred)
	if monthlyRate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(termMonths)))
	}

	growth := decimal.NewFromInt(1).Add(monthlyRate).Pow(decimal.NewFromInt(int64(termMonths)))
	denominator := growth.Sub(decimal.NewFromInt(1))
	if denominator.IsZero() {
		return decimal.Zero
	}

	return principal.Mul(monthlyRate.Mul(growth).Div(denominator)).RoundBank(2)
}

// GeneratePaymentSchedule builds the amortization rows for a loan. The last
// row absorbs rounding drift so the principal parts sum back to the loan
// amount exactly.
func GeneratePaymentSchedule(principal, annualRate decimal.Decimal, termMonths int, startDate time.Time, monthlyPayment decimal.Decimal) []Payment {
	schedule := make([]Payment, 0, termMonths)
	remaining := principal
	monthlyRate := annualRate.Div(twelve).Div(oneHundred)

	for i := 0; i < termMonths; i++ {
		interestPart := remaining.Mul(monthlyRate).RoundBank(2)
		principalPart := monthlyPayment.Sub(interestPart)
		payment := monthlyPayment

		if i == termMonths-1 || remaining.Sub(principalPart).LessThanOrEqual(decimal.Zero) {
			principalPart = remaining
			payment = principalPart.Add(interestPart).RoundBank(2)
		}

		schedule = append(schedule, Payment{
			DueDate:       startDate.AddDate(0, i+1, 0),
			Amount:        payment,
			InterestPart:  interestPart,
			PrincipalPart: principalPart,
		})

		remaining = remaining.Sub(principalPart)
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
	}

	return schedule
}
