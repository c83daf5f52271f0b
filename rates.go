package main

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource supplies conversion rates between supported currencies. Both
// directions against USD are seeded explicitly; cross rates between two
// non-USD currencies are derived by multiplying through USD, so no lookup
// ever divides. The table is reseeded on a schedule by the refresher,
// standing in for an external rate feed.
type RateSource struct {
	mu        sync.RWMutex
	toUSD     map[Currency]decimal.Decimal // rate c -> USD
	fromUSD   map[Currency]decimal.Decimal // rate USD -> c
	keyRate   decimal.Decimal
	refreshed time.Time
}

func NewRateSource() *RateSource {
	rs := &RateSource{}
	rs.Refresh()
	return rs
}

// Rate returns the multiplier converting an amount expressed in from into to.
func (rs *RateSource) Rate(from, to Currency) (decimal.Decimal, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	fromUSD, okFrom := rs.toUSD[from]
	usdTo, okTo := rs.fromUSD[to]
	if !okFrom || !okTo {
		return decimal.Decimal{}, ErrUnsupportedCurrency
	}

	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if to == USD {
		return fromUSD, nil
	}
	if from == USD {
		return usdTo, nil
	}

	return fromUSD.Mul(usdTo), nil
}

// KeyRate returns the central-bank key rate (percent) used to price loans.
func (rs *RateSource) KeyRate() decimal.Decimal {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.keyRate
}

// LastRefreshed reports when the table was last reseeded.
func (rs *RateSource) LastRefreshed() time.Time {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.refreshed
}

// SetRate overrides one directed pair against USD. Used by tests; a real
// deployment would replace Refresh with a feed client.
func (rs *RateSource) SetRate(c Currency, toUSD, fromUSD decimal.Decimal) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.toUSD[c] = toUSD
	rs.fromUSD[c] = fromUSD
}

// Refresh reseeds the rate table. The demo pins reference values the same
// way the upstream key-rate fetch is pinned for local runs.
func (rs *RateSource) Refresh() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	one := decimal.NewFromInt(1)
	rs.toUSD = map[Currency]decimal.Decimal{
		USD: one,
		EUR: decimal.RequireFromString("1.09"),
		RUB: decimal.RequireFromString("0.0125"),
		CZK: decimal.RequireFromString("0.043"),
	}
	rs.fromUSD = map[Currency]decimal.Decimal{
		USD: one,
		EUR: decimal.RequireFromString("0.92"),
		RUB: decimal.RequireFromString("80"),
		CZK: decimal.RequireFromString("23.26"),
	}
	rs.keyRate = decimal.NewFromInt(16)
	rs.refreshed = time.Now()
}

// StartRefresher reseeds the table every interval until stop is closed.
func (rs *RateSource) StartRefresher(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rs.Refresh()
				logger.Infow("exchange rates refreshed", "at", rs.LastRefreshed())
			case <-stop:
				return
			}
		}
	}()
}
