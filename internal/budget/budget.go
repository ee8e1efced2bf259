// Package budget tracks the household's monthly spending target.
package budget

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"findot/internal/core"
)

var (
	ErrNotConfigured = errors.New("budget not configured")
	ErrInvalidBudget = errors.New("budget must be positive")
)

// Tracker holds a single process-wide target. It is not persisted.
type Tracker struct {
	mu     sync.Mutex
	amount decimal.Decimal
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Set(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidBudget
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.amount = amount
	return nil
}

// Get returns the target and whether one is configured.
func (t *Tracker) Get() (decimal.Decimal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.amount, t.amount.IsPositive()
}

type Status struct {
	Budget        decimal.Decimal
	Spent         decimal.Decimal
	Remaining     decimal.Decimal
	PercentUsed   float64
	DaysRemaining int
	// DailyAllowance is nil when no days remain or the budget is used up.
	DailyAllowance *decimal.Decimal
}

func (s Status) Exceeded() bool {
	return s.Spent.GreaterThan(s.Budget)
}

// Status compares spent this month against the target. Days remaining
// excludes today.
func (t *Tracker) Status(spent decimal.Decimal, now time.Time) (Status, error) {
	amount, ok := t.Get()
	if !ok {
		return Status{}, ErrNotConfigured
	}
	remaining := amount.Sub(spent)
	days := core.DaysInMonth(now) - now.Day()
	st := Status{
		Budget:        amount,
		Spent:         spent,
		Remaining:     remaining,
		PercentUsed:   core.Percent(spent, amount),
		DaysRemaining: days,
	}
	if days > 0 && remaining.IsPositive() {
		daily := remaining.Div(decimal.NewFromInt(int64(days)))
		st.DailyAllowance = &daily
	}
	return st, nil
}
