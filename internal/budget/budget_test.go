package budget

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTrackerSetRejectsNonPositive(t *testing.T) {
	tr := NewTracker()
	for _, v := range []int64{0, -100} {
		if err := tr.Set(decimal.NewFromInt(v)); !errors.Is(err, ErrInvalidBudget) {
			t.Fatalf("%d: expected ErrInvalidBudget, got %v", v, err)
		}
	}
	if _, ok := tr.Get(); ok {
		t.Fatal("budget should still be unset")
	}
}

func TestStatusNotConfigured(t *testing.T) {
	if _, err := NewTracker().Status(decimal.NewFromInt(10), time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	tr := NewTracker()
	_ = tr.Set(decimal.NewFromInt(10000))
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC) // 20 days left in April

	st, err := tr.Status(decimal.NewFromInt(4000), now)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Remaining.Equal(decimal.NewFromInt(6000)) || st.PercentUsed != 40 || st.DaysRemaining != 20 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.DailyAllowance == nil || !st.DailyAllowance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("daily allowance = %v", st.DailyAllowance)
	}
	if st.Exceeded() {
		t.Fatal("not exceeded")
	}
}

func TestStatusExceededAndLastDay(t *testing.T) {
	tr := NewTracker()
	_ = tr.Set(decimal.NewFromInt(1000))

	st, _ := tr.Status(decimal.NewFromInt(1200), time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	if !st.Exceeded() || st.DailyAllowance != nil || !st.Remaining.Equal(decimal.NewFromInt(-200)) {
		t.Fatalf("unexpected exceeded status: %+v", st)
	}

	st, _ = tr.Status(decimal.NewFromInt(100), time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC))
	if st.DaysRemaining != 0 || st.DailyAllowance != nil {
		t.Fatalf("last day must not report an allowance: %+v", st)
	}
}

func TestTrackerConcurrentSet(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			_ = tr.Set(decimal.NewFromInt(v))
			tr.Get()
		}(int64(i))
	}
	wg.Wait()
	if _, ok := tr.Get(); !ok {
		t.Fatal("expected a configured budget")
	}
}
