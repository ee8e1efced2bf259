package core

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInsufficientUsers = errors.New("at least two users are required")

var hundred = decimal.NewFromInt(100)

// Bucket is one group of an aggregation.
type Bucket struct {
	Name    string
	Total   decimal.Decimal
	Count   int
	Percent float64
}

type Summary struct {
	Total      decimal.Decimal
	Count      int
	Average    decimal.Decimal
	ByCategory []Bucket
	ByUser     []Bucket
}

// Summarize aggregates records. ok is false when there is nothing to report.
func Summarize(records []Expense) (Summary, bool) {
	if len(records) == 0 {
		return Summary{}, false
	}
	total := sum(records)
	return Summary{
		Total:      total,
		Count:      len(records),
		Average:    Average(total, len(records)),
		ByCategory: group(records, total, func(e Expense) string { return e.Category }),
		ByUser:     group(records, total, func(e Expense) string { return e.User }),
	}, true
}

// RankUsers orders users by total spend, highest first.
func RankUsers(records []Expense) ([]Bucket, error) {
	users := group(records, sum(records), func(e Expense) string { return e.User })
	if len(users) < 2 {
		return nil, ErrInsufficientUsers
	}
	return users, nil
}

// TopCategories returns the limit largest categories; limit <= 0 returns all.
func TopCategories(records []Expense, limit int) []Bucket {
	cats := group(records, sum(records), func(e Expense) string { return e.Category })
	if limit > 0 && len(cats) > limit {
		cats = cats[:limit]
	}
	return cats
}

// Percent returns part as a share of total, 0 when total is zero.
func Percent(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Div(total).Mul(hundred).InexactFloat64()
}

// ProjectMonthly extrapolates a weekly total to a 30-day month.
func ProjectMonthly(weekTotal decimal.Decimal) decimal.Decimal {
	return weekTotal.Mul(decimal.NewFromInt(30)).Div(decimal.NewFromInt(7))
}

type UserComparison struct {
	Bucket
	Average       decimal.Decimal
	TopCategories []Bucket
}

// CompareUsers breaks records down per user, largest spender first.
func CompareUsers(records []Expense) []UserComparison {
	users := group(records, sum(records), func(e Expense) string { return e.User })
	out := make([]UserComparison, 0, len(users))
	for _, u := range users {
		own := Filter(records, "", time.Time{}, FilterOptions{User: u.Name, IncludeIgnored: true})
		out = append(out, UserComparison{
			Bucket:        u,
			Average:       Average(u.Total, u.Count),
			TopCategories: TopCategories(own, 3),
		})
	}
	return out
}

type FamilyReport struct {
	WeekTotal     decimal.Decimal
	MonthTotal    decimal.Decimal
	Projection    decimal.Decimal
	ByUser        []Bucket
	TopCategories []Bucket
}

// BuildFamilyReport summarizes the household's month. Records must already
// exclude ignored entries. ok is false when the month has no data.
func BuildFamilyReport(records []Expense, now time.Time) (FamilyReport, bool) {
	month := Filter(records, PeriodMonth, now, FilterOptions{IncludeIgnored: true})
	if len(month) == 0 {
		return FamilyReport{}, false
	}
	week := Filter(records, PeriodWeek, now, FilterOptions{IncludeIgnored: true})
	weekTotal := sum(week)
	monthTotal := sum(month)
	return FamilyReport{
		WeekTotal:     weekTotal,
		MonthTotal:    monthTotal,
		Projection:    ProjectMonthly(weekTotal),
		ByUser:        group(month, monthTotal, func(e Expense) string { return e.User }),
		TopCategories: TopCategories(month, 5),
	}, true
}

// Recent returns the user's latest records, newest first.
func Recent(records []Expense, user string, limit int) []Expense {
	own := make([]Expense, 0)
	for _, r := range records {
		if r.User == user {
			own = append(own, r)
		}
	}
	sort.SliceStable(own, func(i, j int) bool {
		return own[i].Timestamp.After(own[j].Timestamp)
	})
	if limit > 0 && len(own) > limit {
		own = own[:limit]
	}
	return own
}

func sum(records []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// group buckets records by key, sorted by total descending. Ties keep the
// order in which keys were first seen.
func group(records []Expense, total decimal.Decimal, key func(Expense) string) []Bucket {
	index := make(map[string]int)
	buckets := make([]Bucket, 0)
	for _, r := range records {
		k := key(r)
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, Bucket{Name: k, Total: decimal.Zero})
		}
		buckets[i].Total = buckets[i].Total.Add(r.Amount)
		buckets[i].Count++
	}
	for i := range buckets {
		buckets[i].Percent = Percent(buckets[i].Total, total)
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Total.GreaterThan(buckets[j].Total)
	})
	return buckets
}
