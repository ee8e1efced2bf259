package core

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// IgnoreMarker prefixes the comment of a record excluded from statistics.
	IgnoreMarker = "[IGNORED]"

	// TimestampLayout is the ledger timestamp format, local to the configured zone.
	TimestampLayout = "2006-01-02 15:04:05"

	UnknownUser = "Unknown"
)

type (
	// RowRef identifies a single ledger row independently of its position.
	RowRef string

	Expense struct {
		Ref       RowRef
		Timestamp time.Time
		Category  string
		Amount    decimal.Decimal
		User      string
		Comment   string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

func (e Expense) Validate() error {
	if e.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Ignored reports whether the comment carries the ignore marker.
func (e Expense) Ignored() bool {
	return IsIgnored(e.Comment)
}

// Cells renders the expense in ledger column order.
func (e Expense) Cells() []string {
	return []string{
		e.Timestamp.Format(TimestampLayout),
		e.Category,
		e.Amount.String(),
		e.User,
		e.Comment,
	}
}

func IsIgnored(comment string) bool {
	return strings.Contains(comment, IgnoreMarker)
}

// MarkIgnored prefixes comment with the ignore marker. Comments that already
// carry it are returned unchanged.
func MarkIgnored(comment string) string {
	if IsIgnored(comment) {
		return comment
	}
	return strings.TrimSpace(IgnoreMarker + " " + comment)
}

// DisplayName picks the handle, then the first name, then the numeric id.
func DisplayName(handle, firstName string, id int64) string {
	if h := strings.TrimSpace(handle); h != "" {
		return h
	}
	if n := strings.TrimSpace(firstName); n != "" {
		return n
	}
	if id != 0 {
		return strconv.FormatInt(id, 10)
	}
	return UnknownUser
}

// ExpenseFromCells decodes a ledger row. Missing trailing cells are treated
// as empty; a blank user becomes UnknownUser.
func ExpenseFromCells(ref RowRef, cells []string, loc *time.Location) (Expense, error) {
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(TimestampLayout, cell(0), loc)
	if err != nil {
		return Expense{}, ErrInvalidTimestamp
	}
	amount, err := ParseAmount(cell(2))
	if err != nil {
		return Expense{}, err
	}
	user := cell(3)
	if user == "" {
		user = UnknownUser
	}
	return Expense{
		Ref:       ref,
		Timestamp: ts,
		Category:  cell(1),
		Amount:    amount,
		User:      user,
		Comment:   cell(4),
	}, nil
}
