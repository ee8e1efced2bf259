package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"findot/internal/actions"
	"findot/internal/core"
	"findot/internal/events"
	"findot/internal/log"
	"findot/internal/metrics"
	"findot/internal/sheets"
)

// ErrLedger wraps every failure to reach the ledger store.
var ErrLedger = errors.New("ledger unavailable")

// Submitter identifies who sent a message.
type Submitter struct {
	ID   int64
	Name string
}

// ExpenseService turns messages into ledger rows and reads them back.
type ExpenseService struct {
	ledger  sheets.LedgerStore
	parser  *core.Parser
	actions *actions.Cache
	events  events.Publisher
	loc     *time.Location
	logger  *log.Logger
	clock   func() time.Time
}

func NewExpenseService(ledger sheets.LedgerStore, parser *core.Parser, actionCache *actions.Cache, pub events.Publisher, loc *time.Location, logger *log.Logger) *ExpenseService {
	if pub == nil {
		pub = events.Nop{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &ExpenseService{
		ledger:  ledger,
		parser:  parser,
		actions: actionCache,
		events:  pub,
		loc:     loc,
		logger:  logger.WithComponent(log.ComponentExpense),
		clock:   time.Now,
	}
}

// Now returns the current time in the ledger's location.
func (s *ExpenseService) Now() time.Time {
	return s.clock().In(s.loc)
}

// LoadAll reads every record. Malformed rows are skipped; only transport
// failures are returned.
func (s *ExpenseService) LoadAll(ctx context.Context) ([]core.Expense, error) {
	start := time.Now()
	rows, err := s.ledger.ReadRows(ctx)
	metrics.LedgerCalls.WithLabelValues(log.OpRead, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: read rows: %w", ErrLedger, err)
	}

	out := make([]core.Expense, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row.Cells) < 3 {
			continue
		}
		e, err := core.ExpenseFromCells(row.Ref, row.Cells, s.loc)
		if err == nil && !e.Amount.IsPositive() {
			err = core.ErrInvalidAmount
		}
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed ledger row",
				"row", i+1, log.FieldRowRef, string(row.Ref), log.FieldError, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Save parses text, appends the expense and remembers it for undo.
// Parse failures come back as *core.ParseError.
func (s *ExpenseService) Save(ctx context.Context, text string, who Submitter) (core.Expense, error) {
	parsed, err := s.parser.Parse(text)
	if err != nil {
		var pe *core.ParseError
		if errors.As(err, &pe) {
			metrics.ParseFailures.WithLabelValues(pe.Kind.Error()).Inc()
		}
		return core.Expense{}, err
	}

	now := s.Now().Truncate(time.Second)
	user := who.Name
	if user == "" {
		user = core.UnknownUser
	}
	e := core.Expense{
		Timestamp: now,
		Category:  parsed.Category,
		Amount:    parsed.Amount,
		User:      user,
		Comment:   parsed.Comment,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	start := time.Now()
	ref, err := s.ledger.AppendRow(ctx, e.Cells())
	metrics.LedgerCalls.WithLabelValues(log.OpAppend, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to append expense", log.NewFields().
			WithOperation(log.OpAppend).
			WithExpense(e.User, e.Category, e.Amount.String(), "").
			WithError(err).ToSlice()...)
		return core.Expense{}, fmt.Errorf("%w: append: %w", ErrLedger, err)
	}
	e.Ref = ref
	metrics.ExpensesSaved.Inc()

	if s.actions != nil {
		s.actions.Record(who.ID, actions.Action{CreatedAt: now, Expense: e})
	}
	if err := s.events.Publish(ctx, events.LedgerEvent{Kind: events.KindCreated, Ref: ref, Cells: e.Cells(), OccurredAt: now}); err != nil {
		// the row is stored; a missed mirror event is not the user's problem
		s.logger.WarnContext(ctx, "Failed to publish ledger event", log.FieldRowRef, string(ref), log.FieldError, err)
	}

	s.logger.InfoContext(ctx, "Expense saved", log.NewFields().
		WithOperation(log.OpAppend).
		WithExpense(e.User, e.Category, e.Amount.String(), string(ref)).ToSlice()...)
	return e, nil
}

// Recent returns the user's latest records, ignored ones included.
func (s *ExpenseService) Recent(ctx context.Context, user string, limit int) ([]core.Expense, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return core.Recent(all, user, limit), nil
}
