package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"findot/internal/core"
	"findot/internal/events"
	"findot/internal/log"
	"findot/internal/sheets"
)

// Service applies undo and ignore to the ledger row behind a cached action.
type Service struct {
	cache  *Cache
	ledger sheets.LedgerStore
	events events.Publisher
	logger *log.Logger
	now    func() time.Time
}

func NewService(c *Cache, ledger sheets.LedgerStore, pub events.Publisher, logger *log.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		cache:  c,
		ledger: ledger,
		events: pub,
		logger: logger.WithComponent(log.ComponentActions),
		now:    time.Now,
	}
}

// Window is how long after saving an action can still be undone.
func (s *Service) Window() time.Duration { return s.cache.Window() }

// Undo deletes the row of the user's last action.
func (s *Service) Undo(ctx context.Context, userID int64) (Action, error) {
	a, err := s.current(userID)
	if err != nil {
		return Action{}, err
	}
	if err := s.ledger.DeleteRow(ctx, a.Expense.Ref); err != nil {
		return Action{}, s.ledgerFailure(ctx, userID, a, log.OpUndo, err)
	}
	s.cache.Forget(userID, a)
	s.publish(ctx, events.LedgerEvent{Kind: events.KindDeleted, Ref: a.Expense.Ref, OccurredAt: s.now()})
	s.logger.InfoContext(ctx, "Expense undone", s.fields(userID, a, log.OpUndo)...)
	return a, nil
}

// Ignore marks the row of the user's last action as excluded from
// statistics. Marking an already ignored row changes nothing.
func (s *Service) Ignore(ctx context.Context, userID int64) (Action, error) {
	a, err := s.current(userID)
	if err != nil {
		return Action{}, err
	}
	comment, err := s.currentComment(ctx, a.Expense.Ref)
	if err != nil {
		return Action{}, s.ledgerFailure(ctx, userID, a, log.OpIgnore, err)
	}
	marked := core.MarkIgnored(comment)
	if marked != comment {
		if err := s.ledger.UpdateCell(ctx, a.Expense.Ref, sheets.ColComment, marked); err != nil {
			return Action{}, s.ledgerFailure(ctx, userID, a, log.OpIgnore, err)
		}
	}
	s.cache.Forget(userID, a)
	a.Expense.Comment = marked
	s.publish(ctx, events.LedgerEvent{Kind: events.KindIgnored, Ref: a.Expense.Ref, Cells: a.Expense.Cells(), OccurredAt: s.now()})
	s.logger.InfoContext(ctx, "Expense ignored", s.fields(userID, a, log.OpIgnore)...)
	return a, nil
}

// current returns the live action, dropping it when the window has passed.
func (s *Service) current(userID int64) (Action, error) {
	a, err := s.cache.Peek(userID)
	if err != nil {
		return Action{}, err
	}
	if s.cache.IsExpired(a, s.now()) {
		s.cache.Forget(userID, a)
		return Action{}, ErrExpired
	}
	if a.Expense.Ref == "" {
		s.cache.Forget(userID, a)
		return Action{}, ErrNotFound
	}
	return a, nil
}

func (s *Service) currentComment(ctx context.Context, ref core.RowRef) (string, error) {
	rows, err := s.ledger.ReadRows(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if r.Ref != ref {
			continue
		}
		if len(r.Cells) > int(sheets.ColComment) {
			return r.Cells[sheets.ColComment], nil
		}
		return "", nil
	}
	return "", sheets.ErrRowNotFound
}

// ledgerFailure maps a store error. A vanished row also drops the cached
// action; transport errors keep it so the user can retry.
func (s *Service) ledgerFailure(ctx context.Context, userID int64, a Action, op string, err error) error {
	if errors.Is(err, sheets.ErrRowNotFound) {
		s.cache.Forget(userID, a)
		s.logger.WarnContext(ctx, "Recorded row is gone", s.fields(userID, a, op)...)
		return ErrNotFound
	}
	s.logger.ErrorContext(ctx, "Ledger call failed", append(s.fields(userID, a, op), log.FieldError, err)...)
	return fmt.Errorf("%s %s: %w", op, a.Expense.Ref, err)
}

func (s *Service) publish(ctx context.Context, ev events.LedgerEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			log.FieldEvent, string(ev.Kind), log.FieldRowRef, string(ev.Ref), log.FieldError, err)
	}
}

func (s *Service) fields(userID int64, a Action, op string) []any {
	f := log.NewFields().
		WithOperation(op).
		WithExpense(a.Expense.User, a.Expense.Category, a.Expense.Amount.String(), string(a.Expense.Ref))
	f[log.FieldUserID] = userID
	return f.ToSlice()
}
