// Package retrying wraps a ledger store with one retry policy applied at the
// transport boundary.
package retrying

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"

	"findot/internal/core"
	"findot/internal/log"
	"findot/internal/sheets"
)

// Policy describes how often and on which errors an operation is retried.
type Policy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
	RetryIf  func(error) bool
}

// ReadPolicy retries any transient failure.
func ReadPolicy(attempts uint, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay, MaxDelay: 30 * time.Second, RetryIf: IsTransient}
}

// WritePolicy only retries failures where the request was rejected before
// being applied. Appends are not idempotent.
func WritePolicy(attempts uint, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay, MaxDelay: 30 * time.Second, RetryIf: IsRateLimited}
}

// Do runs fn until it succeeds, the predicate rejects the error, attempts
// run out or ctx ends. The last error is returned as is.
func (p Policy) Do(ctx context.Context, logger *log.Logger, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = func(error) bool { return false }
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryIf),
		retry.OnRetry(func(n uint, err error) {
			logger.WarnContext(ctx, "Ledger call failed, retrying",
				log.FieldOperation, op, log.FieldAttempt, n+1, log.FieldError, err)
		}),
		retry.LastErrorOnly(true),
	)
}

// IsRateLimited reports a Sheets 429.
func IsRateLimited(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests
}

// IsTransient reports errors worth retrying on idempotent calls: rate limits,
// server-side failures and network timeouts.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, sheets.ErrRowNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Store decorates a LedgerStore. Reads and cell updates use the read policy;
// appends and deletes use the write policy.
type Store struct {
	next   sheets.LedgerStore
	reads  Policy
	writes Policy
	logger *log.Logger
}

var _ sheets.LedgerStore = (*Store)(nil)

func New(next sheets.LedgerStore, reads, writes Policy, logger *log.Logger) *Store {
	return &Store{next: next, reads: reads, writes: writes, logger: logger.WithComponent(log.ComponentRetry)}
}

func (s *Store) ReadRows(ctx context.Context) ([]sheets.Row, error) {
	var rows []sheets.Row
	err := s.reads.Do(ctx, s.logger, log.OpRead, func() error {
		var err error
		rows, err = s.next.ReadRows(ctx)
		return err
	})
	return rows, err
}

func (s *Store) AppendRow(ctx context.Context, cells []string) (core.RowRef, error) {
	var ref core.RowRef
	err := s.writes.Do(ctx, s.logger, log.OpAppend, func() error {
		var err error
		ref, err = s.next.AppendRow(ctx, cells)
		return err
	})
	return ref, err
}

// DeleteRow is not idempotent either: a retried delete after a lost response
// would report the row as missing.
func (s *Store) DeleteRow(ctx context.Context, ref core.RowRef) error {
	return s.writes.Do(ctx, s.logger, log.OpDelete, func() error {
		return s.next.DeleteRow(ctx, ref)
	})
}

// UpdateCell writes an absolute value, so repeating it is harmless.
func (s *Store) UpdateCell(ctx context.Context, ref core.RowRef, col sheets.Column, value string) error {
	return s.reads.Do(ctx, s.logger, log.OpUpdate, func() error {
		return s.next.UpdateCell(ctx, ref, col, value)
	})
}

// Ping forwards to the wrapped store when it supports it.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.next.(sheets.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
