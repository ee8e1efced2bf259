package retrying

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"findot/internal/core"
	"findot/internal/log"
	"findot/internal/sheets"
	"findot/internal/sheets/memory"
)

// flaky fails the first n calls of each operation with err.
type flaky struct {
	*memory.Store
	err     error
	fails   int
	appends int
	reads   int
	updates int
}

func (f *flaky) ReadRows(ctx context.Context) ([]sheets.Row, error) {
	f.reads++
	if f.reads <= f.fails {
		return nil, f.err
	}
	return f.Store.ReadRows(ctx)
}

func (f *flaky) AppendRow(ctx context.Context, cells []string) (core.RowRef, error) {
	f.appends++
	if f.appends <= f.fails {
		return "", f.err
	}
	return f.Store.AppendRow(ctx, cells)
}

func (f *flaky) UpdateCell(ctx context.Context, ref core.RowRef, col sheets.Column, v string) error {
	f.updates++
	if f.updates <= f.fails {
		return f.err
	}
	return f.Store.UpdateCell(ctx, ref, col, v)
}

func newStore(next sheets.LedgerStore) *Store {
	return New(next, ReadPolicy(3, time.Millisecond), WritePolicy(3, time.Millisecond), log.Discard())
}

func TestAppendRetriesOnlyRateLimits(t *testing.T) {
	ctx := context.Background()

	limited := &flaky{Store: memory.New(), err: &googleapi.Error{Code: http.StatusTooManyRequests}, fails: 2}
	if _, err := newStore(limited).AppendRow(ctx, []string{"a"}); err != nil {
		t.Fatalf("expected success after 429s, got %v", err)
	}
	if limited.appends != 3 || limited.Len() != 1 {
		t.Fatalf("appends=%d rows=%d", limited.appends, limited.Len())
	}

	broken := &flaky{Store: memory.New(), err: &googleapi.Error{Code: http.StatusBadGateway}, fails: 1}
	if _, err := newStore(broken).AppendRow(ctx, []string{"a"}); err == nil {
		t.Fatal("a 502 on append must not be retried")
	}
	if broken.appends != 1 {
		t.Fatalf("appends=%d", broken.appends)
	}
}

func TestReadRetriesTransientErrors(t *testing.T) {
	f := &flaky{Store: memory.New(), err: &googleapi.Error{Code: http.StatusServiceUnavailable}, fails: 2}
	if _, err := newStore(f).ReadRows(context.Background()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.reads != 3 {
		t.Fatalf("reads=%d", f.reads)
	}
}

func TestReadGivesUpAfterAttempts(t *testing.T) {
	apiErr := &googleapi.Error{Code: http.StatusInternalServerError}
	f := &flaky{Store: memory.New(), err: apiErr, fails: 10}
	_, err := newStore(f).ReadRows(context.Background())
	var got *googleapi.Error
	if !errors.As(err, &got) || got.Code != http.StatusInternalServerError {
		t.Fatalf("expected last api error, got %v", err)
	}
	if f.reads != 3 {
		t.Fatalf("reads=%d", f.reads)
	}
}

func TestRowNotFoundIsNotRetried(t *testing.T) {
	f := &flaky{Store: memory.New()}
	err := newStore(f).UpdateCell(context.Background(), "mem:1", sheets.ColComment, "x")
	if !errors.Is(err, sheets.ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
	if f.updates != 1 {
		t.Fatalf("updates=%d", f.updates)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{sheets.ErrRowNotFound, false},
		{&googleapi.Error{Code: 429}, true},
		{&googleapi.Error{Code: 503}, true},
		{&googleapi.Error{Code: 403}, false},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%v: got %v", tc.err, got)
		}
	}
}
