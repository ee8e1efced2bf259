// Package events describes ledger mutations published for downstream mirrors.
package events

import (
	"context"
	"time"

	"findot/internal/core"
)

type Kind string

const (
	KindCreated Kind = "created"
	KindDeleted Kind = "deleted"
	KindIgnored Kind = "ignored"
)

// LedgerEvent carries the full row for created and ignored events; deleted
// events only need the ref.
type LedgerEvent struct {
	Kind       Kind
	Ref        core.RowRef
	Cells      []string
	OccurredAt time.Time
}

type Publisher interface {
	Publish(ctx context.Context, ev LedgerEvent) error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, LedgerEvent) error { return nil }
