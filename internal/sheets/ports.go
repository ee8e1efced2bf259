package sheets

import (
	"context"
	"errors"

	"findot/internal/core"
)

// Column is a zero-based position in the ledger layout.
type Column int

const (
	ColTimestamp Column = iota
	ColCategory
	ColAmount
	ColUser
	ColComment
	// ColID holds the row identifier written by stores that need one.
	ColID
)

// Header is the first row of a freshly created ledger.
var Header = []string{"Timestamp", "Category", "Amount", "User", "Comment", "ID"}

var ErrRowNotFound = errors.New("ledger row not found")

// Row is one ledger line. Ref is empty for the header and for legacy rows
// written before identifiers existed.
type Row struct {
	Ref   core.RowRef
	Cells []string
}

// Ports for outbound adapters.
type (
	LedgerReader interface {
		// ReadRows returns every row, header first.
		ReadRows(ctx context.Context) ([]Row, error)
	}

	LedgerWriter interface {
		AppendRow(ctx context.Context, cells []string) (core.RowRef, error)
		// DeleteRow removes the row; following rows shift up.
		DeleteRow(ctx context.Context, ref core.RowRef) error
		UpdateCell(ctx context.Context, ref core.RowRef, col Column, value string) error
	}

	LedgerStore interface {
		LedgerReader
		LedgerWriter
	}

	// Pinger reports whether the backing store is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
