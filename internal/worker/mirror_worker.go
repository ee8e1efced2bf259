// Package worker keeps a local SQLite copy of the ledger in step with the
// events published by the bot.
package worker

import (
	"context"
	"errors"
	"fmt"

	"findot/internal/core"
	"findot/internal/events"
	"findot/internal/log"
	"findot/internal/metrics"
	"findot/internal/sheets"
)

// Mirror is the local copy.
type Mirror interface {
	sheets.LedgerReader
	PutRow(ctx context.Context, ref core.RowRef, cells []string) error
	DeleteRow(ctx context.Context, ref core.RowRef) error
	UpdateCell(ctx context.Context, ref core.RowRef, col sheets.Column, value string) error
}

// MirrorWorker applies ledger events to a Mirror.
type MirrorWorker struct {
	mirror Mirror
	logger *log.Logger
}

func NewMirrorWorker(mirror Mirror, logger *log.Logger) *MirrorWorker {
	return &MirrorWorker{mirror: mirror, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleEvent applies one event. A delete for a row the mirror never saw is
// not an error.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev events.LedgerEvent) error {
	err := w.apply(ctx, ev)
	metrics.MirroredEvents.WithLabelValues(string(ev.Kind), metrics.Status(err)).Inc()
	if err != nil {
		return fmt.Errorf("mirror %s %s: %w", ev.Kind, ev.Ref, err)
	}
	w.logger.InfoContext(ctx, "Mirrored ledger event",
		log.FieldOperation, log.OpMirror, log.FieldEvent, string(ev.Kind), log.FieldRowRef, string(ev.Ref))
	return nil
}

func (w *MirrorWorker) apply(ctx context.Context, ev events.LedgerEvent) error {
	switch ev.Kind {
	case events.KindCreated:
		return w.mirror.PutRow(ctx, ev.Ref, ev.Cells)
	case events.KindDeleted:
		err := w.mirror.DeleteRow(ctx, ev.Ref)
		if errors.Is(err, sheets.ErrRowNotFound) {
			w.logger.WarnContext(ctx, "Deleted row was never mirrored", log.FieldRowRef, string(ev.Ref))
			return nil
		}
		return err
	case events.KindIgnored:
		if len(ev.Cells) > int(sheets.ColComment) {
			// full row available: upsert so a missed create is repaired too
			return w.mirror.PutRow(ctx, ev.Ref, ev.Cells)
		}
		return w.mirror.UpdateCell(ctx, ev.Ref, sheets.ColComment, core.MarkIgnored(""))
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// Backfill copies every identified row from source into the mirror and
// drops mirrored rows the source no longer has. It runs at startup to
// recover from events missed while the worker was down.
func (w *MirrorWorker) Backfill(ctx context.Context, source sheets.LedgerReader) error {
	rows, err := source.ReadRows(ctx)
	if err != nil {
		return fmt.Errorf("read source ledger: %w", err)
	}

	live := make(map[core.RowRef]bool, len(rows))
	synced, skipped, failed := 0, 0, 0
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if row.Ref == "" {
			skipped++
			continue
		}
		live[row.Ref] = true
		if err := w.mirror.PutRow(ctx, row.Ref, row.Cells); err != nil {
			w.logger.ErrorContext(ctx, "Failed to backfill row", log.FieldRowRef, string(row.Ref), log.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	pruned, err := w.prune(ctx, live)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Backfill completed",
		"total", len(rows)-1,
		"synced", synced,
		"skipped", skipped,
		"pruned", pruned,
		"errors", failed)

	if failed > 0 {
		return fmt.Errorf("backfill: %d rows failed", failed)
	}
	return nil
}

// prune deletes mirrored rows whose ref is not in live.
func (w *MirrorWorker) prune(ctx context.Context, live map[core.RowRef]bool) (int, error) {
	mirrored, err := w.mirror.ReadRows(ctx)
	if err != nil {
		return 0, fmt.Errorf("read mirror: %w", err)
	}
	pruned := 0
	for i, row := range mirrored {
		if i == 0 || row.Ref == "" || live[row.Ref] {
			continue
		}
		if err := w.mirror.DeleteRow(ctx, row.Ref); err != nil && !errors.Is(err, sheets.ErrRowNotFound) {
			return pruned, fmt.Errorf("prune %s: %w", row.Ref, err)
		}
		pruned++
	}
	return pruned, nil
}
