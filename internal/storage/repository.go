package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"findot/internal/core"
	"findot/internal/sheets"
)

// SQLiteRepository keeps the ledger in a local SQLite file. It serves as a
// primary backend and as the target of the mirror worker.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ sheets.LedgerStore = (*SQLiteRepository)(nil)
	_ sheets.Pinger      = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ReadRows returns a synthetic header followed by every row in insertion order.
func (r *SQLiteRepository) ReadRows(ctx context.Context) ([]sheets.Row, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ref, occurred_at, category, amount, user_name, comment FROM ledger_rows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ledger rows: %w", err)
	}
	defer rows.Close()

	out := []sheets.Row{{Cells: append([]string(nil), sheets.Header[:sheets.ColID]...)}}
	for rows.Next() {
		var ref string
		cells := make([]string, sheets.ColID)
		if err := rows.Scan(&ref, &cells[0], &cells[1], &cells[2], &cells[3], &cells[4]); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, sheets.Row{Ref: core.RowRef(ref), Cells: cells})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) AppendRow(ctx context.Context, cells []string) (core.RowRef, error) {
	ref := core.RowRef(uuid.NewString())
	if err := r.PutRow(ctx, ref, cells); err != nil {
		return "", err
	}
	return ref, nil
}

// PutRow inserts the row under an externally assigned ref, replacing the
// cells when the ref already exists.
func (r *SQLiteRepository) PutRow(ctx context.Context, ref core.RowRef, cells []string) error {
	c := padCells(cells)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_rows (ref, occurred_at, category, amount, user_name, comment)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			occurred_at = excluded.occurred_at,
			category    = excluded.category,
			amount      = excluded.amount,
			user_name   = excluded.user_name,
			comment     = excluded.comment,
			updated_at  = CURRENT_TIMESTAMP`,
		string(ref), c[0], c[1], c[2], c[3], c[4])
	if err != nil {
		return fmt.Errorf("put ledger row %s: %w", ref, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteRow(ctx context.Context, ref core.RowRef) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_rows WHERE ref = ?`, string(ref))
	if err != nil {
		return fmt.Errorf("delete ledger row %s: %w", ref, err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) UpdateCell(ctx context.Context, ref core.RowRef, col sheets.Column, value string) error {
	name, err := columnName(col)
	if err != nil {
		return err
	}
	// name comes from a fixed whitelist
	query := fmt.Sprintf(`UPDATE ledger_rows SET %s = ?, updated_at = CURRENT_TIMESTAMP WHERE ref = ?`, name)
	res, err := r.db.ExecContext(ctx, query, value, string(ref))
	if err != nil {
		return fmt.Errorf("update ledger row %s: %w", ref, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sheets.ErrRowNotFound
	}
	return nil
}

func columnName(col sheets.Column) (string, error) {
	switch col {
	case sheets.ColTimestamp:
		return "occurred_at", nil
	case sheets.ColCategory:
		return "category", nil
	case sheets.ColAmount:
		return "amount", nil
	case sheets.ColUser:
		return "user_name", nil
	case sheets.ColComment:
		return "comment", nil
	}
	return "", fmt.Errorf("invalid column %d", col)
}

func padCells(cells []string) []string {
	out := make([]string, sheets.ColID)
	copy(out, cells)
	return out
}
