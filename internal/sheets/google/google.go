package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"findot/internal/core"
	ports "findot/internal/sheets"
)

// lastColumn is the rightmost ledger column, the row identifier.
const lastColumn = "F"

type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client stores the ledger in one tab of a spreadsheet. Rows are identified
// by a uuid written into the last column and resolved to a position on
// every delete or update.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	sheetID       int64
}

// Ensure interface conformance
var (
	_ ports.LedgerStore = (*Client)(nil)
	_ ports.Pinger      = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account and
// resolves the numeric id of the ledger tab.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	c := &Client{svc: svc, spreadsheetID: opts.SpreadsheetID, sheetName: sheetNameOrDefault(opts.SheetName)}
	if err := c.resolveSheetID(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func sheetNameOrDefault(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "Sheet1"
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when neither option is set.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credsJSON := strings.TrimSpace(opts.CredentialsJSON)
	credsFile := strings.TrimSpace(opts.CredentialsFile)
	if credsJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var raw []byte
	switch {
	case credsJSON != "":
		raw = []byte(credsJSON)
	case credsFile != "":
		b, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		raw = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.DebugContext(ctx, "Creating Google Sheets service", "credentials_size", len(raw))
	return gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func (c *Client) resolveSheetID(ctx context.Context) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			c.sheetID = sh.Properties.SheetId
			return nil
		}
	}
	return fmt.Errorf("sheet %q not found in spreadsheet", c.sheetName)
}

func (c *Client) rng(a1 string) string {
	return "'" + strings.ReplaceAll(c.sheetName, "'", "''") + "'!" + a1
}

func (c *Client) ReadRows(ctx context.Context) ([]ports.Row, error) {
	rng := c.rng("A:" + lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rows := make([]ports.Row, 0, len(resp.Values))
	for i, raw := range resp.Values {
		cells := toStrings(raw)
		var ref core.RowRef
		if len(cells) > int(ports.ColID) {
			if i > 0 {
				ref = core.RowRef(cells[ports.ColID])
			}
			cells = cells[:ports.ColID]
		}
		rows = append(rows, ports.Row{Ref: ref, Cells: cells})
	}
	return rows, nil
}

// AppendRow writes the cells plus a fresh identifier after the last row.
func (c *Client) AppendRow(ctx context.Context, cells []string) (core.RowRef, error) {
	ref := core.RowRef(uuid.NewString())
	rng := c.rng("A:" + lastColumn)
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(cells, ref)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.sheetName, err)
	}
	return ref, nil
}

// DeleteRow removes the whole sheet row carrying ref.
func (c *Client) DeleteRow(ctx context.Context, ref core.RowRef) error {
	idx, err := c.locate(ctx, ref)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    c.sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(idx),
			EndIndex:   int64(idx + 1),
			// zero is a valid sheet id and row index
			ForceSendFields: []string{"SheetId", "StartIndex"},
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", idx+1, c.sheetName, err)
	}
	return nil
}

func (c *Client) UpdateCell(ctx context.Context, ref core.RowRef, col ports.Column, value string) error {
	if col < 0 || col >= ports.ColID {
		return fmt.Errorf("invalid column %d", col)
	}
	idx, err := c.locate(ctx, ref)
	if err != nil {
		return err
	}
	rng := c.rng(columnLetter(col) + strconv.Itoa(idx+1))
	vr := &gsheet.ValueRange{Values: [][]any{{value}}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// Ping reads a single cell to confirm the spreadsheet is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rng("A1:A1")).Context(ctx).Do()
	return err
}

// locate returns the zero-based sheet row index holding ref.
func (c *Client) locate(ctx context.Context, ref core.RowRef) (int, error) {
	if ref == "" {
		return 0, ports.ErrRowNotFound
	}
	rng := c.rng(lastColumn + ":" + lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	for i, row := range resp.Values {
		if i == 0 {
			continue
		}
		if len(row) > 0 && strings.TrimSpace(fmt.Sprint(row[0])) == string(ref) {
			return i, nil
		}
	}
	return 0, ports.ErrRowNotFound
}

// rowValues lays out cells plus ref. The amount goes out as a number so a
// sheet with a comma-decimal locale does not read it as text or a date.
func rowValues(cells []string, ref core.RowRef) []any {
	values := make([]any, 0, int(ports.ColID)+1)
	for i := 0; i < int(ports.ColID); i++ {
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		if ports.Column(i) == ports.ColAmount {
			if d, err := decimal.NewFromString(v); err == nil {
				values = append(values, d.InexactFloat64())
				continue
			}
		}
		values = append(values, v)
	}
	return append(values, string(ref))
}

func columnLetter(col ports.Column) string {
	return string(rune('A' + int(col)))
}

// toStrings renders cell values; numbers keep full precision without exponent.
func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case nil:
			out[i] = ""
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(x))
		}
	}
	return out
}
