package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "findot/internal/sheets"
)

// fakeSheets serves the handful of Sheets endpoints the client touches.
type fakeSheets struct {
	mu      sync.Mutex
	rows    [][]any
	deletes int
	sheetID float64
}

var cellRef = regexp.MustCompile(`!([A-Z])(\d+)$`)

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/v4/spreadsheets/sid":
		writeJSON(w, map[string]any{"sheets": []any{
			map[string]any{"properties": map[string]any{"sheetId": 7, "title": "Other"}},
			map[string]any{"properties": map[string]any{"sheetId": 3, "title": "Ledger"}},
		}})
	case r.Method == http.MethodGet && strings.HasSuffix(path, "!F:F"):
		col := make([][]any, 0, len(f.rows))
		for _, row := range f.rows {
			if len(row) > 5 {
				col = append(col, []any{row[5]})
			} else {
				col = append(col, []any{})
			}
		}
		writeJSON(w, map[string]any{"values": col})
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		writeJSON(w, map[string]any{"values": f.rows})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var body struct{ Values [][]any }
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.rows = append(f.rows, body.Values...)
		writeJSON(w, map[string]any{})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var body struct {
			Requests []struct {
				DeleteDimension struct {
					Range struct {
						SheetID    float64 `json:"sheetId"`
						StartIndex int     `json:"startIndex"`
						EndIndex   int     `json:"endIndex"`
					} `json:"range"`
				} `json:"deleteDimension"`
			}
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rg := body.Requests[0].DeleteDimension.Range
		f.sheetID = rg.SheetID
		f.rows = append(f.rows[:rg.StartIndex], f.rows[rg.EndIndex:]...)
		f.deletes++
		writeJSON(w, map[string]any{})
	case r.Method == http.MethodPut:
		m := cellRef.FindStringSubmatch(path)
		if m == nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		var body struct{ Values [][]any }
		_ = json.NewDecoder(r.Body).Decode(&body)
		col := int(m[1][0] - 'A')
		idx, _ := strconv.Atoi(m[2])
		f.rows[idx-1][col] = body.Values[0][0]
		writeJSON(w, map[string]any{})
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	ctx := context.Background()
	svc, err := gsheet.NewService(ctx, goption.WithEndpoint(srv.URL+"/"), goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	c := &Client{svc: svc, spreadsheetID: "sid", sheetName: "Ledger"}
	if err := c.resolveSheetID(ctx); err != nil {
		t.Fatalf("resolve sheet id: %v", err)
	}
	return c
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Options{SpreadsheetID: "sid"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientAppendAndRead(t *testing.T) {
	fake := &fakeSheets{rows: [][]any{
		{"Timestamp", "Category", "Amount", "User", "Comment", "ID"},
		{"2025-03-01 10:00:00", "Кава", 99.5, "olena"},
	}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if c.sheetID != 3 {
		t.Fatalf("sheet id = %d", c.sheetID)
	}
	ref, err := c.AppendRow(ctx, []string{"2025-03-02 09:00:00", "Їжа", "250", "taras", "Обід"})
	if err != nil || ref == "" {
		t.Fatalf("append: ref=%q err=%v", ref, err)
	}

	rows, err := c.ReadRows(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].Ref != "" || rows[1].Cells[2] != "99.5" {
		t.Fatalf("legacy row decoded wrong: %+v", rows[1])
	}
	if rows[2].Ref != ref || len(rows[2].Cells) != 5 || rows[2].Cells[4] != "Обід" || rows[2].Cells[2] != "250" {
		t.Fatalf("appended row decoded wrong: %+v", rows[2])
	}
	if amount, ok := fake.rows[2][2].(float64); !ok || amount != 250 {
		t.Fatalf("amount sent as %T %v, want number", fake.rows[2][2], fake.rows[2][2])
	}
}

func TestRowValues(t *testing.T) {
	tests := []struct {
		name   string
		cells  []string
		amount any
	}{
		{"integer", []string{"2025-03-02 09:00:00", "Їжа", "250", "taras", ""}, 250.0},
		{"fraction", []string{"2025-03-02 09:00:00", "Кава", "99.5", "olena", ""}, 99.5},
		{"not a number", []string{"2025-03-02 09:00:00", "Кава", "n/a", "olena", ""}, "n/a"},
		{"short row", []string{"2025-03-02 09:00:00", "Кава"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rowValues(tt.cells, "ref-1")
			if len(got) != int(ports.ColID)+1 || got[ports.ColID] != "ref-1" {
				t.Fatalf("layout wrong: %v", got)
			}
			if got[ports.ColAmount] != tt.amount {
				t.Errorf("amount = %#v, want %#v", got[ports.ColAmount], tt.amount)
			}
		})
	}
}

func TestClientDeleteRowByRef(t *testing.T) {
	fake := &fakeSheets{rows: [][]any{
		{"Timestamp", "Category", "Amount", "User", "Comment", "ID"},
		{"2025-03-01 10:00:00", "Кава", "45", "olena", "", "a"},
		{"2025-03-01 11:00:00", "Кава", "45", "olena", "", "b"},
		{"2025-03-01 12:00:00", "Кава", "45", "olena", "", "c"},
	}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if err := c.DeleteRow(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if fake.sheetID != 3 || len(fake.rows) != 3 || fake.rows[2][5] != "c" {
		t.Fatalf("wrong row removed: %+v", fake.rows)
	}
	if err := c.DeleteRow(ctx, "b"); !errors.Is(err, ports.ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
	if fake.deletes != 1 {
		t.Fatalf("missing row must not issue a delete, got %d", fake.deletes)
	}
}

func TestClientUpdateCell(t *testing.T) {
	fake := &fakeSheets{rows: [][]any{
		{"Timestamp", "Category", "Amount", "User", "Comment", "ID"},
		{"2025-03-01 10:00:00", "Кава", "45", "olena", "ранок", "a"},
	}}
	c := newTestClient(t, fake)

	if err := c.UpdateCell(context.Background(), "a", ports.ColComment, "[IGNORED] ранок"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if fake.rows[1][4] != "[IGNORED] ранок" {
		t.Fatalf("comment = %v", fake.rows[1][4])
	}
	if err := c.UpdateCell(context.Background(), "a", ports.ColID, "x"); err == nil {
		t.Fatal("identifier column must not be writable")
	}
}

func TestToStrings(t *testing.T) {
	got := toStrings([]any{1500.0, 0.1, nil, " x "})
	want := []string{"1500", "0.1", "", "x"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %q want %q", i, got[i], want[i])
		}
	}
}
