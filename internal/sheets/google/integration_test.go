//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"findot/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_LedgerRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, Options{
		SpreadsheetID:   spreadsheetID,
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	cells := []string{time.Now().Format(core.TimestampLayout), "Integration", "1.23", "test", "integration run"}
	ref, err := client.AppendRow(ctx, cells)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := client.UpdateCell(ctx, ref, 4, core.MarkIgnored("integration run")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := client.DeleteRow(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
