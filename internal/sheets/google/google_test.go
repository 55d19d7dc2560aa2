package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/log"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheet serves the three Values endpoints the client uses over an
// in-memory grid.
type fakeSheet struct {
	mu   sync.Mutex
	rows [][]any
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rng, ok := strings.Cut(r.URL.Path, "/values/")
	if !ok {
		http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
		return
	}

	switch {
	case r.Method == http.MethodGet:
		values := [][]any{}
		for _, row := range f.rows {
			if len(row) == 0 {
				values = append(values, []any{})
				continue
			}
			values = append(values, []any{row[0]})
		}
		for len(values) > 0 && len(values[len(values)-1]) == 0 {
			values = values[:len(values)-1]
		}
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": values})

	case r.Method == http.MethodPut:
		if r.URL.Query().Get("valueInputOption") != "USER_ENTERED" {
			http.Error(w, "missing valueInputOption", http.StatusBadRequest)
			return
		}
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Values) != 1 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		row := rowOf(rng)
		for len(f.rows) < row {
			f.rows = append(f.rows, nil)
		}
		f.rows[row-1] = body.Values[0]
		json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng})

	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		row := rowOf(strings.TrimSuffix(rng, ":clear"))
		if row <= len(f.rows) {
			f.rows[row-1] = nil
		}
		json.NewEncoder(w).Encode(map[string]any{"clearedRange": rng})

	default:
		http.Error(w, "unexpected request", http.StatusMethodNotAllowed)
	}
}

// rowOf extracts n from "Sheet!An:Gn".
func rowOf(rng string) int {
	var n int
	_, cell, _ := strings.Cut(rng, "!A")
	fmt.Sscanf(cell, "%d", &n)
	return n
}

func newTestClient(t *testing.T) (*Client, *fakeSheet) {
	t.Helper()
	fake := &fakeSheet{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("sheets service: %v", err)
	}
	return NewWithService(svc, "sheet-id", "", log.Discard()), fake
}

func expense(id, desc string, cents int64) *core.Expense {
	return &core.Expense{ID: id, Date: core.NewDate(2025, 7, 1), Description: desc, Amount: core.Cents(cents), CategoryID: "food"}
}

func TestUpsertExpenseWritesHeaderThenRows(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	ref, err := c.UpsertExpense(ctx, "u1", expense("e1", "Groceries", 1250))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ref != "Expenses!A2:G2" {
		t.Fatalf("unexpected ref %q", ref)
	}
	if _, err := c.UpsertExpense(ctx, "u1", expense("e2", "Fuel", 4000)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	ref, err = c.UpsertExpense(ctx, "u1", expense("e1", "Groceries and wine", 2250))
	if err != nil {
		t.Fatalf("upsert existing: %v", err)
	}
	if ref != "Expenses!A2:G2" {
		t.Fatalf("existing expense should keep its row, got %q", ref)
	}

	if len(fake.rows) != 3 {
		t.Fatalf("expected header and two rows, got %v", fake.rows)
	}
	if fake.rows[0][0] != "ID" {
		t.Fatalf("missing header: %v", fake.rows[0])
	}
	if fake.rows[1][2] != "Groceries and wine" || fake.rows[1][3] != "22.50" || fake.rows[1][6] != "u1" {
		t.Fatalf("unexpected row %v", fake.rows[1])
	}
}

func TestDeleteExpenseClearsRow(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	for _, e := range []*core.Expense{expense("e1", "a", 100), expense("e2", "b", 200)} {
		if _, err := c.UpsertExpense(ctx, "u1", e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if err := c.DeleteExpense(ctx, "u1", "e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if fake.rows[1] != nil || fake.rows[2][0] != "e2" {
		t.Fatalf("unexpected rows %v", fake.rows)
	}
	if err := c.DeleteExpense(ctx, "u1", "missing"); err != nil {
		t.Fatalf("deleting an unmirrored expense should succeed: %v", err)
	}
}

func TestUpsertExpenseValidates(t *testing.T) {
	c := NewWithService(nil, "sheet-id", "", log.Discard())
	_, err := c.UpsertExpense(context.Background(), "u1", &core.Expense{ID: "x", Description: "d", Amount: core.Cents(1), CategoryID: "c"})
	if err == nil {
		t.Fatal("expected validation error for zero date")
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"no spreadsheet", Config{}, "missing GOOGLE_SPREADSHEET_ID"},
		{"no credentials", Config{SpreadsheetID: "x"}, "missing service account credentials"},
		{"unreadable file", Config{SpreadsheetID: "x", CredentialsFile: "/nonexistent/creds.json"}, "read service account file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg, log.Discard())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", " abc ")
	t.Setenv("GOOGLE_SHEET_NAME", "Mirror")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/creds.json")

	cfg := ConfigFromEnv()
	if cfg.SpreadsheetID != "abc" || cfg.SheetName != "Mirror" || cfg.CredentialsFile != "/etc/creds.json" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
