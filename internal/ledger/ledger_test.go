package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"roas-notifier/internal/interfaces"
)

func TestIdentity(t *testing.T) {
	if got := Identity("Acme", "04/03"); got != "Acme_04/03" {
		t.Errorf("Identity = %q, want Acme_04/03", got)
	}
	// the date text is kept exactly as the sheet has it
	if got := Identity("Março 2024", "4/3"); got != "Março 2024_4/3" {
		t.Errorf("Identity = %q", got)
	}
	if Identity("Acme", "04/03") == Identity("Acme", "4/3") {
		t.Error("different date texts must give different identities")
	}
}

// exerciseLedger runs the behavior every backend must share.
func exerciseLedger(t *testing.T, l interfaces.Ledger) {
	t.Helper()
	ctx := WithRunID(context.Background(), "7d0f1c7e-6a4b-4f43-9b53-2f7f5c3f0a11")

	ok, err := l.IsProcessed(ctx, "Acme_04/03")
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if ok {
		t.Fatal("fresh ledger reports entry as processed")
	}

	first := Record{ID: "Acme_04/03", Title: "Acme", Date: "04/03"}
	if err := l.MarkProcessed(ctx, "Acme_04/03", first); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	second := Record{ID: "Acme_04/03", Title: "changed", Date: "04/03"}
	if err := l.MarkProcessed(ctx, "Acme_04/03", second); err != nil {
		t.Fatalf("second MarkProcessed: %v", err)
	}

	ok, err = l.IsProcessed(ctx, "Acme_04/03")
	if err != nil || !ok {
		t.Fatalf("IsProcessed after mark = %v, %v", ok, err)
	}
	if ok, _ := l.IsProcessed(ctx, "Acme_05/03"); ok {
		t.Error("unrelated identity reported as processed")
	}

	if err := l.MarkProcessed(ctx, "", first); !errors.Is(err, ErrEmptyIdentity) {
		t.Errorf("expected ErrEmptyIdentity, got %v", err)
	}
}

func TestFileLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "processed.json")
	l, err := NewFileLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	exerciseLedger(t, l)

	entries := l.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(entries))
	}
	var rec Record
	if err := json.Unmarshal(entries[0].Payload, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Acme" {
		t.Errorf("first entry was mutated: %+v", rec)
	}
	if entries[0].RunID == "" {
		t.Error("run id not recorded")
	}
}

func TestFileLedgerSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	ctx := context.Background()

	l, err := NewFileLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.MarkProcessed(ctx, "Acme_04/03", map[string]string{"id": "Acme_04/03"}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	reopened, err := NewFileLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := reopened.IsProcessed(ctx, "Acme_04/03"); !ok {
		t.Error("entry lost across restart")
	}
}

func TestFileLedgerRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileLedger(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestSQLiteLedger(t *testing.T) {
	l, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer l.Close()
	exerciseLedger(t, l)

	var n int64
	l.db.Model(&processedRecord{}).Count(&n)
	if n != 1 {
		t.Errorf("expected one row, got %d", n)
	}
}

func TestPostgresLedger(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DSN not set")
	}
	ctx := context.Background()
	l, err := NewPostgresLedger(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, err := l.pool.Exec(ctx, `DELETE FROM processed_records WHERE identity LIKE 'Acme_%'`); err != nil {
		t.Fatal(err)
	}
	exerciseLedger(t, l)
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Config{Backend: "redis"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
