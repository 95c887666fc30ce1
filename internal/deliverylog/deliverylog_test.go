package deliverylog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, time.UTC)
	l.now = func() time.Time { return time.Date(2024, time.March, 5, 3, 10, 0, 0, time.UTC) }

	for _, ok := range []bool{true, false} {
		err := l.Append(Entry{
			RunID:       "run-1",
			Site:        "Acme",
			Destination: "https://hooks.slack.com/services/T000/B000/secret",
			OK:          ok,
			Text:        ":bar_chart: Atualização Acme",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "2024-03-05.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line is not JSON: %q", sc.Text())
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["destination"] != "hooks.slack.com" {
		t.Errorf("destination = %v, want host only", lines[0]["destination"])
	}
	if lines[0]["ok"] != true || lines[1]["ok"] != false {
		t.Errorf("ok flags = %v / %v", lines[0]["ok"], lines[1]["ok"])
	}
	if lines[0]["site"] != "Acme" {
		t.Errorf("site = %v", lines[0]["site"])
	}
}

func TestAppendRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, time.UTC)
	day := time.Date(2024, time.March, 5, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return day }
	l.Append(Entry{Site: "a"})
	day = day.Add(2 * time.Hour)
	l.Append(Entry{Site: "b"})
	l.Close()

	for _, name := range []string{"2024-03-05.log", "2024-03-06.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "2024-01-01.log")
	fresh := filepath.Join(dir, "2024-03-05.log")
	os.WriteFile(old, []byte("{}\n"), 0o644)
	os.WriteFile(fresh, []byte("{}\n"), 0o644)
	past := time.Now().AddDate(0, 0, -30)
	os.Chtimes(old, past, past)

	l := New(dir, time.UTC)
	n, err := l.CompressOlder(7)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("compressed %d files, want 1", n)
	}
	if _, err := os.Stat(old + ".gz"); err != nil {
		t.Error("expected gz archive")
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected original removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file should be kept")
	}
}

func TestHost(t *testing.T) {
	if got := Host("https://hooks.slack.com/services/x"); got != "hooks.slack.com" {
		t.Errorf("Host = %q", got)
	}
	if got := Host("stdout"); !strings.EqualFold(got, "stdout") {
		t.Errorf("Host = %q", got)
	}
}
