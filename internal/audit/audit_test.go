package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sitevault/sitevault/internal/domain"
)

func TestAppendAndEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	log := Open(path)

	if err := log.Append(NewOperation(domain.OpCreate, "github", true)); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := log.Append(domain.Operation{Type: domain.OpUnlock, Success: false}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != domain.OpCreate || entries[0].Record != "github" || !entries[0].Success {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].ID == "" || entries[1].Timestamp.IsZero() {
		t.Errorf("Append should stamp ID and time: %+v", entries[1])
	}
	if entries[0].ID == entries[1].ID {
		t.Error("Entry IDs should be unique")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat log: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Incorrect permissions: got %o, want 0600", info.Mode().Perm())
	}
}

func TestEntries_MissingLog(t *testing.T) {
	entries, err := Open(filepath.Join(t.TempDir(), "none.jsonl")).Entries()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %v", entries)
	}
}

func TestDisabledLog(t *testing.T) {
	log := Open("")
	if err := log.Append(NewOperation(domain.OpView, "x", true)); err != nil {
		t.Fatalf("Disabled log should accept appends: %v", err)
	}
	entries, err := log.Entries()
	if err != nil || entries != nil {
		t.Errorf("Disabled log should be empty: %v, %v", entries, err)
	}
}

func TestParseEntries_SkipsMalformed(t *testing.T) {
	data := strings.Join([]string{
		`{"id":"1","type":"create","record":"a","timestamp":"2024-01-01T00:00:00Z","success":true}`,
		`not json`,
		``,
		`{"id":"2","type":"delete","record":"a","timestamp":"2024-01-02T00:00:00Z","success":true}`,
	}, "\n")

	entries := ParseEntries([]byte(data))
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[1].Type != domain.OpDelete {
		t.Errorf("Unexpected entry: %+v", entries[1])
	}
}
