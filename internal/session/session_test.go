package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestListSessionFilesMissingDir(t *testing.T) {
	t.Parallel()

	files, err := ListSessionFiles(t.TempDir())
	if err != nil {
		t.Fatalf("ListSessionFiles: %v", err)
	}
	if files != nil {
		t.Fatalf("expected nil for missing sessions dir, got %v", files)
	}
}

func TestListSessionFilesRecursesShards(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	shard := filepath.Join(Dir(home), "2025", "01", "02")
	if err := os.MkdirAll(shard, 0o755); err != nil {
		t.Fatal(err)
	}
	rollout := filepath.Join(shard, "rollout-2025-01-02T10-00-00-11111111-2222-3333-4444-555555555555.jsonl")
	if err := os.WriteFile(rollout, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(shard, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := ListSessionFiles(home)
	if err != nil {
		t.Fatalf("ListSessionFiles: %v", err)
	}
	if len(files) != 1 || files[0] != rollout {
		t.Fatalf("expected [%s], got %v", rollout, files)
	}
}

func TestLatestSessionID(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	dir := Dir(home)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	oldID := "11111111-2222-3333-4444-555555555555"
	newID := "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	oldPath := filepath.Join(dir, "rollout-2025-01-01T00-00-00-"+oldID+".jsonl")
	newPath := filepath.Join(dir, "rollout-2025-01-02T00-00-00-"+newID+".jsonl")
	for _, p := range []string{oldPath, newPath} {
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatal(err)
	}
	// A file without a UUID suffix must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "scratch.jsonl"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LatestSessionID(home)
	if err != nil {
		t.Fatalf("LatestSessionID: %v", err)
	}
	if got != newID {
		t.Fatalf("expected %s, got %s", newID, got)
	}
}

func TestLatestSessionIDEmpty(t *testing.T) {
	t.Parallel()

	got, err := LatestSessionID(t.TempDir())
	if err != nil {
		t.Fatalf("LatestSessionID: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}

func TestReadHistory(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	if got, err := ReadHistory(home); err != nil || got != "" {
		t.Fatalf("expected empty history, got %q err %v", got, err)
	}

	if err := os.WriteFile(filepath.Join(home, "history.jsonl"), []byte("{\"text\":\"hi\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadHistory(home)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if got != "{\"text\":\"hi\"}\n" {
		t.Fatalf("unexpected history: %q", got)
	}
}
