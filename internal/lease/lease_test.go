package lease

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireWritesPayloadWithSuffix(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	lse, err := store.Acquire([]byte("audio-bytes"), ".webm")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer lse.Release()

	if !strings.HasSuffix(lse.Path(), ".webm") {
		t.Fatalf("unexpected path suffix: %q", lse.Path())
	}
	data, err := os.ReadFile(lse.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Fatalf("unexpected contents: %q", data)
	}
}

func TestAcquireProducesUniquePaths(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	a, err := store.Acquire([]byte("a"), ".wav")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer a.Release()
	b, err := store.Acquire([]byte("b"), ".wav")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer b.Release()

	if a.Path() == b.Path() {
		t.Fatalf("expected unique paths, both %q", a.Path())
	}
}

func TestReleaseRemovesObjectAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	lse, err := store.Acquire([]byte("x"), ".ogg")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	lse.Release()
	if _, err := os.Stat(lse.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected object removed, stat err = %v", err)
	}

	// Second release must be a no-op, not a panic or a second delete attempt.
	lse.Release()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty store dir, found %d entries", len(entries))
	}
}

func TestAcquireFailsOnMissingDirectory(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	if _, err := store.Acquire([]byte("x"), ".wav"); err == nil {
		t.Fatal("expected error for missing store directory")
	}
}
