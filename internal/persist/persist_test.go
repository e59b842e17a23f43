package persist

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

// slot is the common surface both backends satisfy.
type slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

func testSlot(t *testing.T, s slot) {
	t.Helper()
	ctx := context.Background()

	data, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if data != nil {
		t.Fatalf("fresh slot returned %q, want nil", data)
	}

	if err := s.Save(ctx, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, []byte("second")); err != nil {
		t.Fatal(err)
	}
	data, err = s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("second")) {
		t.Fatalf("load = %q, want the latest save", data)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	data, err = s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if data != nil {
		t.Fatalf("cleared slot returned %q, want nil", data)
	}
}

func TestMemorySlot(t *testing.T) {
	testSlot(t, NewMemorySlot())
}

func TestMemorySlotCopiesValue(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySlot()
	buf := []byte("state")
	if err := s.Save(ctx, buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'X'
	data, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("state")) {
		t.Fatalf("caller mutation leaked into the slot: %q", data)
	}
}

func TestSQLiteSlot(t *testing.T) {
	s, err := NewSQLiteSlot(filepath.Join(t.TempDir(), "state.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testSlot(t, s)
}

func TestSQLiteSlotKeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	a, err := NewSQLiteSlot(path, "a")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if err := a.Save(ctx, []byte("for a")); err != nil {
		t.Fatal(err)
	}

	b, err := NewSQLiteSlot(path, "b")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	data, err := b.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if data != nil {
		t.Fatalf("key b sees key a's blob: %q", data)
	}
}

func TestSQLiteSlotSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewSQLiteSlot(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	again, err := NewSQLiteSlot(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	data, err := again.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("persisted")) {
		t.Fatalf("reopen lost the blob: %q", data)
	}
}
