package queue

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAddTempAndLockCreatesOwnedFile(t *testing.T) {
	dir := t.TempDir()
	q := New(4, dir)

	slot, err := q.AddTempAndLock()
	if err != nil {
		t.Fatalf("AddTempAndLock: %v", err)
	}
	defer slot.Unlock()

	if !slot.Owned() {
		t.Fatalf("expected owned slot")
	}
	if !IsTempName(filepath.Base(slot.Path())) {
		t.Fatalf("path %q does not match temp name pattern", slot.Path())
	}
	if _, err := os.Stat(slot.Path()); err != nil {
		t.Fatalf("expected backing file to exist: %v", err)
	}
}

func TestAddLocalAndLockNeverDeletes(t *testing.T) {
	dir := t.TempDir()
	q := New(4, dir)

	local := filepath.Join(dir, "not-managed-by-queue.mp3")
	if err := os.WriteFile(local, []byte("data"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	slot, err := q.AddLocalAndLock()
	if err != nil {
		t.Fatalf("AddLocalAndLock: %v", err)
	}
	slot.SetPath(local)
	slot.Unlock()

	if err := q.RemoveFront(); err != nil {
		t.Fatalf("RemoveFront: %v", err)
	}
	if _, err := os.Stat(local); err != nil {
		t.Fatalf("local file should survive removal: %v", err)
	}
}

func TestRemoveFrontDeletesOwnedTempFile(t *testing.T) {
	dir := t.TempDir()
	q := New(4, dir)

	slot, err := q.AddTempAndLock()
	if err != nil {
		t.Fatalf("AddTempAndLock: %v", err)
	}
	path := slot.Path()
	slot.Unlock()

	if err := q.RemoveFront(); err != nil {
		t.Fatalf("RemoveFront: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be removed, stat err = %v", err)
	}
}

func TestAddTempAndLockRespectsMaxSongs(t *testing.T) {
	dir := t.TempDir()
	q := New(2, dir)

	s1, err := q.AddTempAndLock()
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	s1.Unlock()

	s2, err := q.AddTempAndLock()
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	s2.Unlock()

	if _, err := q.AddTempAndLock(); err == nil {
		t.Fatalf("expected third add to fail with queue full")
	}
}

func TestCloseDeletesAllOwnedFiles(t *testing.T) {
	dir := t.TempDir()
	q := New(4, dir)

	var paths []string
	for i := 0; i < 3; i++ {
		slot, err := q.AddTempAndLock()
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		paths = append(paths, slot.Path())
		slot.Unlock()
	}

	q.Close()

	for _, p := range paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed on Close", p)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after Close, got %d", q.Len())
	}
}

func TestPositionOfAndRemoveByPosition(t *testing.T) {
	dir := t.TempDir()
	q := New(4, dir)

	var slots []*Slot
	for i := 0; i < 3; i++ {
		s, err := q.AddTempAndLock()
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		s.Unlock()
		slots = append(slots, s)
	}

	pos, ok := q.PositionOf(slots[1])
	if !ok || pos != 1 {
		t.Fatalf("expected position 1, got %d ok=%v", pos, ok)
	}

	if err := q.RemoveByPosition(0); err != nil {
		t.Fatalf("RemoveByPosition: %v", err)
	}
	pos, ok = q.PositionOf(slots[1])
	if !ok || pos != 0 {
		t.Fatalf("expected slots[1] to shift to position 0, got %d ok=%v", pos, ok)
	}
}

// TestConcurrentFanOutSingleWinner checks that concurrent BeginFanOut calls
// on one slot have exactly one winner, the fan-out idempotence property
// of spec §8.
func TestConcurrentFanOutSingleWinner(t *testing.T) {
	dir := t.TempDir()
	q := New(16, dir)

	slot, err := q.AddTempAndLock()
	if err != nil {
		t.Fatalf("AddTempAndLock: %v", err)
	}
	slot.Unlock()

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if slot.BeginFanOut() {
				wins <- id
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one fan-out winner, got %d", count)
	}
}
