package tracker

import (
	"net"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddFindRemove(t *testing.T) {
	store := newTestStore(t)

	entry := RoomEntry{Name: "test-room", IP: net.ParseIP("127.0.0.1"), Port: 5510}
	if err := store.Add(entry); err != nil {
		t.Fatalf("add: %v", err)
	}

	found, ok, err := store.Find("test-room")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !ok {
		t.Fatalf("expected room to be found")
	}
	if !found.IP.Equal(entry.IP) || found.Port != entry.Port {
		t.Fatalf("unexpected entry: %+v", found)
	}

	removed, err := store.Remove("test-room")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatalf("expected room to be removed")
	}

	_, ok, err = store.Find("test-room")
	if err != nil {
		t.Fatalf("find after remove: %v", err)
	}
	if ok {
		t.Fatalf("expected room to be gone")
	}
}

func TestAddOverwritesExistingName(t *testing.T) {
	store := newTestStore(t)

	if err := store.Add(RoomEntry{Name: "r", IP: net.ParseIP("10.0.0.1"), Port: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Add(RoomEntry{Name: "r", IP: net.ParseIP("10.0.0.2"), Port: 2}); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	entry, ok, err := store.Find("r")
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if entry.Port != 2 || entry.IP.String() != "10.0.0.2" {
		t.Fatalf("expected overwritten entry, got %+v", entry)
	}
}

func TestListAndCount(t *testing.T) {
	store := newTestStore(t)

	for i, name := range []string{"a", "b", "c"} {
		if err := store.Add(RoomEntry{Name: name, IP: net.ParseIP("127.0.0.1"), Port: uint16(5500 + i)}); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rooms, got %d", n)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestRemoveUnknownRoomReturnsFalse(t *testing.T) {
	store := newTestStore(t)
	removed, err := store.Remove("nope")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed {
		t.Fatalf("expected no-op removal of unknown room")
	}
}
