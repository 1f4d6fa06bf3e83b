package tracker

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/musicroom/musicroom/internal/config"
)

func newTestServerAndClient(t *testing.T) (*Server, *Client) {
	t.Helper()
	store := newTestStore(t)

	cfg := config.Default()
	cfg.Tracker.Addr = "127.0.0.1:0"
	cfg.Tracker.WSAddr = ""
	cfg.Tracker.DBPath = filepath.Join(t.TempDir(), "tracker.db")

	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	go srv.Run()

	return srv, NewClient(srv.Addr().String())
}

func TestClientRegisterAndFind(t *testing.T) {
	_, client := newTestServerAndClient(t)

	if err := client.Register("myroom", "127.0.0.1:5510"); err != nil {
		t.Fatalf("register: %v", err)
	}

	entry, ok, err := client.Find("myroom")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !ok {
		t.Fatalf("expected room to be found")
	}
	if entry.Port != 5510 || !entry.IP.Equal(net.ParseIP("127.0.0.1")) {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestClientDeregister(t *testing.T) {
	_, client := newTestServerAndClient(t)

	if err := client.Register("temp", "127.0.0.1:5511"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := client.Deregister("temp"); err != nil {
		t.Fatalf("deregister: %v", err)
	}

	_, ok, err := client.Find("temp")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ok {
		t.Fatalf("expected room to be gone after deregister")
	}
}

func TestClientList(t *testing.T) {
	_, client := newTestServerAndClient(t)

	client.Register("a", "127.0.0.1:1")
	client.Register("b", "127.0.0.1:2")

	entries, err := client.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}
