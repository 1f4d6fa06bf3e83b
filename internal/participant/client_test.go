package participant

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/musicroom/musicroom/internal/config"
	"github.com/musicroom/musicroom/internal/player"
	"github.com/musicroom/musicroom/internal/wire"
)

type fakePlayer struct {
	fed        string
	playing    bool
	lastSeek   time.Duration
	playCalls  int
	doneCh     chan struct{}
}

func newFakePlayer() *fakePlayer { return &fakePlayer{doneCh: make(chan struct{})} }

func (f *fakePlayer) Feed(path string) (player.Info, error) {
	f.fed = path
	return player.Info{Path: path}, nil
}
func (f *fakePlayer) Play() error               { f.playing = true; f.playCalls++; return nil }
func (f *fakePlayer) Pause() error              { f.playing = false; return nil }
func (f *fakePlayer) Seek(d time.Duration) error { f.lastSeek = d; return nil }
func (f *fakePlayer) Mute()                      {}
func (f *fakePlayer) Unmute()                    {}
func (f *fakePlayer) IsPlaying() bool            { return f.playing }
func (f *fakePlayer) Position() time.Duration    { return 0 }
func (f *fakePlayer) WaitForEnd() <-chan struct{} { return f.doneCh }
func (f *fakePlayer) Close() error               { return nil }

// pipeHost is a minimal stand-in for internal/host good enough to drive the
// participant reactor's protocol handling without a real Host.
type pipeHost struct {
	stream *wire.Stream
}

func newTestClient(t *testing.T) (*Client, *pipeHost, *fakePlayer) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })

	host := &pipeHost{stream: wire.NewStream(serverConn)}

	cfg := config.Default()
	cfg.Room.TempDir = t.TempDir()
	cfg.Room.MaxFileSizeBytes = 1 << 20

	fp := newFakePlayer()
	cl := New(cfg, wire.NewStream(clientConn), fp)
	return cl, host, fp
}

func TestJoinHandshake(t *testing.T) {
	cl, host, _ := newTestClient(t)

	joinResult := make(chan error, 1)
	go func() { joinResult <- cl.join("tester") }()

	hdr, err := host.stream.ReadHeader()
	if err != nil {
		t.Fatalf("read join: %v", err)
	}
	if hdr.Cmd != wire.JOIN {
		t.Fatalf("expected JOIN, got %s", hdr.Cmd)
	}
	if _, err := host.stream.ReadExact(int(hdr.BodySize)); err != nil {
		t.Fatalf("read join body: %v", err)
	}
	if err := host.stream.WriteMessage(wire.Simple(wire.RES_OK)); err != nil {
		t.Fatalf("write res_ok: %v", err)
	}

	if err := <-joinResult; err != nil {
		t.Fatalf("join: %v", err)
	}
}

func TestHandlePlayNextFeedsAndSeeks(t *testing.T) {
	cl, _, fp := newTestClient(t)

	path := filepath.Join(t.TempDir(), "track.mp3")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("write track: %v", err)
	}
	slot, err := cl.queue.AddAtIndexAndLock(0)
	if err != nil {
		t.Fatalf("reserve slot: %v", err)
	}
	slot.SetPath(path)
	slot.Unlock()

	startTime := time.Now().Add(-2 * time.Second).Unix()
	cl.handlePlayNext(encodeStartTime(startTime))

	if fp.fed != path {
		t.Fatalf("expected player fed %q, got %q", path, fp.fed)
	}
	if !fp.playing {
		t.Fatalf("expected player to be playing")
	}
	if fp.lastSeek < time.Second {
		t.Fatalf("expected a seek of roughly 2s, got %v", fp.lastSeek)
	}
	if !cl.shouldRemoveFirstOnNext {
		t.Fatalf("expected shouldRemoveFirstOnNext to be set after a successful feed")
	}
}

func TestHandlePlayNextPopsHeadOnSecondCall(t *testing.T) {
	cl, _, fp := newTestClient(t)

	first := filepath.Join(t.TempDir(), "a.mp3")
	second := filepath.Join(t.TempDir(), "b.mp3")
	os.WriteFile(first, []byte("a"), 0o600)
	os.WriteFile(second, []byte("b"), 0o600)

	slotA, _ := cl.queue.AddAtIndexAndLock(0)
	slotA.SetPath(first)
	slotA.Unlock()
	slotB, _ := cl.queue.AddAtIndexAndLock(1)
	slotB.SetPath(second)
	slotB.Unlock()

	cl.handlePlayNext(encodeStartTime(time.Now().Unix()))
	if fp.fed != first {
		t.Fatalf("expected first track fed, got %q", fp.fed)
	}

	cl.handlePlayNext(encodeStartTime(time.Now().Unix()))
	if fp.fed != second {
		t.Fatalf("expected second track fed after pop, got %q", fp.fed)
	}
	if cl.queue.Len() != 1 {
		t.Fatalf("expected one slot remaining after pop, got %d", cl.queue.Len())
	}
}

func TestRemoveQueueEntryByPosition(t *testing.T) {
	cl, _, _ := newTestClient(t)

	slot, _ := cl.queue.AddAtIndexAndLock(0)
	slot.Unlock()
	if cl.queue.Len() != 1 {
		t.Fatalf("expected one slot")
	}

	cl.handleMessage(wire.Header{Cmd: wire.REMOVE_QUEUE_ENTRY, Opt: 0}, nil)
	if cl.queue.Len() != 0 {
		t.Fatalf("expected slot removed, len=%d", cl.queue.Len())
	}
}

func encodeStartTime(t int64) []byte {
	msg := wire.EncodePlayNext(t)
	return msg.Body
}
