package host

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/musicroom/musicroom/internal/config"
	"github.com/musicroom/musicroom/internal/player"
	"github.com/musicroom/musicroom/internal/wire"
)

// fakePlayer satisfies player.Player without touching any audio device, so
// the reactor's playback bookkeeping can be exercised deterministically.
type fakePlayer struct {
	fed     string
	playing bool
	done    chan struct{}
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{done: make(chan struct{})}
}

func (f *fakePlayer) Feed(path string) (player.Info, error) {
	f.fed = path
	return player.Info{Path: path}, nil
}
func (f *fakePlayer) Play() error             { f.playing = true; return nil }
func (f *fakePlayer) Pause() error            { f.playing = false; return nil }
func (f *fakePlayer) Seek(time.Duration) error { return nil }
func (f *fakePlayer) Mute()                   {}
func (f *fakePlayer) Unmute()                 {}
func (f *fakePlayer) IsPlaying() bool         { return f.playing }
func (f *fakePlayer) Position() time.Duration { return 0 }
func (f *fakePlayer) WaitForEnd() <-chan struct{} { return f.done }
func (f *fakePlayer) Close() error            { return nil }

func newTestHost(t *testing.T, maxSongs int) (*Host, *fakePlayer) {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := config.Default()
	cfg.Room.ListenAddr = "127.0.0.1:0"
	cfg.Room.MaxSongs = maxSongs
	cfg.Room.TempDir = tmpDir
	cfg.Room.MaxFileSizeBytes = 1024

	fp := newFakePlayer()
	h, err := New(cfg, "", "test-room", fp, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go h.Run()
	t.Cleanup(h.Shutdown)
	return h, fp
}

func dial(t *testing.T, h *Host) *wire.Stream {
	t.Helper()
	conn, err := net.DialTimeout("tcp", h.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return wire.NewStream(conn)
}

func expectHeader(t *testing.T, s *wire.Stream, want wire.Command) wire.Header {
	t.Helper()
	hdr, err := s.ReadHeader()
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if hdr.Cmd != want {
		t.Fatalf("expected %s, got %s", want, hdr.Cmd)
	}
	return hdr
}

func TestJoinReceivesResOK(t *testing.T) {
	h, _ := newTestHost(t, 4)
	s := dial(t, h)
	defer s.Close()

	if err := s.WriteMessage(wire.New(wire.JOIN, wire.JoinOptName, []byte("alice\x00"))); err != nil {
		t.Fatalf("write join: %v", err)
	}
	expectHeader(t, s, wire.RES_OK)
}

func TestAddSongFlowEndsWithPlayNext(t *testing.T) {
	h, fp := newTestHost(t, 4)
	s := dial(t, h)
	defer s.Close()

	if err := s.WriteMessage(wire.New(wire.JOIN, 0, nil)); err != nil {
		t.Fatalf("write join: %v", err)
	}
	expectHeader(t, s, wire.RES_OK)

	if err := s.WriteMessage(wire.Simple(wire.REQ_ADD_TO_QUEUE)); err != nil {
		t.Fatalf("write req add: %v", err)
	}
	expectHeader(t, s, wire.RES_ADD_TO_QUEUE_OK)

	body := []byte("not actually an mp3 but enough bytes")
	if err := s.WriteMessage(wire.New(wire.SONG_DATA, 0, body)); err != nil {
		t.Fatalf("write song data: %v", err)
	}
	expectHeader(t, s, wire.RECV_OK)

	hdr := expectHeader(t, s, wire.PLAY_NEXT)
	playBody, err := s.ReadExact(int(hdr.BodySize))
	if err != nil {
		t.Fatalf("read play_next body: %v", err)
	}
	if _, err := wire.DecodePlayNext(playBody); err != nil {
		t.Fatalf("decode play_next: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for fp.fed == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fp.fed == "" {
		t.Fatalf("expected fake player to have been fed a track")
	}
	if _, err := os.Stat(fp.fed); err != nil {
		t.Fatalf("expected fed path to exist: %v", err)
	}
}

func TestQueueFullRejectsReqAdd(t *testing.T) {
	h, _ := newTestHost(t, 1)
	s := dial(t, h)
	defer s.Close()

	if err := s.WriteMessage(wire.New(wire.JOIN, 0, nil)); err != nil {
		t.Fatalf("write join: %v", err)
	}
	expectHeader(t, s, wire.RES_OK)

	if err := s.WriteMessage(wire.Simple(wire.REQ_ADD_TO_QUEUE)); err != nil {
		t.Fatalf("write req add: %v", err)
	}
	expectHeader(t, s, wire.RES_ADD_TO_QUEUE_OK)

	// A second participant asks while the only slot is reserved: the queue
	// is full. (The first participant asking again would instead be
	// rejected for already holding an open reservation.)
	other := dial(t, h)
	defer other.Close()
	if err := other.WriteMessage(wire.New(wire.JOIN, 0, nil)); err != nil {
		t.Fatalf("write second join: %v", err)
	}
	expectHeader(t, other, wire.RES_OK)

	if err := other.WriteMessage(wire.Simple(wire.REQ_ADD_TO_QUEUE)); err != nil {
		t.Fatalf("write second req add: %v", err)
	}
	expectHeader(t, other, wire.RES_ADD_TO_QUEUE_NOT_OK)
}

func TestOversizeSongDataRejectedUpFront(t *testing.T) {
	h, _ := newTestHost(t, 4)
	s := dial(t, h)
	defer s.Close()

	if err := s.WriteMessage(wire.New(wire.JOIN, 0, nil)); err != nil {
		t.Fatalf("write join: %v", err)
	}
	expectHeader(t, s, wire.RES_OK)

	if err := s.WriteMessage(wire.Simple(wire.REQ_ADD_TO_QUEUE)); err != nil {
		t.Fatalf("write req add: %v", err)
	}
	expectHeader(t, s, wire.RES_ADD_TO_QUEUE_OK)

	// Declare a body far larger than cfg.Room.MaxFileSizeBytes (1024) without
	// actually sending that many bytes: the host must reject from the
	// header alone, never attempting to read a body this large.
	oversized := wire.Header{Cmd: wire.SONG_DATA, Opt: 0, BodySize: 10 * 1024 * 1024}
	if err := s.WriteHeaderAndBody(oversized, nil); err != nil {
		t.Fatalf("write oversized header: %v", err)
	}
	expectHeader(t, s, wire.BAD_VALUES)
}

func TestSecondParticipantCatchesUpOnPlayingTrack(t *testing.T) {
	h, _ := newTestHost(t, 4)

	first := dial(t, h)
	defer first.Close()
	if err := first.WriteMessage(wire.New(wire.JOIN, 0, nil)); err != nil {
		t.Fatalf("first join: %v", err)
	}
	expectHeader(t, first, wire.RES_OK)

	if err := first.WriteMessage(wire.Simple(wire.REQ_ADD_TO_QUEUE)); err != nil {
		t.Fatalf("req add: %v", err)
	}
	expectHeader(t, first, wire.RES_ADD_TO_QUEUE_OK)
	if err := first.WriteMessage(wire.New(wire.SONG_DATA, 0, []byte("songbytes"))); err != nil {
		t.Fatalf("song data: %v", err)
	}
	expectHeader(t, first, wire.RECV_OK)
	expectHeader(t, first, wire.PLAY_NEXT)

	second := dial(t, h)
	defer second.Close()
	if err := second.WriteMessage(wire.New(wire.JOIN, 0, nil)); err != nil {
		t.Fatalf("second join: %v", err)
	}
	expectHeader(t, second, wire.RES_OK)

	// The newcomer should receive the already-playing track's SONG_DATA
	// followed by a PLAY_NEXT carrying the same start_time, without having
	// requested anything itself.
	songHdr := expectHeader(t, second, wire.SONG_DATA)
	if _, err := second.ReadExact(int(songHdr.BodySize)); err != nil {
		t.Fatalf("read catch-up song body: %v", err)
	}
	expectHeader(t, second, wire.PLAY_NEXT)
}
