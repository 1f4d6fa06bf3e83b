// Package host implements the room host reactor (spec §4.4, C6): a
// single-threaded event loop over a listener, participant sockets, stdin
// and three worker-completion channels, owning the shared queue and the
// local audio player.
//
// Grounded on the teacher's hostedGroup broadcast loop and memberConn
// per-connection goroutine pattern (internal/group/manager.go), translated
// from spec.md's select()-over-fds description into Go channels per
// SPEC_FULL.md §5.1.
package host

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/musicroom/musicroom/internal/config"
	"github.com/musicroom/musicroom/internal/help"
	"github.com/musicroom/musicroom/internal/player"
	"github.com/musicroom/musicroom/internal/queue"
	"github.com/musicroom/musicroom/internal/util"
	"github.com/musicroom/musicroom/internal/wire"
)

var logger = logging.Logger("host")

// chatHistoryCap bounds the "history" command's scrollback to the most
// recent lines, so a long-running room's chat log can't grow forever.
const chatHistoryCap = 200

// maxInlineBody bounds the small, non-SONG_DATA bodies connLoop reads for
// itself (CHAT text, JOIN's name) before forwarding a complete message to
// the reactor. SONG_DATA is the only command whose body bypasses this path.
const maxInlineBody = 4096

// Registrar is the optional tracker hook a Host uses to announce itself.
// Implemented by internal/tracker's client; nil means no tracker configured.
type Registrar interface {
	Register(name, addr string) error
	Deregister(name string) error
}

// Host runs one listening room.
type Host struct {
	cfg        config.Config
	configPath string
	roomName   string

	listener net.Listener
	queue    *queue.Queue
	player   player.Player
	registrar Registrar

	participants map[string]*Participant

	playing   bool
	startTime int64 // unix seconds the current track began

	awaitingSongPath *queue.Slot

	chatLog *util.RingBuffer[string]

	acceptCh   chan net.Conn
	connEvents chan connEvent
	recvDoneCh chan recvResult
	sendDoneCh chan sendResult
	audioDone  chan struct{}
	stdinLines chan string

	watcher *config.Watcher

	stopCh chan struct{}
}

// New constructs a Host bound to cfg.Room.ListenAddr. It does not start
// accepting connections until Run is called. configPath, if non-empty, is
// watched for live edits to room.max_songs/client.prompt while running.
func New(cfg config.Config, configPath, roomName string, p player.Player, registrar Registrar) (*Host, error) {
	ln, err := net.Listen("tcp", cfg.Room.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Host{
		cfg:          cfg,
		configPath:   configPath,
		roomName:     roomName,
		listener:     ln,
		queue:        queue.New(cfg.Room.MaxSongs, cfg.Room.TempDir),
		player:       p,
		registrar:    registrar,
		chatLog:      util.NewRingBuffer[string](chatHistoryCap),
		participants: make(map[string]*Participant),
		acceptCh:     make(chan net.Conn),
		connEvents:   make(chan connEvent, 16),
		recvDoneCh:   make(chan recvResult, 16),
		sendDoneCh:   make(chan sendResult, 16),
		audioDone:    make(chan struct{}, 1),
		stdinLines:   make(chan string, 1),
		stopCh:       make(chan struct{}),
	}, nil
}

// Addr returns the listener's bound address.
func (h *Host) Addr() net.Addr { return h.listener.Addr() }

// Run drives the reactor loop until Shutdown is called or a fatal error
// occurs. It owns every mutation of participants, the queue and the
// player — nothing else in this package touches them outside this
// goroutine's call stack.
func (h *Host) Run() error {
	if h.registrar != nil {
		if err := h.registrar.Register(h.roomName, h.listener.Addr().String()); err != nil {
			logger.Warnf("tracker register: %v", err)
		}
	}

	go h.acceptLoop()
	go h.stdinLoop()

	// configChanges is nil (blocks forever in the select below) unless a
	// config path was given and the watcher started cleanly, so a room run
	// from flags alone never pays for fsnotify.
	var configChanges <-chan config.Config
	if h.configPath != "" {
		w, err := config.Watch(h.configPath)
		if err != nil {
			logger.Warnf("config watch disabled: %v", err)
		} else {
			h.watcher = w
			configChanges = w.Changes
		}
	}

	for {
		select {
		case <-h.stopCh:
			return h.teardown()
		case conn := <-h.acceptCh:
			h.handleAccept(conn)
		case line := <-h.stdinLines:
			h.handleStdinLine(line)
		case ev := <-h.connEvents:
			h.handleConnEvent(ev)
		case rd := <-h.recvDoneCh:
			h.handleRecvDone(rd)
		case sd := <-h.sendDoneCh:
			h.handleSendDone(sd)
		case <-h.audioDone:
			h.handleAudioDone()
		case cfg := <-configChanges:
			h.handleConfigChange(cfg)
		}
	}
}

// handleConfigChange applies a hot-reloaded config: MAX_SONGS takes effect
// on the queue immediately and MAX_FILE_SIZE_BYTES on the next upload,
// without restarting the room (spec §1.1). client.prompt is copied into
// h.cfg too, but no host output reads it: the local "add song" prompt is
// a fixed string.
func (h *Host) handleConfigChange(cfg config.Config) {
	h.cfg.Room.MaxSongs = cfg.Room.MaxSongs
	h.cfg.Room.MaxFileSizeBytes = cfg.Room.MaxFileSizeBytes
	h.cfg.Client.Prompt = cfg.Client.Prompt
	h.queue.SetMaxSongs(cfg.Room.MaxSongs)
	logger.Infof("config reloaded: max_songs=%d", cfg.Room.MaxSongs)
}

// Shutdown stops the reactor loop. Safe to call once.
func (h *Host) Shutdown() {
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
	}
}

func (h *Host) teardown() error {
	if h.watcher != nil {
		h.watcher.Close()
	}
	if h.registrar != nil {
		if err := h.registrar.Deregister(h.roomName); err != nil {
			logger.Warnf("tracker deregister: %v", err)
		}
	}
	for _, p := range h.participants {
		p.Stream.Close()
	}
	h.queue.Close()
	h.player.Close()
	return h.listener.Close()
}

func (h *Host) acceptLoop() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			return
		}
		select {
		case h.acceptCh <- conn:
		case <-h.stopCh:
			conn.Close()
			return
		}
	}
}

func (h *Host) stdinLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		select {
		case h.stdinLines <- line:
		case <-h.stopCh:
			return
		}
	}
}

func (h *Host) handleAccept(conn net.Conn) {
	stream := wire.NewStream(conn)
	p := newParticipant(uuid.NewString(), stream)
	h.participants[p.ID] = p
	logger.Infof("participant %s connected from %s", p.ID, conn.RemoteAddr())
	go h.connLoop(p)
}

// connLoop is the single permanent reader for one participant's socket. It
// reads a header, and for every command except SONG_DATA reads the (small)
// body itself before handing a complete message to the reactor. For
// SONG_DATA it hands off the bare header and blocks on resumeCh until a
// receive worker has consumed the body — the Go realization of "clear fd
// from master set before spawning a worker, re-arm on completion."
func (h *Host) connLoop(p *Participant) {
	for {
		hdr, err := p.Stream.ReadHeader()
		if err != nil {
			h.connEvents <- connEvent{p: p, err: err}
			return
		}
		if !hdr.Cmd.Valid() {
			h.connEvents <- connEvent{p: p, cmd: byte(hdr.Cmd), opt: hdr.Opt}
			return
		}
		if hdr.Cmd == wire.SONG_DATA {
			h.connEvents <- connEvent{p: p, cmd: byte(hdr.Cmd), opt: hdr.Opt, bodyN: hdr.BodySize}
			<-p.resumeCh
			continue
		}
		var body []byte
		if hdr.BodySize > 0 {
			if hdr.BodySize > maxInlineBody {
				h.connEvents <- connEvent{p: p, cmd: byte(wire.BAD_FORMAT)}
				return
			}
			body, err = p.Stream.ReadExact(int(hdr.BodySize))
			if err != nil {
				h.connEvents <- connEvent{p: p, err: err}
				return
			}
		}
		h.connEvents <- connEvent{p: p, cmd: byte(hdr.Cmd), opt: hdr.Opt, body: body}
	}
}

func (h *Host) handleStdinLine(line string) {
	if h.awaitingSongPath != nil {
		h.completeLocalAddSong(strings.TrimSpace(line))
		return
	}

	line = strings.TrimSpace(line)
	switch {
	case line == "add song":
		h.beginLocalAddSong()
	case line == "mute":
		h.player.Mute()
	case line == "unmute":
		h.player.Unmute()
	case line == "clients":
		fmt.Println(h.rosterText())
	case strings.HasPrefix(line, "chat "):
		h.localChat(strings.TrimPrefix(line, "chat "))
	case line == "history":
		for _, entry := range h.chatLog.Snapshot() {
			fmt.Println(entry)
		}
	case line == "help":
		fmt.Println(help.Render(help.SessionCommands))
	case line == "faq":
		if text, err := help.FAQ(); err == nil {
			fmt.Println(text)
		}
	case line == "exit", line == "quit":
		h.Shutdown()
	case line == "":
	default:
		fmt.Println("unknown command")
	}
}

func (h *Host) beginLocalAddSong() {
	slot, err := h.queue.AddLocalAndLock()
	if err != nil {
		fmt.Println("queue is full")
		return
	}
	fmt.Print("file path (-1 to cancel): ")
	h.awaitingSongPath = slot
}

func (h *Host) completeLocalAddSong(path string) {
	slot := h.awaitingSongPath
	h.awaitingSongPath = nil

	if path == "-1" {
		slot.Unlock()
		h.handleRemoveQueueEntry(slot)
		return
	}
	if err := validateLocalFile(path, h.cfg.Room.MaxFileSizeBytes); err != nil {
		fmt.Println(err)
		slot.Unlock()
		h.handleRemoveQueueEntry(slot)
		return
	}
	slot.SetPath(path)
	slot.Unlock()
	h.recvDoneCh <- recvResult{p: nil, slot: slot, ok: true}
}

func (h *Host) rosterText() string {
	names := make([]string, 0, len(h.participants))
	for _, p := range h.participants {
		names = append(names, p.Name)
	}
	return strings.Join(names, "\n")
}

func (h *Host) localChat(text string) {
	h.chatLog.Push("me: " + text)
	msg := wire.New(wire.CHAT, 0, []byte(text))
	for _, p := range h.participants {
		if err := p.Stream.WriteMessage(msg); err != nil {
			logger.Warnf("chat to %s: %v", p.ID, err)
		}
	}
}

// removeParticipant drops a participant from the room, releasing any slot
// it was reserving (spec §3 "Lifecycle").
func (h *Host) removeParticipant(p *Participant) {
	if _, ok := h.participants[p.ID]; !ok {
		return
	}
	delete(h.participants, p.ID)
	p.Stream.Close()
	if p.pendingSlot != nil {
		// Still locked from AddTempAndLock since no receive worker ever
		// ran for it; unlock before RemoveByRef re-locks it.
		slot := p.pendingSlot
		p.pendingSlot = nil
		slot.Unlock()
		h.handleRemoveQueueEntry(slot)
	}
	logger.Infof("participant %s disconnected", p.ID)
}

func (h *Host) handleRemoveQueueEntry(slot *queue.Slot) {
	pos, ok := h.queue.PositionOf(slot)
	h.queue.RemoveByRef(slot)
	if !ok {
		return
	}
	h.broadcast(wire.New(wire.REMOVE_QUEUE_ENTRY, byte(pos), nil))
}

func (h *Host) broadcast(msg wire.Message) {
	for _, p := range h.participants {
		if err := p.Stream.WriteMessage(msg); err != nil {
			logger.Warnf("broadcast to %s: %v", p.ID, err)
		}
	}
}

func (h *Host) audioWaiter(done <-chan struct{}) {
	<-done
	select {
	case h.audioDone <- struct{}{}:
	case <-h.stopCh:
	}
}

// elapsed since start_time, for logging/diagnostics only.
func (h *Host) elapsed() time.Duration {
	if h.startTime == 0 {
		return 0
	}
	return time.Since(time.Unix(h.startTime, 0))
}
