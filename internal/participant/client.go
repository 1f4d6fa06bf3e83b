// Package participant implements the client-side reactor (spec §4.5, C7):
// a cooperative loop over the host connection, stdin and one
// worker-completion channel, mirroring internal/host's discipline from the
// other end of the wire.
package participant

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/musicroom/musicroom/internal/config"
	"github.com/musicroom/musicroom/internal/help"
	"github.com/musicroom/musicroom/internal/player"
	"github.com/musicroom/musicroom/internal/queue"
	"github.com/musicroom/musicroom/internal/util"
	"github.com/musicroom/musicroom/internal/wire"
)

var logger = logging.Logger("participant")

// chatHistoryCap bounds the "history" command's scrollback to the most
// recent lines, so a long-running session's chat log can't grow forever.
const chatHistoryCap = 200

// msgEvent is what connLoop posts for every message except SONG_DATA's
// body, which a receive worker owns instead (spec §4.5's "clear host fd
// from master").
type msgEvent struct {
	hdr  wire.Header
	body []byte
	err  error
}

// recvDone is the completion record a receive worker posts after filling
// the reserved slot for an incoming SONG_DATA.
type recvDone struct {
	slot *queue.Slot
	pos  int
	ok   bool
}

// Client drives one participant's view of a room.
type Client struct {
	cfg    config.Config
	stream *wire.Stream
	queue  *queue.Queue
	player player.Player

	// shouldRemoveFirstOnNext mirrors the spec's per-client flag: the next
	// PLAY_NEXT pops the current head before feeding the new one, because a
	// track already fed once must be advanced past on its successor.
	shouldRemoveFirstOnNext bool

	awaitingAddPos *int // set between RES_ADD_TO_QUEUE_OK and the local file prompt's answer

	chatLog *util.RingBuffer[string]

	msgCh      chan msgEvent
	recvDoneCh chan recvDone
	stdinLines chan string
	resumeCh   chan struct{}

	stopCh chan struct{}
}

// New wraps an already-connected stream to the host and returns a Client
// ready for Run.
func New(cfg config.Config, stream *wire.Stream, p player.Player) *Client {
	return &Client{
		cfg:        cfg,
		stream:     stream,
		queue:      queue.New(cfg.Room.MaxSongs, cfg.Room.TempDir),
		player:     p,
		chatLog:    util.NewRingBuffer[string](chatHistoryCap),
		msgCh:      make(chan msgEvent, 8),
		recvDoneCh: make(chan recvDone, 8),
		stdinLines: make(chan string, 1),
		resumeCh:   make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// Run joins the room and drives the reactor loop until Shutdown is called
// or the host connection is lost.
func (c *Client) Run(displayName string) error {
	if err := c.join(displayName); err != nil {
		return err
	}

	go c.connLoop()
	go c.stdinLoop()

	for {
		select {
		case <-c.stopCh:
			return c.teardown()
		case ev := <-c.msgCh:
			if ev.err != nil {
				logger.Warnf("host connection: %v", ev.err)
				return c.teardown()
			}
			c.handleMessage(ev.hdr, ev.body)
		case rd := <-c.recvDoneCh:
			c.handleRecvDone(rd)
		case line := <-c.stdinLines:
			c.handleStdinLine(line)
		}
	}
}

func (c *Client) join(displayName string) error {
	opt := byte(0)
	var body []byte
	if displayName != "" {
		opt = wire.JoinOptName
		body = append([]byte(displayName), 0)
	}
	if err := c.stream.WriteMessage(wire.New(wire.JOIN, opt, body)); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	hdr, err := c.stream.ReadHeader()
	if err != nil {
		return fmt.Errorf("join reply: %w", err)
	}
	if hdr.Cmd != wire.RES_OK {
		return fmt.Errorf("join rejected: %s", hdr.Cmd)
	}
	return nil
}

// Shutdown stops the reactor loop. Safe to call once.
func (c *Client) Shutdown() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

func (c *Client) teardown() error {
	c.stream.Close()
	c.queue.Close()
	return c.player.Close()
}

// connLoop is the single permanent reader of the host connection. Like
// internal/host's per-participant connLoop, every command except SONG_DATA
// is read and forwarded whole; SONG_DATA hands off a bare header and waits
// on resumeCh for a receive worker to consume the body.
func (c *Client) connLoop() {
	for {
		hdr, err := c.stream.ReadHeader()
		if err != nil {
			c.msgCh <- msgEvent{err: err}
			return
		}
		if hdr.Cmd == wire.SONG_DATA {
			c.msgCh <- msgEvent{hdr: hdr}
			<-c.resumeCh
			continue
		}
		var body []byte
		if hdr.BodySize > 0 {
			body, err = c.stream.ReadExact(int(hdr.BodySize))
			if err != nil {
				c.msgCh <- msgEvent{err: err}
				return
			}
		}
		c.msgCh <- msgEvent{hdr: hdr, body: body}
	}
}

func (c *Client) stdinLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case c.stdinLines <- scanner.Text():
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) handleStdinLine(line string) {
	if c.awaitingAddPos != nil {
		c.completeAddSong(strings.TrimSpace(line))
		return
	}

	switch strings.TrimSpace(line) {
	case "add song":
		if err := c.stream.WriteMessage(wire.Simple(wire.REQ_ADD_TO_QUEUE)); err != nil {
			logger.Warnf("req add: %v", err)
		}
	case "mute":
		c.player.Mute()
	case "unmute":
		c.player.Unmute()
	case "clients":
		if err := c.stream.WriteMessage(wire.Simple(wire.CLIENTS)); err != nil {
			logger.Warnf("clients: %v", err)
		}
	case "help":
		fmt.Println(help.Render(help.SessionCommands))
	case "faq":
		if text, err := help.FAQ(); err == nil {
			fmt.Println(text)
		}
	case "history":
		for _, line := range c.chatLog.Snapshot() {
			fmt.Println(line)
		}
	case "exit", "quit":
		c.stream.WriteMessage(wire.Simple(wire.LEAVE))
		c.Shutdown()
	case "":
	default:
		if strings.HasPrefix(line, "chat ") {
			c.sendChat(strings.TrimPrefix(line, "chat "))
			return
		}
		fmt.Println("unknown command")
	}
}

func (c *Client) sendChat(text string) {
	c.chatLog.Push("me: " + text)
	if err := c.stream.WriteMessage(wire.New(wire.CHAT, 0, []byte(text))); err != nil {
		logger.Warnf("chat: %v", err)
	}
}

// clampSeek mirrors spec §4.5's PLAY_NEXT seek clamp: max(0, now-room_time)
// bounded to [0, 86400) seconds, the sane upper bound for a single track.
func clampSeek(roomTime int64) time.Duration {
	delta := time.Now().Unix() - roomTime
	if delta < 0 {
		delta = 0
	}
	if delta >= 86400 {
		delta = 86399
	}
	return time.Duration(delta) * time.Second
}
