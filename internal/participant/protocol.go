package participant

import (
	"fmt"

	"github.com/musicroom/musicroom/internal/wire"
)

// handleMessage dispatches one fully-read message (SONG_DATA's header
// only; its body is owned by a receive worker) per spec §4.5's table.
func (c *Client) handleMessage(hdr wire.Header, body []byte) {
	switch hdr.Cmd {
	case wire.SONG_DATA:
		c.handleSongData(hdr)
	case wire.PLAY_NEXT:
		c.handlePlayNext(body)
	case wire.RES_ADD_TO_QUEUE_OK:
		c.handleAddOK(hdr.Opt)
	case wire.RES_ADD_TO_QUEUE_NOT_OK:
		fmt.Println("room queue is full; try again later")
	case wire.REMOVE_QUEUE_ENTRY:
		if err := c.queue.RemoveByPosition(int(hdr.Opt)); err != nil {
			logger.Warnf("remove queue entry %d: %v", hdr.Opt, err)
		}
	case wire.CLIENTS:
		fmt.Println(string(body))
	case wire.CHAT:
		line := string(body)
		c.chatLog.Push(line)
		fmt.Println(line)
	case wire.BAD_VALUES, wire.BAD_FORMAT:
		logger.Warnf("host rejected last message: %s", hdr.Cmd)
	default:
		logger.Debugf("ignoring %s", hdr.Cmd)
	}
}

// handleSongData reserves the slot the host declared in opt and spawns a
// receive worker to own the body bytes, mirroring internal/host's own
// resumeCh discipline (spec §4.5 "Clear host fd from master").
func (c *Client) handleSongData(hdr wire.Header) {
	pos := int(hdr.Opt)
	slot, err := c.queue.AddAtIndexAndLock(pos)
	if err != nil {
		logger.Warnf("reserve slot %d: %v", pos, err)
		bodyN := hdr.BodySize
		go func() {
			// Drain and discard off the reactor thread: the host already
			// committed to this body size and connLoop is waiting on
			// resumeCh regardless of whether the reservation succeeded.
			if _, derr := c.stream.ReadExact(int(bodyN)); derr != nil {
				logger.Warnf("drain rejected song data: %v", derr)
			}
			c.resumeCh <- struct{}{}
		}()
		return
	}
	go c.recvWorker(slot, pos, hdr.BodySize)
}

// handlePlayNext implements spec §4.5's PLAY_NEXT table row: pause first if
// playing, pop the head if the previous track's successor flag is set,
// then feed+play+seek the new head, clamping for arrival skew.
func (c *Client) handlePlayNext(body []byte) {
	roomTime, err := wire.DecodePlayNext(body)
	if err != nil {
		logger.Warnf("decode play_next: %v", err)
		return
	}
	if c.player.IsPlaying() {
		if err := c.player.Pause(); err != nil {
			logger.Warnf("pause: %v", err)
		}
	}
	if c.shouldRemoveFirstOnNext {
		if err := c.queue.RemoveFront(); err != nil {
			logger.Warnf("remove front: %v", err)
		}
	}

	front, ok := c.queue.Front()
	if !ok || front.Path() == "" || !front.TryLock() {
		c.shouldRemoveFirstOnNext = false
		return
	}
	defer front.Unlock()

	if _, err := c.player.Feed(front.Path()); err != nil {
		logger.Warnf("feed %s: %v", front.Path(), err)
		c.shouldRemoveFirstOnNext = false
		return
	}
	if err := c.player.Play(); err != nil {
		logger.Warnf("play: %v", err)
	}
	if err := c.player.Seek(clampSeek(roomTime)); err != nil {
		logger.Warnf("seek: %v", err)
	}
	c.shouldRemoveFirstOnNext = true
}

// handleAddOK records the queue position the host reserved and prompts the
// user for the local file to upload into it (spec §4.5 "Clear stdin from
// master. Spawn send worker").
func (c *Client) handleAddOK(pos byte) {
	p := int(pos)
	c.awaitingAddPos = &p
	fmt.Print("file path to add (-1 to cancel): ")
}

func (c *Client) completeAddSong(path string) {
	pos := *c.awaitingAddPos
	c.awaitingAddPos = nil

	if path == "-1" {
		if err := c.stream.WriteMessage(wire.Simple(wire.CANCEL_REQ_ADD_TO_QUEUE)); err != nil {
			logger.Warnf("cancel req add: %v", err)
		}
		return
	}
	go c.addSongWorker(path, pos)
}
