package participant

import (
	"fmt"
	"os"

	"github.com/musicroom/musicroom/internal/queue"
	"github.com/musicroom/musicroom/internal/roomerr"
	"github.com/musicroom/musicroom/internal/wire"
)

// recvWorker owns the raw byte stream for one SONG_DATA body: it reads
// exactly bodyN bytes, writes them to the slot's backing file, replies
// RECV_OK, unlocks the slot and always signals connLoop to resume reading
// (spec §4.5 "worker responds RECV_OK... unlocks the slot and posts
// completion").
func (c *Client) recvWorker(slot *queue.Slot, pos int, bodyN uint32) {
	ok := true
	data, err := c.stream.ReadExact(int(bodyN))
	if err != nil {
		logger.Warnf("receive song data: %v", err)
		ok = false
	} else if werr := os.WriteFile(slot.Path(), data, 0o600); werr != nil {
		logger.Warnf("write song data: %v", werr)
		ok = false
	}
	slot.Unlock()

	if ok {
		if err := c.stream.WriteMessage(wire.Simple(wire.RECV_OK)); err != nil {
			logger.Warnf("recv_ok: %v", err)
		}
	}

	c.resumeCh <- struct{}{}
	select {
	case c.recvDoneCh <- recvDone{slot: slot, pos: pos, ok: ok}:
	case <-c.stopCh:
	}
}

func (c *Client) handleRecvDone(rd recvDone) {
	if !rd.ok {
		c.queue.RemoveByRef(rd.slot)
	}
}

// addSongWorker prompts-already-answered path: validates and feeds path
// into the reservation the host granted at pos, then emits SONG_DATA (spec
// §4.5's send-worker row).
func (c *Client) addSongWorker(path string, pos int) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Println(roomerr.Wrap(roomerr.KindFileUnreadable, "stat", err))
		c.stream.WriteMessage(wire.Simple(wire.CANCEL_REQ_ADD_TO_QUEUE))
		return
	}
	if info.Size() > c.cfg.Room.MaxFileSizeBytes {
		fmt.Println(roomerr.New(roomerr.KindFileTooLarge, "local file exceeds MaxFileSizeBytes"))
		c.stream.WriteMessage(wire.Simple(wire.CANCEL_REQ_ADD_TO_QUEUE))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(roomerr.Wrap(roomerr.KindFileUnreadable, "read", err))
		c.stream.WriteMessage(wire.Simple(wire.CANCEL_REQ_ADD_TO_QUEUE))
		return
	}
	if err := c.stream.WriteMessage(wire.New(wire.SONG_DATA, byte(pos), data)); err != nil {
		logger.Warnf("send song data: %v", err)
	}
}
