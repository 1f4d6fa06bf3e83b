package host

import (
	"strings"

	"github.com/musicroom/musicroom/internal/roomerr"
	"github.com/musicroom/musicroom/internal/util"
	"github.com/musicroom/musicroom/internal/wire"
)

// handleConnEvent dispatches one message (or terminal error) reported by a
// participant's connLoop. This is the reactor's only entry point for
// anything arriving over a participant socket (spec §4.4.2).
func (h *Host) handleConnEvent(ev connEvent) {
	if ev.err != nil {
		if !roomerr.Is(ev.err, roomerr.KindPeerClosed) {
			logger.Warnf("participant %s: %v", ev.p.ID, ev.err)
		}
		h.removeParticipant(ev.p)
		return
	}

	switch wire.Command(ev.cmd) {
	case wire.JOIN:
		h.handleJoin(ev.p, ev.opt, ev.body)
	case wire.LEAVE:
		h.removeParticipant(ev.p)
	case wire.REQ_ADD_TO_QUEUE:
		h.handleReqAdd(ev.p, ev.body)
	case wire.CANCEL_REQ_ADD_TO_QUEUE:
		h.handleCancel(ev.p)
	case wire.SONG_DATA:
		h.handleSongDataHeader(ev.p, ev.opt, ev.bodyN)
	case wire.CLIENTS:
		h.handleClients(ev.p)
	case wire.CHAT:
		h.handleChat(ev.p, ev.body)
	case wire.RECV_OK:
		h.attemptPlayNext()
	default:
		h.reject(ev.p)
	}
}

// handleJoin admits a participant, records its display name and catches it
// up on every queued slot whose fan-out has already started (Sent() > 0),
// which is at most the current head (spec §4.4.2, Open Question 2). Other
// queued slots reach the newcomer through fanOut when they start playing.
func (h *Host) handleJoin(p *Participant, opt byte, body []byte) {
	raw := strings.TrimRight(string(body), "\x00")
	if opt == wire.JoinOptName && raw != "" {
		if name, err := util.ValidateParticipantName(raw); err == nil {
			p.Name = name
		}
	}
	if err := p.Stream.WriteMessage(wire.Simple(wire.RES_OK)); err != nil {
		logger.Warnf("join reply to %s: %v", p.ID, err)
		h.removeParticipant(p)
		return
	}

	songs := h.queue.Songs()
	catchUp := make([]int, 0, len(songs))
	for i, s := range songs {
		if s.Sent() > 0 {
			catchUp = append(catchUp, i)
		}
	}
	p.entriesUntilSynced = len(catchUp)
	for _, pos := range catchUp {
		h.fanOutTo(p, songs[pos], pos)
	}
}

// handleReqAdd reserves a slot for an incoming upload request. Only valid
// from Idle (spec §4.4.1): a participant with a reservation already open
// must cancel or complete it first, since a second AddTempAndLock would
// overwrite pendingSlot and leak the first slot locked forever.
func (h *Host) handleReqAdd(p *Participant, body []byte) {
	if p.pendingSlot != nil {
		h.reject(p)
		return
	}
	slot, err := h.queue.AddTempAndLock()
	if err != nil {
		h.reply(p, wire.Simple(wire.RES_ADD_TO_QUEUE_NOT_OK))
		return
	}
	pos, _ := h.queue.PositionOf(slot)
	p.pendingSlot = slot
	h.reply(p, wire.New(wire.RES_ADD_TO_QUEUE_OK, byte(pos), body))
	// slot stays locked until the receive worker finishes writing it (or
	// handleCancel/removeParticipant release it below), so attemptPlayNext's
	// TryLock correctly refuses to start a reservation still being filled.
}

// handleCancel releases a reservation the same participant made but never
// filled. The slot is still held locked from AddTempAndLock, since no
// receive worker ever ran for it; unlock before removal so RemoveByRef's
// own Lock/Unlock doesn't deadlock against this goroutine.
func (h *Host) handleCancel(p *Participant) {
	if p.pendingSlot == nil {
		h.reject(p)
		return
	}
	slot := p.pendingSlot
	p.pendingSlot = nil
	slot.Unlock()
	h.handleRemoveQueueEntry(slot)
}

// handleSongDataHeader enforces the size ceiling up front (Open Question 1)
// and, if accepted, spawns a receive worker to own the body bytes. A
// rejected header is never drained: since the declared body is still
// in flight on the wire with no worker left to consume it, the only way
// to keep framing intact is to drop the connection rather than resume
// connLoop's header reads against a stream it no longer aligns with.
func (h *Host) handleSongDataHeader(p *Participant, pos byte, bodyN uint32) {
	if uint64(bodyN) > uint64(h.cfg.Room.MaxFileSizeBytes) || p.pendingSlot == nil {
		h.reply(p, wire.Simple(wire.BAD_VALUES))
		if p.pendingSlot != nil {
			slot := p.pendingSlot
			p.pendingSlot = nil
			slot.Unlock()
			h.handleRemoveQueueEntry(slot)
		}
		p.resumeCh <- struct{}{} // unblock connLoop so it can observe the close
		h.removeParticipant(p)
		return
	}
	slot := p.pendingSlot
	p.pendingSlot = nil
	go h.recvWorker(p, slot, bodyN)
}

func (h *Host) handleClients(p *Participant) {
	h.reply(p, wire.New(wire.CLIENTS, 0, []byte(h.rosterText())))
}

func (h *Host) handleChat(from *Participant, body []byte) {
	h.chatLog.Push(from.Name + ": " + string(body))
	msg := wire.New(wire.CHAT, 0, append([]byte(from.Name+": "), body...))
	for _, p := range h.participants {
		if p == from {
			continue
		}
		if err := p.Stream.WriteMessage(msg); err != nil {
			logger.Warnf("chat to %s: %v", p.ID, err)
		}
	}
}

func (h *Host) reject(p *Participant) {
	h.reply(p, wire.Simple(wire.BAD_VALUES))
}

func (h *Host) reply(p *Participant, msg wire.Message) {
	if err := p.Stream.WriteMessage(msg); err != nil {
		logger.Warnf("reply to %s: %v", p.ID, err)
		h.removeParticipant(p)
	}
}
