package host

import (
	"os"

	"github.com/musicroom/musicroom/internal/queue"
	"github.com/musicroom/musicroom/internal/roomerr"
	"github.com/musicroom/musicroom/internal/wire"
)

// validateLocalFile applies the room's upload ceiling to the host's own
// `add song` prompt (spec §4.4.4): a local file too big to ever fan out is
// rejected at the prompt instead of silently accepted.
func validateLocalFile(path string, maxBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return roomerr.Wrap(roomerr.KindFileUnreadable, "stat local file", err)
	}
	if info.Size() > maxBytes {
		return roomerr.New(roomerr.KindFileTooLarge, "local file exceeds MaxFileSizeBytes")
	}
	return nil
}

// recvWorker owns the raw byte stream for one SONG_DATA body: it reads
// exactly bodyN bytes, writes them to the slot's backing file, unlocks the
// slot and always signals the participant's connLoop to resume reading,
// regardless of outcome (spec §4.4.3).
func (h *Host) recvWorker(p *Participant, slot *queue.Slot, bodyN uint32) {
	ok := true
	data, err := p.Stream.ReadExact(int(bodyN))
	if err != nil {
		logger.Warnf("receive song data from %s: %v", p.ID, err)
		ok = false
	} else if werr := os.WriteFile(slot.Path(), data, 0o600); werr != nil {
		logger.Warnf("write song data for %s: %v", p.ID, werr)
		ok = false
	}
	slot.Unlock()

	p.resumeCh <- struct{}{}
	select {
	case h.recvDoneCh <- recvResult{p: p, slot: slot, ok: ok}:
	case <-h.stopCh:
	}
}

// handleRecvDone reacts to a completed (or failed) upload: on success it
// replies RECV_OK and tries to start playback if nothing is already
// playing; on failure it drops the reservation.
func (h *Host) handleRecvDone(rd recvResult) {
	if !rd.ok {
		h.handleRemoveQueueEntry(rd.slot)
		if rd.p != nil {
			h.reply(rd.p, wire.Simple(wire.BAD_VALUES))
		}
		return
	}
	if rd.p != nil {
		h.reply(rd.p, wire.Simple(wire.RECV_OK))
	}
	if !h.playing {
		h.attemptPlayNext()
	}
}

// fanOut is the single-winner broadcast of the slot attemptPlayNext is
// starting to every participant (spec §4.4.2); a
// slot is not fanned out when its upload completes, only when it reaches
// the front and starts. BeginFanOut's 0->1 CAS ensures only one caller
// ever reads the file and spawns send workers for it. Each send worker
// delivers SONG_DATA followed immediately by PLAY_NEXT to its one
// participant, so no participant can observe a start_time for a track it
// has not yet received.
func (h *Host) fanOut(slot *queue.Slot, pos int) {
	if !slot.BeginFanOut() {
		return
	}
	data, err := os.ReadFile(slot.Path())
	if err != nil {
		logger.Warnf("read slot %d for fan-out: %v", pos, err)
		return
	}
	startTime := h.startTime
	for _, p := range h.participants {
		go h.sendWorker(p, slot, data, pos, startTime)
	}
}

// fanOutTo is the newcomer catch-up path: it unicasts an already-fanned-out
// slot (at most the currently-playing front, per Sent()>0) to exactly one
// participant, without re-claiming BeginFanOut (which the original
// broadcast already holds).
func (h *Host) fanOutTo(p *Participant, slot *queue.Slot, pos int) {
	data, err := os.ReadFile(slot.Path())
	if err != nil {
		logger.Warnf("read slot %d for catch-up: %v", pos, err)
		return
	}
	go h.sendWorker(p, slot, data, pos, h.startTime)
}

// sendWorker writes SONG_DATA then PLAY_NEXT to one participant, in that
// order, from a single goroutine so the pair can never be observed
// out-of-order at that participant even though other participants' sends
// run concurrently. It does not need to pause that participant's connLoop
// first: wire.Stream's write mutex is independent of its read mutex, so a
// concurrent connLoop read and a fan-out write never interleave incorrectly
// — a deliberate simplification of the spec's "clear fd, spawn worker,
// re-arm" language, which is written from the perspective of a single fd
// shared between read and write duties.
func (h *Host) sendWorker(p *Participant, slot *queue.Slot, data []byte, pos int, startTime int64) {
	err := p.Stream.WriteMessage(wire.New(wire.SONG_DATA, byte(pos), data))
	if err == nil {
		slot.IncrementSent()
		err = p.Stream.WriteMessage(wire.EncodePlayNext(startTime))
	}
	if err != nil {
		logger.Warnf("send song data to %s: %v", p.ID, err)
	}
	select {
	case h.sendDoneCh <- sendResult{p: p, slot: slot, ok: err == nil}:
	case <-h.stopCh:
	}
}

// handleSendDone tracks a newcomer's remaining catch-up deliveries so a
// participant reactor does not need to guess when it is fully synced.
func (h *Host) handleSendDone(sd sendResult) {
	if !sd.ok {
		h.removeParticipant(sd.p)
		return
	}
	if sd.p.entriesUntilSynced > 0 {
		sd.p.entriesUntilSynced--
		if sd.p.entriesUntilSynced == 0 {
			logger.Debugf("participant %s caught up", sd.p.ID)
		}
	}
}

