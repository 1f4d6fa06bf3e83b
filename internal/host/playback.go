package host

import "time"

// attemptPlayNext tries to start the front-of-queue slot, trylocking it so
// a slot still mid-upload is silently skipped rather than blocked on (spec
// §4.4.2 "play next"). On success it fixes the shared start_time before
// fanning the song's bytes out, so every send worker pairs SONG_DATA with
// the same PLAY_NEXT value; it then feeds the local player and arms an
// audioWaiter for the track's end.
func (h *Host) attemptPlayNext() {
	front, ok := h.queue.Front()
	if !ok {
		h.playing = false
		return
	}
	if !front.TryLock() {
		return
	}
	defer front.Unlock()

	h.startTime = time.Now().Unix()
	h.playing = true

	pos, _ := h.queue.PositionOf(front)
	h.fanOut(front, pos)

	if _, err := h.player.Feed(front.Path()); err != nil {
		logger.Warnf("feed %s: %v", front.Path(), err)
		h.playing = false
		return
	}
	if err := h.player.Play(); err != nil {
		logger.Warnf("play: %v", err)
		h.playing = false
		return
	}
	go h.audioWaiter(h.player.WaitForEnd())
}

// handleAudioDone pops the finished track and makes one attemptPlayNext
// call for whatever is now at the front. A front slot still locked for an
// upload is not skipped: playback waits until that upload's handleRecvDone
// calls attemptPlayNext again.
func (h *Host) handleAudioDone() {
	h.playing = false
	if err := h.queue.RemoveFront(); err != nil {
		logger.Warnf("remove front: %v", err)
	}
	h.attemptPlayNext()
}
