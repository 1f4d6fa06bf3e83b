package host

import "github.com/musicroom/musicroom/internal/queue"

// connEvent is what a participant's connLoop posts to the reactor: either a
// fully-read small message, or a SONG_DATA header with its body left for a
// dedicated receive worker, or a terminal read error.
type connEvent struct {
	p      *Participant
	cmd    byte
	opt    byte
	body   []byte
	bodyN  uint32 // declared body size, valid when cmd is SONG_DATA
	err    error
}

// recvResult is the completion record a receive worker posts after filling
// a slot's backing file. p is nil for the host's own local `add song` flow
// (spec §4.4.4's "post {fd=0, participant=None, slot}").
type recvResult struct {
	p    *Participant
	slot *queue.Slot
	ok   bool
}

// sendResult is the completion record a fan-out send worker posts.
type sendResult struct {
	p    *Participant
	slot *queue.Slot
	ok   bool
}
