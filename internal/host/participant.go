package host

import (
	"github.com/musicroom/musicroom/internal/queue"
	"github.com/musicroom/musicroom/internal/wire"
)

// State names the positions of the per-connection state machine of spec
// §4.4.1: Idle -> Reserving -> Receiving -> Idle. The protocol handlers
// decide what is legal from Participant.pendingSlot; Participant.state is
// set to StateIdle at creation and is not updated afterwards.
type State int

const (
	StateIdle State = iota
	StateReserving
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReserving:
		return "reserving"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// Participant is the host's record of one connected peer. Every field is
// touched only by the reactor goroutine, except Stream (internally
// synchronized) and resumeCh (a single-slot handoff signal to connLoop).
type Participant struct {
	ID   string
	Name string

	Stream *wire.Stream

	state              State
	pendingSlot        *queue.Slot
	entriesUntilSynced int

	// resumeCh tells this participant's connLoop goroutine it may read the
	// next header. It is only blocked on after handing off a SONG_DATA
	// header, so a dedicated receive worker can own the raw byte stream
	// for the body without racing connLoop's next ReadHeader (spec §4.4
	// "at most one reader per socket").
	resumeCh chan struct{}
}

func newParticipant(id string, stream *wire.Stream) *Participant {
	return &Participant{
		ID:       id,
		Name:     id,
		Stream:   stream,
		state:    StateIdle,
		resumeCh: make(chan struct{}, 1),
	}
}
