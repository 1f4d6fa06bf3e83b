package queue

import (
	"sync"
	"sync/atomic"
)

// fdState mirrors the C original's overloaded "fd" field (spec §3): rather
// than a real OS file descriptor, it is a three-way state distinguishing
// "not yet materialised", "owned temp file, delete on destroy" and "local
// reference, never delete".
type fdState int32

const (
	fdUnset fdState = 0  // remote slot awaiting SONG_DATA
	fdLocal fdState = -1 // local host file, caller owns it, never delete
	fdOwned fdState = 1  // temp file created by the queue, delete on destroy
)

// Slot is one element of the queue: a reserved position plus its optional
// backing file (spec §3).
type Slot struct {
	lock sync.Mutex

	sent atomic.Int32 // 0 = no fan-out yet; >=1 = fan-out in progress/complete

	fd   fdState
	path string // filesystem path of the backing file, "" until materialised
}

// Lock/Unlock/TryLock expose the slot's content lock to callers that need
// to hold it across a write (the receive workers) or attempt it without
// blocking (the play-next paths, which leave a slot still being written
// alone). Fan-out's single-winner claim is BeginFanOut, not this lock.
func (s *Slot) Lock()           { s.lock.Lock() }
func (s *Slot) Unlock()         { s.lock.Unlock() }
func (s *Slot) TryLock() bool   { return s.lock.TryLock() }

// Path returns the current backing path. Caller should hold the slot lock
// if racing with a writer; reads after the writer unlocks are safe without it.
func (s *Slot) Path() string { return s.path }

// SetPath assigns the backing file path. Callers must hold the slot lock.
func (s *Slot) SetPath(p string) { s.path = p }

// MarkOwned/MarkLocal set the fd discriminator at slot creation.
func (s *Slot) MarkOwned() { s.fd = fdOwned }
func (s *Slot) MarkLocal() { s.fd = fdLocal }

// Owned reports whether this slot's file should be deleted on removal.
func (s *Slot) Owned() bool { return s.fd == fdOwned }

// Sent returns the current fan-out counter.
func (s *Slot) Sent() int32 { return s.sent.Load() }

// BeginFanOut attempts the 0->1 CAS that makes this slot's caller the sole
// fan-out owner. Returns false if another fan-out already claimed it.
func (s *Slot) BeginFanOut() bool {
	return s.sent.CompareAndSwap(0, 1)
}

// IncrementSent records one more successful per-participant delivery.
func (s *Slot) IncrementSent() int32 {
	return s.sent.Add(1)
}
