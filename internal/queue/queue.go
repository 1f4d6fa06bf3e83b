// Package queue implements MusicStorage (spec §3, §4.3): a bounded ordered
// list of slots with per-slot locks and a whole-queue lock.
package queue

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/musicroom/musicroom/internal/roomerr"
	"github.com/musicroom/musicroom/internal/util"
)

var logger = logging.Logger("queue")

// tempNameCharset matches the charset in the temp-path regex of spec §4.3.
const tempNameCharset = "-ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789._"

// tempNameRe, together with the slot's owned mark, is the test for "owned
// temp file, safe to delete" (spec §4.3). It matches the file's base name
// only; the directory the file sits in is not checked.
var tempNameRe = regexp.MustCompile(`^musicBroadcaster_[-A-Za-z0-9._]{6}$`)

// IsTempName reports whether base (a file name, not a full path) looks like
// a queue-owned temp file.
func IsTempName(base string) bool {
	return tempNameRe.MatchString(base)
}

// Queue is MusicStorage: an ordered, length-bounded container of slots.
//
// Lock order: queueLock before any slot's lock; the queue never acquires
// its own lock while holding a slot lock (spec §3 Invariants).
type Queue struct {
	queueLock sync.Mutex
	slots     []*Slot

	maxSongs int
	tempDir  string
}

// New creates an empty queue. maxSongs must be in 1..255 (spec §3, the
// protocol's opt byte bounds queue positions to a single byte). tempDir
// empty means os.TempDir(); a relative tempDir is resolved against
// os.TempDir() rather than the process's working directory.
func New(maxSongs int, tempDir string) *Queue {
	if tempDir == "" {
		tempDir = os.TempDir()
	} else {
		tempDir = util.ResolvePath(os.TempDir(), tempDir)
	}
	return &Queue{maxSongs: maxSongs, tempDir: tempDir}
}

// Len returns the current slot count.
func (q *Queue) Len() int {
	q.queueLock.Lock()
	defer q.queueLock.Unlock()
	return len(q.slots)
}

// SetMaxSongs changes the queue's capacity ceiling, letting a host apply a
// config reload (MAX_SONGS) without restarting the room. Slots already
// queued past the new ceiling are left in place; only future adds are
// bounded by it.
func (q *Queue) SetMaxSongs(n int) {
	q.queueLock.Lock()
	defer q.queueLock.Unlock()
	q.maxSongs = n
}

// AddAtIndexAndLock grows the queue with empty slots until length > pos,
// locks the slot at pos, and returns it (spec §4.3). Fails with
// KindQueueFull if pos >= MaxSongs.
func (q *Queue) AddAtIndexAndLock(pos int) (*Slot, error) {
	if pos < 0 || pos >= q.maxSongs {
		return nil, roomerr.New(roomerr.KindQueueFull, "add at index")
	}
	q.queueLock.Lock()
	for len(q.slots) <= pos {
		q.slots = append(q.slots, &Slot{})
	}
	slot := q.slots[pos]
	q.queueLock.Unlock()

	slot.Lock()
	return slot, nil
}

// AddTempAndLock creates a new temp file, appends a slot referring to it,
// and returns it locked (spec §4.3). Fails with KindQueueFull if the queue
// is already at MaxSongs.
func (q *Queue) AddTempAndLock() (*Slot, error) {
	q.queueLock.Lock()
	if len(q.slots) >= q.maxSongs {
		q.queueLock.Unlock()
		return nil, roomerr.New(roomerr.KindQueueFull, "add temp")
	}
	slot := &Slot{}
	q.slots = append(q.slots, slot)
	q.queueLock.Unlock()

	slot.Lock()
	path, err := q.mkstemp()
	if err != nil {
		slot.Unlock()
		q.RemoveByRef(slot)
		return nil, roomerr.Wrap(roomerr.KindTransport, "mkstemp", err)
	}
	slot.SetPath(path)
	slot.MarkOwned()
	return slot, nil
}

// AddLocalAndLock appends a slot marked "local file, not owned" and
// returns it locked; the caller is responsible for setting its path
// before unlocking (spec §4.3, host stdin `add song`).
func (q *Queue) AddLocalAndLock() (*Slot, error) {
	q.queueLock.Lock()
	if len(q.slots) >= q.maxSongs {
		q.queueLock.Unlock()
		return nil, roomerr.New(roomerr.KindQueueFull, "add local")
	}
	slot := &Slot{}
	slot.MarkLocal()
	q.slots = append(q.slots, slot)
	q.queueLock.Unlock()

	slot.Lock()
	return slot, nil
}

// Front returns the head slot, or false if the queue is empty.
func (q *Queue) Front() (*Slot, bool) {
	q.queueLock.Lock()
	defer q.queueLock.Unlock()
	if len(q.slots) == 0 {
		return nil, false
	}
	return q.slots[0], true
}

// RemoveFront locks the head slot before popping it, deleting its backing
// file if it is an owned temp file (spec §4.3).
func (q *Queue) RemoveFront() error {
	q.queueLock.Lock()
	if len(q.slots) == 0 {
		q.queueLock.Unlock()
		return nil
	}
	slot := q.slots[0]
	q.slots = q.slots[1:]
	q.queueLock.Unlock()

	slot.Lock()
	q.deleteIfOwnedLocked(slot)
	slot.Unlock()
	return nil
}

// RemoveByRef removes a specific slot wherever it currently sits.
func (q *Queue) RemoveByRef(target *Slot) error {
	q.queueLock.Lock()
	idx := -1
	for i, s := range q.slots {
		if s == target {
			idx = i
			break
		}
	}
	if idx == -1 {
		q.queueLock.Unlock()
		return nil
	}
	q.slots = append(q.slots[:idx], q.slots[idx+1:]...)
	q.queueLock.Unlock()

	target.Lock()
	q.deleteIfOwnedLocked(target)
	target.Unlock()
	return nil
}

// RemoveByPosition removes whatever slot currently sits at pos.
func (q *Queue) RemoveByPosition(pos int) error {
	q.queueLock.Lock()
	if pos < 0 || pos >= len(q.slots) {
		q.queueLock.Unlock()
		return nil
	}
	slot := q.slots[pos]
	q.slots = append(q.slots[:pos], q.slots[pos+1:]...)
	q.queueLock.Unlock()

	slot.Lock()
	q.deleteIfOwnedLocked(slot)
	slot.Unlock()
	return nil
}

// PositionOf does a linear scan for target's current position.
func (q *Queue) PositionOf(target *Slot) (int, bool) {
	q.queueLock.Lock()
	defer q.queueLock.Unlock()
	for i, s := range q.slots {
		if s == target {
			return i, true
		}
	}
	return 0, false
}

// Songs returns a read-only snapshot of the current slot order. The slice
// itself is a copy; the *Slot values are shared and still require their
// own locks for content access.
func (q *Queue) Songs() []*Slot {
	q.queueLock.Lock()
	defer q.queueLock.Unlock()
	out := make([]*Slot, len(q.slots))
	copy(out, q.slots)
	return out
}

// deleteIfOwnedLocked removes the backing file for an owned temp slot.
// Caller must hold slot's lock.
func (q *Queue) deleteIfOwnedLocked(s *Slot) {
	if !s.Owned() || s.Path() == "" {
		return
	}
	if !IsTempName(filepath.Base(s.Path())) {
		return
	}
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		logger.Warnf("remove temp file %s: %v", s.Path(), err)
	}
}

// Close deletes every remaining owned temp file and empties the queue —
// the "auto-delete temp files on destruction" invariant (spec §3).
func (q *Queue) Close() {
	q.queueLock.Lock()
	slots := q.slots
	q.slots = nil
	q.queueLock.Unlock()

	for _, s := range slots {
		s.Lock()
		q.deleteIfOwnedLocked(s)
		s.Unlock()
	}
}

// mkstemp creates a new, exclusively-owned temp file named
// "musicBroadcaster_XXXXXX" (6 random chars from the spec's charset),
// retrying on collision like POSIX mkstemp.
func (q *Queue) mkstemp() (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		suffix, err := randomSuffix(6)
		if err != nil {
			return "", err
		}
		path := filepath.Join(q.tempDir, "musicBroadcaster_"+suffix)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", err
		}
		f.Close()
		return path, nil
	}
	return "", roomerr.New(roomerr.KindTransport, "mkstemp: exhausted attempts")
}

func randomSuffix(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = tempNameCharset[int(b)%len(tempNameCharset)]
	}
	return string(out), nil
}
