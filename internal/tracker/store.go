// Package tracker implements the optional directory service (spec §4.7):
// a standalone process that lets room hosts register themselves by name
// so participants can look a room up instead of needing its address
// out-of-band.
package tracker

import (
	"database/sql"
	"net"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	_ "modernc.org/sqlite"
)

var logger = logging.Logger("tracker")

// Store is a sqlite-backed room registry. Grounded on the teacher's
// peerDB: WAL mode lets a second tracker process started against the same
// DB file see rooms registered by the first.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenStore opens (or creates) the sqlite file at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS rooms (
		name TEXT PRIMARY KEY,
		id   TEXT NOT NULL,
		ip   TEXT NOT NULL,
		port INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Add registers name at ip:port, replacing any prior registration under
// the same name (original_source's ADD_ROOM only fails on a genuine
// insert error, not on reuse of a name — a host restarting at a new
// address overwrites its old entry). A re-registration is assigned a
// fresh ID, since it represents a new listening process even when the
// name is reused.
func (s *Store) Add(entry RoomEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO rooms (name, id, ip, port) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET id=excluded.id, ip=excluded.ip, port=excluded.port`,
		entry.Name, uuid.NewString(), entry.IP.String(), entry.Port)
	return err
}

// Remove deregisters name. Returns false if no such room existed.
func (s *Store) Remove(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM rooms WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Find looks up name. ok is false if no such room is registered.
func (s *Store) Find(name string) (entry RoomEntry, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id, ipStr string
	var port uint16
	err = s.db.QueryRow(`SELECT id, ip, port FROM rooms WHERE name = ?`, name).Scan(&id, &ipStr, &port)
	if err == sql.ErrNoRows {
		return RoomEntry{}, false, nil
	}
	if err != nil {
		return RoomEntry{}, false, err
	}
	return RoomEntry{ID: id, Name: name, IP: net.ParseIP(ipStr), Port: port}, true, nil
}

// List returns every registered room.
func (s *Store) List() ([]RoomEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT name, id, ip, port FROM rooms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []RoomEntry
	for rows.Next() {
		var e RoomEntry
		var ipStr string
		if err := rows.Scan(&e.Name, &e.ID, &ipStr, &e.Port); err != nil {
			return nil, err
		}
		e.IP = net.ParseIP(ipStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of registered rooms.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM rooms`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RoomEntry is the tracker's view of one registered room, grounded on
// original_source/src/tracker/RoomEntry.hpp plus an ID the original does
// not have — original_source identifies rooms by name alone, but this
// repo mints a uuid per registration so a lobby UI watching the
// websocket feed can tell a name's reuse by a new host process apart
// from an update to the same one.
type RoomEntry struct {
	ID   string
	Name string
	IP   net.IP
	Port uint16
}
