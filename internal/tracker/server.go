package tracker

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/musicroom/musicroom/internal/config"
	"github.com/musicroom/musicroom/internal/wire"
)

// pingTimeout bounds how long PING_ROOM waits for a registered room to
// answer before it is pruned from the registry.
const pingTimeout = 2 * time.Second

// Server is the tracker process: a TCP listener handling one
// request-response exchange per connection (mirroring
// original_source/src/tracker/tracker.cpp's accept loop, which never
// keeps a client connection open across commands) plus an optional
// websocket feed for live room-list updates.
type Server struct {
	store    *Store
	listener net.Listener
	hub      *hub
	httpSrv  *http.Server
	stopCh   chan struct{}
}

// NewServer binds cfg.Tracker.Addr for the TCP command port and, if
// cfg.Tracker.WSAddr is set, starts an HTTP server serving the websocket
// feed at /rooms.
func NewServer(cfg config.Config, store *Store) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.Tracker.Addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:    store,
		listener: ln,
		hub:      newHub(),
		stopCh:   make(chan struct{}),
	}

	if cfg.Tracker.WSAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/rooms", s.hub.ServeHTTP)
		s.httpSrv = &http.Server{Addr: cfg.Tracker.WSAddr, Handler: mux}
		go func() {
			if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warnf("websocket feed: %v", err)
			}
		}()
	}

	return s, nil
}

// Addr returns the TCP command port's bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Run accepts connections until Shutdown is called.
func (s *Server) Run() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

// Shutdown stops accepting connections and closes the websocket feed.
func (s *Server) Shutdown() {
	close(s.stopCh)
	s.listener.Close()
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	s.hub.close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	stream := wire.NewStream(conn)

	hdr, err := stream.ReadHeader()
	if err != nil {
		return
	}
	var body []byte
	if hdr.BodySize > 0 {
		body, err = stream.ReadExact(int(hdr.BodySize))
		if err != nil {
			return
		}
	}

	reply := s.dispatch(hdr, body)
	stream.WriteMessage(reply)
}

func (s *Server) dispatch(hdr wire.Header, body []byte) wire.Message {
	switch hdr.Cmd {
	case wire.ADD_ROOM:
		return s.handleAddRoom(body)
	case wire.REMOVE_ROOM:
		return s.handleRemoveRoom(body)
	case wire.LIST_ROOMS:
		return s.handleListRooms()
	case wire.COUNT_ROOMS:
		return s.handleCountRooms()
	case wire.FIND_ROOM:
		return s.handleFindRoom(body)
	case wire.PING_ROOM:
		return s.handlePingRoom(body)
	default:
		return wire.Simple(wire.RES_NOT_OK)
	}
}

func (s *Server) handleAddRoom(body []byte) wire.Message {
	entry, err := wire.DecodeRoomEntry(body)
	if err != nil {
		return wire.Simple(wire.BAD_VALUES)
	}
	if err := s.store.Add(RoomEntry{Name: entry.Name, IP: entry.IP, Port: entry.Port}); err != nil {
		logger.Warnf("add room %s: %v", entry.Name, err)
		return wire.Simple(wire.BAD_VALUES)
	}
	s.publishRoomList()
	return wire.Simple(wire.GOOD_MSG)
}

func (s *Server) handleRemoveRoom(body []byte) wire.Message {
	nul := indexByte0(body)
	if nul < 0 {
		return wire.Simple(wire.BAD_VALUES)
	}
	removed, err := s.store.Remove(string(body[:nul]))
	if err != nil || !removed {
		return wire.Simple(wire.BAD_VALUES)
	}
	s.publishRoomList()
	return wire.Simple(wire.GOOD_MSG)
}

func (s *Server) handleListRooms() wire.Message {
	entries, err := s.store.List()
	if err != nil {
		logger.Warnf("list rooms: %v", err)
		return wire.Simple(wire.BAD_VALUES)
	}
	return wire.New(wire.LIST_ROOMS, 0, wire.EncodeRoomList(toWireEntries(entries)))
}

func (s *Server) handleCountRooms() wire.Message {
	n, err := s.store.Count()
	if err != nil {
		return wire.Simple(wire.BAD_VALUES)
	}
	return wire.New(wire.COUNT_ROOMS, byte(n), nil)
}

func (s *Server) handleFindRoom(body []byte) wire.Message {
	nul := indexByte0(body)
	if nul < 0 {
		return wire.Simple(wire.BAD_VALUES)
	}
	entry, ok, err := s.store.Find(string(body[:nul]))
	if err != nil || !ok {
		return wire.Simple(wire.BAD_VALUES)
	}
	return wire.New(wire.GOOD_MSG, 0, wire.EncodeRoomEntry(wire.RoomEntry{
		Name: entry.Name, IP: entry.IP, Port: entry.Port,
	}))
}

// handlePingRoom opens a short connection to the room and expects a JOIN
// handshake to complete; a dead room is pruned (spec §4.7).
func (s *Server) handlePingRoom(body []byte) wire.Message {
	nul := indexByte0(body)
	if nul < 0 {
		return wire.Simple(wire.BAD_VALUES)
	}
	name := string(body[:nul])
	entry, ok, err := s.store.Find(name)
	if err != nil || !ok {
		return wire.Simple(wire.BAD_VALUES)
	}

	addr := net.JoinHostPort(entry.IP.String(), strconv.Itoa(int(entry.Port)))
	conn, err := net.DialTimeout("tcp", addr, pingTimeout)
	if err != nil {
		s.store.Remove(name)
		s.publishRoomList()
		return wire.Simple(wire.BAD_VALUES)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(pingTimeout))

	stream := wire.NewStream(conn)
	if err := stream.WriteMessage(wire.Simple(wire.JOIN)); err != nil {
		s.store.Remove(name)
		s.publishRoomList()
		return wire.Simple(wire.BAD_VALUES)
	}
	if _, err := stream.ReadHeader(); err != nil {
		s.store.Remove(name)
		s.publishRoomList()
		return wire.Simple(wire.BAD_VALUES)
	}
	return wire.Simple(wire.GOOD_MSG)
}

func (s *Server) publishRoomList() {
	entries, err := s.store.List()
	if err != nil {
		return
	}
	s.hub.broadcast(entries)
}

func indexByte0(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

func toWireEntries(entries []RoomEntry) []wire.RoomEntry {
	out := make([]wire.RoomEntry, len(entries))
	for i, e := range entries {
		out[i] = wire.RoomEntry{Name: e.Name, IP: e.IP, Port: e.Port}
	}
	return out
}
