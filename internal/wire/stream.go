package wire

import (
	"io"
	"net"
	"sync"

	"github.com/musicroom/musicroom/internal/roomerr"
)

// Stream wraps a blocking net.Conn with a read-mutex and a write-mutex, per
// spec §4.2. ReadExact/WriteAll loop until satisfied or the peer closes;
// WriteHeaderAndBody holds the write-mutex for the whole header+body pair
// so two goroutines writing to the same Stream never interleave their
// frames — the only ordering guarantee offered between writers.
//
// Grounded on the teacher's per-connection memberConn/clientConn, which
// pairs a stream with its own sendMu around the encoder
// (internal/group/manager.go).
type Stream struct {
	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps an already-connected net.Conn.
func NewStream(conn net.Conn) *Stream {
	return &Stream{conn: conn}
}

// Conn exposes the underlying connection, e.g. for RemoteAddr().
func (s *Stream) Conn() net.Conn { return s.conn }

// ReadExact reads exactly n bytes, looping over Read until satisfied. It
// returns roomerr KindPeerClosed if the peer closes mid-read (io.EOF with
// zero bytes consumed so far counts as a clean close; a partial read
// followed by EOF is reported as KindTransport, since that is a truncated
// stream rather than a polite disconnect) and KindTransport for any other
// I/O error.
func (s *Stream) ReadExact(n int) ([]byte, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := s.conn.Read(buf[read:])
		read += m
		if err != nil {
			if err == io.EOF {
				if read == 0 {
					return nil, roomerr.New(roomerr.KindPeerClosed, "read exact")
				}
				return nil, roomerr.Wrap(roomerr.KindTransport, "read exact", io.ErrUnexpectedEOF)
			}
			return nil, roomerr.Wrap(roomerr.KindTransport, "read exact", err)
		}
	}
	return buf, nil
}

// WriteAll writes the whole of buf, looping over Write until drained.
// Callers that need atomicity with a following/preceding write (e.g. a
// header then a body) must use WriteHeaderAndBody instead — this method
// alone only guarantees buf itself is not interleaved with the middle of
// another WriteAll/WriteHeaderAndBody call.
func (s *Stream) WriteAll(buf []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeAllLocked(buf)
}

func (s *Stream) writeAllLocked(buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := s.conn.Write(buf[written:])
		written += n
		if err != nil {
			return roomerr.Wrap(roomerr.KindTransport, "write all", err)
		}
	}
	return nil
}

// WriteHeaderAndBody acquires the write-mutex once and emits header then
// body. This is the only ordering guarantee a caller gets between a
// message's header and its body: the pair is atomic with respect to other
// writers on the same Stream (spec §4.2), not with respect to a reader
// that holds only the read-mutex.
func (s *Stream) WriteHeaderAndBody(h Header, body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writeAllLocked(EncodeHeader(h)); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return s.writeAllLocked(body)
}

// WriteMessage is WriteHeaderAndBody for an already-built Message.
func (s *Stream) WriteMessage(m Message) error {
	return s.WriteHeaderAndBody(m.Header, m.Body)
}

// ReadHeader reads exactly one 6-byte header. The host's and participant's
// per-connection connLoop goroutines call it for every incoming message
// (spec §4.4 "Suspension points").
func (s *Stream) ReadHeader() (Header, error) {
	buf, err := s.ReadExact(HeaderSize)
	if err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf)
}

// Close closes the underlying descriptor exactly once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
