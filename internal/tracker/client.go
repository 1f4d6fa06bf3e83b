package tracker

import (
	"net"
	"strconv"
	"time"

	"github.com/musicroom/musicroom/internal/roomerr"
	"github.com/musicroom/musicroom/internal/wire"
)

// dialTimeout bounds a host's ADD_ROOM/REMOVE_ROOM round trip to the
// tracker; a slow or absent tracker must never stall room startup.
const dialTimeout = 2 * time.Second

// Client implements internal/host.Registrar against a tracker's TCP
// command port. A Host with no tracker configured never constructs one.
type Client struct {
	addr string
}

// NewClient targets the tracker listening at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Register sends ADD_ROOM for name at addr (host:port for the room, not
// the tracker).
func (c *Client) Register(name, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return roomerr.Wrap(roomerr.KindTransport, "resolve room address", err)
		}
		ip = ips[0]
	}

	body := wire.EncodeRoomEntry(wire.RoomEntry{Name: name, IP: ip, Port: uint16(port)})
	reply, err := c.roundTrip(wire.New(wire.ADD_ROOM, 0, body))
	if err != nil {
		return err
	}
	if reply.Cmd != wire.GOOD_MSG {
		return roomerr.New(roomerr.KindTransport, "tracker rejected registration")
	}
	return nil
}

// Deregister sends REMOVE_ROOM for name.
func (c *Client) Deregister(name string) error {
	body := append([]byte(name), 0)
	reply, err := c.roundTrip(wire.New(wire.REMOVE_ROOM, 0, body))
	if err != nil {
		return err
	}
	if reply.Cmd != wire.GOOD_MSG {
		return roomerr.New(roomerr.KindTransport, "tracker rejected deregistration")
	}
	return nil
}

// Find sends FIND_ROOM and decodes the resulting room entry.
func (c *Client) Find(name string) (wire.RoomEntry, bool, error) {
	body := append([]byte(name), 0)
	reply, err := c.roundTrip(wire.New(wire.FIND_ROOM, 0, body))
	if err != nil {
		return wire.RoomEntry{}, false, err
	}
	if reply.Cmd != wire.GOOD_MSG {
		return wire.RoomEntry{}, false, nil
	}
	entry, err := wire.DecodeRoomEntry(reply.Body)
	if err != nil {
		return wire.RoomEntry{}, false, err
	}
	return entry, true, nil
}

// List sends LIST_ROOMS and decodes the resulting room list.
func (c *Client) List() ([]wire.RoomEntry, error) {
	reply, err := c.roundTrip(wire.Simple(wire.LIST_ROOMS))
	if err != nil {
		return nil, err
	}
	return wire.DecodeRoomList(reply.Body)
}

func (c *Client) roundTrip(msg wire.Message) (wire.Message, error) {
	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
	if err != nil {
		return wire.Message{}, roomerr.Wrap(roomerr.KindTransport, "dial tracker", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(dialTimeout))

	stream := wire.NewStream(conn)
	if err := stream.WriteMessage(msg); err != nil {
		return wire.Message{}, err
	}
	hdr, err := stream.ReadHeader()
	if err != nil {
		return wire.Message{}, err
	}
	var body []byte
	if hdr.BodySize > 0 {
		body, err = stream.ReadExact(int(hdr.BodySize))
		if err != nil {
			return wire.Message{}, err
		}
	}
	return wire.Message{Header: hdr, Body: body}, nil
}
