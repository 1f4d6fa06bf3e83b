package wire

import (
	"bytes"
	"encoding/binary"
	"net"

	"github.com/musicroom/musicroom/internal/roomerr"
)

// RoomEntry mirrors original_source's RoomEntry: a tracker listing for one
// room, keyed by name, with an IPv4 address and port.
type RoomEntry struct {
	Name string
	IP   net.IP
	Port uint16
}

// EncodeRoomEntry lays out name\0 + 4-byte IPv4 + 2-byte little-endian
// port, matching ADD_ROOM's documented body in
// original_source/src/messaging/Commands.hpp.
func EncodeRoomEntry(e RoomEntry) []byte {
	buf := make([]byte, 0, len(e.Name)+1+4+2)
	buf = append(buf, []byte(e.Name)...)
	buf = append(buf, 0)
	ip4 := e.IP.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	buf = append(buf, ip4...)
	port := make([]byte, 2)
	binary.LittleEndian.PutUint16(port, e.Port)
	return append(buf, port...)
}

// DecodeRoomEntry parses a body built by EncodeRoomEntry.
func DecodeRoomEntry(body []byte) (RoomEntry, error) {
	nul := bytes.IndexByte(body, 0)
	if nul < 0 || len(body) != nul+1+4+2 {
		return RoomEntry{}, roomerr.New(roomerr.KindBadFrame, "decode room entry")
	}
	name := string(body[:nul])
	ip := net.IPv4(body[nul+1], body[nul+2], body[nul+3], body[nul+4])
	port := binary.LittleEndian.Uint16(body[nul+5 : nul+7])
	return RoomEntry{Name: name, IP: ip, Port: port}, nil
}

// EncodeRoomList concatenates a 4-byte little-endian count followed by each
// entry's EncodeRoomEntry form, for a LIST_ROOMS reply body.
func EncodeRoomList(entries []RoomEntry) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = append(buf, EncodeRoomEntry(e)...)
	}
	return buf
}

// DecodeRoomList parses a body built by EncodeRoomList.
func DecodeRoomList(body []byte) ([]RoomEntry, error) {
	if len(body) < 4 {
		return nil, roomerr.New(roomerr.KindBadFrame, "decode room list count")
	}
	count := binary.LittleEndian.Uint32(body[:4])
	rest := body[4:]
	entries := make([]RoomEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 || len(rest) < nul+1+4+2 {
			return nil, roomerr.New(roomerr.KindBadFrame, "decode room list entry")
		}
		entryLen := nul + 1 + 4 + 2
		entry, err := DecodeRoomEntry(rest[:entryLen])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		rest = rest[entryLen:]
	}
	return entries, nil
}
