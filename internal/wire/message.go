package wire

import (
	"encoding/binary"

	"github.com/musicroom/musicroom/internal/roomerr"
)

// HeaderSize is the fixed 6-byte header: cmd:u8, opt:u8, body_size:u32-LE
// (spec §4.1).
const HeaderSize = 6

// Header is the parsed form of the 6-byte frame prefix.
type Header struct {
	Cmd      Command
	Opt      byte
	BodySize uint32
}

// Message is a fully decoded frame: header plus body bytes.
type Message struct {
	Header
	Body []byte
}

// EncodeHeader writes h into a fresh 6-byte slice.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(h.Cmd)
	buf[1] = h.Opt
	binary.LittleEndian.PutUint32(buf[2:], h.BodySize)
	return buf
}

// DecodeHeader parses exactly HeaderSize bytes. It does not by itself
// reject an unknown command or an oversized body — callers apply the
// MaxFileSizeBytes ceiling (and the known-command check) with context only
// they have (spec §4.1, §9 Open Question 1).
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, roomerr.New(roomerr.KindBadFrame, "decode header")
	}
	return Header{
		Cmd:      Command(buf[0]),
		Opt:      buf[1],
		BodySize: binary.LittleEndian.Uint32(buf[2:]),
	}, nil
}

// New builds a Message, setting BodySize from the actual body length.
func New(cmd Command, opt byte, body []byte) Message {
	return Message{
		Header: Header{Cmd: cmd, Opt: opt, BodySize: uint32(len(body))},
		Body:   body,
	}
}

// Simple builds a Message with opt=0 and an empty body — the shape of most
// control commands (RES_OK, BAD_VALUES, RECV_OK, ...).
func Simple(cmd Command) Message {
	return New(cmd, 0, nil)
}

// EncodePlayNext builds the body of a PLAY_NEXT message: an 8-byte
// little-endian Unix timestamp (spec §6).
func EncodePlayNext(startUnixSeconds int64) Message {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint64(body, uint64(startUnixSeconds))
	return New(PLAY_NEXT, 0, body)
}

// DecodePlayNext extracts the start time from a PLAY_NEXT body.
func DecodePlayNext(body []byte) (int64, error) {
	if len(body) != 8 {
		return 0, roomerr.New(roomerr.KindBadFrame, "decode PLAY_NEXT body")
	}
	return int64(binary.LittleEndian.Uint64(body)), nil
}
