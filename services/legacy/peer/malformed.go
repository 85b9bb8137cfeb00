package peer

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/bsv-blockchain/go-wire"
)

// MalformedMessage stands in for a message whose header was read but whose
// payload could not be decoded. It carries the command from the header.
type MalformedMessage struct {
	Cmd string
	Err error
}

func (m *MalformedMessage) Bsvdecode(_ io.Reader, _ uint32, _ wire.MessageEncoding) error {
	return m.Err
}

func (m *MalformedMessage) BsvEncode(_ io.Writer, _ uint32, _ wire.MessageEncoding) error {
	return m.Err
}

func (m *MalformedMessage) Command() string {
	return m.Cmd
}

func (m *MalformedMessage) MaxPayloadLength(_ uint32) uint64 {
	return 0
}

// headerReader keeps a copy of the header of the message being read and
// counts the bytes read since the last reset.
type headerReader struct {
	r      io.Reader
	header [messageHeaderSize]byte
	n      int
	total  uint64
}

func (h *headerReader) Read(b []byte) (int, error) {
	n, err := h.r.Read(b)

	if h.n < len(h.header) {
		h.n += copy(h.header[h.n:], b[:n])
	}

	h.total += uint64(n)

	return n, err
}

func (h *headerReader) reset() {
	h.n = 0
	h.total = 0
}

// command returns the command of the last header, empty until a whole header
// has been read.
func (h *headerReader) command() string {
	if h.n < len(h.header) {
		return ""
	}

	return string(bytes.TrimRight(h.header[4:16], "\x00"))
}

// aligned reports whether the header and the whole payload it announces have
// been consumed, leaving the stream on the next message.
func (h *headerReader) aligned() bool {
	if h.n < len(h.header) {
		return false
	}

	length := binary.LittleEndian.Uint32(h.header[16:20])
	if length == 0xffffffff {
		return false
	}

	return h.total == messageHeaderSize+uint64(length)
}
