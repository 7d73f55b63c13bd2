package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// PacketType identifies the kind of a framed packet.
type PacketType byte

// Client→server request types.
const (
	TypeNone PacketType = iota
	TypeLogin
	TypeUsers
	TypeInvite
	TypeRevoke
	TypeAccept
	TypeDecline
	TypeMove
	TypeResign
)

// Server→client types: synchronous replies, then asynchronous notifications.
const (
	TypeAck PacketType = iota + 9
	TypeNack
	TypeInvited
	TypeRevoked
	TypeAccepted
	TypeDeclined
	TypeMoved
	TypeResigned
	TypeEnded
)

var typeNames = [...]string{
	"NONE", "LOGIN", "USERS", "INVITE", "REVOKE", "ACCEPT", "DECLINE",
	"MOVE", "RESIGN", "ACK", "NACK", "INVITED", "REVOKED", "ACCEPTED",
	"DECLINED", "MOVED", "RESIGNED", "ENDED",
}

func (t PacketType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(t))
}

// Role is a side in a game. FIRST moves first and plays X; SECOND plays O.
// NONE is the sentinel for "no side".
type Role byte

const (
	RoleNone Role = iota
	RoleFirst
	RoleSecond
)

func (r Role) String() string {
	switch r {
	case RoleFirst:
		return "FIRST"
	case RoleSecond:
		return "SECOND"
	case RoleNone:
		return "NONE"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(r))
}

// Other returns the opposing role. NONE maps to itself.
func (r Role) Other() Role {
	switch r {
	case RoleFirst:
		return RoleSecond
	case RoleSecond:
		return RoleFirst
	}
	return RoleNone
}

const (
	// HeaderSize is the fixed wire size of a packet header.
	HeaderSize = 16

	// MaxPayload is the largest payload the 16-bit size field can carry.
	MaxPayload = 1<<16 - 1
)

// Header is the fixed-width packet header. Multi-byte fields are big-endian
// on the wire:
//
//	offset 0  type (1 byte)
//	offset 1  invitation id, local to the receiving session (1 byte)
//	offset 2  role (1 byte)
//	offset 3  reserved, zero (1 byte)
//	offset 4  payload size (uint16)
//	offset 6  reserved, zero (2 bytes)
//	offset 8  sender monotonic seconds (uint32)
//	offset 12 sender monotonic nanoseconds (uint32)
type Header struct {
	Type PacketType
	ID   uint8
	Role Role
	Size uint16
	Sec  uint32
	Nsec uint32
}

var (
	// ErrInvalidPacket reports a malformed header or an unrepresentable payload.
	ErrInvalidPacket = errors.New("invalid packet")
	// ErrDisconnected reports EOF or a short read while receiving.
	ErrDisconnected = errors.New("disconnected")
	// ErrPeerGone reports a failed write to a closed or half-closed peer.
	ErrPeerGone = errors.New("peer gone")
)

// epoch anchors header timestamps; Go's time.Time carries the monotonic reading.
var epoch = time.Now()

// WritePacket stamps hdr with the sender timestamp, derives hdr.Size from
// payload, and writes header and payload to w as one Write call so a packet
// is never interleaved with another writer holding the same mutex discipline.
// The caller is expected to hold the session's write mutex.
func WritePacket(w io.Writer, hdr Header, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: payload %d exceeds %d bytes", ErrInvalidPacket, len(payload), MaxPayload)
	}
	hdr.Size = uint16(len(payload))

	elapsed := time.Since(epoch)
	hdr.Sec = uint32(elapsed / time.Second)
	hdr.Nsec = uint32(elapsed % time.Second)

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(hdr.Type)
	buf[1] = hdr.ID
	buf[2] = byte(hdr.Role)
	binary.BigEndian.PutUint16(buf[4:6], hdr.Size)
	binary.BigEndian.PutUint32(buf[8:12], hdr.Sec)
	binary.BigEndian.PutUint32(buf[12:16], hdr.Nsec)
	copy(buf[HeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: writing packet: %v", ErrPeerGone, err)
	}
	return nil
}

// ReadPacket reads exactly one framed packet from r. The payload is a fresh
// buffer, nil when the header announces zero payload bytes.
func ReadPacket(r io.Reader) (Header, []byte, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, nil, fmt.Errorf("%w: reading packet header: %v", ErrDisconnected, err)
	}

	hdr := Header{
		Type: PacketType(raw[0]),
		ID:   raw[1],
		Role: Role(raw[2]),
		Size: binary.BigEndian.Uint16(raw[4:6]),
		Sec:  binary.BigEndian.Uint32(raw[8:12]),
		Nsec: binary.BigEndian.Uint32(raw[12:16]),
	}
	if hdr.Size == 0 {
		return hdr, nil, nil
	}

	payload := make([]byte, hdr.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, fmt.Errorf("%w: reading packet payload: %v", ErrDisconnected, err)
	}
	return hdr, payload, nil
}
