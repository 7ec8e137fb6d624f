package peer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/hearth/pkg/capability"
)

// FrameKind distinguishes the four frame shapes exchanged after the offer
// handshake. Kill and Down are the two concrete signal directions: a Kill
// targets an object the receiver exported, a Down reports the death of an
// object the receiver imported.
type FrameKind uint8

const (
	FrameMessage FrameKind = iota
	FrameKill
	FrameRelease
	FrameDown
)

func (k FrameKind) String() string {
	switch k {
	case FrameMessage:
		return "message"
	case FrameKill:
		return "kill"
	case FrameRelease:
		return "release"
	case FrameDown:
		return "down"
	default:
		return "unknown"
	}
}

// CapDescriptor is a capability as it travels over the wire: a numeric id
// in the sender's export-table namespace, plus the permission subset being
// granted. It never carries the sender's local handle integers: those are
// process-local and meaningless across the connection.
type CapDescriptor struct {
	ID    uint32
	Perms capability.Permission
}

// Frame is one unit of the framed RPC protocol. Target is always resolved
// against one of the receiving Peer's two tables; see FrameKind.
type Frame struct {
	Kind    FrameKind
	Target  uint32
	Payload []byte
	Caps    []CapDescriptor
}

// maxFramePayload bounds a single frame's payload to guard against a
// corrupted or malicious length prefix triggering an enormous allocation.
const maxFramePayload = 64 << 20

// EncodeFrame writes f to w in the wire format: kind(1) target(4)
// payloadLen(4) payload capCount(2) [id(4) perms(1)]*.
func EncodeFrame(w io.Writer, f Frame) error {
	header := make([]byte, 1+4+4)
	header[0] = byte(f.Kind)
	binary.BigEndian.PutUint32(header[1:5], f.Target)
	binary.BigEndian.PutUint32(header[5:9], uint32(len(f.Payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("peer: encode frame: header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("peer: encode frame: payload: %w", err)
		}
	}

	capCount := make([]byte, 2)
	binary.BigEndian.PutUint16(capCount, uint16(len(f.Caps)))
	if _, err := w.Write(capCount); err != nil {
		return fmt.Errorf("peer: encode frame: cap count: %w", err)
	}
	for _, cd := range f.Caps {
		entry := make([]byte, 4+1)
		binary.BigEndian.PutUint32(entry[0:4], cd.ID)
		entry[4] = byte(cd.Perms)
		if _, err := w.Write(entry); err != nil {
			return fmt.Errorf("peer: encode frame: cap descriptor: %w", err)
		}
	}
	return nil
}

// DecodeFrame reads one Frame from r, blocking until a full frame arrives.
func DecodeFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 1+4+4)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}

	f := Frame{
		Kind:   FrameKind(header[0]),
		Target: binary.BigEndian.Uint32(header[1:5]),
	}
	payloadLen := binary.BigEndian.Uint32(header[5:9])
	if payloadLen > maxFramePayload {
		return Frame{}, fmt.Errorf("peer: decode frame: payload length %d exceeds limit", payloadLen)
	}
	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, fmt.Errorf("peer: decode frame: payload: %w", err)
		}
	}

	capCountBytes := make([]byte, 2)
	if _, err := io.ReadFull(r, capCountBytes); err != nil {
		return Frame{}, fmt.Errorf("peer: decode frame: cap count: %w", err)
	}
	capCount := binary.BigEndian.Uint16(capCountBytes)
	f.Caps = make([]CapDescriptor, capCount)
	for i := range f.Caps {
		entry := make([]byte, 4+1)
		if _, err := io.ReadFull(r, entry); err != nil {
			return Frame{}, fmt.Errorf("peer: decode frame: cap descriptor %d: %w", i, err)
		}
		f.Caps[i] = CapDescriptor{
			ID:    binary.BigEndian.Uint32(entry[0:4]),
			Perms: capability.Permission(entry[4]),
		}
	}
	return f, nil
}
