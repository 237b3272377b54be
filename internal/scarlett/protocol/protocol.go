// Package protocol is the Protocol Codec (spec.md §4.2, C3): the vendor
// request/response envelope, the command set, sequence-number discipline
// and the chunking rule for bulk transfers over 1024 bytes.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/errs"
)

// Command is a 32-bit vendor command code (spec.md §4.2).
type Command uint32

const (
	CmdInit1           Command = 0x00000000
	CmdInit2           Command = 0x00000002
	CmdConfigSave      Command = 0x00000006
	CmdGetMeterLevels  Command = 0x00001001
	CmdGetMix          Command = 0x00002001
	CmdSetMix          Command = 0x00002002
	CmdGetMux          Command = 0x00003001
	CmdSetMux          Command = 0x00003002
	CmdGetSync         Command = 0x00006004
	CmdGetData         Command = 0x00800000
	CmdSetData         Command = 0x00800001
	CmdDataCmd         Command = 0x00800002
)

// EnvelopeSize is the fixed 16-byte header size (spec.md §4.2, §6).
const EnvelopeSize = 16

// MaxChunkBytes is the chunking threshold for bulk transfers (spec.md §4.2,
// §6): any read/write larger than this is split into consecutive
// (offset, size) pairs of at most this many bytes.
const MaxChunkBytes = 1024

// Envelope is the little-endian 16-byte vendor request/response header,
// followed by Data.
type Envelope struct {
	Cmd   Command
	Size  uint16
	Seq   uint16
	Error uint32
	Pad   uint32
	Data  []byte
}

// Encode serialises the envelope to wire bytes.
func (e *Envelope) Encode() []byte {
	buf := make([]byte, EnvelopeSize+len(e.Data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.Cmd))
	binary.LittleEndian.PutUint16(buf[4:6], e.Size)
	binary.LittleEndian.PutUint16(buf[6:8], e.Seq)
	binary.LittleEndian.PutUint32(buf[8:12], e.Error)
	binary.LittleEndian.PutUint32(buf[12:16], e.Pad)
	copy(buf[16:], e.Data)
	return buf
}

// Decode parses wire bytes into an Envelope.
func Decode(buf []byte) (*Envelope, error) {
	if len(buf) < EnvelopeSize {
		return nil, errs.E(errs.IoTransport, "short envelope: %d bytes", len(buf))
	}
	e := &Envelope{
		Cmd:   Command(binary.LittleEndian.Uint32(buf[0:4])),
		Size:  binary.LittleEndian.Uint16(buf[4:6]),
		Seq:   binary.LittleEndian.Uint16(buf[6:8]),
		Error: binary.LittleEndian.Uint32(buf[8:12]),
		Pad:   binary.LittleEndian.Uint32(buf[12:16]),
	}
	e.Data = append([]byte(nil), buf[EnvelopeSize:]...)
	return e, nil
}

// SeqCounter is the monotone u16 sequence counter (spec.md §4.2): wraps
// freely, not safe for concurrent use without an external lock (callers
// hold usb_mutex, spec.md §5, around the whole tx/rx pair anyway).
type SeqCounter struct {
	next uint16
}

// NewSeqCounter seeds the counter to 1, matching the two "seq := 1"
// re-seedings of the init sequence (spec.md §4.12): callers that need the
// cargo-cult behavior reseed explicitly with Reset(1) at each of those
// points; a freshly constructed counter also starts at 1 so the very first
// command issued is seq 1.
func NewSeqCounter() *SeqCounter {
	return &SeqCounter{next: 1}
}

// Next returns the sequence number to use for the next request and
// post-increments the counter.
func (s *SeqCounter) Next() uint16 {
	v := s.next
	s.next++
	return v
}

// Reset reseeds the counter, used for the init sequence's documented
// "seq := 1" steps.
func (s *SeqCounter) Reset(v uint16) {
	s.next = v
}

// BuildRequest fills in a request envelope for cmd with the given sequence
// number and data payload, zeroing error/pad as spec.md §4.2 step 2
// requires.
func BuildRequest(cmd Command, seq uint16, data []byte) *Envelope {
	return &Envelope{
		Cmd:  cmd,
		Size: uint16(len(data)),
		Seq:  seq,
		Data: data,
	}
}

// ValidateResponse checks resp against req per spec.md §4.2 step 3: cmd and
// seq must match (except the documented init exception: req.Seq == 1 and
// resp.Seq == 0 is accepted), size must equal wantRespSize, and error/pad
// must be zero. Any mismatch returns a ProtocolMismatch error naming both
// seq and size, logged once per command by the caller (spec.md §7).
func ValidateResponse(req, resp *Envelope, wantRespSize int) error {
	if resp.Cmd != req.Cmd {
		return errs.E(errs.ProtocolMismatch, "cmd mismatch: sent 0x%08x, got 0x%08x (seq %d, size %d)", req.Cmd, resp.Cmd, req.Seq, wantRespSize)
	}
	if resp.Seq != req.Seq {
		if !(req.Seq == 1 && resp.Seq == 0) {
			return errs.E(errs.ProtocolMismatch, "seq mismatch: sent %d, got %d (size %d)", req.Seq, resp.Seq, wantRespSize)
		}
	}
	if int(resp.Size) != wantRespSize {
		return errs.E(errs.ProtocolMismatch, "size mismatch: want %d, got %d (seq %d)", wantRespSize, resp.Size, req.Seq)
	}
	if resp.Error != 0 {
		return errs.E(errs.ProtocolMismatch, "device reported error 0x%08x (seq %d, size %d)", resp.Error, req.Seq, wantRespSize)
	}
	if resp.Pad != 0 {
		return errs.E(errs.ProtocolMismatch, "nonzero pad 0x%08x (seq %d, size %d)", resp.Pad, req.Seq, wantRespSize)
	}
	return nil
}

// Chunk is one (offset, size) piece, of at most MaxChunkBytes, of a bulk
// transfer split by PlanChunks (spec.md §4.2 chunking rule, §3
// "transferred in bounded chunks ≤ 1024 bytes").
type Chunk struct {
	Offset uint32
	Size   int
}

// PlanChunks returns the ordered chunk plan for a transfer of totalSize
// bytes starting at baseOffset.
func PlanChunks(baseOffset uint32, totalSize int) []Chunk {
	if totalSize <= 0 {
		return nil
	}
	var chunks []Chunk
	remaining := totalSize
	offset := baseOffset
	for remaining > 0 {
		n := remaining
		if n > MaxChunkBytes {
			n = MaxChunkBytes
		}
		chunks = append(chunks, Chunk{Offset: offset, Size: n})
		offset += uint32(n)
		remaining -= n
	}
	return chunks
}

// DataCmdValue builds the 8-byte little-endian value payload for a
// GET_DATA/SET_DATA request: u32 offset, u16 size, two zero bytes.
func DataCmdValue(offset uint32, size uint16) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], offset)
	binary.LittleEndian.PutUint16(buf[4:6], size)
	return buf
}

func (c Command) String() string {
	switch c {
	case CmdInit1:
		return "INIT_1"
	case CmdInit2:
		return "INIT_2"
	case CmdConfigSave:
		return "CONFIG_SAVE"
	case CmdGetMeterLevels:
		return "GET_METER_LEVELS"
	case CmdGetMix:
		return "GET_MIX"
	case CmdSetMix:
		return "SET_MIX"
	case CmdGetMux:
		return "GET_MUX"
	case CmdSetMux:
		return "SET_MUX"
	case CmdGetSync:
		return "GET_SYNC"
	case CmdGetData:
		return "GET_DATA"
	case CmdSetData:
		return "SET_DATA"
	case CmdDataCmd:
		return "DATA_CMD"
	default:
		return fmt.Sprintf("CMD(0x%08x)", uint32(c))
	}
}
