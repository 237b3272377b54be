package swconfig

import (
	"encoding/binary"
	"testing"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/protocol"
)

// fakeDevice answers GET_DATA/SET_DATA against an in-memory byte array
// addressed the way the real NVRAM blob is (spec.md §4.11 DataCmdValue
// envelope: u32 offset, u16 size).
type fakeDevice struct {
	mem [0x4000]byte
}

func (f *fakeDevice) Do(cmd protocol.Command, data []byte, wantRespSize int) ([]byte, error) {
	offset := binary.LittleEndian.Uint32(data[0:4])
	size := binary.LittleEndian.Uint16(data[4:6])

	switch cmd {
	case protocol.CmdGetData:
		return append([]byte(nil), f.mem[offset:offset+uint32(size)]...), nil
	case protocol.CmdSetData:
		copy(f.mem[offset:offset+uint32(size)], data[8:])
		return nil, nil
	default:
		return nil, nil
	}
}

func TestAttachInitializesDefaultBlobWhenAbsent(t *testing.T) {
	dev := &fakeDevice{}
	m := NewManager(dev)

	if err := m.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !m.Present {
		t.Fatal("expected Present after initializing default blob")
	}
	if len(m.Blob) != TotalSize {
		t.Fatalf("blob size = %d, want %d", len(m.Blob), TotalSize)
	}

	checksumInvariantHolds(t, m.Blob)

	onWire := dev.mem[BaseOffset : BaseOffset+TotalSize]
	for i := range onWire {
		if onWire[i] != m.Blob[i] {
			t.Fatalf("device memory diverges from blob at byte %d", i)
		}
	}
}

func TestAttachReadsExistingBlob(t *testing.T) {
	dev := &fakeDevice{}
	seed := NewManager(dev)
	if err := seed.Attach(); err != nil {
		t.Fatalf("seed Attach: %v", err)
	}

	m := NewManager(dev)
	if err := m.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !m.Present {
		t.Fatal("expected Present reading back an existing blob")
	}
	if m.Checksum() != seed.Checksum() {
		t.Errorf("checksum mismatch after re-read: got %#x want %#x", m.Checksum(), seed.Checksum())
	}
}

func TestCommitRecomputesChecksum(t *testing.T) {
	dev := &fakeDevice{}
	m := NewManager(dev)
	if err := m.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	binary.LittleEndian.PutUint32(m.Blob[OffOutputRouting:OffOutputRouting+4], 0xdeadbeef)
	if err := m.Commit(OffOutputRouting, 4); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	checksumInvariantHolds(t, m.Blob)

	wireChecksum := binary.LittleEndian.Uint32(dev.mem[BaseOffset+ChecksumOffset : BaseOffset+ChecksumOffset+4])
	if wireChecksum != m.Checksum() {
		t.Errorf("device checksum = %#x, manager checksum = %#x", wireChecksum, m.Checksum())
	}
}

func TestCommitRejectsOutOfBoundsRange(t *testing.T) {
	dev := &fakeDevice{}
	m := NewManager(dev)
	if err := m.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := m.Commit(len(m.Blob)-2, 4); err == nil {
		t.Fatal("expected error committing an out-of-bounds range")
	}
}

func TestMixerInputColumnBounds(t *testing.T) {
	if _, err := MixerInputColumn(0, SWConfigMixerInputs); err == nil {
		t.Error("expected error for input index at the stride boundary")
	}
	if col, err := MixerInputColumn(1, 2); err != nil || col != SWConfigMixerInputs+2 {
		t.Errorf("MixerInputColumn(1,2) = (%d,%v), want (%d,nil)", col, err, SWConfigMixerInputs+2)
	}
}

// checksumInvariantHolds asserts that the sum of every 32-bit word in blob,
// including the trailing checksum itself, is 0 mod 2^32 (spec.md §3, §8
// property 5).
func checksumInvariantHolds(t *testing.T, blob []byte) {
	t.Helper()
	var sum uint32
	for off := 0; off+4 <= len(blob); off += 4 {
		sum += binary.LittleEndian.Uint32(blob[off : off+4])
	}
	if sum != 0 {
		t.Errorf("checksum invariant violated: word sum = %#x, want 0", sum)
	}
}
