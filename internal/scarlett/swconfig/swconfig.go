// Package swconfig is the Software-Config Manager (spec.md §4.7, C8): the
// on-device structured blob containing routing, stereo pairing, per-output
// volumes, mixer gains/pan/mute/solo and the mixer-bind mask, with a
// trailing checksum and chunked (≤1024-byte) transfer.
package swconfig

import (
	"encoding/binary"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/errs"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/protocol"
)

// Layout constants from spec.md §6: base offset 0xEC; body 6544 bytes plus
// a 12-byte frame (all_size u32, magic u16, version u16, szof u32); magic
// 0x3006; version 5.
const (
	BaseOffset  = 0xEC
	FrameSize   = 12
	BodySize    = 6544
	TotalSize   = FrameSize + BodySize

	Magic   = 0x3006
	Version = 5

	// SizeOffset is where the presence-check size word is read: the low
	// 16 bits of the Szof field (spec.md §4.7 "read 2 bytes at
	// base+size_offset").
	SizeOffset = 8

	// ChecksumOffset is the offset, within the whole TotalSize region, of
	// the trailing 32-bit checksum (spec.md §3): the last word.
	ChecksumOffset = TotalSize - 4
)

// Field offsets within the body used by the routing/mixer engines
// (spec.md §3). Declared here because they belong to this blob's layout;
// the values chosen lay the described fields out in declaration order.
const (
	OffOutputRouting   = FrameSize + 0     // per-output source index, 1-based, 0=off
	OutputRoutingCount = 20                // max outputs across the family
	OffMixerInputRouting = OffOutputRouting + OutputRoutingCount*2
	MixerInputRoutingCount = 30 * 20 // SW_CONFIG_MIXER_INPUTS * max mixes, per mix_num*30+input_num
	OffStereoPairing   = OffMixerInputRouting + MixerInputRoutingCount*2
	OffStereoMask      = OffStereoPairing + 4
	OffOutputMuteMask  = OffStereoMask + 4
	OffOutputVolumes   = OffOutputMuteMask + 4 // {volume int16, changed u8, flags u8} per output
	outputVolumeEntrySize = 4
	OffMixerGains      = OffOutputVolumes + OutputRoutingCount*outputVolumeEntrySize // F32LE matrix
	mixerCellSize      = 4
	OffMixerPan        = OffMixerGains + MixerInputRoutingCount*mixerCellSize
	OffMixerMuteMask   = OffMixerPan + MixerInputRoutingCount*mixerCellSize
	OffMixerSoloMask   = OffMixerMuteMask + 4
	OffMixerBindMask   = OffMixerSoloMask + 4
)

// SWConfigMixerInputs is the assumed mixer-input-to-gain-matrix-column
// stride (spec.md §9 open question): mix_num*30 + input_num, "may differ on
// un-tested models; guard with a bounds check rather than extrapolate."
const SWConfigMixerInputs = 30

// Doer is the subset of transport.Transport the manager needs.
type Doer interface {
	Do(cmd protocol.Command, data []byte, wantRespSize int) ([]byte, error)
}

// Manager owns the blob mirror and its transfer to/from the device.
type Manager struct {
	T       Doer
	Present bool // false = degraded mode (spec.md §4.7, §7)
	Blob    []byte
}

// NewManager constructs a manager bound to transport t. Attach must be
// called before use.
func NewManager(t Doer) *Manager {
	return &Manager{T: t}
}

// Attach performs the spec.md §4.7 presence check and either reads the
// existing blob or initialises and uploads a default one.
func (m *Manager) Attach() error {
	sizeWord, err := m.readDataU16(BaseOffset + SizeOffset)
	if err != nil {
		return err
	}
	if sizeWord == 0 {
		return m.initDefault()
	}
	if int(sizeWord) != BodySize {
		// Degrade: leave m.Present false, m.Blob nil (spec.md §4.7, §7).
		return nil
	}
	blob, err := m.chunkedRead(BaseOffset, TotalSize)
	if err != nil {
		return err
	}
	m.Blob = blob
	m.Present = true
	return nil
}

// initDefault builds the default blob (spec.md §4.7, §8 scenario S5) and
// uploads it in ≤1024-byte chunks.
func (m *Manager) initDefault() error {
	blob := make([]byte, TotalSize)
	binary.LittleEndian.PutUint32(blob[0:4], uint32(TotalSize))
	binary.LittleEndian.PutUint16(blob[4:6], Magic)
	binary.LittleEndian.PutUint16(blob[6:8], Version)
	binary.LittleEndian.PutUint32(blob[8:12], uint32(BodySize))
	// Body (blob[FrameSize:]) stays zeroed.
	m.Blob = blob
	recomputeChecksum(m.Blob)
	m.Present = true
	return m.chunkedWrite(BaseOffset, m.Blob)
}

// recomputeChecksum recomputes blob's trailing checksum so that the sum of
// every 32-bit word in blob is 0 mod 2^32 (spec.md §3, §8 property 5):
// checksum = -sum(other words) mod 2^32.
func recomputeChecksum(blob []byte) {
	var sum uint32
	for off := 0; off+4 <= len(blob); off += 4 {
		if off == ChecksumOffset {
			continue
		}
		sum += binary.LittleEndian.Uint32(blob[off : off+4])
	}
	binary.LittleEndian.PutUint32(blob[ChecksumOffset:ChecksumOffset+4], -sum)
}

// Checksum returns the blob's current trailing checksum word.
func (m *Manager) Checksum() uint32 {
	return binary.LittleEndian.Uint32(m.Blob[ChecksumOffset : ChecksumOffset+4])
}

// Commit writes back a changed [offset, offset+length) range of the blob,
// having first recomputed and included the trailing checksum, and rejects
// out-of-bounds ranges (spec.md §4.7 invariant, §7 BadArgument).
//
// The caller is responsible for cancelling/re-arming the deferred-commit
// timer around this call (spec.md §4.7: "cancels any pending NVRAM save ...
// then arms the deferred commit" — that coordination lives in
// internal/scarlett/commit so this package stays focused on the blob
// itself).
func (m *Manager) Commit(offset, length int) error {
	if !m.Present {
		return errs.E(errs.NotSupported, "software-config blob not present (degraded mode)")
	}
	if offset < 0 || length < 0 || offset+length > len(m.Blob) {
		return errs.E(errs.BadArgument, "commit range [%d,%d) out of bounds (blob size %d)", offset, offset+length, len(m.Blob))
	}
	recomputeChecksum(m.Blob)

	if err := m.chunkedWrite(BaseOffset+uint32(offset), m.Blob[offset:offset+length]); err != nil {
		return err
	}
	return m.chunkedWrite(BaseOffset+uint32(ChecksumOffset), m.Blob[ChecksumOffset:ChecksumOffset+4])
}

func (m *Manager) readDataU16(offset uint32) (uint16, error) {
	req := protocol.DataCmdValue(offset, 2)
	resp, err := m.T.Do(protocol.CmdGetData, req, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(resp[0:2]), nil
}

func (m *Manager) chunkedRead(base uint32, total int) ([]byte, error) {
	out := make([]byte, 0, total)
	for _, c := range protocol.PlanChunks(base, total) {
		req := protocol.DataCmdValue(c.Offset, uint16(c.Size))
		resp, err := m.T.Do(protocol.CmdGetData, req, c.Size)
		if err != nil {
			return nil, err
		}
		out = append(out, resp...)
	}
	return out, nil
}

func (m *Manager) chunkedWrite(base uint32, data []byte) error {
	for _, c := range protocol.PlanChunks(base, len(data)) {
		relOffset := c.Offset - base
		payload := append(protocol.DataCmdValue(c.Offset, uint16(c.Size)), data[relOffset:relOffset+uint32(c.Size)]...)
		if _, err := m.T.Do(protocol.CmdSetData, payload, 0); err != nil {
			return err
		}
	}
	return nil
}

// MixerInputColumn returns the gain-matrix column for a given mix bus and
// input, bounds-checked rather than extrapolated beyond SWConfigMixerInputs
// (spec.md §9 open question).
func MixerInputColumn(mixNum, inputNum int) (int, error) {
	col := mixNum*SWConfigMixerInputs + inputNum
	if inputNum < 0 || inputNum >= SWConfigMixerInputs || col >= MixerInputRoutingCount {
		return 0, errs.E(errs.BadArgument, "mixer input column out of range: mix %d input %d", mixNum, inputNum)
	}
	return col, nil
}
