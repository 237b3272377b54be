// Package mixer is the Mixer Engine (spec.md §4.6, C7): per-mix gain
// vector read/write, the half-dB gain-index <-> linear-gain table, and the
// software-config F32LE <-> gain-index conversion.
package mixer

import (
	"encoding/binary"
	"math"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/protocol"
)

// MinIndex and MaxIndex bound the gain-index domain (spec.md §3: "gain
// indices in [0, 172]"); UnityIndex is 0 dB.
const (
	MinIndex   = 0
	MaxIndex   = 172
	UnityIndex = 160

	// TalkbackUnity is the fixed trailer value (0x2000, unity) appended to
	// a SET_MIX request on talkback-capable models (spec.md §4.6).
	TalkbackUnity uint16 = 0x2000
)

// Values is the static table mapping a half-dB gain index in [0,172] to a
// 16-bit linear gain, approximating 8192*10^((k-160)/40) with k=160 unity
// (spec.md §3, GLOSSARY "mixer_values"). Computed once at package init: it
// is logically a build-time constant (spec.md §9) but Go cannot express a
// non-trivial floating-point table as a true const.
var Values [MaxIndex + 1]uint16

func init() {
	for k := 0; k <= MaxIndex; k++ {
		v := 8192.0 * math.Pow(10, float64(k-UnityIndex)/40.0)
		Values[k] = uint16(math.Round(v))
	}
}

// IndexToGain returns the linear gain for index k (clamped to [0,172]).
func IndexToGain(k int) uint16 {
	if k < MinIndex {
		k = MinIndex
	}
	if k > MaxIndex {
		k = MaxIndex
	}
	return Values[k]
}

// GainToIndex inverts Values: the first j with Values[j] >= v, clamped to
// MaxIndex if v exceeds every table entry (spec.md §4.6 get, §8 property 3).
func GainToIndex(v uint16) int {
	for j := MinIndex; j <= MaxIndex; j++ {
		if Values[j] >= v {
			return j
		}
	}
	return MaxIndex
}

// Doer is the subset of transport.Transport the engine needs.
type Doer interface {
	Do(cmd protocol.Command, data []byte, wantRespSize int) ([]byte, error)
}

// BuildSetMixRequest builds the SET_MIX payload for one mix bus (spec.md
// §4.6 set): mix_num, then one u16 gain per input (muted cells emit a
// linear gain of 0), then — on talkback-capable models — one extra unity
// u16 for the talkback contribution.
func BuildSetMixRequest(mixNum uint16, gains []int, mutes []bool, hasTalkback bool) []byte {
	n := len(gains)
	extra := 0
	if hasTalkback {
		extra = 1
	}
	buf := make([]byte, 2+2*(n+extra))
	binary.LittleEndian.PutUint16(buf[0:2], mixNum)
	for i, g := range gains {
		gain := IndexToGain(g)
		if i < len(mutes) && mutes[i] {
			gain = 0
		}
		binary.LittleEndian.PutUint16(buf[2+2*i:4+2*i], gain)
	}
	if hasTalkback {
		binary.LittleEndian.PutUint16(buf[2+2*n:4+2*n], TalkbackUnity)
	}
	return buf
}

// SetMix sends one mix bus's gain vector to the device.
func SetMix(t Doer, mixNum uint16, gains []int, mutes []bool, hasTalkback bool) error {
	payload := BuildSetMixRequest(mixNum, gains, mutes, hasTalkback)
	_, err := t.Do(protocol.CmdSetMix, payload, 0)
	return err
}

// GetMix reads back one mix bus's gain vector and inverts each received
// linear value through GainToIndex (spec.md §4.6 get).
func GetMix(t Doer, mixNum uint16, count int) ([]int, error) {
	req := make([]byte, 4)
	binary.LittleEndian.PutUint16(req[0:2], mixNum)
	binary.LittleEndian.PutUint16(req[2:4], uint16(count))

	resp, err := t.Do(protocol.CmdGetMix, req, count*2)
	if err != nil {
		return nil, err
	}
	out := make([]int, count)
	for i := 0; i < count; i++ {
		v := binary.LittleEndian.Uint16(resp[i*2 : i*2+2])
		out[i] = GainToIndex(v)
	}
	return out, nil
}

// significandShiftBase is 0x95: spec.md §4.6's shift amount is
// (0x95 - exp), where exp is the raw (biased) IEEE-754 exponent field.
const significandShiftBase = 0x95

// F32ToIndex decodes a little-endian IEEE-754 float32 software-config gain
// cell into a biased [0,172] index (spec.md §4.6): values with magnitude
// below 0.5 are unity (0, biased 160); magnitude above 80.0 saturates in
// the half-dB domain before biasing (positive to +12, negative to -160);
// otherwise the 24-bit normalised
// significand is shifted right by (0x95 - exp) bits, signed, then biased by
// +160.
func F32ToIndex(bits uint32) int {
	x := math.Float32frombits(bits)
	mag := float64(x)
	if mag < 0 {
		mag = -mag
	}

	var v int
	switch {
	case mag < 0.5:
		v = 0
	case mag > 80.0:
		v = 12
		if x < 0 {
			v = -160
		}
	default:
		exp := int((bits >> 23) & 0xFF)
		shift := significandShiftBase - exp
		significand := uint32(0x800000) | (bits & 0x7FFFFF)
		var mag24 int
		switch {
		case shift < 0:
			mag24 = int(significand) << uint(-shift)
		case shift > 31:
			mag24 = 0
		default:
			mag24 = int(significand >> uint(shift))
		}
		v = mag24
		if x < 0 {
			v = -v
		}
	}

	if v < -160 {
		v = -160
	}
	if v > 12 {
		v = 12
	}
	idx := v + UnityIndex
	if idx < MinIndex {
		idx = MinIndex
	}
	if idx > MaxIndex {
		idx = MaxIndex
	}
	return idx
}

// IndexToF32 is the inverse of F32ToIndex, used when writing a mixer cell
// back into the software-config blob: it encodes index idx as its gain in
// dB, (idx-160)/2, which F32ToIndex decodes back to idx exactly; index 160
// (unity) is exactly 0.0.
func IndexToF32(idx int) uint32 {
	if idx == UnityIndex {
		return 0
	}
	return math.Float32bits(float32(idx-UnityIndex) / 2)
}
