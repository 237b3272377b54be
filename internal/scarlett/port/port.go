// Package port implements the Port Algebra (spec.md §4.1, C2): the
// bidirectional projection between (direction, type, index) triples and the
// 12-bit on-wire hardware identifiers used in mux entries, plus the flat,
// dense, zero-based enumeration index spec.md §3 requires.
package port

import (
	"fmt"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/errs"
)

// Direction is the data-flow direction of a port relative to the host.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Type enumerates the port families spec.md §3 names.
type Type int

const (
	None Type = iota
	Analogue
	SPDIF
	ADAT
	ADAT2
	Mix
	PCM
	InternalMic
	Talkback
)

func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case Analogue:
		return "Analogue"
	case SPDIF:
		return "S/PDIF"
	case ADAT:
		return "ADAT"
	case ADAT2:
		return "ADAT2"
	case Mix:
		return "Mix"
	case PCM:
		return "PCM"
	case InternalMic:
		return "Internal Mic"
	case Talkback:
		return "Talkback"
	default:
		return "Unknown"
	}
}

// TypeBase gives the wire-ID base for each port type: wire_id = base | index.
// These are build-time constants shared by every model (spec.md §9 "model
// tables ... are build-time constants"); spec.md §3 fixes Analogue=0x080 and
// Mix=0x300, the rest follow the same family spacing used throughout the
// wire protocol.
var TypeBase = map[Type]uint16{
	None:        0x000,
	Analogue:    0x080,
	SPDIF:       0x180,
	ADAT:        0x200,
	ADAT2:       0x280,
	InternalMic: 0x480,
	Talkback:    0x500,
	Mix:         0x300,
	PCM:         0x600,
}

// Order is the fixed type-scan order used by index_of and by flatten's
// cumulative-base accumulation (spec.md §4.1).
var Order = []Type{None, Analogue, SPDIF, ADAT, ADAT2, InternalMic, PCM, Mix, Talkback}

// TypeCount is one run of a device's port layout for a given direction and
// sample-rate band: Count ports of Type, contiguously indexed from 0.
type TypeCount struct {
	Type  Type
	Count int
}

// WireIDOf returns the 12-bit (stored in a uint16) on-wire identifier for a
// port of the given type and zero-based index within that type.
func WireIDOf(t Type, index int) uint16 {
	return TypeBase[t] | uint16(index)
}

// IndexOf maps a wire ID back to a flat, zero-based index over layout (which
// must list types in Order for a single direction), or fails for an unknown
// ID. wire_id 0 always fails: it decodes as "Off", not a port.
func IndexOf(layout []TypeCount, wireID uint16) (int, bool) {
	if wireID == 0 {
		return 0, false
	}
	cum := 0
	for _, tc := range layout {
		base := TypeBase[tc.Type]
		if tc.Type != None && wireID >= base && int(wireID-base) < tc.Count {
			return cum + int(wireID-base), true
		}
		cum += tc.Count
	}
	return 0, false
}

// Flatten returns the cumulative flat index of (t, index) within layout: the
// sum of counts of every type preceding t in Order, plus index. It does not
// validate index against t's count; callers that built layout from the
// registry are expected to pass in-range indices.
func Flatten(layout []TypeCount, t Type, index int) int {
	cum := 0
	for _, tc := range layout {
		if tc.Type == t {
			return cum + index
		}
		cum += tc.Count
	}
	return cum + index
}

// TypeAndIndex is the inverse of Flatten: given a flat index into layout,
// returns which type/sub-index it names.
func TypeAndIndex(layout []TypeCount, flat int) (Type, int, error) {
	cum := 0
	for _, tc := range layout {
		if flat < cum+tc.Count {
			return tc.Type, flat - cum, nil
		}
		cum += tc.Count
	}
	return None, 0, errs.E(errs.BadArgument, "flat index %d out of range (total %d)", flat, cum)
}

// Size returns the total number of ports described by layout.
func Size(layout []TypeCount) int {
	n := 0
	for _, tc := range layout {
		n += tc.Count
	}
	return n
}

// NameFormat gives the printf-style template for a port type's default
// display name, taking a 1-based channel number.
var NameFormat = map[Type]string{
	Analogue:    "Analogue %d",
	SPDIF:       "S/PDIF %d",
	ADAT:        "ADAT %d",
	ADAT2:       "ADAT2 %d",
	InternalMic: "Internal Mic",
	Talkback:    "Talkback",
	Mix:         "Mix %c",
	PCM:         "PCM %d",
}

// FormatPortName renders a port's display name. overrides, when non-nil,
// remaps a zero-based index within its type before applying the template
// (spec.md §4.1's 18i8 Gen 3 "remap {0,1,4,5,6,7,2,3}" example); a nil or
// too-short overrides leaves index unchanged.
func FormatPortName(t Type, index int, overrides []int) string {
	display := index
	if overrides != nil && index < len(overrides) {
		display = overrides[index]
	}
	tmpl, ok := NameFormat[t]
	if !ok {
		return fmt.Sprintf("%s %d", t, display+1)
	}
	if t == Mix {
		return fmt.Sprintf(tmpl, 'A'+rune(display))
	}
	if t == InternalMic || t == Talkback {
		return tmpl
	}
	return fmt.Sprintf(tmpl, display+1)
}
