// Package state is the State Store (spec.md §4.4, C5): the in-memory
// authoritative mirror of device state, guarded by data_mutex (spec.md §5).
//
// Staleness flags are intentionally NOT behind the mutex: spec.md §5 and the
// "cooperative staleness signal, not a producer/consumer queue" design note
// (§9) require the interrupt callback to flip them without ever acquiring
// data_mutex, so they are plain atomic.Bool word-writes. Everything else
// here is guarded by Mu, which callers (internal/scarlett/control and the
// refresh routines) take explicitly — the Store does not lock itself, to
// let a single critical section span a read-modify-write plus the wire
// round-trip that commits it (spec.md §4.4 put: "under the data mutex").
package state

import (
	"sync"
	"sync/atomic"
)

// DimMute holds the device-wide fixed attenuation/mute state applied to
// HW-controlled outputs (spec.md §3).
type DimMute struct {
	Mute bool
	Dim  bool
}

// DirectMonitorMode mirrors spec.md §4.10's {Off, Mono, Stereo} enum.
type DirectMonitorMode int

const (
	DirectMonitorOff DirectMonitorMode = iota
	DirectMonitorMono
	DirectMonitorStereo
)

// Store is the device's state mirror. All fields below Mu are guarded by
// it; the Stale* fields are not.
type Store struct {
	Mu sync.Mutex

	// Per-analogue-output volume state (spec.md §3).
	Vol          []int  // biased integer 0..127
	VolSwHwSwitch []bool // true = HW-controlled
	MuteSwitch   []bool
	MasterVol    int // biased integer 0..127
	DimMuteState DimMute

	// Per-input preamp switches (spec.md §3). Packing (bitmask vs
	// per-channel byte) is a device-descriptor flag consulted by the
	// refresh/write paths, not stored here.
	Pad       []bool
	Air       []bool
	LineInst  []bool // false = Line, true = Inst
	Phantom48V []bool
	Retain48V bool

	// Mux routing table: logical dst_index -> src_index, -1 meaning "Off"
	// (spec.md §3 mux routing table).
	Mux map[int]int

	// Per-output forced mute applied to mux emission (spec.md §4.5 Gen 3
	// "mute-aware routing" extension).
	OutputMutes []bool

	// Mixer matrix: MixValues[mixOut][mixIn] = gain index in [0,172]
	// (spec.md §3).
	MixValues [][]int
	MixMutes  [][]bool

	// Software-configuration blob field (spec.md §4.7). Nothing in the
	// engine sets it, so it stays nil; the blob mirror itself is
	// swconfig.Manager.Blob.
	SoftwareConfig []byte

	SpeakerState   int // 0=off, 1=main, 2=alt
	TalkbackActive bool
	DirectMonitor  DirectMonitorMode
	SyncLocked     bool

	// Stale flags (spec.md §4.8): set by the notification loop without
	// taking Mu; cleared only by a successful bulk refresh under Mu.
	VolStale     atomic.Bool
	SyncStale    atomic.Bool
	LineCtlStale atomic.Bool
	SpeakerStale atomic.Bool
}

// New allocates a Store sized for analogueOutCount outputs, mixInputs x
// mixOutputs mixer cells, and preampCount preamp-controlled inputs. All
// volumes start at 127 (0 dB) unmuted, SW-controlled, per a freshly attached
// device before its first refresh.
func New(analogueOutCount, preampCount, mixInputs, mixOutputs int) *Store {
	s := &Store{
		Vol:            make([]int, analogueOutCount),
		VolSwHwSwitch:  make([]bool, analogueOutCount),
		MuteSwitch:     make([]bool, analogueOutCount),
		MasterVol:      127,
		Pad:            make([]bool, preampCount),
		Air:            make([]bool, preampCount),
		LineInst:       make([]bool, preampCount),
		Phantom48V:     make([]bool, preampCount),
		Mux:            make(map[int]int),
		OutputMutes:    make([]bool, analogueOutCount),
		MixValues:      make([][]int, mixOutputs),
		MixMutes:       make([][]bool, mixOutputs),
	}
	for i := range s.Vol {
		s.Vol[i] = 127
	}
	for i := range s.MixValues {
		s.MixValues[i] = make([]int, mixInputs)
		s.MixMutes[i] = make([]bool, mixInputs)
		for j := range s.MixValues[i] {
			s.MixValues[i][j] = 160 // unity
		}
	}
	return s
}

// MuxSrc returns the routed source index for dst, or (-1, false) when
// unrouted ("Off"). Caller must hold Mu.
func (s *Store) MuxSrc(dst int) (int, bool) {
	v, ok := s.Mux[dst]
	if !ok || v < 0 {
		return -1, false
	}
	return v, true
}

// MarkVolStale, MarkSyncStale, MarkLineCtlStale and MarkSpeakerStale are
// called from the notification loop (spec.md §4.8); they never take Mu.
func (s *Store) MarkVolStale()     { s.VolStale.Store(true) }
func (s *Store) MarkSyncStale()    { s.SyncStale.Store(true) }
func (s *Store) MarkLineCtlStale() { s.LineCtlStale.Store(true) }
func (s *Store) MarkSpeakerStale() { s.SpeakerStale.Store(true) }
