// Package notify is the Notification Loop (spec.md §4.8, C10): it decodes
// the 8-byte interrupt payload's bitmask and dispatches staleness flags and
// change-notify hooks. It never touches data_mutex or usb_mutex itself
// (spec.md §5) — it only flips atomic staleness flags on the state.Store
// and invokes notification hooks, which are weak, non-owning references
// (spec.md §9 design note: "weak/handle-style references for notification
// targets; never ownership edges").
package notify

import "encoding/binary"

// Bitmask values from spec.md §4.8 / §6.
const (
	BitSyncChange      uint32 = 0x00000008
	BitDimMuteChange   uint32 = 0x00200000
	BitVolumeChange    uint32 = 0x00400000
	BitLineCtlChange   uint32 = 0x00800000 // Gen 3 only
	BitSpeakerChange   uint32 = 0x01000000
)

// Staler is the subset of state.Store the dispatcher needs: flipping
// staleness flags without taking data_mutex.
type Staler interface {
	MarkSyncStale()
	MarkVolStale()
	MarkLineCtlStale()
	MarkSpeakerStale()
}

// Hooks are optional, non-blocking callbacks invoked after the matching
// staleness flag is set. Any of them may be nil.
type Hooks struct {
	OnSyncChange    func()
	OnDimMuteChange func()
	OnVolumeChange  func()
	OnLineCtlChange func()
	OnSpeakerChange func()
}

// Dispatcher decodes interrupt payloads and reacts per spec.md §4.8.
type Dispatcher struct {
	Store Staler
	Hooks Hooks
}

// Dispatch handles one interrupt-in payload.
func (d *Dispatcher) Dispatch(payload [8]byte) {
	mask := binary.LittleEndian.Uint32(payload[0:4])

	if mask&BitSyncChange != 0 {
		d.Store.MarkSyncStale()
		invoke(d.Hooks.OnSyncChange)
	}
	if mask&BitDimMuteChange != 0 {
		d.Store.MarkVolStale()
		invoke(d.Hooks.OnDimMuteChange)
	}
	if mask&BitVolumeChange != 0 {
		d.Store.MarkVolStale()
		invoke(d.Hooks.OnVolumeChange)
	}
	if mask&BitLineCtlChange != 0 {
		d.Store.MarkLineCtlStale()
		invoke(d.Hooks.OnLineCtlChange)
	}
	if mask&BitSpeakerChange != 0 {
		d.Store.MarkSpeakerStale()
		invoke(d.Hooks.OnSpeakerChange)
	}
}

func invoke(f func()) {
	if f != nil {
		f()
	}
}
