// Package control is the Control Surface (spec.md §4.4, C9): typed get/put
// operations for every named control (volume, mute, SW/HW switch, preamp
// switches, mux routing, mixer cells, meters), plus the §4.10 bulk refresh
// procedures the notification loop's staleness flags trigger.
package control

import (
	"encoding/binary"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/commit"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/errs"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/mixer"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/protocol"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/registry"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/routing"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/state"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/swconfig"
)

// Doer is the subset of transport.Transport the control surface needs.
type Doer interface {
	Do(cmd protocol.Command, data []byte, wantRespSize int) ([]byte, error)
}

// VolumeBias is the offset between a device-reported signed raw volume byte
// and the 0..127 biased integer the state mirror and every volume control
// works in (spec.md §4.4): raw = biased - VolumeBias.
const VolumeBias = 127

// Surface is the Control Surface bound to one attached device.
type Surface struct {
	Model    *registry.Model
	Store    *state.Store
	T        Doer
	Routing  *routing.Engine // nil for models with no mux table (e.g. Solo)
	SWConfig *swconfig.Manager // nil for models with no software config
	Commit   *commit.Committer // nil disables deferred-commit coordination
}

// New constructs a Surface. routingEngine, swConfig and committer may all be
// nil where the model or caller doesn't need them.
func New(model *registry.Model, store *state.Store, t Doer, routingEngine *routing.Engine, swConfig *swconfig.Manager, committer *commit.Committer) *Surface {
	return &Surface{
		Model:    model,
		Store:    store,
		T:        t,
		Routing:  routingEngine,
		SWConfig: swConfig,
		Commit:   committer,
	}
}

// writeConfigItem performs the spec.md §4.11 sequence for writing a named
// config item at index: cancel any pending deferred commit, SET_DATA the
// value, DATA_CMD(activate) if the item declares one, then re-arm the
// deferred commit.
func (s *Surface) writeConfigItem(name string, index int, value []byte) error {
	item, ok := s.Model.ConfigItems[name]
	if !ok {
		return errs.E(errs.NotSupported, "config item %q not declared for %s", name, s.Model.Name)
	}
	if index < 0 || index >= item.Count {
		return errs.E(errs.BadArgument, "config item %q index %d out of range (count %d)", name, index, item.Count)
	}
	if len(value) != item.Size {
		return errs.E(errs.BadArgument, "config item %q value size %d, want %d", name, len(value), item.Size)
	}
	offset := item.Offset + uint32(index*item.Size)

	if s.Commit != nil {
		s.Commit.Cancel()
	}

	req := append(protocol.DataCmdValue(offset, uint16(item.Size)), value...)
	if _, err := s.T.Do(protocol.CmdSetData, req, 0); err != nil {
		return err
	}
	if item.Activate != 0 {
		act := make([]byte, 4)
		binary.LittleEndian.PutUint32(act, item.Activate)
		if _, err := s.T.Do(protocol.CmdDataCmd, act, 0); err != nil {
			return err
		}
	}

	if s.Commit != nil {
		s.Commit.Arm()
	}
	return nil
}

func (s *Surface) readConfigItem(name string, index int) ([]byte, error) {
	item, ok := s.Model.ConfigItems[name]
	if !ok {
		return nil, errs.E(errs.NotSupported, "config item %q not declared for %s", name, s.Model.Name)
	}
	if index < 0 || index >= item.Count {
		return nil, errs.E(errs.BadArgument, "config item %q index %d out of range (count %d)", name, index, item.Count)
	}
	offset := item.Offset + uint32(index*item.Size)
	req := protocol.DataCmdValue(offset, uint16(item.Size))
	return s.T.Do(protocol.CmdGetData, req, item.Size)
}

// VolumeGet returns the mirrored biased volume (0..127) for analogue output
// out.
func (s *Surface) VolumeGet(out int) (int, error) {
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	if out < 0 || out >= len(s.Store.Vol) {
		return 0, errs.E(errs.BadArgument, "output %d out of range", out)
	}
	return s.Store.Vol[out], nil
}

// VolumePut updates the mirror under the data mutex, then pushes the
// device-domain value (spec.md §4.4 put ordering).
func (s *Surface) VolumePut(out, biased int) error {
	if biased < 0 || biased > 127 {
		return errs.E(errs.BadArgument, "volume %d out of range [0,127]", biased)
	}
	s.Store.Mu.Lock()
	if out < 0 || out >= len(s.Store.Vol) {
		s.Store.Mu.Unlock()
		return errs.E(errs.BadArgument, "output %d out of range", out)
	}
	if s.Store.Vol[out] == biased {
		s.Store.Mu.Unlock()
		return nil
	}
	s.Store.Vol[out] = biased
	s.Store.Mu.Unlock()

	raw := int16(biased - VolumeBias)
	val := make([]byte, 2)
	binary.LittleEndian.PutUint16(val, uint16(raw))
	return s.writeConfigItem(registry.ItemVolume, out, val)
}

// MuteGet/MutePut control the per-output software mute switch.
func (s *Surface) MuteGet(out int) (bool, error) {
	return s.boolGet(s.Store.MuteSwitch, out)
}

func (s *Surface) MutePut(out int, mute bool) error {
	s.Store.Mu.Lock()
	if out < 0 || out >= len(s.Store.MuteSwitch) {
		s.Store.Mu.Unlock()
		return errs.E(errs.BadArgument, "output %d out of range", out)
	}
	if s.Store.MuteSwitch[out] == mute {
		s.Store.Mu.Unlock()
		return nil
	}
	s.Store.MuteSwitch[out] = mute
	if out < len(s.Store.OutputMutes) {
		s.Store.OutputMutes[out] = mute
	}
	s.Store.Mu.Unlock()

	if err := s.writeConfigItem(registry.ItemMute, out, []byte{boolByte(mute)}); err != nil {
		return err
	}
	// Gen 3 mute-aware mux emission (spec.md §4.5) needs the mux table
	// re-pushed for the forced-zero source to take effect on the wire.
	if s.Routing != nil && s.Model.Gen == 3 {
		return s.Routing.Set()
	}
	return nil
}

// SWHWSwitchGet/Put toggle per-output SW/HW volume control authority
// (spec.md §4.4): switching back from HW to SW re-sends the mirrored
// volume Vol[out] to the device. No separate software level is kept: after
// a RefreshVolumes while the output was HW-controlled, Vol[out] holds the
// hardware level, and that is the value re-sent.
func (s *Surface) SWHWSwitchGet(out int) (bool, error) {
	return s.boolGet(s.Store.VolSwHwSwitch, out)
}

func (s *Surface) SWHWSwitchPut(out int, hw bool) error {
	s.Store.Mu.Lock()
	if out < 0 || out >= len(s.Store.VolSwHwSwitch) {
		s.Store.Mu.Unlock()
		return errs.E(errs.BadArgument, "output %d out of range", out)
	}
	wasHW := s.Store.VolSwHwSwitch[out]
	if wasHW == hw {
		s.Store.Mu.Unlock()
		return nil
	}
	s.Store.VolSwHwSwitch[out] = hw
	biased := s.Store.Vol[out]
	s.Store.Mu.Unlock()

	if err := s.writeConfigItem(registry.ItemSWHWSwitch, out, []byte{boolByte(hw)}); err != nil {
		return err
	}
	if wasHW && !hw {
		val := make([]byte, 2)
		binary.LittleEndian.PutUint16(val, uint16(int16(biased-VolumeBias)))
		return s.writeConfigItem(registry.ItemVolume, out, val)
	}
	return nil
}

// PadGet/Put, AirGet/Put and LevelGet/Put control the per-input preamp
// switches that every model stores one byte per channel (spec.md §4.10).
func (s *Surface) PadGet(in int) (bool, error) { return s.boolGet(s.Store.Pad, in) }
func (s *Surface) PadPut(in int, v bool) error {
	return s.boolPut(s.Store.Pad, registry.ItemPad, in, v)
}

func (s *Surface) AirGet(in int) (bool, error) { return s.boolGet(s.Store.Air, in) }
func (s *Surface) AirPut(in int, v bool) error {
	return s.boolPut(s.Store.Air, registry.ItemAir, in, v)
}

func (s *Surface) LevelGet(in int) (bool, error) { return s.boolGet(s.Store.LineInst, in) }
func (s *Surface) LevelPut(in int, v bool) error {
	return s.boolPut(s.Store.LineInst, registry.ItemLevel, in, v)
}

// Phantom48VGet/Put applies per-channel or packed-bitmask encoding per the
// model's PreampMask (spec.md §4.10, §9 open question: the format is a
// registry fact, never inferred at runtime).
func (s *Surface) Phantom48VGet(in int) (bool, error) { return s.boolGet(s.Store.Phantom48V, in) }

func (s *Surface) Phantom48VPut(in int, v bool) error {
	s.Store.Mu.Lock()
	if in < 0 || in >= len(s.Store.Phantom48V) {
		s.Store.Mu.Unlock()
		return errs.E(errs.BadArgument, "input %d out of range", in)
	}
	if s.Store.Phantom48V[in] == v {
		s.Store.Mu.Unlock()
		return nil
	}
	s.Store.Phantom48V[in] = v
	var mask byte
	for i, on := range s.Store.Phantom48V {
		if on {
			mask |= 1 << uint(i)
		}
	}
	s.Store.Mu.Unlock()

	if s.Model.PreampMask == registry.PreampBitmask {
		return s.writeConfigItem(registry.Item48V, 0, []byte{mask})
	}
	return s.writeConfigItem(registry.Item48V, in, []byte{boolByte(v)})
}

// Retain48VGet/Put controls whether 48V phantom power survives a power
// cycle (spec.md §4.10, Gen 3 only).
func (s *Surface) Retain48VGet() (bool, error) {
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	return s.Store.Retain48V, nil
}

func (s *Surface) Retain48VPut(v bool) error {
	if !s.Model.Retain48V {
		return errs.E(errs.NotSupported, "%s has no retain-48V control", s.Model.Name)
	}
	s.Store.Mu.Lock()
	if s.Store.Retain48V == v {
		s.Store.Mu.Unlock()
		return nil
	}
	s.Store.Retain48V = v
	s.Store.Mu.Unlock()
	return s.writeConfigItem(registry.ItemRetain48V, 0, []byte{boolByte(v)})
}

// DirectMonitorGet/Put supports both the boolean (small Gen 3 interfaces)
// and {Off,Mono,Stereo} enum (18i20 Gen 3) shapes (spec.md §4.10).
func (s *Surface) DirectMonitorGet() (state.DirectMonitorMode, error) {
	if s.Model.DirectMonitor == registry.DirectMonitorNone {
		return state.DirectMonitorOff, errs.E(errs.NotSupported, "%s has no direct monitor control", s.Model.Name)
	}
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	return s.Store.DirectMonitor, nil
}

func (s *Surface) DirectMonitorPut(mode state.DirectMonitorMode) error {
	switch s.Model.DirectMonitor {
	case registry.DirectMonitorNone:
		return errs.E(errs.NotSupported, "%s has no direct monitor control", s.Model.Name)
	case registry.DirectMonitorBool:
		if mode == state.DirectMonitorStereo {
			return errs.E(errs.BadArgument, "%s direct monitor is boolean, not stereo-capable", s.Model.Name)
		}
	}
	s.Store.Mu.Lock()
	if s.Store.DirectMonitor == mode {
		s.Store.Mu.Unlock()
		return nil
	}
	s.Store.DirectMonitor = mode
	s.Store.Mu.Unlock()
	return s.writeConfigItem(registry.ItemDirectMonitor, 0, []byte{byte(mode)})
}

// SpeakerGet/Put controls the speaker-switching output selector (spec.md
// §4.10): 0=off, 1=main, 2=alt.
func (s *Surface) SpeakerGet() (int, error) {
	if !s.hasSpeakerSwitch() {
		return 0, errs.E(errs.NotSupported, "%s has no speaker switching", s.Model.Name)
	}
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	return s.Store.SpeakerState, nil
}

func (s *Surface) SpeakerPut(selector int) error {
	if !s.hasSpeakerSwitch() {
		return errs.E(errs.NotSupported, "%s has no speaker switching", s.Model.Name)
	}
	if selector < 0 || selector > 2 {
		return errs.E(errs.BadArgument, "speaker selector %d out of range [0,2]", selector)
	}
	s.Store.Mu.Lock()
	if s.Store.SpeakerState == selector {
		s.Store.Mu.Unlock()
		return nil
	}
	s.Store.SpeakerState = selector
	s.Store.Mu.Unlock()
	return s.writeConfigItem(registry.ItemSpeakerSwitch, 0, []byte{byte(selector)})
}

func (s *Surface) hasSpeakerSwitch() bool {
	_, ok := s.Model.ConfigItems[registry.ItemSpeakerSwitch]
	return ok
}

// TalkbackGet reports the talkback bus's current state; it has no
// companion Put because the only observed way it changes is the device's
// own talkback button, reported through the notification loop and
// RefreshSpeakerState, not a host-initiated write (spec.md §4.10).
func (s *Surface) TalkbackGet() (bool, error) {
	if !s.Model.TalkbackBus {
		return false, errs.E(errs.NotSupported, "%s has no talkback bus", s.Model.Name)
	}
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	return s.Store.TalkbackActive, nil
}

// RouteGet/RouteSet wrap the Routing Engine for a single mux destination.
func (s *Surface) RouteGet(dstFlat int) (int, bool, error) {
	if s.Routing == nil {
		return 0, false, errs.E(errs.NotSupported, "%s has no routing matrix", s.Model.Name)
	}
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	src, ok := s.Store.MuxSrc(dstFlat)
	return src, ok, nil
}

func (s *Surface) RouteSet(dstFlat, srcFlat int) error {
	if s.Routing == nil {
		return errs.E(errs.NotSupported, "%s has no routing matrix", s.Model.Name)
	}
	s.Routing.SetRoute(dstFlat, srcFlat)
	return s.Routing.Set()
}

// MixerCellGet/Put operate on one (mixOut, mixIn) gain cell (spec.md §4.6):
// the device has no single-cell SET_MIX, so Put re-sends the whole mix
// bus's gain vector; on software-config models it also updates the blob's
// gain matrix and mute mask.
func (s *Surface) MixerCellGet(mixOut, mixIn int) (int, bool, error) {
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	if mixOut < 0 || mixOut >= len(s.Store.MixValues) || mixIn < 0 || mixIn >= len(s.Store.MixValues[mixOut]) {
		return 0, false, errs.E(errs.BadArgument, "mixer cell (%d,%d) out of range", mixOut, mixIn)
	}
	return s.Store.MixValues[mixOut][mixIn], s.Store.MixMutes[mixOut][mixIn], nil
}

func (s *Surface) MixerCellPut(mixOut, mixIn, gainIdx int, mute bool) error {
	if gainIdx < mixer.MinIndex || gainIdx > mixer.MaxIndex {
		return errs.E(errs.BadArgument, "gain index %d out of range [0,%d]", gainIdx, mixer.MaxIndex)
	}
	s.Store.Mu.Lock()
	if mixOut < 0 || mixOut >= len(s.Store.MixValues) || mixIn < 0 || mixIn >= len(s.Store.MixValues[mixOut]) {
		s.Store.Mu.Unlock()
		return errs.E(errs.BadArgument, "mixer cell (%d,%d) out of range", mixOut, mixIn)
	}
	if s.Store.MixValues[mixOut][mixIn] == gainIdx && s.Store.MixMutes[mixOut][mixIn] == mute {
		s.Store.Mu.Unlock()
		return nil
	}
	s.Store.MixValues[mixOut][mixIn] = gainIdx
	s.Store.MixMutes[mixOut][mixIn] = mute
	gains := append([]int(nil), s.Store.MixValues[mixOut]...)
	mutes := append([]bool(nil), s.Store.MixMutes[mixOut]...)
	s.Store.Mu.Unlock()

	if err := mixer.SetMix(s.T, uint16(mixOut), gains, mutes, s.Model.TalkbackBus); err != nil {
		return err
	}
	if s.SWConfig != nil && s.SWConfig.Present {
		return s.commitMixerCell(mixOut, mixIn, gainIdx, mute)
	}
	return nil
}

// commitMixerCell mirrors one gain cell and its mute bit into the
// software-config blob. OffMixerMuteMask is a single 32-bit word covering
// the whole matrix (spec.md §9 open question on the exact mixer-input
// stride); col%32 is the only bit position available within one word, so a
// matrix wider than 32 columns loses per-cell mute fidelity in the blob
// beyond the first 32 — the wire-level mute (BuildSetMixRequest's gain-0
// substitution, already applied above) remains authoritative either way.
func (s *Surface) commitMixerCell(mixOut, mixIn, gainIdx int, mute bool) error {
	col, err := swconfig.MixerInputColumn(mixOut, mixIn)
	if err != nil {
		return err
	}
	cellOff := swconfig.OffMixerGains + col*4
	binary.LittleEndian.PutUint32(s.SWConfig.Blob[cellOff:cellOff+4], mixer.IndexToF32(gainIdx))

	muteOff := swconfig.OffMixerMuteMask
	mask := binary.LittleEndian.Uint32(s.SWConfig.Blob[muteOff : muteOff+4])
	bit := uint32(1) << uint(col%32)
	if mute {
		mask |= bit
	} else {
		mask &^= bit
	}
	binary.LittleEndian.PutUint32(s.SWConfig.Blob[muteOff:muteOff+4], mask)

	if s.Commit != nil {
		s.Commit.Cancel()
		defer s.Commit.Arm()
	}
	if err := s.SWConfig.Commit(cellOff, 4); err != nil {
		return err
	}
	return s.SWConfig.Commit(muteOff, 4)
}

// MeterLevels reads count consecutive meter values (spec.md §4.2
// GET_METER_LEVELS); read-only, no mirror.
func (s *Surface) MeterLevels(count int) ([]uint16, error) {
	req := make([]byte, 4)
	binary.LittleEndian.PutUint32(req, uint32(count))
	resp, err := s.T.Do(protocol.CmdGetMeterLevels, req, count*2)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(resp[i*2 : i*2+2])
	}
	return out, nil
}

// RefreshVolumes re-reads the consolidated volume-status block and clears
// VolStale (spec.md §4.10): {buttons[2], sw_vol[10], hw_vol[10], mute[10],
// sw_hw[10], master_vol}.
func (s *Surface) RefreshVolumes() error {
	resp, err := s.readConfigItem(registry.ItemVolumeStatus, 0)
	if err != nil {
		return err
	}
	const (
		buttonsLen = 2
		swVolOff   = buttonsLen
		hwVolOff   = swVolOff + 10
		muteOff    = hwVolOff + 10
		swHwOff    = muteOff + 10
		masterOff  = swHwOff + 10
	)

	n := len(s.Store.Vol)
	if n > 10 {
		n = 10
	}

	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	for i := 0; i < n; i++ {
		swHw := resp[swHwOff+i] != 0
		s.Store.VolSwHwSwitch[i] = swHw
		if swHw {
			s.Store.Vol[i] = clamp(int(int8(resp[hwVolOff+i]))+VolumeBias, 0, 127)
		} else {
			s.Store.Vol[i] = clamp(int(int8(resp[swVolOff+i]))+VolumeBias, 0, 127)
		}
		s.Store.MuteSwitch[i] = resp[muteOff+i] != 0
	}
	s.Store.MasterVol = clamp(int(int8(resp[masterOff]))+VolumeBias, 0, 127)
	s.Store.VolStale.Store(false)
	return nil
}

// RefreshLineControls re-reads the packed preamp bitmask byte into the Pad
// mirror and clears LineCtlStale (spec.md §4.10). Air, Level and 48V are
// not re-read. On per-channel-byte models it only clears LineCtlStale:
// no preamp mirror is re-read from the device.
func (s *Surface) RefreshLineControls() error {
	if s.Model.PreampMask != registry.PreampBitmask {
		s.Store.LineCtlStale.Store(false)
		return nil
	}
	resp, err := s.readConfigItem(registry.ItemLineCtlBitmask, 0)
	if err != nil {
		return err
	}
	mask := resp[0]
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	for i := range s.Store.Pad {
		s.Store.Pad[i] = mask&(1<<uint(i)) != 0
	}
	s.Store.LineCtlStale.Store(false)
	return nil
}

// RefreshSpeakerState re-reads the speaker-enable and main/alt+talkback
// bytes and clears SpeakerStale (spec.md §4.10).
func (s *Surface) RefreshSpeakerState() error {
	enable, err := s.readConfigItem(registry.ItemSpeakerEnable, 0)
	if err != nil {
		return err
	}
	mainAlt, err := s.readConfigItem(registry.ItemSpeakerMainAlt, 0)
	if err != nil {
		return err
	}
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	switch {
	case enable[0] == 0:
		s.Store.SpeakerState = 0
	case mainAlt[0]&0x01 != 0:
		s.Store.SpeakerState = 2
	default:
		s.Store.SpeakerState = 1
	}
	s.Store.TalkbackActive = mainAlt[0]&0x02 != 0
	s.Store.SpeakerStale.Store(false)
	return nil
}

// RefreshSync re-reads the sample-clock lock status and clears SyncStale
// (spec.md §4.8 BitSyncChange, §4.10).
func (s *Surface) RefreshSync() error {
	resp, err := s.T.Do(protocol.CmdGetSync, nil, 1)
	if err != nil {
		return err
	}
	s.Store.Mu.Lock()
	s.Store.SyncLocked = resp[0] != 0
	s.Store.Mu.Unlock()
	s.Store.SyncStale.Store(false)
	return nil
}

// RefreshStale re-runs whichever bulk refresh procedures the notification
// loop has flagged as stale (spec.md §4.8/§4.10); each refresh clears its
// own flag on success and leaves it set on failure so a later call retries.
func (s *Surface) RefreshStale() error {
	if s.Store.VolStale.Load() {
		if err := s.RefreshVolumes(); err != nil {
			return err
		}
	}
	if s.Store.LineCtlStale.Load() {
		if err := s.RefreshLineControls(); err != nil {
			return err
		}
	}
	if s.Store.SpeakerStale.Load() {
		if err := s.RefreshSpeakerState(); err != nil {
			return err
		}
	}
	if s.Store.SyncStale.Load() {
		if err := s.RefreshSync(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Surface) boolGet(mirror []bool, index int) (bool, error) {
	s.Store.Mu.Lock()
	defer s.Store.Mu.Unlock()
	if index < 0 || index >= len(mirror) {
		return false, errs.E(errs.BadArgument, "index %d out of range", index)
	}
	return mirror[index], nil
}

func (s *Surface) boolPut(mirror []bool, item string, index int, v bool) error {
	s.Store.Mu.Lock()
	if index < 0 || index >= len(mirror) {
		s.Store.Mu.Unlock()
		return errs.E(errs.BadArgument, "index %d out of range", index)
	}
	if mirror[index] == v {
		s.Store.Mu.Unlock()
		return nil
	}
	mirror[index] = v
	s.Store.Mu.Unlock()
	return s.writeConfigItem(item, index, []byte{boolByte(v)})
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// clamp restricts v to [lo,hi] (spec.md §8 invariant 4: reading back
// normalises to clamp(raw+127, 0, 127)).
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
