// Package registry is the Device Registry (spec.md §4, C1): the static,
// build-time table of supported Focusrite Scarlett Gen 2/3 interfaces and
// their per-model parameters — port counts per direction/type/sample-rate
// band, mux assignment layouts, config-item offsets, and feature flags.
// Everything here is a const-in-code table keyed by USB product ID, per the
// "model tables are build-time constants" design note in spec.md §9: no
// runtime dispatch, just indexing.
package registry

import "github.com/focusrite-scarlett/ctld/internal/scarlett/port"

// Band is a sample-rate band as spec.md §3 defines it for port counts.
type Band int

const (
	BandDefault Band = iota
	Band44_48
	Band88_96
	Band176_192
)

// MuxBand is the coarser banding used when transmitting the mux table
// (spec.md §4.5): the device merges Default and Band44_48 into one wire
// table.
type MuxBand int

const (
	MuxBandLow MuxBand = iota // default / 44.1 / 48 kHz
	MuxBandMid                // 88.2 / 96 kHz
	MuxBandHigh                // 176.4 / 192 kHz
)

// MuxRun is one ordered run of a mux_assignment layout: Count consecutive
// destinations of Type, starting at sub-index Start within that type.
type MuxRun struct {
	Type  port.Type
	Start int
	Count int
}

// ConfigItem is the static {offset, size, activate} triple spec.md §4.11
// uses to write a named config item: SET_DATA at offset+index*size, then
// DATA_CMD(activate) if activate != 0.
type ConfigItem struct {
	Offset   uint32
	Size     int
	Count    int // number of indexable slots (e.g. one per analogue output)
	Activate uint32
}

// PreampMaskKind distinguishes the two ways a device reports per-input
// preamp switches (spec.md §4.10, §9 open question: "must not be inferred
// at runtime").
type PreampMaskKind int

const (
	PreampPerChannelByte PreampMaskKind = iota
	PreampBitmask
)

// DirectMonitorKind is the shape of a model's direct-monitor control
// (spec.md §6 Direct Monitor).
type DirectMonitorKind int

const (
	DirectMonitorNone DirectMonitorKind = iota
	DirectMonitorBool
	DirectMonitorEnum // Off/Mono/Stereo
)

// Model is everything the rest of the engine needs to know about one
// supported interface.
type Model struct {
	Name      string
	VendorID  uint16
	ProductID uint16
	Gen       int // 2 or 3

	// PortCounts[direction][band] is the ordered port layout, following
	// port.Order, for that direction and sample-rate band.
	PortCounts map[port.Direction]map[Band][]port.TypeCount

	// MuxAssignment[band] is the ordered run list used to serialise the
	// mux table to the wire (spec.md §4.5); MuxSize[band] is the total
	// 32-bit slot count the serialised sequence must cover.
	MuxAssignment [3][]MuxRun
	MuxSize       [3]int

	// OutputNameRemap, when non-nil, is the overrides table for
	// port.FormatPortName (spec.md §4.1, the 18i8 Gen 3 example); no code
	// in this repository passes it to FormatPortName.
	OutputNameRemap []int

	ConfigItems map[string]ConfigItem

	HasSoftwareConfig bool
	PreampMask        PreampMaskKind
	// MeterCount is 0 when the device's meter count must be detected by
	// first-read-size (spec.md §9 open question) rather than assumed.
	MeterCount    int
	TalkbackBus   bool
	DirectMonitor DirectMonitorKind
	Retain48V     bool

	NumMixInputs  int
	NumMixOutputs int

	AnalogueOutCount int // number of software-volume-controlled outputs
}

// Config-item names shared across models.
const (
	ItemVolume       = "volume"
	ItemMute         = "mute"
	ItemSWHWSwitch   = "sw_hw_switch"
	ItemPad          = "pad"
	ItemAir          = "air"
	ItemLevel        = "level"
	Item48V          = "48v"
	ItemRetain48V    = "retain_48v"
	ItemMSDMode      = "msd_mode"
	ItemSpeakerSwitch = "speaker_switch"
	ItemDirectMonitor = "direct_monitor"
	ItemLineCtlBitmask = "line_ctl_bitmask"

	// ItemVolumeStatus is the consolidated read-back block refresh_volumes
	// decodes (spec.md §4.10): {buttons[2], sw_vol[10], hw_vol[10],
	// mute[10], sw_hw[10], master_vol} ~= 136 bytes.
	ItemVolumeStatus = "volume_status"
	// ItemSpeakerEnable / ItemSpeakerMainAlt are the two bytes
	// refresh_speaker_state reads (spec.md §4.10).
	ItemSpeakerEnable  = "speaker_enable"
	ItemSpeakerMainAlt = "speaker_main_alt"
)

// VendorID is the USB vendor ID all supported interfaces share (spec.md §6).
const VendorID = 0x1235

// ProductID values from spec.md §6.
const (
	PID6i6Gen2   = 0x8203
	PID18i8Gen2  = 0x8204
	PID18i20Gen2 = 0x8201

	PIDSoloGen3  = 0x8211
	PID2i2Gen3   = 0x8210
	PID4i4Gen3   = 0x8212
	PID8i6Gen3   = 0x8213
	PID18i8Gen3  = 0x8214
	PID18i20Gen3 = 0x8215
)

// ByProductID is the full device registry, keyed by USB product ID.
var ByProductID = map[uint16]*Model{}

func register(m *Model) {
	m.VendorID = VendorID
	ByProductID[m.ProductID] = m
}

// Lookup returns the model for a given vendor/product ID pair, or
// (nil, false) when unsupported.
func Lookup(vendorID, productID uint16) (*Model, bool) {
	if vendorID != VendorID {
		return nil, false
	}
	m, ok := ByProductID[productID]
	return m, ok
}

func layout(counts ...port.TypeCount) []port.TypeCount {
	out := make([]port.TypeCount, 0, len(counts))
	for _, c := range counts {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	return out
}

func init() {
	register(eighteen20Gen2())
	register(eighteen8Gen2())
	register(sixI6Gen2())

	register(eighteen20Gen3())
	register(eighteen8Gen3())
	register(eightI6Gen3())
	register(fourI4Gen3())
	register(twoI2Gen3())
	register(soloGen3())
}

// eighteen20Gen2 models the Scarlett 18i20 Gen 2 (spec.md scenarios S1, S2,
// S3 all use this model). 18 inputs (8 analogue, 2 S/PDIF, 8 ADAT), 20
// outputs (10 analogue, 2 S/PDIF, 8 ADAT); mux table also routes every input
// source to the 18 PCM capture channels and to the 10 hardware outputs
// simultaneously, per the real device's crossbar. No software-config blob
// (Gen 2 does not support it).
func eighteen20Gen2() *Model {
	in := map[Band][]port.TypeCount{}
	out := map[Band][]port.TypeCount{}
	for _, b := range []Band{BandDefault, Band44_48, Band88_96, Band176_192} {
		in[b] = layout(
			port.TypeCount{Type: port.Analogue, Count: 8},
			port.TypeCount{Type: port.SPDIF, Count: 2},
			port.TypeCount{Type: port.ADAT, Count: 8},
			port.TypeCount{Type: port.Mix, Count: 18},
		)
		out[b] = layout(
			port.TypeCount{Type: port.Analogue, Count: 10},
			port.TypeCount{Type: port.SPDIF, Count: 2},
			port.TypeCount{Type: port.ADAT, Count: 8},
			port.TypeCount{Type: port.PCM, Count: 18},
		)
	}

	// Band 0 (default/44.1/48): 2 analogue-out destinations first (as
	// spec.md's S1 scenario exercises), then the 18 PCM-capture
	// destinations, then the remaining 8 analogue outs, then S/PDIF and
	// ADAT; zero-padded to 77 slots total.
	band0 := []MuxRun{
		{Type: port.Analogue, Start: 0, Count: 2},
		{Type: port.PCM, Start: 0, Count: 18},
		{Type: port.Analogue, Start: 2, Count: 8},
		{Type: port.SPDIF, Start: 0, Count: 2},
		{Type: port.ADAT, Start: 0, Count: 8},
	}
	band1 := []MuxRun{
		{Type: port.Analogue, Start: 0, Count: 10},
		{Type: port.PCM, Start: 0, Count: 18},
		{Type: port.SPDIF, Start: 0, Count: 2},
		{Type: port.ADAT, Start: 0, Count: 4},
	}
	band2 := []MuxRun{
		{Type: port.Analogue, Start: 0, Count: 10},
		{Type: port.PCM, Start: 0, Count: 8},
	}

	return &Model{
		Name:             "Scarlett 18i20 Gen 2",
		ProductID:        PID18i20Gen2,
		Gen:              2,
		PortCounts:       map[port.Direction]map[Band][]port.TypeCount{port.In: in, port.Out: out},
		MuxAssignment:    [3][]MuxRun{band0, band1, band2},
		MuxSize:          [3]int{77, 36, 18},
		ConfigItems:      gen2ConfigItems(10),
		HasSoftwareConfig: false,
		PreampMask:       PreampPerChannelByte,
		MeterCount:       0,
		NumMixInputs:     18,
		NumMixOutputs:    18,
		AnalogueOutCount: 10,
	}
}

func eighteen8Gen2() *Model {
	return smallerGen2("Scarlett 18i8 Gen 2", PID18i8Gen2, 8, 6, 8)
}

func sixI6Gen2() *Model {
	return smallerGen2("Scarlett 6i6 Gen 2", PID6i6Gen2, 4, 6, 4)
}

func smallerGen2(name string, pid uint16, analogueIn, analogueOut, mixSize int) *Model {
	in := map[Band][]port.TypeCount{}
	out := map[Band][]port.TypeCount{}
	for _, b := range []Band{BandDefault, Band44_48, Band88_96, Band176_192} {
		in[b] = layout(
			port.TypeCount{Type: port.Analogue, Count: analogueIn},
			port.TypeCount{Type: port.SPDIF, Count: 2},
			port.TypeCount{Type: port.Mix, Count: mixSize},
		)
		out[b] = layout(
			port.TypeCount{Type: port.Analogue, Count: analogueOut},
			port.TypeCount{Type: port.SPDIF, Count: 2},
			port.TypeCount{Type: port.PCM, Count: analogueIn + 2},
		)
	}
	total := analogueOut + 2 + (analogueIn + 2)
	band0 := []MuxRun{
		{Type: port.Analogue, Start: 0, Count: analogueOut},
		{Type: port.SPDIF, Start: 0, Count: 2},
		{Type: port.PCM, Start: 0, Count: analogueIn + 2},
	}
	return &Model{
		Name:             name,
		ProductID:        pid,
		Gen:              2,
		PortCounts:       map[port.Direction]map[Band][]port.TypeCount{port.In: in, port.Out: out},
		MuxAssignment:    [3][]MuxRun{band0, band0, band0},
		MuxSize:          [3]int{total, total, total},
		ConfigItems:      gen2ConfigItems(analogueOut),
		HasSoftwareConfig: false,
		PreampMask:       PreampPerChannelByte,
		NumMixInputs:     mixSize,
		NumMixOutputs:    mixSize,
		AnalogueOutCount: analogueOut,
	}
}

// gen2ConfigItems gives the config-item layout shared by the Gen 2 family;
// the volume and mute offsets match spec.md's S2/S3 scenarios exactly.
func gen2ConfigItems(analogueOutCount int) map[string]ConfigItem {
	return map[string]ConfigItem{
		ItemVolume:        {Offset: 0x34, Size: 2, Count: analogueOutCount, Activate: 1},
		ItemMute:          {Offset: 0x5C, Size: 1, Count: analogueOutCount, Activate: 1},
		ItemSWHWSwitch:    {Offset: 0x66, Size: 1, Count: analogueOutCount, Activate: 1},
		ItemPad:           {Offset: 0x70, Size: 1, Count: 8, Activate: 2},
		Item48V:           {Offset: 0x7A, Size: 1, Count: 2, Activate: 3},
		ItemVolumeStatus:  {Offset: 0x10, Size: 136, Count: 1, Activate: 0},
		ItemSpeakerEnable: {Offset: 0x9A, Size: 1, Count: 1, Activate: 4},
		ItemSpeakerMainAlt: {Offset: 0x9B, Size: 1, Count: 1, Activate: 4},
	}
}

// eighteen20Gen3 models the Scarlett 18i20 Gen 3: software-config blob,
// talkback bus, per-channel preamp bytes (spec.md §3, §6).
func eighteen20Gen3() *Model {
	in := map[Band][]port.TypeCount{}
	out := map[Band][]port.TypeCount{}
	for _, b := range []Band{BandDefault, Band44_48, Band88_96, Band176_192} {
		in[b] = layout(
			port.TypeCount{Type: port.Analogue, Count: 8},
			port.TypeCount{Type: port.SPDIF, Count: 2},
			port.TypeCount{Type: port.ADAT, Count: 8},
			port.TypeCount{Type: port.Mix, Count: 20},
		)
		out[b] = layout(
			port.TypeCount{Type: port.Analogue, Count: 10},
			port.TypeCount{Type: port.SPDIF, Count: 2},
			port.TypeCount{Type: port.ADAT, Count: 8},
			port.TypeCount{Type: port.PCM, Count: 20},
		)
	}
	band0 := []MuxRun{
		{Type: port.Analogue, Start: 0, Count: 10},
		{Type: port.SPDIF, Start: 0, Count: 2},
		{Type: port.ADAT, Start: 0, Count: 8},
		{Type: port.PCM, Start: 0, Count: 20},
	}
	total := 40
	return &Model{
		Name:              "Scarlett 18i20 Gen 3",
		ProductID:         PID18i20Gen3,
		Gen:               3,
		PortCounts:        map[port.Direction]map[Band][]port.TypeCount{port.In: in, port.Out: out},
		MuxAssignment:     [3][]MuxRun{band0, band0, band0},
		MuxSize:           [3]int{total, total, total},
		ConfigItems:       gen3ConfigItems(10, 8),
		HasSoftwareConfig: true,
		PreampMask:        PreampPerChannelByte,
		TalkbackBus:       true,
		DirectMonitor:     DirectMonitorEnum,
		Retain48V:         true,
		NumMixInputs:      20,
		NumMixOutputs:     20,
		AnalogueOutCount:  10,
	}
}

// eighteen8Gen3 applies the 18i8 Gen 3 output-name remap spec.md §4.1 calls
// out explicitly.
func eighteen8Gen3() *Model {
	m := gen3Small("Scarlett 18i8 Gen 3", PID18i8Gen3, 8, 6, 18)
	m.OutputNameRemap = []int{0, 1, 4, 5, 6, 7, 2, 3}
	return m
}

func eightI6Gen3() *Model  { return gen3Small("Scarlett 8i6 Gen 3", PID8i6Gen3, 6, 8, 10) }
func fourI4Gen3() *Model   { return gen3Small("Scarlett 4i4 Gen 3", PID4i4Gen3, 4, 4, 6) }
func twoI2Gen3() *Model    { return gen3Small("Scarlett 2i2 Gen 3", PID2i2Gen3, 2, 2, 4) }

// soloGen3 has no mux/mixer at all: a fixed analogue path (spec.md §4.1
// Non-goals scope such devices to BadArgument/NotSupported on routing/mix
// controls).
func soloGen3() *Model {
	in := map[Band][]port.TypeCount{}
	out := map[Band][]port.TypeCount{}
	for _, b := range []Band{BandDefault, Band44_48, Band88_96, Band176_192} {
		in[b] = layout(port.TypeCount{Type: port.Analogue, Count: 2})
		out[b] = layout(port.TypeCount{Type: port.Analogue, Count: 2})
	}
	return &Model{
		Name:              "Scarlett Solo Gen 3",
		ProductID:         PIDSoloGen3,
		Gen:               3,
		PortCounts:        map[port.Direction]map[Band][]port.TypeCount{port.In: in, port.Out: out},
		ConfigItems:       gen3ConfigItems(2, 1),
		HasSoftwareConfig: false,
		PreampMask:        PreampBitmask,
		Retain48V:         true,
		AnalogueOutCount:  2,
	}
}

func gen3Small(name string, pid uint16, analogueIn, analogueOut, mixSize int) *Model {
	in := map[Band][]port.TypeCount{}
	out := map[Band][]port.TypeCount{}
	for _, b := range []Band{BandDefault, Band44_48, Band88_96, Band176_192} {
		in[b] = layout(
			port.TypeCount{Type: port.Analogue, Count: analogueIn},
			port.TypeCount{Type: port.Mix, Count: mixSize},
		)
		out[b] = layout(
			port.TypeCount{Type: port.Analogue, Count: analogueOut},
			port.TypeCount{Type: port.PCM, Count: analogueIn},
		)
	}
	total := analogueOut + analogueIn
	band0 := []MuxRun{
		{Type: port.Analogue, Start: 0, Count: analogueOut},
		{Type: port.PCM, Start: 0, Count: analogueIn},
	}
	return &Model{
		Name:              name,
		ProductID:         pid,
		Gen:               3,
		PortCounts:        map[port.Direction]map[Band][]port.TypeCount{port.In: in, port.Out: out},
		MuxAssignment:     [3][]MuxRun{band0, band0, band0},
		MuxSize:           [3]int{total, total, total},
		ConfigItems:       gen3ConfigItems(analogueOut, analogueIn),
		HasSoftwareConfig: true,
		PreampMask:        PreampBitmask,
		TalkbackBus:       false,
		DirectMonitor:     DirectMonitorBool,
		Retain48V:         true,
		NumMixInputs:      mixSize,
		NumMixOutputs:     mixSize,
		AnalogueOutCount:  analogueOut,
	}
}

func gen3ConfigItems(analogueOutCount, analogueInCount int) map[string]ConfigItem {
	return map[string]ConfigItem{
		ItemVolume:         {Offset: 0x34, Size: 2, Count: analogueOutCount, Activate: 1},
		ItemMute:           {Offset: 0x5C, Size: 1, Count: analogueOutCount, Activate: 1},
		ItemSWHWSwitch:     {Offset: 0x66, Size: 1, Count: analogueOutCount, Activate: 1},
		ItemPad:            {Offset: 0x70, Size: 1, Count: analogueInCount, Activate: 2},
		ItemAir:            {Offset: 0x78, Size: 1, Count: analogueInCount, Activate: 2},
		ItemLevel:          {Offset: 0x7E, Size: 1, Count: analogueInCount, Activate: 2},
		Item48V:            {Offset: 0x84, Size: 1, Count: analogueInCount, Activate: 3},
		ItemRetain48V:      {Offset: 0x8A, Size: 1, Count: 1, Activate: 3},
		ItemMSDMode:        {Offset: 0x8C, Size: 1, Count: 1, Activate: 0},
		ItemSpeakerSwitch:  {Offset: 0x8E, Size: 1, Count: 1, Activate: 4},
		ItemDirectMonitor:  {Offset: 0x90, Size: 1, Count: 1, Activate: 5},
		ItemLineCtlBitmask: {Offset: 0x78, Size: 1, Count: 1, Activate: 2},
		ItemVolumeStatus:   {Offset: 0x10, Size: 136, Count: 1, Activate: 0},
		ItemSpeakerEnable:  {Offset: 0x92, Size: 1, Count: 1, Activate: 4},
		ItemSpeakerMainAlt: {Offset: 0x93, Size: 1, Count: 1, Activate: 4},
	}
}
