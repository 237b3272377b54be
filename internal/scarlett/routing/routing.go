// Package routing is the Routing Engine (spec.md §4.5, C6): mux read/write
// per sample-rate band, Gen 3 mute-aware emission, and Gen 3 stereo-pair
// consistency.
package routing

import (
	"encoding/binary"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/port"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/protocol"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/registry"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/state"
)

// Doer is the subset of transport.Transport the engine needs; tests supply
// a fake.
type Doer interface {
	Do(cmd protocol.Command, data []byte, wantRespSize int) ([]byte, error)
}

// Engine ties the port layout and mux-assignment tables of one attached
// model to the state mirror and transport.
type Engine struct {
	Model *registry.Model
	Store *state.Store
	T     Doer
}

func muxBandToPortBand(b registry.MuxBand) registry.Band {
	switch b {
	case registry.MuxBandMid:
		return registry.Band88_96
	case registry.MuxBandHigh:
		return registry.Band176_192
	default:
		return registry.BandDefault
	}
}

func (e *Engine) outLayout(b registry.MuxBand) []port.TypeCount {
	return e.Model.PortCounts[port.Out][muxBandToPortBand(b)]
}

func (e *Engine) inLayout(b registry.MuxBand) []port.TypeCount {
	return e.Model.PortCounts[port.In][muxBandToPortBand(b)]
}

// BuildSetPayload serialises the current mirror's mux table for band per
// the model's mux_assignment layout (spec.md §4.5 set): ordered runs emit
// one 32-bit slot per destination, "none"-typed runs emit a zero slot,
// destinations with no declared source emit their destination wire ID with
// a zero source, and the result is zero-padded to mux_size[band]. Gen 3
// mute-aware routing (spec.md §4.5) forces a zero source when the
// destination analogue output is in OutputMutes.
//
// Caller must hold Store.Mu.
func (e *Engine) BuildSetPayload(band registry.MuxBand) []byte {
	outLayout := e.outLayout(band)
	inLayout := e.inLayout(band)
	total := e.Model.MuxSize[band]
	payload := make([]byte, total*4)

	slot := 0
	for _, run := range e.Model.MuxAssignment[band] {
		for i := 0; i < run.Count; i++ {
			dstIndex := run.Start + i
			var word uint32
			if run.Type != port.None {
				dstWireID := port.WireIDOf(run.Type, dstIndex)
				dstFlat := port.Flatten(outLayout, run.Type, dstIndex)

				srcWireID := uint32(0)
				if e.Model.Gen == 3 && run.Type == port.Analogue && dstIndex < len(e.Store.OutputMutes) && e.Store.OutputMutes[dstIndex] {
					srcWireID = 0
				} else if srcFlat, ok := e.Store.MuxSrc(dstFlat); ok {
					if srcType, srcIndex, err := port.TypeAndIndex(inLayout, srcFlat); err == nil {
						srcWireID = uint32(port.WireIDOf(srcType, srcIndex))
					}
				}
				word = (srcWireID << 12) | uint32(dstWireID)
			}
			if slot < total {
				binary.LittleEndian.PutUint32(payload[slot*4:slot*4+4], word)
			}
			slot++
		}
	}
	// Remaining slots (slot..total) stay zero: already zero-initialised.
	return payload
}

// Set writes the mirror's current mux table to the device for every band
// the model declares a mux layout for (spec.md §4.5).
func (e *Engine) Set() error {
	e.Store.Mu.Lock()
	defer e.Store.Mu.Unlock()

	for band := registry.MuxBandLow; band <= registry.MuxBandHigh; band++ {
		if e.Model.MuxSize[band] == 0 {
			continue
		}
		payload := e.BuildSetPayload(band)
		if _, err := e.T.Do(protocol.CmdSetMux, payload, 0); err != nil {
			return err
		}
	}
	return nil
}

// Get reads back the device's mux table for band and updates the mirror
// (spec.md §4.5 get): unknown/undecodable slots are silently skipped.
func (e *Engine) Get(band registry.MuxBand) error {
	count := e.Model.MuxSize[band]
	req := make([]byte, 4)
	binary.LittleEndian.PutUint16(req[0:2], uint16(band))
	binary.LittleEndian.PutUint16(req[2:4], uint16(count))

	resp, err := e.T.Do(protocol.CmdGetMux, req, count*4)
	if err != nil {
		return err
	}

	outLayout := e.outLayout(band)
	inLayout := e.inLayout(band)

	e.Store.Mu.Lock()
	defer e.Store.Mu.Unlock()

	for i := 0; i < count; i++ {
		word := binary.LittleEndian.Uint32(resp[i*4 : i*4+4])
		dstWireID := uint16(word & 0xFFF)
		srcWireID := uint16((word >> 12) & 0xFFF)

		dstFlat, ok := port.IndexOf(outLayout, dstWireID)
		if !ok {
			continue
		}
		srcFlat, ok := port.IndexOf(inLayout, srcWireID)
		if !ok {
			continue
		}
		e.Store.Mux[dstFlat] = srcFlat
	}
	return nil
}

// SetRoute updates a single mux destination in the mirror (does not touch
// the device; callers commit via Set). srcFlat < 0 means "Off".
func (e *Engine) SetRoute(dstFlat, srcFlat int) {
	e.Store.Mu.Lock()
	defer e.Store.Mu.Unlock()
	if srcFlat < 0 {
		e.Store.Mux[dstFlat] = -1
		return
	}
	e.Store.Mux[dstFlat] = srcFlat
}

// NormalizeStereoPair enforces the Gen 3 software-config stereo-pair
// invariant (spec.md §4.5, §8 property 6): if bit evenIndex of stereoSW is
// set (meaning outputs evenIndex and evenIndex+1 are linked), it sets the
// odd channel's out_mux to the even channel's + 1. It is a no-op when that
// bit is clear or evenIndex+1 is out of range, and it never changes
// stereoSW itself.
func NormalizeStereoPair(outMux []int, stereoSW uint32, evenIndex int) {
	pairBit := uint32(1) << uint(evenIndex)
	if stereoSW&pairBit == 0 {
		return
	}
	if evenIndex+1 >= len(outMux) {
		return
	}
	outMux[evenIndex+1] = outMux[evenIndex] + 1
}
