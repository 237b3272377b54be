package routing

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/port"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/protocol"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/registry"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/state"
)

// fakeDoer records the last Set request and answers Get with a canned
// response.
type fakeDoer struct {
	lastCmd  protocol.Command
	lastData []byte
	getResp  []byte
}

func (f *fakeDoer) Do(cmd protocol.Command, data []byte, wantRespSize int) ([]byte, error) {
	f.lastCmd = cmd
	f.lastData = append([]byte(nil), data...)
	if cmd == protocol.CmdGetMux {
		return f.getResp, nil
	}
	return nil, nil
}

// twoChannelModel is a minimal model with a single analogue-in/out pair on
// the default mux band, just enough to exercise the engine's layout logic.
func twoChannelModel() *registry.Model {
	layout := []port.TypeCount{{Type: port.Analogue, Count: 2}}
	return &registry.Model{
		PortCounts: map[port.Direction]map[registry.Band][]port.TypeCount{
			port.In:  {registry.BandDefault: layout},
			port.Out: {registry.BandDefault: layout},
		},
		MuxAssignment: [3][]registry.MuxRun{
			{{Type: port.Analogue, Start: 0, Count: 2}},
		},
		MuxSize: [3]int{2, 0, 0},
	}
}

func newEngine(t *testing.T) (*Engine, *fakeDoer) {
	t.Helper()
	model := twoChannelModel()
	store := state.New(2, 2, 1, 1)
	doer := &fakeDoer{}
	return &Engine{Model: model, Store: store, T: doer}, doer
}

func TestSetRouteUpdatesMirror(t *testing.T) {
	e, _ := newEngine(t)
	e.SetRoute(0, 1)
	e.Store.Mu.Lock()
	src, ok := e.Store.MuxSrc(0)
	e.Store.Mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 1, src)
}

func TestSetRouteOffClearsMirror(t *testing.T) {
	e, _ := newEngine(t)
	e.SetRoute(0, 1)
	e.SetRoute(0, -1)
	e.Store.Mu.Lock()
	_, ok := e.Store.MuxSrc(0)
	e.Store.Mu.Unlock()
	assert.False(t, ok, "expected route 0 to read back unrouted after Off")
}

func TestSetEmitsWireWordsForRoutedDestinations(t *testing.T) {
	e, doer := newEngine(t)
	e.SetRoute(0, 1) // dst Analogue 0 <- src Analogue 1
	e.SetRoute(1, -1)

	require.NoError(t, e.Set())
	require.Equal(t, protocol.CmdSetMux, doer.lastCmd)
	require.Len(t, doer.lastData, 8)

	word0 := binary.LittleEndian.Uint32(doer.lastData[0:4])
	wantDst0 := uint32(port.WireIDOf(port.Analogue, 0))
	wantSrc0 := uint32(port.WireIDOf(port.Analogue, 1))
	assert.Equal(t, wantDst0|(wantSrc0<<12), word0)

	word1 := binary.LittleEndian.Uint32(doer.lastData[4:8])
	wantDst1 := uint32(port.WireIDOf(port.Analogue, 1))
	assert.Equal(t, wantDst1, word1, "unrouted destination must emit its wire id with a zero source")
}

func TestGetPopulatesMirrorFromWireWords(t *testing.T) {
	e, doer := newEngine(t)

	dstWire := port.WireIDOf(port.Analogue, 0)
	srcWire := port.WireIDOf(port.Analogue, 1)
	word := uint32(dstWire) | (uint32(srcWire) << 12)

	resp := make([]byte, 8)
	binary.LittleEndian.PutUint32(resp[0:4], word)
	binary.LittleEndian.PutUint32(resp[4:8], 0)
	doer.getResp = resp

	require.NoError(t, e.Get(registry.MuxBandLow))

	e.Store.Mu.Lock()
	src, ok := e.Store.MuxSrc(0)
	e.Store.Mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 1, src)
}

func TestNormalizeStereoPairLinksOddToEvenPlusOne(t *testing.T) {
	outMux := []int{4, 99}
	NormalizeStereoPair(outMux, 0b1, 0)
	assert.Equal(t, 5, outMux[1])
}

func TestNormalizeStereoPairNoopWhenUnlinked(t *testing.T) {
	outMux := []int{4, 99}
	NormalizeStereoPair(outMux, 0b0, 0)
	assert.Equal(t, 99, outMux[1])
}
