// Package device is the device orchestrator (spec.md §4.12): it resolves
// an attached USB device against the registry, performs the documented
// cargo-cult initialization handshake, builds every engine (routing,
// mixer, software-config, control surface) bound to one state mirror and
// transport, and wires the interrupt-notification dispatcher to them.
//
// Grounded on the teacher's device-lifecycle shape
// (internal/driver/device/controller.go, pre-transformation): an Open
// entry point that resolves the device before touching hardware, a stats
// block guarded by its own mutex, and a single Close that tears everything
// down in reverse order.
package device

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/commit"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/control"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/errs"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/mixer"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/notify"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/protocol"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/registry"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/routing"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/state"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/swconfig"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/transport"
)

// Stats counts command traffic over the vendor control endpoint.
type Stats struct {
	mu             sync.RWMutex
	totalCommands  uint64
	totalBytes     uint64
	totalLatencyNs uint64
	peakLatencyNs  uint64
	errorCount     uint64
}

// StatsSnapshot is a copy of Stats without its mutex.
type StatsSnapshot struct {
	TotalCommands  uint64
	TotalBytes     uint64
	TotalLatencyNs uint64
	PeakLatencyNs  uint64
	ErrorCount     uint64
}

func (s *Stats) record(bytes int, latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalCommands++
	s.totalBytes += uint64(bytes)
	ns := uint64(latency.Nanoseconds())
	s.totalLatencyNs += ns
	if ns > s.peakLatencyNs {
		s.peakLatencyNs = ns
	}
	if err != nil {
		s.errorCount++
	}
}

// Snapshot returns a copy safe to read without the Stats mutex.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsSnapshot{s.totalCommands, s.totalBytes, s.totalLatencyNs, s.peakLatencyNs, s.errorCount}
}

// statsDoer wraps a transport.Transport so every command issued through it
// is counted, without making every engine package depend on Stats.
type statsDoer struct {
	t     *transport.Transport
	stats *Stats
}

func (d *statsDoer) Do(cmd protocol.Command, data []byte, wantRespSize int) ([]byte, error) {
	start := time.Now()
	resp, err := d.t.Do(cmd, data, wantRespSize)
	d.stats.record(len(data)+wantRespSize, time.Since(start), err)
	return resp, err
}

// Info is a read-only snapshot of the attached device's identity and
// current sync state.
type Info struct {
	Name       string
	VendorID   uint16
	ProductID  uint16
	Gen        int
	SyncLocked bool
}

// Device is one attached Scarlett interface with every engine wired
// together.
type Device struct {
	Model *registry.Model
	Store *state.Store

	T        *transport.Transport
	Routing  *routing.Engine // nil for models with no mux table
	SWConfig *swconfig.Manager // nil for models with no software config
	Commit   *commit.Committer
	Control  *control.Surface

	doer  *statsDoer
	stats *Stats

	notifyDispatcher notify.Dispatcher

	mu       sync.RWMutex
	attached bool
}

// Open attaches to a USB device matching vendorID/productID and returns a
// fully wired Device (spec.md §4.12). The model is resolved from the
// registry before any USB I/O happens: an unsupported product ID is
// rejected immediately.
func Open(vendorID, productID uint16) (*Device, error) {
	model, ok := registry.Lookup(vendorID, productID)
	if !ok {
		return nil, errs.E(errs.NotSupported, "unsupported device %04x:%04x", vendorID, productID)
	}

	t, err := transport.Open(vendorID, productID)
	if err != nil {
		return nil, err
	}

	d := &Device{
		Model: model,
		T:     t,
		stats: &Stats{},
	}
	d.doer = &statsDoer{t: t, stats: d.stats}

	if err := d.initHandshake(); err != nil {
		t.Close()
		return nil, err
	}

	d.Store = state.New(model.AnalogueOutCount, preampCount(model), model.NumMixInputs, model.NumMixOutputs)
	d.notifyDispatcher = notify.Dispatcher{Store: d.Store}

	if model.MuxSize[registry.MuxBandLow] > 0 {
		d.Routing = &routing.Engine{Model: model, Store: d.Store, T: d.doer}
	}

	if model.HasSoftwareConfig {
		d.SWConfig = swconfig.NewManager(d.doer)
		if err := d.SWConfig.Attach(); err != nil {
			t.Close()
			return nil, err
		}
	}

	d.Commit = commit.New(d.save)
	d.Control = control.New(model, d.Store, d.doer, d.Routing, d.SWConfig, d.Commit)

	if err := d.refreshAll(); err != nil {
		log.Printf("scarlett: initial refresh failed: %v", err)
	}

	t.StartNotifications(d.onNotify)

	d.mu.Lock()
	d.attached = true
	d.mu.Unlock()
	return d, nil
}

// preampCount derives the number of preamp-controlled inputs from whichever
// per-input config item the model declares; falling back to the analogue
// output count only protects against a model with neither (none do today).
func preampCount(model *registry.Model) int {
	if item, ok := model.ConfigItems[registry.ItemPad]; ok {
		return item.Count
	}
	if item, ok := model.ConfigItems[registry.Item48V]; ok {
		return item.Count
	}
	return model.AnalogueOutCount
}

// initHandshake performs the documented cargo-cult initialization
// handshake (spec.md §4.12): reseed the sequence counter to 1, issue
// INIT_1, reseed again, then issue INIT_2 and require an 84-byte response.
func (d *Device) initHandshake() error {
	d.T.ResetSeq(1)
	if _, err := d.T.DoSeqExact(protocol.CmdInit1, 1, nil, 0); err != nil {
		return fmt.Errorf("INIT_1: %w", err)
	}
	d.T.ResetSeq(1)
	resp, err := d.T.DoSeqExact(protocol.CmdInit2, 1, nil, 84)
	if err != nil {
		return fmt.Errorf("INIT_2: %w", err)
	}
	if len(resp) != 84 {
		return errs.E(errs.ProtocolMismatch, "INIT_2 response size %d, want 84", len(resp))
	}
	return nil
}

// refreshAll performs the device's first full read-back after attach
// (spec.md §4.12): volumes, preamp switches, speaker state, sync lock,
// every declared mux band, and every mixer bus.
func (d *Device) refreshAll() error {
	if err := d.Control.RefreshVolumes(); err != nil {
		return err
	}
	if err := d.Control.RefreshLineControls(); err != nil {
		return err
	}
	if err := d.Control.RefreshSpeakerState(); err != nil {
		return err
	}
	if err := d.Control.RefreshSync(); err != nil {
		return err
	}

	if d.Routing != nil {
		for band := registry.MuxBandLow; band <= registry.MuxBandHigh; band++ {
			if d.Model.MuxSize[band] == 0 {
				continue
			}
			if err := d.Routing.Get(band); err != nil {
				return err
			}
		}
	}

	if d.Model.NumMixOutputs > 0 {
		for mixOut := 0; mixOut < d.Model.NumMixOutputs; mixOut++ {
			gains, err := mixer.GetMix(d.doer, uint16(mixOut), d.Model.NumMixInputs)
			if err != nil {
				return err
			}
			d.Store.Mu.Lock()
			copy(d.Store.MixValues[mixOut], gains)
			d.Store.Mu.Unlock()
		}
	}
	return nil
}

// onNotify decodes an interrupt-in payload and updates staleness flags; it
// runs on the transport's notification goroutine and must never block or
// take data_mutex/usb_mutex itself (spec.md §5).
func (d *Device) onNotify(payload [8]byte) {
	d.notifyDispatcher.Dispatch(payload)
}

// save issues CONFIG_SAVE; bound as the deferred commit's save function
// (spec.md §4.9).
func (d *Device) save() error {
	_, err := d.doer.Do(protocol.CmdConfigSave, nil, 0)
	return err
}

// RefreshStale re-runs whatever bulk refresh procedures the notification
// loop has flagged stale; a poller calls this periodically.
func (d *Device) RefreshStale() error {
	return d.Control.RefreshStale()
}

// Info returns the attached device's identity and current sync state.
func (d *Device) Info() Info {
	d.Store.Mu.Lock()
	defer d.Store.Mu.Unlock()
	return Info{
		Name:       d.Model.Name,
		VendorID:   d.Model.VendorID,
		ProductID:  d.Model.ProductID,
		Gen:        d.Model.Gen,
		SyncLocked: d.Store.SyncLocked,
	}
}

// Stats returns a snapshot of command traffic counters.
func (d *Device) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}

// Close cancels the interrupt-read loop, flushes any pending deferred
// commit synchronously (spec.md §5: "on device suspend ... save
// synchronously before suspending"), and releases the USB device.
func (d *Device) Close() error {
	d.mu.Lock()
	d.attached = false
	d.mu.Unlock()

	if d.Commit != nil {
		if err := d.Commit.FlushSync(); err != nil {
			log.Printf("scarlett: flush on close failed: %v", err)
		}
	}
	return d.T.Close()
}

// Attached reports whether the device is attached: true after Open, false
// once Close has been called.
func (d *Device) Attached() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.attached
}
