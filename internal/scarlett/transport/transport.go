// Package transport is the Transport Adapter (spec.md §4.3, C4): it locates
// the vendor control interface (class 0xFF) during USB descriptor walk,
// serialises request/response pairs over the vendor control endpoint behind
// a single critical section, and submits the asynchronous interrupt-pipe
// read loop for change notifications.
//
// Grounded on the teacher's github.com/google/gousb-based USB device access
// (internal/driver/device/usb_device.go): direct control-transfer and
// endpoint I/O instead of going through a kernel driver.
package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/errs"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/protocol"
)

const (
	// SCARLETT_CMD_REQ / SCARLETT_CMD_RESP (spec.md §6).
	bRequestOut uint8 = 2
	bRequestIn  uint8 = 3

	vendorInterfaceClass = 0xFF

	controlTimeout   = 2 * time.Second
	interruptTimeout = 1 * time.Second
)

// Notifier receives an 8-byte interrupt-in payload as it arrives (spec.md
// §4.8, §6). It must not block for long: it runs on the transport's
// notification goroutine, which spec.md §5 requires never acquire
// usb_mutex or data_mutex itself.
type Notifier func(payload [8]byte)

// Transport serialises the vendor control endpoint and owns the
// interrupt-in read loop. It implements no retries (spec.md §4.12 failure
// semantics: "no retries at this layer").
type Transport struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface

	intfNumber int
	epInNumber int

	epIntIn *gousb.InEndpoint

	usbMu sync.Mutex // serialises one command's tx+rx pair (spec.md §5)
	seq   *protocol.SeqCounter

	notify Notifier

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// Open locates the vendor interface on the device with the given USB IDs
// and returns a ready Transport. The caller must call Close.
func Open(vendorID, productID uint16) (*Transport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vendorID), gousb.ID(productID))
	if err != nil {
		ctx.Close()
		return nil, errs.Wrap(errs.IoTransport, fmt.Errorf("open device %04x:%04x: %w", vendorID, productID, err))
	}
	if dev == nil {
		ctx.Close()
		return nil, errs.E(errs.IoTransport, "device %04x:%04x not found", vendorID, productID)
	}

	intfNum, epInNum, err := findVendorInterface(dev)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}

	cfgNum, _ := dev.ActiveConfigNum()
	if cfgNum == 0 {
		cfgNum = 1
	}
	cfg, err := dev.Config(cfgNum)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, errs.Wrap(errs.IoTransport, fmt.Errorf("set config: %w", err))
	}

	intf, err := cfg.Interface(intfNum, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, errs.Wrap(errs.IoTransport, fmt.Errorf("claim vendor interface %d: %w", intfNum, err))
	}

	var epIntIn *gousb.InEndpoint
	if epInNum != 0 {
		epIntIn, err = intf.InEndpoint(epInNum)
		if err != nil {
			intf.Close()
			cfg.Close()
			dev.Close()
			ctx.Close()
			return nil, errs.Wrap(errs.IoTransport, fmt.Errorf("open interrupt-in endpoint: %w", err))
		}
	}

	t := &Transport{
		ctx:        ctx,
		device:     dev,
		config:     cfg,
		intf:       intf,
		intfNumber: intfNum,
		epInNumber: epInNum,
		epIntIn:    epIntIn,
		seq:        protocol.NewSeqCounter(),
	}
	return t, nil
}

// findVendorInterface walks the active config's descriptor looking for the
// interface-class 0xFF vendor interface (spec.md §4.3, §6) and returns its
// interface number and interrupt-in endpoint number (0 when it has none);
// the endpoint's max packet size is not recorded.
func findVendorInterface(dev *gousb.Device) (intfNum, epInNum int, err error) {
	cfgNum, cfgErr := dev.ActiveConfigNum()
	if cfgErr != nil || cfgNum == 0 {
		cfgNum = 1
	}
	var cfgDesc gousb.ConfigDesc
	found := false
	for _, cd := range dev.Desc.Configs {
		if cd.Number == cfgNum {
			cfgDesc = cd
			found = true
			break
		}
	}
	if !found {
		for _, cd := range dev.Desc.Configs {
			cfgDesc = cd
			found = true
			break
		}
	}
	if !found {
		return 0, 0, errs.E(errs.IoTransport, "device has no USB configurations")
	}

	for num, intfDesc := range cfgDesc.Interfaces {
		for _, alt := range intfDesc.AltSettings {
			if uint8(alt.Class) != vendorInterfaceClass {
				continue
			}
			in := 0
			for _, ep := range alt.Endpoints {
				if ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeInterrupt {
					in = int(ep.Number)
				}
			}
			return num, in, nil
		}
	}
	return 0, 0, errs.E(errs.IoTransport, "no vendor (class 0xFF) interface found")
}

// Close releases all USB resources and stops the interrupt-read loop if
// running.
func (t *Transport) Close() error {
	t.StopNotifications()
	if t.intf != nil {
		t.intf.Close()
	}
	if t.config != nil {
		t.config.Close()
	}
	if t.device != nil {
		t.device.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
	return nil
}

// ResetSeq reseeds the sequence counter; used by the init sequence's
// documented "seq := 1" re-seedings (spec.md §4.12).
func (t *Transport) ResetSeq(v uint16) {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()
	t.seq.Reset(v)
}

// Do issues one command: builds the request envelope with the next sequence
// number, performs the outbound control transfer, performs the inbound
// control transfer expecting wantRespSize data bytes, and validates the
// response envelope. The whole tx+rx pair is one critical section on
// usb_mutex (spec.md §5); it never calls back into anything that would
// re-enter this lock.
func (t *Transport) Do(cmd protocol.Command, data []byte, wantRespSize int) ([]byte, error) {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	seq := t.seq.Next()
	req := protocol.BuildRequest(cmd, seq, data)
	reqBytes := req.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	if err := t.controlOut(ctx, reqBytes); err != nil {
		return nil, errs.Wrap(errs.IoTransport, err)
	}

	respBytes, err := t.controlIn(ctx, protocol.EnvelopeSize+wantRespSize)
	if err != nil {
		return nil, errs.Wrap(errs.IoTransport, err)
	}

	resp, err := protocol.Decode(respBytes)
	if err != nil {
		return nil, err
	}
	if err := protocol.ValidateResponse(req, resp, wantRespSize); err != nil {
		log.Printf("scarlett: %v", err)
		return nil, err
	}
	return resp.Data, nil
}

// DoSeqExact issues a command using an explicit sequence number instead of
// the counter, for the init sequence's documented seq re-seedings (spec.md
// §4.12).
func (t *Transport) DoSeqExact(cmd protocol.Command, seq uint16, data []byte, wantRespSize int) ([]byte, error) {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	req := protocol.BuildRequest(cmd, seq, data)
	reqBytes := req.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	if err := t.controlOut(ctx, reqBytes); err != nil {
		return nil, errs.Wrap(errs.IoTransport, err)
	}
	respBytes, err := t.controlIn(ctx, protocol.EnvelopeSize+wantRespSize)
	if err != nil {
		return nil, errs.Wrap(errs.IoTransport, err)
	}
	resp, err := protocol.Decode(respBytes)
	if err != nil {
		return nil, err
	}
	if err := protocol.ValidateResponse(req, resp, wantRespSize); err != nil {
		log.Printf("scarlett: %v", err)
		return nil, err
	}
	return resp.Data, nil
}

func (t *Transport) controlOut(ctx context.Context, payload []byte) error {
	const (
		controlOut   = 0x00
		controlClass = 0x20
		controlIntf  = 0x01
	)
	_, err := t.device.Control(controlOut|controlClass|controlIntf, bRequestOut, 0, uint16(t.intfNumber), payload)
	if err != nil {
		return fmt.Errorf("vendor control OUT: %w", err)
	}
	return nil
}

func (t *Transport) controlIn(ctx context.Context, length int) ([]byte, error) {
	const (
		controlIn    = 0x80
		controlClass = 0x20
		controlIntf  = 0x01
	)
	buf := make([]byte, length)
	n, err := t.device.Control(controlIn|controlClass|controlIntf, bRequestIn, 0, uint16(t.intfNumber), buf)
	if err != nil {
		return nil, fmt.Errorf("vendor control IN: %w", err)
	}
	if n != length {
		return nil, fmt.Errorf("short response: want %d got %d", length, n)
	}
	return buf, nil
}

// StartNotifications submits the asynchronous interrupt-in read loop. Each
// 8-byte payload that arrives is passed to notify (spec.md §4.8); the loop
// re-submits on every status except cancellation/shutdown (spec.md §4.8,
// §5 cancellation).
func (t *Transport) StartNotifications(notify Notifier) {
	if t.epIntIn == nil || notify == nil {
		return
	}
	t.notify = notify
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelLoop = cancel
	t.loopDone = make(chan struct{})
	go t.notificationLoop(ctx)
}

// StopNotifications cancels the interrupt-read loop and waits for it to
// exit (spec.md §5 cancellation: "the interrupt URB is cancelled on
// detach").
func (t *Transport) StopNotifications() {
	if t.cancelLoop == nil {
		return
	}
	t.cancelLoop()
	<-t.loopDone
	t.cancelLoop = nil
}

func (t *Transport) notificationLoop(ctx context.Context) {
	defer close(t.loopDone)
	buf := make([]byte, 8)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, interruptTimeout)
		n, err := t.epIntIn.ReadContext(readCtx, buf)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return // cancelled/shutdown: do not resubmit
			}
			// Any other status (including a read timeout): requeue.
			continue
		}
		if n < 8 {
			continue
		}
		var payload [8]byte
		copy(payload[:], buf[:8])
		t.notify(payload)
	}
}
