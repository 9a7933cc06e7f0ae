package knx

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// HID class request used when an interface has no interrupt OUT endpoint.
const (
	hidRequestTypeOut = 0x21
	hidSetReport      = 0x09
	hidReportOutput   = 0x0200
)

// Link moves KNX USB transfer frames to and from an interface.
type Link interface {
	Send(ctx context.Context, f TransferFrame) error
	Receive(ctx context.Context) (TransferFrame, error)
	Close() error
}

// USBTransport is a Link over the HID interface of a KNX USB device.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	intfNum int
	vid     uint16
	pid     uint16
}

// NewUSBTransport opens the first device matching vid:pid and claims its HID
// interface.
func NewUSBTransport(vid, pid uint16) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("knx: open USB %04X:%04X: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: no USB device %04X:%04X", ErrUnreachable, vid, pid)
	}

	// The kernel HID driver owns the interface on Linux; not every platform
	// supports detaching, so a failure here is not fatal.
	_ = dev.SetAutoDetach(true)

	t := &USBTransport{ctx: ctx, dev: dev, vid: vid, pid: pid}
	if err := t.claimInterface(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *USBTransport) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("knx: get USB config: %w", err)
	}
	t.cfg = cfg

	t.intfNum = -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassHID {
			t.intfNum = intf.Number
			break
		}
	}
	if t.intfNum == -1 {
		return fmt.Errorf("knx: %04X:%04X has no HID interface", t.vid, t.pid)
	}

	intf, err := cfg.Interface(t.intfNum, 0)
	if err != nil {
		return fmt.Errorf("knx: claim interface %d: %w", t.intfNum, err)
	}
	t.intf = intf

	return t.findEndpoints()
}

func (t *USBTransport) findEndpoints() error {
	var inNum, outNum int
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeInterrupt {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && inNum == 0 {
			inNum = ep.Number
		}
		if ep.Direction == gousb.EndpointDirectionOut && outNum == 0 {
			outNum = ep.Number
		}
	}

	if inNum == 0 {
		return fmt.Errorf("knx: interrupt IN endpoint not found")
	}
	epIn, err := t.intf.InEndpoint(inNum)
	if err != nil {
		return fmt.Errorf("knx: open IN endpoint: %w", err)
	}
	t.epIn = epIn

	// Without an OUT endpoint reports go through SET_REPORT.
	if outNum != 0 {
		epOut, err := t.intf.OutEndpoint(outNum)
		if err != nil {
			return fmt.Errorf("knx: open OUT endpoint: %w", err)
		}
		t.epOut = epOut
	}
	return nil
}

// Send implements Link.
func (t *USBTransport) Send(ctx context.Context, f TransferFrame) error {
	report, err := EncodeReport(f)
	if err != nil {
		return err
	}

	if t.epOut != nil {
		if _, err := t.epOut.WriteContext(ctx, report); err != nil {
			return fmt.Errorf("knx: USB write: %w", err)
		}
		return nil
	}

	if _, err := t.dev.Control(hidRequestTypeOut, hidSetReport, hidReportOutput|ReportID, uint16(t.intfNum), report); err != nil {
		return fmt.Errorf("knx: USB set report: %w", err)
	}
	return nil
}

// Receive implements Link. It blocks until a report arrives or ctx is done.
func (t *USBTransport) Receive(ctx context.Context) (TransferFrame, error) {
	buf := make([]byte, ReportSize)
	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return TransferFrame{}, ctx.Err()
		}
		return TransferFrame{}, fmt.Errorf("knx: USB read: %w", err)
	}
	return DecodeReport(buf[:n])
}

// Close releases USB resources.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
