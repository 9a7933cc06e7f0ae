package knx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultResponseTimeout bounds one request/response exchange with a device.
const DefaultResponseTimeout = 3 * time.Second

// LinkOpener opens the interface link when the bus connects.
type LinkOpener func() (Link, error)

// USBBus is a Bus over a KNX USB interface. Requests are serialized; the bus
// speaks connection-oriented transport layer to one device at a time.
type USBBus struct {
	Timeout time.Duration

	open LinkOpener

	mu   sync.Mutex
	link Link
}

// NewUSBBus constructs a bus whose link is opened on Connect.
func NewUSBBus(open LinkOpener) *USBBus {
	return &USBBus{Timeout: DefaultResponseTimeout, open: open}
}

// DialUSB opens a bus on the KNX USB interface vid:pid.
func DialUSB(vid, pid uint16) *USBBus {
	return NewUSBBus(func() (Link, error) {
		return NewUSBTransport(vid, pid)
	})
}

func (b *USBBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link != nil {
		return nil
	}

	link, err := b.open()
	if err != nil {
		return err
	}
	if err := link.Send(ctx, ActiveEMIFrame()); err != nil {
		link.Close()
		return fmt.Errorf("knx: select cEMI: %w", err)
	}
	b.link = link
	return nil
}

func (b *USBBus) Ping(ctx context.Context, addr IndividualAddress) (bool, error) {
	d := &usbDevice{bus: b, addr: addr}
	defer d.Close()

	_, err := d.request(ctx, APCIDeviceDescriptorRead, nil, APCIDeviceDescriptorResponse)
	if errors.Is(err, ErrNoResponse) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *USBBus) OpenDevice(ctx context.Context, addr IndividualAddress) (Device, error) {
	d := &usbDevice{bus: b, addr: addr}
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (b *USBBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link == nil {
		return nil
	}
	err := b.link.Close()
	b.link = nil
	return err
}

func (b *USBBus) send(ctx context.Context, dst IndividualAddress, tpdu []byte) error {
	if b.link == nil {
		return fmt.Errorf("knx: USB bus not connected")
	}
	return b.link.Send(ctx, TransferFrame{
		Protocol: ProtocolTunnel,
		EMI:      EMICommon,
		Body:     NewLDataReq(dst, tpdu).Encode(),
	})
}

// next returns the next TPDU sent by src, skipping unrelated traffic. A
// negative local confirmation means the request never reached the bus.
func (b *USBBus) next(ctx context.Context, src IndividualAddress) ([]byte, error) {
	for {
		f, err := b.link.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if f.Protocol != ProtocolTunnel {
			continue
		}
		frame, err := DecodeLData(f.Body)
		if err != nil {
			continue
		}
		if frame.Code == MsgLDataCon {
			if !frame.Confirmed() {
				return nil, ErrNoResponse
			}
			continue
		}
		if frame.Code == MsgLDataInd && frame.Source == src {
			return frame.TPDU, nil
		}
	}
}

// usbDevice is a transport layer connection to one device.
type usbDevice struct {
	bus  *USBBus
	addr IndividualAddress

	connected bool
	seqOut    uint8
}

func (d *usbDevice) Address() IndividualAddress { return d.addr }

func (d *usbDevice) connect(ctx context.Context) error {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return d.connectLocked(ctx)
}

func (d *usbDevice) connectLocked(ctx context.Context) error {
	if err := d.bus.send(ctx, d.addr, ControlTPDU(TPCIConnect)); err != nil {
		return err
	}
	d.connected = true
	d.seqOut = 0
	return nil
}

// request sends one numbered APDU and waits for both the transport ACK and
// the response service want. Any timeout or NAK drops the connection so the
// next request starts from a fresh transport state.
func (d *usbDevice) request(ctx context.Context, apci uint16, data []byte, want uint16) ([]byte, error) {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()

	if !d.connected {
		if err := d.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	timeout := d.bus.Timeout
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := d.exchange(rctx, apci, data, want)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrNoResponse
		}
		if errors.Is(err, ErrNoResponse) {
			d.dropLocked(ctx)
		}
		return nil, err
	}
	return resp, nil
}

func (d *usbDevice) exchange(ctx context.Context, apci uint16, data []byte, want uint16) ([]byte, error) {
	seq := d.seqOut
	if err := d.bus.send(ctx, d.addr, DataTPDU(seq, apci, data...)); err != nil {
		return nil, err
	}

	var (
		acked bool
		resp  []byte
	)
	for !acked || resp == nil {
		tpdu, err := d.bus.next(ctx, d.addr)
		if err != nil {
			return nil, err
		}

		kind, rseq := ParseTPDU(tpdu)
		switch kind {
		case TPDUAck:
			if rseq == seq {
				acked = true
			}
		case TPDUNak:
			return nil, ErrNoResponse
		case TPDUDisconnect:
			d.connected = false
			return nil, ErrNoResponse
		case TPDUData:
			if err := d.bus.send(ctx, d.addr, AckTPDU(rseq)); err != nil {
				return nil, err
			}
			got, payload, err := APDU(tpdu)
			if err != nil {
				return nil, err
			}
			if got == want {
				resp = payload
			}
		}
	}

	d.seqOut = (seq + 1) & 0x0F
	return resp, nil
}

func (d *usbDevice) dropLocked(ctx context.Context) {
	if d.connected {
		_ = d.bus.send(context.WithoutCancel(ctx), d.addr, ControlTPDU(TPCIDisconnect))
	}
	d.connected = false
}

func (d *usbDevice) Authorize(ctx context.Context, key uint32) (uint8, error) {
	resp, err := d.request(ctx, APCIAuthorizeRequest, AuthorizeRequest(key), APCIAuthorizeResponse)
	if err != nil {
		return 0, err
	}
	if len(resp) < 1 {
		return 0, fmt.Errorf("knx: empty authorize response from %s", d.addr)
	}
	return resp[0], nil
}

func (d *usbDevice) ReadSerial(ctx context.Context) ([]byte, error) {
	resp, err := d.request(ctx, APCIPropertyValueRead, PropertyValueRead(0, PropertySerialNumber, 1, 1), APCIPropertyValueResponse)
	if err != nil {
		return nil, err
	}
	if len(resp) < 4 || resp[2]>>4 == 0 {
		return nil, fmt.Errorf("knx: %s does not expose a serial number", d.addr)
	}
	return resp[4:], nil
}

func (d *usbDevice) Close() error {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if !d.connected {
		return nil
	}
	d.connected = false
	return d.bus.send(context.Background(), d.addr, ControlTPDU(TPCIDisconnect))
}
