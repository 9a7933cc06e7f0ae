package knx

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// AuthorizeHook lets tests script device answers. It receives the 1-based
// attempt number and the key.
type AuthorizeHook func(attempt int, key uint32) (uint8, error)

// SimDevice is an in-memory device with a secret key. A matching key is
// granted Level; any other key gets RejectLevel. OnAuthorize, when set,
// replaces that logic.
type SimDevice struct {
	Addr        IndividualAddress
	Key         uint32
	Level       uint8
	RejectLevel uint8
	Serial      []byte

	// Latency is slept on every request to mimic bus timing.
	Latency time.Duration

	OnAuthorize AuthorizeHook

	mu       sync.Mutex
	attempts int
	tried    []uint32
	opens    int
	closes   int
}

// NewSimDevice constructs a device at addr whose secret key is key.
func NewSimDevice(addr IndividualAddress, key uint32, level uint8) *SimDevice {
	return &SimDevice{
		Addr:        addr,
		Key:         key,
		Level:       level,
		RejectLevel: LevelLocked,
		Serial:      []byte{0x00, 0xFA, 0x00, 0x00, 0x00, byte(addr)},
	}
}

// Attempts returns how many authorization requests were made.
func (d *SimDevice) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Tried returns a copy of the keys submitted, in order.
func (d *SimDevice) Tried() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.tried...)
}

// OpenCounts reports how many connections were opened and closed.
func (d *SimDevice) OpenCounts() (opens, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens, d.closes
}

func (d *SimDevice) wait(ctx context.Context) error {
	if d.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *SimDevice) authorize(ctx context.Context, key uint32) (uint8, error) {
	if err := d.wait(ctx); err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.attempts++
	attempt := d.attempts
	d.tried = append(d.tried, key)
	hook := d.OnAuthorize
	d.mu.Unlock()

	if hook != nil {
		return hook(attempt, key)
	}
	if key == d.Key {
		return d.Level, nil
	}
	return d.RejectLevel, nil
}

// simConn is a Device handle onto a SimDevice.
type simConn struct {
	dev    *SimDevice
	closed bool
}

func (c *simConn) Address() IndividualAddress { return c.dev.Addr }

func (c *simConn) Authorize(ctx context.Context, key uint32) (uint8, error) {
	if c.closed {
		return 0, fmt.Errorf("knx: authorize on closed connection to %s", c.dev.Addr)
	}
	return c.dev.authorize(ctx, key)
}

func (c *simConn) ReadSerial(ctx context.Context) ([]byte, error) {
	if err := c.dev.wait(ctx); err != nil {
		return nil, err
	}
	return append([]byte(nil), c.dev.Serial...), nil
}

func (c *simConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.dev.mu.Lock()
	c.dev.closes++
	c.dev.mu.Unlock()
	return nil
}

// SimBus is an in-memory Bus holding simulated devices by address. When
// Fallback is set, any address without a registered device answers with a
// copy of it.
type SimBus struct {
	Fallback *SimDevice

	mu        sync.Mutex
	devices   map[IndividualAddress]*SimDevice
	connected bool
	connects  int
}

// NewSimBus constructs a bus with the given devices attached.
func NewSimBus(devices ...*SimDevice) *SimBus {
	b := &SimBus{devices: make(map[IndividualAddress]*SimDevice)}
	for _, d := range devices {
		b.Attach(d)
	}
	return b
}

// Attach adds a device to the bus.
func (b *SimBus) Attach(d *SimDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[d.Addr] = d
}

// Device returns the device at addr, if any.
func (b *SimBus) Device(addr IndividualAddress) (*SimDevice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.devices[addr]; ok {
		return d, true
	}
	if b.Fallback == nil {
		return nil, false
	}
	d := &SimDevice{
		Addr:        addr,
		Key:         b.Fallback.Key,
		Level:       b.Fallback.Level,
		RejectLevel: b.Fallback.RejectLevel,
		Serial:      append([]byte(nil), b.Fallback.Serial...),
		Latency:     b.Fallback.Latency,
		OnAuthorize: b.Fallback.OnAuthorize,
	}
	b.devices[addr] = d
	return d, true
}

// Connects returns how many times Connect was called.
func (b *SimBus) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *SimBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.connects++
	return ctx.Err()
}

func (b *SimBus) Ping(ctx context.Context, addr IndividualAddress) (bool, error) {
	if err := b.requireConnected(); err != nil {
		return false, err
	}
	d, ok := b.Device(addr)
	if !ok {
		return false, nil
	}
	if err := d.wait(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (b *SimBus) OpenDevice(ctx context.Context, addr IndividualAddress) (Device, error) {
	if err := b.requireConnected(); err != nil {
		return nil, err
	}
	d, ok := b.Device(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, addr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.opens++
	d.mu.Unlock()
	return &simConn{dev: d}, nil
}

func (b *SimBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

func (b *SimBus) requireConnected() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return fmt.Errorf("knx: simulator bus not connected")
	}
	return nil
}

// simFromParams builds a simulator bus from connection parameters:
// Key (hex, default 42424242), Level (decimal, default 1), Serial (12 hex
// digits), Address (restricts the bus to one device) and Latency (duration).
func simFromParams(p ConnectorParameters) (*SimBus, error) {
	proto := NewSimDevice(0, 0x42424242, 1)

	if v, ok, err := p.Hex("Key", 32); err != nil {
		return nil, err
	} else if ok {
		proto.Key = uint32(v)
	}

	if s, ok := p.Get("Level"); ok {
		n, err := parseUint8(s)
		if err != nil {
			return nil, fmt.Errorf("knx: simulator Level=%q: %w", s, err)
		}
		proto.Level = n
	}

	if v, ok, err := p.Hex("Serial", 48); err != nil {
		return nil, err
	} else if ok {
		proto.Serial = []byte{byte(v >> 40), byte(v >> 32), byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}

	if s, ok := p.Get("Latency"); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("knx: simulator Latency=%q: %w", s, err)
		}
		proto.Latency = d
	}

	if s, ok := p.Get("Address"); ok {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		proto.Addr = addr
		return NewSimBus(proto), nil
	}

	bus := NewSimBus()
	bus.Fallback = proto
	return bus, nil
}

func parseUint8(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	return uint8(n), err
}
