package knx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    IndividualAddress
		wantErr bool
	}{
		{"1.1.5", 0x1105, false},
		{" 15.15.255 ", 0xFFFF, false},
		{"0.0.0", 0, false},
		{"16.1.1", 0, true},
		{"1.16.1", 0, true},
		{"1.1.256", 0, true},
		{"1.1", 0, true},
		{"a.b.c", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	a := NewIndividualAddress(1, 2, 3)
	assert.Equal(t, "1.2.3", a.String())
	assert.Equal(t, uint8(1), a.Area())
	assert.Equal(t, uint8(2), a.Line())
	assert.Equal(t, uint8(3), a.Device())
}

func TestParseConnectionString(t *testing.T) {
	t.Parallel()

	p, err := ParseConnectionString("Type=Usb VendorId=0E77 ProductId=0104")
	require.NoError(t, err)
	assert.True(t, p.Is(ConnectionUsb))
	assert.Equal(t, "Usb", p.Type)

	vid, ok, err := p.Hex("vendorid", 16)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0x0E77), vid)

	_, ok, err = p.Hex("Missing", 16)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "Type=Usb VendorId=0E77 ProductId=0104", p.String())
}

func TestParseConnectionStringQuotedAndSeparators(t *testing.T) {
	t.Parallel()

	p, err := ParseConnectionString(`type=simulator; Name="bench unit"; Address=1.1.5`)
	require.NoError(t, err)
	assert.True(t, p.Is(ConnectionSimulator))

	name, ok := p.Get("name")
	require.True(t, ok)
	assert.Equal(t, "bench unit", name)

	addr, ok := p.Get("Address")
	require.True(t, ok)
	assert.Equal(t, "1.1.5", addr)

	assert.Equal(t, `Type=simulator Name="bench unit" Address=1.1.5`, p.String())
}

func TestParseConnectionStringErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"VendorId=0E77",
		"Type=Usb Type=Simulator",
		"Type=",
		"Type Usb",
	} {
		_, err := ParseConnectionString(in)
		assert.Error(t, err, in)
	}

	p, err := ParseConnectionString("Type=Usb VendorId=XYZ")
	require.NoError(t, err)
	_, _, err = p.Hex("VendorId", 16)
	assert.Error(t, err)
}

func TestDial(t *testing.T) {
	t.Parallel()

	p, err := ParseConnectionString("Type=Usb VendorId=0E77 ProductId=0104")
	require.NoError(t, err)
	bus, err := Dial(p)
	require.NoError(t, err)
	assert.IsType(t, &USBBus{}, bus)

	p, err = ParseConnectionString("Type=Usb VendorId=0E77")
	require.NoError(t, err)
	_, err = Dial(p)
	assert.Error(t, err)

	p, err = ParseConnectionString("Type=IpTunneling HostAddress=192.168.1.10")
	require.NoError(t, err)
	_, err = Dial(p)
	assert.ErrorIs(t, err, ErrNotImplemented)

	p, err = ParseConnectionString("Type=Simulator Level=abc")
	require.NoError(t, err)
	_, err = Dial(p)
	assert.Error(t, err)
}

func TestDialSimulator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := ParseConnectionString("Type=Simulator Key=DEADBEEF Level=1 Serial=00FA12345678")
	require.NoError(t, err)
	bus, err := Dial(p)
	require.NoError(t, err)
	require.NoError(t, bus.Connect(ctx))
	defer bus.Close()

	addr := NewIndividualAddress(1, 1, 5)
	ok, err := bus.Ping(ctx, addr)
	require.NoError(t, err)
	assert.True(t, ok)

	dev, err := bus.OpenDevice(ctx, addr)
	require.NoError(t, err)
	defer dev.Close()

	serial, err := dev.ReadSerial(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xFA, 0x12, 0x34, 0x56, 0x78}, serial)

	level, err := dev.Authorize(ctx, 0xDEADBEEF)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), level)

	level, err = dev.Authorize(ctx, 0x12345678)
	require.NoError(t, err)
	assert.True(t, Rejected(level))
}

func TestSimBusSingleAddress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := ParseConnectionString("Type=Simulator Address=1.1.5")
	require.NoError(t, err)
	bus, err := Dial(p)
	require.NoError(t, err)
	require.NoError(t, bus.Connect(ctx))

	ok, err := bus.Ping(ctx, NewIndividualAddress(1, 1, 6))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = bus.OpenDevice(ctx, NewIndividualAddress(1, 1, 6))
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestSimDeviceCounters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sim := NewSimDevice(NewIndividualAddress(1, 1, 5), 0x42424242, 2)
	bus := NewSimBus(sim)

	_, err := bus.OpenDevice(ctx, sim.Addr)
	require.Error(t, err, "bus must be connected first")

	require.NoError(t, bus.Connect(ctx))
	assert.Equal(t, 1, bus.Connects())

	dev, err := bus.OpenDevice(ctx, sim.Addr)
	require.NoError(t, err)

	for _, k := range []uint32{1, 2, 0x42424242} {
		_, err := dev.Authorize(ctx, k)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, sim.Attempts())
	assert.Equal(t, []uint32{1, 2, 0x42424242}, sim.Tried())

	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	opens, closes := sim.OpenCounts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)

	_, err = dev.Authorize(ctx, 1)
	assert.Error(t, err)
}

func TestSimDeviceHookAndLatency(t *testing.T) {
	t.Parallel()

	sim := NewSimDevice(1, 0, 0)
	sim.OnAuthorize = func(attempt int, key uint32) (uint8, error) {
		if attempt == 1 {
			return 0, ErrNoResponse
		}
		return LevelDenied, nil
	}
	sim.Latency = time.Hour
	bus := NewSimBus(sim)
	require.NoError(t, bus.Connect(context.Background()))

	dev, err := bus.OpenDevice(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = dev.Authorize(ctx, 7)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sim.Attempts())

	sim.Latency = 0
	_, err = dev.Authorize(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNoResponse)
	level, err := dev.Authorize(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, LevelDenied, level)
}

func TestRejected(t *testing.T) {
	t.Parallel()

	assert.True(t, Rejected(3))
	assert.True(t, Rejected(15))
	for _, l := range []uint8{0, 1, 2, 4, 7, 14} {
		assert.False(t, Rejected(l), l)
	}
}

func TestClassifyUSBDevice(t *testing.T) {
	t.Parallel()

	info, ok := classifyUSBDevice(0x0E77, 0x0104)
	require.True(t, ok)
	assert.Equal(t, InterfaceKindUSB, info.Kind)
	assert.Equal(t, "Type=Usb VendorId=0E77 ProductId=0104", info.Parameters().String())

	_, ok = classifyUSBDevice(0x1234, 0x5678)
	assert.False(t, ok)

	sim := InterfaceInfo{Kind: InterfaceKindSim}
	assert.Equal(t, "Type=Simulator", sim.Parameters().String())
	assert.Equal(t, "simulator (0000:0000)", sim.Label())
}
