// Package knx is the bus boundary of the key search: a Bus reaches devices by
// individual address and a Device answers authorization requests.
//
// Two backends exist. The simulator keeps a secret key in memory and is what
// tests and dry runs use. The USB backend drives a KNX USB interface over HID
// reports carrying cEMI frames.
package knx

import (
	"context"
	"errors"
)

// Access levels with special meaning in an A_Authorize_Response.
const (
	// LevelDenied is answered by devices that reject the key outright.
	LevelDenied uint8 = 3
	// LevelLocked is the lowest level, granted to anyone.
	LevelLocked uint8 = 15
)

// PropertySerialNumber is the PID of the serial number in the device object.
const PropertySerialNumber = 11

var (
	// ErrNoResponse marks a request the device did not answer in time. It is
	// transient: the same request may succeed when repeated.
	ErrNoResponse = errors.New("knx: no response from device")

	// ErrNotImplemented lets backends signal that a requested capability is
	// not available.
	ErrNotImplemented = errors.New("knx: not implemented")

	// ErrUnreachable is returned when a device cannot be connected.
	ErrUnreachable = errors.New("knx: device unreachable")
)

// Bus is a connection to a KNX line through some interface.
type Bus interface {
	Connect(ctx context.Context) error
	// Ping reports whether a device answers at addr.
	Ping(ctx context.Context, addr IndividualAddress) (bool, error)
	OpenDevice(ctx context.Context, addr IndividualAddress) (Device, error)
	Close() error
}

// Device is a transport-layer connection to one device.
type Device interface {
	Address() IndividualAddress
	// Authorize submits key and returns the granted access level.
	Authorize(ctx context.Context, key uint32) (uint8, error)
	// ReadSerial returns the device serial number (6 bytes).
	ReadSerial(ctx context.Context) ([]byte, error)
	Close() error
}

// Rejected reports whether an authorization level means the key was wrong.
func Rejected(level uint8) bool {
	return level == LevelDenied || level == LevelLocked
}
