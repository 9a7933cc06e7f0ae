package knx

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes interface families.
type InterfaceKind string

const (
	InterfaceKindUSB InterfaceKind = "usb"
	InterfaceKindSim InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected bus interface.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
}

// Parameters returns the connection parameters that select this interface.
func (i InterfaceInfo) Parameters() ConnectorParameters {
	if i.Kind == InterfaceKindSim {
		return ConnectorParameters{Type: ConnectionSimulator}
	}
	return ConnectorParameters{
		Type: ConnectionUsb,
		Params: []Param{
			{Key: "VendorId", Value: fmt.Sprintf("%04X", i.VendorID)},
			{Key: "ProductId", Value: fmt.Sprintf("%04X", i.ProductID)},
		},
	}
}

// DiscoverInterfaces enumerates connected KNX USB interfaces that match known
// VID/PID pairs. It always returns the simulator entry last.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if info, ok := classifyUSBDevice(uint16(desc.Vendor), uint16(desc.Product)); ok {
			results = append(results, info)
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})
	return results, nil
}

func classifyUSBDevice(vid, pid uint16) (InterfaceInfo, bool) {
	for _, known := range knownKNXUSBInterfaces {
		if vid == known.VendorID && pid == known.ProductID {
			return InterfaceInfo{
				Kind:        InterfaceKindUSB,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return InterfaceInfo{}, false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownKNXUSBInterfaces = []knownUSBDevice{
	{VendorID: 0x0E77, ProductID: 0x0104, Description: "Weinzierl KNX USB Interface"},
	{VendorID: 0x0E77, ProductID: 0x0111, Description: "Weinzierl KNX USB Interface"},
	{VendorID: 0x0E77, ProductID: 0x0112, Description: "Weinzierl KNX USB Interface"},
	{VendorID: 0x0E77, ProductID: 0x0141, Description: "Weinzierl KNX USB Interface"},
	{VendorID: 0x135E, ProductID: 0x0020, Description: "Insta KNX USB Data Interface"},
	{VendorID: 0x135E, ProductID: 0x0021, Description: "Insta KNX USB Data Interface"},
	{VendorID: 0x135E, ProductID: 0x0022, Description: "Insta KNX USB Data Interface"},
	{VendorID: 0x135E, ProductID: 0x0023, Description: "Insta KNX USB Data Interface"},
	{VendorID: 0x135E, ProductID: 0x0024, Description: "Insta KNX USB Data Interface"},
	{VendorID: 0x135E, ProductID: 0x0025, Description: "Insta KNX USB Data Interface"},
	{VendorID: 0x135E, ProductID: 0x0026, Description: "Insta KNX USB Data Interface"},
	{VendorID: 0x145C, ProductID: 0x1330, Description: "Busch-Jaeger KNX USB Interface"},
	{VendorID: 0x145C, ProductID: 0x1490, Description: "Busch-Jaeger KNX USB Interface"},
	{VendorID: 0x147B, ProductID: 0x5120, Description: "ABB KNX USB Interface"},
	{VendorID: 0x16D0, ProductID: 0x0490, Description: "KNX USB Interface (MCS)"},
}
