package knx

import "fmt"

// Dial returns an unconnected Bus for the parameters. Usb requires VendorId
// and ProductId; Simulator accepts the keys documented on simFromParams.
func Dial(p ConnectorParameters) (Bus, error) {
	switch {
	case p.Is(ConnectionUsb):
		vid, okV, err := p.Hex("VendorId", 16)
		if err != nil {
			return nil, err
		}
		pid, okP, err := p.Hex("ProductId", 16)
		if err != nil {
			return nil, err
		}
		if !okV || !okP {
			return nil, fmt.Errorf("knx: Usb connection needs VendorId and ProductId")
		}
		return DialUSB(uint16(vid), uint16(pid)), nil

	case p.Is(ConnectionSimulator):
		bus, err := simFromParams(p)
		if err != nil {
			return nil, err
		}
		return bus, nil
	}
	return nil, fmt.Errorf("%w: connection type %q", ErrNotImplemented, p.Type)
}
