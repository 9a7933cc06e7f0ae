package knx

import (
	"fmt"
	"strconv"
	"strings"
)

// IndividualAddress is a device address area.line.device packed as 4.4.8 bits.
type IndividualAddress uint16

// NewIndividualAddress packs the three parts. Out of range parts are masked.
func NewIndividualAddress(area, line, device uint8) IndividualAddress {
	return IndividualAddress(uint16(area&0x0F)<<12 | uint16(line&0x0F)<<8 | uint16(device))
}

// ParseAddress parses "area.line.device", e.g. "1.1.5".
func ParseAddress(s string) (IndividualAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("knx: invalid individual address %q: want area.line.device", s)
	}

	limits := [3]uint64{15, 15, 255}
	var v [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil || n > limits[i] {
			return 0, fmt.Errorf("knx: invalid individual address %q: part %d out of range 0-%d", s, i+1, limits[i])
		}
		v[i] = uint8(n)
	}
	return NewIndividualAddress(v[0], v[1], v[2]), nil
}

// Area returns the area part.
func (a IndividualAddress) Area() uint8 { return uint8(a >> 12) }

// Line returns the line part.
func (a IndividualAddress) Line() uint8 { return uint8(a>>8) & 0x0F }

// Device returns the device part.
func (a IndividualAddress) Device() uint8 { return uint8(a) }

func (a IndividualAddress) String() string {
	return fmt.Sprintf("%d.%d.%d", a.Area(), a.Line(), a.Device())
}
