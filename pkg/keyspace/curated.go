package keyspace

// curatedKeys are well known factory defaults and keys seen on real
// installations. The order is part of the search strategy.
var curatedKeys = [...]uint32{
	0x11223344,
	0x12345678,
	0x00000000,
	0x87654321,
	0x11111111,
	0xFFFFFFFF,
	0x42424242,
	0x01235468,
	0x24155165,
	0x12354789,
	0x47566566,
	0x26516886,
	0x0000000C,
}

// CuratedKeys returns a copy of the curated key list in search order.
func CuratedKeys() []uint32 {
	out := make([]uint32, len(curatedKeys))
	copy(out, curatedKeys[:])
	return out
}
