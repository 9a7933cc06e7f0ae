// Package keyspace holds the vocabulary of the 32-bit authorization key space:
// the deterministic key sequence, worker sharding, key text encoding, the
// curated key list and derived dictionaries.
package keyspace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidKey is returned when a text key is not a 32-bit hex value.
var ErrInvalidKey = errors.New("keyspace: invalid key")

// Stage identifies a phase of the search. The numeric value doubles as the
// checkpoint level in file names.
type Stage uint8

const (
	StageCurated    Stage = 1
	StageDictionary Stage = 2
	StageFullSpace  Stage = 3
)

// String returns a short human readable stage name.
func (s Stage) String() string {
	switch s {
	case StageCurated:
		return "curated"
	case StageDictionary:
		return "dictionary"
	case StageFullSpace:
		return "full-space"
	default:
		return fmt.Sprintf("stage-%d", uint8(s))
	}
}

// Candidate is a key together with where it came from.
type Candidate struct {
	Key   uint32
	Stage Stage
	Index uint64 // list position, 1-based file line, or generator index
}

// ParseKey parses a hex key with an optional 0x prefix. Surrounding
// whitespace is ignored.
func ParseKey(s string) (uint32, error) {
	text := strings.TrimSpace(s)
	text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	if text == "" || len(text) > 8 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	v, err := strconv.ParseUint(text, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return uint32(v), nil
}

// FormatKey renders a key as eight upper-case hex digits.
func FormatKey(key uint32) string {
	return fmt.Sprintf("%08X", key)
}
