package checkpoint

import (
	"fmt"
	"strconv"
	"strings"
)

func encodeHex(v uint32) string {
	return fmt.Sprintf("%02x", v)
}

func encode(values ...uint32) []byte {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(encodeHex(v))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// decode parses a record into its hex values. Empty trailing lines are
// ignored; any other blank or non-hex line makes the record malformed.
func decode(data []byte) ([]uint32, error) {
	text := strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}

	lines := strings.Split(text, "\n")
	values := make([]uint32, 0, len(lines))
	for i, line := range lines {
		v, err := strconv.ParseUint(strings.TrimSpace(line), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformed, i+1, line)
		}
		values = append(values, uint32(v))
	}
	return values, nil
}
