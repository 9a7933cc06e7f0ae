package knx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Connection types understood by Dial.
const (
	ConnectionUsb       = "Usb"
	ConnectionSimulator = "Simulator"
)

// connLexer tokenizes "Key=Value Key2=Value2" connection strings. Values are
// bare words or double-quoted strings.
var connLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s;]+`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Assign", Pattern: `=`},
	{Name: "Word", Pattern: `[^\s;="]+`},
})

type connGrammar struct {
	Params []*connParam `parser:"@@*"`
}

type connParam struct {
	Key   string `parser:"@Word \"=\""`
	Value string `parser:"@(Word | String)"`
}

var connParser = participle.MustBuild[connGrammar](
	participle.Lexer(connLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// Param is one key/value pair of a connection string.
type Param struct {
	Key   string
	Value string
}

// ConnectorParameters selects and configures a bus backend.
type ConnectorParameters struct {
	Type   string
	Params []Param
}

// ParseConnectionString parses a connection string such as
// "Type=Usb VendorId=0E77 ProductId=0104". Keys are case-insensitive and a
// Type key is required.
func ParseConnectionString(s string) (ConnectorParameters, error) {
	g, err := connParser.ParseString("", s)
	if err != nil {
		return ConnectorParameters{}, fmt.Errorf("knx: parse connection string: %w", err)
	}

	var p ConnectorParameters
	seen := make(map[string]bool, len(g.Params))
	for _, kv := range g.Params {
		lower := strings.ToLower(kv.Key)
		if seen[lower] {
			return ConnectorParameters{}, fmt.Errorf("knx: connection string repeats %q", kv.Key)
		}
		seen[lower] = true

		if lower == "type" {
			p.Type = kv.Value
			continue
		}
		p.Params = append(p.Params, Param{Key: kv.Key, Value: kv.Value})
	}

	if p.Type == "" {
		return ConnectorParameters{}, fmt.Errorf("knx: connection string %q has no Type", s)
	}
	return p, nil
}

// Get returns the value of key, compared case-insensitively.
func (p ConnectorParameters) Get(key string) (string, bool) {
	for _, kv := range p.Params {
		if strings.EqualFold(kv.Key, key) {
			return kv.Value, true
		}
	}
	return "", false
}

// Hex returns a hex value (optional 0x prefix) of at most bits width. ok is
// false when the key is absent.
func (p ConnectorParameters) Hex(key string, bits int) (v uint64, ok bool, err error) {
	s, ok := p.Get(key)
	if !ok {
		return 0, false, nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err = strconv.ParseUint(s, 16, bits)
	if err != nil {
		return 0, true, fmt.Errorf("knx: connection parameter %s=%q: %w", key, s, err)
	}
	return v, true, nil
}

// Is reports whether the connection type equals t, ignoring case.
func (p ConnectorParameters) Is(t string) bool {
	return strings.EqualFold(p.Type, t)
}

// String renders the parameters back into connection string form.
func (p ConnectorParameters) String() string {
	parts := make([]string, 0, len(p.Params)+1)
	parts = append(parts, "Type="+p.Type)
	for _, kv := range p.Params {
		v := kv.Value
		if strings.ContainsAny(v, " \t;=\"") {
			v = strconv.Quote(v)
		}
		parts = append(parts, kv.Key+"="+v)
	}
	return strings.Join(parts, " ")
}
