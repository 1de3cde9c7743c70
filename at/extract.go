package at

import (
	"fmt"
	"strconv"
	"strings"
)

// Layout describes the positional fields of one information response type.
// An empty name skips the field at that position.
type Layout struct {
	Prefix string
	Fields []string
}

// Layouts maps response prefixes to their field layout. Lines whose prefix
// is not listed here are not extracted.
var Layouts = map[string]Layout{
	PrefixOperator: {
		Prefix: PrefixOperator,
		Fields: []string{"mode", "format", "oper", "act"},
	},
	PrefixEPSReg: {
		Prefix: PrefixEPSReg,
		Fields: []string{"n", "stat", "tac", "ci", "act"},
	},
	PrefixReg: {
		Prefix: PrefixReg,
		Fields: []string{"n", "stat", "lac", "ci", "act"},
	},
	PrefixExtSignal: {
		Prefix: PrefixExtSignal,
		Fields: []string{"rxlev", "ber", "rscp", "ecno", "rsrq", "rsrp"},
	},
	PrefixRFStatus: {
		Prefix: PrefixRFStatus,
		Fields: []string{
			"plmn", "earfcn", "rsrp", "rssi", "rsrq", "tac", "rac", "txpwr", "drx",
			"mm", "rrc", "cid", "imsi", "netname", "sd", "abnd", "t3402", "t3412", "sinr",
		},
	},
	PrefixSocketInfo: {
		Prefix: PrefixSocketInfo,
		Fields: []string{"connid", "sent", "received", "buffered", "ackwaiting"},
	},
	PrefixSocketStat: {
		Prefix: PrefixSocketStat,
		Fields: []string{"connid", "state", "locip", "locport", "remip", "remport"},
	},
}

// Match holds the named fields extracted from one response line.
type Match struct {
	Prefix string
	Line   string
	Values map[string]string
}

// Extract applies the layout registered for the line's prefix. It reports
// false for lines with no registered layout.
func Extract(line string) (Match, bool) {
	line = strings.TrimSpace(line)
	prefix, rest, ok := splitPrefix(line)
	if !ok {
		return Match{}, false
	}
	layout, ok := Layouts[prefix]
	if !ok {
		return Match{}, false
	}

	values := make(map[string]string, len(layout.Fields))
	for i, field := range SplitFields(rest) {
		if i >= len(layout.Fields) {
			break
		}
		if name := layout.Fields[i]; name != "" {
			values[name] = field
		}
	}
	return Match{Prefix: prefix, Line: line, Values: values}, true
}

// Get returns the raw value of a named field.
func (m Match) Get(name string) (string, bool) {
	v, ok := m.Values[name]
	return v, ok
}

// Int returns a named field parsed as a decimal integer.
func (m Match) Int(name string) (int, error) {
	v, ok := m.Values[name]
	if !ok {
		return 0, fmt.Errorf("%s field %q missing", m.Prefix, name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s field %q: %w", m.Prefix, name, err)
	}
	return n, nil
}

// Float returns a named field parsed as a floating point number.
func (m Match) Float(name string) (float64, error) {
	v, ok := m.Values[name]
	if !ok {
		return 0, fmt.Errorf("%s field %q missing", m.Prefix, name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s field %q: %w", m.Prefix, name, err)
	}
	return f, nil
}

// SplitFields splits a comma separated parameter list, ignoring commas inside
// double quotes. Surrounding spaces and quotes are removed from each field.
func SplitFields(s string) []string {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		fields = append(fields, strings.Trim(strings.TrimSpace(current.String()), `"`))
		current.Reset()
	}
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case r == ',' && !quoted:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return fields
}

func splitPrefix(line string) (prefix, rest string, ok bool) {
	if line == "" || (line[0] != '+' && line[0] != '#') {
		return "", "", false
	}
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return line[:i+1], strings.TrimSpace(line[i+1:]), true
}
