// Package logline formats and parses the per-subsystem telemetry records.
// A record is comma separated; the first field is always the state name and
// the number of payload fields is fixed per subsystem, whatever the state.
package logline

import (
	"fmt"
	"strings"
)

// Kind identifies the subsystem that produced a record.
type Kind string

const (
	KindAHRS    Kind = "AHRS"
	KindGPS     Kind = "GPS"
	KindPower   Kind = "Power"
	KindLog     Kind = "Log"
	KindCaptain Kind = "Captain"
)

// Fields is the payload field count of each subsystem's record.
var Fields = map[Kind]int{
	KindAHRS:    1, // heading or "-"
	KindGPS:     4, // lat, lon, satellites, fix age
	KindPower:   3, // volts, milliamps, watts
	KindLog:     1, // free space (KB)
	KindCaptain: 0,
}

// Placeholder marks a payload field with no valid value in the current state.
const Placeholder = "-"

// Record is a parsed telemetry line.
type Record struct {
	State  string
	Fields []string
}

// Format joins a state name and its payload fields.
func Format(state string, fields ...string) string {
	if len(fields) == 0 {
		return state
	}
	return state + "," + strings.Join(fields, ",")
}

// Parse splits a line into state and payload fields.
func Parse(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Record{}, fmt.Errorf("empty log line")
	}
	parts := strings.Split(line, ",")
	if parts[0] == "" {
		return Record{}, fmt.Errorf("log line %q: missing state", line)
	}
	return Record{State: parts[0], Fields: parts[1:]}, nil
}

// ParseFor parses a line and checks the payload width for kind.
func ParseFor(kind Kind, line string) (Record, error) {
	want, ok := Fields[kind]
	if !ok {
		return Record{}, fmt.Errorf("unknown log line kind %q", kind)
	}
	rec, err := Parse(line)
	if err != nil {
		return Record{}, err
	}
	if len(rec.Fields) != want {
		return Record{}, fmt.Errorf("%s log line %q: got %d fields, want %d", kind, line, len(rec.Fields), want)
	}
	return rec, nil
}
