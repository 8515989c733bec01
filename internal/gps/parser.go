package gps

import (
	"math"

	"github.com/adrianmo/go-nmea"

	"github.com/sweeney/roboat-helm/internal/fsm"
)

// NoFix is the age reported when no valid fix has been seen.
const NoFix = math.MaxUint32

// maxSentence bounds a sentence under assembly; NMEA 0183 caps them at 82.
const maxSentence = 120

// Location is the most recent position fix.
type Location struct {
	valid     bool
	lat, lng  float64
	updatedAt fsm.Micros
}

// Valid reports whether the last position report carried a fix.
func (l Location) Valid() bool {
	return l.valid
}

// Lat returns the latitude in decimal degrees.
func (l Location) Lat() float64 {
	return l.lat
}

// Lng returns the longitude in decimal degrees.
func (l Location) Lng() float64 {
	return l.lng
}

// Age returns the milliseconds since the fix was last refreshed, or NoFix.
func (l Location) Age(now fsm.Micros) uint32 {
	if !l.valid {
		return NoFix
	}
	if now < l.updatedAt {
		return 0
	}
	ms := uint64(now-l.updatedAt) / 1000
	if ms >= NoFix {
		return NoFix - 1
	}
	return uint32(ms)
}

// Parser assembles NMEA sentences from a byte stream and keeps the latest
// position and satellite count. It is fed one byte at a time and never blocks.
type Parser struct {
	buf        []byte
	inSentence bool

	loc        Location
	satellites uint32

	// Sentences counts successfully decoded sentences; Failed counts rejects.
	Sentences int
	Failed    int
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{buf: make([]byte, 0, maxSentence)}
}

// Encode consumes one byte. It returns true when the byte completed a
// sentence that updated the position or satellite count.
func (p *Parser) Encode(b byte, now fsm.Micros) bool {
	switch {
	case b == '$':
		p.buf = append(p.buf[:0], b)
		p.inSentence = true
		return false
	case !p.inSentence:
		return false
	case b == '\r':
		return false
	case b == '\n':
		p.inSentence = false
		return p.commit(string(p.buf), now)
	}

	if len(p.buf) >= maxSentence {
		p.inSentence = false
		p.Failed++
		return false
	}
	p.buf = append(p.buf, b)
	return false
}

func (p *Parser) commit(raw string, now fsm.Micros) bool {
	s, err := nmea.Parse(raw)
	if err != nil {
		p.Failed++
		return false
	}
	p.Sentences++

	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			p.loc.valid = false
			return true
		}
		p.fix(m.Latitude, m.Longitude, now)
		return true
	case nmea.GGA:
		if m.NumSatellites >= 0 {
			p.satellites = uint32(m.NumSatellites)
		}
		if m.FixQuality == nmea.Invalid {
			p.loc.valid = false
			return true
		}
		p.fix(m.Latitude, m.Longitude, now)
		return true
	}
	return false
}

func (p *Parser) fix(lat, lng float64, now fsm.Micros) {
	p.loc = Location{valid: true, lat: lat, lng: lng, updatedAt: now}
}

// Location returns the latest position.
func (p *Parser) Location() Location {
	return p.loc
}

// Satellites returns the satellites used in the last GGA fix.
func (p *Parser) Satellites() uint32 {
	return p.satellites
}
