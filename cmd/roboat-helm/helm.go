package main

import (
	"log"
	"strings"

	"github.com/sweeney/roboat-helm/internal/ahrs"
	"github.com/sweeney/roboat-helm/internal/captain"
	"github.com/sweeney/roboat-helm/internal/fsm"
	"github.com/sweeney/roboat-helm/internal/gps"
	"github.com/sweeney/roboat-helm/internal/logbook"
	"github.com/sweeney/roboat-helm/internal/power"
	"github.com/sweeney/roboat-helm/internal/status"
)

// helm owns the five controllers. They are always advanced and reported in
// the same order so log rows keep fixed columns.
type helm struct {
	ahrs    *ahrs.Controller
	gps     *gps.Manager
	power   *power.Manager
	log     *logbook.Manager
	captain *captain.Controller
}

// reportLine is one subsystem's telemetry record.
type reportLine struct {
	Machine string
	Line    string
}

// advance gives every controller a chance to run at now.
func (h *helm) advance(now fsm.Micros) {
	h.ahrs.Advance(now)
	h.gps.Advance(now)
	h.power.Advance(now)
	h.log.Advance(now)
	h.captain.Advance(now)
}

// onTransition routes every controller's committed transitions to fn.
func (h *helm) onTransition(fn func(fsm.Transition)) {
	h.ahrs.OnTransition = fn
	h.gps.OnTransition = fn
	h.power.OnTransition = fn
	h.log.OnTransition = fn
	h.captain.OnTransition = fn
}

// recordCaptainLines copies every line received from the companion computer
// into the SD log.
func (h *helm) recordCaptainLines() {
	h.captain.OnLine = func(line string) {
		if err := h.log.Writeln("CAPTAIN," + line); err != nil {
			log.Printf("captain: line not logged: %v", err)
		}
	}
}

func (h *helm) lines() []reportLine {
	return []reportLine{
		{h.ahrs.Name(), h.ahrs.LogString()},
		{h.gps.Name(), h.gps.LogString()},
		{h.power.Name(), h.power.LogString()},
		{h.log.Name(), h.log.LogString()},
		{h.captain.Name(), h.captain.LogString()},
	}
}

// row joins every subsystem's record into one CSV row for the SD log.
func row(lines []reportLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Line
	}
	return strings.Join(parts, ",")
}

// updateTracker copies every accessor into the status tracker.
func (h *helm) updateTracker(tr *status.Tracker) {
	tr.UpdateAHRS(status.AHRS{
		State:        h.ahrs.State().String(),
		Heading:      h.ahrs.Heading(),
		Roll:         h.ahrs.Roll(),
		Pitch:        h.ahrs.Pitch(),
		HeadingValid: h.ahrs.HeadingValid(),
	})
	tr.UpdateGPS(status.GPS{
		State:         h.gps.State().String(),
		Lat:           h.gps.Lat(),
		Lng:           h.gps.Lng(),
		Satellites:    h.gps.Satellites(),
		FixAgeMs:      h.gps.FixAge(),
		PositionValid: h.gps.PositionValid(),
	})
	tr.UpdatePower(status.Power{
		State:     h.power.State().String(),
		Volts:     h.power.BusVoltage(),
		Milliamps: h.power.CurrentMa(),
		Watts:     h.power.Power(),
		Sampled:   h.power.Sampled(),
	})
	tr.UpdateLog(status.Log{
		State:      h.log.State().String(),
		Epoch:      h.log.Epoch(),
		File:       h.log.FileName(),
		FreeKb:     h.log.FreeSpaceKb(),
		CardBlocks: h.log.CardSizeBlocks(),
		Queued:     h.log.Queued(),
	})
	tr.UpdateCaptain(status.Captain{
		State:    h.captain.State().String(),
		LastLine: h.captain.LastLine(),
		Lines:    h.captain.Lines(),
	})
}
