// Package fsm provides the timed state machine shared by every subsystem controller.
// A machine never sleeps: it records when it next wants to run and ignores
// ticks that arrive before then, so many controllers can share one polling loop.
// This package has NO hardware dependencies. Time is always injected by the caller.
package fsm

import (
	"fmt"
	"log"
	"time"
)

// Micros is a monotonic timestamp in microseconds.
type Micros uint64

// MicrosOf converts a duration to microseconds. Negative durations clamp to 0.
func MicrosOf(d time.Duration) Micros {
	if d < 0 {
		return 0
	}
	return Micros(d.Microseconds())
}

// Duration converts the timestamp (or interval) to a time.Duration.
func (m Micros) Duration() time.Duration {
	return time.Duration(m) * time.Microsecond
}

// State is implemented by each controller's state enum.
// String must return the stable name used in log lines.
type State interface {
	comparable
	fmt.Stringer
}

// Transition describes a committed state change.
type Transition struct {
	Machine string
	From    string
	To      string
	InState time.Duration // time spent in From
	At      Micros
}

// Machine holds the timing and state bookkeeping for one controller.
type Machine[S State] struct {
	name      string
	state     S
	pending   S
	last      Micros
	nextWake  Micros
	enteredAt Micros
	update    func() bool

	// OnTransition, if set, receives every committed transition.
	OnTransition func(Transition)
}

// New creates a machine in the initial state. The wake time is 0, so the
// first call to Advance always runs update.
func New[S State](name string, initial S, update func() bool) *Machine[S] {
	return &Machine[S]{
		name:    name,
		state:   initial,
		pending: initial,
		update:  update,
	}
}

// RequestTransition schedules a move to next, to be committed no earlier than
// delay after the current advance. It does not change the current state.
// The last request before the next Advance wins.
func (m *Machine[S]) RequestTransition(next S, delay time.Duration) {
	m.pending = next
	m.nextWake = m.last + MicrosOf(delay)
}

// Remain schedules a re-evaluation of the current state after delay.
func (m *Machine[S]) Remain(delay time.Duration) {
	m.RequestTransition(m.state, delay)
}

// Advance runs the controller's update if its wake time has arrived.
// Before the wake time it returns false and touches nothing.
func (m *Machine[S]) Advance(now Micros) bool {
	if now < m.nextWake {
		return false
	}

	if m.pending != m.state {
		tr := Transition{
			Machine: m.name,
			From:    m.state.String(),
			To:      m.pending.String(),
			InState: (now - m.enteredAt).Duration(),
			At:      now,
		}
		log.Printf("%s state %s => %s (%dms in state)", tr.Machine, tr.From, tr.To, tr.InState.Milliseconds())
		m.state = m.pending
		m.enteredAt = now
		if m.OnTransition != nil {
			m.OnTransition(tr)
		}
	}

	// Requests made by update are relative to this tick.
	m.last = now
	result := m.update()
	if m.nextWake < m.last {
		m.nextWake = m.last
	}
	return result
}

// State returns the current (committed) state.
func (m *Machine[S]) State() S {
	return m.state
}

// Pending returns the state that the next due Advance will commit.
func (m *Machine[S]) Pending() S {
	return m.pending
}

// Name returns the machine name used in transition logs.
func (m *Machine[S]) Name() string {
	return m.name
}

// TimeInState returns the time spent in the current state as of the last advance.
func (m *Machine[S]) TimeInState() time.Duration {
	return (m.last - m.enteredAt).Duration()
}

// LastAdvance returns the time of the last advance that ran update.
func (m *Machine[S]) LastAdvance() Micros {
	return m.last
}

// NextWake returns the earliest time at which Advance will run update.
func (m *Machine[S]) NextWake() Micros {
	return m.nextWake
}

// EnteredAt returns the time the current state was committed.
func (m *Machine[S]) EnteredAt() Micros {
	return m.enteredAt
}
