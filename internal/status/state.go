package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/mfadhil/qchat/internal/bus"
)

// State is the client connection lifecycle state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Syncing      State = "SYNCING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// validTransitions is the allowed lifecycle graph. Syncing sits between
// a successful connect and the first applied feed event.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Syncing, Reconnecting, AuthRequired, Error},
	Syncing:      {Ready, Reconnecting, Error},
	Ready:        {Reconnecting, AuthRequired, Error},
	Reconnecting: {Connecting, Error},
	Error:        {Booting},
}

// Machine tracks and enforces connection state transitions, publishing
// each change on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// Change is the payload of client.state_changed events.
type Change struct {
	From State
	To   State
}

// NewMachine creates a machine in Booting.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Booting, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state, failing when the lifecycle graph does
// not allow it.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition %s -> %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    "client.state_changed",
			Payload: Change{From: from, To: to},
		})
	}
	return nil
}
