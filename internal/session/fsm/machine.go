package fsm

import (
	"fmt"
	"strings"
	"sync"
)

// State describes the capture lifecycle state for a client session.
type State string

const (
	StateIdle        State = "idle"
	StateCapturing   State = "capturing"
	StateCommitting  State = "committing"
	StateInterrupted State = "interrupted"
)

// Mode affects transition policy for capture end and transcript delivery.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeManual   Mode = "manual"
	ModeRealtime Mode = "realtime"
)

// Machine is a lightweight deterministic session state machine.
type Machine struct {
	mu    sync.RWMutex
	state State
	mode  Mode
}

// New creates a state machine with default idle/auto values.
func New() *Machine {
	return &Machine{
		state: StateIdle,
		mode:  ModeAuto,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Mode returns the current capture mode.
func (m *Machine) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// SetMode updates policy mode.
func (m *Machine) SetMode(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case string(ModeManual):
		m.mode = ModeManual
	case string(ModeRealtime):
		m.mode = ModeRealtime
	default:
		m.mode = ModeAuto
	}
}

// OnCaptureStart moves session into capturing.
func (m *Machine) OnCaptureStart() {
	m.transition(StateCapturing)
}

// OnCaptureEnd exits capturing according to mode policy. Realtime streams
// deliver finals inline, so closing the stream goes straight to idle; the
// other modes wait in committing for the final transcript.
func (m *Machine) OnCaptureEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.mode {
	case ModeRealtime:
		m.state = StateIdle
	default:
		m.state = StateCommitting
	}
}

// OnTranscriptFinal resolves a pending commit according to mode policy.
// Finals arriving outside a commit leave the state alone.
func (m *Machine) OnTranscriptFinal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCommitting {
		return
	}
	switch m.mode {
	case ModeManual:
		m.state = StateIdle
	default:
		m.state = StateCapturing
	}
}

// OnInterrupt marks interruption.
func (m *Machine) OnInterrupt() {
	m.transition(StateInterrupted)
}

// Force sets state unconditionally.
func (m *Machine) Force(state State) error {
	switch state {
	case StateIdle, StateCapturing, StateCommitting, StateInterrupted:
		m.transition(state)
		return nil
	default:
		return fmt.Errorf("invalid state: %s", state)
	}
}

func (m *Machine) transition(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}
