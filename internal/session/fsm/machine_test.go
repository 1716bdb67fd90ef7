package fsm

import "testing"

func TestMachineDefault(t *testing.T) {
	m := New()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
	if got := m.Mode(); got != ModeAuto {
		t.Fatalf("mode=%s, want %s", got, ModeAuto)
	}
}

func TestMachineCaptureLifecycleAuto(t *testing.T) {
	m := New()
	m.OnCaptureStart()
	if got := m.State(); got != StateCapturing {
		t.Fatalf("state=%s, want %s", got, StateCapturing)
	}
	m.OnCaptureEnd()
	if got := m.State(); got != StateCommitting {
		t.Fatalf("state=%s, want %s", got, StateCommitting)
	}
	m.OnTranscriptFinal()
	if got := m.State(); got != StateCapturing {
		t.Fatalf("state=%s, want %s", got, StateCapturing)
	}
}

func TestMachineCaptureLifecycleManual(t *testing.T) {
	m := New()
	m.SetMode("manual")
	m.OnCaptureStart()
	m.OnCaptureEnd()
	m.OnTranscriptFinal()

	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineCaptureLifecycleRealtime(t *testing.T) {
	m := New()
	m.SetMode("realtime")
	m.OnCaptureStart()

	// inline finals while the stream is open do not move the machine
	m.OnTranscriptFinal()
	if got := m.State(); got != StateCapturing {
		t.Fatalf("state=%s, want %s", got, StateCapturing)
	}

	m.OnCaptureEnd()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineInterrupt(t *testing.T) {
	m := New()
	m.OnCaptureStart()
	m.OnInterrupt()
	if got := m.State(); got != StateInterrupted {
		t.Fatalf("state=%s, want %s", got, StateInterrupted)
	}
}

func TestMachineSetModeNormalizes(t *testing.T) {
	m := New()
	m.SetMode(" REALTIME ")
	if got := m.Mode(); got != ModeRealtime {
		t.Fatalf("mode=%s, want %s", got, ModeRealtime)
	}
	m.SetMode("push_to_talk")
	if got := m.Mode(); got != ModeAuto {
		t.Fatalf("mode=%s, want %s", got, ModeAuto)
	}
}

func TestMachineInvalidForce(t *testing.T) {
	m := New()
	if err := m.Force(State("unknown")); err == nil {
		t.Fatal("Force(unknown) error=nil, want non-nil")
	}
}
