package registry

import (
	"testing"
	"time"
)

func TestManagerRegisterAndSnapshot(t *testing.T) {
	m := NewManager()
	t0 := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)

	chunksA := uint64(0)
	m.Register("a", func() SessionInfo {
		return SessionInfo{UID: "a", StartedAt: t0.Add(time.Second), AudioChunks: chunksA}
	})
	m.Register("b", func() SessionInfo {
		return SessionInfo{UID: "b", StartedAt: t0}
	})

	if got := m.Count(); got != 2 {
		t.Fatalf("count=%d, want 2", got)
	}

	chunksA = 7
	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len=%d, want 2", len(snap))
	}
	if snap[0].UID != "b" || snap[1].UID != "a" {
		t.Fatalf("order=%s,%s, want b,a", snap[0].UID, snap[1].UID)
	}
	if snap[1].AudioChunks != 7 {
		t.Fatalf("chunks=%d, want live value 7", snap[1].AudioChunks)
	}
}

func TestManagerRemove(t *testing.T) {
	m := NewManager()
	m.Register("a", func() SessionInfo { return SessionInfo{UID: "a"} })
	m.Remove("a")
	if got := m.Count(); got != 0 {
		t.Fatalf("count=%d, want 0", got)
	}
	if snap := m.Snapshot(); len(snap) != 0 {
		t.Fatalf("snapshot len=%d, want 0", len(snap))
	}
}

func TestManagerRegisterIgnoresEmpty(t *testing.T) {
	m := NewManager()
	m.Register("", func() SessionInfo { return SessionInfo{} })
	m.Register("x", nil)
	if got := m.Count(); got != 0 {
		t.Fatalf("count=%d, want 0", got)
	}
}
