package registry

import (
	"sort"
	"sync"
	"time"
)

// SessionInfo is one row of the live session listing.
type SessionInfo struct {
	UID         string    `json:"uid"`
	RemoteAddr  string    `json:"remote_addr"`
	ProfileName string    `json:"profile_name"`
	ProfileUID  string    `json:"profile_uid"`
	TargetRate  float64   `json:"target_sample_rate"`
	CurrentRate float64   `json:"current_sample_rate"`
	CaptureMode string    `json:"capture_mode"`
	State       string    `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	AudioChunks uint64    `json:"audio_chunks"`
	SamplesIn   uint64    `json:"samples_in"`
	FramesOut   uint64    `json:"frames_out"`
	RateChanges uint64    `json:"rate_changes"`
	Transcripts uint64    `json:"transcripts"`
}

// Manager tracks connected capture sessions. Each session registers a
// snapshot function so the listing always reads live values.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]func() SessionInfo
}

// NewManager executes the newManager function.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]func() SessionInfo),
	}
}

// Register adds a session under its uid.
func (m *Manager) Register(uid string, info func() SessionInfo) {
	if uid == "" || info == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[uid] = info
}

// Remove drops a session.
func (m *Manager) Remove(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, uid)
}

// Count returns the number of connected sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Snapshot returns the current sessions ordered oldest first.
func (m *Manager) Snapshot() []SessionInfo {
	m.mu.Lock()
	infos := make([]func() SessionInfo, 0, len(m.sessions))
	for _, info := range m.sessions {
		infos = append(infos, info)
	}
	m.mu.Unlock()

	out := make([]SessionInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].UID < out[j].UID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
