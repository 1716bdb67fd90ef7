package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionReport summarizes one finished capture session. It carries counters
// and timestamps only; no audio is persisted.
type SessionReport struct {
	UID           string  `json:"uid"`
	ProfileName   string  `json:"profile_name"`
	ProfileUID    string  `json:"profile_uid"`
	RemoteAddr    string  `json:"remote_addr"`
	TargetRate    float64 `json:"target_sample_rate"`
	LastInputRate float64 `json:"last_input_sample_rate"`
	CaptureMode   string  `json:"capture_mode"`
	StartedAt     string  `json:"started_at"`
	EndedAt       string  `json:"ended_at"`
	AudioChunks   uint64  `json:"audio_chunks"`
	SamplesIn     uint64  `json:"samples_in"`
	FramesOut     uint64  `json:"frames_out"`
	RateChanges   uint64  `json:"rate_changes"`
	Transcripts   uint64  `json:"transcripts"`
	Interrupts    uint64  `json:"interrupts"`
}

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

// NewReportUID mints a sortable report uid.
func NewReportUID() string {
	return time.Now().Format("2006-01-02_15-04-05") + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WriteReport persists a report under the profile subdirectory.
func WriteReport(baseDir string, report SessionReport) error {
	if report.UID == "" {
		return errors.New("report uid is empty")
	}
	if !safeName(report.UID) {
		return errors.New("invalid report uid")
	}
	dir, err := ensureProfileDir(baseDir, report.ProfileUID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, report.UID+".json"), data, 0o644)
}

// GetReport loads one report.
func GetReport(baseDir string, profileUID string, reportUID string) (SessionReport, error) {
	path, err := reportPath(baseDir, profileUID, reportUID)
	if err != nil {
		return SessionReport{}, err
	}
	return readReport(path)
}

// DeleteReport removes a report file, reporting whether it existed.
func DeleteReport(baseDir string, profileUID string, reportUID string) bool {
	path, err := reportPath(baseDir, profileUID, reportUID)
	if err != nil {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if err := os.Remove(path); err != nil {
		return false
	}
	return true
}

// ListReports returns the stored reports for a profile, newest first.
func ListReports(baseDir string, profileUID string) []SessionReport {
	list := []SessionReport{}
	dir, err := ensureProfileDir(baseDir, profileUID)
	if err != nil {
		return list
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return list
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		report, err := readReport(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if report.UID == "" {
			report.UID = strings.TrimSuffix(entry.Name(), ".json")
		}
		list = append(list, report)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].EndedAt == list[j].EndedAt {
			return list[i].UID > list[j].UID
		}
		return list[i].EndedAt > list[j].EndedAt
	})

	return list
}

func ensureProfileDir(baseDir string, profileUID string) (string, error) {
	if baseDir == "" {
		return "", errors.New("reports base dir is empty")
	}
	if !safeName(profileUID) {
		return "", errors.New("invalid profile_uid")
	}
	path := filepath.Join(baseDir, profileUID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

func reportPath(baseDir string, profileUID string, reportUID string) (string, error) {
	if baseDir == "" {
		return "", errors.New("reports base dir is empty")
	}
	if !safeName(profileUID) || !safeName(reportUID) {
		return "", errors.New("invalid report path")
	}
	return filepath.Join(baseDir, profileUID, reportUID+".json"), nil
}

// safeName accepts file-name components only. Dot-only names like ".." pass
// the pattern but traverse, so they are rejected separately.
func safeName(name string) bool {
	if !safeNamePattern.MatchString(name) {
		return false
	}
	return strings.Trim(name, ".") != ""
}

func readReport(path string) (SessionReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SessionReport{}, err
	}
	var report SessionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return SessionReport{}, err
	}
	return report, nil
}
