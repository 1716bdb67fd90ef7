package storage

import (
	"testing"
)

func TestReportWriteGetDelete(t *testing.T) {
	baseDir := t.TempDir()
	report := SessionReport{
		UID:         "2025-11-02_10-00-00_abc123",
		ProfileName: "default",
		ProfileUID:  "default",
		TargetRate:  16000,
		StartedAt:   "2025-11-02T10:00:00Z",
		EndedAt:     "2025-11-02T10:00:42Z",
		AudioChunks: 12,
		SamplesIn:   5760,
		FramesOut:   18,
	}
	if err := WriteReport(baseDir, report); err != nil {
		t.Fatalf("WriteReport error=%v", err)
	}

	got, err := GetReport(baseDir, "default", report.UID)
	if err != nil {
		t.Fatalf("GetReport error=%v", err)
	}
	if got.FramesOut != 18 || got.TargetRate != 16000 || got.EndedAt != report.EndedAt {
		t.Fatalf("report=%+v, want stored values back", got)
	}

	if !DeleteReport(baseDir, "default", report.UID) {
		t.Fatal("DeleteReport=false, want true")
	}
	if DeleteReport(baseDir, "default", report.UID) {
		t.Fatal("second DeleteReport=true, want false")
	}
}

func TestListReportsNewestFirst(t *testing.T) {
	baseDir := t.TempDir()
	older := SessionReport{UID: "2025-11-02_10-00-00_a", ProfileUID: "default", EndedAt: "2025-11-02T10:00:10Z"}
	newer := SessionReport{UID: "2025-11-02_11-00-00_b", ProfileUID: "default", EndedAt: "2025-11-02T11:00:10Z"}
	if err := WriteReport(baseDir, older); err != nil {
		t.Fatalf("WriteReport error=%v", err)
	}
	if err := WriteReport(baseDir, newer); err != nil {
		t.Fatalf("WriteReport error=%v", err)
	}

	list := ListReports(baseDir, "default")
	if len(list) != 2 {
		t.Fatalf("list len=%d, want 2", len(list))
	}
	if list[0].UID != newer.UID || list[1].UID != older.UID {
		t.Fatalf("order=%s,%s, want newest first", list[0].UID, list[1].UID)
	}
}

func TestReportRejectsUnsafeNames(t *testing.T) {
	baseDir := t.TempDir()
	if err := WriteReport(baseDir, SessionReport{UID: "ok", ProfileUID: "../escape"}); err == nil {
		t.Fatal("WriteReport with traversal profile uid should fail")
	}
	if _, err := GetReport(baseDir, "default", "../../etc/passwd"); err == nil {
		t.Fatal("GetReport with traversal uid should fail")
	}
	if _, err := GetReport(baseDir, "..", "ok"); err == nil {
		t.Fatal("GetReport with dot-only profile uid should fail")
	}
	if DeleteReport(baseDir, "default", "bad/name") {
		t.Fatal("DeleteReport with separator should fail")
	}
}

func TestNewReportUIDIsSafe(t *testing.T) {
	uid := NewReportUID()
	if !safeNamePattern.MatchString(uid) {
		t.Fatalf("uid %q fails safe name pattern", uid)
	}
	if len(uid) < len("2006-01-02_15-04-05_")+32 {
		t.Fatalf("uid %q shorter than timestamp+uuid", uid)
	}
}
