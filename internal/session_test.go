package internal

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func readManifest(t *testing.T, session *Session) []ManifestEvent {
	t.Helper()
	f, err := os.Open(filepath.Join(session.SessionDir, "manifest.jsonl"))
	if err != nil {
		t.Fatalf("Failed to open manifest: %v", err)
	}
	defer f.Close()

	var events []ManifestEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event ManifestEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("Invalid manifest line %q: %v", scanner.Text(), err)
		}
		events = append(events, event)
	}
	return events
}

func TestNewSession(t *testing.T) {
	root := t.TempDir()

	session, err := NewSession(root)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer session.Close()

	if filepath.Dir(session.SessionDir) != filepath.Join(root, StateDirName) {
		t.Errorf("Session directory %s not under %s", session.SessionDir, StateDirName)
	}
	if _, err := os.Stat(filepath.Join(session.SessionDir, "manifest.jsonl")); os.IsNotExist(err) {
		t.Errorf("Manifest file not created in %s", session.SessionDir)
	}
	if session.RunID == "" {
		t.Error("Expected a run ID")
	}
}

func TestSession_ManifestEvents(t *testing.T) {
	root := t.TempDir()
	session, err := NewSession(root)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer session.Close()

	session.LogRunStart(3)
	session.LogRenamed("/a/A.jpg", "/a/2021_01_01__00_00_00__A.jpg", false, SourceSidecar)
	session.LogRenamed("/a/A.jpg.json", "/a/meta/2021_01_01__00_00_00__A.jpg.json", true, SourceSidecar)
	session.LogUnresolved("/a/D.jpg")
	session.LogError("/a/E.jpg", errors.New("permission denied"))
	session.LogRunEnd()

	events := readManifest(t, session)
	wantEvents := []string{"run_start", "renamed", "renamed_sidecar", "unresolved", "error", "run_end"}
	if len(events) != len(wantEvents) {
		t.Fatalf("Expected %d events, got %d", len(wantEvents), len(events))
	}
	for i, want := range wantEvents {
		if events[i].Event != want {
			t.Errorf("Event %d = %s, want %s", i, events[i].Event, want)
		}
		if events[i].RunID != session.RunID {
			t.Errorf("Event %d has run ID %q", i, events[i].RunID)
		}
		if events[i].Ts == "" {
			t.Errorf("Event %d has no timestamp", i)
		}
	}

	if events[1].Source != "sidecar" || events[1].Dest != "/a/2021_01_01__00_00_00__A.jpg" {
		t.Errorf("Unexpected renamed event: %+v", events[1])
	}
	end := events[len(events)-1]
	if end.Planned != 3 || end.RenamedMedia != 1 || end.RenamedSidecars != 1 || end.Unresolved != 1 || end.ErrorCount != 1 {
		t.Errorf("Unexpected run_end stats: %+v", end)
	}
}
