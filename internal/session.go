package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session records one applied rename run as a JSONL manifest under
// <root>/.photodate/<id>/manifest.jsonl so moves can be audited or undone.
type Session struct {
	ID           string   // Directory name (timestamp: 2025-01-15-103045)
	RunID        string   // Random run identifier stamped on every event
	Root         string   // Archive root
	SessionDir   string   // Full path to session directory
	ManifestFile *os.File // Open file handle for manifest.jsonl
	stats        RenameStats
}

// RenameStats tracks statistics for a rename run
type RenameStats struct {
	Planned         int
	RenamedMedia    int
	RenamedSidecars int
	Unresolved      int
	Errors          int
}

// ManifestEvent represents a single event in the manifest log
type ManifestEvent struct {
	Event  string `json:"event"`
	Ts     string `json:"ts"`
	RunID  string `json:"run_id"`
	Src    string `json:"src,omitempty"`
	Dest   string `json:"dest,omitempty"`
	Source string `json:"source,omitempty"`
	Error  string `json:"error,omitempty"`

	// Run start/end fields
	Root            string `json:"root,omitempty"`
	Planned         int    `json:"planned,omitempty"`
	RenamedMedia    int    `json:"renamed_media,omitempty"`
	RenamedSidecars int    `json:"renamed_sidecars,omitempty"`
	Unresolved      int    `json:"unresolved,omitempty"`
	ErrorCount      int    `json:"errors,omitempty"`
}

// NewSession creates the session directory and opens its manifest.
func NewSession(root string) (*Session, error) {
	sessionID := time.Now().Format("2006-01-02-150405")
	sessionDir := filepath.Join(root, StateDirName, sessionID)

	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	manifestPath := filepath.Join(sessionDir, "manifest.jsonl")
	manifestFile, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest file: %w", err)
	}

	return &Session{
		ID:           sessionID,
		RunID:        uuid.New().String(),
		Root:         root,
		SessionDir:   sessionDir,
		ManifestFile: manifestFile,
	}, nil
}

// LogRunStart writes the run start event to manifest
func (s *Session) LogRunStart(planned int) error {
	s.stats.Planned = planned
	return s.writeEvent(ManifestEvent{
		Event:   "run_start",
		Root:    s.Root,
		Planned: planned,
	})
}

// LogRenamed logs a successful move of a media file or sidecar.
func (s *Session) LogRenamed(src, dest string, sidecar bool, source Source) error {
	event := "renamed"
	if sidecar {
		s.stats.RenamedSidecars++
		event = "renamed_sidecar"
	} else {
		s.stats.RenamedMedia++
	}
	return s.writeEvent(ManifestEvent{
		Event:  event,
		Src:    src,
		Dest:   dest,
		Source: string(source),
	})
}

// LogUnresolved logs a media file left untouched for lack of a timestamp.
func (s *Session) LogUnresolved(src string) error {
	s.stats.Unresolved++
	return s.writeEvent(ManifestEvent{Event: "unresolved", Src: src})
}

// LogError logs a failed move.
func (s *Session) LogError(src string, err error) error {
	s.stats.Errors++
	return s.writeEvent(ManifestEvent{Event: "error", Src: src, Error: err.Error()})
}

// LogRunEnd writes the run end event with the accumulated statistics.
func (s *Session) LogRunEnd() error {
	return s.writeEvent(ManifestEvent{
		Event:           "run_end",
		Planned:         s.stats.Planned,
		RenamedMedia:    s.stats.RenamedMedia,
		RenamedSidecars: s.stats.RenamedSidecars,
		Unresolved:      s.stats.Unresolved,
		ErrorCount:      s.stats.Errors,
	})
}

// GetStats returns the current session statistics
func (s *Session) GetStats() RenameStats {
	return s.stats
}

// Close closes the manifest file
func (s *Session) Close() error {
	if s.ManifestFile != nil {
		return s.ManifestFile.Close()
	}
	return nil
}

// writeEvent writes a manifest event as a JSON line
func (s *Session) writeEvent(event ManifestEvent) error {
	event.Ts = time.Now().UTC().Format(time.RFC3339)
	event.RunID = s.RunID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.ManifestFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to manifest: %w", err)
	}

	return s.ManifestFile.Sync()
}
