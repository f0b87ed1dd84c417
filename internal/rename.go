package internal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// Move is one planned rename.
type Move struct {
	From    string
	To      string
	Sidecar bool
	Source  Source
}

// RenamePlan is the full set of moves for a report, checked for collisions
// before anything touches the disk.
type RenamePlan struct {
	Moves      []Move
	Unresolved []string
}

// PlanRenames computes target paths for every resolved file. Media files get
// the date prefix in place; sidecars move into a meta/ subfolder next to
// them. Files whose timestamp came from their own name are left alone.
// Two files sharing a target, or a target that already exists, fail with
// ErrCollision.
func PlanRenames(report *ResolutionReport, filenames *FilenameDateParser) (*RenamePlan, error) {
	paths := make([]string, 0, len(report.Timestamps))
	for p := range report.Timestamps {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	plan := &RenamePlan{Unresolved: append([]string(nil), report.Unresolved...)}
	sources := make(map[string]bool, len(paths))
	for _, p := range paths {
		sources[p] = true
	}

	targets := make(map[string]string, len(paths))
	for _, p := range paths {
		source, isMedia := report.Sources[p]
		if isMedia && source == SourceFilename {
			continue
		}

		dir, base := filepath.Split(p)
		prefix := filenames.Prefix(report.Timestamps[p])

		var to string
		if isMedia {
			to = filepath.Join(dir, prefix+base)
		} else {
			to = filepath.Join(dir, MetaDirName, prefix+base)
			source = SourceSidecar
		}

		if other, ok := targets[to]; ok {
			return nil, fmt.Errorf("%s and %s both rename to %s: %w", other, p, to, ErrCollision)
		}
		if sources[to] {
			return nil, fmt.Errorf("%s would replace %s: %w", p, to, ErrCollision)
		}
		if _, err := os.Lstat(to); err == nil {
			return nil, fmt.Errorf("%s would overwrite existing %s: %w", p, to, ErrCollision)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", to, err)
		}

		targets[to] = p
		plan.Moves = append(plan.Moves, Move{From: p, To: to, Sidecar: !isMedia, Source: source})
	}
	return plan, nil
}

// Describe prints the plan without applying it.
func (p *RenamePlan) Describe(w io.Writer) {
	for _, m := range p.Moves {
		fmt.Fprintf(w, "[dry-run] would rename %s → %s\n", m.From, m.To)
	}
}

// Apply performs the moves in order, creating meta/ folders on demand. The
// session may be nil when no manifest is kept.
func (p *RenamePlan) Apply(session *Session, log zerolog.Logger) (err error) {
	if session != nil {
		if err := session.LogRunStart(len(p.Moves)); err != nil {
			return err
		}
		defer func() {
			if endErr := session.LogRunEnd(); endErr != nil && err == nil {
				err = endErr
			}
		}()
		for _, u := range p.Unresolved {
			if err := session.LogUnresolved(u); err != nil {
				return err
			}
		}
	}

	for _, m := range p.Moves {
		if m.Sidecar {
			if err := os.MkdirAll(filepath.Dir(m.To), 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(m.To), err)
			}
		}
		if err := os.Rename(m.From, m.To); err != nil {
			err = fmt.Errorf("failed to rename %s to %s: %w", m.From, m.To, err)
			if session != nil {
				if logErr := session.LogError(m.From, err); logErr != nil {
					log.Debug().Err(logErr).Msg("failed to write manifest error event")
				}
			}
			return err
		}
		log.Debug().Str("from", m.From).Str("to", m.To).Msg("renamed")
		if session != nil {
			if err := session.LogRenamed(m.From, m.To, m.Sidecar, m.Source); err != nil {
				return err
			}
		}
	}
	log.Info().Int("moves", len(p.Moves)).Msg("renaming finished")
	return nil
}
