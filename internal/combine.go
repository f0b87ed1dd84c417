package internal

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// yearFolderMarker splits ".../Google Photos/Photos from 2022" into the year.
const yearFolderMarker = "Photos from "

// combineExcluded basenames are never carried into the combined tree.
var combineExcluded = map[string]bool{
	".DS_Store":            true,
	"Thumbs.db":            true,
	"archive_browser.html": true,
}

type CombineOptions struct {
	// Output is the destination root. Empty means "<root>_out".
	Output string
	// Move renames files instead of copying them.
	Move bool
	// Verify compares content hashes after every copy.
	Verify   bool
	Progress Progress
}

// CombineResult describes one combine run.
type CombineResult struct {
	Root   string
	Output string
	Moved  bool
	Files  int
	Years  []string
	// Originals counts every carried basename across all year folders.
	Originals map[string]int
}

// CombineOutputDir is the default destination for root.
func CombineOutputDir(root string) string {
	return filepath.Clean(root) + "_out"
}

// yearFolder returns what follows "Photos from " in dir, if anything.
func yearFolder(dir string) (string, bool) {
	parts := strings.SplitN(filepath.ToSlash(dir), yearFolderMarker, 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	return filepath.FromSlash(parts[1]), true
}

// CombineYearFolders flattens every "Photos from <year>" folder found under
// root, across any number of takeout parts, into <output>/<year>/. A target
// that already exists stops the run with ErrCollision.
func CombineYearFolders(root string, opts CombineOptions, log zerolog.Logger) (*CombineResult, error) {
	output := opts.Output
	if output == "" {
		output = CombineOutputDir(root)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absOutput, err := filepath.Abs(output)
	if err != nil {
		return nil, err
	}
	if rel, err := filepath.Rel(absRoot, absOutput); err == nil && !strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("output %s must not be inside %s", output, root)
	}

	type job struct{ src, dest, year string }
	var jobs []job
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || combineExcluded[d.Name()] {
			return nil
		}
		year, ok := yearFolder(filepath.Dir(path))
		if !ok {
			return nil
		}
		jobs = append(jobs, job{src: path, dest: filepath.Join(output, year, d.Name()), year: year})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning files: %w", err)
	}

	result := &CombineResult{
		Root:      root,
		Output:    output,
		Moved:     opts.Move,
		Originals: make(map[string]int),
	}
	log.Info().Str("root", root).Str("output", output).Int("files", len(jobs)).Bool("move", opts.Move).Msg("combining year folders")

	years := make(map[string]bool)
	for _, j := range jobs {
		if err := os.MkdirAll(filepath.Dir(j.dest), 0755); err != nil {
			return result, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(j.dest), err)
		}
		if _, err := os.Lstat(j.dest); err == nil {
			return result, fmt.Errorf("file already exists %s, trying to carry it from %s: %w", j.dest, j.src, ErrCollision)
		} else if !os.IsNotExist(err) {
			return result, fmt.Errorf("failed to stat %s: %w", j.dest, err)
		}

		if opts.Move {
			err = moveFile(j.src, j.dest)
		} else {
			err = copyFileAtomic(j.src, j.dest)
			if err == nil && opts.Verify {
				err = verifyCopy(j.src, j.dest)
			}
		}
		if err != nil {
			return result, fmt.Errorf("failed to carry %s to %s: %w", j.src, j.dest, err)
		}

		result.Files++
		result.Originals[filepath.Base(j.src)]++
		years[j.year] = true
		if opts.Progress != nil {
			if err := opts.Progress.Add(1); err != nil {
				log.Debug().Err(err).Msg("progress update failed")
			}
		}
		log.Debug().Str("from", j.src).Str("to", j.dest).Msg("carried")
	}

	for y := range years {
		result.Years = append(result.Years, y)
	}
	sort.Strings(result.Years)
	return result, nil
}

// ValidateCombined recounts the output tree and checks that every basename
// carried by the combine run is present exactly as many times as it was
// found in the source year folders.
func ValidateCombined(result *CombineResult) error {
	copied := make(map[string]int)
	err := filepath.WalkDir(result.Output, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || combineExcluded[d.Name()] {
			return nil
		}
		copied[d.Name()]++
		return nil
	})
	if err != nil {
		return fmt.Errorf("error scanning files: %w", err)
	}

	if len(result.Originals) != len(copied) {
		return fmt.Errorf("size mismatch for files: %d in year folders, %d in %s", len(result.Originals), len(copied), result.Output)
	}
	names := make([]string, 0, len(result.Originals))
	for name := range result.Originals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if hits := result.Originals[name]; hits != copied[name] {
			return fmt.Errorf("hits mismatch for file %s: %d in year folders, %d in %s", name, hits, copied[name], result.Output)
		}
	}
	return nil
}
