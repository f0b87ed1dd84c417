package internal

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// SidecarExt marks a file as sidecar metadata rather than media.
	SidecarExt = ".json"
	// MetaDirName holds sidecars after a rename pass.
	MetaDirName = "meta"
	// StateDirName holds run manifests under the archive root.
	StateDirName = ".photodate"
)

// FileSetIndex is the set of media and sidecar paths under one archive root.
// It is built once and only read afterwards, so lookups are safe from
// multiple goroutines.
type FileSetIndex struct {
	Root       string
	media      []string
	sidecars   []string
	mediaSet   map[string]struct{}
	sidecarSet map[string]struct{}
}

// NewFileSetIndex builds an index from already enumerated paths.
func NewFileSetIndex(root string, media, sidecars []string) *FileSetIndex {
	idx := &FileSetIndex{
		Root:       root,
		media:      sortedCopy(media),
		sidecars:   sortedCopy(sidecars),
		mediaSet:   make(map[string]struct{}, len(media)),
		sidecarSet: make(map[string]struct{}, len(sidecars)),
	}
	for _, p := range idx.media {
		idx.mediaSet[p] = struct{}{}
	}
	for _, p := range idx.sidecars {
		idx.sidecarSet[p] = struct{}{}
	}
	return idx
}

// Media returns media paths in lexical order. Callers must not modify it.
func (i *FileSetIndex) Media() []string { return i.media }

// Sidecars returns sidecar paths in lexical order. Callers must not modify it.
func (i *FileSetIndex) Sidecars() []string { return i.sidecars }

func (i *FileSetIndex) HasMedia(path string) bool {
	_, ok := i.mediaSet[path]
	return ok
}

func (i *FileSetIndex) HasSidecar(path string) bool {
	_, ok := i.sidecarSet[path]
	return ok
}

// ScanArchive walks root recursively and splits regular files into media and
// sidecars. .DS_Store, Thumbs.db and basenames matching an ignore glob are
// skipped, as are the meta/ and state directories written by earlier runs.
func ScanArchive(root string, ignore []string) (*FileSetIndex, error) {
	ignore = mergeIgnore(ignore)
	var media, sidecars []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (d.Name() == MetaDirName || d.Name() == StateDirName) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || isIgnored(d.Name(), ignore) {
			return nil
		}

		if strings.HasSuffix(d.Name(), SidecarExt) {
			sidecars = append(sidecars, path)
		} else {
			media = append(media, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning files: %w", err)
	}
	return NewFileSetIndex(root, media, sidecars), nil
}

func isIgnored(name string, patterns []string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
