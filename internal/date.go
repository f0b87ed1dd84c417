package internal

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ncruces/go-strftime"
)

// FilenameDateParser reads and writes the date prefix of renamed files.
// The same format is used both ways, which is what makes a second run
// over an already renamed archive a no-op.
type FilenameDateParser struct {
	format string
	layout string
	width  int
}

// NewFilenameDateParser prepares format for both directions. A format with
// no time layout equivalent parses nothing.
func NewFilenameDateParser(format string) *FilenameDateParser {
	p := &FilenameDateParser{format: format}
	layout, err := dateLayout(format)
	if err != nil {
		return p
	}
	ref := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	p.layout = layout
	p.width = len(strftime.Format(format, ref))
	return p
}

// dateLayout converts a strftime format to a zero-padded time layout, so
// 2021_01_02 is read back by %Y_%m_%d.
func dateLayout(format string) (string, error) {
	return strftime.Layout(format)
}

// Parse reads the prefix of the base name of path. A name that is too short
// or does not parse yields ErrNotFound.
func (p *FilenameDateParser) Parse(path string) (time.Time, error) {
	name := filepath.Base(path)
	if p.width == 0 || len(name) < p.width {
		return time.Time{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	t, err := time.Parse(p.layout, name[:p.width])
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: no %q prefix: %w", name, p.format, ErrNotFound)
	}
	return t.UTC(), nil
}

// Prefix renders t in UTC.
func (p *FilenameDateParser) Prefix(t time.Time) string {
	return strftime.Format(p.format, t.UTC())
}
