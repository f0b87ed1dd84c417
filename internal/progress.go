package internal

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// NewProgressBar returns a bar on stderr, or a silent one when disabled so
// callers can advance it unconditionally.
func NewProgressBar(total int, enabled bool, description string) *progressbar.ProgressBar {
	if !enabled {
		return progressbar.DefaultSilent(int64(total), description)
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)
}
