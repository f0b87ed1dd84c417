package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// ResolutionReport aggregates one run. Record is safe for concurrent use;
// everything else is read after Run returns.
type ResolutionReport struct {
	mu sync.Mutex

	// Timestamps holds every resolved media path and every sidecar that
	// supplied a timestamp. Keys are written once.
	Timestamps map[string]time.Time
	// Sources holds the winning source of every visited media path.
	Sources map[string]Source
	Counts  map[Source]int

	SidecarMissing    []string
	ToolFailures      []string
	Unresolved        []string
	UnclaimedSidecars []string

	Total   int
	Visited int

	// claims maps a sidecar to the media file it documents.
	claims map[string]string
}

func NewResolutionReport(total int) *ResolutionReport {
	return &ResolutionReport{
		Timestamps: make(map[string]time.Time),
		Sources:    make(map[string]Source),
		Counts:     make(map[Source]int),
		Total:      total,
		claims:     make(map[string]string),
	}
}

// Record stores one file's outcome. It fails when the media was already
// recorded. A sidecar claimed by another media file yields ErrSidecarClaimed
// and records nothing, so the caller can retry without the sidecar.
func (r *ResolutionReport) Record(res Resolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.Sources[res.Path]; seen {
		return fmt.Errorf("media %s recorded twice", res.Path)
	}

	if m := res.Match; m != nil && !m.Strategy.Shared() {
		if owner, claimed := r.claims[m.Sidecar]; claimed && owner != res.Path {
			return &ResolveError{
				Path:   res.Path,
				Source: SourceSidecar,
				Err:    fmt.Errorf("%s (%s match) already documents %s: %w", m.Sidecar, m.Strategy, owner, ErrSidecarClaimed),
			}
		}
		r.claims[m.Sidecar] = res.Path
	}

	r.Visited++
	r.Sources[res.Path] = res.Source
	r.Counts[res.Source]++
	if res.SidecarMissing {
		r.SidecarMissing = append(r.SidecarMissing, res.Path)
	}
	if res.ToolFailed {
		r.ToolFailures = append(r.ToolFailures, res.Path)
	}
	if !res.Resolved() {
		r.Unresolved = append(r.Unresolved, res.Path)
		return nil
	}

	r.Timestamps[res.Path] = res.Time
	if res.Match != nil {
		if _, ok := r.Timestamps[res.Match.Sidecar]; !ok {
			r.Timestamps[res.Match.Sidecar] = res.Time
		}
	}
	return nil
}

// Owner returns the media file that claimed sidecar, if any.
func (r *ResolutionReport) Owner(sidecar string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.claims[sidecar]
	return owner, ok
}

// ResolvedCount is the number of media files with a timestamp.
func (r *ResolutionReport) ResolvedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Counts[SourceFilename] + r.Counts[SourceSidecar] + r.Counts[SourceExif]
}

func (r *ResolutionReport) finish(index *FileSetIndex) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sort.Strings(r.SidecarMissing)
	sort.Strings(r.ToolFailures)
	sort.Strings(r.Unresolved)

	r.UnclaimedSidecars = nil
	for _, s := range index.Sidecars() {
		if _, ok := r.Timestamps[s]; !ok {
			r.UnclaimedSidecars = append(r.UnclaimedSidecars, s)
		}
	}
}

// reportSummary is the JSON form of a report.
type reportSummary struct {
	Total             int            `json:"total"`
	Visited           int            `json:"visited"`
	Resolved          map[Source]int `json:"resolved"`
	SidecarMissing    []string       `json:"sidecar_missing"`
	ToolFailures      []string       `json:"tool_failures"`
	Unresolved        []string       `json:"unresolved"`
	UnclaimedSidecars []string       `json:"unclaimed_sidecars"`
}

// DisplayReport writes the report as a table or, with format "json", as JSON.
func DisplayReport(w io.Writer, r *ResolutionReport, format string) error {
	if format == "json" {
		return displayReportJSON(w, r)
	}
	return displayReportTable(w, r)
}

func displayReportJSON(w io.Writer, r *ResolutionReport) error {
	resolved := make(map[Source]int)
	for src, n := range r.Counts {
		if src != SourceNone {
			resolved[src] = n
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reportSummary{
		Total:             r.Total,
		Visited:           r.Visited,
		Resolved:          resolved,
		SidecarMissing:    nonNil(r.SidecarMissing),
		ToolFailures:      nonNil(r.ToolFailures),
		Unresolved:        nonNil(r.Unresolved),
		UnclaimedSidecars: nonNil(r.UnclaimedSidecars),
	})
}

func displayReportTable(w io.Writer, r *ResolutionReport) error {
	header := color.New(color.Bold)
	warn := color.New(color.FgYellow)

	header.Fprintf(w, "\nProcessed %s/%s media files\n\n", humanize.Comma(int64(r.Visited)), humanize.Comma(int64(r.Total)))
	fmt.Fprintf(w, "  %-10s %8s\n", "filename", humanize.Comma(int64(r.Counts[SourceFilename])))
	fmt.Fprintf(w, "  %-10s %8s\n", "sidecar", humanize.Comma(int64(r.Counts[SourceSidecar])))
	fmt.Fprintf(w, "  %-10s %8s\n", "exif", humanize.Comma(int64(r.Counts[SourceExif])))
	fmt.Fprintf(w, "  %-10s %8s\n", "none", humanize.Comma(int64(r.Counts[SourceNone])))

	if n := len(r.SidecarMissing); n > 0 {
		fmt.Fprintf(w, "\n%s media files had no matching sidecar\n", humanize.Comma(int64(n)))
	}
	if n := len(r.ToolFailures); n > 0 {
		warn.Fprintf(w, "%s media files could not be read by the metadata tool\n", humanize.Comma(int64(n)))
	}
	if n := len(r.UnclaimedSidecars); n > 0 {
		fmt.Fprintf(w, "%s sidecars were not matched to any media file\n", humanize.Comma(int64(n)))
	}

	if len(r.Unresolved) > 0 {
		warn.Fprintln(w, "\n=== Following media files lack both a corresponding JSON metadata file")
		warn.Fprintln(w, "=== and date information in the embedded metadata.")
		warn.Fprintln(w, "=== They will not be renamed and require manual processing.")
		for _, p := range r.Unresolved {
			fmt.Fprintf(w, "    %s\n", p)
		}
	}
	fmt.Fprintln(w)
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
