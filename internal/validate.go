package internal

import "sort"

// MetadataValidation is the result of checking sidecars against media.
type MetadataValidation struct {
	Media    int
	Sidecars int
	// Orphans are sidecars that no media file's sidecar lookup reaches.
	Orphans []string
	// Undocumented are media files without any sidecar.
	Undocumented []string
}

// ValidateMetadata checks that every sidecar in index documents some media
// file. It runs the sidecar lookup for every media file and reports the
// sidecars nothing reached, so it accepts exactly the names resolution would.
func ValidateMetadata(index *FileSetIndex) *MetadataValidation {
	resolver := NewSidecarResolver(index)
	reached := make(map[string]bool, len(index.Sidecars()))

	v := &MetadataValidation{
		Media:    len(index.Media()),
		Sidecars: len(index.Sidecars()),
	}
	for _, media := range index.Media() {
		match, ok := resolver.Resolve(media)
		if !ok {
			v.Undocumented = append(v.Undocumented, media)
			continue
		}
		reached[match.Sidecar] = true
	}
	for _, s := range index.Sidecars() {
		if !reached[s] {
			v.Orphans = append(v.Orphans, s)
		}
	}
	sort.Strings(v.Orphans)
	sort.Strings(v.Undocumented)
	return v
}
