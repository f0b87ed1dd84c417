package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Takeout truncates sidecar base names to this many characters before
// appending .json.
const sidecarNameLimit = 46

var (
	// IMG_3214(1).JPG -> IMG_3214.JPG(1)
	indexSuffixRe = regexp.MustCompile(`(\(\d+\))\.(\w*)$`)
	// IMG_100-edited.jpg -> IMG_100.jpg
	editedSuffixRe = regexp.MustCompile(`-edited\.(\w*)$`)
)

// MatchStrategy names the naming heuristic that located a sidecar.
type MatchStrategy string

const (
	MatchExact       MatchStrategy = "exact"
	MatchTruncated   MatchStrategy = "truncated"
	MatchIndexMoved  MatchStrategy = "index_moved"
	MatchEdited      MatchStrategy = "edited"
	MatchMotionPhoto MatchStrategy = "motion_photo"
	MatchPairedCodec MatchStrategy = "paired_codec"
)

// Shared reports whether the sidecar documents a sibling file rather than
// the media itself. Shared matches never claim ownership of the sidecar.
func (s MatchStrategy) Shared() bool {
	switch s {
	case MatchEdited, MatchMotionPhoto, MatchPairedCodec:
		return true
	}
	return false
}

// SidecarMatch is the sidecar found for one media file.
type SidecarMatch struct {
	Media    string
	Sidecar  string
	Strategy MatchStrategy
}

// SidecarResolver finds the sidecar documenting a media file by trying the
// export's naming conventions in a fixed order.
type SidecarResolver struct {
	index *FileSetIndex
}

func NewSidecarResolver(index *FileSetIndex) *SidecarResolver {
	return &SidecarResolver{index: index}
}

// Resolve returns the first matching sidecar, or false when none of the
// heuristics finds one.
func (r *SidecarResolver) Resolve(media string) (SidecarMatch, bool) {
	dir := filepath.Dir(media)
	base := filepath.Base(media)
	ext := filepath.Ext(base)

	try := func(candidate string, strategy MatchStrategy) (SidecarMatch, bool) {
		if r.index.HasSidecar(candidate) {
			return SidecarMatch{Media: media, Sidecar: candidate, Strategy: strategy}, true
		}
		return SidecarMatch{}, false
	}

	// IMG_100.JPG -> IMG_100.JPG.json
	if m, ok := try(media+SidecarExt, MatchExact); ok {
		return m, true
	}

	// Duplicates keep their marker after truncation:
	// PXL_20340101_011252088._exported_755_1628556579337(1).jpg
	// -> PXL_20340101_011252088._exported_755_162855657(1).json
	if plain, marker, ok := splitIndex(base); ok && len(plain) > sidecarNameLimit {
		if m, ok := try(filepath.Join(dir, truncateName(plain)+marker+SidecarExt), MatchTruncated); ok {
			return m, true
		}
	}

	// PXL_20340101_011252088._exported_755_1628556579337.jpg
	// -> PXL_20340101_011252088._exported_755_162855657.json
	truncated := truncateName(base)
	if truncated != base {
		if m, ok := try(filepath.Join(dir, truncated+SidecarExt), MatchTruncated); ok {
			return m, true
		}
	}

	if moved, ok := moveIndexSuffix(truncated); ok {
		if m, ok := try(filepath.Join(dir, moved+SidecarExt), MatchIndexMoved); ok {
			return m, true
		}
	}

	if editedSuffixRe.MatchString(truncated) {
		original := editedSuffixRe.ReplaceAllString(truncated, ".$1")
		if m, ok := try(filepath.Join(dir, original+SidecarExt), MatchEdited); ok {
			return m, true
		}
	}

	// PXL_20220617_184545136.MP shares PXL_20220617_184545136.MP.jpg.json
	if strings.EqualFold(ext, ".MP") {
		if m, ok := try(media+".jpg"+SidecarExt, MatchMotionPhoto); ok {
			return m, true
		}
	}

	// IMG_1637.MP4 shares IMG_1637.HEIC.json, and IMG_0002(1).MP4 shares
	// IMG_0002.HEIC(1).json.
	if strings.EqualFold(ext, ".MP4") {
		stem := strings.TrimSuffix(media, ext)
		for _, heicExt := range []string{".HEIC", ".heic"} {
			heic := stem + heicExt
			if !r.index.HasMedia(heic) {
				continue
			}
			if m, ok := try(heic+SidecarExt, MatchPairedCodec); ok {
				return m, true
			}
			if moved, ok := moveIndexSuffix(filepath.Base(heic)); ok {
				if m, ok := try(filepath.Join(dir, moved+SidecarExt), MatchPairedCodec); ok {
					return m, true
				}
			}
		}
	}

	return SidecarMatch{}, false
}

func truncateName(name string) string {
	if len(name) <= sidecarNameLimit {
		return name
	}
	return name[:sidecarNameLimit]
}

// splitIndex removes the "(n)" duplicate marker from name and returns both
// parts: IMG(1).jpg -> IMG.jpg, (1).
func splitIndex(name string) (string, string, bool) {
	loc := indexSuffixRe.FindStringSubmatchIndex(name)
	if loc == nil {
		return "", "", false
	}
	return name[:loc[2]] + name[loc[3]:], name[loc[2]:loc[3]], true
}

func moveIndexSuffix(name string) (string, bool) {
	if !indexSuffixRe.MatchString(name) {
		return "", false
	}
	return indexSuffixRe.ReplaceAllString(name, ".$2$1"), true
}

type sidecarDocument struct {
	PhotoTakenTime *struct {
		Timestamp json.RawMessage `json:"timestamp"`
	} `json:"photoTakenTime"`
}

// ReadSidecarTimestamp returns photoTakenTime.timestamp of a sidecar as UTC.
// Any problem with a sidecar that exists is ErrDataCorruption.
func ReadSidecarTimestamp(path string) (time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read sidecar %s: %w", path, err)
	}

	var doc sidecarDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return time.Time{}, fmt.Errorf("sidecar %s is not valid JSON: %v: %w", path, err, ErrDataCorruption)
	}
	if doc.PhotoTakenTime == nil || len(doc.PhotoTakenTime.Timestamp) == 0 {
		return time.Time{}, fmt.Errorf("sidecar %s has no photoTakenTime.timestamp: %w", path, ErrDataCorruption)
	}

	t, err := parseEpoch(doc.PhotoTakenTime.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("sidecar %s: %v: %w", path, err, ErrDataCorruption)
	}
	return t, nil
}

// parseEpoch accepts a JSON number or a JSON string holding one.
func parseEpoch(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	s := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %s: %v", raw, err)
		}
		s = strings.TrimSpace(s)
	}

	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}
