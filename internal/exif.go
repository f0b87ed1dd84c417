package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"
	exifscan "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
)

// exifDateFormat is how exiftool and EXIF render dates. Only the first 19
// characters of a tag value are parsed, which drops sub-seconds and zones.
const exifDateFormat = "%Y:%m:%d %H:%M:%S"

const exifDateWidth = 19

// TagPreferences lists embedded tags by priority. Lists are tried in the
// order Create, GPS, Modify and tags within a list in their listed order.
type TagPreferences struct {
	Create []string `mapstructure:"create" toml:"create"`
	GPS    []string `mapstructure:"gps" toml:"gps"`
	Modify []string `mapstructure:"modify" toml:"modify"`
}

func DefaultTagPreferences() TagPreferences {
	return TagPreferences{
		Create: []string{
			"DateTimeOriginal",
			"SubSecDateTimeOriginal",
			"DateTimeCreated",
			"CreationDate",
			"CreateDate",
			"SubSecCreateDate",
			"DateCreated",
			"MediaCreateDate",
		},
		GPS: []string{
			"GPSDateTime",
		},
		Modify: []string{
			"SubSecModifyDate",
			"ModifyDate",
			"MediaModifyDate",
			"MetadataDate",
		},
	}
}

func (p TagPreferences) ordered() [][]string {
	return [][]string{p.Create, p.GPS, p.Modify}
}

// TagExtractor returns the full embedded tag set of one file.
type TagExtractor interface {
	ExtractTags(ctx context.Context, path string) (map[string]interface{}, error)
	Close() error
}

// EmbeddedReader resolves a timestamp from embedded metadata tags.
type EmbeddedReader struct {
	extractor TagExtractor
	tags      TagPreferences
	timeout   time.Duration
	log       zerolog.Logger
}

func NewEmbeddedReader(extractor TagExtractor, tags TagPreferences, timeout time.Duration, log zerolog.Logger) *EmbeddedReader {
	return &EmbeddedReader{
		extractor: extractor,
		tags:      tags,
		timeout:   timeout,
		log:       log,
	}
}

// Read returns the timestamp and the tag it came from. Tool failures wrap
// ErrToolInvocation and a tag set without a usable date wraps ErrNotFound.
func (r *EmbeddedReader) Read(ctx context.Context, path string) (time.Time, string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	fields, err := r.extractor.ExtractTags(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrToolInvocation) {
			err = fmt.Errorf("%v: %w", err, ErrToolInvocation)
		}
		r.log.Warn().Err(err).Str("path", path).Msg("metadata extraction failed")
		return time.Time{}, "", err
	}

	t, tag, ok := r.pick(path, fields)
	if !ok {
		r.log.Debug().Str("path", path).Msg("no create date tag found")
		return time.Time{}, "", fmt.Errorf("%s: no date tag: %w", path, ErrNotFound)
	}
	return t, tag, nil
}

func (r *EmbeddedReader) pick(path string, fields map[string]interface{}) (time.Time, string, bool) {
	for _, list := range r.tags.ordered() {
		for _, tag := range list {
			value, ok := fields[tag]
			if !ok {
				continue
			}
			t, err := ParseTagDate(fmt.Sprint(value))
			// A malformed value (e.g. 0000:00:00) does not end the search.
			if err != nil {
				r.log.Debug().Str("path", path).Str("tag", tag).Err(err).Msg("skipping unparseable date tag")
				continue
			}
			return t, tag, true
		}
	}
	return time.Time{}, "", false
}

// ParseTagDate parses the first 19 characters of an embedded date value as
// a naive UTC time.
func ParseTagDate(value string) (time.Time, error) {
	if len(value) > exifDateWidth {
		value = value[:exifDateWidth]
	}
	layout, err := dateLayout(exifDateFormat)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ExiftoolExtractor runs one long-lived exiftool process, started on first
// use. A call that outlives its context abandons the process so the next
// call starts a fresh one.
type ExiftoolExtractor struct {
	binary string
	mu     sync.Mutex
	et     *exiftool.Exiftool
}

func NewExiftoolExtractor(binary string) *ExiftoolExtractor {
	return &ExiftoolExtractor{binary: binary}
}

func (e *ExiftoolExtractor) ensure() (*exiftool.Exiftool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.et != nil {
		return e.et, nil
	}

	var opts []func(*exiftool.Exiftool) error
	if e.binary != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(e.binary))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %v: %w", err, ErrToolInvocation)
	}
	e.et = et
	return et, nil
}

func (e *ExiftoolExtractor) abandon(et *exiftool.Exiftool) {
	e.mu.Lock()
	if e.et == et {
		e.et = nil
	}
	e.mu.Unlock()
	go et.Close()
}

func (e *ExiftoolExtractor) ExtractTags(ctx context.Context, path string) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrToolInvocation)
	}

	et, err := e.ensure()
	if err != nil {
		return nil, err
	}

	done := make(chan []exiftool.FileMetadata, 1)
	go func() {
		done <- et.ExtractMetadata(path)
	}()

	select {
	case <-ctx.Done():
		e.abandon(et)
		return nil, fmt.Errorf("exiftool on %s: %v: %w", path, ctx.Err(), ErrToolInvocation)
	case infos := <-done:
		if len(infos) == 0 {
			return nil, fmt.Errorf("exiftool returned nothing for %s: %w", path, ErrToolInvocation)
		}
		if infos[0].Err != nil {
			return nil, fmt.Errorf("exiftool on %s: %v: %w", path, infos[0].Err, ErrToolInvocation)
		}
		return infos[0].Fields, nil
	}
}

func (e *ExiftoolExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.et == nil {
		return nil
	}
	err := e.et.Close()
	e.et = nil
	return err
}

// NativeExtractor decodes EXIF in-process and reports tags under their
// exiftool names. goexif handles JPEG and TIFF based files; anything it
// rejects is scanned for an embedded EXIF block, which covers HEIC and PNG.
type NativeExtractor struct{}

func NewNativeExtractor() *NativeExtractor { return &NativeExtractor{} }

var nativeTagNames = map[exif.FieldName]string{
	exif.DateTimeOriginal:  "DateTimeOriginal",
	exif.DateTimeDigitized: "CreateDate",
	exif.DateTime:          "ModifyDate",
}

// scannedTagNames maps raw IFD tag names to exiftool names.
var scannedTagNames = map[string]string{
	"DateTimeOriginal":  "DateTimeOriginal",
	"DateTimeDigitized": "CreateDate",
	"DateTime":          "ModifyDate",
}

func (n *NativeExtractor) ExtractTags(ctx context.Context, path string) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrToolInvocation)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrToolInvocation)
	}
	defer f.Close()

	fields, decodeErr := decodeExif(f)
	if decodeErr == nil {
		return fields, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrToolInvocation)
	}
	fields, err = scanExif(f)
	if err != nil {
		return nil, fmt.Errorf("exif decode %s: %v: %w", path, decodeErr, ErrToolInvocation)
	}
	return fields, nil
}

func decodeExif(r io.Reader) (map[string]interface{}, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	for field, name := range nativeTagNames {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		if s, err := tag.StringVal(); err == nil && s != "" {
			fields[name] = s
		}
	}
	if gps, ok := nativeGPSDateTime(x); ok {
		fields["GPSDateTime"] = gps
	}
	return fields, nil
}

// scanExif searches the whole stream for an EXIF block and reads the date
// tags from every IFD in it.
func scanExif(r io.Reader) (map[string]interface{}, error) {
	rawExif, err := exifscan.SearchAndExtractExifWithReader(r)
	if err != nil {
		return nil, err
	}
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, err
	}
	_, index, err := exifscan.Collect(im, exifscan.NewTagIndex(), rawExif)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	for tagName, name := range scannedTagNames {
		for _, ifd := range index.Ifds {
			results, err := ifd.FindTagWithName(tagName)
			if err != nil || len(results) == 0 {
				continue
			}
			value, err := results[0].Value()
			if err != nil {
				continue
			}
			if s, ok := value.(string); ok && s != "" {
				fields[name] = s
				break
			}
		}
	}
	return fields, nil
}

// nativeGPSDateTime joins GPSDateStamp and the GPSTimeStamp rationals the
// way exiftool's composite GPSDateTime does.
func nativeGPSDateTime(x *exif.Exif) (string, bool) {
	dateTag, err := x.Get(exif.GPSDateStamp)
	if err != nil {
		return "", false
	}
	date, err := dateTag.StringVal()
	if err != nil || date == "" {
		return "", false
	}
	timeTag, err := x.Get(exif.GPSTimeStamp)
	if err != nil {
		return "", false
	}

	var hms [3]int64
	for i := range hms {
		num, den, err := timeTag.Rat2(i)
		if err != nil || den == 0 {
			return "", false
		}
		hms[i] = num / den
	}
	return fmt.Sprintf("%s %02d:%02d:%02dZ", date, hms[0], hms[1], hms[2]), true
}

func (n *NativeExtractor) Close() error { return nil }

var (
	_ TagExtractor = (*ExiftoolExtractor)(nil)
	_ TagExtractor = (*NativeExtractor)(nil)
)
