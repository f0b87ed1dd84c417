package internal

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestResolver(t *testing.T, root string, fake *fakeExtractor, opts ResolverOptions) *Resolver {
	t.Helper()
	index, err := ScanArchive(root, nil)
	if err != nil {
		t.Fatalf("ScanArchive failed: %v", err)
	}
	var embedded *EmbeddedReader
	if fake != nil {
		embedded = NewEmbeddedReader(fake, DefaultTagPreferences(), time.Second, zerolog.Nop())
	}
	return NewResolver(index, NewFilenameDateParser(DefaultDateFormat), embedded, opts, zerolog.Nop())
}

func TestResolver_SidecarAndEmbedded(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"A.jpg":      "a",
		"A.jpg.json": `{"photoTakenTime": {"timestamp": "1609459200"}}`,
		"B.jpg":      "b",
	})
	a := filepath.Join(root, "A.jpg")
	b := filepath.Join(root, "B.jpg")
	fake := &fakeExtractor{tags: map[string]map[string]interface{}{
		b: {"CreateDate": "2021:01:02 03:04:05"},
	}}

	report, err := newTestResolver(t, root, fake, ResolverOptions{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if want := time.Unix(1609459200, 0).UTC(); !report.Timestamps[a].Equal(want) {
		t.Errorf("A = %s, want %s", report.Timestamps[a], want)
	}
	if want := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC); !report.Timestamps[b].Equal(want) {
		t.Errorf("B = %s, want %s", report.Timestamps[b], want)
	}
	if report.Sources[a] != SourceSidecar || report.Sources[b] != SourceExif {
		t.Errorf("Sources = %v", report.Sources)
	}
	if len(report.Unresolved) != 0 {
		t.Errorf("Expected no unresolved files, got %v", report.Unresolved)
	}
	if !reflect.DeepEqual(report.SidecarMissing, []string{b}) {
		t.Errorf("SidecarMissing = %v, want [%s]", report.SidecarMissing, b)
	}
	if !report.Timestamps[a+".json"].Equal(report.Timestamps[a]) {
		t.Error("The sidecar should carry the timestamp of its media file")
	}
	if n := fake.calls.Load(); n != 1 {
		t.Errorf("Expected one extractor call (for B only), got %d", n)
	}
}

func TestResolver_FilenamePrefixShortCircuits(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"2020_05_05__10_00_00__C.jpg":      "c",
		"2020_05_05__10_00_00__C.jpg.json": `{"photoTakenTime": {"timestamp": "1609459200"}}`,
	})
	c := filepath.Join(root, "2020_05_05__10_00_00__C.jpg")
	fake := &fakeExtractor{}

	report, err := newTestResolver(t, root, fake, ResolverOptions{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if want := time.Date(2020, 5, 5, 10, 0, 0, 0, time.UTC); !report.Timestamps[c].Equal(want) {
		t.Errorf("C = %s, want %s", report.Timestamps[c], want)
	}
	if report.Sources[c] != SourceFilename {
		t.Errorf("Source = %s, want filename", report.Sources[c])
	}
	if fake.calls.Load() != 0 {
		t.Error("Embedded metadata must not be read for a dated file name")
	}
	if len(report.UnclaimedSidecars) != 1 {
		t.Errorf("Expected the unused sidecar to be reported, got %v", report.UnclaimedSidecars)
	}
}

func TestResolver_CorruptSidecarHalts(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"A.jpg":      "a",
		"A.jpg.json": `{}`,
		"B.jpg":      "b",
	})
	fake := &fakeExtractor{}

	report, err := newTestResolver(t, root, fake, ResolverOptions{}).Run(context.Background())
	if !errors.Is(err, ErrDataCorruption) {
		t.Fatalf("Expected ErrDataCorruption, got %v", err)
	}
	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("Expected a *ResolveError, got %T", err)
	}
	if resolveErr.Path != filepath.Join(root, "A.jpg") || resolveErr.Source != SourceSidecar {
		t.Errorf("Error points at %s (%s)", resolveErr.Path, resolveErr.Source)
	}
	if resolveErr.Severity() != ErrorSeverityCritical {
		t.Errorf("Severity = %s", resolveErr.Severity())
	}
	if report == nil {
		t.Fatal("Expected the partial report to be returned")
	}
	if report.Visited != 0 {
		t.Errorf("Expected the run to stop at A.jpg, visited %d", report.Visited)
	}
	if fake.calls.Load() != 0 {
		t.Error("B.jpg must not be processed after the halt")
	}
}

func TestResolver_SidecarClaimedTwice(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"PXL_20340101_011252088._exported_755_1628556579337.jpg": "a",
		"PXL_20340101_011252088._exported_755_1628556579999.jpg": "b",
		"PXL_20340101_011252088._exported_755_162855657.json":    `{"photoTakenTime": {"timestamp": "1609459200"}}`,
		"Z.jpg": "z",
	})
	first := filepath.Join(root, "PXL_20340101_011252088._exported_755_1628556579337.jpg")
	second := filepath.Join(root, "PXL_20340101_011252088._exported_755_1628556579999.jpg")
	fake := &fakeExtractor{tags: map[string]map[string]interface{}{
		second:                       {"DateTimeOriginal": "2019:05:06 07:08:09"},
		filepath.Join(root, "Z.jpg"): {"CreateDate": "2018:01:01 00:00:00"},
	}}

	report, err := newTestResolver(t, root, fake, ResolverOptions{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Visited != 3 {
		t.Errorf("Visited = %d, want 3", report.Visited)
	}
	if report.Sources[first] != SourceSidecar {
		t.Errorf("First claimant source = %q", report.Sources[first])
	}
	if report.Sources[second] != SourceExif {
		t.Errorf("Second claimant source = %q, want exif", report.Sources[second])
	}
	if want := time.Date(2019, 5, 6, 7, 8, 9, 0, time.UTC); !report.Timestamps[second].Equal(want) {
		t.Errorf("Second claimant = %s, want %s", report.Timestamps[second], want)
	}
	if !reflect.DeepEqual(report.SidecarMissing, []string{second, filepath.Join(root, "Z.jpg")}) {
		t.Errorf("SidecarMissing = %v", report.SidecarMissing)
	}
	if owner, _ := report.Owner(filepath.Join(root, "PXL_20340101_011252088._exported_755_162855657.json")); owner != first {
		t.Errorf("Owner = %s, want %s", owner, first)
	}
}

func TestResolver_TruncatedDuplicatePair(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"PXL_20340101_011252088._exported_755_1628556579337.jpg":    "a",
		"PXL_20340101_011252088._exported_755_1628556579337(1).jpg": "b",
		"PXL_20340101_011252088._exported_755_162855657.json":       `{"photoTakenTime": {"timestamp": "1609459200"}}`,
		"PXL_20340101_011252088._exported_755_162855657(1).json":    `{"photoTakenTime": {"timestamp": "1609462800"}}`,
		"Z.jpg": "z",
	})
	path := func(name string) string { return filepath.Join(root, name) }

	for _, workers := range []int{1, 4} {
		t.Run(strconv.Itoa(workers), func(t *testing.T) {
			report, err := newTestResolver(t, root, nil, ResolverOptions{Workers: workers}).Run(context.Background())
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			want := map[string]time.Time{
				"PXL_20340101_011252088._exported_755_1628556579337.jpg":    time.Unix(1609459200, 0).UTC(),
				"PXL_20340101_011252088._exported_755_1628556579337(1).jpg": time.Unix(1609462800, 0).UTC(),
			}
			for name, ts := range want {
				if got := report.Timestamps[path(name)]; !got.Equal(ts) {
					t.Errorf("%s = %s, want %s", name, got, ts)
				}
			}
			if report.Visited != 3 || !reflect.DeepEqual(report.Unresolved, []string{path("Z.jpg")}) {
				t.Errorf("Visited %d, unresolved %v", report.Visited, report.Unresolved)
			}
			if len(report.UnclaimedSidecars) != 0 {
				t.Errorf("UnclaimedSidecars = %v", report.UnclaimedSidecars)
			}
		})
	}
}

func TestResolver_SharedSidecars(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"IMG_100.jpg":        "a",
		"IMG_100-edited.jpg": "b",
		"IMG_100.jpg.json":   `{"photoTakenTime": {"timestamp": "1609459200"}}`,
		"IMG_1637.HEIC":      "c",
		"IMG_1637.MP4":       "d",
		"IMG_1637.HEIC.json": `{"photoTakenTime": {"timestamp": "1600000000"}}`,
		"PXL_X.MP":           "e",
		"PXL_X.MP.jpg":       "f",
		"PXL_X.MP.jpg.json":  `{"photoTakenTime": {"timestamp": "1500000000"}}`,
	})
	path := func(name string) string { return filepath.Join(root, name) }

	report, err := newTestResolver(t, root, nil, ResolverOptions{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	pairs := [][2]string{
		{"IMG_100-edited.jpg", "IMG_100.jpg"},
		{"IMG_1637.MP4", "IMG_1637.HEIC"},
		{"PXL_X.MP", "PXL_X.MP.jpg"},
	}
	for _, p := range pairs {
		if !report.Timestamps[path(p[0])].Equal(report.Timestamps[path(p[1])]) {
			t.Errorf("%s = %s, %s = %s, expected equal", p[0], report.Timestamps[path(p[0])], p[1], report.Timestamps[path(p[1])])
		}
		owner, ok := report.Owner(path(p[1]) + ".json")
		if !ok || owner != path(p[1]) {
			t.Errorf("Owner of %s.json = %q, want %s", p[1], owner, p[1])
		}
	}
	if len(report.Unresolved) != 0 || len(report.UnclaimedSidecars) != 0 {
		t.Errorf("Unresolved %v, unclaimed %v", report.Unresolved, report.UnclaimedSidecars)
	}
}

func TestResolver_SkipSidecars(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"A.jpg":      "a",
		"A.jpg.json": `{"photoTakenTime": {"timestamp": "1609459200"}}`,
	})
	a := filepath.Join(root, "A.jpg")
	fake := &fakeExtractor{tags: map[string]map[string]interface{}{
		a: {"DateTimeOriginal": "2010:10:10 10:10:10"},
	}}

	report, err := newTestResolver(t, root, fake, ResolverOptions{SkipSidecars: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Sources[a] != SourceExif {
		t.Errorf("Source = %s, want exif", report.Sources[a])
	}
	if len(report.SidecarMissing) != 0 {
		t.Errorf("Sidecar lookups were skipped, nothing should be missing: %v", report.SidecarMissing)
	}
}

func TestResolver_ToolFailureLeavesFileUnresolved(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"B.jpg": "b"})
	b := filepath.Join(root, "B.jpg")
	fake := &fakeExtractor{err: errors.New("exit status 1")}

	report, err := newTestResolver(t, root, fake, ResolverOptions{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Tool failures must not halt the run: %v", err)
	}
	if !reflect.DeepEqual(report.ToolFailures, []string{b}) {
		t.Errorf("ToolFailures = %v", report.ToolFailures)
	}
	if !reflect.DeepEqual(report.Unresolved, []string{b}) {
		t.Errorf("Unresolved = %v", report.Unresolved)
	}
	if report.Counts[SourceNone] != 1 {
		t.Errorf("Counts = %v", report.Counts)
	}
}

func TestResolver_ParallelMatchesSequential(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	tags := map[string]map[string]interface{}{}
	for i := 0; i < 20; i++ {
		name := "IMG_" + string(rune('A'+i)) + ".jpg"
		files[name] = name
		if i%2 == 0 {
			files[name+".json"] = `{"photoTakenTime": {"timestamp": ` + strconv.Itoa(1577836800+i*86400) + `}}`
		} else {
			tags[filepath.Join(root, name)] = map[string]interface{}{"CreateDate": "2019:06:01 12:00:00"}
		}
	}
	writeFiles(t, root, files)

	sequential, err := newTestResolver(t, root, &fakeExtractor{tags: tags}, ResolverOptions{Workers: 1}).Run(context.Background())
	if err != nil {
		t.Fatalf("Sequential run failed: %v", err)
	}
	parallel, err := newTestResolver(t, root, &fakeExtractor{tags: tags}, ResolverOptions{Workers: 4}).Run(context.Background())
	if err != nil {
		t.Fatalf("Parallel run failed: %v", err)
	}

	if !reflect.DeepEqual(sequential.Timestamps, parallel.Timestamps) {
		t.Errorf("Timestamps differ between sequential and parallel runs")
	}
	if !reflect.DeepEqual(sequential.Counts, parallel.Counts) {
		t.Errorf("Counts differ: %v vs %v", sequential.Counts, parallel.Counts)
	}
	if parallel.Visited != 20 {
		t.Errorf("Visited = %d, want 20", parallel.Visited)
	}
}

func TestResolver_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"A.jpg":      "a",
		"A.jpg.json": `{"photoTakenTime": {"timestamp": "1609459200"}}`,
	})
	resolver := newTestResolver(t, root, nil, ResolverOptions{})

	first, err := resolver.Run(context.Background())
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	second, err := resolver.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if !reflect.DeepEqual(first.Timestamps, second.Timestamps) {
		t.Errorf("Runs disagree: %v vs %v", first.Timestamps, second.Timestamps)
	}
}

func TestResolver_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"A.jpg": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestResolver(t, root, nil, ResolverOptions{}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

type countingProgress struct{ n int }

func (c *countingProgress) Add(n int) error {
	c.n += n
	return nil
}

func TestResolver_Progress(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"A.jpg": "a", "B.jpg": "b", "B.jpg.json": `{"photoTakenTime": {"timestamp": 1}}`})
	progress := &countingProgress{}

	if _, err := newTestResolver(t, root, nil, ResolverOptions{}).WithProgress(progress).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if progress.n != 2 {
		t.Errorf("Progress advanced %d times, want 2", progress.n)
	}
}

// failingProgress rejects every update, like a bar whose writer is gone.
type failingProgress struct{ calls int }

func (p *failingProgress) Add(num int) error {
	p.calls += num
	return errors.New("progress bar closed")
}

func TestResolver_ProgressFailureIsIgnored(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"A.jpg":      "a",
		"A.jpg.json": `{"photoTakenTime": {"timestamp": "1609459200"}}`,
		"B.jpg":      "b",
	})

	progress := &failingProgress{}
	report, err := newTestResolver(t, root, nil, ResolverOptions{}).WithProgress(progress).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if progress.calls != 2 || report.Visited != 2 {
		t.Errorf("Progress calls %d, visited %d", progress.calls, report.Visited)
	}
}
