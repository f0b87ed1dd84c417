package internal

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Source is where a media file's timestamp came from. The empty Source
// means every source was tried and none could resolve the file.
type Source string

const (
	SourceNone     Source = ""
	SourceFilename Source = "filename"
	SourceSidecar  Source = "sidecar"
	SourceExif     Source = "exif"
)

// Resolution is the outcome for a single media file.
type Resolution struct {
	Path   string
	Time   time.Time
	Source Source

	// Match is set when a sidecar provided the timestamp.
	Match *SidecarMatch
	// Tag is the embedded tag used when Source is SourceExif.
	Tag string

	SidecarMissing bool
	ToolFailed     bool
}

func (r Resolution) Resolved() bool { return r.Source != SourceNone }

// Progress is advanced once per media file.
type Progress interface {
	Add(num int) error
}

type ResolverOptions struct {
	// SkipSidecars disables sidecar lookups entirely.
	SkipSidecars bool
	// Workers is how many files are resolved at once. 1 means strictly
	// sequential in index order.
	Workers int
}

// Resolver drives the timestamp sources for every media file of an index:
// filename prefix, then sidecar, then embedded metadata. The first source
// that answers wins.
type Resolver struct {
	index     *FileSetIndex
	filenames *FilenameDateParser
	sidecars  *SidecarResolver
	embedded  *EmbeddedReader
	opts      ResolverOptions
	progress  Progress
	log       zerolog.Logger
}

func NewResolver(index *FileSetIndex, filenames *FilenameDateParser, embedded *EmbeddedReader, opts ResolverOptions, log zerolog.Logger) *Resolver {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Resolver{
		index:     index,
		filenames: filenames,
		sidecars:  NewSidecarResolver(index),
		embedded:  embedded,
		opts:      opts,
		log:       log,
	}
}

// WithProgress reports per-file progress to p.
func (r *Resolver) WithProgress(p Progress) *Resolver {
	r.progress = p
	return r
}

// ResolveFile runs the fallback chain for one media file. Only hard errors
// are returned; soft failures are recorded on the Resolution.
func (r *Resolver) ResolveFile(ctx context.Context, path string) (Resolution, error) {
	res := Resolution{Path: path}

	if t, err := r.filenames.Parse(path); err == nil {
		res.Time, res.Source = t, SourceFilename
		return res, nil
	}

	if !r.opts.SkipSidecars {
		if match, ok := r.sidecars.Resolve(path); ok {
			t, err := ReadSidecarTimestamp(match.Sidecar)
			if err != nil {
				return res, &ResolveError{Path: path, Source: SourceSidecar, Err: err}
			}
			res.Time, res.Source, res.Match = t, SourceSidecar, &match
			return res, nil
		}
		res.SidecarMissing = true
		r.log.Debug().Str("path", path).Msg("json file not found, trying embedded metadata")
	}

	return r.readEmbedded(ctx, res)
}

// readEmbedded is the last source of the chain.
func (r *Resolver) readEmbedded(ctx context.Context, res Resolution) (Resolution, error) {
	if r.embedded == nil {
		return res, nil
	}
	path := res.Path
	t, tag, err := r.embedded.Read(ctx, path)
	switch {
	case err == nil:
		res.Time, res.Source, res.Tag = t, SourceExif, tag
	case errors.Is(err, ErrToolInvocation):
		res.ToolFailed = true
	case errors.Is(err, ErrNotFound):
	default:
		return res, &ResolveError{Path: path, Source: SourceExif, Err: err}
	}
	return res, nil
}

// Run resolves every media file of the index. On a hard error the partially
// filled report is returned together with the error.
func (r *Resolver) Run(ctx context.Context) (*ResolutionReport, error) {
	media := r.index.Media()
	report := NewResolutionReport(len(media))

	r.log.Info().
		Int("media", len(media)).
		Int("sidecars", len(r.index.Sidecars())).
		Int("workers", r.opts.Workers).
		Msg("resolving timestamps")

	var err error
	if r.opts.Workers == 1 {
		err = r.runSequential(ctx, media, report)
	} else {
		err = r.runParallel(ctx, media, report)
	}
	report.finish(r.index)

	if err != nil {
		r.log.Error().Err(err).Int("visited", report.Visited).Msg("resolution halted")
		return report, err
	}
	r.log.Info().Int("resolved", report.ResolvedCount()).Int("unresolved", len(report.Unresolved)).Msg("resolution finished")
	return report, nil
}

func (r *Resolver) runSequential(ctx context.Context, media []string, report *ResolutionReport) error {
	for _, path := range media {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.resolveInto(ctx, path, report); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) runParallel(ctx context.Context, media []string, report *ResolutionReport) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, path := range media {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return r.resolveInto(gctx, path, report)
		})
	}
	return g.Wait()
}

func (r *Resolver) resolveInto(ctx context.Context, path string, report *ResolutionReport) error {
	res, err := r.ResolveFile(ctx, path)
	if err != nil {
		return err
	}
	err = report.Record(res)
	if errors.Is(err, ErrSidecarClaimed) {
		r.log.Warn().Str("path", path).Err(err).Msg("sidecar documents another file, trying embedded metadata")
		res, err = r.readEmbedded(ctx, Resolution{Path: path, SidecarMissing: true})
		if err != nil {
			return err
		}
		err = report.Record(res)
	}
	if err != nil {
		return err
	}
	if !res.Resolved() {
		r.log.Warn().Str("path", path).Msg("no timestamp found")
	}
	if r.progress != nil {
		if err := r.progress.Add(1); err != nil {
			r.log.Debug().Err(err).Msg("progress update failed")
		}
	}
	return nil
}
