// Package transfer copies or moves the files of one directory between two
// stores, so data can migrate between a local directory, a storage zone and
// an S3 bucket through the same capability set.
package transfer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/3leaps/zonestore/pkg/match"
	"github.com/3leaps/zonestore/pkg/output"
	"github.com/3leaps/zonestore/pkg/provider"
)

// Transfer modes.
const (
	ModeCopy = "copy"
	ModeMove = "move"
)

// OnExists policies.
const (
	OnExistsSkip      = "skip"
	OnExistsOverwrite = "overwrite"
	OnExistsFail      = "fail"
)

// Compare strategies used when OnExists is "skip".
const (
	// CompareKey skips any target key that already exists.
	CompareKey = "key"

	// CompareChecksum skips only when the target holds identical bytes and
	// overwrites it otherwise.
	CompareChecksum = "checksum"
)

// Skip reasons reported in output.SkipRecord.
const (
	ReasonExists    = "on_exists.skip"
	ReasonIdentical = "identical"
	ReasonDryRun    = "dry_run"
	ReasonSameKey   = "same_key"
)

// Config controls a Transfer.
type Config struct {
	// SourcePrefix is the directory read from the source store.
	SourcePrefix string

	// TargetPrefix is the directory written in the target store. It is
	// ignored when PathTemplate is set.
	TargetPrefix string

	Mode         string // copy | move
	OnExists     string // skip | overwrite | fail
	Compare      string // key | checksum
	PathTemplate string

	// Concurrency is the number of files in flight.
	Concurrency int

	// RateLimit caps files started per second. Zero means unlimited.
	RateLimit float64

	// ValidateSize compares the listed size with the bytes read.
	ValidateSize bool

	// DryRun lists and matches but reports every file as skipped.
	DryRun bool

	// Filter narrows the listing by metadata. Nil keeps every file.
	Filter match.Filter
}

// DefaultConfig returns the defaults applied by New.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeCopy,
		OnExists:    OnExistsSkip,
		Compare:     CompareChecksum,
		Concurrency: 4,
	}
}

// Validate checks enum fields and the path template.
func (c Config) Validate() error {
	switch c.Mode {
	case "", ModeCopy, ModeMove:
	default:
		return fmt.Errorf("unknown mode %q (expected copy or move)", c.Mode)
	}
	switch c.OnExists {
	case "", OnExistsSkip, OnExistsOverwrite, OnExistsFail:
	default:
		return fmt.Errorf("unknown on_exists %q (expected skip, overwrite or fail)", c.OnExists)
	}
	switch c.Compare {
	case "", CompareKey, CompareChecksum:
	default:
		return fmt.Errorf("unknown compare %q (expected key or checksum)", c.Compare)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if _, err := CompilePathTemplate(c.PathTemplate); err != nil {
		return fmt.Errorf("path template: %w", err)
	}
	return nil
}

// Writer receives per-file outcomes. *output.JSONLWriter implements it.
type Writer interface {
	WriteResult(ctx context.Context, r *output.ResultRecord) error
	WriteSkip(ctx context.Context, s *output.SkipRecord) error
	WriteError(ctx context.Context, e *output.ErrorRecord) error
}

// Summary totals a finished run.
type Summary struct {
	ObjectsListed      int64
	ObjectsMatched     int64
	ObjectsTransferred int64
	ObjectsSkipped     int64
	BytesTransferred   int64
	Errors             int64
	Duration           time.Duration
}

// Transfer moves the matched files of one directory from src to dst.
type Transfer struct {
	src     provider.Store
	dst     provider.Store
	matcher *match.Matcher
	writer  Writer
	cfg     Config
	mapper  *PathTemplate
	limiter *rate.Limiter

	listed      atomic.Int64
	matched     atomic.Int64
	transferred atomic.Int64
	skipped     atomic.Int64
	bytes       atomic.Int64
	errors      atomic.Int64
}

// New validates cfg, fills in defaults and returns a Transfer. A nil matcher
// matches every key.
func New(src, dst provider.Store, matcher *match.Matcher, writer Writer, cfg Config) (*Transfer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.OnExists == "" {
		cfg.OnExists = def.OnExists
	}
	if cfg.Compare == "" {
		cfg.Compare = def.Compare
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = def.Concurrency
	}
	cfg.SourcePrefix = provider.NormalizePrefix(cfg.SourcePrefix)
	cfg.TargetPrefix = provider.NormalizePrefix(cfg.TargetPrefix)

	t := &Transfer{src: src, dst: dst, matcher: matcher, writer: writer, cfg: cfg}
	if cfg.PathTemplate != "" {
		// Validate compiled it once already.
		t.mapper, _ = CompilePathTemplate(cfg.PathTemplate)
	}
	if cfg.RateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return t, nil
}

// item is one matched source file.
type item struct {
	srcKey string
	dstKey string
	size   int64 // -1 when unknown
}

// Run lists the source directory and transfers every matched file.
//
// Per-file failures are reported to the writer and counted; they do not stop
// the run. A listing failure or cancellation aborts it and is returned.
func (t *Transfer) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan item, t.cfg.Concurrency*2)

	g.Go(func() error {
		defer close(work)
		return t.list(gctx, work)
	})

	for i := 0; i < t.cfg.Concurrency; i++ {
		g.Go(func() error {
			for it := range work {
				if err := t.transferOne(gctx, it); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					t.errors.Add(1)
					_ = t.writer.WriteError(context.WithoutCancel(gctx), &output.ErrorRecord{
						Op:      t.cfg.Mode,
						Key:     it.srcKey,
						Code:    classifyErrCode(err),
						Message: err.Error(),
					})
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return t.summary(time.Since(start)), err
}

// list pages through the source directory and queues matched files.
func (t *Transfer) list(ctx context.Context, out chan<- item) error {
	withMeta := t.cfg.ValidateSize || (t.cfg.Filter != nil && t.cfg.Filter.RequiresMetadata())
	opts := provider.ListOptions{Prefix: t.cfg.SourcePrefix, IncludeMetadata: withMeta}

	for {
		page, err := t.src.List(ctx, opts)
		if err != nil {
			return err
		}
		for _, entry := range page.Files {
			t.listed.Add(1)

			entry.Key = provider.StoreKey(t.src, entry.Key)
			if t.matcher != nil && !t.matcher.Match(entry.Key) {
				continue
			}
			if t.cfg.Filter != nil && !t.cfg.Filter.Match(entry) {
				continue
			}
			t.matched.Add(1)

			it := item{srcKey: entry.Key, size: -1}
			if t.cfg.ValidateSize && entry.Metadata != nil {
				it.size = entry.Metadata.Size
			}
			select {
			case out <- it:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if page.Cursor == "" {
			return nil
		}
		opts.Cursor = page.Cursor
	}
}

// TargetKey returns the target key for srcKey.
func (t *Transfer) TargetKey(srcKey string) (string, error) {
	if t.mapper != nil {
		return t.mapper.Apply(srcKey)
	}
	return t.cfg.TargetPrefix + provider.BaseName(srcKey), nil
}

func (t *Transfer) transferOne(ctx context.Context, it item) error {
	dstKey, err := t.TargetKey(it.srcKey)
	if err != nil {
		return err
	}
	it.dstKey = dstKey

	if t.src == t.dst && dstKey == it.srcKey {
		return t.skip(ctx, it, ReasonSameKey)
	}
	if t.cfg.DryRun {
		return t.skip(ctx, it, ReasonDryRun)
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var src *provider.File
	if t.cfg.OnExists != OnExistsOverwrite {
		exists, err := t.dst.Has(ctx, dstKey)
		if err != nil {
			return err
		}
		if exists {
			switch {
			case t.cfg.OnExists == OnExistsFail:
				return &ExistsError{Key: dstKey}
			case t.cfg.Compare == CompareKey:
				return t.skip(ctx, it, ReasonExists)
			}

			// Compare by content; reuse the source bytes for the copy.
			if src, err = t.read(ctx, it); err != nil {
				return err
			}
			existing, err := t.dst.Get(ctx, dstKey)
			if err != nil {
				return err
			}
			if existing != nil && provider.Checksum(existing.Data) == provider.Checksum(src.Data) {
				return t.skip(ctx, it, ReasonIdentical)
			}
		}
	}

	if src == nil {
		if src, err = t.read(ctx, it); err != nil {
			return err
		}
	}

	file := &provider.File{Name: provider.BaseName(dstKey), ContentType: src.ContentType, Data: src.Data}
	if err := t.dst.Set(ctx, dstKey, file); err != nil {
		return err
	}

	if t.cfg.Mode == ModeMove {
		if err := t.src.Remove(ctx, it.srcKey); err != nil {
			return err
		}
	}

	t.transferred.Add(1)
	t.bytes.Add(file.Size())
	return t.writer.WriteResult(ctx, &output.ResultRecord{
		Op:       t.cfg.Mode,
		Key:      dstKey,
		Source:   it.srcKey,
		Size:     file.Size(),
		Checksum: provider.Checksum(file.Data),
	})
}

// read fetches a source file and checks it against the listed size.
func (t *Transfer) read(ctx context.Context, it item) (*provider.File, error) {
	f, err := t.src.Get(ctx, it.srcKey)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, &SourceVanishedError{Key: it.srcKey}
	}
	if it.size >= 0 && it.size != f.Size() {
		return nil, &SizeMismatchError{Key: it.srcKey, Expected: it.size, Got: f.Size()}
	}
	return f, nil
}

func (t *Transfer) skip(ctx context.Context, it item, reason string) error {
	t.skipped.Add(1)
	return t.writer.WriteSkip(ctx, &output.SkipRecord{
		Op:        t.cfg.Mode,
		SourceKey: it.srcKey,
		TargetKey: it.dstKey,
		Reason:    reason,
	})
}

func (t *Transfer) summary(d time.Duration) *Summary {
	return &Summary{
		ObjectsListed:      t.listed.Load(),
		ObjectsMatched:     t.matched.Load(),
		ObjectsTransferred: t.transferred.Load(),
		ObjectsSkipped:     t.skipped.Load(),
		BytesTransferred:   t.bytes.Load(),
		Errors:             t.errors.Load(),
		Duration:           d,
	}
}
