package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
	"github.com/Sakimotor/TranslationFramework2/internal/config"
	"github.com/Sakimotor/TranslationFramework2/internal/jobs"
	"github.com/Sakimotor/TranslationFramework2/internal/subtitle"
	"github.com/Sakimotor/TranslationFramework2/pkg/file"
	"github.com/Sakimotor/TranslationFramework2/pkg/icron"
	"github.com/Sakimotor/TranslationFramework2/pkg/log"
)

// ProjectService works on every asset of one game directory.
type ProjectService struct {
	cfg      *config.Config
	encoding binio.Encoding
	store    jobs.Store
	cron     *cron.Cron
	group    singleflight.Group
	now      func() time.Time
}

func NewProjectService(cfg *config.Config, store jobs.Store, c *cron.Cron) (*ProjectService, error) {
	if cfg == nil {
		return nil, NewError(ErrConfig, "config is required")
	}
	if store == nil {
		return nil, NewError(ErrConfig, "history store is required")
	}
	enc, err := cfg.TextEncoding()
	if err != nil {
		return nil, WrapError(err, ErrConfig, "invalid text encoding")
	}
	return &ProjectService{
		cfg:      cfg,
		encoding: enc,
		store:    store,
		cron:     c,
		now:      time.Now,
	}, nil
}

// Open returns an edit session for the asset.
func (s *ProjectService) Open(asset Asset, opts ...subtitle.Option) *subtitle.File {
	base := []subtitle.Option{
		subtitle.WithLayout(s.cfg.Layout()),
		subtitle.WithEncoding(s.encoding),
	}
	return subtitle.NewFile(asset.Path, asset.RelativePath, s.cfg.Paths.ChangesDir, append(base, opts...)...)
}

// OpenPath opens an asset given by path, relative to the game directory or
// absolute.
func (s *ProjectService) OpenPath(path string, opts ...subtitle.Option) (*subtitle.File, error) {
	asset, err := s.assetFor(path)
	if err != nil {
		return nil, err
	}
	return s.Open(asset, opts...), nil
}

func (s *ProjectService) assetFor(path string) (Asset, error) {
	full := path
	if !filepath.IsAbs(full) {
		if _, err := os.Stat(full); err != nil {
			full = filepath.Join(s.cfg.Paths.GameDir, path)
		}
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return Asset{}, err
	}
	root, err := filepath.Abs(s.cfg.Paths.GameDir)
	if err != nil {
		return Asset{}, err
	}
	rel, err := file.RelativeTo(root, abs)
	if err != nil {
		return Asset{}, NewErrorWithCause(ErrValidation, "asset is outside the game directory", err).
			WithContext("path", path).
			WithContext("game_dir", s.cfg.Paths.GameDir)
	}
	return Asset{Path: abs, RelativePath: rel}, nil
}

// Discover lists the assets below the game directory whose file name
// matches one of the configured patterns, sorted by relative path. The
// changes and output directories are never searched.
func (s *ProjectService) Discover(ctx context.Context) ([]Asset, error) {
	root := s.cfg.Paths.GameDir
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, NewErrorWithCause(ErrFileNotFound, "game directory does not exist", err).
			WithContext("game_dir", root)
	}

	skip := make(map[string]bool)
	for _, dir := range []string{s.cfg.Paths.ChangesDir, s.cfg.Paths.OutputDir, s.cfg.Paths.DataDir} {
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = true
		}
	}

	var assets []Asset
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if abs, err := filepath.Abs(path); err == nil && skip[abs] && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.matches(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		assets = append(assets, Asset{Path: path, RelativePath: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(assets, func(i, j int) bool {
		return assets[i].RelativePath < assets[j].RelativePath
	})
	log.Info("Found %d assets in %s", len(assets), root)
	return assets, nil
}

func (s *ProjectService) matches(name string) bool {
	for _, pattern := range s.cfg.Rebuild.Patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Status loads every asset and reports its progress. Assets that cannot be
// loaded are reported with their error rather than failing the listing.
func (s *ProjectService) Status(ctx context.Context) ([]AssetStatus, error) {
	assets, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}

	ret := make([]AssetStatus, 0, len(assets))
	for _, asset := range assets {
		st, err := s.assetStatus(ctx, asset)
		if err != nil {
			return nil, err
		}
		ret = append(ret, st)
	}
	return ret, nil
}

func (s *ProjectService) assetStatus(ctx context.Context, asset Asset) (AssetStatus, error) {
	st := AssetStatus{Asset: asset}
	f := s.Open(asset)

	if info, err := os.Stat(f.ChangesFile()); err == nil {
		st.HasOverlay = true
		st.OverlayTime = info.ModTime()
	}

	last, ok, err := s.store.LastSuccess(ctx, asset.RelativePath)
	if err != nil {
		return AssetStatus{}, fmt.Errorf("load rebuild history: %w", err)
	}
	if ok {
		st.LastRebuild = last
	}

	if err := f.Load(); err != nil {
		st.Error = err.Error()
		return st, nil
	}
	stats := f.Stats()
	st.Total = stats.Total
	st.Translated = stats.Translated
	return st, nil
}

// RebuildAll rebuilds every discovered asset.
func (s *ProjectService) RebuildAll(ctx context.Context, source jobs.Source) (*jobs.RebuildRun, error) {
	assets, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return s.rebuild(ctx, source, assets, func(Asset) (bool, error) { return true, nil })
}

// RebuildChanged rebuilds the assets whose overlay was saved after their
// last successful rebuild, or whose rebuilt copy is missing. Other assets
// are recorded as skipped.
func (s *ProjectService) RebuildChanged(ctx context.Context, source jobs.Source) (*jobs.RebuildRun, error) {
	assets, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return s.rebuild(ctx, source, assets, func(asset Asset) (bool, error) {
		st, err := s.assetStatus(ctx, asset)
		if err != nil {
			return false, err
		}
		if !st.HasOverlay {
			return false, nil
		}
		if st.Stale() {
			return true, nil
		}
		_, err = os.Stat(filepath.Join(s.cfg.Paths.OutputDir, asset.RelativePath))
		return errors.Is(err, fs.ErrNotExist), nil
	})
}

// RebuildAsset rebuilds a single asset as its own run.
func (s *ProjectService) RebuildAsset(ctx context.Context, asset Asset) (*jobs.RebuildRun, error) {
	return s.rebuild(ctx, jobs.SourceManual, []Asset{asset}, func(Asset) (bool, error) { return true, nil })
}

// AssetFor resolves a path given on the command line to an asset.
func (s *ProjectService) AssetFor(path string) (Asset, error) {
	return s.assetFor(path)
}

func (s *ProjectService) rebuild(
	ctx context.Context,
	source jobs.Source,
	assets []Asset,
	wanted func(Asset) (bool, error),
) (*jobs.RebuildRun, error) {
	now := s.now().UTC()
	run := &jobs.RebuildRun{
		ID:        uuid.NewString(),
		Source:    source,
		Status:    jobs.StatusRunning,
		Assets:    make([]jobs.AssetResult, len(assets)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.UpsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	log.Info("Rebuild run %s (%s) over %d assets", run.ID, source, len(assets))

	errs := make([]error, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Rebuild.Concurrency)
	for i, asset := range assets {
		i, asset := i, asset
		g.Go(func() error {
			run.Assets[i], errs[i] = s.rebuildOne(gctx, asset, wanted)
			return nil
		})
	}
	_ = g.Wait()

	failed, cancelled := 0, 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		errs[i] = fmt.Errorf("%s: %w", assets[i].RelativePath, err)
		if run.Assets[i].Status == jobs.StatusSkipped {
			cancelled++
			continue
		}
		failed++
		log.Error("Rebuild of %s failed: %v", assets[i].RelativePath, err)
	}

	run.Status = jobs.StatusSuccess
	switch {
	case cancelled > 0:
		run.Status = jobs.StatusFailed
		run.Error = fmt.Sprintf("cancelled with %d of %d assets not rebuilt", cancelled, len(assets))
		log.Warn("Rebuild run %s cancelled: %v", run.ID, ctx.Err())
	case failed > 0:
		run.Status = jobs.StatusFailed
		run.Error = fmt.Sprintf("%d of %d assets failed", failed, len(assets))
	}
	run.UpdatedAt = s.now().UTC()

	// the run result is recorded even when the caller's context is done
	if err := s.store.UpsertRun(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("record run: %w", err)
	}

	counts := run.Counts()
	log.Info("Rebuild run %s finished: %d rebuilt, %d skipped, %d failed",
		run.ID, counts[jobs.StatusSuccess], counts[jobs.StatusSkipped], counts[jobs.StatusFailed])
	return run, errors.Join(errs...)
}

func (s *ProjectService) rebuildOne(
	ctx context.Context,
	asset Asset,
	wanted func(Asset) (bool, error),
) (jobs.AssetResult, error) {
	result := jobs.AssetResult{RelativePath: asset.RelativePath, Status: jobs.StatusSkipped}
	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result, err
	}

	ok, err := wanted(asset)
	if err != nil {
		result.Status = jobs.StatusFailed
		result.Error = err.Error()
		return result, err
	}
	if !ok {
		log.Debug("Skipping %s: nothing new to rebuild", asset.RelativePath)
		return result, nil
	}

	result.StartedAt = s.now().UTC()
	res, err := s.Open(asset).Rebuild(s.cfg.Paths.OutputDir)
	if err != nil {
		result.Status = jobs.StatusFailed
		result.Error = err.Error()
		return result, err
	}
	result.Status = jobs.StatusSuccess
	result.Entries = res.Entries
	result.Patched = res.Patched
	result.OutputPath = res.OutputPath
	return result, nil
}

// History returns up to limit past runs, newest first.
func (s *ProjectService) History(ctx context.Context, limit int) ([]*jobs.RebuildRun, error) {
	return s.store.LoadRuns(ctx, limit)
}

// Schedule registers RebuildChanged on the cron. Firings that arrive while
// a run is in progress join that run instead of starting another.
func (s *ProjectService) Schedule(ctx context.Context) error {
	if s.cron == nil {
		return NewError(ErrConfig, "no cron scheduler configured")
	}

	_, err := s.cron.AddFunc(s.cfg.Rebuild.CronExpr, func() {
		_, _, _ = s.TriggerScheduled(ctx)
	})
	if err != nil {
		return WrapError(err, ErrConfig, "invalid rebuild schedule").
			WithContext("cron_expr", s.cfg.Rebuild.CronExpr)
	}
	log.Info("Scheduled rebuilds with %q", s.cfg.Rebuild.CronExpr)
	return nil
}

// Start runs the scheduler in the background.
func (s *ProjectService) Start() {
	if s.cron != nil {
		s.cron.Start()
	}
}

// Stop halts the scheduler; the returned context is done once a running
// rebuild has finished.
func (s *ProjectService) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}

// TriggerScheduled runs RebuildChanged once, collapsing concurrent calls.
// shared reports whether the result came from a run already in progress.
func (s *ProjectService) TriggerScheduled(ctx context.Context) (*jobs.RebuildRun, bool, error) {
	v, err, shared := s.group.Do("rebuild", func() (any, error) {
		return s.RebuildChanged(ctx, jobs.SourceSchedule)
	})
	if err != nil {
		log.Error("Scheduled rebuild failed: %v", err)
	}
	run, _ := v.(*jobs.RebuildRun)
	return run, shared, err
}

// NextRun describes the configured schedule relative to now.
func (s *ProjectService) NextRun() (*icron.TriggerInfo, error) {
	info, err := icron.GetTriggerInfo(s.cfg.Rebuild.CronExpr, s.now())
	if err != nil {
		return nil, WrapError(err, ErrConfig, "invalid rebuild schedule")
	}
	return info, nil
}
