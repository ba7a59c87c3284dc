package subtitle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Sakimotor/TranslationFramework2/internal/cmnbin"
	"github.com/Sakimotor/TranslationFramework2/internal/overlay"
	"github.com/Sakimotor/TranslationFramework2/pkg/file"
	"github.com/Sakimotor/TranslationFramework2/pkg/log"
)

// SetTranslation edits one entry. An empty text restores the original. A
// translation that does not fit the record's slot is rejected and the entry
// keeps its previous value.
func (f *File) SetTranslation(offset int64, text string) error {
	if err := f.Load(); err != nil {
		return err
	}
	i, ok := f.index[offset]
	if !ok {
		return fmt.Errorf("%w 0x%08X", ErrUnknownOffset, offset)
	}

	candidate := f.entries[i]
	if text == "" {
		text = candidate.Original
	}
	candidate.Translation = text
	if _, err := cmnbin.CheckFit(candidate, f.encoding); err != nil {
		return err
	}
	f.entries[i].Translation = text
	return nil
}

// ApplyTranslations sets translations keyed by offset. Entries that cannot
// take their translation are skipped and reported together.
func (f *File) ApplyTranslations(translations map[int64]string) (int, error) {
	if err := f.Load(); err != nil {
		return 0, err
	}

	var errs []error
	applied := 0
	for offset, text := range translations {
		if err := f.SetTranslation(offset, text); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// Save writes every entry to the overlay, marks them saved and notifies the
// change listener.
func (f *File) Save() error {
	if err := f.Load(); err != nil {
		return err
	}

	changes := f.ChangesFile()
	if err := os.MkdirAll(filepath.Dir(changes), 0o755); err != nil {
		return fmt.Errorf("create changes folder: %w", err)
	}

	lock := flock.New(f.lockFile())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock overlay: %w", err)
	}
	defer lock.Unlock()

	if err := overlay.Save(changes, f.entries); err != nil {
		return err
	}

	for i := range f.entries {
		f.entries[i].Saved = f.entries[i].Translation
	}
	f.fromOverlay = true
	log.Info("Saved %d entries of %s to %s", len(f.entries), f.relativePath, changes)

	if f.onChanged != nil {
		f.onChanged(f)
	}
	return nil
}

// RebuildResult describes a finished rebuild.
type RebuildResult struct {
	OutputPath string
	Entries    int // entries found by the re-scan
	Patched    int // slots rewritten
}

// Rebuild writes a translated copy of the asset to outputDir/RelativePath.
// The copy is re-scanned rather than trusting the loaded offsets, and the
// loaded entries must match that scan. The output only appears once every
// slot has been written; on failure nothing is left behind.
func (f *File) Rebuild(outputDir string) (res RebuildResult, err error) {
	if err := f.Load(); err != nil {
		return RebuildResult{}, err
	}

	outputPath := filepath.Join(outputDir, f.relativePath)
	tmp, err := file.CopyToTemp(f.path, filepath.Dir(outputPath))
	if err != nil {
		return RebuildResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	scanned, err := cmnbin.Scan(tmp, f.layout, f.encoding)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("scan %s: %w", f.relativePath, err)
	}
	merged, err := cmnbin.Merge(scanned, f.entries)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("%s: %w", f.relativePath, err)
	}
	patched, err := cmnbin.Patch(tmp, merged, f.encoding)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("patch %s: %w", f.relativePath, err)
	}

	if err := tmp.Sync(); err != nil {
		return RebuildResult{}, fmt.Errorf("sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return RebuildResult{}, fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		return RebuildResult{}, fmt.Errorf("move output into place: %w", err)
	}

	log.Info("Rebuilt %s: %d/%d slots patched -> %s", f.relativePath, patched, len(scanned), outputPath)
	return RebuildResult{OutputPath: outputPath, Entries: len(scanned), Patched: patched}, nil
}
