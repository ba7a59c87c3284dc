package subtitle

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/gofrs/flock"
	"golang.org/x/text/language"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
	"github.com/Sakimotor/TranslationFramework2/internal/cmnbin"
	"github.com/Sakimotor/TranslationFramework2/internal/overlay"
	"github.com/Sakimotor/TranslationFramework2/pkg/file"
	"github.com/Sakimotor/TranslationFramework2/pkg/log"
)

// NewFile prepares an asset for editing. relativePath is the asset's path
// below the game directory; it names both the overlay inside changesFolder
// and the rebuilt copy inside the output directory.
func NewFile(path, relativePath, changesFolder string, opts ...Option) *File {
	f := &File{
		path:          path,
		relativePath:  relativePath,
		changesFolder: changesFolder,
		layout:        cmnbin.DefaultLayout(),
		encoding:      binio.ShiftJIS,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *File) Path() string {
	return f.path
}

func (f *File) RelativePath() string {
	return f.relativePath
}

// ChangesFile is the overlay path for this asset.
func (f *File) ChangesFile() string {
	return filepath.Join(f.changesFolder, f.relativePath+ChangesExt)
}

func (f *File) lockFile() string {
	return file.ReplaceExt(f.ChangesFile(), ".lock")
}

// FromOverlay reports whether the entries were restored from the overlay.
func (f *File) FromOverlay() bool {
	return f.fromOverlay
}

// Load reads the entries once: from the overlay when present, otherwise by
// scanning the asset.
func (f *File) Load() error {
	if f.loaded {
		return nil
	}

	entries, fromOverlay, err := f.readEntries()
	if err != nil {
		return err
	}

	index := make(map[int64]int, len(entries))
	for i, e := range entries {
		if _, dup := index[e.Offset]; dup {
			return fmt.Errorf("%s: duplicate entry offset 0x%08X", f.relativePath, e.Offset)
		}
		index[e.Offset] = i
	}

	f.entries = entries
	f.index = index
	f.fromOverlay = fromOverlay
	f.loaded = true

	source := "scan"
	if fromOverlay {
		source = "overlay"
	}
	log.Debug("Loaded %d entries for %s from %s", len(entries), f.relativePath, source)
	return nil
}

func (f *File) readEntries() ([]cmnbin.Entry, bool, error) {
	if overlay.Exists(f.ChangesFile()) {
		entries, err := f.loadOverlay()
		if err == nil {
			return entries, true, nil
		}
		if !errors.Is(err, overlay.ErrNotFound) {
			return nil, false, err
		}
	}

	entries, err := cmnbin.ScanFile(f.path, f.layout, f.encoding)
	if err != nil {
		return nil, false, fmt.Errorf("scan %s: %w", f.relativePath, err)
	}
	return entries, false, nil
}

func (f *File) loadOverlay() ([]cmnbin.Entry, error) {
	lock := flock.New(f.lockFile())
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock overlay: %w", err)
	}
	defer lock.Unlock()

	return overlay.Load(f.ChangesFile(), f.layout)
}

// Entries returns a copy of the current entries.
func (f *File) Entries() ([]cmnbin.Entry, error) {
	if err := f.Load(); err != nil {
		return nil, err
	}
	return append([]cmnbin.Entry(nil), f.entries...), nil
}

// Entry returns the entry at offset.
func (f *File) Entry(offset int64) (cmnbin.Entry, bool) {
	if err := f.Load(); err != nil {
		return cmnbin.Entry{}, false
	}
	i, ok := f.index[offset]
	if !ok {
		return cmnbin.Entry{}, false
	}
	return f.entries[i], true
}

// Stats counts entries on demand; there is no per-edit bookkeeping. An
// asset that cannot be loaded counts as empty.
func (f *File) Stats() Stats {
	if err := f.Load(); err != nil {
		log.Debug("No stats for %s: %v", f.relativePath, err)
		return Stats{}
	}
	st := Stats{Total: len(f.entries)}
	for _, e := range f.entries {
		if e.Translated() {
			st.Translated++
		}
		if e.Changed() {
			st.Unsaved++
		}
	}
	return st
}

// ChangedCount is the number of entries edited since the last save.
func (f *File) ChangedCount() int {
	return f.Stats().Unsaved
}

func (f *File) HasChanges() bool {
	return f.ChangedCount() > 0
}

// Language guesses the language of the original texts.
func (f *File) Language() language.Tag {
	if err := f.Load(); err != nil {
		return language.Und
	}
	return detectLanguage(f.entries)
}

func detectLanguage(entries []cmnbin.Entry) language.Tag {
	if len(entries) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	for _, e := range entries {
		if strings.TrimSpace(e.Original) == "" {
			continue
		}
		counts[whatlanggo.DetectLang(e.Original).Iso6391()]++
	}

	var top string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < top) {
			top = lang
			topCount = count
		}
	}
	if top == "" {
		return language.Und
	}
	return language.All.Make(top)
}
