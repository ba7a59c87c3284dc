package subtitle

import (
	"errors"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
	"github.com/Sakimotor/TranslationFramework2/internal/cmnbin"
)

// ChangesExt is appended to an asset's relative path to name its overlay.
const ChangesExt = ".changes"

// ErrUnknownOffset is returned when editing an offset that has no entry.
var ErrUnknownOffset = errors.New("subtitle: no entry at offset")

// ChangeListener is called after the overlay has been saved.
type ChangeListener func(f *File)

// Option configures a File
type Option func(*File)

func WithLayout(layout cmnbin.Layout) Option {
	return func(f *File) {
		f.layout = layout
	}
}

func WithEncoding(enc binio.Encoding) Option {
	return func(f *File) {
		f.encoding = enc
	}
}

func WithOnChanged(fn ChangeListener) Option {
	return func(f *File) {
		f.onChanged = fn
	}
}

// Stats summarizes the edit state of a file.
type Stats struct {
	Total      int `json:"total"`      // entries surfaced to the translator
	Translated int `json:"translated"` // translation differs from the original
	Unsaved    int `json:"unsaved"`    // edited since the last save
}

// File is one cmn.bin asset opened for translation. Entries come from the
// overlay when one exists, otherwise from scanning the asset. The asset
// itself is only ever read.
type File struct {
	path          string
	relativePath  string
	changesFolder string

	layout    cmnbin.Layout
	encoding  binio.Encoding
	onChanged ChangeListener

	entries     []cmnbin.Entry
	index       map[int64]int
	loaded      bool
	fromOverlay bool
}
