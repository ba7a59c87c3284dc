// Package overlay persists the edit session of one asset in a side file.
//
// Layout (little endian, strings are UTF-16LE prefixed with their byte
// length as a 7-bit encoded integer):
//
//	int32 count
//	count × { int32 kind (0 short, 1 long), int64 offset, string original, string translation }
//
// The overlay never touches the asset and is not validated against it; it is
// only meaningful for the asset version it was saved from.
package overlay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
	"github.com/Sakimotor/TranslationFramework2/internal/cmnbin"
)

var (
	// ErrNotFound is returned by Load when no overlay exists yet.
	ErrNotFound = errors.New("overlay: not found")
	// ErrCorrupt indicates a malformed overlay file.
	ErrCorrupt = errors.New("overlay: corrupt file")
)

var textEncoding = binio.UTF16LE

// Write serializes entries to w.
func Write(w io.WriteSeeker, entries []cmnbin.Entry) error {
	out, err := binio.NewWriter(w, binary.LittleEndian, textEncoding)
	if err != nil {
		return err
	}
	if err := out.WriteInt32(int32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := out.WriteInt32(int32(e.Kind)); err != nil {
			return err
		}
		if err := out.WriteInt64(e.Offset); err != nil {
			return err
		}
		if err := out.WriteString(e.Original); err != nil {
			return err
		}
		if err := out.WriteString(e.Translation); err != nil {
			return err
		}
	}
	return nil
}

// Read deserializes entries from r. Slot widths come from layout and the
// saved snapshot is initialized to the loaded translation.
func Read(r io.ReadSeeker, layout cmnbin.Layout) ([]cmnbin.Entry, error) {
	in, err := binio.NewReader(r, binary.LittleEndian, textEncoding)
	if err != nil {
		return nil, err
	}

	count, err := in.ReadInt32()
	if err != nil {
		return nil, corrupt(err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative entry count %d", ErrCorrupt, count)
	}

	entries := make([]cmnbin.Entry, 0, min(int(count), 1<<16))
	for i := 0; i < int(count); i++ {
		rawKind, err := in.ReadInt32()
		if err != nil {
			return nil, corrupt(err)
		}
		kind := cmnbin.Kind(rawKind)
		if kind != cmnbin.KindShort && kind != cmnbin.KindLong {
			return nil, fmt.Errorf("%w: entry %d has unknown kind %d", ErrCorrupt, i, rawKind)
		}
		offset, err := in.ReadInt64()
		if err != nil {
			return nil, corrupt(err)
		}
		original, err := in.ReadString()
		if err != nil {
			return nil, corrupt(err)
		}
		translation, err := in.ReadString()
		if err != nil {
			return nil, corrupt(err)
		}

		e := cmnbin.NewEntry(kind, offset, layout.Width(kind), original)
		e.Translation = translation
		e.Saved = translation
		entries = append(entries, e)
	}
	return entries, nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrCorrupt, err)
}

// Load reads the overlay at path. A missing file yields an error matching
// both ErrNotFound and fs.ErrNotExist.
func Load(path string, layout cmnbin.Layout) ([]cmnbin.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("open overlay: %w", err)
	}
	defer f.Close()

	return Read(f, layout)
}

// Exists reports whether an overlay file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Save writes entries to path through a temporary file in the same
// directory, so a failed save never clobbers the previous overlay.
func Save(path string, entries []cmnbin.Entry) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create overlay directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create overlay: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := Write(tmp, entries); err != nil {
		return fmt.Errorf("write overlay: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync overlay: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close overlay: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace overlay: %w", err)
	}
	return nil
}
