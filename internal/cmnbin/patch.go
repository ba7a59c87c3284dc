package cmnbin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
)

// CheckFit encodes the entry's translation and verifies it fits the slot.
func CheckFit(e Entry, enc binio.Encoding) ([]byte, error) {
	b, err := enc.Encode(e.Translation)
	if err != nil {
		return nil, fmt.Errorf("cmnbin: entry at 0x%08X: %w", e.Offset, err)
	}
	if len(b) > e.MaxLength {
		return nil, &OverflowError{Offset: e.Offset, Length: len(b), MaxLength: e.MaxLength}
	}
	return b, nil
}

// Patch overwrites the slot of every translated entry with its translation,
// zero-padded to the slot width. Untranslated entries are not touched.
// All translations are validated before the first write, so an overflow
// leaves ws unmodified. It returns the number of slots written.
func Patch(ws io.WriteSeeker, entries []Entry, enc binio.Encoding) (int, error) {
	type slot struct {
		offset int64
		width  int
		text   []byte
	}

	slots := make([]slot, 0, len(entries))
	for _, e := range entries {
		if !e.Translated() {
			continue
		}
		b, err := CheckFit(e, enc)
		if err != nil {
			return 0, err
		}
		slots = append(slots, slot{offset: e.Offset, width: e.MaxLength, text: b})
	}

	w, err := binio.NewWriter(ws, binary.BigEndian, enc)
	if err != nil {
		return 0, err
	}
	for i, s := range slots {
		if err := w.Seek(s.offset); err != nil {
			return i, err
		}
		if err := w.WriteFixed(s.text, s.width); err != nil {
			var lenErr *binio.LengthError
			if errors.As(err, &lenErr) {
				return i, &OverflowError{Offset: s.offset, Length: lenErr.Length, MaxLength: lenErr.MaxLength}
			}
			return i, err
		}
	}
	return len(slots), nil
}

// Merge carries the translations of edited onto the freshly scanned entries.
// Every edited entry must name a scanned slot of the same kind holding the
// same original text; anything else means the edits belong to a different
// version of the asset.
func Merge(scanned, edited []Entry) ([]Entry, error) {
	index := make(map[int64]int, len(scanned))
	for i, e := range scanned {
		index[e.Offset] = i
	}

	merged := make([]Entry, len(scanned))
	copy(merged, scanned)

	for _, e := range edited {
		i, ok := index[e.Offset]
		if !ok {
			return nil, &MismatchError{Offset: e.Offset, Reason: "no text slot at this offset"}
		}
		cur := merged[i]
		if cur.Kind != e.Kind {
			return nil, &MismatchError{Offset: e.Offset, Reason: fmt.Sprintf("kind %s, asset has %s", e.Kind, cur.Kind)}
		}
		if cur.Original != e.Original {
			return nil, &MismatchError{Offset: e.Offset, Reason: fmt.Sprintf("original text %q, asset has %q", e.Original, cur.Original)}
		}
		merged[i].Translation = e.Translation
		merged[i].Saved = e.Saved
	}
	return merged, nil
}
