// Package binio provides the seekable binary cursor used to read and patch
// game assets and overlay files.
package binio

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// Encoding is a text encoding together with the width of its code unit.
// A code unit of all zero bytes terminates a fixed-width string.
type Encoding struct {
	name string
	enc  encoding.Encoding
	unit int
}

var (
	// ShiftJIS is the default asset text encoding.
	ShiftJIS = Encoding{name: "shift_jis", enc: japanese.ShiftJIS, unit: 1}
	// UTF16LE matches .NET's Encoding.Unicode (no BOM).
	UTF16LE = Encoding{name: "utf-16le", enc: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), unit: 2}
	// UTF8 passes text through unchanged.
	UTF8 = Encoding{name: "utf-8", enc: unicode.UTF8, unit: 1}
)

// LookupEncoding resolves a WHATWG encoding label such as "shift_jis",
// "sjis", "utf-8" or "utf-16le".
func LookupEncoding(label string) (Encoding, error) {
	enc, err := htmlindex.Get(strings.ToLower(strings.TrimSpace(label)))
	if err != nil {
		return Encoding{}, fmt.Errorf("binio: unknown text encoding %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(label)
	}
	unit := 1
	if name == "utf-16le" || name == "utf-16be" {
		unit = 2
	}
	return Encoding{name: name, enc: enc, unit: unit}, nil
}

// Name returns the canonical label.
func (e Encoding) Name() string {
	if e.enc == nil {
		return UTF8.name
	}
	return e.name
}

// UnitSize returns the size in bytes of one code unit.
func (e Encoding) UnitSize() int {
	if e.unit <= 0 {
		return 1
	}
	return e.unit
}

func (e Encoding) encoding() encoding.Encoding {
	if e.enc == nil {
		return unicode.UTF8
	}
	return e.enc
}

// Encode converts s to bytes. Runes the encoding cannot represent are an error.
func (e Encoding) Encode(s string) ([]byte, error) {
	b, err := e.encoding().NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("binio: encode %s: %w", e.Name(), err)
	}
	return b, nil
}

// Decode converts b to a string without looking for a terminator.
func (e Encoding) Decode(b []byte) (string, error) {
	s, err := e.encoding().NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("binio: decode %s: %w", e.Name(), err)
	}
	return string(s), nil
}

// Terminated returns b up to, not including, the first zero code unit.
func (e Encoding) Terminated(b []byte) []byte {
	unit := e.UnitSize()
	if unit == 1 {
		if i := bytes.IndexByte(b, 0); i >= 0 {
			return b[:i]
		}
		return b
	}
	zero := make([]byte, unit)
	for i := 0; i+unit <= len(b); i += unit {
		if bytes.Equal(b[i:i+unit], zero) {
			return b[:i]
		}
	}
	return b[:len(b)-len(b)%unit]
}
