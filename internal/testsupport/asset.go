// Package testsupport builds synthetic cmn.bin assets for tests.
package testsupport

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var marker = []byte{0x8E, 0x9A, 0x96, 0x8B, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

// AssetBuilder lays out subtitle blocks the way the game does. Header and
// padding bytes are filled with non-zero junk so decoders that read the
// wrong field fail loudly. Slot texts are raw bytes; anything after an
// embedded NUL stays in the slot as junk.
type AssetBuilder struct {
	buf   bytes.Buffer
	slots []int64
}

func NewAssetBuilder() *AssetBuilder {
	return &AssetBuilder{}
}

// Filler appends n copies of v.
func (b *AssetBuilder) Filler(n int, v byte) *AssetBuilder {
	b.buf.Write(bytes.Repeat([]byte{v}, n))
	return b
}

// LongBlock appends a selector-0 block with primary and secondary records.
func (b *AssetBuilder) LongBlock(width int, primary, secondary []string) *AssetBuilder {
	b.buf.Write(marker)
	b.u64(0)
	b.Filler(40, 0x11)
	b.i32(int32(len(primary)))
	b.i32(int32(len(secondary)))
	b.Filler(16, 0x22)
	for _, text := range append(append([]string{}, primary...), secondary...) {
		b.record(width, text)
	}
	return b
}

// ShortBlock appends a block with a non-zero selector and two record groups.
func (b *AssetBuilder) ShortBlock(width int, selector uint64, first, second []string) *AssetBuilder {
	b.buf.Write(marker)
	b.u64(selector)
	b.Filler(266, 0x33)
	for _, group := range [][]string{first, second} {
		b.i32(int32(len(group)))
		b.Filler(12, 0x44)
		b.Filler(16, 0x55)
		for _, text := range group {
			b.record(width, text)
		}
	}
	return b
}

// Raw appends arbitrary bytes, e.g. a truncated block.
func (b *AssetBuilder) Raw(p []byte) *AssetBuilder {
	b.buf.Write(p)
	return b
}

// Marker appends a bare block marker.
func (b *AssetBuilder) Marker() *AssetBuilder {
	return b.Raw(marker)
}

func (b *AssetBuilder) record(width int, text string) {
	b.Filler(16, 0x66)
	b.slots = append(b.slots, int64(b.buf.Len()))
	slot := make([]byte, width)
	copy(slot, text)
	b.buf.Write(slot)
}

func (b *AssetBuilder) u64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *AssetBuilder) i32(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.buf.Write(tmp[:])
}

// Bytes returns a copy of the asset built so far.
func (b *AssetBuilder) Bytes() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// SlotOffsets returns the offset of every record slot, empty ones included.
func (b *AssetBuilder) SlotOffsets() []int64 {
	return append([]int64(nil), b.slots...)
}

// WriteAsset writes data to dir/rel, creating parent directories.
func WriteAsset(t testing.TB, dir, rel string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755), "mkdir for %s", path)
	require.NoError(t, os.WriteFile(path, data, 0o644), "write %s", path)
	return path
}
