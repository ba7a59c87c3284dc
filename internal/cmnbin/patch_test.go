package cmnbin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
	"github.com/Sakimotor/TranslationFramework2/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAsset(t *testing.T, data []byte) *os.File {
	t.Helper()
	path := testsupport.WriteAsset(t, t.TempDir(), "cmn.bin", data)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func readBack(t *testing.T, f *os.File) []byte {
	t.Helper()
	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	return got
}

func TestPatch_UntranslatedIsByteIdentical(t *testing.T) {
	data := testsupport.NewAssetBuilder().
		Filler(9, 0x7F).
		LongBlock(32, []string{"Hello\x00junk after terminator"}, []string{"World"}).
		ShortBlock(16, 2, []string{"x"}, []string{"y\x00z"}).
		Bytes()
	f := openAsset(t, data)

	entries, err := Scan(f, testLayout(), binio.UTF8)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	n, err := Patch(f, entries, binio.UTF8)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, data, readBack(t, f))
}

func TestPatch_OnlySlotBytesChange(t *testing.T) {
	b := testsupport.NewAssetBuilder().
		LongBlock(32, []string{"Hello", ""}, []string{"World"}).
		Filler(20, 0x99)
	data := b.Bytes()
	f := openAsset(t, data)

	entries, err := Scan(f, testLayout(), binio.UTF8)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	entries[1].Translation = "Mundo"

	n, err := Patch(f, entries, binio.UTF8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := readBack(t, f)
	require.Len(t, got, len(data))

	off := int(entries[1].Offset)
	want := append([]byte{}, data...)
	copy(want[off:off+32], make([]byte, 32))
	copy(want[off:], "Mundo")
	assert.Equal(t, want, got)

	rescanned, err := Scan(f, testLayout(), binio.UTF8)
	require.NoError(t, err)
	require.Len(t, rescanned, 2)
	assert.Equal(t, "Mundo", rescanned[1].Original)
	assert.Equal(t, entries[1].Offset, rescanned[1].Offset)
}

func TestPatch_OverflowWritesNothing(t *testing.T) {
	data := testsupport.NewAssetBuilder().
		ShortBlock(16, 1, []string{"first", "second"}, nil).
		Bytes()
	f := openAsset(t, data)

	entries, err := Scan(f, testLayout(), binio.UTF8)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	entries[0].Translation = "fits"
	entries[1].Translation = "twenty bytes long!!!"

	n, err := Patch(f, entries, binio.UTF8)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrOverflow)

	var overflow *OverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, entries[1].Offset, overflow.Offset)
	assert.Equal(t, 20, overflow.Length)
	assert.Equal(t, 16, overflow.MaxLength)

	assert.Equal(t, data, readBack(t, f))
}

func TestPatch_ExactWidthHasNoTerminator(t *testing.T) {
	data := testsupport.NewAssetBuilder().
		ShortBlock(16, 1, []string{"a"}, []string{"b"}).
		Bytes()
	f := openAsset(t, data)

	entries, err := Scan(f, testLayout(), binio.UTF8)
	require.NoError(t, err)
	entries[0].Translation = "0123456789abcdef"

	_, err = Patch(f, entries, binio.UTF8)
	require.NoError(t, err)

	rescanned, err := Scan(f, testLayout(), binio.UTF8)
	require.NoError(t, err)
	require.Len(t, rescanned, 2)
	assert.Equal(t, "0123456789abcdef", rescanned[0].Original)
	assert.Equal(t, "b", rescanned[1].Original)
}

func TestPatch_ShiftJIS(t *testing.T) {
	data := testsupport.NewAssetBuilder().
		LongBlock(32, []string{"\x82\xA0"}, nil).
		Bytes()
	f := openAsset(t, data)

	entries, err := Scan(f, testLayout(), binio.ShiftJIS)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "あ", entries[0].Original)

	entries[0].Translation = "いう"
	_, err = Patch(f, entries, binio.ShiftJIS)
	require.NoError(t, err)

	got := readBack(t, f)
	off := entries[0].Offset
	assert.Equal(t, []byte{0x82, 0xA2, 0x82, 0xA4, 0}, got[off:off+5])
}

func TestCheckFit_Unencodable(t *testing.T) {
	e := NewEntry(KindShort, 0, 16, "a")
	e.Translation = "😀"
	_, err := CheckFit(e, binio.ShiftJIS)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	scanned := []Entry{
		NewEntry(KindLong, 100, 32, "Hello"),
		NewEntry(KindLong, 200, 32, "World"),
	}

	t.Run("carries translations", func(t *testing.T) {
		edited := []Entry{NewEntry(KindLong, 200, 32, "World")}
		edited[0].Translation = "Mundo"

		merged, err := Merge(scanned, edited)
		require.NoError(t, err)
		require.Len(t, merged, 2)
		assert.Equal(t, "Hello", merged[0].Translation)
		assert.Equal(t, "Mundo", merged[1].Translation)
		assert.Equal(t, "World", scanned[1].Translation)
	})

	tests := []struct {
		name  string
		entry Entry
	}{
		{"unknown offset", NewEntry(KindLong, 150, 32, "Hello")},
		{"kind differs", NewEntry(KindShort, 100, 16, "Hello")},
		{"original differs", NewEntry(KindLong, 100, 32, "Hullo")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(scanned, []Entry{tt.entry})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMismatch)

			var mismatch *MismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tt.entry.Offset, mismatch.Offset)
		})
	}
}

func TestScanFile(t *testing.T) {
	dir := t.TempDir()
	data := testsupport.NewAssetBuilder().LongBlock(32, []string{"x"}, nil).Bytes()
	path := testsupport.WriteAsset(t, dir, filepath.Join("data", "cmn.bin"), data)

	entries, err := ScanFile(path, testLayout(), binio.UTF8)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
