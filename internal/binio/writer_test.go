package binio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, content []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWriter_WriteFixedString(t *testing.T) {
	f := tempFile(t, []byte(strings.Repeat("#", 16)))

	w, err := NewWriter(f, binary.BigEndian, UTF8)
	require.NoError(t, err)
	require.NoError(t, w.Seek(4))
	require.NoError(t, w.WriteFixedString("abc", 8))
	assert.Equal(t, int64(12), w.Position())

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, []byte("####abc\x00\x00\x00\x00\x00####"), got)
}

func TestWriter_WriteFixedStringTooLong(t *testing.T) {
	original := []byte(strings.Repeat("#", 16))
	f := tempFile(t, original)

	w, err := NewWriter(f, binary.BigEndian, UTF8)
	require.NoError(t, err)

	err = w.WriteFixedString("too long for slot", 8)
	require.ErrorIs(t, err, ErrTooLong)

	var lenErr *LengthError
	require.ErrorAs(t, err, &lenErr)
	assert.Equal(t, 17, lenErr.Length)
	assert.Equal(t, 8, lenErr.MaxLength)

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestWriter_StringMatchesDotNetLayout(t *testing.T) {
	f := tempFile(t, nil)

	w, err := NewWriter(f, binary.LittleEndian, UTF16LE)
	require.NoError(t, err)
	require.NoError(t, w.WriteInt32(2))
	require.NoError(t, w.WriteInt64(0x10))
	require.NoError(t, w.WriteString("AB"))

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x02, 0, 0, 0,
		0x10, 0, 0, 0, 0, 0, 0, 0,
		0x04, 'A', 0, 'B', 0,
	}, got)
}

func TestWriter_StringRoundTrip(t *testing.T) {
	long := strings.Repeat("字", 100)
	f := tempFile(t, nil)

	w, err := NewWriter(f, binary.LittleEndian, UTF16LE)
	require.NoError(t, err)
	require.NoError(t, w.WriteString(long))
	require.NoError(t, w.WriteString(""))

	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	r, err := NewReader(f, binary.LittleEndian, UTF16LE)
	require.NoError(t, err)

	got, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, long, got)

	got, err = r.ReadString()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncoding_EncodeUnsupportedRune(t *testing.T) {
	_, err := ShiftJIS.Encode("emoji 😀")
	assert.Error(t, err)
}
