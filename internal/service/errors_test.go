package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sakimotor/TranslationFramework2/internal/cmnbin"
	"github.com/Sakimotor/TranslationFramework2/internal/overlay"
	"github.com/Sakimotor/TranslationFramework2/internal/subtitle"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{name: "overflow", err: fmt.Errorf("patch: %w", &cmnbin.OverflowError{Offset: 0x40, Length: 70, MaxLength: 64}), want: ErrOverflow},
		{name: "mismatch", err: &cmnbin.MismatchError{Offset: 0x40, Reason: "no text slot at this offset"}, want: ErrMismatch},
		{name: "format", err: &cmnbin.FormatError{Block: 0x10, Offset: 0x30, Err: cmnbin.ErrTruncated}, want: ErrFormat},
		{name: "corrupt overlay", err: fmt.Errorf("load: %w", overlay.ErrCorrupt), want: ErrFormat},
		{name: "unknown offset", err: fmt.Errorf("%w 0x00000001", subtitle.ErrUnknownOffset), want: ErrValidation},
		{name: "missing file", err: fmt.Errorf("open asset: %w", fs.ErrNotExist), want: ErrFileNotFound},
		{name: "permission on open", err: &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, want: ErrFileRead},
		{name: "permission on write", err: &fs.PathError{Op: "write", Path: "/x", Err: fs.ErrPermission}, want: ErrFileWrite},
		{name: "already classified", err: NewError(ErrConfig, "bad"), want: ErrConfig},
		{name: "other", err: errors.New("boom"), want: ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.want, got.Type)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, Classify(nil))
}

func TestClassify_OverflowContext(t *testing.T) {
	err := Classify(&cmnbin.OverflowError{Offset: 0x1234, Length: 70, MaxLength: 64})
	assert.Equal(t, "0x00001234", err.Context["offset"])
	assert.Equal(t, 64, err.Context["max_length"])
	assert.Contains(t, err.Error(), "[Overflow]")
}

func TestDefaultErrorHandler(t *testing.T) {
	h := NewDefaultErrorHandler()
	assert.True(t, h.Handle(&cmnbin.MismatchError{Offset: 1, Reason: "x"}))
	assert.False(t, h.Handle(errors.New("boom")))
	assert.True(t, h.Handle(nil))

	for _, typ := range []ErrorType{ErrFileNotFound, ErrFormat, ErrOverflow, ErrMismatch, ErrConfig} {
		assert.NotEmpty(t, h.GetAdvice(NewError(typ, "x")))
	}
}

func TestSafeExecute(t *testing.T) {
	err := SafeExecute(func() error { panic("bad slot") })
	assert.True(t, IsErrorType(err, ErrUnknown))

	err = SafeExecute(func() error { return os.ErrClosed })
	assert.ErrorIs(t, err, os.ErrClosed)
}
