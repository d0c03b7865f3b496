package base

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMIErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *SMIError
		want string
	}{
		{"code only", &SMIError{Code: StatusNotSupported}, "[NOT_SUPPORTED]"},
		{"with op", NewError(StatusNotFound, "fan rpm", nil), "fan rpm: [NOT_FOUND]"},
		{"with cause", Errorf(StatusIO, "pcie_bw", "short read of %d bytes", 3), "pcie_bw: [IO] short read of 3 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestSMIErrorIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("query: %w", NewError(StatusNotSupported, "gpu metrics", errors.New("no table")))

	assert.ErrorIs(t, err, ErrNotSupported)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotSupported(err))
	assert.Equal(t, StatusNotSupported, CodeOf(err))
}

func TestSMIErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(StatusIO, "read", cause)
	assert.ErrorIs(t, err, cause)
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, StatusCode(""), CodeOf(errors.New("plain")))
	assert.False(t, IsNotSupported(nil))
}

func TestFromOS(t *testing.T) {
	assert.NoError(t, FromOS("x", nil))
	assert.Equal(t, StatusNotSupported, CodeOf(FromOS("x", fs.ErrNotExist)))
	assert.Equal(t, StatusNoPermission, CodeOf(FromOS("x", fs.ErrPermission)))
	assert.Equal(t, StatusIO, CodeOf(FromOS("x", errors.New("disk on fire"))))

	wrapped := &fs.PathError{Op: "open", Path: "/sys/x", Err: fs.ErrNotExist}
	assert.True(t, IsNotSupported(FromOS("x", wrapped)))
}
