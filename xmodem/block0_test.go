package xmodem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func padBlock0(raw string) []byte {
	buf := make([]byte, 128)
	copy(buf, raw)
	return buf
}

func TestParseBlock0EmptyNameEndsBatch(t *testing.T) {
	_, ok := parseBlock0(padBlock0(""))
	assert.False(t, ok)
}

func TestParseBlock0FullMetadata(t *testing.T) {
	raw := "report.txt\x00" + "1024 14122547470 100644 0"
	dl, ok := parseBlock0(padBlock0(raw))
	require.True(t, ok)
	assert.Equal(t, "report.txt", dl.Name)
	assert.Equal(t, int64(1024), dl.Length)
	assert.False(t, dl.ModTime.IsZero())
	assert.Equal(t, int64(0o100644), dl.Mode)
	assert.Equal(t, int64(0), dl.Serial)
}

func TestParseBlock0NameOnly(t *testing.T) {
	raw := "report.txt\x00"
	dl, ok := parseBlock0(padBlock0(raw))
	require.True(t, ok)
	assert.Equal(t, "report.txt", dl.Name)
	assert.Equal(t, int64(0), dl.Length)
	assert.True(t, dl.ModTime.IsZero())
}

func TestParseBlock0UnparsableFieldLeavesZeroButKeepsLaterFields(t *testing.T) {
	raw := "report.txt\x00" + "notanumber 100644"
	dl, ok := parseBlock0(padBlock0(raw))
	require.True(t, ok)
	assert.Equal(t, int64(0), dl.Length, "unparsable decimal field silently left at zero")
	assert.False(t, dl.ModTime.IsZero(), "a later field still parses even though length failed")
}
