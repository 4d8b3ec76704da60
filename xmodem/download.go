package xmodem

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Download describes one file as it is received: the metadata the sender
// supplied (YMODEM only; XMODEM supplies none of it) and the open sink it
// is being written to.
type Download struct {
	// Name is the pathname exactly as the sender supplied it; only the
	// output file's name is reduced to its final path component (see
	// NewFileSink). Empty for XMODEM transfers, which carry no metadata.
	Name string

	// Length is the declared byte count, or 0 if unknown/unspecified.
	Length int64

	// ModTime is the sender-declared modification time, or the zero value
	// if absent.
	ModTime time.Time

	// Mode is the sender-declared Unix file mode, or 0 if absent.
	Mode int64

	// Serial is the sender-declared serial number, or 0 if absent.
	Serial int64

	sink       Sink
	written    int64
	possibleLastPacket bool
}

// Sink is the file-system surface the controller writes received bytes to.
// A default *os.File-backed implementation is provided by NewFileSink; it
// is an external collaborator so tests can substitute an in-memory one.
type Sink interface {
	Write(p []byte) (int, error)
	Truncate(size int64) error
	SetModTime(t time.Time) error
	Close() error
	// Remove deletes the underlying file; called when a transfer aborts
	// partway through.
	Remove() error
	// Name returns the path of the file this sink writes to.
	Name() string
}

// fileSink is the default Sink, backed by the local filesystem.
type fileSink struct {
	f    *os.File
	path string
}

// NewFileSink creates dir/name (choosing a non-colliding name per the
// YMODEM pathname rules if name is non-empty) and returns a Sink writing to
// it. If name is empty, a generic temporary name is used.
func NewFileSink(dir, name string) (Sink, error) {
	if dir == "" {
		dir = "."
	}
	var path string
	if name == "" {
		f, err := os.CreateTemp(dir, "xmodem-*.bin")
		if err != nil {
			return nil, err
		}
		return &fileSink{f: f, path: f.Name()}, nil
	}
	path = uniquePath(dir, sanitizeName(name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f, path: path}, nil
}

// sanitizeName keeps only the final path component of a sender-supplied
// name, refusing to let a malicious or careless sender write outside the
// target directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return filepath.Base(name)
}

// uniquePath appends "-<n>" before the extension until dir/name doesn't
// already exist, matching the original implementation's collision policy:
// the extension (the substring after the final '.', when that '.' is not
// the first character of the name) is preserved.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := ""
	base := name
	if idx := strings.LastIndex(name, "."); idx > 0 {
		ext = name[idx:]
		base = name[:idx]
	}
	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func (s *fileSink) Write(p []byte) (int, error)   { return s.f.Write(p) }
func (s *fileSink) Truncate(size int64) error     { return s.f.Truncate(size) }
func (s *fileSink) Close() error                  { return s.f.Close() }
func (s *fileSink) Name() string                  { return s.path }
func (s *fileSink) Remove() error                 { return os.Remove(s.path) }
func (s *fileSink) SetModTime(t time.Time) error {
	if t.IsZero() {
		return nil
	}
	return os.Chtimes(s.path, t, t)
}

// parseDecimal parses a decimal integer field from block 0, per the
// original implementation's behavior: an unparsable or empty field is left
// at 0 rather than aborting the remaining fields.
func parseDecimal(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseOctal parses an octal integer field from block 0 with the same
// silent-zero-on-failure behavior as parseDecimal.
func parseOctal(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return 0
	}
	return v
}
