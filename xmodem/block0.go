package xmodem

import (
	"bytes"
	"time"
)

// parseBlock0 parses the payload of a YMODEM block 0 into up to five
// tokens (name, length, mtime, mode, serial) and builds a Download from
// them. ok is false when the name is empty, which signals end of batch.
//
// Layout: a NUL-terminated pathname, followed by up to four
// space-separated tokens ending at NUL or end of payload: decimal length,
// octal mtime, octal mode, octal serial. A field that is absent or fails
// to parse is left at its zero value; later fields are still parsed.
func parseBlock0(payload []byte) (dl Download, ok bool) {
	if len(payload) == 0 || payload[0] == 0 {
		return Download{}, false
	}

	nameEnd := bytes.IndexByte(payload, 0)
	if nameEnd < 0 {
		nameEnd = len(payload)
	}
	name := string(payload[:nameEnd])
	if name == "" {
		return Download{}, false
	}
	dl.Name = name

	if nameEnd >= len(payload) {
		return dl, true
	}
	rest := payload[nameEnd+1:]
	if end := bytes.IndexByte(rest, 0); end >= 0 {
		rest = rest[:end]
	}

	fields := bytes.SplitN(rest, []byte{' '}, 4)
	if len(fields) > 0 {
		dl.Length = parseDecimal(string(fields[0]))
	}
	if len(fields) > 1 {
		if secs := parseOctal(string(fields[1])); secs > 0 {
			dl.ModTime = time.Unix(secs, 0)
		}
	}
	if len(fields) > 2 {
		dl.Mode = parseOctal(string(fields[2]))
	}
	if len(fields) > 3 {
		dl.Serial = parseOctal(string(fields[3]))
	}

	return dl, true
}
