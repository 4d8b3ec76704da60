package xmodem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCRCBlock assembles one SOH-framed, CRC-checked block carrying
// payload (padded/truncated to 128 bytes) as scriptEntries.
func buildCRCBlock(num byte, payload []byte) []scriptEntry {
	buf := make([]byte, 128)
	copy(buf, payload)
	cs := NewChecksummer()
	crc := cs.CRC16(buf)
	entries := []scriptEntry{tb(SOH), tb(num), tb(255 - num)}
	entries = append(entries, tbytes(buf)...)
	entries = append(entries, tb(byte(crc>>8)), tb(byte(crc)))
	return entries
}

// buildBadCRCBlock is buildCRCBlock with a deliberately wrong trailing CRC,
// simulating line corruption.
func buildBadCRCBlock(num byte, payload []byte) []scriptEntry {
	entries := buildCRCBlock(num, payload)
	last := len(entries) - 1
	entries[last] = tb(entries[last].b ^ 0xFF)
	return entries
}

// buildChecksumBlock assembles one SOH-framed, 8-bit-checksum block, the
// dialect a receiver falls back to when both the 'G' and 'C' handshake
// probes go unanswered.
func buildChecksumBlock(num byte, payload []byte) []scriptEntry {
	buf := make([]byte, 128)
	copy(buf, payload)
	cs := NewChecksummer()
	sum := cs.Checksum(buf)
	entries := []scriptEntry{tb(SOH), tb(num), tb(255 - num)}
	entries = append(entries, tbytes(buf)...)
	entries = append(entries, tb(sum))
	return entries
}

// handshakeDrain is the extra timeout runHandshake's unconditional leading
// drain() call consumes before the probe ladder (or, on a reused handshake,
// before the reused-handshake read) ever sees a script entry.
func handshakeDrain() scriptEntry { return to() }

func TestReceiveSingleXModemCRCFile(t *testing.T) {
	var script []scriptEntry
	script = append(script, handshakeDrain())
	script = append(script, to(), to(), to()) // three 'G' probes time out
	script = append(script, buildCRCBlock(1, []byte("hello world"))...)
	script = append(script, tb(EOT)) // first EOT
	script = append(script, to())    // nak() drains, finds nothing
	script = append(script, tb(EOT)) // confirmed second EOT

	port := newFakePort(script...)
	sess := NewSession(port, WithSinkFactory(newMemSink))

	downloads, err := sess.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, downloads, 1)

	sink := downloads[0].sink.(*memSink)
	assert.Equal(t, "hello world", string(sink.data[:11]))
	assert.True(t, sink.closed)

	proto, ok := sess.DetectedProtocol()
	require.True(t, ok)
	assert.Equal(t, XModemCRC, proto, "'C' handshake with 128-byte blocks and no batch framing narrows to plain XMODEM-CRC")
}

func TestReceiveYModemBatchTwoFiles(t *testing.T) {
	var script []scriptEntry
	script = append(script, handshakeDrain())
	script = append(script, to(), to(), to()) // 'G' probes fail
	// block 0: metadata for first file
	script = append(script, buildCRCBlock(0, []byte("a.txt\x0011 0 0 0"))...)
	// block 1: file data
	script = append(script, buildCRCBlock(1, []byte("hello world"))...)
	script = append(script, tb(EOT), to(), tb(EOT))
	// second file's handshake reuse: drain, then succeeds immediately
	script = append(script, handshakeDrain())
	script = append(script, buildCRCBlock(0, []byte("b.txt\x005 0 0 0"))...)
	script = append(script, buildCRCBlock(1, []byte("world"))...)
	script = append(script, tb(EOT), to(), tb(EOT))
	// third handshake reuse (batch-end), then empty block 0 ends the batch
	script = append(script, handshakeDrain())
	script = append(script, buildCRCBlock(0, nil)...)

	port := newFakePort(script...)
	sess := NewSession(port, WithSinkFactory(newMemSink))

	downloads, err := sess.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, downloads, 2)
	assert.Equal(t, "a.txt", downloads[0].Name)
	assert.Equal(t, int64(11), downloads[0].Length)
	assert.Equal(t, "b.txt", downloads[1].Name)

	proto, ok := sess.DetectedProtocol()
	require.True(t, ok)
	assert.Equal(t, YModemBatch, proto)
}

func TestReceiveAbortsOnSenderCancel(t *testing.T) {
	var script []scriptEntry
	script = append(script, handshakeDrain())
	script = append(script, to(), to(), to())
	script = append(script, tb(CAN), tb(CAN))

	port := newFakePort(script...)
	sess := NewSession(port, WithSinkFactory(newMemSink))

	_, err := sess.Receive(context.Background())
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	// Graceful abort must have written CAN*8 then BS*8.
	assert.Contains(t, string(port.out), string([]byte{CAN, CAN, CAN, CAN, CAN, CAN, CAN, CAN, BS, BS, BS, BS, BS, BS, BS, BS}))
}

func TestReceiveDesyncAborts(t *testing.T) {
	var script []scriptEntry
	script = append(script, handshakeDrain())
	script = append(script, to(), to(), to())
	script = append(script, buildCRCBlock(1, []byte("hello"))...)
	// Sender incorrectly jumps to block 5: fatal desync.
	script = append(script, buildCRCBlock(5, []byte("oops"))...)

	port := newFakePort(script...)
	sess := NewSession(port, WithSinkFactory(newMemSink))

	_, err := sess.Receive(context.Background())
	require.Error(t, err)
	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, ErrProtocol, xerr.Kind)
}

// TestReceiveXModemChecksumFile exercises the plain XMODEM/NAK dialect: both
// the 'G' and 'C' probes go unanswered, so the receiver falls all the way
// back to the 8-bit checksum block format.
func TestReceiveXModemChecksumFile(t *testing.T) {
	var script []scriptEntry
	script = append(script, handshakeDrain())
	script = append(script, to(), to(), to()) // 'G' probes fail
	script = append(script, to(), to(), to()) // 'C' probes fail
	script = append(script, buildChecksumBlock(1, []byte("hello"))...)
	script = append(script, tb(EOT), to(), tb(EOT))

	port := newFakePort(script...)
	sess := NewSession(port, WithSinkFactory(newMemSink))

	downloads, err := sess.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, downloads, 1)

	sink := downloads[0].sink.(*memSink)
	assert.Equal(t, "hello", string(sink.data[:5]))

	proto, ok := sess.DetectedProtocol()
	require.True(t, ok)
	assert.Equal(t, XModemChecksum, proto)
}

// TestReceiveYModemGAbortsOnCorruption exercises a YMODEM-G transfer whose
// first block fails CRC verification: streaming dialects have no retry
// ladder, so the receiver must abort immediately without ever sending a NAK.
func TestReceiveYModemGAbortsOnCorruption(t *testing.T) {
	var script []scriptEntry
	script = append(script, handshakeDrain())
	// the 'G' probe's first attempt reads the corrupted block's leading
	// SOH byte and treats it as an accepted streaming handshake.
	script = append(script, buildBadCRCBlock(1, []byte("hello"))...)

	port := newFakePort(script...)
	sess := NewSession(port, WithSinkFactory(newMemSink))

	_, err := sess.Receive(context.Background())
	require.Error(t, err)

	proto, ok := sess.DetectedProtocol()
	require.True(t, ok)
	assert.Equal(t, YModemG, proto)

	assert.NotContains(t, port.out, byte(NAK), "streaming dialects must never NAK; a corrupted block is a fatal abort")
	// Graceful abort for a streaming dialect: two CANs up front, then (after
	// the drain) the remaining six CANs, then a trailing burst of BS bytes.
	assert.Contains(t, string(port.out), string([]byte{CAN, CAN}))
	assert.Contains(t, string(port.out), string([]byte{BS, BS, BS, BS, BS, BS, BS, BS}))
}
