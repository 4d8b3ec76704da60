package xmodem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZRQINITDetectorMatchesExactSequence(t *testing.T) {
	d := NewZRQINITDetector()
	matched := false
	for _, b := range zrqinitFrame {
		matched = d.Feed(b)
	}
	assert.True(t, matched)
}

func TestZRQINITDetectorResetsOnMismatch(t *testing.T) {
	d := NewZRQINITDetector()
	// Feed a near-match that diverges just before the end.
	for i, b := range zrqinitFrame {
		if i == len(zrqinitFrame)-1 {
			assert.False(t, d.Feed(0x00))
			break
		}
		assert.False(t, d.Feed(b))
	}
	// A fresh attempt must still succeed: state must have reset to zero.
	matched := false
	for _, b := range zrqinitFrame {
		matched = d.Feed(b)
	}
	assert.True(t, matched)
}

func TestProtocolDetectorNarrowsOnStreaming(t *testing.T) {
	var detected Protocol
	count := 0
	d := NewProtocolDetector(func(p Protocol) {
		detected = p
		count++
	})
	d.SetStreaming(true)
	p, ok := d.Detected()
	require.True(t, ok)
	assert.Equal(t, YModemG, p)
	assert.Equal(t, YModemG, detected)
	assert.Equal(t, 1, count, "announcement must fire exactly once")
	assert.True(t, d.IsCRC, "accepting streaming implies CRC")

	// Further narrowing calls must not re-announce.
	d.SetBatch(true)
	assert.Equal(t, 1, count)
}

func TestProtocolDetectorNarrowsOnChecksumXModem(t *testing.T) {
	d := NewProtocolDetector(nil)
	d.SetStreaming(false) // sender ignored 'G'
	d.SetCRC(false)       // sender ignored 'C', only responded to NAK
	d.SetBatch(false)     // block 1, not block 0
	d.Set1K(false)        // SOH, not STX
	p, ok := d.Detected()
	require.True(t, ok)
	assert.Equal(t, XModemChecksum, p)
}

func TestProtocolDetectorNarrowsOnYModemBatch(t *testing.T) {
	d := NewProtocolDetector(nil)
	d.SetStreaming(false)
	d.SetCRC(true)
	d.SetBatch(true)
	p, ok := d.Detected()
	require.True(t, ok)
	assert.Equal(t, YModemBatch, p)
}
