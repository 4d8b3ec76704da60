package xmodem

// zrqinitFrame is the literal byte sequence a ZMODEM sender transmits to
// invite a receiver into a ZMODEM session. Recognizing it lets a host
// decline ZMODEM and let the sender fall back to XMODEM/YMODEM.
var zrqinitFrame = []byte{
	'*', '*', 0x18, 'B', '0', '0',
	'0', '0', '0', '0', '0', '0',
	'0', '0', '0', '0', '0', '0',
	CR, LF, XON,
}

// ZRQINITDetector feeds inbound bytes one at a time and reports when the
// literal ZRQINIT sequence has just completed. Matching is strict prefix
// matching from position zero: a mismatch at any point resets the index to
// zero rather than attempting a partial backtrack.
type ZRQINITDetector struct {
	pos int
}

// NewZRQINITDetector returns a detector ready to consume the first byte of
// a new candidate sequence.
func NewZRQINITDetector() *ZRQINITDetector {
	return &ZRQINITDetector{}
}

// Feed consumes one inbound byte and reports whether it completed the
// ZRQINIT sequence.
func (d *ZRQINITDetector) Feed(b byte) bool {
	if b == zrqinitFrame[d.pos] {
		d.pos++
		if d.pos == len(zrqinitFrame) {
			d.pos = 0
			return true
		}
		return false
	}
	// Strict reset: the mismatching byte is not re-examined as the start of
	// a new attempt, so a sequence such as "***" followed by the rest of the
	// frame is not recognized.
	d.pos = 0
	return false
}

// Reset returns the detector to its initial state.
func (d *ZRQINITDetector) Reset() {
	d.pos = 0
}

// ProtocolDetector tracks which of the five XMODEM/YMODEM dialects remain
// plausible as the handshake and early blocks of a transfer narrow the set.
// Removal is monotonic: once a candidate is dropped it never returns within
// the session.
type ProtocolDetector struct {
	candidates map[Protocol]bool
	announced  bool
	onDetected func(Protocol)

	IsCRC       bool
	IsBatch     bool
	IsStreaming bool
	Is1K        bool
}

// NewProtocolDetector returns a detector with all five dialects still
// candidates. onDetected, if non-nil, is called exactly once, the moment
// the candidate set narrows to a single dialect.
func NewProtocolDetector(onDetected func(Protocol)) *ProtocolDetector {
	return &ProtocolDetector{
		candidates: map[Protocol]bool{
			XModemChecksum: true,
			XModemCRC:      true,
			XModem1K:       true,
			YModemBatch:    true,
			YModemG:        true,
		},
		onDetected: onDetected,
	}
}

func (d *ProtocolDetector) remove(protocols ...Protocol) {
	for _, p := range protocols {
		delete(d.candidates, p)
	}
	d.maybeAnnounce()
}

func (d *ProtocolDetector) maybeAnnounce() {
	if d.announced || len(d.candidates) != 1 {
		return
	}
	d.announced = true
	if d.onDetected != nil {
		for p := range d.candidates {
			d.onDetected(p)
		}
	}
}

// Detected returns the single surviving dialect and true once the set has
// narrowed to one; otherwise ProtocolUnknown and false.
func (d *ProtocolDetector) Detected() (Protocol, bool) {
	if len(d.candidates) != 1 {
		return ProtocolUnknown, false
	}
	for p := range d.candidates {
		return p, true
	}
	return ProtocolUnknown, false
}

// SetCRC records whether the sender is using CRC-16 (true) or an 8-bit
// checksum (false).
func (d *ProtocolDetector) SetCRC(crc bool) {
	d.IsCRC = crc
	if crc {
		d.remove(XModemChecksum)
	} else {
		d.remove(XModemCRC, XModem1K, YModemBatch, YModemG)
	}
}

// SetStreaming records whether the sender accepted the 'G' streaming
// handshake. Accepting streaming implies CRC.
func (d *ProtocolDetector) SetStreaming(streaming bool) {
	d.IsStreaming = streaming
	if streaming {
		d.IsCRC = true
		d.remove(XModemChecksum, XModemCRC, XModem1K, YModemBatch)
	} else {
		d.remove(YModemG)
	}
}

// SetBatch records whether the current file arrived via a populated block 0
// (YMODEM batch framing) rather than starting straight at block 1.
func (d *ProtocolDetector) SetBatch(batch bool) {
	d.IsBatch = batch
	if batch {
		d.remove(XModemChecksum, XModemCRC, XModem1K)
	} else {
		d.remove(YModemBatch, YModemG)
	}
}

// Set1K records whether the sender used STX (1024-byte) rather than SOH
// (128-byte) blocks for file data.
func (d *ProtocolDetector) Set1K(is1K bool) {
	d.Is1K = is1K
	if is1K {
		d.remove(XModemChecksum, XModemCRC)
	} else {
		d.remove(XModem1K, YModemBatch, YModemG)
	}
}
