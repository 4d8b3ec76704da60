// Package xmodem implements the receiver side of the XMODEM/YMODEM family
// of file-transfer protocols: checksum and CRC-16 variants of XMODEM, the
// 1K-block extension, and batch/streaming YMODEM (including YMODEM-G). It
// also recognizes an incoming ZMODEM ZRQINIT frame so a host can decline a
// ZMODEM session and let a capable sender fall back to one of these
// dialects.
//
// Sending is out of scope: this package only receives.
package xmodem

// Wire bytes used by the XMODEM/YMODEM family.
const (
	SOH    = 0x01 // start of 128-byte block
	STX    = 0x02 // start of 1024-byte block
	EOT    = 0x04 // end of transmission
	ACK    = 0x06 // block accepted
	BS     = 0x08 // backspace, used after a CAN burst
	NAK    = 0x15 // block rejected, resend
	CAN    = 0x18 // cancel
	CPMEOF = 0x1A // CP/M end-of-file pad byte, doubles as an alternate EOT
	CR     = 0x0D
	LF     = 0x0A
	XON    = 0x11

	HandshakeCRC       = 'C' // request CRC-16 mode
	HandshakeStreaming = 'G' // request YMODEM-G streaming mode
)

// canCount is the number of CAN bytes sent during a graceful abort when the
// dialect is not streaming. Streaming dialects send two up front to stop the
// sender mid-stream, then the remainder after draining.
const canCount = 8

// Protocol identifies one of the five dialects the detector can narrow to.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	XModemChecksum
	XModemCRC
	XModem1K
	YModemBatch
	YModemG
)

func (p Protocol) String() string {
	switch p {
	case XModemChecksum:
		return "XMODEM (checksum)"
	case XModemCRC:
		return "XMODEM (CRC)"
	case XModem1K:
		return "XMODEM-1K"
	case YModemBatch:
		return "YMODEM (batch)"
	case YModemG:
		return "YMODEM-G (streaming)"
	default:
		return "unknown"
	}
}

// OverrunPolicy controls what happens when a YMODEM transfer writes more
// bytes than the sender declared in the block-0 header.
type OverrunPolicy int

const (
	// OverrunIgnore truncates the file to the declared length.
	OverrunIgnore OverrunPolicy = iota
	// OverrunError aborts the transfer at end of file if a whole extra
	// packet arrived after the declared length was reached; an overrun that
	// falls within the packet crossing the declared length is truncated.
	OverrunError
	// OverrunAccept keeps every byte written, regardless of overrun.
	OverrunAccept
	// OverrunMixed truncates an overrun that falls within the packet
	// crossing the declared length, and keeps every byte written when a
	// whole extra packet arrived after it.
	OverrunMixed
)
