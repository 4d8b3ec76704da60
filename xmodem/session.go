package xmodem

import (
	"context"
	"errors"
)

// maxRetries is the per-block retry budget in non-streaming dialects.
const maxRetries = 10

// Attempt limits for the reused-handshake step and for each of the
// 'G'/'C'/NAK probes of the handshake ladder.
const (
	reusedHandshakeAttempts = 10
	streamingProbeAttempts  = 3
	crcProbeAttempts        = 3
	checksumProbeAttempts   = 4
)

// Callbacks are the host-visible hooks the session controller calls while
// receiving. Any left nil are replaced by no-ops.
type Callbacks struct {
	// OnLog reports a human-readable progress or diagnostic message.
	OnLog func(message string)

	// OnProgress is called after every accepted data block. declaredTotal
	// is 0 when the sender did not declare a length.
	OnProgress func(bytesSoFar, declaredTotal int64)

	// OnReceived is called once per successfully completed file.
	OnReceived func(dl Download)
}

func defaultCallbacks() Callbacks {
	return Callbacks{
		OnLog:      func(string) {},
		OnProgress: func(int64, int64) {},
		OnReceived: func(Download) {},
	}
}

func mergeCallbacks(base, override Callbacks) Callbacks {
	if override.OnLog != nil {
		base.OnLog = override.OnLog
	}
	if override.OnProgress != nil {
		base.OnProgress = override.OnProgress
	}
	if override.OnReceived != nil {
		base.OnReceived = override.OnReceived
	}
	return base
}

// SinkFactory creates the Sink a received file is written to. name is the
// sender-declared pathname (YMODEM) or "" (XMODEM, which carries none).
type SinkFactory func(dir, name string) (Sink, error)

// Option configures a Session at construction time.
type Option func(*Session)

// WithDir sets the directory received files are written into. Defaults to
// the current directory.
func WithDir(dir string) Option {
	return func(s *Session) { s.dir = dir }
}

// WithOverrunPolicy sets how a YMODEM declared-length overrun is handled.
// Defaults to OverrunIgnore.
func WithOverrunPolicy(p OverrunPolicy) Option {
	return func(s *Session) { s.overrun = p }
}

// WithLogger sets the diagnostic sink. Defaults to NoopLogger.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithChecksummer overrides the checksum/CRC implementation. Defaults to
// NewChecksummer().
func WithChecksummer(cs Checksummer) Option {
	return func(s *Session) {
		if cs != nil {
			s.cs = cs
		}
	}
}

// WithCallbacks merges cb into the session's callback set.
func WithCallbacks(cb Callbacks) Option {
	return func(s *Session) { s.callbacks = mergeCallbacks(s.callbacks, cb) }
}

// WithSinkFactory overrides how output files are created. Defaults to
// NewFileSink. Tests substitute an in-memory Sink through this hook.
func WithSinkFactory(f SinkFactory) Option {
	return func(s *Session) {
		if f != nil {
			s.newSink = f
		}
	}
}

// Session drives a single receive-side conversation over one IOPort: the
// handshake ladder, per-file block loop, and (for YMODEM) batch
// continuation across multiple files.
type Session struct {
	port    *pushbackPort
	logger  Logger
	cs      Checksummer
	dir     string
	overrun OverrunPolicy

	callbacks Callbacks
	newSink   SinkFactory

	detector *ProtocolDetector

	handshakeByte byte
	haveHandshake bool
}

// NewSession constructs a Session ready to receive over port.
func NewSession(port IOPort, opts ...Option) *Session {
	s := &Session{
		port:      newPushbackPort(port),
		logger:    NoopLogger{},
		cs:        NewChecksummer(),
		dir:       ".",
		overrun:   OverrunIgnore,
		callbacks: defaultCallbacks(),
		newSink:   NewFileSink,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.detector = NewProtocolDetector(func(p Protocol) {
		s.logger.Infof("Detected protocol: %s", p)
		s.callbacks.OnLog("Detected protocol: " + p.String())
	})
	return s
}

// DetectedProtocol returns the dialect the protocol detector has narrowed
// to, if it has narrowed to exactly one.
func (s *Session) DetectedProtocol() (Protocol, bool) {
	return s.detector.Detected()
}

// Receive runs the handshake ladder and then receives files until the
// transfer ends: a single file for XMODEM, or the whole batch for YMODEM
// (terminated by an empty block 0). On any fatal error the controller runs
// the graceful-abort sequence before returning.
func (s *Session) Receive(ctx context.Context) ([]Download, error) {
	var downloads []Download
	for {
		if err := s.runHandshake(ctx); err != nil {
			abortErr := s.gracefulAbort(ctx)
			if abortErr != nil && !errors.Is(abortErr, ErrUserCancel) {
				s.logger.Errorf("error during abort: %v", abortErr)
			}
			return downloads, err
		}
		dl, more, err := s.receiveFile(ctx)
		if err != nil {
			if dl != nil && dl.sink != nil {
				dl.sink.Remove()
			}
			abortErr := s.gracefulAbort(ctx)
			if abortErr != nil && !errors.Is(abortErr, ErrUserCancel) {
				s.logger.Errorf("error during abort: %v", abortErr)
			}
			return downloads, err
		}
		if dl != nil {
			downloads = append(downloads, *dl)
			s.callbacks.OnReceived(*dl)
		}
		if !more {
			return downloads, nil
		}
	}
}

// runHandshake negotiates (or, for the second and later files of a batch,
// re-confirms) the dialect with the sender.
func (s *Session) runHandshake(ctx context.Context) error {
	if err := drain(ctx, s.port, byteTimeout); err != nil && !errors.Is(err, ErrReadTimeout) {
		return err
	}

	if s.haveHandshake {
		for i := 0; i < reusedHandshakeAttempts; i++ {
			if err := s.port.WriteByte(s.handshakeByte); err != nil {
				return err
			}
			b, err := s.port.ReadByte(ctx, headerTimeout)
			if err == nil {
				s.port.Pushback(b)
				return nil
			}
			if !errors.Is(err, ErrReadTimeout) {
				return err
			}
		}
		return NewError(ErrHandshakeTimeout, "handshake timed out")
	}

	if ok, err := s.probeHandshake(ctx, HandshakeStreaming, streamingProbeAttempts); err != nil {
		return err
	} else if ok {
		s.detector.SetStreaming(true)
		s.handshakeByte = HandshakeStreaming
		s.haveHandshake = true
		return nil
	}
	s.detector.SetStreaming(false)

	if ok, err := s.probeHandshake(ctx, HandshakeCRC, crcProbeAttempts); err != nil {
		return err
	} else if ok {
		s.detector.SetCRC(true)
		s.handshakeByte = HandshakeCRC
		s.haveHandshake = true
		return nil
	}
	s.detector.SetCRC(false)

	if ok, err := s.probeHandshake(ctx, NAK, checksumProbeAttempts); err != nil {
		return err
	} else if ok {
		s.handshakeByte = NAK
		s.haveHandshake = true
		return nil
	}

	return NewError(ErrHandshakeTimeout, "handshake timed out")
}

// probeHandshake sends probe up to attempts times, ladderTimeout apart,
// returning true the moment any byte comes back (stashed for the next real
// read).
func (s *Session) probeHandshake(ctx context.Context, probe byte, attempts int) (bool, error) {
	for i := 0; i < attempts; i++ {
		if err := s.port.WriteByte(probe); err != nil {
			return false, err
		}
		b, err := s.port.ReadByte(ctx, ladderTimeout)
		if err == nil {
			s.port.Pushback(b)
			return true, nil
		}
		if !errors.Is(err, ErrReadTimeout) {
			return false, err
		}
	}
	return false, nil
}

// failureDownload returns cur so Receive can clean up its sink, or nil if
// no sink has been opened yet (nothing to remove).
func (s *Session) failureDownload(cur *Download) *Download {
	if cur.sink != nil {
		return cur
	}
	return nil
}

// receiveFile runs the per-block loop for one file. more reports whether
// the caller should loop for another file (true for an in-progress YMODEM
// batch). dl is nil when a block 0 with an empty name signalled end of
// batch.
func (s *Session) receiveFile(ctx context.Context) (dl *Download, more bool, err error) {
	prevBlockNum := -1
	endOfFile := false
	retries := 0
	var cur Download

	for {
		blk, ferr := readBlock(ctx, s.port, s.cs, s.detector.IsCRC)
		if ferr != nil {
			if IsCancelled(ferr) {
				return s.failureDownload(&cur), false, ferr
			}
			if blk.Kind != blockGarbage {
				return s.failureDownload(&cur), false, ferr
			}
			if s.detector.IsStreaming {
				return s.failureDownload(&cur), false, ferr
			}
			retries++
			if retries > maxRetries {
				return s.failureDownload(&cur), false, NewError(ErrTooManyRetries, "too many errors")
			}
			if err := s.nak(ctx); err != nil {
				return s.failureDownload(&cur), false, err
			}
			continue
		}

		switch blk.Kind {
		case blockEOT:
			if s.detector.IsStreaming || endOfFile {
				if err := s.finalizeFile(&cur); err != nil {
					return s.failureDownload(&cur), false, err
				}
				if err := s.port.WriteByte(ACK); err != nil {
					return s.failureDownload(&cur), false, err
				}
				if cur.sink != nil {
					return &cur, s.detector.IsBatch, nil
				}
				return nil, s.detector.IsBatch, nil
			}
			endOfFile = true
			if err := s.nak(ctx); err != nil {
				return s.failureDownload(&cur), false, err
			}
			continue

		case blockSenderCancel:
			return s.failureDownload(&cur), false, ferr

		case blockData:
			endOfFile = false
			if !validBlockNum(prevBlockNum, blk.Num) {
				return s.failureDownload(&cur), false, NewBlockError(ErrProtocol, "unexpected block number", int(blk.Num))
			}
			if int(blk.Num) == prevBlockNum {
				// Duplicate retransmission: re-acknowledge without writing.
				retries = 0
				if !s.detector.IsStreaming {
					if err := s.port.WriteByte(ACK); err != nil {
						return s.failureDownload(&cur), false, err
					}
				}
				continue
			}

			if prevBlockNum < 0 && blk.Num == 0 {
				s.detector.SetBatch(true)
				parsed, ok := parseBlock0(blk.Payload)
				if !ok {
					if !s.detector.IsStreaming {
						if err := s.port.WriteByte(ACK); err != nil {
							return s.failureDownload(&cur), false, err
						}
					}
					return nil, false, nil
				}
				sink, serr := s.newSink(s.dir, parsed.Name)
				if serr != nil {
					return s.failureDownload(&cur), false, NewError(ErrIO, serr.Error())
				}
				parsed.sink = sink
				cur = parsed
				s.callbacks.OnProgress(0, cur.Length)
				prevBlockNum = 0
				retries = 0
				if !s.detector.IsStreaming {
					if err := s.port.WriteByte(ACK); err != nil {
						return s.failureDownload(&cur), false, err
					}
				}
				if err := s.port.WriteByte(s.handshakeByte); err != nil {
					return s.failureDownload(&cur), false, err
				}
				continue
			}

			if prevBlockNum < 0 && blk.Num == 1 {
				s.detector.SetBatch(false)
				s.detector.Set1K(len(blk.Payload) == 1024)
				sink, serr := s.newSink(s.dir, "")
				if serr != nil {
					return s.failureDownload(&cur), false, NewError(ErrIO, serr.Error())
				}
				cur = Download{sink: sink}
			}

			if err := s.writePayload(&cur, blk.Payload); err != nil {
				return s.failureDownload(&cur), false, err
			}
			prevBlockNum = int(blk.Num)
			retries = 0
			s.callbacks.OnProgress(cur.written, cur.Length)
			if !s.detector.IsStreaming {
				if err := s.port.WriteByte(ACK); err != nil {
					return s.failureDownload(&cur), false, err
				}
			}
		}
	}
}

// nak purges pending input and sends a single NAK byte.
func (s *Session) nak(ctx context.Context) error {
	if err := drain(ctx, s.port, byteTimeout); err != nil && !errors.Is(err, ErrReadTimeout) {
		return err
	}
	return s.port.WriteByte(NAK)
}

// writePayload appends payload to the current file's sink, tracking
// whether the write that will be checked at finalizeFile might be the
// transfer's last packet.
func (s *Session) writePayload(dl *Download, payload []byte) error {
	if _, err := dl.sink.Write(payload); err != nil {
		return NewError(ErrIO, err.Error())
	}
	wasBelow := dl.Length <= 0 || dl.written < dl.Length
	dl.written += int64(len(payload))
	if dl.Length > 0 {
		nowAtOrAbove := dl.written >= dl.Length
		switch {
		case wasBelow && nowAtOrAbove:
			dl.possibleLastPacket = true
		case !wasBelow:
			dl.possibleLastPacket = false
		}
	}
	return nil
}

// finalizeFile closes the sink (if one exists) and applies the overrun
// policy for a declared, nonzero length.
func (s *Session) finalizeFile(dl *Download) error {
	if dl.sink == nil {
		return nil
	}
	if dl.Length > 0 {
		overrun := dl.written - dl.Length
		switch {
		case overrun < 0:
			s.callbacks.OnLog("file shorter than declared length")
		case overrun > 0 && dl.possibleLastPacket:
			if s.overrun != OverrunAccept {
				if err := dl.sink.Truncate(dl.Length); err != nil {
					return NewError(ErrIO, err.Error())
				}
				dl.written = dl.Length
			}
		case overrun > 0:
			switch s.overrun {
			case OverrunError:
				return NewError(ErrOverrun, "declared length exceeded")
			case OverrunIgnore:
				if err := dl.sink.Truncate(dl.Length); err != nil {
					return NewError(ErrIO, err.Error())
				}
				dl.written = dl.Length
			default: // OverrunAccept, OverrunMixed
				s.callbacks.OnLog("declared length exceeded, keeping extra bytes")
			}
		}
	}
	if err := dl.sink.SetModTime(dl.ModTime); err != nil {
		return NewError(ErrIO, err.Error())
	}
	return dl.sink.Close()
}

// gracefulAbort sends the cancel sequence: for streaming dialects, two CAN
// bytes up front (to stop the sender mid-stream) before draining, then the
// remaining CANs and a trailing burst of BS bytes.
func (s *Session) gracefulAbort(ctx context.Context) error {
	streaming := s.detector.IsStreaming
	remaining := canCount
	if streaming {
		if err := writeBytes(s.port, CAN, CAN); err != nil {
			return err
		}
		remaining -= 2
	}
	if err := drain(ctx, s.port, byteTimeout); err != nil && !errors.Is(err, ErrReadTimeout) && !errors.Is(err, ErrUserCancel) {
		return err
	}
	for i := 0; i < remaining; i++ {
		if err := s.port.WriteByte(CAN); err != nil {
			return err
		}
	}
	for i := 0; i < canCount; i++ {
		if err := s.port.WriteByte(BS); err != nil {
			return err
		}
	}
	return nil
}
