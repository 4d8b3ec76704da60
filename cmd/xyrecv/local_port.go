package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/diggernet/XYModem/xmodem"
)

// localPort drives a transfer over the controlling terminal's stdin/stdout,
// putting it into raw mode for the duration so control bytes (NAK, CAN,
// EOT) pass through untouched instead of being intercepted by line
// discipline. Useful for exercising the protocol against a `cu`/`minicom`
// style local loopback without a real serial device.
type localPort struct {
	oldState *term.State
	bytes    chan byte
	errs     chan error
}

func openLocalPort() (*localPort, error) {
	fd := int(os.Stdin.Fd())
	var oldState *term.State
	if term.IsTerminal(fd) {
		st, err := term.MakeRaw(fd)
		if err != nil {
			return nil, err
		}
		oldState = st
	}
	p := &localPort{oldState: oldState, bytes: make(chan byte, 256), errs: make(chan error, 1)}
	go p.pump()
	return p, nil
}

func (p *localPort) pump() {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			p.bytes <- buf[0]
		}
		if err != nil {
			p.errs <- err
			return
		}
	}
}

func (p *localPort) ReadByte(ctx context.Context, timeout time.Duration) (byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b := <-p.bytes:
		return b, nil
	case err := <-p.errs:
		return 0, err
	case <-timer.C:
		return 0, xmodem.ErrReadTimeout
	case <-ctx.Done():
		return 0, errors.Join(xmodem.ErrUserCancel, ctx.Err())
	}
}

func (p *localPort) WriteByte(b byte) error {
	_, err := os.Stdout.Write([]byte{b})
	return err
}

func (p *localPort) Close() error {
	if p.oldState != nil {
		return term.Restore(int(os.Stdin.Fd()), p.oldState)
	}
	return nil
}
