package main

import (
	"context"
	"errors"
	"time"

	"go.bug.st/serial"

	"github.com/diggernet/XYModem/xmodem"
)

// serialPort adapts a go.bug.st/serial.Port to xmodem.IOPort. This is the
// classic transport for these protocols: a physical or virtual serial
// link with no framing of its own.
type serialPort struct {
	port serial.Port
}

func openSerialPort(name string, baud int) (*serialPort, error) {
	if baud == 0 {
		baud = 115200
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return &serialPort{port: p}, nil
}

func (s *serialPort) ReadByte(ctx context.Context, timeout time.Duration) (byte, error) {
	select {
	case <-ctx.Done():
		return 0, errors.Join(xmodem.ErrUserCancel, ctx.Err())
	default:
	}
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	buf := make([]byte, 1)
	n, err := s.port.Read(buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, xmodem.ErrReadTimeout
	}
	return buf[0], nil
}

func (s *serialPort) WriteByte(b byte) error {
	_, err := s.port.Write([]byte{b})
	return err
}

func (s *serialPort) Close() error {
	return s.port.Close()
}
