package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/diggernet/XYModem/xmodem"
)

// sshPort adapts an SSH session's stdin/stdout to xmodem.IOPort, for
// receiving a transfer piped through a remote sz-compatible command. Unlike
// a serial port, an SSH channel has no read-deadline primitive, so timeouts
// are implemented with a background reader goroutine feeding a channel.
type sshPort struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	bytes chan byte
	errs  chan error
}

func dialSSHPort(host, user, password, keyFile string) (*sshPort, error) {
	auths := []ssh.AuthMethod{}
	if password != "" {
		auths = append(auths, ssh.Password(password))
	}
	if keyFile != "" {
		key, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, err
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, err
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}
	client, err := ssh.Dial("tcp", host, cfg)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, err
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := session.Start("sz --xmodem -"); err != nil {
		session.Close()
		return nil, err
	}

	p := &sshPort{
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		bytes:   make(chan byte, 256),
		errs:    make(chan error, 1),
	}
	go p.pump()
	return p, nil
}

// pump continuously reads single bytes from stdout and forwards them,
// giving ReadByte something to select against with a timeout.
func (p *sshPort) pump() {
	buf := make([]byte, 1)
	for {
		n, err := p.stdout.Read(buf)
		if n > 0 {
			p.bytes <- buf[0]
		}
		if err != nil {
			p.errs <- err
			return
		}
	}
}

func (p *sshPort) ReadByte(ctx context.Context, timeout time.Duration) (byte, error) {
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

func (p *sshPort) WriteByte(b byte) error {
	_, err := p.stdin.Write([]byte{b})
	return err
}

func (p *sshPort) Close() error {
	p.stdin.Close()
	return p.session.Close()
}
