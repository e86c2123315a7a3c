package imap

import (
	"crypto/tls"
	"net"
	"time"
)

// ReadTimeoutSetter must be implemented by a transport for its connection to
// support the timeout-bounded IDLE waits (WaitKeepalive, WaitWithTimeout).
// The plain Wait works on any transport.
//
// A zero duration clears the timeout.
type ReadTimeoutSetter interface {
	// SetReadTimeout bounds subsequent reads to the given duration.
	SetReadTimeout(timeout time.Duration) error

	// ReadTimeout returns the currently configured read timeout.
	ReadTimeout() (time.Duration, error)
}

// The net package exposes read deadlines as absolute times and offers no
// getter, so both transports record the duration they last installed and arm
// the deadline relative to time.Now. The IDLE waits only ever install a
// timeout immediately before a single blocking read, where the two models
// agree.

// tcpTransport is a plaintext IMAP connection.
type tcpTransport struct {
	*net.TCPConn
	timeout time.Duration
}

func (t *tcpTransport) SetReadTimeout(timeout time.Duration) error {
	deadline := time.Time{}
	if timeout != 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := t.TCPConn.SetReadDeadline(deadline); err != nil {
		return err
	}
	t.timeout = timeout
	return nil
}

func (t *tcpTransport) ReadTimeout() (time.Duration, error) {
	return t.timeout, nil
}

// tlsTransport is an encrypted IMAP connection. tls.Conn forwards deadlines
// to the underlying socket.
type tlsTransport struct {
	*tls.Conn
	timeout time.Duration
}

func (t *tlsTransport) SetReadTimeout(timeout time.Duration) error {
	deadline := time.Time{}
	if timeout != 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := t.Conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	t.timeout = timeout
	return nil
}

func (t *tlsTransport) ReadTimeout() (time.Duration, error) {
	return t.timeout, nil
}
