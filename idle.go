package imap

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrIdleProtocol is returned when the server answers the IDLE command with
// something other than a continuation request. The session should be
// considered corrupted and the connection re-established.
var ErrIdleProtocol = errors.New("imap idle: server did not send a continuation")

// IdleHandle blocks a connection waiting for the selected mailbox to change,
// using the IDLE command from RFC 2177.
//
// A handle owns its connection: from Idle until Close, no other command may
// be issued on the Dialer. The wait methods report whether the server pushed
// an update; they do not parse what changed. Callers are expected to close
// the handle (usually with defer) and then inspect the mailbox with normal
// commands.
//
// After any wait method returns, call Close and create a fresh handle to
// wait again. Close is idempotent and guarantees the terminating DONE is
// sent exactly once, whether or not a wait was ever attempted.
type IdleHandle struct {
	d         *Dialer
	tag       []byte
	keepalive time.Duration
	done      bool
}

// Idle issues the IDLE command and returns a handle in the active idle
// state. The folder to watch must already be selected. Fails with
// ErrConnBusy if a handle is already active on this connection, and with
// ErrIdleProtocol if the server refuses the command; in either case the
// connection remains usable for regular commands.
func (d *Dialer) Idle() (*IdleHandle, error) {
	d.stateMu.Lock()
	switch d.state {
	case StateIdling:
		d.stateMu.Unlock()
		return nil, ErrConnBusy
	case StateSelected:
	default:
		d.stateMu.Unlock()
		return nil, fmt.Errorf("imap idle: no folder selected")
	}
	d.state = StateIdling
	d.stateMu.Unlock()

	h := &IdleHandle{d: d, keepalive: DefaultKeepalive}
	if err := h.init(); err != nil {
		d.setState(StateSelected)
		return nil, err
	}
	return h, nil
}

// init performs the IDLE handshake. The command takes no arguments; the
// server must answer with a continuation request. Its tagged completion only
// arrives later, either because it rejected the command or after we send
// DONE.
func (h *IdleHandle) init() error {
	tag, err := h.d.runCommand("IDLE")
	if err != nil {
		return err
	}
	h.tag = tag

	line, err := h.d.readLine()
	if err != nil {
		return err
	}
	if bytes.HasPrefix(line, []byte("+")) {
		return nil
	}

	// The only non-continuation the protocol allows here is a tagged NO/BAD
	// refusing the command outright. Either way the idle never started, so
	// reject without reading or writing anything further.
	return fmt.Errorf("%w (got %q)", ErrIdleProtocol, dropNl(line))
}

// terminate ends the IDLE. Idempotent: once the DONE has been written,
// later calls perform no I/O.
func (h *IdleHandle) terminate() error {
	if h.done {
		return nil
	}
	if err := h.d.writeLine([]byte("DONE")); err != nil {
		return err
	}
	// Marked before reading the acknowledgement so a failure below does not
	// cause a second DONE on a later call.
	h.done = true
	return h.d.readResponse(h.tag)
}

// Close ends the IDLE if it is still active and returns the connection to
// the command-ready state. Safe to call multiple times; meant to be
// deferred. When the returned error is ignored (the usual deferred case),
// the failure is still visible through the debug log.
func (h *IdleHandle) Close() error {
	err := h.terminate()
	if err != nil {
		debugLog(h.d.ConnNum, h.d.Folder, "idle termination failed", "error", err)
	}
	h.d.setState(StateSelected)
	return err
}

// SetKeepalive overrides the refresh interval WaitKeepalive uses for this
// handle. Call it before waiting.
func (h *IdleHandle) SetKeepalive(interval time.Duration) {
	h.keepalive = interval
}

// Wait blocks until the server pushes any update line, with no read timeout
// in effect. It returns true when a line arrives; every error is a hard
// failure. This is the only wait available when the transport does not
// implement ReadTimeoutSetter, and it can only be interrupted by closing the
// connection from another goroutine.
func (h *IdleHandle) Wait() (bool, error) {
	if _, err := h.d.readLine(); err != nil {
		return false, err
	}
	return true, nil
}

// WaitKeepalive blocks until the server pushes an update or the keepalive
// interval elapses. This is the recommended wait: it refreshes the IDLE
// within the inactivity window RFC 2177 warns about, so a caller loop that
// re-creates the handle whenever it returns false can listen indefinitely.
func (h *IdleHandle) WaitKeepalive() (bool, error) {
	return h.WaitWithTimeout(h.keepalive)
}

// WaitWithTimeout blocks until the server pushes an update or timeout
// elapses.
//
// On an update it returns true with the previous read timeout restored; the
// IDLE is still active and ends when the handle is closed. On timeout it
// returns false after terminating the IDLE: the connection is back in the
// command-ready state (under the fixed 60 second drain timeout, which is not
// restored) and a new handle is needed to keep waiting. Any other read error
// is a hard failure and the connection should be assumed unusable.
func (h *IdleHandle) WaitWithTimeout(timeout time.Duration) (bool, error) {
	rt, ok := h.d.conn.(ReadTimeoutSetter)
	if !ok {
		return false, fmt.Errorf("imap idle: transport %T does not support read timeouts", h.d.conn)
	}

	saved, err := rt.ReadTimeout()
	if err != nil {
		return false, err
	}
	if err := rt.SetReadTimeout(timeout); err != nil {
		return false, err
	}

	_, err = h.d.readLine()
	if err == nil {
		// Data arrived. The idle stays active; the caller decides when to
		// end it.
		if err := rt.SetReadTimeout(saved); err != nil {
			return false, err
		}
		return true, nil
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		debugLog(h.d.ConnNum, h.d.Folder, "idle wait hit keepalive timeout, terminating", "timeout", timeout)
		if err := rt.SetReadTimeout(idleDrainTimeout); err != nil {
			return false, err
		}
		if err := h.terminate(); err != nil {
			return false, err
		}
		return false, nil
	}
	return false, err
}
