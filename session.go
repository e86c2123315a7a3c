package imap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/rs/xid"
)

const nl = "\r\n"

// atom matches the byte-count prefix of an IMAP literal, e.g. {42} at the
// end of a line that continues with 42 raw bytes.
var atom = regexp.MustCompile(`{\d+}$`)

// ErrConnBusy is returned when a command is attempted while an IdleHandle
// holds the connection.
var ErrConnBusy = errors.New("imap: connection is busy with an active IDLE")

// newTag generates a unique command tag.
// XID tags are 20 uppercase base32hex characters (0-9, A-V).
func newTag() []byte {
	return []byte(strings.ToUpper(xid.New().String()))
}

// runCommand writes a single tagged command line and returns the tag the
// caller needs to recognize the matching completion response.
func (d *Dialer) runCommand(command string) (tag []byte, err error) {
	tag = newTag()
	c := fmt.Sprintf("%s %s%s", tag, command, nl)

	if Verbose {
		sanitized := strings.ReplaceAll(strings.TrimSpace(c), fmt.Sprintf(`"%s"`, d.Password), `"****"`)
		debugLog(d.ConnNum, d.Folder, "sending command", "command", sanitized)
	}

	if _, err = d.conn.Write([]byte(c)); err != nil {
		return nil, err
	}
	return tag, nil
}

// writeLine writes a raw line to the server. The transport is unbuffered, so
// the line is on the wire when this returns.
func (d *Dialer) writeLine(b []byte) error {
	_, err := d.conn.Write(append(b[:len(b):len(b)], nl...))
	return err
}

// readLine reads one raw line, terminator included, honoring any read
// deadline active on the transport. Timeouts surface as a net.Error whose
// Timeout method reports true.
func (d *Dialer) readLine() ([]byte, error) {
	return d.r.ReadBytes('\n')
}

// readFullLine reads one logical line, absorbing any {n} literal
// continuations it announces along with the line that follows each literal.
func (d *Dialer) readFullLine() (line []byte, err error) {
	line, err = d.readLine()
	for err == nil {
		a := atom.Find(dropNl(line))
		if a == nil {
			break
		}

		var n int
		n, err = strconv.Atoi(string(a[1 : len(a)-1]))
		if err != nil {
			return nil, err
		}

		buf := make([]byte, n)
		if _, err = io.ReadFull(d.r, buf); err != nil {
			return nil, err
		}
		line = append(line, buf...)

		buf, err = d.r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = append(line, buf...)
	}
	return line, err
}

// checkTagged reports whether line is the tagged completion for tag, and if
// so whether the server reported success. Anything after the tag that is not
// an OK status, including a truncated or garbled line, is reported as a
// command failure rather than trusted to have a well-formed shape.
func checkTagged(tag []byte, line []byte) (done bool, err error) {
	trimmed := dropNl(line)
	if len(trimmed) < len(tag) || !bytes.Equal(trimmed[:len(tag)], tag) {
		return false, nil
	}
	rest := bytes.TrimPrefix(trimmed[len(tag):], []byte{' '})
	status, _, _ := bytes.Cut(rest, []byte{' '})
	if bytes.Equal(status, []byte("OK")) {
		return true, nil
	}
	return true, fmt.Errorf("imap command failed: %s", rest)
}

// readResponse reads and discards lines until the tagged completion for tag
// arrives, returning an error for a NO or BAD result.
func (d *Dialer) readResponse(tag []byte) error {
	for {
		line, err := d.readFullLine()
		if err != nil {
			return err
		}
		if Verbose && !SkipResponses {
			debugLog(d.ConnNum, d.Folder, "server response", "response", string(dropNl(line)))
		}
		if done, err := checkTagged(tag, line); done {
			return err
		}
	}
}

// Exec executes an IMAP command with retry logic and response building
func (d *Dialer) Exec(command string, buildResponse bool, retryCount int, processLine func(line []byte) error) (response string, err error) {
	if d.State() == StateIdling {
		return "", ErrConnBusy
	}

	var resp strings.Builder
	err = retry.Retry(func() (err error) {
		if CommandTimeout != 0 {
			_ = d.conn.SetDeadline(time.Now().Add(CommandTimeout))
			defer func() { _ = d.conn.SetDeadline(time.Time{}) }()
		}

		tag, err := d.runCommand(command)
		if err != nil {
			return err
		}

		if buildResponse {
			resp = strings.Builder{}
		}
		for {
			var line []byte
			line, err = d.readFullLine()
			if err != nil {
				return err
			}

			if Verbose && !SkipResponses {
				debugLog(d.ConnNum, d.Folder, "server response", "response", string(dropNl(line)))
			}

			var done bool
			if done, err = checkTagged(tag, line); done {
				return err
			}

			if processLine != nil {
				if err = processLine(line); err != nil {
					return err
				}
			}
			if buildResponse {
				resp.Write(line)
			}
		}
	}, retryCount, func(err error) error {
		if Verbose {
			warnLog(d.ConnNum, d.Folder, "command failed, closing connection", "error", err)
		}
		_ = d.Close()
		return nil
	}, func() error {
		return d.Reconnect()
	})
	if err != nil {
		errorLog(d.ConnNum, d.Folder, "command retries exhausted", "error", err)
		return "", err
	}

	if buildResponse {
		return resp.String(), nil
	}
	return response, err
}
