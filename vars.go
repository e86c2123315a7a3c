package imap

import (
	"strings"
	"time"
)

// String replacers for escaping/unescaping quotes
var (
	AddSlashes    = strings.NewReplacer(`"`, `\"`)
	RemoveSlashes = strings.NewReplacer(`\"`, `"`)
)

// Verbose outputs every command and its response with the IMAP server
var Verbose = false

// SkipResponses skips printing server responses in verbose mode
var SkipResponses = false

// RetryCount is the number of times retried commands get retried
var RetryCount = 10

// DialTimeout defines how long to wait when establishing a new connection.
// Zero means no timeout.
var DialTimeout time.Duration

// CommandTimeout defines how long to wait for a command to complete.
// Zero means no timeout. It does not apply to the IDLE waits, which manage
// their own read timeouts.
var CommandTimeout time.Duration

// TLSSkipVerify disables certificate verification when establishing new
// connections. Use with caution; skipping verification exposes the
// connection to man-in-the-middle attacks.
var TLSSkipVerify bool

// DefaultKeepalive is how long WaitKeepalive lets a single IDLE sit quiet
// before refreshing it. RFC 2177 advises terminating and re-issuing IDLE at
// least every 29 minutes so the server does not log the client off as
// inactive. Override per handle with SetKeepalive.
var DefaultKeepalive = 29 * time.Minute

// idleDrainTimeout bounds the read of the tagged response that follows DONE
// when a keepalive wait expires. Long enough to reliably get the
// acknowledgement, short enough that a dead connection is noticed.
const idleDrainTimeout = 60 * time.Second
