// Package imap provides a small IMAP client built around the IDLE command
// (RFC 2177), for programs that want to block until a mailbox changes.
//
// The usual flow:
//
//   - Connect over TLS with New (or NewWithOAuth2), select a folder
//   - Call Idle to enter the IDLE state and get an IdleHandle
//   - Block on WaitKeepalive; true means the server pushed an update,
//     false means the keepalive interval elapsed and the IDLE was refreshed
//   - Close the handle, act on the change (GetUIDs/GetEmails), and repeat
//
// While an IdleHandle is active the connection belongs to it: no other
// command can be issued until the handle is closed. WaitKeepalive terminates
// and re-issues the IDLE before the server's inactivity window (29 minutes
// per RFC 2177) runs out, so a simple re-create loop keeps a connection
// listening indefinitely while still receiving updates immediately.
package imap
