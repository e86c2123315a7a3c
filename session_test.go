package imap

import (
	"strings"
	"testing"
)

func TestCheckTagged(t *testing.T) {
	tag := []byte("A1B2C3D4E5F6G7H8I9J0")

	tests := []struct {
		name     string
		line     string
		wantDone bool
		wantErr  bool
	}{
		{"ok completion", "A1B2C3D4E5F6G7H8I9J0 OK LOGIN completed\r\n", true, false},
		{"no completion", "A1B2C3D4E5F6G7H8I9J0 NO [AUTHENTICATIONFAILED] nope\r\n", true, true},
		{"bad completion", "A1B2C3D4E5F6G7H8I9J0 BAD parse error\r\n", true, true},
		{"untagged line", "* 23 EXISTS\r\n", false, false},
		{"different tag", "Z9Y8X7W6V5U4T3S2R1Q0 OK fine\r\n", false, false},
		{"short line", "A1\r\n", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done, err := checkTagged(tag, []byte(tt.line))
			if done != tt.wantDone {
				t.Errorf("done = %v, want %v", done, tt.wantDone)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckTaggedMalformedCompletion(t *testing.T) {
	tag := []byte("AAAAAAAAAAAAAAAAAAAA")

	// Truncated or garbled completions must come back as command failures,
	// never slice past the end of the line.
	for _, line := range []string{
		string(tag) + " X\n",
		string(tag) + " NO\r\n",
		string(tag) + "\r\n",
		string(tag) + " \r\n",
	} {
		done, err := checkTagged(tag, []byte(line))
		if !done {
			t.Errorf("checkTagged(%q) done = false, want true", line)
		}
		if err == nil {
			t.Errorf("checkTagged(%q) err = nil, want failure", line)
		}
	}
}

func TestCheckTaggedFailureMessageKeepsStatus(t *testing.T) {
	tag := []byte("AAAAAAAAAAAAAAAAAAAA")

	_, err := checkTagged(tag, []byte(string(tag)+" BAD parse error\r\n"))
	if err == nil {
		t.Fatal("checkTagged on a BAD completion returned nil error")
	}
	if !strings.Contains(err.Error(), "BAD parse error") {
		t.Errorf("error = %q, want it to contain %q", err, "BAD parse error")
	}

	_, err = checkTagged(tag, []byte(string(tag)+" NO [AUTHENTICATIONFAILED] nope\r\n"))
	if err == nil {
		t.Fatal("checkTagged on a NO completion returned nil error")
	}
	if !strings.Contains(err.Error(), "NO [AUTHENTICATIONFAILED] nope") {
		t.Errorf("error = %q, want it to contain %q", err, "NO [AUTHENTICATIONFAILED] nope")
	}
}

func TestParseExistsCount(t *testing.T) {
	resp := "* FLAGS (\\Answered \\Flagged \\Deleted \\Seen \\Draft)\r\n" +
		"* 23 EXISTS\r\n" +
		"* 0 RECENT\r\n" +
		"* OK [UIDVALIDITY 1] UIDs valid\r\n"
	if got := parseExistsCount(resp); got != 23 {
		t.Errorf("parseExistsCount = %d, want 23", got)
	}
	if got := parseExistsCount("nothing useful here"); got != 0 {
		t.Errorf("parseExistsCount with no EXISTS line = %d, want 0", got)
	}
}
