package imap

import (
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func TestParseUIDSearchResponse(t *testing.T) {
	resp := "* SEARCH 123 456\r\nA1 OK SEARCH completed\r\n"
	got, err := parseUIDSearchResponse(resp)
	if err != nil {
		t.Fatalf("parseUIDSearchResponse error: %v", err)
	}
	want := []int{123, 456}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v want %v", got, want)
	}
}

func TestParseUIDSearchResponseEmpty(t *testing.T) {
	got, err := parseUIDSearchResponse("* SEARCH\r\nA1 OK SEARCH completed\r\n")
	if err != nil {
		t.Fatalf("parseUIDSearchResponse error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v want no uids", got)
	}
}

func TestParseFetchLine(t *testing.T) {
	body := "Subject: hi\r\n\r\nhello\r\n"
	line := []byte("* 1 FETCH (UID 7 BODY[] {" + strconv.Itoa(len(body)) + "}\r\n" + body + ")\r\n")

	uid, raw, ok := parseFetchLine(line)
	if !ok {
		t.Fatal("parseFetchLine rejected a valid FETCH line")
	}
	if uid != 7 {
		t.Errorf("uid = %d, want 7", uid)
	}
	if string(raw) != body {
		t.Errorf("raw = %q, want %q", raw, body)
	}
}

func TestParseFetchLineRejectsUnsolicited(t *testing.T) {
	for _, line := range []string{
		"* 23 EXISTS\r\n",
		"* 1 FETCH (UID 7 FLAGS (\\Seen))\r\n",
	} {
		if _, _, ok := parseFetchLine([]byte(line)); ok {
			t.Errorf("parseFetchLine accepted %q", line)
		}
	}
}

func TestParseEmail(t *testing.T) {
	raw := []byte("From: Test Sender <sender@example.com>\r\n" +
		"To: recipient@example.com\r\n" +
		"Subject: =?utf-8?q?h=C3=A9llo?=\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"hello world\r\n")

	d := &Dialer{}
	e := d.parseEmail(7, raw)
	if e == nil {
		t.Fatal("parseEmail returned nil for a valid message")
	}
	if e.UID != 7 {
		t.Errorf("UID = %d, want 7", e.UID)
	}
	if e.Subject != "héllo" {
		t.Errorf("Subject = %q, want %q", e.Subject, "héllo")
	}
	if e.Size != uint64(len(raw)) {
		t.Errorf("Size = %d, want %d", e.Size, len(raw))
	}
	if e.From["sender@example.com"] != "Test Sender" {
		t.Errorf("From = %v, want sender@example.com -> Test Sender", e.From)
	}
	if _, ok := e.To["recipient@example.com"]; !ok {
		t.Errorf("To = %v, want recipient@example.com", e.To)
	}
	if e.Sent.IsZero() {
		t.Error("Sent not parsed from Date header")
	}
	if !strings.Contains(e.Text, "hello world") {
		t.Errorf("Text = %q, want it to contain %q", e.Text, "hello world")
	}
}

func TestEmailAddressesString(t *testing.T) {
	e := EmailAddresses{"a@example.com": "Alice"}
	if got := e.String(); got != "Alice <a@example.com>" {
		t.Errorf("String() = %q, want %q", got, "Alice <a@example.com>")
	}

	e = EmailAddresses{"b@example.com": ""}
	if got := e.String(); got != "b@example.com" {
		t.Errorf("String() = %q, want %q", got, "b@example.com")
	}

	e = EmailAddresses{"c@example.com": "Last, First"}
	if got := e.String(); got != `"Last, First" <c@example.com>` {
		t.Errorf("String() = %q, want %q", got, `"Last, First" <c@example.com>`)
	}
}
