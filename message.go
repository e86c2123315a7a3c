package imap

import (
	"bytes"
	"fmt"
	"mime"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	humanize "github.com/dustin/go-humanize"
	enmime "github.com/jhillyerd/enmime/v2"
	"golang.org/x/net/html/charset"
)

// EmailAddresses represents a map of email addresses to display names
type EmailAddresses map[string]string

// Email represents an IMAP email message
type Email struct {
	Sent        time.Time
	Size        uint64
	Subject     string
	UID         int
	MessageID   string
	From        EmailAddresses
	To          EmailAddresses
	ReplyTo     EmailAddresses
	CC          EmailAddresses
	BCC         EmailAddresses
	Text        string
	HTML        string
	Attachments []Attachment
}

// Attachment represents an email attachment
type Attachment struct {
	Name     string
	MimeType string
	Content  []byte
}

var (
	fetchLineRE   = regexp.MustCompile(`^\* \d+ FETCH `)
	fetchUIDRE    = regexp.MustCompile(`UID (\d+)`)
	searchLineRE  = regexp.MustCompile(`^\* SEARCH`)
	headerDecoder = mime.WordDecoder{CharsetReader: charset.NewReaderLabel}
)

// String returns a formatted string representation of EmailAddresses
func (e EmailAddresses) String() string {
	emails := strings.Builder{}
	i := 0
	for e, n := range e {
		if i != 0 {
			emails.WriteString(", ")
		}
		if len(n) != 0 {
			if strings.ContainsRune(n, ',') {
				emails.WriteString(fmt.Sprintf(`"%s" <%s>`, AddSlashes.Replace(n), e))
			} else {
				emails.WriteString(fmt.Sprintf(`%s <%s>`, n, e))
			}
		} else {
			emails.WriteString(e)
		}
		i++
	}
	return emails.String()
}

// String returns a formatted string representation of an Email
func (e Email) String() string {
	email := strings.Builder{}

	email.WriteString(fmt.Sprintf("Subject: %s\n", e.Subject))

	if len(e.To) != 0 {
		email.WriteString(fmt.Sprintf("To: %s\n", e.To))
	}
	if len(e.From) != 0 {
		email.WriteString(fmt.Sprintf("From: %s\n", e.From))
	}
	if len(e.CC) != 0 {
		email.WriteString(fmt.Sprintf("CC: %s\n", e.CC))
	}
	if len(e.BCC) != 0 {
		email.WriteString(fmt.Sprintf("BCC: %s\n", e.BCC))
	}
	if len(e.ReplyTo) != 0 {
		email.WriteString(fmt.Sprintf("ReplyTo: %s\n", e.ReplyTo))
	}
	if len(e.Text) != 0 {
		if len(e.Text) > 20 {
			email.WriteString(fmt.Sprintf("Text: %s...", e.Text[:20]))
		} else {
			email.WriteString(fmt.Sprintf("Text: %s", e.Text))
		}
		email.WriteString(fmt.Sprintf(" (%s)\n", humanize.Bytes(uint64(len(e.Text)))))
	}
	if len(e.HTML) != 0 {
		if len(e.HTML) > 20 {
			email.WriteString(fmt.Sprintf("HTML: %s...", e.HTML[:20]))
		} else {
			email.WriteString(fmt.Sprintf("HTML: %s", e.HTML))
		}
		email.WriteString(fmt.Sprintf(" (%s)\n", humanize.Bytes(uint64(len(e.HTML)))))
	}

	if len(e.Attachments) != 0 {
		email.WriteString(fmt.Sprintf("%d Attachment(s): %s\n", len(e.Attachments), e.Attachments))
	}

	return email.String()
}

func (a Attachment) String() string {
	return fmt.Sprintf("%s (%s %s)", a.Name, a.MimeType, humanize.Bytes(uint64(len(a.Content))))
}

// GetUIDs returns the UIDs in the current folder matching the search, e.g.
// "ALL", "UNSEEN", or a sequence set like "23:*"
func (d *Dialer) GetUIDs(search string) (uids []int, err error) {
	r, err := d.Exec("UID SEARCH "+search, true, RetryCount, nil)
	if err != nil {
		return nil, err
	}
	return parseUIDSearchResponse(r)
}

func parseUIDSearchResponse(response string) (uids []int, err error) {
	uids = make([]int, 0)
	for _, line := range strings.Split(response, nl) {
		if !searchLineRE.MatchString(line) {
			continue
		}
		for _, f := range strings.Fields(line)[2:] {
			uid, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("imap search response: bad uid %q: %s", f, err)
			}
			uids = append(uids, uid)
		}
	}
	sort.Ints(uids)
	return uids, nil
}

// GetEmails fetches the full messages with the given UIDs and parses them.
// Messages whose bodies cannot be parsed keep whatever headers could be
// salvaged.
func (d *Dialer) GetEmails(uids ...int) (emails map[int]*Email, err error) {
	emails = make(map[int]*Email, len(uids))
	if len(uids) == 0 {
		return emails, nil
	}

	uidsStr := strings.Builder{}
	for i, u := range uids {
		if i != 0 {
			uidsStr.WriteByte(',')
		}
		uidsStr.WriteString(strconv.Itoa(u))
	}

	_, err = d.Exec("UID FETCH "+uidsStr.String()+" BODY.PEEK[]", false, RetryCount, func(line []byte) error {
		uid, raw, ok := parseFetchLine(line)
		if !ok {
			// Unsolicited line mixed into the fetch (EXISTS etc.); skip it.
			return nil
		}
		if e := d.parseEmail(uid, raw); e != nil {
			emails[uid] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return emails, nil
}

// parseFetchLine splits a literal-bearing FETCH line into the message UID
// and the raw RFC 822 bytes of its body.
func parseFetchLine(line []byte) (uid int, raw []byte, ok bool) {
	head, rest, found := bytes.Cut(line, []byte(nl))
	if !found || !fetchLineRE.Match(head) {
		return 0, nil, false
	}

	a := atom.Find(head)
	if a == nil {
		return 0, nil, false
	}
	n, err := strconv.Atoi(string(a[1 : len(a)-1]))
	if err != nil || len(rest) < n {
		return 0, nil, false
	}

	m := fetchUIDRE.FindSubmatch(head)
	if m == nil {
		return 0, nil, false
	}
	uid, err = strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, nil, false
	}
	return uid, rest[:n], true
}

func (d *Dialer) parseEmail(uid int, raw []byte) *Email {
	e := &Email{UID: uid, Size: uint64(len(raw))}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		if Verbose {
			warnLog(d.ConnNum, d.Folder, "email body could not be parsed, salvaging headers", "uid", uid, "error", err)
			spew.Dump(string(raw))
		}
		return salvageHeaders(e, raw)
	}

	e.Subject = env.GetHeader("Subject")
	e.MessageID = strings.Trim(env.GetHeader("Message-Id"), "<>")
	e.Text = env.Text
	e.HTML = env.HTML
	if sent, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		e.Sent = sent
	}

	for _, a := range append(env.Attachments, env.Inlines...) {
		e.Attachments = append(e.Attachments, Attachment{
			Name:     a.FileName,
			MimeType: a.ContentType,
			Content:  a.Content,
		})
	}

	for _, a := range []struct {
		dest   *EmailAddresses
		header string
	}{
		{&e.From, "From"},
		{&e.ReplyTo, "Reply-To"},
		{&e.To, "To"},
		{&e.CC, "cc"},
		{&e.BCC, "bcc"},
	} {
		alist, _ := env.AddressList(a.header)
		*a.dest = toEmailAddresses(alist)
	}
	return e
}

// salvageHeaders recovers what it can from a message enmime rejected, using
// the plain stdlib header parser with charset-aware word decoding.
func salvageHeaders(e *Email, raw []byte) *Email {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	if subject, err := headerDecoder.DecodeHeader(msg.Header.Get("Subject")); err == nil {
		e.Subject = subject
	} else {
		e.Subject = msg.Header.Get("Subject")
	}
	if alist, err := msg.Header.AddressList("From"); err == nil {
		e.From = toEmailAddresses(alist)
	}
	if sent, err := msg.Header.Date(); err == nil {
		e.Sent = sent
	}
	return e
}

func toEmailAddresses(addrs []*mail.Address) EmailAddresses {
	m := make(EmailAddresses, len(addrs))
	for _, a := range addrs {
		m[strings.ToLower(a.Address)] = a.Name
	}
	return m
}
