package imap

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/logrusorgru/aurora"
)

var (
	nextConnNum      = 0
	nextConnNumMutex = sync.RWMutex{}
)

// Connection states
const (
	StateDisconnected = iota
	StateConnected
	StateSelected
	StateIdling
)

// Dialer represents an IMAP connection
type Dialer struct {
	conn      net.Conn
	r         *bufio.Reader
	Folder    string
	ReadOnly  bool
	Username  string
	Password  string
	Host      string
	Port      int
	Connected bool
	ConnNum   int
	state     int
	stateMu   sync.Mutex
	exists    int
	// useXOAUTH2 indicates whether XOAUTH2 authentication should be used
	// on (re)connection instead of LOGIN. It is set by NewWithOAuth2.
	useXOAUTH2 bool
	// plaintext indicates the connection was made without TLS. It is set by
	// NewPlaintext.
	plaintext bool
}

func log(connNum int, folder string, msg interface{}) {
	var name string
	if len(folder) != 0 {
		name = fmt.Sprintf("IMAP%d:%s", connNum, folder)
	} else {
		name = fmt.Sprintf("IMAP%d", connNum)
	}
	fmt.Println(aurora.Sprintf("%s %s: %s", time.Now().Format("2006-01-02 15:04:05.000000"), aurora.Colorize(name, aurora.CyanFg|aurora.BoldFm), msg))
}

// dialHost establishes a TLS connection to the IMAP server
func dialHost(host string, port int) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	var cfg *tls.Config
	if TLSSkipVerify {
		cfg = &tls.Config{InsecureSkipVerify: true}
	}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, strconv.Itoa(port)), cfg)
	if err != nil {
		return nil, err
	}
	return &tlsTransport{Conn: conn}, nil
}

// dialHostPlaintext establishes an unencrypted connection to the IMAP server
func dialHostPlaintext(host string, port int) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return &tcpTransport{TCPConn: conn.(*net.TCPConn)}, nil
}

// New creates a new IMAP connection over TLS using username/password
// authentication
func New(username string, password string, host string, port int) (*Dialer, error) {
	return connect(username, password, host, port, false, false)
}

// NewWithOAuth2 creates a new IMAP connection over TLS using OAuth2
// authentication
func NewWithOAuth2(username string, accessToken string, host string, port int) (*Dialer, error) {
	return connect(username, accessToken, host, port, true, false)
}

// NewPlaintext creates a new IMAP connection without TLS using
// username/password authentication. Only suitable for servers on trusted
// networks (or tests); credentials travel in the clear.
func NewPlaintext(username string, password string, host string, port int) (*Dialer, error) {
	return connect(username, password, host, port, false, true)
}

func connect(username string, password string, host string, port int, useXOAUTH2 bool, plaintext bool) (d *Dialer, err error) {
	nextConnNumMutex.RLock()
	connNum := nextConnNum
	nextConnNumMutex.RUnlock()

	nextConnNumMutex.Lock()
	nextConnNum++
	nextConnNumMutex.Unlock()

	// Retry only the connection establishment, not authentication
	err = retry.Retry(func() error {
		if Verbose {
			log(connNum, "", aurora.Green(aurora.Bold("establishing connection")))
		}
		var conn net.Conn
		if plaintext {
			conn, err = dialHostPlaintext(host, port)
		} else {
			conn, err = dialHost(host, port)
		}
		if err != nil {
			if Verbose {
				log(connNum, "", aurora.Red(aurora.Bold(fmt.Sprintf("failed to connect: %s", err))))
			}
			return err
		}
		d = &Dialer{
			conn:       conn,
			r:          bufio.NewReader(conn),
			Username:   username,
			Password:   password,
			Host:       host,
			Port:       port,
			Connected:  true,
			ConnNum:    connNum,
			state:      StateConnected,
			useXOAUTH2: useXOAUTH2,
			plaintext:  plaintext,
		}
		return nil
	}, RetryCount, func(err error) error {
		if Verbose {
			log(connNum, "", aurora.Yellow(aurora.Bold("failed to connect, retrying shortly")))
			if d != nil && d.conn != nil {
				_ = d.conn.Close()
			}
		}
		return nil
	}, func() error {
		if Verbose {
			log(connNum, "", aurora.Yellow(aurora.Bold("retrying connection now")))
		}
		return nil
	})
	if err != nil {
		if Verbose {
			log(connNum, "", aurora.Red(aurora.Bold("failed to establish connection")))
			if d != nil && d.conn != nil {
				_ = d.conn.Close()
			}
		}
		return nil, err
	}

	// Authenticate after connection is established - no retry for auth failures
	if useXOAUTH2 {
		err = d.Authenticate(username, password)
	} else {
		err = d.Login(username, password)
	}
	if err != nil {
		if Verbose {
			log(connNum, "", aurora.Red(aurora.Bold(fmt.Sprintf("authentication failed: %s", err))))
		}
		_ = d.Close()
		return nil, err
	}

	return d, nil
}

// Clone creates a copy of the dialer with the same configuration
func (d *Dialer) Clone() (d2 *Dialer, err error) {
	d2, err = connect(d.Username, d.Password, d.Host, d.Port, d.useXOAUTH2, d.plaintext)
	if err != nil {
		return nil, err
	}
	if d.Folder != "" {
		if d.ReadOnly {
			err = d2.ExamineFolder(d.Folder)
		} else {
			err = d2.SelectFolder(d.Folder)
		}
		if err != nil {
			return nil, fmt.Errorf("imap clone: %s", err)
		}
	}
	return d2, err
}

// Close closes the IMAP connection
func (d *Dialer) Close() (err error) {
	if d.Connected {
		if Verbose {
			log(d.ConnNum, d.Folder, aurora.Yellow(aurora.Bold("closing connection")))
		}
		err = d.conn.Close()
		if err != nil {
			return fmt.Errorf("imap close: %s", err)
		}
		d.Connected = false
		d.setState(StateDisconnected)
	}
	return err
}

// Reconnect closes and reopens the IMAP connection with re-authentication
func (d *Dialer) Reconnect() (err error) {
	_ = d.Close()
	if Verbose {
		log(d.ConnNum, d.Folder, aurora.Yellow(aurora.Bold("reopening connection")))
	}

	var conn net.Conn
	if d.plaintext {
		conn, err = dialHostPlaintext(d.Host, d.Port)
	} else {
		conn, err = dialHost(d.Host, d.Port)
	}
	if err != nil {
		return fmt.Errorf("imap reconnect dial: %s", err)
	}
	d.conn = conn
	d.r = bufio.NewReader(conn)
	d.Connected = true
	d.setState(StateConnected)

	// Re-authenticate using the original method
	if d.useXOAUTH2 {
		if err := d.Authenticate(d.Username, d.Password); err != nil {
			// Best effort cleanup on failure
			_ = d.conn.Close()
			d.Connected = false
			return fmt.Errorf("imap reconnect auth xoauth2: %s", err)
		}
	} else {
		if err := d.Login(d.Username, d.Password); err != nil {
			_ = d.conn.Close()
			d.Connected = false
			return fmt.Errorf("imap reconnect login: %s", err)
		}
	}

	// Restore selected folder state if any
	if d.Folder != "" {
		if d.ReadOnly {
			if err := d.ExamineFolder(d.Folder); err != nil {
				return fmt.Errorf("imap reconnect examine: %s", err)
			}
		} else {
			if err := d.SelectFolder(d.Folder); err != nil {
				return fmt.Errorf("imap reconnect select: %s", err)
			}
		}
	}

	return nil
}

// State returns the current connection state
func (d *Dialer) State() int {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

func (d *Dialer) setState(state int) {
	d.stateMu.Lock()
	d.state = state
	d.stateMu.Unlock()
}
