package imapx

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// connError marks an I/O-level failure on the wire. The session client
// treats it as a transport failure eligible for the single
// reconnect-and-retry; protocol-level refusals (tagged NO/BAD) are not
// wrapped in it and never retried.
type connError struct {
	op  string
	err error
}

func (e *connError) Error() string { return fmt.Sprintf("imap %s: %v", e.op, e.err) }
func (e *connError) Unwrap() error { return e.err }

// entry is one untagged server response: its text, with any literal
// payloads collected in order. Text segments around a literal are
// concatenated so regex extraction sees one line.
type entry struct {
	text     string
	literals [][]byte
}

// reply is the full result of one tagged command.
type reply struct {
	entries []entry
	status  string // OK, NO, or BAD
	text    string // human-readable completion text
}

func (r *reply) ok() bool { return r.status == "OK" }

// conn is a single IMAP connection. It is not safe for concurrent use;
// the owning Client serializes access.
type conn struct {
	nc      net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	tag     int
	timeout time.Duration
}

// newConn wraps an established network connection and consumes the
// server greeting.
func newConn(nc net.Conn, timeout time.Duration) (*conn, error) {
	c := &conn{
		nc:      nc,
		r:       bufio.NewReader(nc),
		w:       bufio.NewWriter(nc),
		timeout: timeout,
	}

	greeting, err := c.readLine()
	if err != nil {
		nc.Close()
		return nil, &connError{op: "greeting", err: err}
	}
	if !strings.HasPrefix(greeting, "* OK") && !strings.HasPrefix(greeting, "* PREAUTH") {
		nc.Close()
		return nil, &connError{op: "greeting", err: fmt.Errorf("unexpected greeting %q", greeting)}
	}

	return c, nil
}

func (c *conn) close() error {
	return c.nc.Close()
}

// execute sends one tagged command and collects responses until the
// matching tagged completion.
func (c *conn) execute(command string) (*reply, error) {
	c.tag++
	tag := fmt.Sprintf("a%04d", c.tag)

	if c.timeout > 0 {
		if err := c.nc.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, &connError{op: "deadline", err: err}
		}
	}

	if _, err := c.w.WriteString(tag + " " + command + "\r\n"); err != nil {
		return nil, &connError{op: "write", err: err}
	}
	if err := c.w.Flush(); err != nil {
		return nil, &connError{op: "write", err: err}
	}

	rep := &reply{}
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, &connError{op: "read", err: err}
		}

		if strings.HasPrefix(line, tag+" ") {
			rest := strings.TrimPrefix(line, tag+" ")
			status, text, _ := strings.Cut(rest, " ")
			rep.status = strings.ToUpper(status)
			rep.text = text
			return rep, nil
		}

		// Untagged data; command continuation requests do not occur
		// for the commands this client issues.
		e := entry{text: line}
		for {
			n, ok := trailingLiteralSize(e.text)
			if !ok {
				break
			}
			lit := make([]byte, n)
			if _, err := io.ReadFull(c.r, lit); err != nil {
				return nil, &connError{op: "read literal", err: err}
			}
			e.literals = append(e.literals, lit)

			cont, err := c.readLine()
			if err != nil {
				return nil, &connError{op: "read", err: err}
			}
			e.text += cont
		}
		rep.entries = append(rep.entries, e)
	}
}

// readLine reads one CRLF-terminated line, stripping the terminator.
func (c *conn) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// trailingLiteralSize reports the byte count of a literal announced at
// the end of a response line, e.g. `... BODY[] {1234}`.
func trailingLiteralSize(text string) (int, bool) {
	if !strings.HasSuffix(text, "}") {
		return 0, false
	}
	open := strings.LastIndexByte(text, '{')
	if open == -1 {
		return 0, false
	}
	n, err := strconv.Atoi(text[open+1 : len(text)-1])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// quoteString encodes a string as an IMAP quoted string.
func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
