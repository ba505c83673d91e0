package imapx

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tdvo/mailscreen/internal/mailbox"
)

// scriptedHandler maps one received command (tag stripped) to the
// untagged lines and tagged status the fake server replies with. A
// "CLOSE" status drops the connection without a tagged completion.
type scriptedHandler func(cmd string) (lines []string, status string)

// serveIMAP runs a minimal scripted IMAP server on one end of a pipe.
func serveIMAP(nc net.Conn, handler scriptedHandler) {
	go func() {
		defer nc.Close()
		if _, err := nc.Write([]byte("* OK ready\r\n")); err != nil {
			return
		}

		r := bufio.NewReader(nc)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			tag, cmd, _ := strings.Cut(line, " ")

			if strings.HasPrefix(cmd, "LOGOUT") {
				nc.Write([]byte(tag + " OK bye\r\n"))
				return
			}

			lines, status := handler(cmd)
			if status == "CLOSE" {
				return
			}

			var sb strings.Builder
			for _, l := range lines {
				sb.WriteString(l + "\r\n")
			}
			sb.WriteString(tag + " " + status + " done\r\n")
			if _, err := nc.Write([]byte(sb.String())); err != nil {
				return
			}
		}
	}()
}

// newTestClient wires a client to a queue of scripted server
// connections handed out per dial.
func newTestClient(t *testing.T, handlers ...scriptedHandler) *Client {
	t.Helper()

	dials := 0
	return NewClient(Config{
		Credentials: mailbox.Credentials{Email: "user@example.com", Password: "secret"},
		DialFunc: func(ctx context.Context) (net.Conn, error) {
			if dials >= len(handlers) {
				t.Fatalf("unexpected dial #%d", dials+1)
			}
			clientEnd, serverEnd := net.Pipe()
			serveIMAP(serverEnd, handlers[dials])
			dials++
			return clientEnd, nil
		},
	}, nil)
}

// okHandler accepts LOGIN/NOOP/EXAMINE and delegates the rest.
func okHandler(rest scriptedHandler) scriptedHandler {
	return func(cmd string) ([]string, string) {
		switch {
		case strings.HasPrefix(cmd, "LOGIN"),
			strings.HasPrefix(cmd, "NOOP"),
			strings.HasPrefix(cmd, "EXAMINE"):
			return nil, "OK"
		}
		return rest(cmd)
	}
}

func TestSearchUnfilteredReturnsAllNewestFirst(t *testing.T) {
	client := newTestClient(t, okHandler(func(cmd string) ([]string, string) {
		if strings.HasPrefix(cmd, "UID SEARCH") {
			if !strings.Contains(cmd, "ALL") {
				t.Errorf("predicate-free criteria rendered as %q, want ALL", cmd)
			}
			return []string{"* SEARCH 1 2 3"}, "OK"
		}
		t.Errorf("unexpected command %q", cmd)
		return nil, "BAD"
	}))
	defer client.Close()

	ids, err := client.Search(context.Background(), "INBOX", mailbox.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := []string{
		mailbox.EncodeMessageID("INBOX", 3),
		mailbox.EncodeMessageID("INBOX", 2),
		mailbox.EncodeMessageID("INBOX", 1),
	}
	if len(ids) != len(want) {
		t.Fatalf("Search returned %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q (newest first)", i, ids[i], want[i])
		}
	}
}

func TestSearchReconnectsOnceAfterTransportFailure(t *testing.T) {
	// First session drops mid-operation; the retry session succeeds.
	// The caller sees the correct result exactly once.
	dropOnSearch := okHandler(func(cmd string) ([]string, string) {
		return nil, "CLOSE"
	})
	succeed := okHandler(func(cmd string) ([]string, string) {
		if strings.HasPrefix(cmd, "UID SEARCH") {
			return []string{"* SEARCH 7"}, "OK"
		}
		return nil, "BAD"
	})

	client := newTestClient(t, dropOnSearch, succeed)
	defer client.Close()

	ids, err := client.Search(context.Background(), "INBOX", mailbox.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search after reconnect: %v", err)
	}
	if len(ids) != 1 || ids[0] != mailbox.EncodeMessageID("INBOX", 7) {
		t.Errorf("Search = %v, want single uid 7", ids)
	}
}

func TestSearchFailsAfterSecondTransportFailure(t *testing.T) {
	drop := okHandler(func(cmd string) ([]string, string) {
		return nil, "CLOSE"
	})

	client := newTestClient(t, drop, drop)
	defer client.Close()

	_, err := client.Search(context.Background(), "INBOX", mailbox.SearchCriteria{})
	if err == nil {
		t.Fatal("Search succeeded, want transport error after two failures")
	}
	if !mailbox.IsTransportError(err) {
		t.Errorf("error %v is not a TransportError", err)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	client := newTestClient(t, func(cmd string) ([]string, string) {
		if strings.HasPrefix(cmd, "LOGIN") {
			return nil, "NO"
		}
		return nil, "OK"
	})
	defer client.Close()

	err := client.Login(context.Background())
	if err == nil {
		t.Fatal("Login succeeded, want AuthError")
	}
	if !mailbox.IsAuthError(err) {
		t.Errorf("error %v is not an AuthError", err)
	}
}

func TestFetchDecodesMessages(t *testing.T) {
	raw := "From: Jane Doe <jane@example.com>\r\n" +
		"Subject: Application\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Hello there.\r\n"

	client := newTestClient(t, okHandler(func(cmd string) ([]string, string) {
		if strings.HasPrefix(cmd, "UID FETCH") {
			// The literal bytes follow the CRLF after {N}, then the
			// closing paren arrives on its own continuation line.
			return []string{
				fmt.Sprintf(`* 1 FETCH (UID 11 FLAGS (\Seen) BODY[] {%d}`, len(raw)),
				raw + ")",
			}, "OK"
		}
		return nil, "BAD"
	}))
	defer client.Close()

	id := mailbox.EncodeMessageID("INBOX", 11)
	records, err := client.Fetch(context.Background(), []string{id})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Fetch returned %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.ID != id || rec.UID != 11 {
		t.Errorf("record id = %q uid = %d, want %q / 11", rec.ID, rec.UID, id)
	}
	if rec.Subject != "Application" {
		t.Errorf("subject = %q, want Application", rec.Subject)
	}
	if rec.Sender.Email != "jane@example.com" {
		t.Errorf("sender = %q, want jane@example.com", rec.Sender.Email)
	}
	if !rec.Seen {
		t.Error("record not marked seen")
	}
	if !strings.Contains(rec.TextBody, "Hello there.") {
		t.Errorf("text body = %q", rec.TextBody)
	}
}

func TestListFoldersDecodesNamesAndSkipsNoselect(t *testing.T) {
	client := newTestClient(t, okHandler(func(cmd string) ([]string, string) {
		switch {
		case strings.HasPrefix(cmd, "LIST"):
			return []string{
				`* LIST (\HasNoChildren) "/" "INBOX"`,
				`* LIST (\Noselect) "/" "[Gmail]"`,
				`* LIST (\HasNoChildren) "/" "Entw&APw-rfe"`,
			}, "OK"
		case strings.HasPrefix(cmd, "STATUS"):
			return []string{`* STATUS "whatever" (MESSAGES 10 UNSEEN 2)`}, "OK"
		}
		return nil, "BAD"
	}))
	defer client.Close()

	folders, err := client.ListFolders(context.Background())
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}

	if len(folders) != 2 {
		t.Fatalf("got %d folders, want 2 (noselect skipped): %+v", len(folders), folders)
	}
	if folders[0].Name != "INBOX" {
		t.Errorf("folders[0] = %q, want INBOX", folders[0].Name)
	}
	if folders[1].Name != "Entwürfe" {
		t.Errorf("folders[1] = %q, want decoded Entwürfe", folders[1].Name)
	}
	if folders[0].TotalCount != 10 || folders[0].UnreadCount != 2 {
		t.Errorf("counts = %d/%d, want 10/2", folders[0].TotalCount, folders[0].UnreadCount)
	}
}

func TestFetchBatchRejectedWarnsAndContinues(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	handler := okHandler(func(cmd string) ([]string, string) {
		if strings.HasPrefix(cmd, "UID FETCH") {
			return nil, "NO"
		}
		t.Errorf("unexpected command %q", cmd)
		return nil, "BAD"
	})

	dialed := false
	client := NewClient(Config{
		Credentials: mailbox.Credentials{Email: "user@example.com", Password: "secret"},
		DialFunc: func(ctx context.Context) (net.Conn, error) {
			if dialed {
				t.Fatal("tagged NO must not trigger a reconnect")
			}
			dialed = true
			clientEnd, serverEnd := net.Pipe()
			serveIMAP(serverEnd, handler)
			return clientEnd, nil
		},
	}, zap.New(core))
	defer client.Close()

	records, err := client.Fetch(context.Background(),
		[]string{mailbox.EncodeMessageID("INBOX", 4)})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %d, want rejected batch dropped", len(records))
	}
	if logs.FilterMessage("fetch batch rejected").Len() != 1 {
		t.Error("rejected batch left no warning")
	}
}
