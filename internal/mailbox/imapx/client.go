// Package imapx is a minimal hand-rolled IMAP4rev1 session client. It
// owns one authenticated connection guarded by a mutex: the protocol
// does not support interleaved commands on a single connection, so
// concurrent callers queue on the gate instead of opening parallel
// sessions. On a transport failure the session is discarded and the
// operation retried on a fresh connection exactly once.
package imapx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tdvo/mailscreen/internal/mailbox"
	"github.com/tdvo/mailscreen/internal/message"
	"github.com/tdvo/mailscreen/internal/model"
)

const (
	// fetchBatchSize bounds how many messages one FETCH round-trip
	// carries, keeping reply payloads and memory in check.
	fetchBatchSize = 25

	defaultDialTimeout    = 15 * time.Second
	defaultCommandTimeout = 60 * time.Second
)

// Config holds the connection settings for the IMAP provider.
type Config struct {
	Host        string
	Port        int
	Credentials mailbox.Credentials
	TLSConfig   *tls.Config

	DialTimeout    time.Duration
	CommandTimeout time.Duration

	// DialFunc overrides the TLS dialer; tests use it to connect the
	// client to a scripted in-memory server.
	DialFunc func(ctx context.Context) (net.Conn, error)
}

// Client is the direct IMAP mailbox provider. It implements
// mailbox.Provider.
type Client struct {
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	conn *conn
}

// NewClient creates an IMAP provider from the given configuration.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: logger}
}

// Login verifies the credentials by establishing a session.
func (c *Client) Login(ctx context.Context) error {
	return c.withSession(ctx, "login", func(*conn) error { return nil })
}

// Close logs out and tears down the session if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_, _ = c.conn.execute("LOGOUT")
	err := c.conn.close()
	c.conn = nil
	return err
}

// withSession runs op against a live session. A liveness probe
// precedes reuse of an existing connection; on any transport failure
// the session is discarded and exactly one reconnect-and-retry is
// attempted before the failure becomes fatal for this call.
func (c *Client) withSession(ctx context.Context, op string, fn func(*conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		conn, err := c.ensure(ctx)
		if err != nil {
			if isTransport(err) && attempt == 0 {
				lastErr = err
				continue
			}
			if isTransport(err) {
				return &mailbox.TransportError{Op: op, Err: err}
			}
			return err
		}

		err = fn(conn)
		if err == nil {
			return nil
		}
		if !isTransport(err) {
			return err
		}

		c.discard()
		lastErr = err
		if attempt == 0 {
			c.logger.Warn("imap transport failure, reconnecting",
				zap.String("op", op), zap.Error(err))
		}
	}

	return &mailbox.TransportError{Op: op, Err: lastErr}
}

// ensure returns a live connection, probing an existing one with NOOP
// and replacing it when the probe fails.
func (c *Client) ensure(ctx context.Context) (*conn, error) {
	if c.conn != nil {
		rep, err := c.conn.execute("NOOP")
		if err == nil && rep.ok() {
			return c.conn, nil
		}
		c.discard()
	}

	nc, err := c.dial(ctx)
	if err != nil {
		return nil, &connError{op: "dial", err: err}
	}

	conn, err := newConn(nc, c.cfg.CommandTimeout)
	if err != nil {
		return nil, err
	}

	creds := c.cfg.Credentials
	rep, err := conn.execute("LOGIN " + quoteString(creds.Email) + " " + quoteString(creds.Password))
	if err != nil {
		conn.close()
		return nil, err
	}
	if !rep.ok() {
		conn.close()
		return nil, &mailbox.AuthError{
			Provider: "imap",
			Message:  fmt.Sprintf("authentication failed for %s: %s", creds.Email, rep.text),
		}
	}

	c.conn = conn
	return conn, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if c.cfg.DialFunc != nil {
		return c.cfg.DialFunc(ctx)
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.cfg.DialTimeout},
		Config:    c.cfg.TLSConfig,
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

// discard drops the current connection without a clean logout.
func (c *Client) discard() {
	if c.conn != nil {
		_ = c.conn.close()
		c.conn = nil
	}
}

// isTransport reports whether err is an I/O-level failure (as opposed
// to a protocol refusal or an authentication error).
func isTransport(err error) bool {
	if err == nil {
		return false
	}
	var cErr *connError
	if errors.As(err, &cErr) {
		return true
	}
	var nErr net.Error
	return errors.As(err, &nErr)
}

// ListFolders lists the selectable folders with message and unread
// counts. Folder names are decoded from modified UTF-7; STATUS
// failures degrade to zero counts rather than failing the listing.
func (c *Client) ListFolders(ctx context.Context) ([]model.Folder, error) {
	var folders []model.Folder

	err := c.withSession(ctx, "list folders", func(conn *conn) error {
		rep, err := conn.execute(`LIST "" "*"`)
		if err != nil {
			return err
		}
		if !rep.ok() {
			return fmt.Errorf("LIST failed: %s", rep.text)
		}

		folders = folders[:0]
		for _, e := range rep.entries {
			info, ok := parseListEntry(e)
			if !ok || hasFlag(info.Flags, `\Noselect`) {
				continue
			}

			folder := model.Folder{Name: info.Name, Flags: info.Flags}

			statusRep, err := conn.execute(
				"STATUS " + quoteString(EncodeUTF7(info.Name)) + " (MESSAGES UNSEEN)")
			if err != nil {
				return err
			}
			if statusRep.ok() {
				folder.TotalCount, folder.UnreadCount = parseStatusReply(statusRep)
			}

			folders = append(folders, folder)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// Search returns the folder's message ids matching the criteria,
// newest first (the server reports ascending uid order).
func (c *Client) Search(ctx context.Context, folder string, criteria mailbox.SearchCriteria) ([]string, error) {
	var ids []string

	err := c.withSession(ctx, "search", func(conn *conn) error {
		if err := c.examine(conn, folder); err != nil {
			return err
		}

		rep, err := conn.execute("UID SEARCH " + buildSearchCriteria(criteria))
		if err != nil {
			return err
		}
		if !rep.ok() {
			return fmt.Errorf("SEARCH failed: %s", rep.text)
		}

		uids := parseSearchReply(rep)
		ids = make([]string, 0, len(uids))
		for i := len(uids) - 1; i >= 0; i-- {
			ids = append(ids, mailbox.EncodeMessageID(folder, uids[i]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Fetch retrieves and decodes the given messages, paging through the
// id set in fixed-size batches. Ids the server no longer knows are
// dropped from the result.
func (c *Client) Fetch(ctx context.Context, ids []string) ([]model.MessageRecord, error) {
	byFolder, order, err := groupIDsByFolder(ids)
	if err != nil {
		return nil, err
	}

	records := make(map[string]model.MessageRecord)

	for _, folder := range order {
		uids := byFolder[folder]
		err := c.withSession(ctx, "fetch", func(conn *conn) error {
			if err := c.examine(conn, folder); err != nil {
				return err
			}

			for start := 0; start < len(uids); start += fetchBatchSize {
				end := start + fetchBatchSize
				if end > len(uids) {
					end = len(uids)
				}

				rep, err := conn.execute(
					"UID FETCH " + joinUIDs(uids[start:end]) + " (UID FLAGS BODY.PEEK[])")
				if err != nil {
					return err
				}
				if !rep.ok() {
					c.logger.Warn("fetch batch rejected",
						zap.String("folder", folder),
						zap.String("status", rep.status),
						zap.String("text", rep.text))
					continue
				}

				for _, item := range parseFetchReply(rep) {
					rec := message.Decode(folder, item.UID, item.Flags, item.Raw)
					records[rec.ID] = *rec
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	// Preserve the caller's id order.
	out := make([]model.MessageRecord, 0, len(records))
	for _, id := range ids {
		if rec, ok := records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FetchAttachment retrieves one attachment's bytes by opaque message
// id and encounter-order index.
func (c *Client) FetchAttachment(ctx context.Context, id string, index int) (*mailbox.Attachment, error) {
	folder, uid, err := mailbox.DecodeMessageID(id)
	if err != nil {
		return nil, err
	}

	var att *mailbox.Attachment
	err = c.withSession(ctx, "fetch attachment", func(conn *conn) error {
		if err := c.examine(conn, folder); err != nil {
			return err
		}

		rep, err := conn.execute(fmt.Sprintf("UID FETCH %d (UID BODY.PEEK[])", uid))
		if err != nil {
			return err
		}
		items := parseFetchReply(rep)
		if !rep.ok() || len(items) == 0 {
			return &mailbox.NotFoundError{Kind: "message", ID: id}
		}

		att, err = message.AttachmentByIndex(items[0].Raw, index)
		return err
	})
	if err != nil {
		return nil, err
	}
	return att, nil
}

// Stats summarizes the mailbox: per-folder counts, the last week's
// inbox volume, and the top senders across the 50 most recent inbox
// messages.
func (c *Client) Stats(ctx context.Context) (*model.MailboxStats, error) {
	folders, err := c.ListFolders(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.MailboxStats{}
	for _, f := range folders {
		stats.TotalMessages += f.TotalCount
		stats.TotalUnread += f.UnreadCount
		stats.Folders = append(stats.Folders, model.FolderStat{
			Name: f.Name, Total: f.TotalCount, Unread: f.UnreadCount,
		})
	}

	err = c.withSession(ctx, "stats", func(conn *conn) error {
		if err := c.examine(conn, "INBOX"); err != nil {
			return err
		}

		weekAgo := time.Now().AddDate(0, 0, -7).Format(imapDateLayout)
		rep, err := conn.execute("UID SEARCH SINCE " + weekAgo)
		if err != nil {
			return err
		}
		if rep.ok() {
			stats.RecentCount = len(parseSearchReply(rep))
		}

		rep, err = conn.execute("UID SEARCH ALL")
		if err != nil {
			return err
		}
		uids := parseSearchReply(rep)
		if len(uids) > 50 {
			uids = uids[len(uids)-50:]
		}
		if len(uids) == 0 {
			return nil
		}

		rep, err = conn.execute(
			"UID FETCH " + joinUIDs(uids) + " (UID BODY.PEEK[HEADER.FIELDS (FROM)])")
		if err != nil {
			return err
		}

		counts := make(map[string]*model.SenderCount)
		for _, item := range parseFetchReply(rep) {
			addr := message.SenderFromHeaders(item.Raw)
			if addr.Email == "" {
				continue
			}
			sc, ok := counts[addr.Email]
			if !ok {
				sc = &model.SenderCount{Name: addr.Name, Email: addr.Email}
				counts[addr.Email] = sc
			}
			sc.Count++
		}

		for _, sc := range counts {
			stats.TopSenders = append(stats.TopSenders, *sc)
		}
		sort.Slice(stats.TopSenders, func(i, j int) bool {
			if stats.TopSenders[i].Count != stats.TopSenders[j].Count {
				return stats.TopSenders[i].Count > stats.TopSenders[j].Count
			}
			return stats.TopSenders[i].Email < stats.TopSenders[j].Email
		})
		if len(stats.TopSenders) > 10 {
			stats.TopSenders = stats.TopSenders[:10]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// examine opens a folder read-only. Selection state does not survive a
// reconnect, so every operation reselects its folder.
func (c *Client) examine(conn *conn, folder string) error {
	rep, err := conn.execute("EXAMINE " + quoteString(EncodeUTF7(folder)))
	if err != nil {
		return err
	}
	if !rep.ok() {
		return &mailbox.NotFoundError{Kind: "folder", ID: folder}
	}
	return nil
}

// groupIDsByFolder decodes opaque ids into per-folder uid lists,
// preserving first-seen folder order.
func groupIDsByFolder(ids []string) (map[string][]uint32, []string, error) {
	byFolder := make(map[string][]uint32)
	var order []string

	for _, id := range ids {
		folder, uid, err := mailbox.DecodeMessageID(id)
		if err != nil {
			return nil, nil, err
		}
		if _, seen := byFolder[folder]; !seen {
			order = append(order, folder)
		}
		byFolder[folder] = append(byFolder[folder], uid)
	}
	return byFolder, order, nil
}

// joinUIDs renders a uid set as the comma-separated sequence FETCH
// expects.
func joinUIDs(uids []uint32) string {
	parts := make([]string, len(uids))
	for i, uid := range uids {
		parts[i] = fmt.Sprint(uid)
	}
	return strings.Join(parts, ",")
}
