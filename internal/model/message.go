package model

import "time"

// Folder is a read-only mirror of a remote mailbox folder.
type Folder struct {
	Name        string
	Flags       []string
	TotalCount  int
	UnreadCount int
}

// Address is a parsed mailbox address with an optional display name.
type Address struct {
	Name  string
	Email string
}

// AttachmentDescriptor describes one attachment part of a message.
// Index follows encounter order while walking the MIME tree and is
// the handle for on-demand byte retrieval.
type AttachmentDescriptor struct {
	Index       int
	Filename    string
	ContentType string
	Size        int64
	Inline      bool
}

// MessageRecord is the normalized form of one fetched message,
// identical for every mailbox provider.
type MessageRecord struct {
	// ID is the opaque reversible message id (folder + numeric uid).
	ID string

	Folder string
	UID    uint32

	Subject string
	Sender  Address
	To      []Address
	Cc      []Address
	Bcc     []Address
	Date    time.Time

	TextBody string
	HTMLBody string

	// Importance is "high", "normal", or "low".
	Importance string

	Seen    bool
	Flagged bool

	MessageID      string // Internet Message-ID header
	ConversationID string // In-Reply-To header

	Attachments []AttachmentDescriptor
}

// HasAttachments reports whether the message carries any attachment parts.
func (m *MessageRecord) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// FolderStat is a per-folder message count summary.
type FolderStat struct {
	Name   string
	Total  int
	Unread int
}

// SenderCount is an aggregated sender entry for mailbox stats.
type SenderCount struct {
	Name  string
	Email string
	Count int
}

// MailboxStats summarizes a mailbox across folders.
type MailboxStats struct {
	TotalMessages int
	TotalUnread   int
	RecentCount   int // messages received in the last 7 days
	Folders       []FolderStat
	TopSenders    []SenderCount
}
