package mailbox

import (
	"context"
	"time"

	"github.com/tdvo/mailscreen/internal/model"
)

// Credentials authenticate one mailbox account.
type Credentials struct {
	Email    string
	Password string
}

// SearchCriteria is a conjunction of optional predicates. Zero values
// mean "unset"; a fully zero criteria matches every message.
type SearchCriteria struct {
	// Since keeps messages received on or after this date.
	Since time.Time

	// Before keeps messages received on or before this date
	// (inclusive upper bound).
	Before time.Time

	// Sender filters on the From address.
	Sender string

	// Text is a free-text search over the whole message.
	Text string

	// Subject is a subject-substring filter.
	Subject string

	// Seen filters on read state when non-nil.
	Seen *bool
}

// Attachment is one fetched attachment payload.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Provider is the logical mailbox transport contract. Two providers
// implement it: the direct IMAP session client and the Graph HTTP
// client. Everything downstream of a Provider operates only on the
// normalized model.MessageRecord.
type Provider interface {
	// Login verifies the account credentials. It returns an AuthError
	// on bad credentials.
	Login(ctx context.Context) error

	// ListFolders returns the account's selectable folders with
	// message and unread counts.
	ListFolders(ctx context.Context) ([]model.Folder, error)

	// Search returns opaque message ids in the folder matching the
	// criteria, newest first.
	Search(ctx context.Context, folder string, criteria SearchCriteria) ([]string, error)

	// Fetch retrieves and decodes the given messages. Missing ids are
	// silently dropped from the result rather than failing the batch.
	Fetch(ctx context.Context, ids []string) ([]model.MessageRecord, error)

	// FetchAttachment retrieves one attachment's bytes by message id
	// and encounter-order index.
	FetchAttachment(ctx context.Context, id string, index int) (*Attachment, error)

	// Close tears down any open session.
	Close() error
}
