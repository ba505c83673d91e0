package graph

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tdvo/mailscreen/internal/mailbox"
	"github.com/tdvo/mailscreen/internal/model"
)

// Graph message ids are already opaque strings, so the provider passes
// them through unchanged instead of minting folder/uid composites.

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphAttachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	IsInline     bool   `json:"isInline"`
	ContentBytes string `json:"contentBytes"`
}

type graphMessage struct {
	ID                string            `json:"id"`
	Subject           string            `json:"subject"`
	From              *graphRecipient   `json:"from"`
	ToRecipients      []graphRecipient  `json:"toRecipients"`
	CcRecipients      []graphRecipient  `json:"ccRecipients"`
	BccRecipients     []graphRecipient  `json:"bccRecipients"`
	ReceivedDateTime  time.Time         `json:"receivedDateTime"`
	Body              graphBody         `json:"body"`
	Importance        string            `json:"importance"`
	IsRead            bool              `json:"isRead"`
	HasAttachments    bool              `json:"hasAttachments"`
	InternetMessageID string            `json:"internetMessageId"`
	ConversationID    string            `json:"conversationId"`
	Flag              map[string]string `json:"flag"`
	Attachments       []graphAttachment `json:"attachments"`
}

type graphFolder struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	TotalItemCount   int    `json:"totalItemCount"`
	UnreadItemCount  int    `json:"unreadItemCount"`
	ChildFolderCount int    `json:"childFolderCount"`
}

// Provider implements the mailbox contract over the Graph API.
type Provider struct {
	client *Client
	logger *zap.Logger

	folderIDs map[string]string // display name -> folder id, lowercased keys
}

// NewProvider wraps a Graph client as a mailbox Provider.
func NewProvider(client *Client, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client:    client,
		logger:    logger,
		folderIDs: make(map[string]string),
	}
}

// Login verifies the stored tokens by fetching the signed-in user.
func (p *Provider) Login(ctx context.Context) error {
	var me struct {
		ID                string `json:"id"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := p.client.get(ctx, "/me", &me); err != nil {
		return err
	}
	p.logger.Debug("graph login verified", zap.String("user", me.UserPrincipalName))
	return nil
}

// ListFolders returns the account's mail folders with their counts.
func (p *Provider) ListFolders(ctx context.Context) ([]model.Folder, error) {
	folders, err := p.fetchFolders(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Folder, 0, len(folders))
	for _, f := range folders {
		out = append(out, model.Folder{
			Name:        f.DisplayName,
			TotalCount:  f.TotalItemCount,
			UnreadCount: f.UnreadItemCount,
		})
	}
	return out, nil
}

func (p *Provider) fetchFolders(ctx context.Context) ([]graphFolder, error) {
	var result struct {
		Value []graphFolder `json:"value"`
	}
	if err := p.client.get(ctx, "/me/mailFolders?$top=100", &result); err != nil {
		return nil, err
	}

	for _, f := range result.Value {
		p.folderIDs[strings.ToLower(f.DisplayName)] = f.ID
	}
	return result.Value, nil
}

// folderID resolves a folder display name to its Graph id. Well-known
// names such as Inbox resolve without a folder listing.
func (p *Provider) folderID(ctx context.Context, name string) (string, error) {
	lower := strings.ToLower(name)
	switch lower {
	case "inbox", "drafts", "sentitems", "deleteditems", "junkemail", "archive", "outbox":
		return lower, nil
	case "sent items":
		return "sentitems", nil
	case "deleted items":
		return "deleteditems", nil
	case "junk email":
		return "junkemail", nil
	}

	if id, ok := p.folderIDs[lower]; ok {
		return id, nil
	}
	if _, err := p.fetchFolders(ctx); err != nil {
		return "", err
	}
	if id, ok := p.folderIDs[lower]; ok {
		return id, nil
	}
	return "", &mailbox.NotFoundError{Kind: "folder", ID: name}
}

// Search returns ids of messages in folder matching the criteria,
// newest first.
func (p *Provider) Search(ctx context.Context, folder string, criteria mailbox.SearchCriteria) ([]string, error) {
	id, err := p.folderID(ctx, folder)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("$select", "id,receivedDateTime")
	query.Set("$top", "500")

	if criteria.Text != "" {
		// $search cannot be combined with $orderby; Graph returns
		// relevance order, so results are re-sorted client-side.
		query.Set("$search", fmt.Sprintf("%q", criteria.Text))
	} else {
		query.Set("$orderby", "receivedDateTime desc")
	}

	if filter := buildFilter(criteria); filter != "" {
		query.Set("$filter", filter)
	}

	type hit struct {
		ID               string    `json:"id"`
		ReceivedDateTime time.Time `json:"receivedDateTime"`
	}
	var hits []hit

	path := "/me/mailFolders/" + url.PathEscape(id) + "/messages?" + query.Encode()
	for {
		var page struct {
			Value    []hit  `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := p.client.get(ctx, path, &page); err != nil {
			return nil, err
		}
		hits = append(hits, page.Value...)
		if page.NextLink == "" {
			break
		}
		next, ok := strings.CutPrefix(page.NextLink, p.client.baseURL)
		if !ok {
			p.logger.Warn("next page link outside the API base",
				zap.String("link", page.NextLink))
			break
		}
		path = next
	}

	if criteria.Text != "" {
		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].ReceivedDateTime.After(hits[j].ReceivedDateTime)
		})
	}

	ids := make([]string, 0, len(hits))
	for _, m := range hits {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// buildFilter renders the criteria's date, sender, subject and read
// predicates as an OData $filter conjunction. The before date is
// inclusive, so the rendered bound is the next midnight.
func buildFilter(criteria mailbox.SearchCriteria) string {
	var parts []string

	if !criteria.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("receivedDateTime ge %s",
			criteria.Since.UTC().Format("2006-01-02T15:04:05Z")))
	}
	if !criteria.Before.IsZero() {
		bound := criteria.Before.AddDate(0, 0, 1)
		parts = append(parts, fmt.Sprintf("receivedDateTime lt %s",
			bound.UTC().Format("2006-01-02T15:04:05Z")))
	}
	if criteria.Sender != "" {
		parts = append(parts, fmt.Sprintf("from/emailAddress/address eq '%s'",
			strings.ReplaceAll(criteria.Sender, "'", "''")))
	}
	if criteria.Subject != "" {
		parts = append(parts, fmt.Sprintf("contains(subject, '%s')",
			strings.ReplaceAll(criteria.Subject, "'", "''")))
	}
	if criteria.Seen != nil {
		parts = append(parts, fmt.Sprintf("isRead eq %t", *criteria.Seen))
	}

	return strings.Join(parts, " and ")
}

// Fetch retrieves and normalizes the given messages. Ids that no
// longer resolve are dropped from the result.
func (p *Provider) Fetch(ctx context.Context, ids []string) ([]model.MessageRecord, error) {
	records := make([]model.MessageRecord, 0, len(ids))
	for _, id := range ids {
		var msg graphMessage
		path := "/me/messages/" + url.PathEscape(id) + "?$expand=attachments($select=id,name,contentType,size,isInline)"
		if err := p.client.get(ctx, path, &msg); err != nil {
			if mailbox.IsNotFound(err) {
				p.logger.Debug("message vanished between search and fetch", zap.String("id", id))
				continue
			}
			return nil, err
		}
		records = append(records, *p.toRecord(&msg))
	}
	return records, nil
}

func (p *Provider) toRecord(msg *graphMessage) *model.MessageRecord {
	rec := &model.MessageRecord{
		ID:             msg.ID,
		Subject:        msg.Subject,
		Date:           msg.ReceivedDateTime,
		Importance:     normalizeImportance(msg.Importance),
		Seen:           msg.IsRead,
		Flagged:        msg.Flag["flagStatus"] == "flagged",
		MessageID:      msg.InternetMessageID,
		ConversationID: msg.ConversationID,
	}

	if msg.From != nil {
		rec.Sender = toAddress(msg.From.EmailAddress)
	} else {
		rec.Sender = model.Address{Name: "Unknown"}
	}
	rec.To = toAddresses(msg.ToRecipients)
	rec.Cc = toAddresses(msg.CcRecipients)
	rec.Bcc = toAddresses(msg.BccRecipients)

	switch strings.ToLower(msg.Body.ContentType) {
	case "html":
		rec.HTMLBody = msg.Body.Content
	default:
		rec.TextBody = msg.Body.Content
	}

	for i, att := range msg.Attachments {
		rec.Attachments = append(rec.Attachments, model.AttachmentDescriptor{
			Index:       i,
			Filename:    att.Name,
			ContentType: att.ContentType,
			Size:        att.Size,
			Inline:      att.IsInline,
		})
	}

	return rec
}

// FetchAttachment retrieves one attachment's bytes by message id and
// list-order index.
func (p *Provider) FetchAttachment(ctx context.Context, id string, index int) (*mailbox.Attachment, error) {
	var result struct {
		Value []graphAttachment `json:"value"`
	}
	path := "/me/messages/" + url.PathEscape(id) + "/attachments"
	if err := p.client.get(ctx, path, &result); err != nil {
		return nil, err
	}

	if index < 0 || index >= len(result.Value) {
		return nil, &mailbox.NotFoundError{Kind: "attachment", ID: fmt.Sprintf("%s/%d", id, index)}
	}

	att := result.Value[index]
	data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding attachment content: %w", err)
	}

	return &mailbox.Attachment{
		Filename:    att.Name,
		ContentType: att.ContentType,
		Data:        data,
	}, nil
}

// Stats summarizes the mailbox from the folder listing and the most
// recent inbox messages.
func (p *Provider) Stats(ctx context.Context) (*model.MailboxStats, error) {
	folders, err := p.fetchFolders(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.MailboxStats{}
	for _, f := range folders {
		stats.TotalMessages += f.TotalItemCount
		stats.TotalUnread += f.UnreadItemCount
		stats.Folders = append(stats.Folders, model.FolderStat{
			Name:   f.DisplayName,
			Total:  f.TotalItemCount,
			Unread: f.UnreadItemCount,
		})
	}

	since := time.Now().AddDate(0, 0, -7)
	var recent struct {
		Value []struct {
			From *graphRecipient `json:"from"`
		} `json:"value"`
	}
	query := url.Values{}
	query.Set("$filter", "receivedDateTime ge "+since.UTC().Format("2006-01-02T15:04:05Z"))
	query.Set("$select", "from")
	query.Set("$top", "50")
	if err := p.client.get(ctx, "/me/mailFolders/inbox/messages?"+query.Encode(), &recent); err != nil {
		return nil, err
	}
	stats.RecentCount = len(recent.Value)

	counts := make(map[string]*model.SenderCount)
	for _, m := range recent.Value {
		if m.From == nil || m.From.EmailAddress.Address == "" {
			continue
		}
		addr := m.From.EmailAddress.Address
		if c, ok := counts[addr]; ok {
			c.Count++
		} else {
			counts[addr] = &model.SenderCount{
				Name:  m.From.EmailAddress.Name,
				Email: addr,
				Count: 1,
			}
		}
	}
	for _, c := range counts {
		stats.TopSenders = append(stats.TopSenders, *c)
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

	return stats, nil
}

// Close is a no-op; the Graph transport is stateless between calls.
func (p *Provider) Close() error { return nil }

func toAddress(a graphEmailAddress) model.Address {
	name := a.Name
	if name == "" {
		if local, _, ok := strings.Cut(a.Address, "@"); ok {
			name = local
		} else {
			name = "Unknown"
		}
	}
	return model.Address{Name: name, Email: a.Address}
}

func toAddresses(rs []graphRecipient) []model.Address {
	if len(rs) == 0 {
		return nil
	}
	out := make([]model.Address, 0, len(rs))
	for _, r := range rs {
		if r.EmailAddress.Address == "" {
			continue
		}
		out = append(out, toAddress(r.EmailAddress))
	}
	return out
}

func normalizeImportance(s string) string {
	switch strings.ToLower(s) {
	case "high":
		return "high"
	case "low":
		return "low"
	}
	return "normal"
}
