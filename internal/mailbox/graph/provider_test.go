package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tdvo/mailscreen/internal/mailbox"
)

func newTestProvider(t *testing.T, handler http.Handler) (*Provider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := newTestClient(&memTokenStore{tokens: validTokens()}, srv)
	return NewProvider(c, nil), srv
}

func TestBuildFilter(t *testing.T) {
	seen := false
	tests := []struct {
		name string
		in   mailbox.SearchCriteria
		want string
	}{
		{"empty", mailbox.SearchCriteria{}, ""},
		{
			"since",
			mailbox.SearchCriteria{Since: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
			"receivedDateTime ge 2024-03-05T00:00:00Z",
		},
		{
			"before is inclusive",
			mailbox.SearchCriteria{Before: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
			"receivedDateTime lt 2024-03-06T00:00:00Z",
		},
		{
			"sender quotes escaped",
			mailbox.SearchCriteria{Sender: "o'brien@x.com"},
			"from/emailAddress/address eq 'o''brien@x.com'",
		},
		{
			"subject",
			mailbox.SearchCriteria{Subject: "resume"},
			"contains(subject, 'resume')",
		},
		{
			"unseen",
			mailbox.SearchCriteria{Seen: &seen},
			"isRead eq false",
		},
		{
			"conjunction",
			mailbox.SearchCriteria{
				Since:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				Sender: "a@b.com",
			},
			"receivedDateTime ge 2024-01-01T00:00:00Z and from/emailAddress/address eq 'a@b.com'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildFilter(tt.in); got != tt.want {
				t.Errorf("buildFilter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchOrdersAndFilters(t *testing.T) {
	var gotQuery map[string][]string
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/me/mailFolders/inbox/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "msg-new", "receivedDateTime": "2024-03-05T10:00:00Z"},
				{"id": "msg-old", "receivedDateTime": "2024-03-04T10:00:00Z"},
			},
		})
	}))

	sender := "a@b.com"
	ids, err := p.Search(context.Background(), "INBOX", mailbox.SearchCriteria{Sender: sender})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 2 || ids[0] != "msg-new" {
		t.Errorf("ids = %v", ids)
	}
	if got := gotQuery["$orderby"]; len(got) != 1 || got[0] != "receivedDateTime desc" {
		t.Errorf("$orderby = %v", got)
	}
	if got := gotQuery["$filter"]; len(got) != 1 || !strings.Contains(got[0], sender) {
		t.Errorf("$filter = %v", got)
	}
}

func TestSearchFollowsNextLink(t *testing.T) {
	var srv *httptest.Server
	p, s := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []map[string]interface{}{
					{"id": "msg-2", "receivedDateTime": "2024-03-04T10:00:00Z"},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "msg-1", "receivedDateTime": "2024-03-05T10:00:00Z"},
			},
			"@odata.nextLink": srv.URL + "/me/mailFolders/inbox/messages?page=2",
		})
	}))
	srv = s

	ids, err := p.Search(context.Background(), "INBOX", mailbox.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 2 || ids[0] != "msg-1" || ids[1] != "msg-2" {
		t.Errorf("ids = %v, want both pages in order", ids)
	}
}

func TestSearchFreeTextReSortsClientSide(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("$search"); got != `"resume"` {
			t.Errorf("$search = %q", got)
		}
		if r.URL.Query().Has("$orderby") {
			t.Error("$orderby must not accompany $search")
		}
		// Relevance order: oldest first.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "msg-old", "receivedDateTime": "2024-03-04T10:00:00Z"},
				{"id": "msg-new", "receivedDateTime": "2024-03-05T10:00:00Z"},
			},
		})
	}))

	ids, err := p.Search(context.Background(), "INBOX", mailbox.SearchCriteria{Text: "resume"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 2 || ids[0] != "msg-new" || ids[1] != "msg-old" {
		t.Errorf("ids = %v, want newest first", ids)
	}
}

func TestFolderIDResolution(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "AAA111", "displayName": "Recruiting", "totalItemCount": 4, "unreadItemCount": 1},
			},
		})
	}))
	ctx := context.Background()

	// Well-known names bypass the listing entirely.
	id, err := p.folderID(ctx, "Sent Items")
	if err != nil || id != "sentitems" {
		t.Errorf("well-known = (%q, %v)", id, err)
	}

	id, err = p.folderID(ctx, "recruiting")
	if err != nil || id != "AAA111" {
		t.Errorf("custom folder = (%q, %v)", id, err)
	}

	if _, err := p.folderID(ctx, "Nonexistent"); !mailbox.IsNotFound(err) {
		t.Errorf("missing folder = %v, want NotFoundError", err)
	}
}

func TestFetchMapsMessages(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "gone"):
			w.WriteHeader(http.StatusNotFound)
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":      "msg-1",
				"subject": "Application",
				"from": map[string]interface{}{
					"emailAddress": map[string]string{"name": "Jane Doe", "address": "jane@example.com"},
				},
				"receivedDateTime": "2024-03-05T10:00:00Z",
				"body":             map[string]string{"contentType": "html", "content": "<p>hi</p>"},
				"importance":       "High",
				"isRead":           true,
				"flag":             map[string]string{"flagStatus": "flagged"},
				"attachments": []map[string]interface{}{
					{"id": "att-1", "name": "resume.pdf", "contentType": "application/pdf", "size": 1234, "isInline": false},
				},
			})
		}
	}))

	records, err := p.Fetch(context.Background(), []string{"msg-1", "msg-gone"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want vanished id dropped", len(records))
	}

	rec := records[0]
	if rec.ID != "msg-1" || rec.Subject != "Application" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Sender.Email != "jane@example.com" {
		t.Errorf("sender = %+v", rec.Sender)
	}
	if rec.HTMLBody == "" || rec.TextBody != "" {
		t.Errorf("bodies = html %q text %q", rec.HTMLBody, rec.TextBody)
	}
	if rec.Importance != "high" || !rec.Seen || !rec.Flagged {
		t.Errorf("state = importance %q seen %v flagged %v", rec.Importance, rec.Seen, rec.Flagged)
	}
	if len(rec.Attachments) != 1 || rec.Attachments[0].Filename != "resume.pdf" {
		t.Errorf("attachments = %+v", rec.Attachments)
	}
}

func TestFetchAttachmentDecodesContent(t *testing.T) {
	payload := []byte("%PDF-1.4 content")
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{
					"id":           "att-1",
					"name":         "resume.pdf",
					"contentType":  "application/pdf",
					"contentBytes": base64.StdEncoding.EncodeToString(payload),
				},
			},
		})
	}))
	ctx := context.Background()

	att, err := p.FetchAttachment(ctx, "msg-1", 0)
	if err != nil {
		t.Fatalf("FetchAttachment: %v", err)
	}
	if att.Filename != "resume.pdf" || string(att.Data) != string(payload) {
		t.Errorf("attachment = %+v", att)
	}

	if _, err := p.FetchAttachment(ctx, "msg-1", 5); !mailbox.IsNotFound(err) {
		t.Errorf("out-of-range = %v, want NotFoundError", err)
	}
}

func TestListFolders(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "f1", "displayName": "Inbox", "totalItemCount": 12, "unreadItemCount": 3},
				{"id": "f2", "displayName": "Archive", "totalItemCount": 100, "unreadItemCount": 0},
			},
		})
	}))

	folders, err := p.ListFolders(context.Background())
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(folders) != 2 {
		t.Fatalf("folders = %d", len(folders))
	}
	if folders[0].Name != "Inbox" || folders[0].TotalCount != 12 || folders[0].UnreadCount != 3 {
		t.Errorf("folders[0] = %+v", folders[0])
	}
}
