package ingest

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tdvo/mailscreen/internal/model"
	"github.com/tdvo/mailscreen/internal/store"
	"github.com/tdvo/mailscreen/tests/testutil"
)

// writeResumeDOCX drops a minimal WordprocessingML resume on disk.
func writeResumeDOCX(t *testing.T, dir, name string, paragraphs []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var sb strings.Builder
	sb.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		sb.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	sb.WriteString(`</w:body></w:document>`)

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(sb.String())); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func resumeParagraphs() []string {
	return []string{
		"Senior Software Engineer with 8 years of experience.",
		"Skills: Python, SQL, Docker",
		"Based in Austin, TX",
		"Phone: (512) 555-1234",
	}
}

func TestProcessAttachmentFullFlow(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	p := New(s, nil)

	path := writeResumeDOCX(t, t.TempDir(), "resume.docx", resumeParagraphs())

	cand, err := p.ProcessAttachment(ctx, path, EmailContext{
		MessageID: "msg-1",
		Body:      "Hello, my name is Jane Doe and I am applying for the Backend Engineer position.",
		Sender:    "jane.doe@example.com",
		Subject:   "Application",
	})
	if err != nil {
		t.Fatalf("ProcessAttachment: %v", err)
	}
	if cand == nil {
		t.Fatal("no candidate produced")
	}

	if cand.Name != "Jane Doe" {
		t.Errorf("name = %q", cand.Name)
	}
	if cand.Email != "jane.doe@example.com" {
		t.Errorf("email = %q, want sender fallback", cand.Email)
	}
	if !strings.Contains(cand.Location, "Austin, TX") {
		t.Errorf("location = %q", cand.Location)
	}
	skills := strings.Join(cand.Skills, " ")
	for _, want := range []string{"python", "sql", "docker"} {
		if !strings.Contains(skills, want) {
			t.Errorf("skills %v missing %q", cand.Skills, want)
		}
	}
	if cand.YearsExp == nil || *cand.YearsExp != 8.0 {
		t.Errorf("years = %v", cand.YearsExp)
	}
	hasApplied := false
	for _, title := range cand.Titles {
		if title == "Backend Engineer" {
			hasApplied = true
		}
	}
	if !hasApplied {
		t.Errorf("titles %v missing applied role", cand.Titles)
	}
	if cand.ResumePath != path || cand.SourceMessage != "msg-1" {
		t.Errorf("provenance = %q / %q", cand.ResumePath, cand.SourceMessage)
	}

	stored, err := s.GetCandidateByID(ctx, cand.ID)
	if err != nil {
		t.Fatalf("candidate not persisted: %v", err)
	}
	if stored.Name != cand.Name {
		t.Errorf("stored = %+v", stored)
	}

	unread, err := s.GetUnreadNotifications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 1 || unread[0].Type != model.NotificationNewCandidate {
		t.Errorf("notifications = %+v, want one new_candidate", unread)
	}
}

func TestProcessAttachmentUnsupportedType(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := New(s, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, []byte{0x89}, 0o644); err != nil {
		t.Fatal(err)
	}

	cand, err := p.ProcessAttachment(context.Background(), path, EmailContext{})
	if cand != nil || err != nil {
		t.Errorf("unsupported type = (%+v, %v), want (nil, nil)", cand, err)
	}
}

func TestProcessAttachmentMissingFile(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := New(s, nil)

	_, err := p.ProcessAttachment(context.Background(),
		filepath.Join(t.TempDir(), "absent.pdf"), EmailContext{})
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestProcessAttachmentDuplicateEmailSkipped(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	p := New(s, nil)

	path := writeResumeDOCX(t, t.TempDir(), "resume.docx", resumeParagraphs())
	email := EmailContext{MessageID: "msg-1", Sender: "jane@example.com"}

	first, err := p.ProcessAttachment(ctx, path, email)
	if err != nil || first == nil {
		t.Fatalf("first pass = (%+v, %v)", first, err)
	}

	second, err := p.ProcessAttachment(ctx, path, email)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second != nil {
		t.Errorf("duplicate email produced a candidate: %+v", second)
	}

	all, err := s.GetCandidates(ctx, store.CandidateFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("stored %d candidates, want 1", len(all))
	}
}

func TestProcessAttachmentNameFallsBackToEmail(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := New(s, nil)

	path := writeResumeDOCX(t, t.TempDir(), "resume.docx", []string{"Skills: Python"})

	cand, err := p.ProcessAttachment(context.Background(), path, EmailContext{
		Sender: "john.smith@example.com",
	})
	if err != nil || cand == nil {
		t.Fatalf("ProcessAttachment = (%+v, %v)", cand, err)
	}
	if cand.Name != "John Smith" {
		t.Errorf("name = %q, want John Smith", cand.Name)
	}
}

func TestProcessAttachmentSubjectNameAndTitle(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := New(s, nil)

	path := writeResumeDOCX(t, t.TempDir(), "resume.docx", []string{"Skills: AutoCAD, PLC"})

	cand, err := p.ProcessAttachment(context.Background(), path, EmailContext{
		Sender:  "fwd@agency.example",
		Subject: "Fw: Acme Candidate - Dan T. Tran - Electrical Engineer - REQ #28651",
	})
	if err != nil || cand == nil {
		t.Fatalf("ProcessAttachment = (%+v, %v)", cand, err)
	}
	if cand.Name != "Dan T. Tran" {
		t.Errorf("name = %q, want subject-derived name", cand.Name)
	}
	found := false
	for _, title := range cand.Titles {
		if title == "Electrical Engineer" {
			found = true
		}
	}
	if !found {
		t.Errorf("titles %v missing subject-derived title", cand.Titles)
	}
}

func TestNotifyHighFit(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	p := New(s, nil)

	job := &model.JobRequisition{
		Title:          "Data Engineer",
		RequiredSkills: []string{"python", "sql", "docker", "aws"},
	}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	// 3 of 4 required skills is 75%, right at the threshold.
	path := writeResumeDOCX(t, t.TempDir(), "resume.docx",
		[]string{"Skills: Python, SQL, Docker"})

	cand, err := p.ProcessAttachment(ctx, path, EmailContext{Sender: "jane@example.com"})
	if err != nil || cand == nil {
		t.Fatalf("ProcessAttachment = (%+v, %v)", cand, err)
	}

	unread, err := s.GetUnreadNotifications(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var highFit *model.Notification
	for i := range unread {
		if unread[i].Type == model.NotificationNewHighFit {
			highFit = &unread[i]
		}
	}
	if highFit == nil {
		t.Fatalf("notifications %+v missing high-fit entry", unread)
	}
	if highFit.JobID != job.ID || highFit.CandidateID != cand.ID {
		t.Errorf("high-fit links = job %d cand %d", highFit.JobID, highFit.CandidateID)
	}
	if !strings.Contains(highFit.Message, "75%") {
		t.Errorf("message = %q, want percentage", highFit.Message)
	}
}

func TestNameFromEmail(t *testing.T) {
	tests := []struct{ in, want string }{
		{"john.smith@example.com", "John Smith"},
		{"jane_doe@example.com", "Jane Doe"},
		{"bob-miller@example.com", "Bob Miller"},
		{"single@example.com", "Single"},
		{"no-at-sign", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := nameFromEmail(tt.in); got != tt.want {
			t.Errorf("nameFromEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
