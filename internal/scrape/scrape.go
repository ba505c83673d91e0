// Package scrape drives one pass over a mailbox: search, fetch, save
// resume attachments to disk, and hand them to the ingestion pipeline.
package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tdvo/mailscreen/internal/ingest"
	"github.com/tdvo/mailscreen/internal/mailbox"
	"github.com/tdvo/mailscreen/internal/model"
)

const metadataFile = "_metadata.json"

var unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Options controls one scrape pass.
type Options struct {
	Folder     string
	Criteria   mailbox.SearchCriteria
	MaxResults int
	// AttachmentsDir receives saved attachment files and the metadata
	// catalogue.
	AttachmentsDir string
}

// Result summarizes one scrape pass.
type Result struct {
	MessagesScraped  int
	AttachmentsSaved int
	CandidatesAdded  int
}

// attachmentMeta is one entry of the on-disk attachment catalogue,
// keyed by saved filename.
type attachmentMeta struct {
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Size         int       `json:"size"`
	EmailSubject string    `json:"email_subject"`
	EmailSender  string    `json:"email_sender"`
	EmailDate    string    `json:"email_date"`
	SavedAt      time.Time `json:"saved_at"`
}

// Scraper couples a mailbox provider with the ingestion pipeline.
type Scraper struct {
	provider mailbox.Provider
	pipeline *ingest.Pipeline
	logger   *zap.Logger
}

// New creates a scraper over the given provider and pipeline.
func New(provider mailbox.Provider, pipeline *ingest.Pipeline, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{provider: provider, pipeline: pipeline, logger: logger}
}

// Run executes one scrape pass. Failures on individual messages or
// attachments are logged and skipped; only search-level failures abort
// the pass.
func (s *Scraper) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Folder == "" {
		opts.Folder = "INBOX"
	}
	if err := os.MkdirAll(opts.AttachmentsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating attachments dir: %w", err)
	}

	ids, err := s.provider.Search(ctx, opts.Folder, opts.Criteria)
	if err != nil {
		return nil, err
	}
	if opts.MaxResults > 0 && len(ids) > opts.MaxResults {
		ids = ids[:opts.MaxResults]
	}

	messages, err := s.provider.Fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &Result{MessagesScraped: len(messages)}
	for i := range messages {
		s.processMessage(ctx, &messages[i], opts.AttachmentsDir, result)
	}

	s.logger.Info("scrape pass complete",
		zap.Int("messages", result.MessagesScraped),
		zap.Int("attachments", result.AttachmentsSaved),
		zap.Int("candidates", result.CandidatesAdded))
	return result, nil
}

func (s *Scraper) processMessage(ctx context.Context, msg *model.MessageRecord, dir string, result *Result) {
	for _, att := range msg.Attachments {
		if att.Inline {
			continue
		}

		payload, err := s.provider.FetchAttachment(ctx, msg.ID, att.Index)
		if err != nil {
			s.logger.Warn("fetching attachment failed",
				zap.String("message", msg.ID), zap.Int("index", att.Index), zap.Error(err))
			continue
		}

		path, err := s.saveAttachment(msg, att.Index, payload, dir)
		if err != nil {
			s.logger.Warn("saving attachment failed",
				zap.String("filename", payload.Filename), zap.Error(err))
			continue
		}
		result.AttachmentsSaved++

		cand, err := s.pipeline.ProcessAttachment(ctx, path, ingest.EmailContext{
			MessageID: msg.ID,
			Body:      msg.TextBody,
			Sender:    msg.Sender.Email,
			Subject:   msg.Subject,
		})
		if err != nil {
			s.logger.Warn("ingesting attachment failed",
				zap.String("path", path), zap.Error(err))
			continue
		}
		if cand != nil {
			result.CandidatesAdded++
		}
	}
}

// messageKey is the per-message filename prefix: the numeric uid when
// the provider carries one, otherwise a short hash of the opaque
// message id. Without it, same-named attachments from different
// messages would overwrite each other.
func messageKey(msg *model.MessageRecord) string {
	if msg.UID != 0 {
		return strconv.FormatUint(uint64(msg.UID), 10)
	}
	sum := sha256.Sum256([]byte(msg.ID))
	return hex.EncodeToString(sum[:4])
}

// saveAttachment writes the payload as "<key>_<index>_<sanitized name>"
// and records it in the metadata catalogue.
func (s *Scraper) saveAttachment(msg *model.MessageRecord, index int, att *mailbox.Attachment, dir string) (string, error) {
	safeName := unsafeFilenameRe.ReplaceAllString(att.Filename, "_")
	filename := fmt.Sprintf("%s_%d_%s", messageKey(msg), index, safeName)
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, att.Data, 0o644); err != nil {
		return "", err
	}

	if err := s.recordMetadata(dir, filename, msg, att); err != nil {
		s.logger.Warn("writing attachment metadata failed", zap.Error(err))
	}
	return path, nil
}

func (s *Scraper) recordMetadata(dir, filename string, msg *model.MessageRecord, att *mailbox.Attachment) error {
	catalogue := readMetadata(dir)
	catalogue[filename] = attachmentMeta{
		OriginalName: att.Filename,
		ContentType:  att.ContentType,
		Size:         len(att.Data),
		EmailSubject: msg.Subject,
		EmailSender:  msg.Sender.Email,
		EmailDate:    msg.Date.UTC().Format(time.RFC3339),
		SavedAt:      time.Now().UTC(),
	}

	data, err := json.MarshalIndent(catalogue, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644)
}

// readMetadata loads the catalogue, degrading to empty on a missing or
// corrupt file.
func readMetadata(dir string) map[string]attachmentMeta {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return map[string]attachmentMeta{}
	}
	var catalogue map[string]attachmentMeta
	if err := json.Unmarshal(data, &catalogue); err != nil || catalogue == nil {
		return map[string]attachmentMeta{}
	}
	return catalogue
}
