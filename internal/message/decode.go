// Package message turns one raw mail payload into the normalized
// record the rest of the pipeline consumes, independent of which
// mailbox provider fetched it.
package message

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"github.com/tdvo/mailscreen/internal/mailbox"
	"github.com/tdvo/mailscreen/internal/model"
)

// Decode parses a raw RFC 2822 payload fetched from folder with the
// given uid and flag set into a MessageRecord. It never fails hard: an
// unparsable payload degrades to a record whose text body is the raw
// bytes.
func Decode(folder string, uid uint32, flags []string, raw []byte) *model.MessageRecord {
	rec := &model.MessageRecord{
		ID:         mailbox.EncodeMessageID(folder, uid),
		Folder:     folder,
		UID:        uid,
		Importance: "normal",
		Seen:       containsFlagFold(flags, `\Seen`),
		Flagged:    containsFlagFold(flags, `\Flagged`),
	}

	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		rec.TextBody = string(raw)
		return rec
	}

	rec.Subject = DecodeHeaderValue(entity.Header.Get("Subject"))
	rec.Sender = ParseAddress(entity.Header.Get("From"))
	rec.To = ParseAddressList(entity.Header.Get("To"))
	rec.Cc = ParseAddressList(entity.Header.Get("Cc"))
	rec.Bcc = ParseAddressList(entity.Header.Get("Bcc"))
	rec.MessageID = entity.Header.Get("Message-Id")
	rec.ConversationID = entity.Header.Get("In-Reply-To")
	rec.Importance = parseImportance(entity.Header)

	if date, err := mail.ParseDate(entity.Header.Get("Date")); err == nil {
		rec.Date = date
	}

	walkParts(entity, rec)

	return rec
}

// walkParts walks the MIME tree in document order, selecting the first
// plain-text and first HTML bodies among non-attachment parts and
// enumerating attachments in encounter order.
func walkParts(root *gomessage.Entity, rec *model.MessageRecord) {
	attIdx := 0

	_ = root.Walk(func(path []int, entity *gomessage.Entity, err error) error {
		if err != nil && !gomessage.IsUnknownCharset(err) {
			return nil
		}

		ctype, _, ctErr := entity.Header.ContentType()
		if ctErr != nil {
			ctype = "text/plain"
		}
		if strings.HasPrefix(ctype, "multipart/") {
			return nil
		}

		disp, _, _ := entity.Header.ContentDisposition()
		filename := partFilename(entity)

		if disp == "attachment" || filename != "" {
			body, readErr := io.ReadAll(entity.Body)
			if readErr != nil {
				body = nil
			}
			if filename == "" {
				filename = fmt.Sprintf("attachment_%d", attIdx)
			}
			rec.Attachments = append(rec.Attachments, model.AttachmentDescriptor{
				Index:       attIdx,
				Filename:    filename,
				ContentType: ctype,
				Size:        int64(len(body)),
				Inline:      disp == "inline",
			})
			attIdx++
			return nil
		}

		body, readErr := io.ReadAll(entity.Body)
		if readErr != nil {
			return nil
		}

		switch {
		case ctype == "text/plain" && rec.TextBody == "":
			rec.TextBody = string(body)
		case ctype == "text/html" && rec.HTMLBody == "":
			rec.HTMLBody = string(body)
		}
		return nil
	})
}

// AttachmentByIndex re-parses a raw payload and returns the bytes of
// the attachment at the given encounter-order index.
func AttachmentByIndex(raw []byte, index int) (*mailbox.Attachment, error) {
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parsing message: %w", err)
	}

	var found *mailbox.Attachment
	attIdx := 0

	walkErr := entity.Walk(func(path []int, part *gomessage.Entity, err error) error {
		if found != nil {
			return nil
		}
		if err != nil && !gomessage.IsUnknownCharset(err) {
			return nil
		}

		ctype, _, ctErr := part.Header.ContentType()
		if ctErr != nil {
			ctype = "application/octet-stream"
		}
		if strings.HasPrefix(ctype, "multipart/") {
			return nil
		}

		disp, _, _ := part.Header.ContentDisposition()
		filename := partFilename(part)
		if disp != "attachment" && filename == "" {
			return nil
		}

		if attIdx == index {
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				return readErr
			}
			if filename == "" {
				filename = fmt.Sprintf("attachment_%d", attIdx)
			}
			found = &mailbox.Attachment{
				Filename:    filename,
				ContentType: ctype,
				Data:        data,
			}
		}
		attIdx++
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("reading attachment %d: %w", index, walkErr)
	}

	if found == nil {
		return nil, &mailbox.NotFoundError{Kind: "attachment", ID: fmt.Sprintf("%d", index)}
	}
	return found, nil
}

// SenderFromHeaders parses just the From address out of a header-only
// payload, as returned by header-fields fetches.
func SenderFromHeaders(raw []byte) model.Address {
	msg, err := mail.ReadMessage(bytes.NewReader(append(raw, "\r\n\r\n"...)))
	if err != nil {
		return model.Address{Name: "Unknown"}
	}
	return ParseAddress(msg.Header.Get("From"))
}

// partFilename extracts a part's file name from its disposition or
// content-type parameters, decoding any encoded words.
func partFilename(entity *gomessage.Entity) string {
	_, dispParams, _ := entity.Header.ContentDisposition()
	if name := dispParams["filename"]; name != "" {
		return DecodeHeaderValue(name)
	}
	_, ctParams, _ := entity.Header.ContentType()
	if name := ctParams["name"]; name != "" {
		return DecodeHeaderValue(name)
	}
	return ""
}

// parseImportance tiers a message's importance from the explicit
// Importance header, then the numeric X-Priority header, defaulting
// to normal.
func parseImportance(h gomessage.Header) string {
	imp := strings.ToLower(strings.TrimSpace(h.Get("Importance")))
	if imp == "high" || imp == "low" {
		return imp
	}

	xpri := strings.TrimSpace(h.Get("X-Priority"))
	switch {
	case strings.HasPrefix(xpri, "1"), strings.HasPrefix(xpri, "2"):
		return "high"
	case strings.HasPrefix(xpri, "4"), strings.HasPrefix(xpri, "5"):
		return "low"
	}
	return "normal"
}

// containsFlagFold reports whether the flag list contains flag,
// compared case-insensitively.
func containsFlagFold(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}
