// Package extract recovers structured candidate data from resume
// documents and email text using ordered pattern tables.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// DocumentText returns best-effort plain text from a resume file on
// disk, dispatching on the file extension. Any parse failure returns
// an empty string; downstream stages degrade to email-only extraction
// instead of aborting.
func DocumentText(path string, logger *zap.Logger) string {
	if logger == nil {
		logger = zap.NewNop()
	}

	var text string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = pdfText(path)
	case ".docx", ".doc":
		text, err = docxText(path)
	case ".txt", ".text":
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	default:
		logger.Debug("unsupported document type", zap.String("path", path))
		return ""
	}

	if err != nil {
		logger.Warn("document text extraction failed",
			zap.String("path", path), zap.Error(err))
		return ""
	}
	return text
}

// pdfText extracts each page's plain text and joins pages with
// newlines. Pages that fail to render are skipped.
func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

// docxText unzips the document archive and pulls the text runs out of
// word/document.xml, joining paragraphs with newlines.
func docxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		break
	}
	if docXML == nil {
		return "", zip.ErrFormat
	}

	return wordXMLText(docXML)
}

// wordXMLText walks WordprocessingML, collecting <w:t> runs and
// breaking paragraphs at </w:p>. Empty paragraphs are dropped.
func wordXMLText(docXML []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var paragraphs []string
	var current strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		paragraphs = append(paragraphs, s)
	}

	return strings.Join(paragraphs, "\n"), nil
}
