// Package extract converts uploaded files into plain text for chunking.
// Format support is deliberately small: plain text, Markdown, HTML, and
// CSV. Detection combines the file extension with content sniffing so a
// mislabeled binary cannot pass as text.
package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedType indicates the file's format is not extractable.
var ErrUnsupportedType = errors.New("unsupported document type")

// Document is the extraction result: normalized text plus the detected
// media type, recorded alongside each chunk for citation.
type Document struct {
	Text      string
	MediaType string
}

// ExtractionError reports a failure to extract text from one named file.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting text from %q: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// extensions maps supported file extensions to their media type.
var extensions = map[string]string{
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".csv":      "text/csv",
}

// Supported reports whether filename's extension is extractable.
func Supported(filename string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Text extracts normalized plain text from an uploaded file.
// Returns *ExtractionError wrapping ErrUnsupportedType for unknown
// extensions or content that sniffs as binary.
func Text(filename string, data []byte) (Document, error) {
	mediaType, ok := extensions[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return Document{}, &ExtractionError{Filename: filename, Err: ErrUnsupportedType}
	}

	// Extension says text; verify the bytes agree.
	if len(data) > 0 && !isTextContent(data) {
		return Document{}, &ExtractionError{
			Filename: filename,
			Err:      fmt.Errorf("content sniffs as %s: %w", mimetype.Detect(data).String(), ErrUnsupportedType),
		}
	}

	var (
		text string
		err  error
	)
	switch mediaType {
	case "text/html":
		text, err = htmlText(data)
	case "text/csv":
		text, err = csvText(data)
	default:
		text = string(data)
	}
	if err != nil {
		return Document{}, &ExtractionError{Filename: filename, Err: err}
	}

	return Document{Text: normalize(text), MediaType: mediaType}, nil
}

// htmlText strips markup and returns the rendered text content.
func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		b.WriteString(sel.Text())
	})
	if b.Len() == 0 {
		return doc.Text(), nil
	}
	return b.String(), nil
}

// csvText flattens records into comma-joined lines, keeping row order so
// chunk offsets remain meaningful.
func csvText(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var b strings.Builder
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing csv: %w", err)
		}
		b.WriteString(strings.Join(record, ", "))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// isTextContent sniffs data and accepts only text-family MIME types.
func isTextContent(data []byte) bool {
	mt := mimetype.Detect(data)
	for ; mt != nil; mt = mt.Parent() {
		if strings.HasPrefix(mt.String(), "text/") {
			return true
		}
	}
	return false
}

// normalize canonicalizes line endings and trims surrounding whitespace so
// chunk offsets are stable across platforms.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}
