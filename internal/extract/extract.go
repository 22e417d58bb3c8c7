// Package extract turns uploaded inspection and thermal documents into ordered plain-text
// lines for the report pipeline.
package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/joelkehle/ddr-generator/internal/ddr"
)

const (
	MaxFileBytes = 20 * 1024 * 1024
	MaxLines     = 10000
)

var (
	ErrUnsupported = errors.New("unsupported document format")
	ErrTooLarge    = errors.New("document too large")
	ErrMalformed   = errors.New("malformed document")
)

const (
	MethodText      = "text"
	MethodJSON      = "json"
	MethodTable     = "table"
	MethodDocx      = "docx"
	MethodPdfToText = "pdftotext"
	MethodOCR       = "ocr"
	MethodFallback  = "byte-fallback"
	MethodNone      = "none"
)

type Document struct {
	Role      ddr.Source `json:"role"`
	Path      string     `json:"path"`
	Lines     []string   `json:"-"`
	Method    string     `json:"method"`
	Notes     []string   `json:"notes,omitempty"`
	Truncated bool       `json:"truncated,omitempty"`
}

// Extractor loads documents from disk. Transcriber is optional; without one, scanned
// documents yield no lines and a note saying OCR was unavailable.
type Extractor struct {
	transcriber Transcriber
	pdftotext   string
}

func NewExtractor(t Transcriber) *Extractor {
	return &Extractor{transcriber: t, pdftotext: "pdftotext"}
}

func (e *Extractor) Load(ctx context.Context, role ddr.Source, path string) (Document, error) {
	doc := Document{Role: role, Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return doc, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if info.Size() > MaxFileBytes {
		return doc, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var text string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md", ".log", "":
		text, err = decodeText(&doc, blob)
		doc.Method = MethodText
	case ".json":
		text, err = indentJSON(blob)
		doc.Method = MethodJSON
	case ".csv", ".tsv":
		text, err = flattenTable(blob, ext == ".tsv")
		doc.Method = MethodTable
	case ".docx":
		text, err = docxText(blob)
		doc.Method = MethodDocx
	case ".pdf":
		text, err = e.pdfText(ctx, &doc, path, blob)
	case ".png", ".jpg", ".jpeg", ".webp", ".gif":
		text, err = e.imageText(ctx, &doc, ext, blob)
	case ".doc", ".xls", ".xlsx", ".ppt", ".pptx", ".zip":
		return doc, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	default:
		text, err = decodeText(&doc, blob)
		doc.Method = MethodText
		doc.Notes = append(doc.Notes, fmt.Sprintf("Unknown extension %q decoded as text", ext))
	}
	if err != nil {
		return doc, err
	}
	doc.Lines, doc.Truncated = splitLines(text)
	if doc.Truncated {
		doc.Notes = append(doc.Notes, fmt.Sprintf("Document truncated to the first %d lines", MaxLines))
	}
	return doc, nil
}

func decodeText(doc *Document, blob []byte) (string, error) {
	blob = bytes.TrimPrefix(blob, []byte("\xef\xbb\xbf"))
	if utf8.Valid(blob) {
		return string(blob), nil
	}
	doc.Notes = append(doc.Notes, "Invalid UTF-8 sequences were dropped during decoding")
	return strings.ToValidUTF8(string(blob), ""), nil
}

func indentJSON(blob []byte) (string, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, blob, "", "  "); err != nil {
		return "", fmt.Errorf("%w: json: %v", ErrMalformed, err)
	}
	return out.String(), nil
}

func flattenTable(blob []byte, tabs bool) (string, error) {
	r := csv.NewReader(bytes.NewReader(blob))
	if tabs {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var lines []string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: table: %v", ErrMalformed, err)
		}
		var cells []string
		for _, c := range rec {
			if c = strings.TrimSpace(c); c != "" {
				cells = append(cells, c)
			}
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return strings.Join(lines, "\n"), nil
}

// splitLines keeps blank lines so line numbers in provenance match the source text.
func splitLines(text string) ([]string, bool) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return []string{}, false
	}
	lines := strings.Split(text, "\n")
	if len(lines) > MaxLines {
		return lines[:MaxLines], true
	}
	return lines, false
}
