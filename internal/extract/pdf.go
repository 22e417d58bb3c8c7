package extract

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode"
)

func (e *Extractor) pdfText(ctx context.Context, doc *Document, path string, blob []byte) (string, error) {
	text, err := runPdfToText(ctx, e.pdftotext, path)
	if err == nil && strings.TrimSpace(text) != "" {
		doc.Method = MethodPdfToText
		doc.Notes = append(doc.Notes, "PDF text extracted with pdftotext")
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	reason := "no text layer"
	if err != nil {
		reason = err.Error()
	}

	if e.transcriber != nil {
		text, ocrErr := e.transcriber.Transcribe(ctx, "application/pdf", blob)
		if ocrErr == nil && strings.TrimSpace(text) != "" {
			doc.Method = MethodOCR
			doc.Notes = append(doc.Notes, fmt.Sprintf("OCR fallback mode: pdftotext unusable (%s)", reason))
			return text, nil
		}
		if ocrErr != nil {
			reason = fmt.Sprintf("%s; ocr: %v", reason, ocrErr)
		}
	}

	doc.Method = MethodFallback
	fallback := extractPrintableText(blob)
	if strings.TrimSpace(fallback) == "" {
		doc.Method = MethodNone
		doc.Notes = append(doc.Notes, fmt.Sprintf("OCR unavailable: no extractable text (%s)", reason))
		return "", nil
	}
	doc.Notes = append(doc.Notes, fmt.Sprintf("Printable byte fallback used: %s", reason))
	return fallback, nil
}

func runPdfToText(ctx context.Context, bin, path string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// extractPrintableText keeps runs of at least 24 printable bytes, which recovers
// uncompressed text streams from PDFs without a usable text layer.
func extractPrintableText(blob []byte) string {
	var runs []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if len(s) >= 24 {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, c := range blob {
		r := rune(c)
		if r < unicode.MaxASCII && (unicode.IsPrint(r) || r == '\n' || r == '\t') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(strings.Join(runs, "\n"))
}
