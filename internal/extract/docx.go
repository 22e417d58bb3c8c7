package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

type docxBody struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
		Tables     []struct {
			Rows []struct {
				Cells []struct {
					Paragraphs []docxParagraph `xml:"p"`
				} `xml:"tc"`
			} `xml:"tr"`
		} `xml:"tbl"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

func (p docxParagraph) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

// docxText reads paragraphs, then table rows with cells joined the same way as CSV rows.
func docxText(blob []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return "", fmt.Errorf("%w: docx: %v", ErrMalformed, err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: docx: %v", ErrMalformed, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, MaxFileBytes*4))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: docx: %v", ErrMalformed, err)
		}
		var doc docxBody
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", fmt.Errorf("%w: docx: %v", ErrMalformed, err)
		}
		var lines []string
		for _, p := range doc.Body.Paragraphs {
			lines = append(lines, p.text())
		}
		for _, tbl := range doc.Body.Tables {
			for _, row := range tbl.Rows {
				var cells []string
				for _, cell := range row.Cells {
					var parts []string
					for _, p := range cell.Paragraphs {
						if s := strings.TrimSpace(p.text()); s != "" {
							parts = append(parts, s)
						}
					}
					if len(parts) > 0 {
						cells = append(cells, strings.Join(parts, " "))
					}
				}
				lines = append(lines, strings.Join(cells, " | "))
			}
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("%w: docx: word/document.xml not found", ErrMalformed)
}
