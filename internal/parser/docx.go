package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

var (
	paragraphEnd = regexp.MustCompile(`</w:p>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

type docxParser struct{}

func (docxParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".docx")
}

const docxBody = "word/document.xml"

// Parse extracts paragraph text from the document body. Markup is dropped and
// XML entities are decoded.
func (docxParser) Parse(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	f, err := zr.Open(docxBody)
	if err != nil {
		return "", fmt.Errorf("docx has no %s: %w", docxBody, err)
	}
	body, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", docxBody, err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("docx has an empty %s", docxBody)
	}
	return docxText(string(body)), nil
}

func docxText(xml string) string {
	text := paragraphEnd.ReplaceAllString(xml, "\n")
	text = html.UnescapeString(xmlTag.ReplaceAllString(text, ""))
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	return blankRuns.ReplaceAllString(text, "\n\n")
}
