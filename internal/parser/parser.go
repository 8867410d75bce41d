// Package parser extracts indexable text from vault files.
package parser

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// Parser converts a binary document format to plain text.
type Parser interface {
	CanParse(filename string) bool
	Parse(content []byte) (string, error)
}

// ErrUnsupported indicates a file that is neither a registered format nor text.
var ErrUnsupported = errors.New("unsupported document format")

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// Extract returns the indexable text of a file. Registered formats are parsed;
// other UTF-8 content is returned byte for byte so its hash matches content
// written through the sync orchestrator.
func Extract(name string, data []byte) (string, error) {
	for _, p := range registry {
		if p.CanParse(name) {
			text, err := p.Parse(data)
			if err != nil {
				return "", fmt.Errorf("parse %s: %w", name, err)
			}
			return text, nil
		}
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: %w", name, ErrUnsupported)
	}
	return string(data), nil
}

// ParseFile reads path from disk and extracts its text.
func ParseFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return Extract(path, data)
}

func init() {
	Register(docxParser{})
}
