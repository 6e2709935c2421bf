// Package extract pulls a single JSON value out of command output that may
// carry unrelated text around it. gcloud interleaves warnings and notices
// with its structured output, before and after the document.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

const previewLen = 300

var (
	// ErrNotFound is returned when the text holds no opening delimiter.
	ErrNotFound = errors.New("no JSON object or array found in text")
	// ErrUnbalanced is returned when the text ends before the opened
	// structure is closed.
	ErrUnbalanced = errors.New("no matching closing bracket found for JSON")
)

// Extract returns the first balanced JSON object or array in text. The
// earliest of '{' and '[' selects the delimiter pair that is tracked.
// Delimiters inside string literals of the structure are not counted.
func Extract(text string) (string, error) {
	start, opener, closer := opening(text)
	if start < 0 {
		return "", ErrNotFound
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrUnbalanced
}

func opening(text string) (int, byte, byte) {
	brace := strings.IndexByte(text, '{')
	bracket := strings.IndexByte(text, '[')
	switch {
	case brace < 0 && bracket < 0:
		return -1, 0, 0
	case bracket < 0, brace >= 0 && brace < bracket:
		return brace, '{', '}'
	default:
		return bracket, '[', ']'
	}
}

// Decode extracts the JSON value embedded in text and unmarshals it into v.
func Decode(text string, v interface{}) error {
	fragment, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(fragment), v); err != nil {
		return errors.Wrapf(err, "decode JSON (preview: %q)", preview(fragment))
	}
	return nil
}

func preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen] + "..."
}
