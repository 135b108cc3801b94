package pipeline

import (
	"strings"

	"github.com/IshaanNene/bookharvest/internal/types"
)

// WhitespaceMiddleware normalizes whitespace in the text fields. Parsed text
// is already entity-decoded, so nothing else is rewritten: angle brackets and
// ampersands in the text are kept as they are.
//
// Title, genre and author names are collapsed onto one line. The description
// keeps its line breaks; runs of spaces and tabs inside each line collapse.
type WhitespaceMiddleware struct{}

func NewWhitespaceMiddleware() *WhitespaceMiddleware {
	return &WhitespaceMiddleware{}
}

func (m *WhitespaceMiddleware) Name() string { return "whitespace" }

func (m *WhitespaceMiddleware) Process(rec types.BookRecord) (types.BookRecord, error) {
	rec.Title = collapseLine(rec.Title)
	rec.Genre = collapseLine(rec.Genre)
	rec.Description = collapseParagraphs(rec.Description)

	authors := make([]string, len(rec.Authors))
	for i, a := range rec.Authors {
		authors[i] = collapseLine(a)
	}
	rec.Authors = authors
	return rec, nil
}

func collapseLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collapseParagraphs(s string) string {
	if s == "" {
		return s
	}
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = collapseLine(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
