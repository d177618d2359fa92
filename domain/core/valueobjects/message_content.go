package valueobjects

import (
	"strings"
	"unicode/utf8"

	pkgerrors "loom-backend/pkg/errors"
)

// maxContentLength bounds a single message body. Long-form pastes are fine,
// runaway streams are not.
const maxContentLength = 200_000

// MessageContent is a value object for a message node's text.
// A draft (empty) content is legal: the responder streams into a
// provisional node that starts with no text at all.
type MessageContent struct {
	text string
}

// NewMessageContent creates content with validation. Leading/trailing
// whitespace is preserved because the responder's output is verbatim.
func NewMessageContent(text string) (MessageContent, error) {
	if utf8.RuneCountInString(text) > maxContentLength {
		return MessageContent{}, pkgerrors.NewValidationError("message content exceeds maximum length")
	}
	return MessageContent{text: text}, nil
}

// EmptyContent returns the draft content a provisional node starts with
func EmptyContent() MessageContent {
	return MessageContent{}
}

// Text returns the raw text
func (c MessageContent) Text() string {
	return c.text
}

// IsEmpty checks whether any text has been written yet
func (c MessageContent) IsEmpty() bool {
	return c.text == ""
}

// IsBlank checks whether the content is empty or whitespace only
func (c MessageContent) IsBlank() bool {
	return strings.TrimSpace(c.text) == ""
}

// Equals checks if two contents are equal
func (c MessageContent) Equals(other MessageContent) bool {
	return c.text == other.text
}

// Append returns the content extended by a streamed delta
func (c MessageContent) Append(delta string) (MessageContent, error) {
	return NewMessageContent(c.text + delta)
}

// Summary returns a truncated single-line summary of the content
func (c MessageContent) Summary(maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	line := strings.ReplaceAll(c.text, "\n", " ")
	if utf8.RuneCountInString(line) <= maxLength {
		return line
	}
	runes := []rune(line)
	return string(runes[:maxLength-3]) + "..."
}
