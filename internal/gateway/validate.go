package gateway

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxMessageBytes bounds the raw frame payload accepted for a message.
	MaxMessageBytes = 4096
	// MaxTextChars bounds the character count of a single message.
	MaxTextChars = 2000
)

// ValidateText checks that message text meets content requirements after
// trimming.
func ValidateText(text string) error {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
