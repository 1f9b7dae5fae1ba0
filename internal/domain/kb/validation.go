package kb

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidateContent checks the required content fields and their limits.
func ValidateContent(title, summary, fix string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(fix) == "" && strings.TrimSpace(summary) == "" {
		return fmt.Errorf("%w: summary or fix is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if utf8.RuneCountInString(summary) > MaxSummaryLength {
		return ErrSummaryTooLong
	}
	if utf8.RuneCountInString(fix) > MaxFixLength {
		return ErrFixTooLong
	}
	return nil
}

// Clip shortens s to at most n runes.
func Clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
