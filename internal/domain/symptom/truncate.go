package symptom

const truncationMarker = "\n... [truncated] ...\n"

// TruncateText keeps the head and tail of text when it exceeds maxChars.
func TruncateText(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}
	half := maxChars / 2
	return string(runes[:half]) + truncationMarker + string(runes[len(runes)-half:])
}
