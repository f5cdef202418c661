package ocr

import "strings"

// maxTextLength caps stored OCR text at 500,000 characters
const maxTextLength = 500000

// Sanitize normalizes extracted text for storage: control characters are
// dropped, whitespace runs collapse to single spaces, and the result is
// truncated to maxTextLength characters.
func Sanitize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)

	collapsed := strings.Join(strings.Fields(cleaned), " ")

	runes := []rune(collapsed)
	if len(runes) > maxTextLength {
		return string(runes[:maxTextLength])
	}
	return collapsed
}
