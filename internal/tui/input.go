package tui

import "unicode/utf8"

// maxInputLen is the maximum number of runes allowed in inline inputs.
const maxInputLen = 512

// editRune processes a keystroke for inline text editing. Handles backspace
// (rune-aware) and single printable characters; other keys leave the text
// unchanged. Input is clamped to maxInputLen runes.
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if len(text) > 0 {
			runes := []rune(text)
			return string(runes[:len(runes)-1])
		}
		return text
	default:
		if utf8.RuneCountInString(key) == 1 {
			if utf8.RuneCountInString(text) >= maxInputLen {
				return text
			}
			return text + key
		}
		return text
	}
}
