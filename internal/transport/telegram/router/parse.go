package router

import (
	"strings"
	"unicode"
)

// splitCommand splits "/cmd@bot rest of text" into ("cmd", "rest of text").
// ok is false when text is not a command.
func splitCommand(text string) (word, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		word = text[1:]
	} else {
		word, rest = text[1:i], strings.TrimSpace(text[i:])
	}
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	word = strings.ToLower(word)
	return word, rest, word != ""
}

const remindSeparator = " через "

// splitRemindArgs splits "<note> через <duration>" at the LAST separator,
// so notes may themselves contain "через".
func splitRemindArgs(args string) (note, duration string, ok bool) {
	// The leading space lets "через 5 минут" without a note be reported as
	// missing text instead of a missing separator.
	padded := " " + strings.TrimSpace(args)
	i := strings.LastIndex(padded, remindSeparator)
	if i < 0 {
		return "", "", false
	}
	note = strings.TrimSpace(padded[:i])
	duration = strings.TrimSpace(padded[i+len(remindSeparator):])
	if duration == "" {
		return "", "", false
	}
	return note, duration, true
}
