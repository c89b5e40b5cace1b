package template

import "strings"

// ExpandShortcut looks at the last word of text. When it is a '.' followed
// by the shortcut of one of templates, that word is replaced by the
// template content. The second result reports whether an expansion happened.
func ExpandShortcut(text string, templates []Template) (string, bool) {
	start := strings.LastIndexAny(text, " \t\n") + 1
	word := text[start:]
	if len(word) < 2 || word[0] != '.' {
		return text, false
	}

	key := normalizeShortcut(word[1:])
	for _, t := range templates {
		if t.Shortcut() == key {
			return text[:start] + t.Content, true
		}
	}
	return text, false
}
