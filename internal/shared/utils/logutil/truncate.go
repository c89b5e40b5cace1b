package logutil

// TruncateForLog shortens s to at most maxLen runes, appending "..." when
// anything was cut. Used for message bodies and raw frames in log fields.
func TruncateForLog(s string, maxLen int) string {
	if maxLen <= 0 {
		return "..."
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
