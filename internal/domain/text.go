package domain

// TruncateRunes cuts s to at most n characters and reports whether it cut
// anything. It never splits a multi-byte character.
func TruncateRunes(s string, n int) (string, bool) {
	if n <= 0 {
		return "", s != ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
