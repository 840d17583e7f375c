package tgui

// TruncRunes returns s cut to at most n runes followed by suffix. s is
// returned unchanged when it already fits.
func TruncRunes(s string, n int, suffix string) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + suffix
		}
		count++
	}
	return s
}

// RuneLen counts runes without allocating.
func RuneLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
