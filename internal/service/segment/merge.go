package segment

import "strings"

// maxOverlapWords bounds the tail/head comparison when merging fragments.
const maxOverlapWords = 10

// mergeAddition returns the part of next that is not already present in
// buffered. Streaming recognizers resend cumulative interim results ("I want",
// "I want to"), so a fragment fully contained in the buffer adds nothing and a
// shared run of words between the buffer tail and the fragment head is
// trimmed. Comparison is case-insensitive.
func mergeAddition(buffered, next string) string {
	next = collapseSpaces(next)
	if next == "" {
		return ""
	}
	buffered = collapseSpaces(buffered)
	if buffered == "" {
		return next
	}
	if containsWords(buffered, next) {
		return ""
	}

	have := strings.Fields(buffered)
	add := strings.Fields(next)

	overlap := min(len(have), len(add), maxOverlapWords)
	for size := overlap; size > 0; size-- {
		if equalFold(have[len(have)-size:], add[:size]) {
			return strings.Join(add[size:], " ")
		}
	}
	return next
}

// containsWords reports whether needle appears in haystack on word boundaries.
func containsWords(haystack, needle string) bool {
	h := " " + strings.ToLower(haystack) + " "
	n := " " + strings.ToLower(needle) + " "
	return strings.Contains(h, n)
}

func equalFold(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
