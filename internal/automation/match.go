package automation

import "strings"

// matchResource reports whether every pattern in match is satisfied by the
// corresponding resource attribute. A missing attribute never matches.
func matchResource(match, resource map[string]string) bool {
	for key, pattern := range match {
		value, ok := resource[key]
		if !ok || !matchPattern(pattern, value) {
			return false
		}
	}
	return true
}

// matchPattern matches value against a pattern where each * matches any run
// of characters, including the empty run. Literal segments must appear in
// order; the first and last segments are anchored unless the pattern starts
// or ends with *.
func matchPattern(pattern, value string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}

	segments := strings.Split(pattern, "*")

	if first := segments[0]; first != "" {
		if !strings.HasPrefix(value, first) {
			return false
		}
		value = value[len(first):]
	}
	last := segments[len(segments)-1]

	for _, seg := range segments[1 : len(segments)-1] {
		if seg == "" {
			continue
		}
		i := strings.Index(value, seg)
		if i < 0 {
			return false
		}
		value = value[i+len(seg):]
	}

	return strings.HasSuffix(value, last)
}
