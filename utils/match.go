package utils

// Match checks if value matches the given glob pattern. Patterns may include:
//   - Wildcard '*' which matches any sequence of characters (including '/').
//   - Wildcard '?' which matches exactly one character.
//
// Everything else is matched literally and case-sensitively, so resource
// paths like "project/maestro/code/main.py" match "project/*/code/*" and
// "project/*" alike: a single '*' reaches across path separators.
func Match(value, pattern string) bool {
	if pattern == "*" {
		return true
	}

	vIndex, pIndex := 0, 0
	starIndex, backtrack := -1, 0

	for vIndex < len(value) {
		switch {
		case pIndex < len(pattern) && (pattern[pIndex] == '?' || pattern[pIndex] == value[vIndex]):
			vIndex++
			pIndex++
		case pIndex < len(pattern) && pattern[pIndex] == '*':
			// Remember the star so we can widen its span later.
			starIndex = pIndex
			backtrack = vIndex
			pIndex++
		case starIndex >= 0:
			// Mismatch after a star: let the star swallow one more character.
			pIndex = starIndex + 1
			backtrack++
			vIndex = backtrack
		default:
			return false
		}
	}

	// Trailing stars match the empty tail.
	for pIndex < len(pattern) && pattern[pIndex] == '*' {
		pIndex++
	}
	return pIndex == len(pattern)
}

// MatchAny checks if value matches at least one of the patterns.
func MatchAny(value string, patterns []string) bool {
	for _, pattern := range patterns {
		if Match(value, pattern) {
			return true
		}
	}
	return false
}
