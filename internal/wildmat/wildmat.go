// Package wildmat implements the wildmat pattern matcher used by LIST
// ACTIVE and related commands (RFC 3977 §4.2). No repo in the retrieval
// pack implements wildmat, so this is a deliberate standard-library-only
// piece; see DESIGN.md.
package wildmat

import "strings"

// Match reports whether name matches the wildmat pattern. A pattern is a
// comma-separated list of alternatives; a leading "!" on an alternative
// negates it ("exclude"), and later alternatives override earlier ones,
// per RFC 3977 §4.2. An empty pattern matches everything.
func Match(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	matched := false
	for _, alt := range strings.Split(pattern, ",") {
		negate := false
		if strings.HasPrefix(alt, "!") {
			negate = true
			alt = alt[1:]
		}
		if matchOne(alt, name) {
			matched = !negate
		}
	}
	return matched
}

// matchOne matches a single glob alternative against name. Supported
// syntax: '*' (any run, including empty), '?' (exactly one character),
// '[...]' (one character from a class, with '^' or '!' for negation and
// 'a-z' ranges).
func matchOne(pattern, name string) bool {
	return matchAt(pattern, name)
}

func matchAt(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse runs of '*' and try every possible split point.
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchAt(pattern, name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		case '[':
			end := strings.IndexByte(pattern, ']')
			if end < 0 || len(name) == 0 {
				return false
			}
			class := pattern[1:end]
			if !matchClass(class, name[0]) {
				return false
			}
			pattern = pattern[end+1:]
			name = name[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		}
	}
	return len(name) == 0
}

func matchClass(class string, c byte) bool {
	negate := false
	if len(class) > 0 && (class[0] == '^' || class[0] == '!') {
		negate = true
		class = class[1:]
	}
	found := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			lo, hi := class[i], class[i+2]
			if lo <= c && c <= hi {
				found = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			found = true
		}
	}
	return found != negate
}
