package match

import (
	"sort"
	"strings"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
// Unescaped backslashes become forward slashes so "specs\prod\*.yaml" works
// on Windows; escaped metacharacters (\*, \?, \[ ...) are kept as-is.
//
//	"specs/**/*.yaml"   → "specs/**/*.yaml"
//	"specs\prod"        → "specs/prod"
//	"specs/file\*.yaml" → "specs/file\*.yaml"
func NormalizePattern(pattern string) string {
	if pattern == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			result.WriteRune(r)
			continue
		}
		if i+1 < len(runes) && strings.ContainsRune(globEscapable, runes[i+1]) {
			result.WriteRune('\\')
			result.WriteRune(runes[i+1])
			i++
			continue
		}
		result.WriteRune('/')
	}

	return result.String()
}

// IsHidden returns true if any '/'-separated segment of key starts with a dot.
//
//	"specs/a.yaml"         → false
//	".github/ci.yml"       → true
//	"specs/.draft.yaml"    → true
func IsHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if seg != "" && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// DerivePrefix extracts the longest static directory prefix from a glob
// pattern, so listings can skip unrelated parts of a bucket.
//
//	"**/*.y*ml"             → ""
//	"specs/**/*.yaml"       → "specs/"
//	"specs/prod-*/*.yaml"   → "specs/"
//	"specs/policy.yaml"     → "specs/policy.yaml"
//	"specs/\[v1\]/*.yaml"   → "specs/[v1]/"
func DerivePrefix(pattern string) string {
	if pattern == "" {
		return ""
	}
	pattern = NormalizePattern(pattern)

	metaIdx := findFirstUnescapedMeta(pattern)
	if metaIdx == -1 {
		return unescapePrefix(pattern)
	}
	if metaIdx == 0 {
		return ""
	}

	// Truncate to the last complete path segment: "specs/prod-" → "specs/".
	prefix := pattern[:metaIdx]
	if lastSlash := strings.LastIndex(prefix, "/"); lastSlash >= 0 {
		return unescapePrefix(prefix[:lastSlash+1])
	}
	return ""
}

// findFirstUnescapedMeta returns the index of the first unescaped glob
// metacharacter (* ? [ {) in pattern, or -1.
func findFirstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			switch pattern[i+1] {
			case '*', '?', '[', '{', '\\':
				i++
			}
			continue
		}
		if c == '*' || c == '?' || c == '[' || c == '{' {
			return i
		}
	}
	return -1
}

// unescapePrefix strips glob escapes so the prefix matches literal keys.
func unescapePrefix(prefix string) string {
	if !strings.ContainsRune(prefix, '\\') {
		return prefix
	}

	var result strings.Builder
	result.Grow(len(prefix))

	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '\\' && i+1 < len(prefix) && strings.IndexByte(globEscapable, prefix[i+1]) >= 0 {
			result.WriteByte(prefix[i+1])
			i++
			continue
		}
		result.WriteByte(c)
	}

	return result.String()
}

// DerivePrefixes derives a prefix per pattern and drops prefixes subsumed by
// shorter ones. The result is sorted; [""] means a full listing.
func DerivePrefixes(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}

	prefixes := make([]string, 0, len(patterns))
	for _, p := range patterns {
		prefix := DerivePrefix(p)
		if prefix == "" {
			return []string{""}
		}
		prefixes = append(prefixes, prefix)
	}

	sort.Slice(prefixes, func(i, j int) bool {
		return len(prefixes[i]) < len(prefixes[j])
	})

	result := make([]string, 0, len(prefixes))
	for _, candidate := range prefixes {
		subsumed := false
		for _, existing := range result {
			if strings.HasPrefix(candidate, existing) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			result = append(result, candidate)
		}
	}

	sort.Strings(result)
	return result
}

// IsGlobPattern returns true if the pattern contains unescaped glob
// metacharacters.
func IsGlobPattern(pattern string) bool {
	return findFirstUnescapedMeta(pattern) != -1
}
