package pkg

import "strings"

// Unique drop blanks and duplicates, keep first-seen order
func Unique(slice []string) []string {
	seen := make(map[string]struct{}, len(slice))
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Remove return a copy of slice without val
func Remove(slice []string, val string) []string {
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		if v != val {
			out = append(out, v)
		}
	}
	return out
}

// SafeKey id can be used as a document field name: non-empty, no '.' and no leading '$'
func SafeKey(id string) bool {
	return id != "" && !strings.ContainsRune(id, '.') && !strings.HasPrefix(id, "$")
}
