package utils

import "strings"

// ToStringSlice keeps the non-blank string elements of a decoded JSON array
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0, len(slice))
	for _, v := range slice {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			stringSlice = append(stringSlice, strings.TrimSpace(s))
		}
	}
	return stringSlice
}

// CompactStrings trims every element and drops the blank ones
func CompactStrings(slice []string) []string {
	out := make([]string, 0, len(slice))
	for _, s := range slice {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
