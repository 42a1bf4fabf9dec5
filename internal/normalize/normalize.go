package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// ID trims an identifier supplied by a client (query parameter or JSON
// field). Identifiers are case-sensitive, so only whitespace is removed.
func ID(id string) string {
	return strings.TrimSpace(id)
}
