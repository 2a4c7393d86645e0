// Package identity resolves VerusIDs and serves their reward statistics.
package identity

import "strings"

// NormalizeInput canonicalizes a caller-supplied identity reference.
// Friendly names are case-folded, lose any trailing dot, and gain the "@"
// suffix the daemon expects. Identity addresses (i-prefixed base58) pass
// through untouched so lookups stay byte-exact.
func NormalizeInput(input string) string {
	input = strings.TrimSpace(input)
	if IsIdentityAddress(input) {
		return input
	}

	name := strings.ToLower(input)
	name = strings.TrimSuffix(name, ".")
	if !strings.HasSuffix(name, "@") {
		name += "@"
	}
	return name
}

// IsIdentityAddress reports whether input looks like an i-address rather
// than a friendly name.
func IsIdentityAddress(input string) bool {
	if len(input) < 20 || len(input) > 40 {
		return false
	}
	if input[0] != 'i' {
		return false
	}
	for _, r := range input[1:] {
		if !isBase58(r) {
			return false
		}
	}
	return true
}

func isBase58(r rune) bool {
	switch {
	case r >= '1' && r <= '9':
		return true
	case r >= 'A' && r <= 'Z':
		return r != 'I' && r != 'O'
	case r >= 'a' && r <= 'z':
		return r != 'l'
	}
	return false
}
