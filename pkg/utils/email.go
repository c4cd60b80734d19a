package utils

import (
	"net/mail"
	"strings"
)

// NormalizeEmail trims and lower-cases a bare address. It reports false for anything that is not a
// plain addr-spec, including display-name forms such as "Jo <jo@example.com>".
func NormalizeEmail(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}
