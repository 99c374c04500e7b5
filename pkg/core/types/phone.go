package types

import "strings"

// DefaultCountryCode is prefixed to bare ten-digit numbers.
const DefaultCountryCode = "91"

// NormalizePhone returns an E.164 form of raw. Channel prefixes such as
// "whatsapp:" and formatting characters are dropped. Ten-digit numbers are
// treated as Indian mobile numbers. Input with no digits yields "".
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[i+1:]
	}
	plus := strings.HasPrefix(strings.TrimSpace(raw), "+")
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case plus:
		return "+" + d
	case len(d) == 10:
		return "+" + DefaultCountryCode + d
	case len(d) == 11 && d[0] == '0':
		return "+" + DefaultCountryCode + d[1:]
	default:
		return "+" + d
	}
}

// MaskPhone keeps the last four digits of a normalized number for logs.
func MaskPhone(raw string) string {
	p := NormalizePhone(raw)
	if len(p) <= 4 {
		return p
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}
