// Package textnorm holds the normalisation helpers shared by the RSVP recorder,
// the spreadsheet importer and the notification templates.
package textnorm

import (
	"html"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cast"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"wedding-rsvp/internal/models"
)

// Fold lowercases s, trims it and strips diacritics so "Prénom " and "prenom" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// CellString renders a loosely typed spreadsheet cell as trimmed text
func CellString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

// Int reads a loosely typed number. Strings are parsed as base 10 after
// trimming, so "010" is 10; other values go through cast.
func Int(v any) (int, error) {
	if str, ok := v.(string); ok {
		return strconv.Atoi(strings.TrimSpace(str))
	}
	return cast.ToIntE(v)
}

var truthyWords = map[string]bool{"oui": true, "true": true, "x": true, "yes": true}

// Truthy interprets a spreadsheet cell as a yes/no flag.
// Numeric 1 and the words oui/true/x/yes (any case) are true; everything else is false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if truthyWords[s] {
			return true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f == 1
		}
		return false
	default:
		f, err := cast.ToFloat64E(v)
		return err == nil && f == 1
	}
}

// Country maps free text to a canonical country. Anything mentioning
// "etranger" (with or without accent) is foreign, the rest is home.
func Country(s string) models.Country {
	if strings.Contains(Fold(s), "etranger") {
		return models.CountryEtranger
	}
	return models.CountryFrance
}

// Family maps free text to a canonical family name when it clearly refers to
// one. Unrecognised values are returned verbatim.
func Family(s string) models.Family {
	s = strings.TrimSpace(s)
	for _, f := range models.Families {
		if s == string(f) {
			return f
		}
	}
	lower := strings.ToLower(s)
	for _, f := range models.Families {
		if strings.Contains(lower, strings.ToLower(string(f))) {
			return f
		}
	}
	return models.Family(s)
}

// Email lowercases and trims an address
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Truncate trims s and caps it at max runes
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max > 0 && len(r) > max {
		return strings.TrimSpace(string(r[:max]))
	}
	return s
}

// Message prepares guest free text for storage: trimmed, capped, HTML-escaped
func Message(s string, max int) string {
	return html.EscapeString(Truncate(s, max))
}

// Phone converts a local or international number to digits with a leading
// country code, e.g. "06 12 34 56 78" -> "33612345678" for code "33".
// It returns "" when nothing usable is left.
func Phone(phone, countryCode string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(strings.TrimSpace(phone), "+"):
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	}

	// "+33 (0)6..." keeps a trunk zero after the country code
	if countryCode != "" && strings.HasPrefix(digits, countryCode+"0") {
		digits = countryCode + digits[len(countryCode)+1:]
	}
	if len(digits) < 8 {
		return ""
	}
	return digits
}
