package transport

import (
	"regexp"
	"strings"
)

const mask = "***"

type scrubRule struct {
	pattern     *regexp.Regexp
	replacement string

	// maskBody rewrites the segment body captured by the second group
	maskBody func(body string) string
}

// Values are matched by their position within an owning segment.
// "(?:\?.|[^+:'])*" is a single escaped item
var scrubRules = []scrubRule{
	// PIN and TAN in the signature footer
	{pattern: regexp.MustCompile(`(HNSHA:\d+:\d+\+(?:\?.|[^+'])*\+(?:\?.|[^+'])*\+)(?:\?.|[^'])*`), replacement: "${1}" + mask},

	// user id and customer system id
	{pattern: regexp.MustCompile(`(HKIDN:\d+:\d+\+(?:\?.|[^+'])*\+)(?:\?.|[^+:'])*`), replacement: "${1}" + mask},

	// key names of signature and encryption headers
	{pattern: regexp.MustCompile(`(280:\d*:)(?:\?.|[^+:'])*(:[SV]:)`), replacement: "${1}" + mask + "${2}"},

	// account reference of statement requests
	{pattern: regexp.MustCompile(`(HKKAZ:\d+:\d+(?::\d+)?\+)(?:\?.|[^+'])*`), replacement: "${1}" + mask},

	// account, iban and customer id of user data
	{pattern: regexp.MustCompile(`(HIUPD:\d+:\d+(?::\d+)?\+)((?:\?.|[^'])*)`), maskBody: maskUserData},

	// iban and account number of every listed account
	{pattern: regexp.MustCompile(`(HISPA:\d+:\d+(?::\d+)?\+)((?:\?.|[^'])*)`), maskBody: maskSepaAccounts},

	// MT940 account identification
	{pattern: regexp.MustCompile(`(:25:)[^\r\n@]*`), replacement: "${1}" + mask},

	{pattern: regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`), replacement: mask},
}

// splitEscaped splits on sep unless it is escaped with '?'
func splitEscaped(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '?':
			i++
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func maskPositions(parts []string, positions ...int) {
	for _, pos := range positions {
		if pos < len(parts) && parts[pos] != "" {
			parts[pos] = mask
		}
	}
}

func maskUserData(body string) string {
	elements := splitEscaped(body, '+')
	maskPositions(elements, 0, 1, 2)
	return strings.Join(elements, "+")
}

func maskSepaAccounts(body string) string {
	elements := splitEscaped(body, '+')
	for i, element := range elements {
		items := splitEscaped(element, ':')
		maskPositions(items, 1, 3)
		elements[i] = strings.Join(items, ":")
	}
	return strings.Join(elements, "+")
}

// Scrub masks PINs, TANs, user ids, IBANs and account numbers
func Scrub(raw string) string {
	for _, rule := range scrubRules {
		if rule.maskBody == nil {
			raw = rule.pattern.ReplaceAllString(raw, rule.replacement)
			continue
		}
		maskBody := rule.maskBody
		pattern := rule.pattern
		raw = pattern.ReplaceAllStringFunc(raw, func(match string) string {
			groups := pattern.FindStringSubmatch(match)
			return groups[1] + maskBody(groups[2])
		})
	}
	return raw
}
