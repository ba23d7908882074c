package detect

import (
	"strings"
	"unicode"
)

// excludeTerms are tokens that regularly match the name-shaped regexes on
// tax forms but never belong to a client name (headers, financial vocabulary,
// email noise). A candidate containing any of them is rejected.
var excludeTerms = map[string]bool{
	"federal": true, "state": true, "total": true, "units": true,
	"value": true, "amount": true, "tax": true, "assets": true,
	"liquid": true, "other": true, "held": true, "applicable": true,
	"discounts": true, "net": true, "taxable": true, "related": true,
	"generation": true, "skipping": true, "payable": true, "available": true,
	"estimated": true, "capital": true, "gains": true, "beneficiaries": true,
	"transfer": true, "basis": true, "personal": true, "article": true,
	"exempt": true, "income": true, "wages": true, "statement": true,
	"email": true, "phone": true, "fax": true, "address": true,
	"account": true, "subject": true, "attachment": true,
	"llc": true, "inc": true, "corp": true, "ltd": true,
	"company": true, "partnership": true,
}

const maxNameLength = 50

// IsPlausiblePersonName reports whether a detected string plausibly names a
// person: at least first and last part, each capitalized, no digits, not an
// all-caps header, not dominated by known non-name vocabulary.
func IsPlausiblePersonName(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 4 || len(name) > maxNameLength {
		return false
	}

	parts := strings.Fields(name)
	if len(parts) < 2 || len(parts) > 4 {
		return false
	}

	if name == strings.ToUpper(name) {
		return false
	}

	for _, r := range name {
		if unicode.IsDigit(r) {
			return false
		}
	}

	for _, part := range parts {
		trimmed := strings.TrimRight(part, ".,")
		if trimmed == "" {
			return false
		}
		first := []rune(trimmed)[0]
		if !unicode.IsUpper(first) {
			return false
		}
		if excludeTerms[strings.ToLower(trimmed)] {
			return false
		}
	}

	return true
}

// comparisonKey builds the key two candidates must share to be considered
// the same name: lower-cased, punctuation stripped, whitespace collapsed.
// Original casing is kept elsewhere for output.
func comparisonKey(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		// Punctuation dropped entirely
		}
	}
	return strings.TrimSpace(b.String())
}
