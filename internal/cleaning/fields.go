package cleaning

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// emailFixes are applied in order after lowercasing.
var emailFixes = []struct{ typo, fix string }{
	{"gmial.com", "gmail.com"},
	{"gmai.com", "gmail.com"},
	{"gmal.com", "gmail.com"},
	{"yaho.com", "yahoo.com"},
	{"yahooo.com", "yahoo.com"},
	{"hotmial.com", "hotmail.com"},
	{"hotmai.com", "hotmail.com"},
	{"outloo.com", "outlook.com"},
	{"outlok.com", "outlook.com"},
}

// cleanField applies the built-in transform for target to raw. The
// returned flag reports whether the transform counted as a change.
func cleanField(target, raw string) (string, Category, bool) {
	value := strings.TrimSpace(raw)

	switch target {
	case "email":
		out, changed := cleanEmail(value)
		return out, CategoryEmail, changed
	case "phone":
		out, changed := cleanPhone(value)
		return out, CategoryPhone, changed
	case "first_name", "last_name":
		out := TitleCase(value)
		return out, CategoryNames, out != value
	case "city", "state":
		out := TitleCase(value)
		return out, CategoryLocations, out != value
	case "company":
		out := TitleCase(value)
		return out, CategoryCompanies, out != value
	}
	return value, "", false
}

// cleanEmail lowercases value and fixes known domain typos. Only a typo
// fix counts as a change.
func cleanEmail(value string) (string, bool) {
	lower := strings.ToLower(value)
	out := lower
	for _, f := range emailFixes {
		out = strings.ReplaceAll(out, f.typo, f.fix)
	}
	return out, out != lower
}

// cleanPhone formats a 10 digit number as +1-XXX-XXX-XXXX. Anything else is
// returned untouched.
func cleanPhone(value string) (string, bool) {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) != 10 {
		return value, false
	}
	out := "+1-" + d[:3] + "-" + d[3:6] + "-" + d[6:]
	return out, out != value
}

// TitleCase upper-cases the first letter of each space separated word and
// lower-cases the rest. Runs of spaces are preserved.
func TitleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
