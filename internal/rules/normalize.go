package rules

import "strings"

// Normalize applies the spec's context normalization: upper-case-trim of
// string tokens, sign reduced to its first letter, guarantee type mapped
// via prefix synonyms, and transaction type upper-cased with spaces
// replaced by underscores.
func Normalize(raw RuleContext) RuleContext {
	n := raw
	n.Booking = upperTrim(raw.Booking)
	n.GuaranteeType = normalizeGuaranteeType(raw.GuaranteeType)
	n.TransactionType = strings.ReplaceAll(upperTrim(raw.TransactionType), " ", "_")
	n.Sign = normalizeSign(raw.Sign)
	return n
}

func upperTrim(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func normalizeSign(s string) string {
	s = upperTrim(s)
	if s == "" {
		return ""
	}
	return s[:1]
}

func normalizeGuaranteeType(s string) string {
	u := upperTrim(s)
	switch {
	case strings.HasPrefix(u, "REISSU"):
		return "REISSUANCE"
	case strings.HasPrefix(u, "ISSU"):
		return "ISSUANCE"
	case strings.HasPrefix(u, "NOTIF"), strings.HasPrefix(u, "ADVISING"):
		return "ADVISING"
	default:
		return u
	}
}

// splitSet splits a rule's set-predicate value on ;,| into trimmed,
// upper-cased, non-empty tokens.
func splitSet(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ';' || r == ',' || r == '|'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = upperTrim(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isWildcard(s string) bool {
	return s == "" || s == "*"
}

func matchesSet(ruleValue, contextToken string) bool {
	if isWildcard(ruleValue) {
		return true
	}
	token := upperTrim(contextToken)
	for _, v := range splitSet(ruleValue) {
		if v == token {
			return true
		}
	}
	return false
}
