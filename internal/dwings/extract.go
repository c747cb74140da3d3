package dwings

import (
	"regexp"
	"strings"
)

var (
	bgpmtPattern = regexp.MustCompile(`(?i)\bBGPMT[A-Za-z0-9]{8,20}\b`)
	bgiPattern   = regexp.MustCompile(`(?i)\bBGI(?:\d{6}[A-F0-9]{7}|\d{4}[A-Za-z]{2}[A-F0-9]{7})\b`)
	guaranteePattern = regexp.MustCompile(`\b[GN]\d{4}[A-Za-z]{2}\d{9}\b`)
)

// ExtractBgpmt returns the first word-isolated BGPMT token in s, upper-cased,
// or "" if none is present.
func ExtractBgpmt(s string) string {
	m := bgpmtPattern.FindString(s)
	return strings.ToUpper(m)
}

// ExtractBgi returns the first word-isolated BGI token in s, upper-cased, or
// "" if none is present.
func ExtractBgi(s string) string {
	m := bgiPattern.FindString(s)
	return strings.ToUpper(m)
}

// ExtractGuaranteeID returns the first word-isolated guarantee ID token in
// s, or "" if none is present. The leading G/N must be upper-case, the two
// letters after the year may be of either case, and the match is returned
// as found, without case normalization.
func ExtractGuaranteeID(s string) string {
	return guaranteePattern.FindString(s)
}

// AmbreRefs bundles the free-text fields SuggestInvoicesForAmbre extracts
// tokens from, in the order the spec's pipeline applies extractors.
type AmbreRefs struct {
	ExplicitBgi             string
	ReconciliationNum       string
	ReconciliationOriginNum string
	RawLabel                string
}

// SuggestInvoicesForAmbre applies the BGI -> BGPMT -> Guarantee extractors
// in order over refs' fields, resolves each against invoices, and
// concatenates deduplicated ranked results up to take.
func SuggestInvoicesForAmbre(invoices []Invoice, refs AmbreRefs, take int) []Invoice {
	if take <= 0 {
		return nil
	}

	fields := []string{refs.ExplicitBgi, refs.ReconciliationNum, refs.ReconciliationOriginNum, refs.RawLabel}

	var out []Invoice
	seen := make(map[string]bool)
	add := func(inv *Invoice) {
		if inv == nil {
			return
		}
		key := strings.ToUpper(strings.TrimSpace(inv.InvoiceID))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, *inv)
	}
	addAll := func(invs []Invoice) {
		for i := range invs {
			add(&invs[i])
		}
	}

	for _, f := range fields {
		if bgi := ExtractBgi(f); bgi != "" {
			add(ResolveInvoiceByBgi(invoices, bgi))
		}
	}
	if len(out) >= take {
		return out[:take]
	}

	for _, f := range fields {
		if bgpmt := ExtractBgpmt(f); bgpmt != "" {
			add(ResolveInvoiceByBgpmt(invoices, bgpmt))
		}
	}
	if len(out) >= take {
		return out[:take]
	}

	for _, f := range fields {
		if gid := ExtractGuaranteeID(f); gid != "" {
			addAll(ResolveInvoicesByGuarantee(invoices, gid, nil, nil, take-len(out)))
			if len(out) >= take {
				return out[:take]
			}
		}
	}

	if len(out) > take {
		return out[:take]
	}
	return out
}
