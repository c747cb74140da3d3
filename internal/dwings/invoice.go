// Package dwings implements the DWINGS Linking Resolver: token extraction
// from free-text AMBRE labels and reference fields, and ranked lookup
// against a set of DWINGS invoices.
package dwings

import (
	"sort"
	"strings"
	"time"
)

// Invoice is the subset of a DWINGS invoice row the resolver needs.
type Invoice struct {
	InvoiceID               string
	BGPMT                    string
	BusinessCaseReference    string
	BusinessCaseID           string
	RequestedAmount          float64
	HasRequestedAmount       bool
	BillingAmount            float64
	HasBillingAmount         bool
	RequestedExecutionDate   time.Time
	HasRequestedExecutionDate bool
	StartDate                time.Time
	HasStartDate             bool
	EndDate                  time.Time
	HasEndDate               bool
}

const amountTolerance = 0.01

// ResolveInvoiceByBgi returns the sole invoice whose InvoiceID matches bgi
// case-insensitively, or nil if there is no match or more than one.
func ResolveInvoiceByBgi(invoices []Invoice, bgi string) *Invoice {
	return resolveUnique(invoices, bgi, func(inv Invoice) string { return inv.InvoiceID })
}

// ResolveInvoiceByBgpmt returns the sole invoice whose BGPMT matches bgpmt
// case-insensitively, or nil if there is no match or more than one.
func ResolveInvoiceByBgpmt(invoices []Invoice, bgpmt string) *Invoice {
	return resolveUnique(invoices, bgpmt, func(inv Invoice) string { return inv.BGPMT })
}

func resolveUnique(invoices []Invoice, key string, field func(Invoice) string) *Invoice {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	var match *Invoice
	count := 0
	for i := range invoices {
		if strings.EqualFold(strings.TrimSpace(field(invoices[i])), key) {
			count++
			if count > 1 {
				return nil
			}
			match = &invoices[i]
		}
	}
	return match
}

// ResolveInvoicesByGuarantee ranks invoices against guaranteeId (matched
// against normalized BusinessCaseReference/BusinessCaseID, equals preferred
// over contains), optionally filtered by amount and ranked by date and
// amount proximity, returning up to take entries.
func ResolveInvoicesByGuarantee(invoices []Invoice, guaranteeID string, date *time.Time, amount *float64, take int) []Invoice {
	guaranteeID = strings.TrimSpace(guaranteeID)
	if guaranteeID == "" || take <= 0 {
		return nil
	}
	norm := normalizeKey(guaranteeID)

	var equals, contains []Invoice
	for _, inv := range invoices {
		ref := normalizeKey(inv.BusinessCaseReference)
		id := normalizeKey(inv.BusinessCaseID)
		switch {
		case ref == norm || id == norm:
			equals = append(equals, inv)
		case strings.Contains(ref, norm) || strings.Contains(id, norm):
			contains = append(contains, inv)
		}
	}

	candidates := equals
	if len(candidates) == 0 {
		candidates = contains
	}
	if len(candidates) == 0 {
		return nil
	}

	if amount != nil {
		want := absf(*amount)
		var filtered []Invoice
		for _, inv := range candidates {
			if amountCloseEnough(want, inv) {
				filtered = append(filtered, inv)
			}
		}
		if len(filtered) == 0 {
			return nil
		}
		candidates = filtered
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di, diOK := candidateDateDistance(candidates[i], date)
		dj, djOK := candidateDateDistance(candidates[j], date)
		if diOK != djOK {
			return diOK
		}
		if diOK && djOK && di != dj {
			return di < dj
		}

		if amount == nil {
			return false
		}
		ai := amountDistance(absf(*amount), candidates[i])
		aj := amountDistance(absf(*amount), candidates[j])
		return ai < aj
	})

	if len(candidates) > take {
		candidates = candidates[:take]
	}
	return candidates
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func amountCloseEnough(want float64, inv Invoice) bool {
	if inv.HasRequestedAmount && absf(want-absf(inv.RequestedAmount)) <= amountTolerance {
		return true
	}
	if inv.HasBillingAmount && absf(want-absf(inv.BillingAmount)) <= amountTolerance {
		return true
	}
	return false
}

func amountDistance(want float64, inv Invoice) float64 {
	best := -1.0
	if inv.HasRequestedAmount {
		best = absf(want - absf(inv.RequestedAmount))
	}
	if inv.HasBillingAmount {
		d := absf(want - absf(inv.BillingAmount))
		if best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return 1 << 30
	}
	return best
}

// candidateDateDistance returns the absolute duration between ref and the
// invoice's preferred date field (RequestedExecutionDate, else StartDate,
// else EndDate), and whether any such date was present.
func candidateDateDistance(inv Invoice, ref *time.Time) (time.Duration, bool) {
	if ref == nil {
		return 0, false
	}
	var t time.Time
	switch {
	case inv.HasRequestedExecutionDate:
		t = inv.RequestedExecutionDate
	case inv.HasStartDate:
		t = inv.StartDate
	case inv.HasEndDate:
		t = inv.EndDate
	default:
		return 0, false
	}
	d := ref.Sub(t)
	if d < 0 {
		d = -d
	}
	return d, true
}
