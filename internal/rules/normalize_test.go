package rules

import "testing"

func TestNormalizeUpperTrims(t *testing.T) {
	n := Normalize(RuleContext{Booking: "  france  "})
	if n.Booking != "FRANCE" {
		t.Errorf("Booking = %q, want %q", n.Booking, "FRANCE")
	}
}

func TestNormalizeSign(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"debit", "D"},
		{" Credit ", "C"},
		{"", ""},
	}
	for _, tt := range tests {
		got := Normalize(RuleContext{Sign: tt.in}).Sign
		if got != tt.want {
			t.Errorf("Normalize(Sign=%q).Sign = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeGuaranteeTypeSynonyms(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"issuance", "ISSUANCE"},
		{"Issue", "ISSUANCE"},
		{"reissuance", "REISSUANCE"},
		{"notification", "ADVISING"},
		{"advising", "ADVISING"},
		{"something else", "SOMETHING ELSE"},
	}
	for _, tt := range tests {
		got := Normalize(RuleContext{GuaranteeType: tt.in}).GuaranteeType
		if got != tt.want {
			t.Errorf("Normalize(GuaranteeType=%q).GuaranteeType = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTransactionTypeSpacesToUnderscores(t *testing.T) {
	got := Normalize(RuleContext{TransactionType: "claim received"}).TransactionType
	if got != "CLAIM_RECEIVED" {
		t.Errorf("TransactionType = %q, want %q", got, "CLAIM_RECEIVED")
	}
}

func TestMatchesSetWildcard(t *testing.T) {
	if !matchesSet("", "ANYTHING") {
		t.Error("empty rule value should be a wildcard")
	}
	if !matchesSet("*", "ANYTHING") {
		t.Error("* rule value should be a wildcard")
	}
}

func TestMatchesSetDelimiters(t *testing.T) {
	for _, sep := range []string{";", ",", "|"} {
		value := "FRANCE" + sep + "GERMANY"
		if !matchesSet(value, "germany") {
			t.Errorf("matchesSet(%q, germany) = false, want true", value)
		}
		if matchesSet(value, "spain") {
			t.Errorf("matchesSet(%q, spain) = true, want false", value)
		}
	}
}
