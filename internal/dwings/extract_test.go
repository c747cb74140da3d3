package dwings

import "testing"

func TestExtractBgpmt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"payment ref bgpmt12345678 confirmed", "BGPMT12345678"},
		{"no token here", ""},
		{"BGPMTABCDEFGHIJ in the middle", "BGPMTABCDEFGHIJ"},
	}
	for _, tt := range tests {
		if got := ExtractBgpmt(tt.in); got != tt.want {
			t.Errorf("ExtractBgpmt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractBgi(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"issued under bgi202601a1b2c3d", "BGI202601A1B2C3D"},
		{"no such token", ""},
	}
	for _, tt := range tests {
		if got := ExtractBgi(tt.in); got != tt.want {
			t.Errorf("ExtractBgi(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractGuaranteeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"guarantee G2026AB123456789 issued", "G2026AB123456789"},
		{"no guarantee id", ""},
	}
	for _, tt := range tests {
		if got := ExtractGuaranteeID(tt.in); got != tt.want {
			t.Errorf("ExtractGuaranteeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSuggestInvoicesForAmbrePrefersBgiOverBgpmtOverGuarantee(t *testing.T) {
	invoices := []Invoice{
		{InvoiceID: "BGI202601A1B2C3D", BusinessCaseReference: "G2026AB123456789"},
		{InvoiceID: "OTHER", BGPMT: "BGPMT12345678", BusinessCaseReference: "G2026AB123456789"},
	}
	refs := AmbreRefs{RawLabel: "bgi202601a1b2c3d and bgpmt12345678"}
	got := SuggestInvoicesForAmbre(invoices, refs, 5)
	if len(got) == 0 || got[0].InvoiceID != "BGI202601A1B2C3D" {
		t.Fatalf("expected the BGI match first, got %+v", got)
	}
}

func TestSuggestInvoicesForAmbreRespectsTake(t *testing.T) {
	invoices := []Invoice{
		{InvoiceID: "A", BusinessCaseReference: "G2026AB123456789"},
		{InvoiceID: "B", BusinessCaseReference: "G2026AB123456789"},
	}
	refs := AmbreRefs{RawLabel: "guarantee G2026AB123456789"}
	got := SuggestInvoicesForAmbre(invoices, refs, 1)
	if len(got) != 1 {
		t.Fatalf("SuggestInvoicesForAmbre with take=1 returned %d results, want 1", len(got))
	}
}

func TestSuggestInvoicesForAmbreZeroTake(t *testing.T) {
	if got := SuggestInvoicesForAmbre(nil, AmbreRefs{RawLabel: "bgpmt12345678"}, 0); got != nil {
		t.Errorf("SuggestInvoicesForAmbre with take<=0 = %v, want nil", got)
	}
}

func TestSuggestInvoicesForAmbreDedupes(t *testing.T) {
	invoices := []Invoice{
		{InvoiceID: "BGI202601A1B2C3D"},
	}
	refs := AmbreRefs{ExplicitBgi: "bgi202601a1b2c3d", RawLabel: "bgi202601a1b2c3d"}
	got := SuggestInvoicesForAmbre(invoices, refs, 5)
	if len(got) != 1 {
		t.Errorf("SuggestInvoicesForAmbre should deduplicate repeated matches, got %d results", len(got))
	}
}
