package cmd

import "testing"

func TestParseTriFlag(t *testing.T) {
	tests := []struct {
		in   string
		want *bool
	}{
		{"true", boolPtr(true)},
		{"yes", boolPtr(true)},
		{"acked", boolPtr(true)},
		{"false", boolPtr(false)},
		{"no", boolPtr(false)},
		{"notacked", boolPtr(false)},
		{"", nil},
		{"maybe", nil},
	}
	for _, tt := range tests {
		got := parseTriFlag(tt.in)
		if (got == nil) != (tt.want == nil) {
			t.Errorf("parseTriFlag(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		if got != nil && *got != *tt.want {
			t.Errorf("parseTriFlag(%q) = %v, want %v", tt.in, *got, *tt.want)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
