package config

import "testing"

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.LastCountry != "" || len(s.FeatureFlags) != 0 {
		t.Errorf("Load of a missing file = %+v, want zero value", s)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := &Settings{LastCountry: "FR", FeatureFlags: map[string]bool{"betaSync": true}}
	if err := Save(dir, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LastCountry != "FR" {
		t.Errorf("LastCountry = %q, want %q", got.LastCountry, "FR")
	}
	if !got.FeatureFlags["betaSync"] {
		t.Error("FeatureFlags[betaSync] should round-trip true")
	}
}

func TestSetAndGetFeatureFlag(t *testing.T) {
	dir := t.TempDir()
	if err := SetFeatureFlag(dir, "dwLinking", true); err != nil {
		t.Fatalf("SetFeatureFlag: %v", err)
	}
	v, set, err := GetFeatureFlag(dir, "dwLinking")
	if err != nil {
		t.Fatalf("GetFeatureFlag: %v", err)
	}
	if !set || !v {
		t.Errorf("GetFeatureFlag = %v, %v; want true, true", v, set)
	}
}

func TestGetFeatureFlagUnsetReportsNotSet(t *testing.T) {
	dir := t.TempDir()
	_, set, err := GetFeatureFlag(dir, "neverSet")
	if err != nil {
		t.Fatalf("GetFeatureFlag: %v", err)
	}
	if set {
		t.Error("an unset feature flag should report set=false")
	}
}
