package config

import "testing"

func TestResolveDefaultPrefixesAndPaths(t *testing.T) {
	params := MapParamTable{
		KeyDataDirectory:            "/data",
		KeyCountryDatabaseDirectory: "/net",
	}
	cp, err := NewResolver(params).Resolve("fr")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cp.Country != "FR" {
		t.Errorf("Country = %q, want %q (upper-cased)", cp.Country, "FR")
	}
	if cp.LocalReconciliation != "/data/DB_FR.accdb" {
		t.Errorf("LocalReconciliation = %q", cp.LocalReconciliation)
	}
	if cp.NetControl != "/net/DB_FR_lock.accdb" {
		t.Errorf("NetControl = %q", cp.NetControl)
	}
	if len(cp.SyncTables) != 1 || cp.SyncTables[0] != "T_Reconciliation" {
		t.Errorf("SyncTables default = %v, want [T_Reconciliation]", cp.SyncTables)
	}
}

func TestResolveMissingRequiredKey(t *testing.T) {
	params := MapParamTable{KeyDataDirectory: "/data"}
	if _, err := NewResolver(params).Resolve("FR"); err == nil {
		t.Error("Resolve should error when CountryDatabaseDirectory is missing")
	}
}

func TestResolvePerDomainPrefixOverridesCountryPrefix(t *testing.T) {
	params := MapParamTable{
		KeyDataDirectory:            "/data",
		KeyCountryDatabaseDirectory: "/net",
		KeyCountryDatabasePrefix:    "CC_",
		KeyAmbreDatabasePrefix:      "AMBRE_",
	}
	cp, err := NewResolver(params).Resolve("DE")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cp.LocalAmbre != "/data/AMBRE_DE.accdb" {
		t.Errorf("LocalAmbre = %q, want the AmbreDatabasePrefix override applied", cp.LocalAmbre)
	}
	if cp.LocalDW != "/data/CC_DE.accdb" {
		t.Errorf("LocalDW = %q, want the CountryDatabasePrefix fallback applied", cp.LocalDW)
	}
}

func TestResolveClampedSeconds(t *testing.T) {
	params := MapParamTable{
		KeyDataDirectory:            "/data",
		KeyCountryDatabaseDirectory: "/net",
		KeyGlobalLockAcquireTimeout: "999",
		KeyNetworkOpenTimeoutSeconds: "1",
	}
	cp, err := NewResolver(params).Resolve("FR")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cp.GlobalLockAcquireTimeoutSeconds != 120 {
		t.Errorf("GlobalLockAcquireTimeoutSeconds = %d, want clamped to 120", cp.GlobalLockAcquireTimeoutSeconds)
	}
	if cp.NetworkOpenTimeoutSeconds != 5 {
		t.Errorf("NetworkOpenTimeoutSeconds = %d, want clamped to 5", cp.NetworkOpenTimeoutSeconds)
	}
}

func TestResolveSyncTablesSplitting(t *testing.T) {
	params := MapParamTable{
		KeyDataDirectory:            "/data",
		KeyCountryDatabaseDirectory: "/net",
		KeySyncTables:               "T_Reconciliation, T_Other ,T_Third",
	}
	cp, err := NewResolver(params).Resolve("FR")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"T_Reconciliation", "T_Other", "T_Third"}
	if len(cp.SyncTables) != len(want) {
		t.Fatalf("SyncTables = %v, want %v", cp.SyncTables, want)
	}
	for i := range want {
		if cp.SyncTables[i] != want[i] {
			t.Errorf("SyncTables[%d] = %q, want %q", i, cp.SyncTables[i], want[i])
		}
	}
}

func TestMapParamTableCaseInsensitive(t *testing.T) {
	m := MapParamTable{"DataDirectory": "/x"}
	v, ok := m.Get("datadirectory")
	if !ok || v != "/x" {
		t.Errorf("Get(case-folded key) = %q, %v; want /x, true", v, ok)
	}
}
