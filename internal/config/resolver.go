package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ambre-sync/reconcile-core/internal/errs"
)

// Recognized parameter table keys (spec ambre reconciliation §4.1).
const (
	KeyDataDirectory              = "DataDirectory"
	KeyCountryDatabaseDirectory   = "CountryDatabaseDirectory"
	KeyCountryDatabasePrefix      = "CountryDatabasePrefix"
	KeyAmbreDatabasePrefix        = "AmbreDatabasePrefix"
	KeyDWDatabasePrefix           = "DWDatabasePrefix"
	KeyControlDatabasePrefix      = "ControlDatabasePrefix"
	KeyTemplate                   = "Template"
	KeyTemplateDirectory          = "TemplateDirectory"
	KeyGlobalLockAcquireTimeout   = "GlobalLockAcquireTimeoutSeconds"
	KeyNetworkOpenTimeoutSeconds  = "NetworkOpenTimeoutSeconds"
	KeySyncTables                 = "SyncTables"
	KeyEnableSyncLog              = "EnableSyncLog"
	KeyDiagSyncLog                = "DiagSyncLog"
)

const defaultCountryDatabasePrefix = "DB_"

// Connection descriptors produced per country. Local entries are files
// under DataDirectory; Net entries live under CountryDatabaseDirectory and
// may be unreachable while offline.
type CountryPaths struct {
	Country string

	LocalReconciliation string
	LocalAmbre          string
	LocalAmbreZipCache  string
	LocalDW             string
	LocalDWZipCache     string
	LocalChangeLog      string
	LocalControl        string

	NetReconciliation string
	NetAmbre          string
	NetAmbreZip       string
	NetDW             string
	NetDWZip          string
	NetControl        string

	TemplateDirectory string

	GlobalLockAcquireTimeoutSeconds int
	NetworkOpenTimeoutSeconds       int
	SyncTables                      []string
	EnableSyncLog                   bool
	DiagSyncLog                     bool
}

// Resolver resolves CountryPaths from a ParamTable. It performs no I/O
// other than path joining; existence of the resolved files is the caller's
// concern (Snapshot Synchronizer, network-store open, and so on).
type Resolver struct {
	params ParamTable
}

// NewResolver builds a Resolver over the given parameter table.
func NewResolver(params ParamTable) *Resolver {
	return &Resolver{params: params}
}

func (r *Resolver) require(key string) (string, error) {
	v, ok := r.params.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%s: %w", key, errs.ErrConfigMissing)
	}
	return v, nil
}

func (r *Resolver) optional(key, fallback string) string {
	if v, ok := r.params.Get(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func (r *Resolver) clampedSeconds(key string, def, min, max int) int {
	v, ok := r.params.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func (r *Resolver) boolFlag(key string) bool {
	v, ok := r.params.Get(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// Resolve derives the full set of file paths and settings for a country
// code, applying the default/fallback rules described in the parameter
// table contract.
func (r *Resolver) Resolve(country string) (*CountryPaths, error) {
	cc := strings.ToUpper(strings.TrimSpace(country))

	dataDir, err := r.require(KeyDataDirectory)
	if err != nil {
		return nil, err
	}
	netDir, err := r.require(KeyCountryDatabaseDirectory)
	if err != nil {
		return nil, err
	}

	countryPrefix := r.optional(KeyCountryDatabasePrefix, defaultCountryDatabasePrefix)
	ambrePrefix := r.optional(KeyAmbreDatabasePrefix, countryPrefix)
	dwPrefix := r.optional(KeyDWDatabasePrefix, countryPrefix)
	controlPrefix := r.optional(KeyControlDatabasePrefix, countryPrefix)

	cp := &CountryPaths{
		Country: cc,

		LocalReconciliation: filepath.Join(dataDir, fmt.Sprintf("%s%s.accdb", countryPrefix, cc)),
		LocalAmbre:          filepath.Join(dataDir, fmt.Sprintf("%s%s.accdb", ambrePrefix, cc)),
		LocalAmbreZipCache:  filepath.Join(dataDir, fmt.Sprintf("%s%s.zip.cache", ambrePrefix, cc)),
		LocalDW:             filepath.Join(dataDir, fmt.Sprintf("%s%s.accdb", dwPrefix, cc)),
		LocalDWZipCache:     filepath.Join(dataDir, fmt.Sprintf("%s%s.zip.cache", dwPrefix, cc)),
		LocalChangeLog:      filepath.Join(dataDir, fmt.Sprintf("ChangeLog_%s.accdb", cc)),
		LocalControl:        filepath.Join(dataDir, fmt.Sprintf("%s%s_lock.accdb", controlPrefix, cc)),

		NetReconciliation: filepath.Join(netDir, fmt.Sprintf("%s%s.accdb", countryPrefix, cc)),
		NetAmbre:          filepath.Join(netDir, fmt.Sprintf("%s%s.accdb", ambrePrefix, cc)),
		NetAmbreZip:       filepath.Join(netDir, fmt.Sprintf("%s%s.zip", ambrePrefix, cc)),
		NetDW:             filepath.Join(netDir, fmt.Sprintf("%s%s.accdb", dwPrefix, cc)),
		NetDWZip:          filepath.Join(netDir, fmt.Sprintf("%s%s.zip", dwPrefix, cc)),
		NetControl:        filepath.Join(netDir, fmt.Sprintf("%s%s_lock.accdb", controlPrefix, cc)),

		TemplateDirectory: r.optional(KeyTemplateDirectory, r.optional(KeyTemplate, "")),

		GlobalLockAcquireTimeoutSeconds: r.clampedSeconds(KeyGlobalLockAcquireTimeout, 20, 5, 120),
		NetworkOpenTimeoutSeconds:       r.clampedSeconds(KeyNetworkOpenTimeoutSeconds, 20, 5, 120),
		SyncTables:                      splitSyncTables(r.optional(KeySyncTables, "T_Reconciliation")),
		EnableSyncLog:                   r.boolFlag(KeyEnableSyncLog),
		DiagSyncLog:                     r.boolFlag(KeyDiagSyncLog),
	}

	return cp, nil
}

func splitSyncTables(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"T_Reconciliation"}
	}
	return out
}
