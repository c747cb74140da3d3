package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/ambre-sync/reconcile-core/internal/localstore"
	"github.com/ambre-sync/reconcile-core/internal/model"
	"github.com/ambre-sync/reconcile-core/internal/rules"
	"github.com/ambre-sync/reconcile-core/internal/snapshot"
	"github.com/ambre-sync/reconcile-core/internal/sqlitex"
	"github.com/spf13/cobra"
)

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

var (
	importCountry string
	importWhich   string
)

var importCmd = &cobra.Command{
	Use:   "import <country>",
	Short: "Refresh the local AMBRE/DWINGS caches and seed new RECONCILIATION rows for newly-seen AMBRE entries",
	Long: `import refreshes the local AMBRE and/or DWINGS cache via the Snapshot
Synchronizer (a raw file or zip-archive replace, never pushed back), then
seeds a RECONCILIATION row, carrying the rule engine's Action/KPI/Risk
outputs, for every AMBRE entry not yet seen locally, via the Batch Applier
with suppressChangeLog=true: AMBRE import never produces change-log
entries, since AMBRE itself is never pushed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		importCountry = args[0]
		_, params, err := serviceContext(ctx)
		if err != nil {
			return err
		}
		stores, err := openCountryStores(importCountry, params)
		if err != nil {
			return err
		}
		defer stores.Close()

		if importWhich == "ambre" || importWhich == "both" {
			if err := syncAmbre(ctx, stores); err != nil {
				return err
			}
		}
		if importWhich == "dw" || importWhich == "both" {
			if err := syncDW(ctx, stores); err != nil {
				return err
			}
		}
		return nil
	},
}

func syncAmbre(ctx context.Context, stores *countryStores) error {
	src := stores.Paths.NetAmbre
	zipCache := ""
	if fileExists(stores.Paths.NetAmbreZip) {
		src = stores.Paths.NetAmbreZip
		zipCache = stores.Paths.LocalAmbreZipCache
	}
	result, err := snapshot.Sync(ctx, snapshot.Source{NetPath: src, LocalPath: stores.Paths.LocalAmbre, LocalZipCache: zipCache})
	if err != nil {
		return fmt.Errorf("sync AMBRE snapshot: %w", err)
	}
	fmt.Printf("AMBRE snapshot: updated=%v (%s)\n", result.Updated, result.Reason)

	ambreConn, err := sqlitex.Open(stores.Paths.LocalAmbre)
	if err != nil {
		return fmt.Errorf("open local AMBRE store: %w", err)
	}
	defer sqlitex.Close(ambreConn)

	ruleCache := rules.NewCache(stores.Control.Conn())
	added, err := seedReconciliationFromAmbre(ctx, ambreConn, stores.LocalConn, ruleCache)
	if err != nil {
		return fmt.Errorf("seed reconciliation rows: %w", err)
	}
	fmt.Printf("AMBRE import: seeded %d new reconciliation row(s)\n", added)
	return nil
}

func syncDW(ctx context.Context, stores *countryStores) error {
	src := stores.Paths.NetDW
	zipCache := ""
	if fileExists(stores.Paths.NetDWZip) {
		src = stores.Paths.NetDWZip
		zipCache = stores.Paths.LocalDWZipCache
	}
	result, err := snapshot.Sync(ctx, snapshot.Source{NetPath: src, LocalPath: stores.Paths.LocalDW, LocalZipCache: zipCache})
	if err != nil {
		return fmt.Errorf("sync DWINGS snapshot: %w", err)
	}
	fmt.Printf("DWINGS snapshot: updated=%v (%s)\n", result.Updated, result.Reason)
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// seedReconciliationFromAmbre reads every AMBRE row and inserts a
// RECONCILIATION row (the shared primary key plus the rule engine's
// Action/KPI/Risk outputs for the row's derived context) for each AMBRE
// entry not yet present locally, via the Batch Applier with
// suppressChangeLog=true. It never touches existing RECONCILIATION rows:
// AMBRE import only ever adds, re-annotation after that is the edit path's
// job (see annotateCmd).
func seedReconciliationFromAmbre(ctx context.Context, ambreConn, reconConn *sql.DB, ruleCache *rules.Cache) (int, error) {
	ambrePK, err := tablePrimaryKey(ctx, ambreConn, model.TableAmbre)
	if err != nil {
		return 0, err
	}
	reconPK, err := tablePrimaryKey(ctx, reconConn, model.TableReconciliation)
	if err != nil {
		return 0, err
	}

	ambreRows, err := scanAmbreRows(ctx, ambreConn, ambrePK)
	if err != nil {
		return 0, err
	}
	existing, err := scanPrimaryKeys(ctx, reconConn, model.TableReconciliation, reconPK)
	if err != nil {
		return 0, err
	}
	existingSet := make(map[string]bool, len(existing))
	for _, k := range existing {
		existingSet[k] = true
	}

	ruleSet := ruleCache.Get(ctx)

	var toAdd []model.Entity
	for _, row := range ambreRows {
		if existingSet[row.key] {
			continue
		}
		e := model.NewEntity(model.TableReconciliation, reconPK)
		e.Set(reconPK, model.String(row.key))
		outcome, matched := rules.Evaluate(row.ruleCtx, ruleSet, rules.ScopeImport)
		applyRuleOutcome(e, outcome, matched)
		toAdd = append(toAdd, e)
	}
	if len(toAdd) == 0 {
		return 0, nil
	}

	applier := localstore.New(reconConn, "")
	result, err := applier.Apply(ctx, model.TableReconciliation, toAdd, nil, nil, true)
	if err != nil {
		return 0, err
	}
	return result.Inserted, nil
}

// applyRuleOutcome copies a matched rule's Action/KPI/Risk outputs onto e.
// A non-match leaves e untouched: an unannotated stub row is a legitimate
// outcome when no rule covers the row's context yet.
func applyRuleOutcome(e model.Entity, outcome rules.Outcome, matched bool) {
	if !matched {
		return
	}
	e.Set("RuleId", model.Int64(outcome.RuleID))
	e.Set("ActionId", model.Int64(outcome.ActionID))
	e.Set("KpiId", model.Int64(outcome.KpiID))
	e.Set("IncidentTypeId", model.Int64(outcome.IncidentTypeID))
	e.Set("RiskyItem", model.Bool(outcome.RiskyItem))
	e.Set("ReasonNonRiskyId", model.Int64(outcome.ReasonNonRiskyID))
	e.Set("ToRemind", model.Bool(outcome.ToRemind))
	e.Set("ToRemindDays", model.Int64(int64(outcome.ToRemindDays)))
	e.Set("FirstClaimToday", model.Bool(outcome.FirstClaimToday))
}

// ambreRow bundles one AMBRE primary key with the normalized rule context
// derived from that row's Booking/GuaranteeType/TransactionType/Sign/
// AccountSide columns.
type ambreRow struct {
	key     string
	ruleCtx rules.RuleContext
}

// scanAmbreRows reads every AMBRE row's full column set (not just its
// primary key), deriving a rule context from each one, the same way
// rulesEvaluateCmd derives one from CLI flags.
func scanAmbreRows(ctx context.Context, conn *sql.DB, pk string) ([]ambreRow, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(model.TableAmbre)))
	if err != nil {
		return nil, fmt.Errorf("scan rows from %s: %w", model.TableAmbre, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []ambreRow
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row from %s: %w", model.TableAmbre, err)
		}
		get := columnGetter(cols, vals)
		out = append(out, ambreRow{
			key:     model.FromRaw(get(pk)).String(),
			ruleCtx: rules.Normalize(ambreRuleContext(get)),
		})
	}
	return out, rows.Err()
}

// columnGetter looks a column up by name, case-insensitively, against a
// row already scanned into parallel cols/vals slices.
func columnGetter(cols []string, vals []any) func(string) any {
	return func(name string) any {
		for i, c := range cols {
			if strings.EqualFold(c, name) {
				return vals[i]
			}
		}
		return nil
	}
}

// ambreRuleContext derives the rule engine's RuleContext from one AMBRE
// row's columns, mirroring rulesEvaluateCmd's flag-driven construction for
// the same fields.
func ambreRuleContext(get func(string) any) rules.RuleContext {
	side := strings.ToUpper(strings.TrimSpace(model.FromRaw(get("AccountSide")).String()))
	return rules.RuleContext{
		Booking:         model.FromRaw(get("Booking")).String(),
		GuaranteeType:   model.FromRaw(get("GuaranteeType")).String(),
		TransactionType: model.FromRaw(get("TransactionType")).String(),
		Sign:            model.FromRaw(get("Sign")).String(),
		IsPivot:         side == "P",
		HasIsPivot:      side == "P" || side == "R",
	}
}

func tablePrimaryKey(ctx context.Context, conn *sql.DB, table string) (string, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return "", fmt.Errorf("read schema for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return "", err
		}
		if pk == 1 {
			return name, rows.Err()
		}
	}
	return "", fmt.Errorf("table %s has no declared primary key", table)
}

func scanPrimaryKeys(ctx context.Context, conn *sql.DB, table, pk string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s`, quoteIdent(pk), quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("scan primary keys from %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, model.FromRaw(v).String())
	}
	return out, rows.Err()
}

func init() {
	importCmd.Flags().StringVar(&importWhich, "which", "both", "which snapshot(s) to refresh: ambre, dw, or both")
	rootCmd.AddCommand(importCmd)
}
