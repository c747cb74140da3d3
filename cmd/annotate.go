package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ambre-sync/reconcile-core/internal/localstore"
	"github.com/ambre-sync/reconcile-core/internal/model"
	"github.com/ambre-sync/reconcile-core/internal/rules"
	"github.com/ambre-sync/reconcile-core/internal/sqlitex"
	"github.com/spf13/cobra"
)

var (
	annotateHasManualMatch string
	annotateIsMatched      string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <country> <id>",
	Short: "Re-run the rule table against one RECONCILIATION row after a user edit",
	Long: `annotate is the interactive edit path's counterpart to import's seeding
pass: it loads the AMBRE row sharing id's primary key, folds in the
manual-match flags the user just set, evaluates the rule table under
rules.ScopeEdit, and writes the outcome back onto the RECONCILIATION row
via the Batch Applier with suppressChangeLog=false, so the Push Engine
picks the change up on its next sweep.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		country, id := args[0], args[1]
		_, params, err := serviceContext(ctx)
		if err != nil {
			return err
		}
		stores, err := openCountryStores(country, params)
		if err != nil {
			return err
		}
		defer stores.Close()

		ambreConn, err := sqlitex.Open(stores.Paths.LocalAmbre)
		if err != nil {
			return fmt.Errorf("open local AMBRE store: %w", err)
		}
		defer sqlitex.Close(ambreConn)

		ruleCtx, err := loadAmbreRuleContext(ctx, ambreConn, id)
		if err != nil {
			return err
		}
		ruleCtx.HasManualMatch = parseTriFlag(annotateHasManualMatch)
		ruleCtx.IsMatched = parseTriFlag(annotateIsMatched)
		ruleCtx = rules.Normalize(ruleCtx)

		cache := rules.NewCache(stores.Control.Conn())
		outcome, matched := rules.Evaluate(ruleCtx, cache.Get(ctx), rules.ScopeEdit)
		if !matched {
			fmt.Println("no rule matched, RECONCILIATION row left unchanged")
			return nil
		}

		reconPK, err := tablePrimaryKey(ctx, stores.LocalConn, model.TableReconciliation)
		if err != nil {
			return err
		}
		e := model.NewEntity(model.TableReconciliation, reconPK)
		e.Set(reconPK, model.String(id))
		applyRuleOutcome(e, outcome, matched)

		applier := localstore.New(stores.LocalConn, stores.Paths.LocalChangeLog)
		result, err := applier.Apply(ctx, model.TableReconciliation, nil, []model.Entity{e}, nil, false)
		if err != nil {
			return err
		}
		fmt.Printf("rule %d applied: updated=%d action=%d kpi=%d risky=%v to-remind=%v\n",
			outcome.RuleID, result.Updated, outcome.ActionID, outcome.KpiID, outcome.RiskyItem, outcome.ToRemind)
		return nil
	},
}

// loadAmbreRuleContext reads the single AMBRE row sharing id's primary key
// and derives its rule context, the way scanAmbreRows does for the whole
// table during import.
func loadAmbreRuleContext(ctx context.Context, ambreConn *sql.DB, id string) (rules.RuleContext, error) {
	pk, err := tablePrimaryKey(ctx, ambreConn, model.TableAmbre)
	if err != nil {
		return rules.RuleContext{}, err
	}

	rows, err := ambreConn.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE %s = ?`, quoteIdent(model.TableAmbre), quoteIdent(pk)), id)
	if err != nil {
		return rules.RuleContext{}, fmt.Errorf("load AMBRE row %s: %w", id, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return rules.RuleContext{}, err
	}
	if !rows.Next() {
		return rules.RuleContext{}, fmt.Errorf("no AMBRE row found for id %s", id)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return rules.RuleContext{}, fmt.Errorf("scan AMBRE row %s: %w", id, err)
	}
	return ambreRuleContext(columnGetter(cols, vals)), rows.Err()
}

func init() {
	annotateCmd.Flags().StringVar(&annotateHasManualMatch, "has-manual-match", "", "true, false, or empty for unknown")
	annotateCmd.Flags().StringVar(&annotateIsMatched, "is-matched", "", "true, false, or empty for unknown")
	rootCmd.AddCommand(annotateCmd)
}
