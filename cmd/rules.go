package cmd

import (
	"fmt"

	"github.com/ambre-sync/reconcile-core/internal/rules"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Evaluate the reconciliation rule table against a candidate context",
}

var (
	ruleCountry         string
	ruleScope           string
	ruleBooking         string
	ruleGuaranteeType   string
	ruleTransactionType string
	ruleSign            string
	ruleAccountSide     string
	ruleMTAcked         string
)

var rulesEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one candidate row against a country's cached truth rule table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, params, err := serviceContext(ctx)
		if err != nil {
			return err
		}
		stores, err := openCountryStores(ruleCountry, params)
		if err != nil {
			return err
		}
		defer stores.Close()

		cache := rules.NewCache(stores.Control.Conn())
		ruleCtx := rules.Normalize(rules.RuleContext{
			Booking:         ruleBooking,
			GuaranteeType:   ruleGuaranteeType,
			TransactionType: ruleTransactionType,
			Sign:            ruleSign,
			IsPivot:         ruleAccountSide == "P",
			HasIsPivot:      ruleAccountSide == "P" || ruleAccountSide == "R",
			IsMtAcked:       parseTriFlag(ruleMTAcked),
		})

		scope := rules.ScopeImport
		if ruleScope == "edit" {
			scope = rules.ScopeEdit
		}

		outcome, matched := rules.Evaluate(ruleCtx, cache.Get(ctx), scope)
		if !matched {
			fmt.Println("no rule matched")
			return nil
		}
		fmt.Printf("rule %d matched: action=%d kpi=%d incident=%d risky=%v to-remind=%v message=%q\n",
			outcome.RuleID, outcome.ActionID, outcome.KpiID, outcome.IncidentTypeID, outcome.RiskyItem, outcome.ToRemind, outcome.Message)
		return nil
	},
}

func parseTriFlag(v string) *bool {
	switch v {
	case "true", "yes", "acked":
		b := true
		return &b
	case "false", "no", "notacked":
		b := false
		return &b
	default:
		return nil
	}
}

var rulesReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Force the referential cache to reload on next access, bypassing the 2-minute TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := serviceContext(cmd.Context())
		if err != nil {
			return err
		}
		svc.Refresh()
		fmt.Println("referential cache invalidated")
		return nil
	},
}

func init() {
	rulesEvaluateCmd.Flags().StringVar(&ruleCountry, "country", "", "country code (required)")
	rulesEvaluateCmd.Flags().StringVar(&ruleScope, "scope", "import", "rule scope: import or edit")
	rulesEvaluateCmd.Flags().StringVar(&ruleBooking, "booking", "", "booking code")
	rulesEvaluateCmd.Flags().StringVar(&ruleGuaranteeType, "guarantee-type", "", "guarantee type")
	rulesEvaluateCmd.Flags().StringVar(&ruleTransactionType, "transaction-type", "", "transaction type")
	rulesEvaluateCmd.Flags().StringVar(&ruleSign, "sign", "", "D or C")
	rulesEvaluateCmd.Flags().StringVar(&ruleAccountSide, "account-side", "", "P (pivot) or R (receivable)")
	rulesEvaluateCmd.Flags().StringVar(&ruleMTAcked, "mt-acked", "", "true, false, or empty for unknown")
	rulesEvaluateCmd.MarkFlagRequired("country")

	rulesCmd.AddCommand(rulesEvaluateCmd, rulesReloadCmd)
	rootCmd.AddCommand(rulesCmd)
}
