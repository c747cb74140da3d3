package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ambre-sync/reconcile-core/internal/dwings"
	"github.com/ambre-sync/reconcile-core/internal/model"
	"github.com/ambre-sync/reconcile-core/internal/sqlitex"
	"github.com/spf13/cobra"
)

var dwingsCmd = &cobra.Command{
	Use:   "dwings",
	Short: "Resolve AMBRE references against DWINGS invoices",
}

var (
	dwingsCountry   string
	dwingsBgi       string
	dwingsBgpmt     string
	dwingsGuarantee string
	dwingsLabel     string
	dwingsTake      int
)

var dwingsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve an explicit BGI/BGPMT/guarantee id, or suggest matches from a free-text label",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, params, err := serviceContext(ctx)
		if err != nil {
			return err
		}
		stores, err := openCountryStores(dwingsCountry, params)
		if err != nil {
			return err
		}
		defer stores.Close()

		dwConn, err := sqlitex.Open(stores.Paths.LocalDW)
		if err != nil {
			return fmt.Errorf("open local DWINGS store: %w", err)
		}
		defer sqlitex.Close(dwConn)

		invoices, err := loadInvoices(ctx, dwConn)
		if err != nil {
			return fmt.Errorf("load invoices: %w", err)
		}

		if dwingsBgi != "" {
			return printInvoice(dwings.ResolveInvoiceByBgi(invoices, dwingsBgi))
		}
		if dwingsBgpmt != "" {
			return printInvoice(dwings.ResolveInvoiceByBgpmt(invoices, dwingsBgpmt))
		}
		if dwingsGuarantee != "" {
			return printInvoices(dwings.ResolveInvoicesByGuarantee(invoices, dwingsGuarantee, nil, nil, dwingsTake))
		}

		refs := dwings.AmbreRefs{RawLabel: dwingsLabel}
		return printInvoices(dwings.SuggestInvoicesForAmbre(invoices, refs, dwingsTake))
	},
}

func printInvoice(inv *dwings.Invoice) error {
	if inv == nil {
		fmt.Println("no unambiguous match")
		return nil
	}
	fmt.Printf("%s (BGPMT=%s, ref=%s)\n", inv.InvoiceID, inv.BGPMT, inv.BusinessCaseReference)
	return nil
}

func printInvoices(invs []dwings.Invoice) error {
	if len(invs) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, inv := range invs {
		fmt.Printf("%s (BGPMT=%s, ref=%s)\n", inv.InvoiceID, inv.BGPMT, inv.BusinessCaseReference)
	}
	return nil
}

// loadInvoices reads every row of T_DW_Data into dwings.Invoice, tolerating
// a table that lacks some of the optional amount/date columns.
func loadInvoices(ctx context.Context, conn *sql.DB) ([]dwings.Invoice, error) {
	cols, err := dwDataColumns(ctx, conn)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(quoteAll(cols), ","), `"`+model.TableDWData+`"`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dwings.Invoice
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, rowToInvoice(cols, vals))
	}
	return out, rows.Err()
}

func dwDataColumns(ctx context.Context, conn *sql.DB) ([]string, error) {
	probe, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, `"`+model.TableDWData+`"`))
	if err != nil {
		return nil, err
	}
	defer probe.Close()

	var cols []string
	for probe.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt any
		if err := probe.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, probe.Err()
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
	}
	return out
}

func rowToInvoice(cols []string, vals []any) dwings.Invoice {
	get := func(name string) model.Value {
		for i, c := range cols {
			if strings.EqualFold(c, name) {
				return model.FromRaw(vals[i])
			}
		}
		return model.Null()
	}

	var inv dwings.Invoice
	inv.InvoiceID = get("InvoiceID").String()
	inv.BGPMT = get("BGPMT").String()
	inv.BusinessCaseReference = get("BusinessCaseReference").String()
	inv.BusinessCaseID = get("BusinessCaseID").String()

	if f, ok := get("RequestedAmount").Float64(); ok {
		inv.RequestedAmount, inv.HasRequestedAmount = f, true
	}
	if f, ok := get("BillingAmount").Float64(); ok {
		inv.BillingAmount, inv.HasBillingAmount = f, true
	}
	if t, ok := get("RequestedExecutionDate").Time(); ok {
		inv.RequestedExecutionDate, inv.HasRequestedExecutionDate = t, true
	}
	if t, ok := get("StartDate").Time(); ok {
		inv.StartDate, inv.HasStartDate = t, true
	}
	if t, ok := get("EndDate").Time(); ok {
		inv.EndDate, inv.HasEndDate = t, true
	}
	return inv
}

func init() {
	dwingsResolveCmd.Flags().StringVar(&dwingsCountry, "country", "", "country code (required)")
	dwingsResolveCmd.Flags().StringVar(&dwingsBgi, "bgi", "", "resolve by exact BGI invoice id")
	dwingsResolveCmd.Flags().StringVar(&dwingsBgpmt, "bgpmt", "", "resolve by exact BGPMT reference")
	dwingsResolveCmd.Flags().StringVar(&dwingsGuarantee, "guarantee", "", "rank invoices against a guarantee id")
	dwingsResolveCmd.Flags().StringVar(&dwingsLabel, "label", "", "free-text label to extract BGI/BGPMT/guarantee tokens from")
	dwingsResolveCmd.Flags().IntVar(&dwingsTake, "take", 5, "maximum number of ranked matches to return")
	dwingsResolveCmd.MarkFlagRequired("country")

	dwingsCmd.AddCommand(dwingsResolveCmd)
	rootCmd.AddCommand(dwingsCmd)
}
