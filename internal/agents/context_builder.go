package agents

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/domain/rag"
	"erpinsight/pkg/templates"
)

const (
	maxSnippets     = 3
	maxSnippetRunes = 300
	topListSize     = 5
)

var money = accounting.FormatMoney

// FormatContext renders the data summary handed to the LLM: retrieved
// snippets first, then one section per fetched data type
func (d *Domain) FormatContext(b accounting.Bundle, snippets []rag.SearchResult) string {
	var lines []string

	if len(snippets) > 0 {
		lines = append(lines, d.ragHeader)
		for i, s := range snippets {
			if i == maxSnippets {
				break
			}
			lines = append(lines,
				fmt.Sprintf("Context Score: %.2f", s.Score),
				"Data Type: "+s.Tag,
				"Content: "+templates.Truncate(maxSnippetRunes, s.Content),
				"---",
			)
		}
	}

	if d.summarize != nil {
		lines = append(lines, d.summarize(b)...)
	}

	if len(lines) == 0 {
		return d.emptyText
	}
	return strings.Join(lines, "\n")
}

func financeSummary(b accounting.Bundle) []string {
	var lines []string

	if accounts, ok := b[accounting.DataAccounts]; ok {
		lines = append(lines, fmt.Sprintf("\n=== CHART OF ACCOUNTS (%d accounts) ===", len(accounts)))
		order, groups := groupBy(accounts, func(r accounting.Record) string { return r.StringOr("AccountType", "Unknown") })
		for _, t := range order {
			accs := groups[t]
			lines = append(lines, fmt.Sprintf("\n%s (%d accounts): %s", t, len(accs), money(accounting.Sum(accs, "CurrentBalance"))))
			for _, a := range largestAbs(accs, "CurrentBalance", topListSize) {
				lines = append(lines, fmt.Sprintf("  - %s: %s", a.StringOr("Name", "Unknown"), money(a.Float("CurrentBalance"))))
			}
		}
	}

	if invoices, ok := b[accounting.DataInvoices]; ok {
		lines = append(lines,
			fmt.Sprintf("\n=== INVOICES (%d invoices) ===", len(invoices)),
			"Total Invoice Amount: "+money(accounting.Sum(invoices, "TotalAmt")),
			"Outstanding Balance: "+money(accounting.Sum(invoices, "Balance")),
			"\nRecent Invoices:",
		)
		for _, inv := range mostRecent(invoices, topListSize) {
			lines = append(lines, fmt.Sprintf("  - #%s (%s): %s",
				inv.StringOr("DocNumber", "N/A"), inv.StringOr("TxnDate", "N/A"), money(inv.Float("TotalAmt"))))
		}
	}

	if rows, ok := b[accounting.DataProfitLoss]; ok {
		lines = append(lines, "\n=== PROFIT & LOSS REPORT ===")
		summaries := 0
		for _, r := range rows {
			if !r.Bool("Summary", false) {
				continue
			}
			summaries++
			lines = append(lines, fmt.Sprintf("%s: %s", r.StringOr("Label", "Total"), money(r.Float("Amount"))))
		}
		if summaries == 0 {
			lines = append(lines, "Current period Profit & Loss data available for analysis")
		}
	}

	if items, ok := b[accounting.DataItems]; ok {
		lines = append(lines,
			fmt.Sprintf("\n=== PRODUCTS/SERVICES (%d items) ===", len(items)),
			fmt.Sprintf("Active Items: %d", countActive(items)),
		)
	}

	return lines
}

func salesSummary(b accounting.Bundle) []string {
	var lines []string

	if invoices, ok := b[accounting.DataInvoices]; ok {
		total := accounting.Sum(invoices, "TotalAmt")
		outstanding := accounting.Sum(invoices, "Balance")
		lines = append(lines,
			fmt.Sprintf("\n=== SALES INVOICES (%d invoices) ===", len(invoices)),
			"Total Sales Amount: "+money(total),
			"Outstanding Balance: "+money(outstanding),
			"Collection Rate: "+accounting.FormatPercent(paidRate(total, outstanding)),
		)

		series := monthlyTotals(invoices, "TotalAmt")
		if len(series.Months) > 0 {
			lines = append(lines, "\nMonthly Sales Trend:")
			start := max(0, len(series.Months)-6)
			for i := start; i < len(series.Months); i++ {
				lines = append(lines, fmt.Sprintf("  - %s: %s", series.Months[i], money(series.Totals[i])))
			}
		}
	}

	if customers, ok := b[accounting.DataCustomers]; ok {
		lines = append(lines,
			fmt.Sprintf("\n=== CUSTOMER BASE (%d customers) ===", len(customers)),
			fmt.Sprintf("Active Customers: %d", countActive(customers)),
			"Total Customer Balance: "+money(accounting.Sum(customers, "Balance")),
			"\nTop Customers by Balance:",
		)
		for _, c := range largestAbs(customers, "Balance", topListSize) {
			lines = append(lines, fmt.Sprintf("  - %s: %s", partyName(c), money(c.Float("Balance"))))
		}
	}

	if items, ok := b[accounting.DataItems]; ok {
		lines = append(lines, itemsSection(items)...)
	}

	if payments, ok := b[accounting.DataPayments]; ok {
		lines = append(lines,
			fmt.Sprintf("\n=== PAYMENTS RECEIVED (%d payments) ===", len(payments)),
			"Total Payments Received: "+money(accounting.Sum(payments, "TotalAmt")),
		)
	}

	return lines
}

func operationsSummary(b accounting.Bundle) []string {
	var lines []string

	if expenses, ok := b[accounting.DataExpenses]; ok {
		lines = append(lines,
			fmt.Sprintf("\n=== BUSINESS EXPENSES (%d expenses) ===", len(expenses)),
			"Total Expenses: "+money(accounting.Sum(expenses, "TotalAmt")),
			"\nTop Expense Categories:",
		)
		for _, c := range topBy(expenses, refOr("AccountRef", "Uncategorized"), "TotalAmt", topListSize) {
			lines = append(lines, fmt.Sprintf("  - %s: %s", c.Label, money(c.Amount)))
		}
	}

	if accounts, ok := b[accounting.DataAccounts]; ok {
		lines = append(lines, fmt.Sprintf("\n=== OPERATIONS ACCOUNTS (%d accounts) ===", len(accounts)))
		order, groups := groupBy(accounts, func(r accounting.Record) string { return r.StringOr("AccountType", "Unknown") })
		for _, t := range order {
			lines = append(lines, fmt.Sprintf("%s: %d accounts, Total: %s", t, len(groups[t]), money(accounting.Sum(groups[t], "CurrentBalance"))))
		}
	}

	if vendors, ok := b[accounting.DataVendors]; ok {
		lines = append(lines,
			fmt.Sprintf("\n=== VENDOR RELATIONSHIPS (%d vendors) ===", len(vendors)),
			fmt.Sprintf("Active Vendors: %d", countActive(vendors)),
			"Total Vendor Balance: "+money(accounting.Sum(vendors, "Balance")),
		)
		if len(vendors) > 0 {
			lines = append(lines, "\nTop Vendors by Balance:")
			for _, v := range largestAbs(vendors, "Balance", topListSize) {
				if balance := v.Float("Balance"); balance != 0 {
					lines = append(lines, fmt.Sprintf("  - %s: %s", partyName(v), money(balance)))
				}
			}
		}
	}

	if items, ok := b[accounting.DataItems]; ok {
		lines = append(lines, itemsSection(items)...)
		lines = append(lines, lowStockSection(items)...)
	}

	if billRecords, ok := b[accounting.DataBills]; ok {
		total := accounting.Sum(billRecords, "TotalAmt")
		outstanding := accounting.Sum(billRecords, "Balance")
		lines = append(lines,
			fmt.Sprintf("\n=== VENDOR BILLS (%d bills) ===", len(billRecords)),
			"Total Bills Amount: "+money(total),
			"Outstanding Balance: "+money(outstanding),
			"Payment Rate: "+accounting.FormatPercent(paidRate(total, outstanding)),
		)
	}

	return lines
}

func itemsSection(items []accounting.Record) []string {
	active := make([]accounting.Record, 0, len(items))
	for _, it := range items {
		if it.Bool("Active", true) {
			active = append(active, it)
		}
	}

	lines := []string{
		fmt.Sprintf("\n=== PRODUCTS/SERVICES (%d items) ===", len(items)),
		fmt.Sprintf("Active Items: %d", len(active)),
		"Items by Type:",
	}
	order, groups := groupBy(active, func(r accounting.Record) string { return r.StringOr("Type", "Unknown") })
	for _, t := range order {
		lines = append(lines, fmt.Sprintf("  - %s: %d items", t, len(groups[t])))
	}
	return lines
}

func lowStockSection(items []accounting.Record) []string {
	var low []accounting.Record
	for _, it := range items {
		if !it.Bool("Active", true) || it.String("Type") != "Inventory" {
			continue
		}
		if _, ok := it["QtyOnHand"]; ok && it.Float("QtyOnHand") < lowStockQty {
			low = append(low, it)
		}
	}
	if len(low) == 0 {
		return nil
	}

	lines := []string{fmt.Sprintf("\nLow Stock Alert (%d items):", len(low))}
	for i, it := range low {
		if i == topListSize {
			break
		}
		lines = append(lines, fmt.Sprintf("  - %s: %g units remaining", it.StringOr("Name", "Unknown"), it.Float("QtyOnHand")))
	}
	return lines
}

// groupBy buckets records by key, returning keys in first-seen order
func groupBy(records []accounting.Record, key func(accounting.Record) string) ([]string, map[string][]accounting.Record) {
	var order []string
	groups := map[string][]accounting.Record{}
	for _, r := range records {
		k := key(r)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	return order, groups
}

func largestAbs(records []accounting.Record, key string, n int) []accounting.Record {
	sorted := append([]accounting.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Float(key)) > math.Abs(sorted[j].Float(key))
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func mostRecent(records []accounting.Record, n int) []accounting.Record {
	sorted := append([]accounting.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].String("TxnDate") > sorted[j].String("TxnDate")
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
