package agents

import (
	"sort"

	"github.com/shopspring/decimal"

	"erpinsight/internal/domain/accounting"
)

// Low stock threshold for inventory items
const lowStockQty = 10

// accountGroups folds the QuickBooks account types into the five
// balance-sheet and income-statement groups
var accountGroups = map[string]string{
	"Asset":                   "asset",
	"Bank":                    "asset",
	"Accounts Receivable":     "asset",
	"Other Current Asset":     "asset",
	"Fixed Asset":             "asset",
	"Other Asset":             "asset",
	"Liability":               "liability",
	"Accounts Payable":        "liability",
	"Credit Card":             "liability",
	"Other Current Liability": "liability",
	"Long Term Liability":     "liability",
	"Equity":                  "equity",
	"Income":                  "income",
	"Other Income":            "income",
	"Expense":                 "expense",
	"Other Expense":           "expense",
	"Cost of Goods Sold":      "expense",
}

func financeMetrics(b accounting.Bundle) map[string]float64 {
	m := map[string]float64{}

	if accounts, ok := b[accounting.DataAccounts]; ok {
		totals := map[string]decimal.Decimal{}
		for _, a := range accounts {
			group, ok := accountGroups[a.String("AccountType")]
			if !ok {
				continue
			}
			totals[group] = totals[group].Add(a.Decimal("CurrentBalance"))
		}
		income, expense := totals["income"], totals["expense"]

		m["total_assets"] = totals["asset"].InexactFloat64()
		m["total_liabilities"] = totals["liability"].InexactFloat64()
		m["total_equity"] = totals["equity"].InexactFloat64()
		m["total_income"] = income.InexactFloat64()
		m["total_expenses"] = expense.InexactFloat64()
		m["net_income"] = income.Sub(expense).InexactFloat64()
		m["account_count"] = float64(len(accounts))
	}

	if invoices, ok := b[accounting.DataInvoices]; ok {
		invoiced := accounting.Sum(invoices, "TotalAmt")
		outstanding := accounting.Sum(invoices, "Balance")
		m["total_invoiced"] = invoiced
		m["total_outstanding"] = outstanding
		m["collection_rate"] = paidRate(invoiced, outstanding)
		m["invoice_count"] = float64(len(invoices))
	}

	return m
}

func salesMetrics(b accounting.Bundle) map[string]float64 {
	m := map[string]float64{}

	if invoices, ok := b[accounting.DataInvoices]; ok {
		sales := accounting.Sum(invoices, "TotalAmt")
		outstanding := accounting.Sum(invoices, "Balance")
		m["total_sales"] = sales
		m["total_outstanding"] = outstanding
		m["collection_rate"] = paidRate(sales, outstanding)
		m["average_invoice_value"] = average(sales, len(invoices))
		m["invoice_count"] = float64(len(invoices))
		m["monthly_growth_rate"] = lastMonthGrowth(monthlyTotals(invoices, "TotalAmt"))
	}

	if customers, ok := b[accounting.DataCustomers]; ok {
		balance := accounting.Sum(customers, "Balance")
		m["total_customers"] = float64(len(customers))
		m["active_customers"] = float64(countActive(customers))
		m["total_customer_balance"] = balance
		m["average_customer_balance"] = average(balance, len(customers))
	}

	if items, ok := b[accounting.DataItems]; ok {
		m["total_items"] = float64(len(items))
		m["active_items"] = float64(countActive(items))
	}

	if payments, ok := b[accounting.DataPayments]; ok {
		m["total_payments"] = accounting.Sum(payments, "TotalAmt")
	}

	return m
}

func operationsMetrics(b accounting.Bundle) map[string]float64 {
	m := map[string]float64{}

	if expenses, ok := b[accounting.DataExpenses]; ok {
		total := accounting.Sum(expenses, "TotalAmt")
		m["total_expenses"] = total
		m["average_expense"] = average(total, len(expenses))
		m["monthly_expense_growth"] = lastMonthGrowth(monthlyTotals(expenses, "TotalAmt"))
		m["expense_count"] = float64(len(expenses))
	}

	if vendors, ok := b[accounting.DataVendors]; ok {
		balance := accounting.Sum(vendors, "Balance")
		m["total_vendors"] = float64(len(vendors))
		m["active_vendors"] = float64(countActive(vendors))
		m["total_vendor_balance"] = balance
		m["average_vendor_balance"] = average(balance, len(vendors))
	}

	if billRecords, ok := b[accounting.DataBills]; ok {
		total := accounting.Sum(billRecords, "TotalAmt")
		outstanding := accounting.Sum(billRecords, "Balance")
		m["total_bills"] = total
		m["total_outstanding_bills"] = outstanding
		m["bill_payment_rate"] = paidRate(total, outstanding)
		m["bill_count"] = float64(len(billRecords))
	}

	if items, ok := b[accounting.DataItems]; ok {
		value := decimal.Zero
		inventory, lowStock := 0, 0
		for _, it := range items {
			if it.String("Type") != "Inventory" {
				continue
			}
			inventory++
			qty := it.Decimal("QtyOnHand")
			value = value.Add(qty.Mul(it.Decimal("UnitPrice")))
			if qty.LessThan(decimal.NewFromInt(lowStockQty)) {
				lowStock++
			}
		}
		m["total_items"] = float64(len(items))
		m["active_items"] = float64(countActive(items))
		m["inventory_items"] = float64(inventory)
		m["inventory_value"] = value.InexactFloat64()
		m["low_stock_items"] = float64(lowStock)
	}

	return m
}

// paidRate is the share of total already paid, in percent
func paidRate(total, outstanding float64) float64 {
	if total <= 0 {
		return 0
	}
	return (total - outstanding) / total * 100
}

func average(total float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func countActive(records []accounting.Record) int {
	n := 0
	for _, r := range records {
		if r.Bool("Active", true) {
			n++
		}
	}
	return n
}

// monthSeries is a per-month total in ascending month order
type monthSeries struct {
	Months []string
	Totals []float64
}

func monthlyTotals(records []accounting.Record, key string) monthSeries {
	byMonth := map[string]decimal.Decimal{}
	for _, r := range records {
		month := r.Month()
		if month == "" {
			continue
		}
		byMonth[month] = byMonth[month].Add(r.Decimal(key))
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	totals := make([]float64, len(months))
	for i, month := range months {
		totals[i] = byMonth[month].InexactFloat64()
	}
	return monthSeries{Months: months, Totals: totals}
}

// lastMonthGrowth compares the two latest months, in percent
func lastMonthGrowth(s monthSeries) float64 {
	n := len(s.Totals)
	if n < 2 {
		return 0
	}
	last, prev := s.Totals[n-1], s.Totals[n-2]
	if prev <= 0 {
		return 0
	}
	return (last - prev) / prev * 100
}

// ranked is a label with its summed amount
type ranked struct {
	Label  string
	Amount float64
}

// topBy sums key per label and returns the n largest, ties broken by label
func topBy(records []accounting.Record, label func(accounting.Record) string, key string, n int) []ranked {
	sums := map[string]decimal.Decimal{}
	for _, r := range records {
		l := label(r)
		sums[l] = sums[l].Add(r.Decimal(key))
	}

	out := make([]ranked, 0, len(sums))
	for l, v := range sums {
		out = append(out, ranked{Label: l, Amount: v.InexactFloat64()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func refOr(key, def string) func(accounting.Record) string {
	return func(r accounting.Record) string {
		if name := r.RefName(key); name != "" {
			return name
		}
		return def
	}
}

// partyName reads a customer or vendor name
func partyName(r accounting.Record) string {
	if name := r.String("DisplayName"); name != "" {
		return name
	}
	return r.StringOr("Name", "Unknown")
}
