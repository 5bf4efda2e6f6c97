package agents

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"erpinsight/internal/domain/accounting"
)

const (
	chartBar      = "bar"
	chartLine     = "line"
	chartDoughnut = "doughnut"
)

func financeCharts(b accounting.Bundle) []Chart {
	charts := []Chart{}

	if accounts, ok := b[accounting.DataAccounts]; ok && len(accounts) > 0 {
		byType := map[string]decimal.Decimal{}
		for _, a := range accounts {
			t := a.StringOr("AccountType", "Unknown")
			byType[t] = byType[t].Add(a.Decimal("CurrentBalance"))
		}
		labels := make([]string, 0, len(byType))
		for t := range byType {
			labels = append(labels, t)
		}
		sort.Strings(labels)

		data := make([]float64, len(labels))
		for i, t := range labels {
			data[i] = math.Abs(byType[t].InexactFloat64())
		}
		charts = append(charts, Chart{
			Title:    "Account Balances by Type",
			Type:     chartBar,
			Labels:   labels,
			Datasets: []Dataset{{Label: "Balance ($)", Data: data}},
		})
	}

	if invoices, ok := b[accounting.DataInvoices]; ok {
		if c, ok := trendChart("Monthly Revenue Trend", "Revenue ($)", invoices); ok {
			charts = append(charts, c)
		}
	}

	return charts
}

func salesCharts(b accounting.Bundle) []Chart {
	charts := []Chart{}

	invoices, hasInvoices := b[accounting.DataInvoices]
	if hasInvoices {
		if c, ok := trendChart("Monthly Sales Trend", "Sales ($)", invoices); ok {
			charts = append(charts, c)
		}
	}

	if _, hasCustomers := b[accounting.DataCustomers]; hasCustomers && hasInvoices && len(invoices) > 0 {
		top := topBy(invoices, refOr("CustomerRef", "Unknown"), "TotalAmt", 10)
		charts = append(charts, rankedChart("Top Customers by Revenue", chartBar, "Revenue ($)", top))
	}

	return charts
}

func operationsCharts(b accounting.Bundle) []Chart {
	charts := []Chart{}

	if expenses, ok := b[accounting.DataExpenses]; ok {
		if c, ok := trendChart("Monthly Expense Trend", "Expenses ($)", expenses); ok {
			charts = append(charts, c)
		}
		if len(expenses) > 0 {
			top := topBy(expenses, refOr("AccountRef", "Uncategorized"), "TotalAmt", 10)
			charts = append(charts, rankedChart("Top Expense Categories", chartDoughnut, "", top))
		}
	}

	billRecords, hasBills := b[accounting.DataBills]
	if _, hasVendors := b[accounting.DataVendors]; hasVendors && hasBills && len(billRecords) > 0 {
		top := topBy(billRecords, refOr("VendorRef", "Unknown"), "TotalAmt", 10)
		charts = append(charts, rankedChart("Top Vendors by Spending", chartBar, "Amount Spent ($)", top))
	}

	return charts
}

// trendChart plots monthly totals of TotalAmt. It needs at least two
// months of data.
func trendChart(title, label string, records []accounting.Record) (Chart, bool) {
	series := monthlyTotals(records, "TotalAmt")
	if len(series.Months) < 2 {
		return Chart{}, false
	}
	return Chart{
		Title:    title,
		Type:     chartLine,
		Labels:   series.Months,
		Datasets: []Dataset{{Label: label, Data: series.Totals}},
	}, true
}

func rankedChart(title, kind, label string, rows []ranked) Chart {
	labels := make([]string, len(rows))
	data := make([]float64, len(rows))
	for i, r := range rows {
		labels[i] = r.Label
		data[i] = r.Amount
	}
	return Chart{
		Title:    title,
		Type:     kind,
		Labels:   labels,
		Datasets: []Dataset{{Label: label, Data: data}},
	}
}
