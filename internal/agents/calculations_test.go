package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/testsupport"
)

func TestFinanceMetrics(t *testing.T) {
	m := financeMetrics(testsupport.SampleBundle())

	assert.Equal(t, 60000.0, m["total_assets"])
	assert.Equal(t, 4500.0, m["total_liabilities"])
	assert.Equal(t, 0.0, m["total_equity"])
	assert.Equal(t, 120000.0, m["total_income"])
	assert.Equal(t, 24000.0, m["total_expenses"])
	assert.Equal(t, 96000.0, m["net_income"])
	assert.Equal(t, 7.0, m["account_count"])

	assert.Equal(t, 15500.0, m["total_invoiced"])
	assert.Equal(t, 2500.0, m["total_outstanding"])
	assert.InDelta(t, 13000.0/15500*100, m["collection_rate"], 1e-9)
	assert.Equal(t, 3.0, m["invoice_count"])
}

func TestFinanceMetricsNetIncomeWithoutIncome(t *testing.T) {
	m := financeMetrics(accounting.Bundle{
		accounting.DataAccounts: {
			{"AccountType": "Asset", "CurrentBalance": 100.0},
			{"AccountType": "Expense", "CurrentBalance": 40.0},
		},
	})
	assert.Equal(t, 100.0, m["total_assets"])
	assert.Equal(t, -40.0, m["net_income"])
	_, hasInvoices := m["total_invoiced"]
	assert.False(t, hasInvoices)
}

func TestSalesMetrics(t *testing.T) {
	m := salesMetrics(testsupport.SampleBundle())

	assert.Equal(t, 15500.0, m["total_sales"])
	assert.InDelta(t, 15500.0/3, m["average_invoice_value"], 1e-9)
	assert.InDelta(t, -60.0, m["monthly_growth_rate"], 1e-9)
	assert.Equal(t, 2.0, m["total_customers"])
	assert.Equal(t, 2.0, m["active_customers"])
	assert.Equal(t, 1250.0, m["average_customer_balance"])
	assert.Equal(t, 3.0, m["total_items"])
	assert.Equal(t, 3.0, m["active_items"])
	assert.Equal(t, 10000.0, m["total_payments"])
}

func TestOperationsMetrics(t *testing.T) {
	m := operationsMetrics(testsupport.SampleBundle())

	assert.Equal(t, 2700.0, m["total_expenses"])
	assert.Equal(t, 900.0, m["average_expense"])
	assert.InDelta(t, 25.0, m["monthly_expense_growth"], 1e-9)
	assert.Equal(t, 3.0, m["expense_count"])

	assert.Equal(t, 2.0, m["total_vendors"])
	assert.Equal(t, 4500.0, m["total_vendor_balance"])
	assert.Equal(t, 2250.0, m["average_vendor_balance"])

	assert.Equal(t, 5000.0, m["total_bills"])
	assert.Equal(t, 3000.0, m["total_outstanding_bills"])
	assert.InDelta(t, 40.0, m["bill_payment_rate"], 1e-9)

	assert.Equal(t, 2.0, m["inventory_items"])
	assert.Equal(t, 4875.0, m["inventory_value"])
	assert.Equal(t, 1.0, m["low_stock_items"])
}

func TestMetricsOnEmptyBundle(t *testing.T) {
	for _, d := range builtinDomains() {
		assert.Empty(t, d.ComputeMetrics(accounting.Bundle{}), d.ID)
	}
}

func TestRatesGuardZeroTotals(t *testing.T) {
	m := salesMetrics(accounting.Bundle{accounting.DataInvoices: {}})
	assert.Equal(t, 0.0, m["collection_rate"])
	assert.Equal(t, 0.0, m["average_invoice_value"])
	assert.Equal(t, 0.0, m["monthly_growth_rate"])
}

func TestLastMonthGrowthNeedsPositivePrevious(t *testing.T) {
	assert.Zero(t, lastMonthGrowth(monthSeries{Months: []string{"2024-01", "2024-02"}, Totals: []float64{0, 10}}))
	assert.Zero(t, lastMonthGrowth(monthSeries{Months: []string{"2024-01"}, Totals: []float64{10}}))
	assert.InDelta(t, 100.0, lastMonthGrowth(monthSeries{Totals: []float64{5, 10}}), 1e-9)
}
