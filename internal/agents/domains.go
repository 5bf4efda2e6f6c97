package agents

import (
	"strings"
	"time"

	"erpinsight/internal/domain/accounting"
)

// DefaultLookback is the history window for dated transaction types
const DefaultLookback = 365 * 24 * time.Hour

// KeywordRule maps a query keyword to the data types it needs
type KeywordRule struct {
	Keyword string
	Types   []accounting.DataType
}

// Domain parameterizes the specialist pipeline for one business area
type Domain struct {
	ID           string
	Title        string
	Focus        []string
	Directive    string
	AnalysisType string
	RAGTagPrefix string

	KeywordMap   []KeywordRule
	Defaults     []accounting.DataType
	AccountTypes []string // local filter applied to fetched accounts
	Lookback     time.Duration
	ExtraMarkers []string

	NoAccessMessage string
	ErrorMessage    string

	ragHeader   string
	emptyText   string
	summarize   func(b accounting.Bundle) []string
	charts      func(b accounting.Bundle) []Chart
	calculators func(b accounting.Bundle) map[string]float64
}

// Requirements returns the data types query needs, deduplicated in
// first-seen order, or the domain defaults when no keyword matches
func (d *Domain) Requirements(query string) []accounting.DataType {
	q := strings.ToLower(query)
	seen := make(map[accounting.DataType]struct{})
	var out []accounting.DataType
	for _, rule := range d.KeywordMap {
		if !strings.Contains(q, rule.Keyword) {
			continue
		}
		for _, t := range rule.Types {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return append([]accounting.DataType(nil), d.Defaults...)
	}
	return out
}

// BuildCharts renders the domain charts for b. It never returns nil.
func (d *Domain) BuildCharts(b accounting.Bundle) []Chart {
	if d.charts == nil {
		return []Chart{}
	}
	charts := d.charts(b)
	if charts == nil {
		return []Chart{}
	}
	return charts
}

// ComputeMetrics derives numeric KPIs from b alone
func (d *Domain) ComputeMetrics(b accounting.Bundle) map[string]float64 {
	if d.calculators == nil {
		return map[string]float64{}
	}
	return d.calculators(b)
}

// FilterAccounts keeps the accounts whose AccountType is in the domain
// filter. An empty filter keeps everything.
func (d *Domain) FilterAccounts(records []accounting.Record) []accounting.Record {
	if len(d.AccountTypes) == 0 {
		return records
	}
	out := make([]accounting.Record, 0, len(records))
	for _, r := range records {
		t := r.String("AccountType")
		for _, want := range d.AccountTypes {
			if t == want {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (d *Domain) ragTag(t accounting.DataType) string {
	return d.RAGTagPrefix + "_" + string(t)
}

func (d *Domain) lookback() time.Duration {
	if d.Lookback <= 0 {
		return DefaultLookback
	}
	return d.Lookback
}

func types(t ...accounting.DataType) []accounting.DataType { return t }

const (
	accts = accounting.DataAccounts
	invs  = accounting.DataInvoices
	itms  = accounting.DataItems
	custs = accounting.DataCustomers
	vends = accounting.DataVendors
	bills = accounting.DataBills
	pays  = accounting.DataPayments
	exps  = accounting.DataExpenses
	pnl   = accounting.DataProfitLoss
)

func financeDomain() *Domain {
	return &Domain{
		ID:    "finance",
		Title: "Finance",
		Focus: []string{
			"Cash flow analysis and forecasting",
			"Profitability analysis",
			"Budget variance explanations",
			"Financial KPI interpretation",
			"Risk assessment and mitigation",
		},
		Directive:    "Always provide actionable financial insights with specific numbers when available.",
		AnalysisType: "finance_analysis",
		RAGTagPrefix: "finance",
		KeywordMap: []KeywordRule{
			{"revenue", types(accts, invs)},
			{"income", types(accts, pnl)},
			{"expense", types(accts, pnl)},
			{"profit", types(pnl)},
			{"loss", types(pnl)},
			{"account", types(accts)},
			{"balance", types(accts)},
			{"invoice", types(invs)},
			{"customer", types(invs)},
			{"item", types(itms)},
			{"product", types(itms)},
			{"forecast", types(accts, invs, pnl)},
			{"trend", types(accts, invs)},
			{"cash", types(accts)},
			{"asset", types(accts)},
			{"liability", types(accts)},
			{"equity", types(accts)},
		},
		Defaults:        types(accts),
		Lookback:        DefaultLookback,
		ExtraMarkers:    []string{"focus on", "action", "next step"},
		NoAccessMessage: "I need an active QuickBooks connection to analyze your financial data. Please connect to QuickBooks first.",
		ErrorMessage:    "I encountered an error while analyzing your financial data. Please try rephrasing your question or check your QuickBooks connection.",
		ragHeader:       "=== RELEVANT HISTORICAL FINANCIAL CONTEXT ===",
		emptyText:       "No financial data available for analysis.",
		summarize:       financeSummary,
		charts:          financeCharts,
		calculators:     financeMetrics,
	}
}

func salesDomain() *Domain {
	return &Domain{
		ID:    "sales",
		Title: "Sales",
		Focus: []string{
			"Revenue analysis and trends",
			"Customer segmentation insights",
			"Sales performance metrics",
			"Customer churn analysis",
			"Revenue optimization strategies",
		},
		Directive:    "Always provide data-driven sales insights with growth recommendations.",
		AnalysisType: "sales_analysis",
		RAGTagPrefix: "sales",
		KeywordMap: []KeywordRule{
			{"revenue", types(invs, itms)},
			{"sales", types(invs, custs)},
			{"customer", types(custs, invs)},
			{"client", types(custs, invs)},
			{"invoice", types(invs)},
			{"payment", types(pays, invs)},
			{"item", types(itms, invs)},
			{"product", types(itms, invs)},
			{"service", types(itms, invs)},
			{"growth", types(invs, custs)},
			{"trend", types(invs, itms)},
			{"forecast", types(invs, custs, itms)},
			{"performance", types(invs, itms, custs)},
			{"analysis", types(invs, custs, itms)},
			{"churn", types(custs, invs)},
			{"retention", types(custs, invs)},
		},
		Defaults:        types(invs, custs),
		Lookback:        DefaultLookback,
		ExtraMarkers:    []string{"focus on", "increase", "boost", "grow"},
		NoAccessMessage: "I need an active QuickBooks connection to analyze your sales data. Please connect to QuickBooks first.",
		ErrorMessage:    "I encountered an error while analyzing your sales data. Please try rephrasing your question or check your QuickBooks connection.",
		ragHeader:       "=== RELEVANT HISTORICAL SALES CONTEXT ===",
		emptyText:       "No sales data available for analysis.",
		summarize:       salesSummary,
		charts:          salesCharts,
		calculators:     salesMetrics,
	}
}

func operationsDomain() *Domain {
	return &Domain{
		ID:    "operations",
		Title: "Operations",
		Focus: []string{
			"Inventory optimization",
			"Expense analysis and control",
			"Process efficiency improvements",
			"Vendor and supplier analysis",
			"Operational KPI monitoring",
		},
		Directive:    "Always provide operational insights that improve efficiency and reduce costs.",
		AnalysisType: "operations_analysis",
		RAGTagPrefix: "ops",
		KeywordMap: []KeywordRule{
			{"expense", types(exps, accts)},
			{"cost", types(exps, itms)},
			{"inventory", types(itms)},
			{"stock", types(itms)},
			{"vendor", types(vends, bills)},
			{"supplier", types(vends, bills)},
			{"bill", types(bills, vends)},
			{"purchase", types(bills, itms)},
			{"payable", types(bills, accts)},
			{"cash", types(accts)},
			{"efficiency", types(exps, itms)},
			{"optimization", types(exps, itms, vends)},
			{"process", types(exps, bills)},
			{"workflow", types(exps, bills)},
			{"budget", types(accts, exps)},
			{"spending", types(exps, bills)},
			{"procurement", types(vends, itms, bills)},
		},
		Defaults:        types(exps, vends),
		AccountTypes:    []string{"Expense", "Other Current Asset", "Fixed Asset"},
		Lookback:        DefaultLookback,
		ExtraMarkers:    []string{"reduce", "streamline", "automate", "consolidate"},
		NoAccessMessage: "I need an active QuickBooks connection to analyze your operations data. Please connect to QuickBooks first.",
		ErrorMessage:    "I encountered an error while analyzing your operations data. Please try rephrasing your question or check your QuickBooks connection.",
		ragHeader:       "=== RELEVANT HISTORICAL OPERATIONS CONTEXT ===",
		emptyText:       "No operations data available for analysis.",
		summarize:       operationsSummary,
		charts:          operationsCharts,
		calculators:     operationsMetrics,
	}
}

// builtinDomains returns the pipelines keyed by agent id. The executive
// agent has no pipeline of its own.
func builtinDomains() map[string]*Domain {
	return map[string]*Domain{
		"finance":    financeDomain(),
		"sales":      salesDomain(),
		"operations": operationsDomain(),
	}
}
