package testsupport

import (
	"context"
	"sync"
	"time"

	"erpinsight/internal/domain/accounting"
	"erpinsight/pkg/errors"
)

// TestCredentials returns credentials accepted by FakeSource
func TestCredentials() accounting.Credentials {
	return accounting.Credentials{AccessToken: "test-token", RefreshToken: "test-refresh", RealmID: "test_realm"}
}

// SampleBundle returns a small but internally consistent company dataset
func SampleBundle() accounting.Bundle {
	return accounting.Bundle{
		accounting.DataAccounts:   SampleAccounts(),
		accounting.DataInvoices:   SampleInvoices(),
		accounting.DataItems:      SampleItems(),
		accounting.DataCustomers:  SampleCustomers(),
		accounting.DataVendors:    SampleVendors(),
		accounting.DataBills:      SampleBills(),
		accounting.DataPayments:   SamplePayments(),
		accounting.DataExpenses:   SampleExpenses(),
		accounting.DataProfitLoss: SampleProfitLoss(),
	}
}

// SampleAccounts is a chart of accounts with one of each common type
func SampleAccounts() []accounting.Record {
	return []accounting.Record{
		{"Id": "1", "Name": "Checking", "AccountType": "Bank", "CurrentBalance": 25000.0, "Active": true},
		{"Id": "2", "Name": "Savings", "AccountType": "Bank", "CurrentBalance": 15000.0, "Active": true},
		{"Id": "3", "Name": "Accounts Receivable", "AccountType": "Accounts Receivable", "CurrentBalance": 8000.0, "Active": true},
		{"Id": "4", "Name": "Accounts Payable", "AccountType": "Accounts Payable", "CurrentBalance": 4500.0, "Active": true},
		{"Id": "5", "Name": "Sales", "AccountType": "Income", "CurrentBalance": 120000.0, "Active": true},
		{"Id": "6", "Name": "Rent", "AccountType": "Expense", "CurrentBalance": 24000.0, "Active": true},
		{"Id": "7", "Name": "Inventory Asset", "AccountType": "Other Current Asset", "CurrentBalance": 12000.0, "Active": true},
	}
}

// SampleInvoices spans three months with one open balance
func SampleInvoices() []accounting.Record {
	return []accounting.Record{
		{"Id": "101", "DocNumber": "1001", "TxnDate": "2024-01-15", "TotalAmt": 5000.0, "Balance": 0.0,
			"CustomerRef": map[string]any{"value": "c1", "name": "Acme Corp"}},
		{"Id": "102", "DocNumber": "1002", "TxnDate": "2024-02-10", "TotalAmt": 7500.0, "Balance": 2500.0,
			"CustomerRef": map[string]any{"value": "c2", "name": "Globex"}},
		{"Id": "103", "DocNumber": "1003", "TxnDate": "2024-03-05", "TotalAmt": 3000.0, "Balance": 0.0,
			"CustomerRef": map[string]any{"value": "c1", "name": "Acme Corp"}},
	}
}

// SampleItems has one low-stock inventory item
func SampleItems() []accounting.Record {
	return []accounting.Record{
		{"Id": "i1", "Name": "Widget", "Type": "Inventory", "QtyOnHand": 3.0, "UnitPrice": 25.0, "PurchaseCost": 10.0},
		{"Id": "i2", "Name": "Gadget", "Type": "Inventory", "QtyOnHand": 120.0, "UnitPrice": 40.0, "PurchaseCost": 18.0},
		{"Id": "i3", "Name": "Consulting", "Type": "Service", "UnitPrice": 150.0},
	}
}

// SampleCustomers has two customers with balances
func SampleCustomers() []accounting.Record {
	return []accounting.Record{
		{"Id": "c1", "DisplayName": "Acme Corp", "Balance": 0.0, "Active": true},
		{"Id": "c2", "DisplayName": "Globex", "Balance": 2500.0, "Active": true},
	}
}

// SampleVendors has two vendors
func SampleVendors() []accounting.Record {
	return []accounting.Record{
		{"Id": "v1", "DisplayName": "Office Supply Co", "Balance": 1500.0, "Active": true},
		{"Id": "v2", "DisplayName": "Landlord LLC", "Balance": 3000.0, "Active": true},
	}
}

// SampleBills has one paid and one open bill
func SampleBills() []accounting.Record {
	return []accounting.Record{
		{"Id": "b1", "TxnDate": "2024-01-20", "DueDate": "2024-02-20", "TotalAmt": 2000.0, "Balance": 0.0,
			"VendorRef": map[string]any{"value": "v1", "name": "Office Supply Co"}},
		{"Id": "b2", "TxnDate": "2024-02-25", "DueDate": "2024-03-25", "TotalAmt": 3000.0, "Balance": 3000.0,
			"VendorRef": map[string]any{"value": "v2", "name": "Landlord LLC"}},
	}
}

// SamplePayments has two received payments
func SamplePayments() []accounting.Record {
	return []accounting.Record{
		{"Id": "p1", "TxnDate": "2024-01-30", "TotalAmt": 5000.0,
			"CustomerRef": map[string]any{"value": "c1", "name": "Acme Corp"}},
		{"Id": "p2", "TxnDate": "2024-02-28", "TotalAmt": 5000.0,
			"CustomerRef": map[string]any{"value": "c2", "name": "Globex"}},
	}
}

// SampleExpenses has purchases across two months
func SampleExpenses() []accounting.Record {
	return []accounting.Record{
		{"Id": "e1", "TxnDate": "2024-01-05", "TotalAmt": 1200.0, "PaymentType": "CreditCard",
			"AccountRef": map[string]any{"value": "6", "name": "Rent"}},
		{"Id": "e2", "TxnDate": "2024-02-05", "TotalAmt": 1200.0, "PaymentType": "Check",
			"AccountRef": map[string]any{"value": "6", "name": "Rent"}},
		{"Id": "e3", "TxnDate": "2024-02-18", "TotalAmt": 300.0, "PaymentType": "Cash",
			"AccountRef": map[string]any{"value": "8", "name": "Office Supplies"}},
	}
}

// SampleProfitLoss is a flattened P&L report
func SampleProfitLoss() []accounting.Record {
	return []accounting.Record{
		{"Section": "Income", "Label": "Total Income", "Amount": 15500.0, "Summary": true},
		{"Section": "Expenses", "Label": "Total Expenses", "Amount": 2700.0, "Summary": true},
		{"Section": "NetIncome", "Label": "Net Income", "Amount": 12800.0, "Summary": true},
	}
}

// FakeSource serves canned records per data type and records every request
type FakeSource struct {
	Records   accounting.Bundle
	Errs      map[accounting.DataType]error
	HealthErr error
	Delay     time.Duration

	mu    sync.Mutex
	calls []accounting.FetchRequest
}

var _ accounting.Source = (*FakeSource)(nil)

// NewFakeSource returns a source serving SampleBundle
func NewFakeSource() *FakeSource {
	return &FakeSource{Records: SampleBundle(), Errs: map[accounting.DataType]error{}}
}

// Fetch returns the canned records, honoring Delay and context cancellation
func (f *FakeSource) Fetch(ctx context.Context, req accounting.FetchRequest) ([]accounting.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if !req.Credentials.Valid() {
		return nil, errors.ErrNoAccess
	}

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err, ok := f.Errs[req.DataType]; ok && err != nil {
		return nil, errors.NewFetchError(string(req.DataType), err)
	}

	return f.Records[req.DataType], nil
}

// Health returns HealthErr
func (f *FakeSource) Health(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.HealthErr
}

// Calls returns a copy of the requests seen so far
func (f *FakeSource) Calls() []accounting.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]accounting.FetchRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

// FetchedTypes lists the data types requested, in call order
func (f *FakeSource) FetchedTypes() []accounting.DataType {
	calls := f.Calls()
	out := make([]accounting.DataType, len(calls))
	for i, c := range calls {
		out[i] = c.DataType
	}
	return out
}
