package accounting

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DataType tags one kind of accounting record
type DataType string

const (
	DataAccounts   DataType = "accounts"
	DataInvoices   DataType = "invoices"
	DataItems      DataType = "items"
	DataCustomers  DataType = "customers"
	DataVendors    DataType = "vendors"
	DataBills      DataType = "bills"
	DataPayments   DataType = "payments"
	DataExpenses   DataType = "expenses"
	DataProfitLoss DataType = "profit_loss"
)

// AllDataTypes lists data types in canonical order
var AllDataTypes = []DataType{
	DataAccounts, DataInvoices, DataItems, DataCustomers, DataVendors,
	DataBills, DataPayments, DataExpenses, DataProfitLoss,
}

// Valid reports whether d is a known data type
func (d DataType) Valid() bool {
	for _, t := range AllDataTypes {
		if t == d {
			return true
		}
	}
	return false
}

func (d DataType) String() string {
	return string(d)
}

// Record is one provider record keyed by provider field names
// (AccountType, CurrentBalance, TotalAmt, TxnDate, ...).
type Record map[string]any

// Float reads key as a number. Missing or non-numeric values yield 0.
func (r Record) Float(key string) float64 {
	return toFloat(r[key])
}

// Decimal reads key as an exact decimal for summing money values
func (r Record) Decimal(key string) decimal.Decimal {
	switch v := r[key].(type) {
	case decimal.Decimal:
		return v
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero
		}
		return d
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.NewFromFloat(toFloat(v))
	}
}

// String reads key as a string. Non-string scalars are formatted.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// StringOr returns the value at key or def when it is empty
func (r Record) StringOr(key, def string) string {
	if s := r.String(key); s != "" {
		return s
	}
	return def
}

// Bool reads key as a boolean, returning def when the key is absent
func (r Record) Bool(key string, def bool) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// RefName reads the name of a nested reference like CustomerRef or AccountRef
func (r Record) RefName(key string) string {
	switch v := r[key].(type) {
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return name
		}
	case Record:
		return v.String("name")
	}
	return ""
}

// Month returns the YYYY-MM prefix of the TxnDate field, or "".
func (r Record) Month() string {
	date := r.String("TxnDate")
	if len(date) < 7 {
		return ""
	}
	return date[:7]
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	case decimal.Decimal:
		return n.InexactFloat64()
	default:
		return 0
	}
}

// Bundle maps a data type to the records fetched for one query
type Bundle map[DataType][]Record

// Keys returns the data types present, in canonical order
func (b Bundle) Keys() []DataType {
	keys := make([]DataType, 0, len(b))
	for _, t := range AllDataTypes {
		if _, ok := b[t]; ok {
			keys = append(keys, t)
		}
	}
	return keys
}

// KeyStrings is Keys as plain strings, for insights and events
func (b Bundle) KeyStrings() []string {
	keys := b.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// Sum adds key across records using exact decimal arithmetic
func Sum(records []Record, key string) float64 {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Decimal(key))
	}
	return total.InexactFloat64()
}

// Credentials scope every fetch to one company on the accounting platform
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	RealmID      string `json:"realm_id"`
}

// Valid reports whether both the token and realm are present
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.RealmID != ""
}

// FetchRequest asks the data source for one data type
type FetchRequest struct {
	Credentials Credentials
	DataType    DataType
	Since       time.Time // zero means no date filter
	Until       time.Time // only used by report types
	AccountType string    // optional Account filter
}
