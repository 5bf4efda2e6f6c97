package accounting

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordFloat(t *testing.T) {
	r := Record{
		"f":      12.5,
		"i":      3,
		"s":      " 40.25 ",
		"n":      json.Number("7.75"),
		"bad":    "n/a",
		"nested": map[string]any{"x": 1},
	}

	assert.Equal(t, 12.5, r.Float("f"))
	assert.Equal(t, 3.0, r.Float("i"))
	assert.Equal(t, 40.25, r.Float("s"))
	assert.Equal(t, 7.75, r.Float("n"))
	assert.Zero(t, r.Float("bad"))
	assert.Zero(t, r.Float("nested"))
	assert.Zero(t, r.Float("missing"))
}

func TestRecordAccessors(t *testing.T) {
	r := Record{
		"Name":        "Checking",
		"Active":      false,
		"CustomerRef": map[string]any{"value": "1", "name": "Acme"},
		"TxnDate":     "2024-03-15",
	}

	assert.Equal(t, "Checking", r.String("Name"))
	assert.Equal(t, "Unknown", r.StringOr("Missing", "Unknown"))
	assert.False(t, r.Bool("Active", true))
	assert.True(t, r.Bool("Missing", true))
	assert.Equal(t, "Acme", r.RefName("CustomerRef"))
	assert.Empty(t, r.RefName("AccountRef"))
	assert.Equal(t, "2024-03", r.Month())
	assert.Empty(t, Record{"TxnDate": "2024"}.Month())
}

func TestSumIsExact(t *testing.T) {
	records := []Record{{"TotalAmt": 0.1}, {"TotalAmt": 0.2}, {"TotalAmt": "0.3"}}
	assert.Equal(t, 0.6, Sum(records, "TotalAmt"))
}

func TestBundleKeysCanonicalOrder(t *testing.T) {
	b := Bundle{
		DataVendors:  nil,
		DataAccounts: {},
		DataExpenses: {},
	}
	assert.Equal(t, []DataType{DataAccounts, DataVendors, DataExpenses}, b.Keys())
	assert.Equal(t, []string{"accounts", "vendors", "expenses"}, b.KeyStrings())
}

func TestCredentialsValid(t *testing.T) {
	assert.True(t, Credentials{AccessToken: "t", RealmID: "r"}.Valid())
	assert.False(t, Credentials{AccessToken: "t"}.Valid())
	assert.False(t, Credentials{RealmID: "r"}.Valid())
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", FormatMoney(1234.5))
	assert.Equal(t, "$0.00", FormatMoney(0))
	assert.Equal(t, "$120,000.00", FormatMoney(120000))
	assert.Equal(t, "66.7%", FormatPercent(66.666))
}
