package rag

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"erpinsight/internal/domain/accounting"
)

// ContentHash is the dedup key of a chunk's text
func ContentHash(content string) string {
	return strconv.FormatUint(xxhash.Sum64String(content), 16)
}

// RecordsToText renders records as searchable prose, one paragraph per record
func RecordsToText(dataType accounting.DataType, records []accounting.Record) string {
	var (
		header string
		render func(accounting.Record) string
	)

	switch dataType {
	case accounting.DataAccounts:
		header, render = "Chart of Accounts Summary:", accountText
	case accounting.DataItems:
		header, render = "Inventory and Items Summary:", itemText
	case accounting.DataInvoices, accounting.DataBills, accounting.DataPayments, accounting.DataExpenses:
		header, render = "Transaction History Summary:", transactionText
	case accounting.DataCustomers:
		header, render = "Customer Information Summary:", partyText("Customer")
	case accounting.DataVendors:
		header, render = "Vendor Information Summary:", partyText("Vendor")
	default:
		header, render = fmt.Sprintf("%s Summary:", dataType), genericText
	}

	parts := make([]string, 0, len(records)+1)
	parts = append(parts, header)
	for _, r := range records {
		parts = append(parts, render(r))
	}
	return strings.Join(parts, "\n\n")
}

func accountText(r accounting.Record) string {
	return strings.Join([]string{
		"Account: " + r.StringOr("Name", "Unknown"),
		"Type: " + r.StringOr("AccountType", "Unknown"),
		"Subtype: " + r.StringOr("AccountSubType", "Unknown"),
		"Current Balance: " + accounting.FormatMoney(r.Float("CurrentBalance")),
		"Description: " + r.StringOr("Description", "No description"),
	}, "\n")
}

func itemText(r accounting.Record) string {
	return strings.Join([]string{
		"Item: " + r.StringOr("Name", "Unknown"),
		"Type: " + r.StringOr("Type", "Unknown"),
		"Description: " + r.StringOr("Description", "No description"),
		"Unit Price: " + accounting.FormatMoney(r.Float("UnitPrice")),
		fmt.Sprintf("Quantity on Hand: %g", r.Float("QtyOnHand")),
	}, "\n")
}

func transactionText(r accounting.Record) string {
	party := r.RefName("CustomerRef")
	if party == "" {
		party = r.RefName("VendorRef")
	}
	if party == "" {
		party = r.RefName("EntityRef")
	}
	if party == "" {
		party = "N/A"
	}

	return strings.Join([]string{
		"Transaction: " + r.StringOr("DocNumber", r.StringOr("Id", "Unknown")),
		"Date: " + r.StringOr("TxnDate", "Unknown"),
		"Amount: " + accounting.FormatMoney(r.Float("TotalAmt")),
		"Balance: " + accounting.FormatMoney(r.Float("Balance")),
		"Customer/Vendor: " + party,
		"Description: " + r.StringOr("PrivateNote", "No description"),
	}, "\n")
}

func partyText(kind string) func(accounting.Record) string {
	return func(r accounting.Record) string {
		name := r.StringOr("DisplayName", r.StringOr("Name", "Unknown"))
		return strings.Join([]string{
			kind + ": " + name,
			"Company: " + r.StringOr("CompanyName", "N/A"),
			"Balance: " + accounting.FormatMoney(r.Float("Balance")),
			fmt.Sprintf("Active: %t", r.Bool("Active", true)),
		}, "\n")
	}
}

func genericText(r accounting.Record) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+r.String(k))
	}
	return strings.Join(lines, "\n")
}

// Chunk splits text into pieces of at most size runes where consecutive
// pieces share up to overlap runes. Breaks prefer paragraph, line and word
// boundaries in the second half of each window.
func Chunk(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			if c := strings.TrimSpace(string(runes[start:])); c != "" {
				chunks = append(chunks, c)
			}
			break
		}

		end = start + breakPoint(runes[start:end])
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

var separators = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(" ")}

func breakPoint(window []rune) int {
	for _, sep := range separators {
		for i := len(window) - len(sep); i >= len(window)/2; i-- {
			if hasPrefix(window[i:], sep) {
				return i + len(sep)
			}
		}
	}
	return len(window)
}

func hasPrefix(s, prefix []rune) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}
