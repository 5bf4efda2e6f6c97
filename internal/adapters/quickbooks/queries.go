package quickbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
)

const (
	maxResults = 1000
	dateLayout = "2006-01-02"
)

// entities maps each list data type to its QuickBooks entity name
var entities = map[accounting.DataType]string{
	accounting.DataAccounts:  "Account",
	accounting.DataInvoices:  "Invoice",
	accounting.DataItems:     "Item",
	accounting.DataCustomers: "Customer",
	accounting.DataVendors:   "Vendor",
	accounting.DataBills:     "Bill",
	accounting.DataPayments:  "Payment",
	accounting.DataExpenses:  "Purchase",
}

// dated entities accept a TxnDate filter
var dated = map[string]bool{
	"Invoice":  true,
	"Bill":     true,
	"Payment":  true,
	"Purchase": true,
}

// Fetch loads one data type for the company in req.Credentials.
// Every failure is returned as a *errors.FetchError.
func (c *Client) Fetch(ctx context.Context, req accounting.FetchRequest) ([]accounting.Record, error) {
	start := time.Now()

	records, err := c.fetch(ctx, req)
	metrics.RecordDataFetch(req.DataType.String(), time.Since(start), err)
	if err != nil {
		if errors.Is(err, errors.ErrNoAccess) {
			return nil, err
		}
		return nil, errors.NewFetchError(req.DataType.String(), err)
	}

	c.log.Debugw("fetched records", "data_type", req.DataType, "count", len(records), "realm_id", req.Credentials.RealmID)
	return records, nil
}

func (c *Client) fetch(ctx context.Context, req accounting.FetchRequest) ([]accounting.Record, error) {
	if req.DataType == accounting.DataProfitLoss {
		return c.ProfitAndLoss(ctx, req.Credentials, req.Since, req.Until)
	}

	entity, ok := entities[req.DataType]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported data type %q", req.DataType)
	}

	var where []string
	if req.AccountType != "" && entity == "Account" {
		where = append(where, fmt.Sprintf("AccountType = '%s'", escapeLiteral(req.AccountType)))
	}
	if !req.Since.IsZero() && dated[entity] {
		where = append(where, fmt.Sprintf("TxnDate >= '%s'", req.Since.Format(dateLayout)))
	}

	return c.Query(ctx, req.Credentials, entity, where...)
}

// Query runs SELECT * FROM entity with optional AND-joined conditions and
// returns QueryResponse.{entity}. Results are cached per realm.
func (c *Client) Query(ctx context.Context, creds accounting.Credentials, entity string, where ...string) ([]accounting.Record, error) {
	statement := buildQuery(entity, where)
	key := cacheKey(creds.RealmID, statement)

	var cached []accounting.Record
	found, err := c.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		metrics.DataCacheLookups.WithLabelValues("error").Inc()
		c.log.Warnw("query cache lookup failed", "error", err)
	case found:
		metrics.DataCacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	default:
		metrics.DataCacheLookups.WithLabelValues("miss").Inc()
	}

	body, err := c.get(ctx, creds, "query", url.Values{"query": {statement}})
	if err != nil {
		return nil, err
	}

	var resp struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decode query response")
	}

	records := []accounting.Record{}
	if raw, ok := resp.QueryResponse[entity]; ok {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, errors.Wrapf(err, "decode %s records", entity)
		}
	}

	if err := c.cache.Set(ctx, key, records, c.cacheTTL); err != nil {
		c.log.Warnw("query cache store failed", "error", err)
	}
	return records, nil
}

// QueryAccounts returns the chart of accounts, optionally filtered by type
func (c *Client) QueryAccounts(ctx context.Context, creds accounting.Credentials, accountType string) ([]accounting.Record, error) {
	return c.Fetch(ctx, accounting.FetchRequest{Credentials: creds, DataType: accounting.DataAccounts, AccountType: accountType})
}

// QueryInvoices returns invoices dated on or after since (zero means all)
func (c *Client) QueryInvoices(ctx context.Context, creds accounting.Credentials, since time.Time) ([]accounting.Record, error) {
	return c.Fetch(ctx, accounting.FetchRequest{Credentials: creds, DataType: accounting.DataInvoices, Since: since})
}

// ProfitAndLoss loads the P&L report and flattens its rows into records of
// {Section, Label, Amount, Summary}. A zero since defaults to January 1st
// of the current year and a zero until to today.
func (c *Client) ProfitAndLoss(ctx context.Context, creds accounting.Credentials, since, until time.Time) ([]accounting.Record, error) {
	now := time.Now()
	if since.IsZero() {
		since = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	}
	if until.IsZero() {
		until = now
	}

	body, err := c.get(ctx, creds, "reports/ProfitAndLoss", url.Values{
		"start_date": {since.Format(dateLayout)},
		"end_date":   {until.Format(dateLayout)},
	})
	if err != nil {
		return nil, err
	}

	var report plReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, errors.Wrap(err, "decode profit and loss report")
	}

	records := []accounting.Record{}
	flattenRows(report.Rows.Row, "", &records)
	return records, nil
}

// CompanyInfo returns the company profile for the realm
func (c *Client) CompanyInfo(ctx context.Context, creds accounting.Credentials) (accounting.Record, error) {
	body, err := c.get(ctx, creds, "companyinfo/"+url.PathEscape(creds.RealmID), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		CompanyInfo   accounting.Record `json:"CompanyInfo"`
		QueryResponse struct {
			CompanyInfo []accounting.Record `json:"CompanyInfo"`
		} `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decode company info")
	}

	if resp.CompanyInfo != nil {
		return resp.CompanyInfo, nil
	}
	if len(resp.QueryResponse.CompanyInfo) > 0 {
		return resp.QueryResponse.CompanyInfo[0], nil
	}
	return nil, errors.Wrap(errors.ErrNotFound, "company info")
}

// ValidateToken reports whether creds can still read the company profile
func (c *Client) ValidateToken(ctx context.Context, creds accounting.Credentials) bool {
	if _, err := c.CompanyInfo(ctx, creds); err != nil {
		c.log.Warnw("token validation failed", "realm_id", creds.RealmID, "error", err)
		return false
	}
	return true
}

func buildQuery(entity string, where []string) string {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(entity)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&sb, " MAXRESULTS %d", maxResults)
	return sb.String()
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

type plReport struct {
	Rows struct {
		Row []plRow `json:"Row"`
	} `json:"Rows"`
}

type plRow struct {
	Type   string `json:"type"`
	Group  string `json:"group"`
	Header *struct {
		ColData []plCol `json:"ColData"`
	} `json:"Header"`
	ColData []plCol `json:"ColData"`
	Rows    *struct {
		Row []plRow `json:"Row"`
	} `json:"Rows"`
	Summary *struct {
		ColData []plCol `json:"ColData"`
	} `json:"Summary"`
}

type plCol struct {
	Value string `json:"value"`
}

func flattenRows(rows []plRow, section string, out *[]accounting.Record) {
	for _, row := range rows {
		sec := section
		if row.Group != "" {
			sec = row.Group
		} else if row.Header != nil && len(row.Header.ColData) > 0 {
			sec = row.Header.ColData[0].Value
		}

		if len(row.ColData) >= 2 {
			*out = append(*out, accounting.Record{
				"Section": sec,
				"Label":   row.ColData[0].Value,
				"Amount":  row.ColData[len(row.ColData)-1].Value,
				"Summary": false,
			})
		}
		if row.Rows != nil {
			flattenRows(row.Rows.Row, sec, out)
		}
		if row.Summary != nil && len(row.Summary.ColData) >= 2 {
			cols := row.Summary.ColData
			*out = append(*out, accounting.Record{
				"Section": sec,
				"Label":   cols[0].Value,
				"Amount":  cols[len(cols)-1].Value,
				"Summary": true,
			})
		}
	}
}
