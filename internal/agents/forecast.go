package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"erpinsight/internal/adapters/ai"
	"erpinsight/internal/domain/accounting"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/templates"
)

const (
	forecastTemperature    = 0.2
	forecastLookback       = 730 * 24 * time.Hour
	defaultForecastPeriods = 12
	maxForecastPeriods     = 36
	fallbackConfidence     = 0.5
)

// ForecastPoint is one projected period
type ForecastPoint struct {
	Period     string  `json:"period"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Forecast is a model-generated projection over historical data
type Forecast struct {
	Type            string          `json:"forecast_type"`
	Periods         int             `json:"periods"`
	ForecastValues  []ForecastPoint `json:"forecast_values"`
	Reasoning       string          `json:"reasoning"`
	Assumptions     []string        `json:"assumptions"`
	ConfidenceLevel float64         `json:"confidence_level"`
	RiskFactors     []string        `json:"risk_factors"`
	Recommendations []string        `json:"recommendations"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// Forecast projects forecastType ("revenue" from invoices, anything else
// from the chart of accounts) over periods future periods
func (f *Factory) Forecast(ctx context.Context, qc QueryContext, forecastType string, periods int) (*Forecast, error) {
	if !qc.Credentials.Valid() {
		return nil, errors.ErrNoAccess
	}
	if f.source == nil || f.llm == nil {
		return nil, errors.Wrap(errors.ErrUnavailable, "forecasting needs a data source and a language model")
	}
	forecastType = strings.ToLower(strings.TrimSpace(forecastType))
	if forecastType == "" {
		forecastType = "revenue"
	}
	if periods <= 0 {
		periods = defaultForecastPeriods
	}
	if periods > maxForecastPeriods {
		return nil, errors.NewValidationError("periods", fmt.Sprintf("must be at most %d", maxForecastPeriods), periods)
	}

	req := accounting.FetchRequest{Credentials: qc.Credentials, DataType: accounting.DataAccounts}
	if forecastType == "revenue" {
		req.DataType = accounting.DataInvoices
		req.Since = time.Now().UTC().Add(-forecastLookback)
	}

	fetchCtx := ctx
	if f.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, f.cfg.FetchTimeout)
		defer cancel()
	}
	records, err := f.source.Fetch(fetchCtx, req)
	if err != nil {
		return nil, errors.NewFetchError(string(req.DataType), err)
	}

	user, err := templates.Get().Render(forecastUser, map[string]any{
		"Type":    forecastType,
		"Periods": periods,
		"Summary": HistoricalSummary(forecastType, records),
	})
	if err != nil {
		return nil, errors.Wrap(err, "render forecast prompt")
	}
	system, err := templates.Get().Render(forecastSystem, nil)
	if err != nil {
		return nil, errors.Wrap(err, "render forecast system prompt")
	}

	text, err := f.llm.Complete(ctx, ai.CompletionRequest{
		System:      system,
		User:        user,
		Temperature: forecastTemperature,
		MaxTokens:   f.cfg.LLMMaxTokens,
		AgentID:     FallbackAgentID,
		Purpose:     "forecast_" + forecastType,
		QueryID:     qc.QueryID,
	})
	if err != nil {
		return nil, err
	}

	fc := ParseForecast(text)
	fc.Type = forecastType
	fc.Periods = periods
	fc.GeneratedAt = time.Now().UTC()
	return fc, nil
}

// ParseForecast decodes the model's JSON forecast. Anything else becomes a
// forecast whose reasoning is the raw text at medium confidence.
func ParseForecast(text string) *Forecast {
	body := stripFence(strings.TrimSpace(text))
	var fc Forecast
	if strings.HasPrefix(body, "{") && json.Unmarshal([]byte(body), &fc) == nil {
		if fc.ForecastValues == nil {
			fc.ForecastValues = []ForecastPoint{}
		}
		return &fc
	}
	return &Forecast{
		ForecastValues:  []ForecastPoint{},
		Reasoning:       text,
		Assumptions:     []string{},
		ConfidenceLevel: fallbackConfidence,
		RiskFactors:     []string{},
		Recommendations: []string{},
	}
}

// HistoricalSummary describes the history a forecast is based on
func HistoricalSummary(forecastType string, records []accounting.Record) string {
	if len(records) == 0 {
		return fmt.Sprintf("No historical %s data available", forecastType)
	}

	lines := []string{fmt.Sprintf("Historical %s Data (%d records):", templates.Title(forecastType), len(records))}
	if forecastType == "revenue" {
		series := monthlyTotals(records, "TotalAmt")
		start := max(0, len(series.Months)-12)
		for i := start; i < len(series.Months); i++ {
			lines = append(lines, fmt.Sprintf("- %s: %s", series.Months[i], money(series.Totals[i])))
		}
		lines = append(lines, "Total: "+money(accounting.Sum(records, "TotalAmt")))
		return strings.Join(lines, "\n")
	}

	order, groups := groupBy(records, func(r accounting.Record) string { return r.StringOr("AccountType", "Unknown") })
	for _, t := range order {
		lines = append(lines, fmt.Sprintf("- %s: %d accounts, Total: %s", t, len(groups[t]), money(accounting.Sum(groups[t], "CurrentBalance"))))
	}
	return strings.Join(lines, "\n")
}
