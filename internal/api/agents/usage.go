package agents

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"erpinsight/internal/domain/ai_usage"
	chrepo "erpinsight/internal/repository/clickhouse"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

const (
	defaultUsageDays = 7
	maxUsageDays     = 90
	recentQueries    = 20
)

// QueryStats is satisfied by the ClickHouse query log repository
type QueryStats interface {
	AgentStats(ctx context.Context, from time.Time) ([]chrepo.AgentQueryStats, error)
	UserQueries(ctx context.Context, userID string, limit int) ([]string, error)
}

var _ QueryStats = (*chrepo.QueryLogRepository)(nil)

// UsageHandler reports LLM spend and agent volume from ClickHouse
type UsageHandler struct {
	costs   ai_usage.Reports
	queries QueryStats
	log     *logger.Logger
	now     func() time.Time
}

// NewUsageHandler creates the handler. Either source may be nil.
func NewUsageHandler(costs ai_usage.Reports, queries QueryStats, log *logger.Logger) *UsageHandler {
	return &UsageHandler{
		costs:   costs,
		queries: queries,
		log:     log.With("component", "usage_api"),
		now:     time.Now,
	}
}

func (h *UsageHandler) Register(mux *http.ServeMux, authn *AuthMiddleware) {
	mux.Handle("GET /api/usage", authn.Handler(instrument("GET /api/usage", h.summary)))
	mux.Handle("GET /api/usage/me", authn.Handler(instrument("GET /api/usage/me", h.mine)))
}

type usageSummary struct {
	From          time.Time                 `json:"from"`
	To            time.Time                 `json:"to"`
	ProviderCosts map[string]float64        `json:"provider_costs_usd,omitempty"`
	AgentCosts    map[string]float64        `json:"agent_costs_usd,omitempty"`
	Agents        []chrepo.AgentQueryStats `json:"agents,omitempty"`
}

func (h *UsageHandler) summary(w http.ResponseWriter, r *http.Request) {
	if h.costs == nil && h.queries == nil {
		writeError(w, http.StatusServiceUnavailable, errors.Wrap(errors.ErrUnavailable, "usage analytics disabled"))
		return
	}

	days := defaultUsageDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxUsageDays {
			writeError(w, http.StatusBadRequest, errors.NewValidationError("days", "must be between 1 and 90", v))
			return
		}
		days = n
	}

	to := h.now().UTC()
	out := usageSummary{From: to.AddDate(0, 0, -days), To: to}

	g, ctx := errgroup.WithContext(r.Context())
	if h.costs != nil {
		g.Go(func() (err error) {
			out.ProviderCosts, err = h.costs.GetProviderCosts(ctx, out.From, out.To)
			return err
		})
		g.Go(func() (err error) {
			out.AgentCosts, err = h.costs.GetAgentCosts(ctx, out.From, out.To)
			return err
		})
	}
	if h.queries != nil {
		g.Go(func() (err error) {
			out.Agents, err = h.queries.AgentStats(ctx, out.From)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.FromContext(r.Context()).Warnw("Usage summary failed", "days", days, "error", err)
		writeError(w, http.StatusBadGateway, errors.Wrap(errors.ErrExternal, "usage store query failed"))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type userUsage struct {
	UserID        string   `json:"user_id"`
	TodayCostUSD  *float64 `json:"today_cost_usd,omitempty"`
	RecentQueries []string `json:"recent_queries,omitempty"`
}

func (h *UsageHandler) mine(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	if id.UserID == "" {
		writeError(w, http.StatusUnauthorized, errors.Wrap(errors.ErrUnauthorized, "caller is not identified"))
		return
	}
	if h.costs == nil && h.queries == nil {
		writeError(w, http.StatusServiceUnavailable, errors.Wrap(errors.ErrUnavailable, "usage analytics disabled"))
		return
	}

	out := userUsage{UserID: id.UserID}
	if h.costs != nil {
		cost, err := h.costs.GetUserDailyCost(r.Context(), id.UserID, h.now().UTC())
		if err != nil {
			writeError(w, http.StatusBadGateway, errors.Wrap(errors.ErrExternal, "usage store query failed"))
			return
		}
		out.TodayCostUSD = &cost
	}
	if h.queries != nil {
		ids, err := h.queries.UserQueries(r.Context(), id.UserID, recentQueries)
		if err != nil {
			writeError(w, http.StatusBadGateway, errors.Wrap(errors.ErrExternal, "query log lookup failed"))
			return
		}
		out.RecentQueries = ids
	}
	writeJSON(w, http.StatusOK, out)
}
