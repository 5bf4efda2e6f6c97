package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	agentcore "erpinsight/internal/agents"
	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/domain/rag"
	"erpinsight/internal/events"
	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

const maxBodyBytes = 1 << 20

// KnowledgeAdmin is satisfied by *rag.Service
type KnowledgeAdmin interface {
	ClearUserData(ctx context.Context, userID string) (int64, error)
	Stats(ctx context.Context) (rag.Stats, error)
}

// Handler serves the agent and knowledge base REST API
type Handler struct {
	factory *agentcore.Factory
	kb      KnowledgeAdmin
	events  *events.Publisher
	log     *logger.Logger
}

// NewHandler creates the API handler. kb and publisher may be nil.
func NewHandler(factory *agentcore.Factory, kb KnowledgeAdmin, publisher *events.Publisher, log *logger.Logger) *Handler {
	return &Handler{
		factory: factory,
		kb:      kb,
		events:  publisher,
		log:     log.With("component", "agents_api"),
	}
}

// Register mounts all routes on mux behind the auth middleware
func (h *Handler) Register(mux *http.ServeMux, authn *AuthMiddleware) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /api/agents", h.listAgents},
		{"GET /api/agents/status", h.status},
		{"POST /api/agents/route", h.route},
		{"POST /api/agents/query", h.query},
		{"POST /api/agents/multi-query", h.multiQuery},
		{"POST /api/agents/forecast", h.forecast},
		{"POST /api/agents/cache/clear", h.clearCache},
		{"DELETE /api/rag/users/{id}", h.clearUserData},
		{"GET /api/rag/stats", h.ragStats},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, h.scoped(rt.pattern, authn.Handler(instrument(rt.pattern, rt.handler))))
	}
}

// scoped seeds the request logger that auth later enriches with the caller
func (h *Handler) scoped(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := h.log.With("route", route)
		if id := w.Header().Get("X-Request-Id"); id != "" {
			log = log.With("request_id", id)
		}
		ctx := logger.IntoContext(r.Context(), log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type credentialsBody struct {
	AccessToken string `json:"access_token"`
	RealmID     string `json:"realm_id"`
}

type queryRequest struct {
	Query       string           `json:"query"`
	AgentID     string           `json:"agent_id,omitempty"`
	CompanyName string           `json:"company_name,omitempty"`
	QueryID     string           `json:"query_id,omitempty"`
	Credentials *credentialsBody `json:"credentials,omitempty"`
}

type forecastRequest struct {
	ForecastType string           `json:"forecast_type"`
	Periods      int              `json:"periods"`
	CompanyName  string           `json:"company_name,omitempty"`
	Credentials  *credentialsBody `json:"credentials,omitempty"`
}

type routeResponse struct {
	Decision    agentcore.RoutingDecision       `json:"decision"`
	Selected    []string                        `json:"selected_agents"`
	Validations map[string]agentcore.Validation `json:"validations"`
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	all := h.factory.Registry().All()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": all,
		"count":  len(all),
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.factory.Status(r.Context()))
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, errors.NewValidationError("query", "must not be empty", req.Query))
		return
	}

	registry := h.factory.Registry()
	validations := make(map[string]agentcore.Validation, len(registry.IDs()))
	for _, id := range registry.IDs() {
		validations[id] = registry.Validate(id, req.Query)
	}

	writeJSON(w, http.StatusOK, routeResponse{
		Decision:    h.factory.Router().Decide(req.Query),
		Selected:    h.factory.Router().SelectAgents(req.Query),
		Validations: validations,
	})
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	req, qc, ok := h.queryInput(w, r)
	if !ok {
		return
	}

	var result *agentcore.AgentResult
	if req.AgentID != "" {
		result = h.factory.ProcessWithAgent(r.Context(), req.AgentID, req.Query, qc)
	} else {
		result = h.factory.ProcessQuery(r.Context(), req.Query, qc)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) multiQuery(w http.ResponseWriter, r *http.Request) {
	req, qc, ok := h.queryInput(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.factory.ProcessMultiAgentQuery(r.Context(), req.Query, qc))
}

func (h *Handler) forecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if !decodeBody(w, r, &req) {
		return
	}
	qc, err := queryContext(r, req.Credentials, req.CompanyName, "")
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	fc, err := h.factory.Forecast(r.Context(), qc, req.ForecastType, req.Periods)
	if err != nil {
		logger.FromContext(r.Context()).Warnw("Forecast failed", "type", req.ForecastType, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	h.factory.ClearCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) clearUserData(w http.ResponseWriter, r *http.Request) {
	if h.kb == nil {
		writeError(w, http.StatusServiceUnavailable, errors.Wrap(errors.ErrUnavailable, "knowledge base disabled"))
		return
	}

	userID := r.PathValue("id")
	caller := IdentityFromContext(r.Context())
	if caller.UserID != "" && caller.UserID != userID {
		writeError(w, http.StatusForbidden, errors.Wrap(errors.ErrUnauthorized, "cannot clear another user's data"))
		return
	}

	n, err := h.kb.ClearUserData(r.Context(), userID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := h.events.PublishKnowledgeCleared(r.Context(), userID, n); err != nil {
		logger.FromContext(r.Context()).Warnw("Failed to publish knowledge cleared event", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":           userID,
		"deleted_documents": n,
	})
}

func (h *Handler) ragStats(w http.ResponseWriter, r *http.Request) {
	if h.kb == nil {
		writeError(w, http.StatusServiceUnavailable, errors.Wrap(errors.ErrUnavailable, "knowledge base disabled"))
		return
	}
	stats, err := h.kb.Stats(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) queryInput(w http.ResponseWriter, r *http.Request) (queryRequest, agentcore.QueryContext, bool) {
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return req, agentcore.QueryContext{}, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, errors.NewValidationError("query", "must not be empty", req.Query))
		return req, agentcore.QueryContext{}, false
	}

	qc, err := queryContext(r, req.Credentials, req.CompanyName, req.QueryID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return req, agentcore.QueryContext{}, false
	}
	return req, qc, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, "malformed JSON body"))
		return false
	}
	return true
}

// queryContext builds the per-query context. Header credentials take
// precedence over the body. A realm-scoped token only accepts its own realm.
func queryContext(r *http.Request, body *credentialsBody, companyName, queryID string) (agentcore.QueryContext, error) {
	id := IdentityFromContext(r.Context())

	creds := accounting.Credentials{
		AccessToken: r.Header.Get(HeaderAccessToken),
		RealmID:     r.Header.Get(HeaderRealmID),
	}
	if body != nil {
		if creds.AccessToken == "" {
			creds.AccessToken = body.AccessToken
		}
		if creds.RealmID == "" {
			creds.RealmID = body.RealmID
		}
	}
	if creds.RealmID == "" {
		creds.RealmID = id.RealmID
	}
	if !id.AllowsRealm(creds.RealmID) {
		return agentcore.QueryContext{}, errors.Wrap(errors.ErrUnauthorized, "token is not valid for this realm")
	}

	if companyName == "" {
		companyName = id.CompanyName
	}
	if queryID == "" {
		queryID = uuid.NewString()
	}

	return agentcore.QueryContext{
		Credentials: creds,
		CompanyName: companyName,
		UserID:      id.UserID,
		QueryID:     queryID,
		Timestamp:   time.Now().UTC(),
	}, nil
}

func statusFor(err error) int {
	var ve *errors.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrNoAccess):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}
