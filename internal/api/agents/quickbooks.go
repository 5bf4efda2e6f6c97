package agents

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"erpinsight/internal/domain/accounting"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// OAuthFlow is satisfied by *quickbooks.OAuth
type OAuthFlow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code, realmID string) (accounting.Credentials, error)
	Refresh(ctx context.Context, creds accounting.Credentials) (accounting.Credentials, error)
}

// ConnectHandler runs the QuickBooks authorization code flow. Credentials
// are handed back to the caller and never stored server side.
type ConnectHandler struct {
	oauth OAuthFlow
	log   *logger.Logger
}

// NewConnectHandler creates the QuickBooks connect handler
func NewConnectHandler(oauth OAuthFlow, log *logger.Logger) *ConnectHandler {
	return &ConnectHandler{oauth: oauth, log: log.With("component", "quickbooks_connect")}
}

// Register mounts the connect routes. The callback is reached by a browser
// redirect from Intuit and is not behind authn.
func (h *ConnectHandler) Register(mux *http.ServeMux, authn *AuthMiddleware) {
	mux.Handle("GET /api/quickbooks/connect", authn.Handler(instrument("GET /api/quickbooks/connect", h.connect)))
	mux.Handle("GET /api/quickbooks/callback", instrument("GET /api/quickbooks/callback", h.callback))
	mux.Handle("POST /api/quickbooks/refresh", authn.Handler(instrument("POST /api/quickbooks/refresh", h.refresh)))
}

func (h *ConnectHandler) connect(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = uuid.NewString()
	}
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

func (h *ConnectHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		writeError(w, http.StatusUnauthorized, errors.Newf("authorization declined: %s", reason))
		return
	}

	creds, err := h.oauth.Exchange(r.Context(), q.Get("code"), q.Get("realmId"))
	if err != nil {
		h.log.Warnw("token exchange failed", "realm_id", q.Get("realmId"), "error", err)
		writeError(w, statusFor(err), err)
		return
	}

	h.log.Infow("quickbooks connected", "realm_id", creds.RealmID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":       q.Get("state"),
		"credentials": creds,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	RealmID      string `json:"realm_id"`
}

func (h *ConnectHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RealmID == "" {
		writeError(w, http.StatusBadRequest, errors.NewValidationError("realm_id", "is required", ""))
		return
	}
	if !IdentityFromContext(r.Context()).AllowsRealm(req.RealmID) {
		writeError(w, http.StatusForbidden, errors.Wrap(errors.ErrUnauthorized, "token is not valid for this realm"))
		return
	}

	creds, err := h.oauth.Refresh(r.Context(), accounting.Credentials{RefreshToken: req.RefreshToken, RealmID: req.RealmID})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}
