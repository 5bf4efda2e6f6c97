package quickbooks

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"erpinsight/internal/adapters/config"
	"erpinsight/internal/domain/accounting"
	"erpinsight/pkg/errors"
)

// Intuit OAuth 2.0 endpoints
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://appcenter.intuit.com/connect/oauth2",
	TokenURL:  "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
	AuthStyle: oauth2.AuthStyleInHeader,
}

const accountingScope = "com.intuit.quickbooks.accounting"

// OAuth handles the authorization code flow and token refresh
type OAuth struct {
	cfg   *oauth2.Config
	cache Cache
	hc    *http.Client
}

// NewOAuth builds the OAuth helper. cache, if non-nil, is invalidated for a
// realm whenever its token is refreshed.
func NewOAuth(cfg config.QuickBooksConfig, cache Cache) *OAuth {
	return newOAuth(cfg, Endpoint, cache)
}

func newOAuth(cfg config.QuickBooksConfig, endpoint oauth2.Endpoint, cache Cache) *OAuth {
	if cache == nil {
		cache = NopCache{}
	}
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{accountingScope},
			Endpoint:     endpoint,
		},
		cache: cache,
		hc:    &http.Client{Timeout: cfg.Timeout},
	}
}

// AuthCodeURL returns the consent page URL for state
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for credentials scoped to realmID
func (o *OAuth) Exchange(ctx context.Context, code, realmID string) (accounting.Credentials, error) {
	if code == "" || realmID == "" {
		return accounting.Credentials{}, errors.Wrap(errors.ErrInvalidInput, "code and realm id are required")
	}

	tok, err := o.cfg.Exchange(o.withClient(ctx), code)
	if err != nil {
		return accounting.Credentials{}, errors.Wrap(errors.ErrUnauthorized, "quickbooks token exchange: "+err.Error())
	}

	return accounting.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		RealmID:      realmID,
	}, nil
}

// Refresh obtains a new access token and drops the realm's cached queries
func (o *OAuth) Refresh(ctx context.Context, creds accounting.Credentials) (accounting.Credentials, error) {
	if creds.RefreshToken == "" {
		return creds, errors.Wrap(errors.ErrInvalidInput, "refresh token is required")
	}

	src := o.cfg.TokenSource(o.withClient(ctx), &oauth2.Token{RefreshToken: creds.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return creds, errors.Wrap(errors.ErrUnauthorized, "quickbooks token refresh: "+err.Error())
	}

	refreshed := accounting.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		RealmID:      creds.RealmID,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}

	if err := o.cache.InvalidateRealm(ctx, creds.RealmID); err != nil {
		return refreshed, errors.Wrap(err, "invalidate realm cache")
	}
	return refreshed, nil
}

func (o *OAuth) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.hc)
}
