package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/identity"
	"github.com/vadimbarashkov/url-shortener-bigtable/pkg/response"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	stateCookieName   = "oauth_state"
	stateCookieMaxAge = 10 * time.Minute
	callbackPath      = "/login/oauth2/code/"
)

const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUserInfoURL = "https://api.github.com/user"
)

// OAuthProvider is an OAuth2 client registration plus the endpoint that
// returns the signed-in user's attributes.
type OAuthProvider struct {
	Config      *oauth2.Config
	UserInfoURL string
}

func GoogleProvider(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return &OAuthProvider{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		UserInfoURL: googleUserInfoURL,
	}
}

func GitHubProvider(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return &OAuthProvider{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		UserInfoURL: githubUserInfoURL,
	}
}

type authHandler struct {
	providers map[identity.Provider]*OAuthProvider
}

func newAuthHandler(providers map[identity.Provider]*OAuthProvider) *authHandler {
	return &authHandler{providers: providers}
}

// provider resolves the {provider} path parameter. Supported providers that
// were not configured are reported the same way as unknown ones.
func (h *authHandler) provider(r *http.Request) (identity.Provider, *OAuthProvider, bool) {
	p, err := identity.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return "", nil, false
	}

	cfg, ok := h.providers[p]
	return p, cfg, ok
}

func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	_, p, ok := h.provider(r)
	if !ok {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.UnsupportedProviderResponse)
		return
	}

	state := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     callbackPath,
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *authHandler) callback(w http.ResponseWriter, r *http.Request) {
	name, p, ok := h.provider(r)
	if !ok {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.UnsupportedProviderResponse)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.InvalidStateResponse)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Path:     callbackPath,
		MaxAge:   -1,
		HttpOnly: true,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.AuthFailedResponse)
		return
	}

	attrs, err := fetchUserAttributes(r.Context(), p, code)
	if err != nil {
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.AuthFailedResponse)
		return
	}

	info, err := identity.Normalize(string(name), attrs)
	if err != nil {
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ServerErrorResponse)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, info)
}

var errUserInfoStatus = errors.New("unexpected user info status")

func fetchUserAttributes(ctx context.Context, p *OAuthProvider, code string) (map[string]any, error) {
	const op = "adapter.delivery.http.fetchUserAttributes"

	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to exchange code: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build user info request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to fetch user info: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w: %d", op, errUserInfoStatus, resp.StatusCode)
	}

	var attrs map[string]any
	if err := render.DecodeJSON(resp.Body, &attrs); err != nil {
		return nil, fmt.Errorf("%s: failed to decode user info: %w", op, err)
	}

	return attrs, nil
}
