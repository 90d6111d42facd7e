package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/identity"
	"golang.org/x/oauth2"
)

type AuthTestSuite struct {
	suite.Suite
	logger   *httplog.Logger
	provider *httptest.Server
	server   *httptest.Server
	e        *httpexpect.Expect
}

func (suite *AuthTestSuite) SetupSuite() {
	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "invalid_grant"})
			return
		}

		render.JSON(w, r, map[string]any{
			"access_token": "test-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		render.JSON(w, r, map[string]any{
			"id":         583231,
			"login":      "octocat",
			"email":      "octocat@example.com",
			"avatar_url": "https://example.com/octocat.png",
		})
	})

	suite.provider = httptest.NewServer(mux)
	suite.T().Cleanup(func() {
		suite.provider.Close()
	})
}

func (suite *AuthTestSuite) SetupSubTest() {
	github := &OAuthProvider{
		Config: &oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost/login/oauth2/code/github",
			Endpoint: oauth2.Endpoint{
				AuthURL:   suite.provider.URL + "/authorize",
				TokenURL:  suite.provider.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"read:user"},
		},
		UserInfoURL: suite.provider.URL + "/userinfo",
	}

	router := NewRouter(suite.logger, new(MockURLUseCase), WithOAuthProvider(identity.ProviderGitHub, github))
	suite.server = httptest.NewServer(router)
	suite.T().Cleanup(func() {
		suite.server.Close()
	})

	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *AuthTestSuite) TestLogin() {
	const path = "/oauth2/authorization/{provider}"

	suite.Run("unsupported provider", func() {
		suite.e.GET(path, "twitter").
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().
			HasValue("error", "unsupported provider")
	})

	suite.Run("provider not configured", func() {
		suite.e.GET(path, "google").
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().
			HasValue("error", "unsupported provider")
	})

	suite.Run("success", func() {
		resp := suite.e.GET(path, "GitHub").
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusTemporaryRedirect)

		state := resp.Cookie(stateCookieName).Value().NotEmpty().Raw()

		location, err := url.Parse(resp.Header("Location").Raw())
		suite.Require().NoError(err)
		suite.Equal("/authorize", location.Path)
		suite.Equal(state, location.Query().Get("state"))
		suite.Equal("client-id", location.Query().Get("client_id"))
	})
}

func (suite *AuthTestSuite) TestCallback() {
	const path = "/login/oauth2/code/{provider}"

	suite.Run("unsupported provider", func() {
		suite.e.GET(path, "twitter").
			WithQuery("code", "good-code").
			WithQuery("state", "s1").
			WithCookie(stateCookieName, "s1").
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().
			HasValue("error", "unsupported provider")
	})

	suite.Run("missing state cookie", func() {
		suite.e.GET(path, "github").
			WithQuery("code", "good-code").
			WithQuery("state", "s1").
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().
			HasValue("error", "invalid oauth state")
	})

	suite.Run("state mismatch", func() {
		suite.e.GET(path, "github").
			WithQuery("code", "good-code").
			WithQuery("state", "s1").
			WithCookie(stateCookieName, "s2").
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().
			HasValue("error", "invalid oauth state")
	})

	suite.Run("missing code", func() {
		suite.e.GET(path, "github").
			WithQuery("state", "s1").
			WithCookie(stateCookieName, "s1").
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().
			HasValue("error", "authentication failed")
	})

	suite.Run("exchange failure", func() {
		suite.e.GET(path, "github").
			WithQuery("code", "bad-code").
			WithQuery("state", "s1").
			WithCookie(stateCookieName, "s1").
			Expect().
			Status(http.StatusUnauthorized).
			JSON().Object().
			HasValue("error", "authentication failed")
	})

	suite.Run("success", func() {
		resp := suite.e.GET(path, "github").
			WithQuery("code", "good-code").
			WithQuery("state", "s1").
			WithCookie(stateCookieName, "s1").
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		resp.HasValue("provider", "github")
		resp.HasValue("id", "583231")
		resp.HasValue("email", "octocat@example.com")
		resp.HasValue("name", "octocat")
		resp.HasValue("imageUrl", "https://example.com/octocat.png")
	})
}

func TestAuth(t *testing.T) {
	suite.Run(t, new(AuthTestSuite))
}
