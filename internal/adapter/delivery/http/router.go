// Package http provides the HTTP delivery layer for the URL shortener service.
// It contains the chi router, the URL handlers and the OAuth2 login flow.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/url-shortener-bigtable/docs"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/identity"
	"github.com/vadimbarashkov/url-shortener-bigtable/pkg/middleware/recoverer"

	httpSwagger "github.com/swaggo/http-swagger"
)

type routerOptions struct {
	shortURLBase string
	providers    map[identity.Provider]*OAuthProvider
}

type RouterOption func(*routerOptions)

// WithShortURLBase sets the scheme and host prefixed to returned short links.
func WithShortURLBase(base string) RouterOption {
	return func(o *routerOptions) {
		o.shortURLBase = base
	}
}

// WithOAuthProvider enables the login flow for p.
func WithOAuthProvider(p identity.Provider, provider *OAuthProvider) RouterOption {
	return func(o *routerOptions) {
		if provider != nil {
			o.providers[p] = provider
		}
	}
}

// NewRouter initializes and returns a new Chi router configured with middleware and routes for the URL shortener API.
func NewRouter(logger *httplog.Logger, urlUseCase urlUseCase, opts ...RouterOption) *chi.Mux {
	o := &routerOptions{
		shortURLBase: "http://localhost:8080",
		providers:    make(map[identity.Provider]*OAuthProvider),
	}

	for _, opt := range opts {
		opt(o)
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(recoverer.New(logger.Logger))

	r.Get("/ping", handlePing)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(docs.SwaggerYAML)
	})

	r.Route("/api", func(r chi.Router) {
		h := newURLHandler(urlUseCase, validator.New(), o.shortURLBase)

		r.Post("/shorten", h.shortenURL)

		r.Route("/{shortCode}", func(r chi.Router) {
			r.Get("/", h.resolveShortCode)
			r.Delete("/", h.deactivateURL)
			r.Get("/stats", h.getURLStats)
		})
	})

	auth := newAuthHandler(o.providers)

	r.Get("/oauth2/authorization/{provider}", auth.login)
	r.Get("/login/oauth2/code/{provider}", auth.callback)

	return r
}
