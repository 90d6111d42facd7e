// Package recoverer turns handler panics into a JSON 500 response.
package recoverer

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/render"
	"github.com/vadimbarashkov/url-shortener-bigtable/pkg/middleware"
	"github.com/vadimbarashkov/url-shortener-bigtable/pkg/response"
)

func New(logger *slog.Logger) middleware.Middleware {
	const op = "middleware.recoverer.New"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					logger.Error(
						"something went wrong, panic occurred",
						slog.Group(op,
							slog.Any("err", err),
							slog.String("stack", string(debug.Stack())),
						),
					)

					render.Status(r, http.StatusInternalServerError)
					render.JSON(w, r, response.ServerErrorResponse)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
