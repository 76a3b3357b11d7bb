package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/leca/bandwidth-proxy/internal/model"
)

type contextKey string

const paramsKey contextKey = "params"

// AuthMiddleware returns middleware that requires "Authorization: Bearer <token>".
// An empty token disables the check.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, prefix) && authHeader[len(prefix):] == token {
				next.ServeHTTP(w, r)
				return
			}
			Unauthorized(w)
		})
	}
}

// ParamsMiddleware parses the proxy query string into RequestParameters and
// stores them in the request context. Requests without a usable target URL
// are answered with 400 and never reach next.
func ParamsMiddleware(defaultQuality int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params, err := ParseParams(r.URL.Query(), defaultQuality)
			if err != nil {
				InvalidURL(w)
				return
			}
			ctx := context.WithValue(r.Context(), paramsKey, params)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetParams retrieves the parameters stored by ParamsMiddleware, or nil.
func GetParams(ctx context.Context) *model.RequestParameters {
	v, _ := ctx.Value(paramsKey).(*model.RequestParameters)
	return v
}
