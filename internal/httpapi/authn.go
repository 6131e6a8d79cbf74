package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"wrdms.org/internal/auth"
)

// publicPaths are served without a bearer token. Everything else mounted
// under the mux requires one.
var publicPaths = map[string]struct{}{
	"/":                        {},
	"/healthz":                 {},
	"/readyz":                  {},
	"/metrics":                 {},
	"/v1/info":                 {},
	"/v1/auth/login":           {},
	"/v1/auth/refresh":         {},
	"/v1/auth/logout":          {},
	"/v1/auth/forgot-password": {},
	"/v1/auth/reset-password":  {},
}

func isPublicPath(p string) bool {
	_, ok := publicPaths[p]
	return ok
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header must be a bearer token")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("bearer token is empty")
	}
	return token, nil
}

// withAuth verifies the access token on protected paths and stores the
// claims in the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := a.auth.VerifyAccessToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrNotConfigured) {
				writeError(w, r, http.StatusInternalServerError, "authentication unavailable")
				return
			}
			writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
