package httpapi

import (
	"net/http"
	"time"
)

// refreshCookieName is the cookie the browser client stores the opaque
// refresh token under. The token never appears in a response body.
const refreshCookieName = "refreshToken"

// CookieSettings carries the deployment-specific cookie attributes.
type CookieSettings struct {
	Domain string
	Secure bool
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Domain:   a.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		Domain:   a.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
