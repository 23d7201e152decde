package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/cedros-gateway/gateway/internal/config"
)

// AccessCookieName and CSRFCookieName are the cookie names issued on login.
const (
	AccessCookieName = "cedros_access_token"
	CSRFCookieName   = "cedros_csrf_token"
)

// AccessCookie builds the HttpOnly cookie carrying the signed access token.
// SameSite defaults to Strict unless cfg overrides it; Secure is set whenever
// the gateway is configured to terminate or sit behind HTTPS.
func AccessCookie(cfg config.IdentityConfig, token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     AccessCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   cfg.HTTPSOnly || cfg.HTTPSEnabled,
		SameSite: sameSite(cfg.CookieSameSite),
	}
}

// CSRFCookie builds the companion CSRF cookie. It is deliberately not
// HttpOnly: the double-submit pattern requires client-side script to read it
// and echo it back in a request header.
func CSRFCookie(cfg config.IdentityConfig, csrfToken string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: false,
		Secure:   cfg.HTTPSOnly || cfg.HTTPSEnabled,
		SameSite: sameSite(cfg.CookieSameSite),
	}
}

// ExpireCookie builds a cookie that immediately invalidates name on logout.
func ExpireCookie(cfg config.IdentityConfig, name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: name == AccessCookieName,
		Secure:   cfg.HTTPSOnly || cfg.HTTPSEnabled,
		SameSite: sameSite(cfg.CookieSameSite),
	}
}

func sameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
