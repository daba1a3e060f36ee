package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/soporify/internal/envutil"
	"github.com/dgellow/soporify/internal/log"
)

// SessionCookie names the browser session whose storage scope holds the
// verifier and token.
const SessionCookie = "soporify_session"

// SetSession sets the session cookie. secure follows the scheme of the
// redirect URI; development mode never sets it.
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration, secure bool) {
	secure = secure && !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// ClearSession removes the session cookie
func ClearSession(w http.ResponseWriter) {
	Clear(w, SessionCookie)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}
