package controller

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookie = "ammx_session"
	sessionTTL    = 8 * time.Hour
	adminRole     = "admin"
)

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ValidateToken accepts "Authorization: Bearer <ADMIN_TOKEN>".
func (c *Controller) ValidateToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || c.AdminToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(c.AdminToken)) == 1
}

// ValidateSessionCookie accepts an unexpired HS256 session issued to the admin role.
func (c *Controller) ValidateSessionCookie(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	var claims sessionClaims
	tok, err := jwt.ParseWithClaims(cookie.Value, &claims,
		func(*jwt.Token) (any, error) { return c.JWTSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return err == nil && tok.Valid && claims.Role == adminRole
}

func (c *Controller) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.ValidateToken(r) && !c.ValidateSessionCookie(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IssueSession signs a session for username and sets it as an HttpOnly cookie.
func (c *Controller) IssueSession(w http.ResponseWriter, username string) error {
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}).SignedString(c.JWTSecret)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessionCookieFor(signed, int(sessionTTL.Seconds())))
	return nil
}

func sessionCookieFor(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   utils.Env("ENVIRONMENT", "") == "production",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	}
}

// HandleAdminLogin checks the bcrypt hash of the configured admin and starts a session.
func (c *Controller) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if in.Username != c.AuthUser || len(c.AuthHash) == 0 ||
		bcrypt.CompareHashAndPassword(c.AuthHash, []byte(in.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := c.IssueSession(w, in.Username); err != nil {
		writeError(w, http.StatusInternalServerError, "session error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

// HandleAdminLogout expires the session cookie.
func (c *Controller) HandleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	cookie := sessionCookieFor("", -1)
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
	w.WriteHeader(http.StatusNoContent)
}
