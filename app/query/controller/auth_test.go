package controller

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func login(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandleAdminLogin(t *testing.T) {
	_, router := newTestController(t, &ledgerStub{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCookie bool
	}{
		{"valid credentials", `{"username":"admin","password":"s3cret"}`, http.StatusOK, true},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized, false},
		{"unknown user", `{"username":"root","password":"s3cret"}`, http.StatusUnauthorized, false},
		{"bad json", `{"username":`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := login(t, router, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)

			var found bool
			for _, c := range rr.Result().Cookies() {
				if c.Name == sessionCookie && c.Value != "" {
					found = true
					assert.True(t, c.HttpOnly)
					assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
				}
			}
			assert.Equal(t, tt.wantCookie, found)
		})
	}
}

func TestTakeSnapshotRequiresAuth(t *testing.T) {
	store := accountsLedger()
	_, router := newTestController(t, store)

	rr := serve(t, router, http.MethodPost, "/api/snapshots")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, store.inserted)

	req := httptest.NewRequest(http.MethodPost, "/api/snapshots", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTakeSnapshotWithToken(t *testing.T) {
	store := accountsLedger()
	_, router := newTestController(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/snapshots", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"accounts":2}`, rr.Body.String())
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "0xa1", store.inserted[0][0].AccountAddress)
}

func TestTakeSnapshotWithSessionCookie(t *testing.T) {
	store := accountsLedger()
	_, router := newTestController(t, store)

	rr := login(t, router, `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/snapshots", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestTakeSnapshotStoreFailure(t *testing.T) {
	store := accountsLedger()
	_, router := newTestController(t, store)
	store.err = errors.New("disk full")

	req := httptest.NewRequest(http.MethodPost, "/api/snapshots", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestValidateSessionCookie(t *testing.T) {
	c, _ := newTestController(t, &ledgerStub{})
	later := time.Now().Add(time.Hour)

	sign := func(method jwt.SigningMethod, key any, exp time.Time, role string) string {
		claims := jwt.MapClaims{"sub": "admin", "role": role}
		if !exp.IsZero() {
			claims["exp"] = exp.Unix()
		}
		tok := jwt.NewWithClaims(method, claims)
		ss, err := tok.SignedString(key)
		require.NoError(t, err)
		return ss
	}

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"valid", sign(jwt.SigningMethodHS256, c.JWTSecret, later, "admin"), true},
		{"expired", sign(jwt.SigningMethodHS256, c.JWTSecret, time.Now().Add(-time.Hour), "admin"), false},
		{"no expiry", sign(jwt.SigningMethodHS256, c.JWTSecret, time.Time{}, "admin"), false},
		{"other role", sign(jwt.SigningMethodHS256, c.JWTSecret, later, "viewer"), false},
		{"other secret", sign(jwt.SigningMethodHS256, []byte("other"), later, "admin"), false},
		{"other algorithm", sign(jwt.SigningMethodHS512, c.JWTSecret, later, "admin"), false},
		{"garbage", "not-a-jwt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: sessionCookie, Value: tt.value})
			assert.Equal(t, tt.want, c.ValidateSessionCookie(req))
		})
	}
}

func TestHandleAdminLogout(t *testing.T) {
	_, router := newTestController(t, &ledgerStub{})

	rr := serve(t, router, http.MethodPost, "/api/auth/logout")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}
