package controller

import (
	"net/http"

	"github.com/canopy-network/ammx/app/query/types"
	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Controller struct {
	App        *types.App
	AdminToken string
	AuthUser   string
	AuthHash   []byte
	JWTSecret  []byte
}

// NewController reads the admin credentials from ADMIN_TOKEN, ADMIN_USER, ADMIN_PASSWORD
// and SESSION_SECRET. A password that cannot be hashed leaves login disabled.
func NewController(app *types.App) *Controller {
	c := &Controller{
		App:        app,
		AdminToken: utils.Env("ADMIN_TOKEN", "devtoken"),
		AuthUser:   utils.Env("ADMIN_USER", "admin"),
		JWTSecret:  []byte(utils.Env("SESSION_SECRET", "change-me-please")),
	}
	hash, err := utils.HashOrRead(utils.Env("ADMIN_PASSWORD", "admin"))
	if err != nil {
		if app.Logger != nil {
			app.Logger.Error("admin password unusable, login disabled", zap.Error(err))
		}
		return c
	}
	c.AuthHash = hash
	return c
}

// NewRouter wires the public analytics API, the live feed and the admin endpoints.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()
	r.HandleFunc("/health", c.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", c.HandleWebSocket).Methods(http.MethodGet)

	analytics := r.PathPrefix("/analytics").Methods(http.MethodGet).Subrouter()
	for path, h := range map[string]http.HandlerFunc{
		"":                                 c.HandleAnalytics,
		"/pairs":                           c.HandlePairs,
		"/transactions":                    c.HandleTransactions,
		"/top_tvl_accounts":                c.HandleTopTVLAccounts,
		"/top_tvl_accounts/{account}":      c.HandleTVLAccountRank,
		"/top_volume_accounts":             c.HandleTopVolumeAccounts,
		"/top_volume_accounts/{account}":   c.HandleVolumeAccountRank,
		"/snapshot_tvl_accounts":           c.HandleSnapshotAccounts,
		"/snapshot_tvl_accounts/{account}": c.HandleSnapshotAccountRank,
	} {
		analytics.HandleFunc(path, h)
	}

	api := r.PathPrefix("/api").Methods(http.MethodPost).Subrouter()
	api.HandleFunc("/auth/login", c.HandleAdminLogin)
	api.HandleFunc("/auth/logout", c.HandleAdminLogout)
	api.Handle("/snapshots", c.RequireAuth(http.HandlerFunc(c.HandleTakeSnapshot)))

	return r, nil
}

// WithCORS echoes the caller's Origin so browser sessions can send the cookie,
// and answers preflight requests directly.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
