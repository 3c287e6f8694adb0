package indexer

import (
	"net/http"
	"time"

	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupServer exposes the health router on ADDR (":3002" by default).
func (a *App) SetupServer() {
	a.Server = &http.Server{
		Addr:              utils.Env("ADDR", ":3002"),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Router serves liveness, readiness and metrics. Readiness waits for the first pair collection.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusServiceUnavailable
		if a.Ready() {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}
