package controller

import (
	"net/http"

	"go.uber.org/zap"
)

// HandleTakeSnapshot stores the current liquidity ranking as a new snapshot, outside the daily schedule.
func (c *Controller) HandleTakeSnapshot(w http.ResponseWriter, r *http.Request) {
	entries, err := c.App.Aggregator.TakeSnapshot(r.Context())
	if err != nil {
		c.App.Logger.Error("Manual snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"accounts": len(entries)})
}
