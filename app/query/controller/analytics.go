package controller

import (
	"net/http"

	"github.com/canopy-network/ammx/pkg/analytics"
	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HandleAnalytics returns the cached daily TVL and volume series.
func (c *Controller) HandleAnalytics(w http.ResponseWriter, _ *http.Request) {
	tvls, volumes := c.App.DayCache.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"tvls": tvls, "volumes": volumes})
}

// HandlePairs returns listed pairs with their volume and fee figures.
// Query parameters:
//   - startTime, endTime: unix seconds bounding feesTotal (optional); volume24h, volume7d
//     and fees24h always trail the current time
//   - page: 1-based page (default 1)
func (c *Controller) HandlePairs(w http.ResponseWriter, r *http.Request) {
	spec, err := parseRangeSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := c.App.Aggregator.Pairs(r.Context(), analytics.PairsRequest{
		StartTime: spec.StartTime,
		EndTime:   spec.EndTime,
		Page:      spec.Page,
	})
	if err != nil {
		c.queryFailed(w, "pairs", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleTransactions returns a page of ledger rows together with the fee summary of the window.
// Query parameters:
//   - startTime, endTime: unix seconds (optional)
//   - keyName: Mint, Burn or Swap (optional)
//   - page: 1-based page (default 1)
func (c *Controller) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	spec, err := parseRangeSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keyName, err := parseKeyName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		page    analytics.TransactionsPage
		summary analytics.TransactionsSummary
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		page, err = c.App.Aggregator.Transactions(ctx, analytics.TransactionsRequest{
			StartTime: spec.StartTime,
			EndTime:   spec.EndTime,
			KeyName:   keyName,
			Page:      spec.Page,
		})
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = c.App.Aggregator.TransactionsSummary(ctx, db.TimeRange{Start: spec.StartTime, End: spec.EndTime})
		return err
	})
	if err := g.Wait(); err != nil {
		c.queryFailed(w, "transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": page, "summary": summary})
}

// HandleTopTVLAccounts returns the accounts providing the most liquidity.
func (c *Controller) HandleTopTVLAccounts(w http.ResponseWriter, r *http.Request) {
	tvls, err := c.App.Aggregator.TVLsByAccount(r.Context(), analytics.AccountsLimit)
	if err != nil {
		c.queryFailed(w, "top tvl accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tvls": tvls})
}

// HandleTVLAccountRank returns one account's liquidity rank. Returns 404 when the account holds no liquidity.
func (c *Controller) HandleTVLAccountRank(w http.ResponseWriter, r *http.Request) {
	account := utils.NormalizeHex(mux.Vars(r)["account"])
	rank, err := c.App.Aggregator.RankTVLByAccount(r.Context(), account)
	if err != nil {
		c.queryFailed(w, "tvl account rank", err)
		return
	}
	if rank == nil {
		writeError(w, http.StatusNotFound, "account not ranked")
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

// HandleTopVolumeAccounts returns the accounts with the most swap volume.
func (c *Controller) HandleTopVolumeAccounts(w http.ResponseWriter, r *http.Request) {
	volumes, err := c.App.Aggregator.VolumesByAccount(r.Context(), analytics.AccountsLimit)
	if err != nil {
		c.queryFailed(w, "top volume accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"volumes": volumes})
}

func (c *Controller) HandleVolumeAccountRank(w http.ResponseWriter, r *http.Request) {
	account := utils.NormalizeHex(mux.Vars(r)["account"])
	rank, err := c.App.Aggregator.RankVolumeByAccount(r.Context(), account)
	if err != nil {
		c.queryFailed(w, "volume account rank", err)
		return
	}
	if rank == nil {
		writeError(w, http.StatusNotFound, "account not ranked")
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

// HandleSnapshotAccounts pages the merged snapshot leaderboard.
func (c *Controller) HandleSnapshotAccounts(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := c.App.Aggregator.SnapshotAccounts(r.Context(), page)
	if err != nil {
		c.queryFailed(w, "snapshot accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *Controller) HandleSnapshotAccountRank(w http.ResponseWriter, r *http.Request) {
	account := utils.NormalizeHex(mux.Vars(r)["account"])
	rank, err := c.App.Aggregator.RankSnapshotByAccount(r.Context(), account)
	if err != nil {
		c.queryFailed(w, "snapshot account rank", err)
		return
	}
	if rank == nil {
		writeError(w, http.StatusNotFound, "account not in any snapshot")
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

func (c *Controller) queryFailed(w http.ResponseWriter, what string, err error) {
	c.App.Logger.Error("Analytics query failed", zap.String("query", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "query failed")
}
