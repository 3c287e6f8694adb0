package controller

import (
	"net/http"
	"strconv"

	"github.com/canopy-network/ammx/pkg/db/models/ledger"
)

var (
	errInvalidStartTime = &parseError{msg: "invalid startTime"}
	errInvalidEndTime   = &parseError{msg: "invalid endTime"}
	errInvalidPage      = &parseError{msg: "invalid page"}
	errInvalidKeyName   = &parseError{msg: "invalid keyName, must be Mint, Burn or Swap"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }

// rangeSpec is the optional time window and page shared by the listing routes.
// Zero values mean unbounded and first page.
type rangeSpec struct {
	StartTime int64
	EndTime   int64
	Page      int
}

func parseRangeSpec(r *http.Request) (rangeSpec, error) {
	qs := r.URL.Query()
	var spec rangeSpec

	if v := qs.Get("startTime"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return rangeSpec{}, errInvalidStartTime
		}
		spec.StartTime = n
	}
	if v := qs.Get("endTime"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return rangeSpec{}, errInvalidEndTime
		}
		spec.EndTime = n
	}

	page, err := parsePage(r)
	if err != nil {
		return rangeSpec{}, err
	}
	spec.Page = page

	return spec, nil
}

func parsePage(r *http.Request) (int, error) {
	v := r.URL.Query().Get("page")
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errInvalidPage
	}
	return max(n, 1), nil
}

func parseKeyName(r *http.Request) (string, error) {
	switch v := r.URL.Query().Get("keyName"); v {
	case "", ledger.KeyMint, ledger.KeyBurn, ledger.KeySwap:
		return v, nil
	default:
		return "", errInvalidKeyName
	}
}
