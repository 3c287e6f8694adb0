package utils

import (
	"fmt"
	"io"
)

// BrowserUserAgent is sent to explorer APIs that reject non-browser clients.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/103.0.0.0 Safari/537.36"

// DrainAndClose closes the given ReadCloser.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	// Drain to let the transport reuse the connection.
	_, _ = io.Copy(io.Discard, rc)
	return rc.Close()
}

// ReadBody reads at most limit bytes from rc and closes it.
func ReadBody(rc io.ReadCloser, limit int64) ([]byte, error) {
	defer func() { _ = DrainAndClose(rc) }()
	bz, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(bz)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return bz, nil
}
