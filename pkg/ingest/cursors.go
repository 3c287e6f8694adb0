package ingest

import "github.com/puzpuzpuz/xsync/v4"

// Cursors remembers the last indexer cursor seen per pair so a cycle resumes
// where the previous one stopped without asking the store.
type Cursors struct {
	m *xsync.Map[string, string]
}

func NewCursors() *Cursors {
	return &Cursors{m: xsync.NewMap[string, string]()}
}

// Get returns the cached cursor for pairAddress. An empty cursor with ok=true means
// the pair restarts from its first event.
func (c *Cursors) Get(pairAddress string) (string, bool) {
	return c.m.Load(pairAddress)
}

// Advance records cursor as the position after a newly fetched page. Empty cursors are ignored.
func (c *Cursors) Advance(pairAddress, cursor string) {
	if cursor == "" {
		return
	}
	c.m.Store(pairAddress, cursor)
}

// Rewind moves the cursor back to the position before an edge that was not stored,
// so the next page fetches that edge again.
func (c *Cursors) Rewind(pairAddress, cursor string) {
	c.m.Store(pairAddress, cursor)
}

// Len reports how many pairs have a cached cursor.
func (c *Cursors) Len() int {
	return c.m.Size()
}
