package registry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/singleflight"
)

type snapshot struct {
	version uint64
	pairs   []Pair
	index   map[string]int
}

// Registry holds the published pair list and the token metadata cache.
// Readers always observe a complete list: Replace swaps the whole snapshot at once.
type Registry struct {
	current atomic.Pointer[snapshot]
	tokens  *xsync.Map[string, Token]
	loads   singleflight.Group
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{tokens: xsync.NewMap[string, Token]()}
	r.current.Store(&snapshot{index: map[string]int{}})
	return r
}

// Pairs returns the current pair list. The slice is shared and must not be modified.
func (r *Registry) Pairs() []Pair {
	return r.current.Load().pairs
}

// Pair looks a pair up by its normalized address.
func (r *Registry) Pair(address string) (Pair, bool) {
	s := r.current.Load()
	i, ok := s.index[address]
	if !ok {
		return Pair{}, false
	}
	return s.pairs[i], true
}

// Version increases by one on every Replace.
func (r *Registry) Version() uint64 {
	return r.current.Load().version
}

// Replace publishes pairs as the new list and returns its version. A pair address
// listed more than once keeps its first entry.
func (r *Registry) Replace(pairs []Pair) uint64 {
	cp := make([]Pair, 0, len(pairs))
	index := make(map[string]int, len(pairs))
	for _, p := range pairs {
		if _, dup := index[p.PairAddress]; dup {
			continue
		}
		index[p.PairAddress] = len(cp)
		cp = append(cp, p)
	}
	for {
		old := r.current.Load()
		next := &snapshot{version: old.version + 1, pairs: cp, index: index}
		if r.current.CompareAndSwap(old, next) {
			return next.version
		}
	}
}

// Token returns cached metadata for address.
func (r *Registry) Token(address string) (Token, bool) {
	return r.tokens.Load(address)
}

// TokenOrLoad returns cached metadata for address, calling load once on a miss.
// Concurrent misses for the same address share a single load; failures are not cached.
func (r *Registry) TokenOrLoad(ctx context.Context, address string, load func(ctx context.Context, address string) (Token, error)) (Token, error) {
	if t, ok := r.tokens.Load(address); ok {
		return t, nil
	}
	v, err, _ := r.loads.Do(address, func() (interface{}, error) {
		if t, ok := r.tokens.Load(address); ok {
			return t, nil
		}
		t, err := load(ctx, address)
		if err != nil {
			return Token{}, err
		}
		t.Address = address
		r.tokens.Store(address, t)
		return t, nil
	})
	if err != nil {
		return Token{}, fmt.Errorf("token %s: %w", address, err)
	}
	return v.(Token), nil
}
