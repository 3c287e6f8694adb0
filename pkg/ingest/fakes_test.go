package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/feed"
)

type memStore struct {
	mu           sync.Mutex
	events       map[string]ledger.PairEvent
	transactions map[string]ledger.PairTransaction
	skipped      map[string]bool
	latest       map[string]string
	insertErr    map[string]error
	latestCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		events:       map[string]ledger.PairEvent{},
		transactions: map[string]ledger.PairTransaction{},
		skipped:      map[string]bool{},
		latest:       map[string]string{},
		insertErr:    map[string]error{},
	}
}

func (s *memStore) InsertPairEvent(_ context.Context, ev *ledger.PairEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[ev.EventID]; err != nil {
		return false, err
	}
	if _, ok := s.events[ev.EventID]; ok {
		return false, nil
	}
	ev.ID = int64(len(s.events) + 1)
	s.events[ev.EventID] = *ev
	return true, nil
}

func (s *memStore) HasPairEvent(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[eventID]
	return ok, nil
}

func (s *memStore) LatestCursor(_ context.Context, pairAddress string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestCalls++
	return s.latest[pairAddress], nil
}

func (s *memStore) PendingEvents(_ context.Context, keyNames []string, limit int) ([]ledger.PairEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := map[string]bool{}
	for _, k := range keyNames {
		kinds[k] = true
	}
	var out []ledger.PairEvent
	for id, ev := range s.events {
		if !kinds[ev.KeyName] || s.skipped[id] {
			continue
		}
		if _, done := s.transactions[id]; done {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTime.Before(out[j].EventTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SkipEvents(_ context.Context, eventIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range eventIDs {
		s.skipped[id] = true
	}
	return nil
}

func (s *memStore) InsertPairTransaction(_ context.Context, tx *ledger.PairTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.EventID]; ok {
		return false, nil
	}
	s.transactions[tx.EventID] = *tx
	return true, nil
}

func (s *memStore) addEvent(id, kind, txHash, data string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = ledger.PairEvent{
		EventID:         id,
		PairAddress:     "0xpair",
		TransactionHash: txHash,
		KeyName:         kind,
		EventData:       data,
		EventTime:       at,
	}
}

// pagedFeed serves events per pair and records the cursors it was asked for.
type pagedFeed struct {
	mu     sync.Mutex
	pages  map[string][]feed.Page
	errs   map[string]error
	afters map[string][]string
}

func newPagedFeed() *pagedFeed {
	return &pagedFeed{pages: map[string][]feed.Page{}, errs: map[string]error{}, afters: map[string][]string{}}
}

func (f *pagedFeed) Events(_ context.Context, req feed.EventsRequest) (feed.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Order != feed.OrderAsc || req.First != pageSize {
		return feed.Page{}, errors.New("unexpected request shape")
	}
	f.afters[req.FromAddress] = append(f.afters[req.FromAddress], req.After)
	if err := f.errs[req.FromAddress]; err != nil {
		return feed.Page{}, err
	}
	queue := f.pages[req.FromAddress]
	if len(queue) == 0 {
		return feed.Page{}, nil
	}
	f.pages[req.FromAddress] = queue[1:]
	return queue[0], nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []PairEventsNotice
}

func (p *recordingPublisher) PublishJSON(_ context.Context, channel string, message interface{}) {
	if channel != PairEventsChannel {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message.(PairEventsNotice))
}

type senderMap map[string]string

func (m senderMap) TransactionSender(_ context.Context, txHash string) (string, error) {
	s, ok := m[txHash]
	if !ok {
		return "", errors.New("transaction not found")
	}
	return s, nil
}
