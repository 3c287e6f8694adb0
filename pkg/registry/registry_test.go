package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReplace(t *testing.T) {
	r := New()
	assert.Empty(t, r.Pairs())
	assert.Equal(t, uint64(0), r.Version())

	v := r.Replace([]Pair{{PairAddress: "0xa"}, {PairAddress: "0xb"}})
	assert.Equal(t, uint64(1), v)
	assert.Len(t, r.Pairs(), 2)

	p, ok := r.Pair("0xb")
	require.True(t, ok)
	assert.Equal(t, "0xb", p.PairAddress)

	r.Replace(nil)
	assert.Equal(t, uint64(2), r.Version())
	_, ok = r.Pair("0xb")
	assert.False(t, ok)
}

func TestRegistryReplaceCopiesInput(t *testing.T) {
	r := New()
	in := []Pair{{PairAddress: "0xa"}}
	r.Replace(in)
	in[0].PairAddress = "0xz"

	_, ok := r.Pair("0xa")
	assert.True(t, ok)
	assert.Equal(t, "0xa", r.Pairs()[0].PairAddress)
}

func TestRegistryReplaceKeepsFirstOfDuplicateAddress(t *testing.T) {
	r := New()
	r.Replace([]Pair{
		{PairAddress: "0xa", APR: "1"},
		{PairAddress: "0xa", APR: "2"},
		{PairAddress: "0xb"},
	})

	pairs := r.Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, "0xa", pairs[0].PairAddress)
	assert.Equal(t, "0xb", pairs[1].PairAddress)

	p, ok := r.Pair("0xa")
	require.True(t, ok)
	assert.Equal(t, "1", p.APR)
	p, ok = r.Pair("0xb")
	require.True(t, ok)
	assert.Equal(t, "0xb", p.PairAddress)
}

func TestTokenOrLoadCollapsesConcurrentLoads(t *testing.T) {
	r := New()
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context, address string) (Token, error) {
		calls.Add(1)
		<-release
		return Token{Name: "Ether", Symbol: "ETH", Decimals: 18}, nil
	}

	var wg sync.WaitGroup
	results := make([]Token, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := r.TokenOrLoad(context.Background(), "0x1", load)
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, tok := range results {
		assert.Equal(t, "0x1", tok.Address)
		assert.Equal(t, "ETH", tok.Symbol)
	}

	_, err := r.TokenOrLoad(context.Background(), "0x1", load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenOrLoadDoesNotCacheFailures(t *testing.T) {
	r := New()
	fail := true
	load := func(ctx context.Context, address string) (Token, error) {
		if fail {
			return Token{}, errors.New("boom")
		}
		return Token{Symbol: "USDC"}, nil
	}

	_, err := r.TokenOrLoad(context.Background(), "0x2", load)
	require.Error(t, err)
	_, ok := r.Token("0x2")
	assert.False(t, ok)

	fail = false
	tok, err := r.TokenOrLoad(context.Background(), "0x2", load)
	require.NoError(t, err)
	assert.Equal(t, "USDC", tok.Symbol)
}

func TestMockAPR(t *testing.T) {
	assert.Equal(t, "16", MockAPR("0x0123ff"))
	assert.Equal(t, "4", MockAPR("0xab10"))
	assert.Equal(t, "2", MockAPR("0x5"))
	assert.Equal(t, "0", MockAPR("0x00"))
}
