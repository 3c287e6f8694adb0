package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetPoolConfigForComponent(t *testing.T) {
	tests := []struct {
		component string
		wantMin   int32
		wantMax   int32
	}{
		{component: "indexer", wantMin: 4, wantMax: 24},
		{component: "query", wantMin: 2, wantMax: 16},
		{component: "other", wantMin: 2, wantMax: 20},
	}
	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			cfg := GetPoolConfigForComponent(tt.component)
			assert.Equal(t, tt.wantMin, cfg.MinConns)
			assert.Equal(t, tt.wantMax, cfg.MaxConns)
			assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
			assert.Equal(t, tt.component, cfg.Component)
		})
	}
}
