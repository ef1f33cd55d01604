package hostcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func fixed(c Capacity) Probe {
	return func(context.Context) (Capacity, error) { return c, nil }
}

func TestCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		capacity  Capacity
		workers   int
		warnings  int
		suggested int
	}{
		{"fits", Capacity{AvailableMB: 8192, LogicalCPUs: 8}, 4, 0, 4},
		{"memory short", Capacity{AvailableMB: 1500, LogicalCPUs: 8}, 4, 1, 2},
		{"cpu short", Capacity{AvailableMB: 8192, LogicalCPUs: 2}, 4, 1, 2},
		{"both short", Capacity{AvailableMB: 300, LogicalCPUs: 2}, 6, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			core, logs := observer.New(zap.WarnLevel)
			advice := Check(context.Background(), fixed(tt.capacity), tt.workers, 512, zap.New(core))
			assert.Len(t, advice.Warnings, tt.warnings)
			assert.Equal(t, tt.warnings == 0, advice.OK())
			assert.Equal(t, tt.suggested, advice.Suggested)
			assert.Equal(t, tt.warnings, logs.Len())
		})
	}
}

func TestCheckProbeFailure(t *testing.T) {
	t.Parallel()

	advice := Check(context.Background(), func(context.Context) (Capacity, error) {
		return Capacity{}, errors.New("no /proc")
	}, 3, 512, nil)
	assert.True(t, advice.OK())
	assert.Equal(t, 3, advice.Suggested)
}

func TestSystemProbe(t *testing.T) {
	t.Parallel()

	c, err := SystemProbe(context.Background())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	assert.Positive(t, c.LogicalCPUs)
}
