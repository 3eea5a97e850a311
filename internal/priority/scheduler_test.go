//go:build unit || !integration

package priority

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubLoader struct {
	load int64
	err  error
}

func (s *stubLoader) TenantLoad(ctx context.Context, tenantID string) (int64, error) {
	return s.load, s.err
}

func TestIdleTenantKeepsBasePriority(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, tier := range []string{"free", "hobby", "standard", "growth", "unknown-tier"} {
		s := NewScheduler(&stubLoader{load: 0})
		assert.Equal(t, 20, s.ComputePriority(ctx, "tenant-1", tier, 20), "tier %s", tier)
	}
}

func TestPriorityMonotoneInLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	prev := 0
	for load := int64(0); load <= 2000; load += 25 {
		s := NewScheduler(&stubLoader{load: load})
		computed := s.ComputePriority(ctx, "tenant-1", "standard", 20)
		assert.GreaterOrEqual(t, computed, prev, "load %d", load)
		assert.GreaterOrEqual(t, computed, 20)
		prev = computed
	}
}

func TestPriorityBoundedByCeiling(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewScheduler(&stubLoader{load: 1_000_000})
	assert.Equal(t, Ceiling, s.ComputePriority(ctx, "tenant-1", "free", 20))
}

func TestHigherTierNeverWorseAtEqualLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tiers := []string{"free", "hobby", "standard", "growth"}

	for load := int64(0); load <= 500; load += 7 {
		s := NewScheduler(&stubLoader{load: load})

		// Walk from lowest to highest tier; computed priority must never get
		// numerically worse
		var lower int
		for i, tier := range tiers {
			computed := s.ComputePriority(ctx, "tenant-1", tier, 20)
			if i > 0 {
				assert.LessOrEqual(t, computed, lower,
					"tier %s must not be worse than the tier below it at load %d", tier, load)
			}
			lower = computed
		}
	}
}

func TestLoadLookupFailureFallsBackToBase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewScheduler(&stubLoader{err: errors.New("connection refused")})
	assert.Equal(t, 20, s.ComputePriority(ctx, "tenant-1", "free", 20))
}
