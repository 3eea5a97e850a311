// Package priority computes the admission priority used when placing crawl
// jobs on the shared queue. The computed value degrades as a tenant's
// in-flight load grows so heavy tenants queue behind light ones instead of
// starving them, while a hard ceiling guarantees no tenant is starved
// indefinitely.
package priority

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"
)

// Ceiling is the numerically worst priority the scheduler will ever assign.
// Smaller values are serviced earlier.
const Ceiling = 50

// TenantLoader reports a tenant's current in-flight job count on the shared
// queue. Satisfied by queue.Client.
type TenantLoader interface {
	TenantLoad(ctx context.Context, tenantID string) (int64, error)
}

// planLimits controls how a plan tier shapes the degradation curve:
// concurrency is the load a tenant can carry before degrading, penalty is
// the per-bucket priority cost once over it.
type planLimits struct {
	concurrency int64
	penalty     int
}

// Higher tiers get more headroom and a gentler penalty, which keeps the tier
// floor property: at equal load a higher tier never computes a numerically
// worse priority than a lower one.
var plans = map[string]planLimits{
	"free":     {concurrency: 2, penalty: 8},
	"hobby":    {concurrency: 4, penalty: 6},
	"standard": {concurrency: 10, penalty: 4},
	"growth":   {concurrency: 50, penalty: 2},
}

var defaultPlan = plans["standard"]

// Scheduler computes admission priorities from tenant load.
type Scheduler struct {
	loader TenantLoader
}

// NewScheduler builds a Scheduler reading load from the given source.
func NewScheduler(loader TenantLoader) *Scheduler {
	return &Scheduler{loader: loader}
}

// ComputePriority returns the queue priority for a new admission. An idle
// tenant gets base back unchanged; load beyond the plan's concurrency
// allowance degrades the value monotonically up to Ceiling. A load lookup
// failure degrades to base, which is suboptimal but still correct.
func (s *Scheduler) ComputePriority(ctx context.Context, tenantID, planTier string, base int) int {
	limits, ok := plans[planTier]
	if !ok {
		limits = defaultPlan
	}

	load, err := s.loader.TenantLoad(ctx, tenantID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("tenant_id", tenantID).
			Msg("Failed to read tenant load, using base priority")
		return base
	}

	if load <= limits.concurrency {
		return base
	}

	excess := load - limits.concurrency
	buckets := int(math.Ceil(float64(excess) / float64(limits.concurrency)))
	computed := base + buckets*limits.penalty

	if computed > Ceiling {
		computed = Ceiling
	}

	return computed
}
