package service

import (
	"context"
	"sync"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RevenueSplits are the community, research and emergency shares of an
// allocation. They sum to 1.
type RevenueSplits struct {
	Community decimal.Decimal
	Research  decimal.Decimal
	Emergency decimal.Decimal
}

func DefaultRevenueSplits() RevenueSplits {
	return RevenueSplits{
		Community: decimal.RequireFromString("0.40"),
		Research:  decimal.RequireFromString("0.35"),
		Emergency: decimal.RequireFromString("0.25"),
	}
}

// RevenuePool accumulates transfer fees and trade commissions until an
// allocation drains it.
type RevenuePool struct {
	mu      sync.Mutex
	accrued decimal.Decimal
	splits  RevenueSplits
	journal *Journal
	metrics *metrics.Collector
	now     func() time.Time
}

func NewRevenuePool(splits RevenueSplits, journal *Journal, m *metrics.Collector) *RevenuePool {
	return &RevenuePool{
		accrued: decimal.Zero,
		splits:  splits,
		journal: journal,
		metrics: m,
		now:     time.Now,
	}
}

// accrue is only reachable from the transfer and investment paths.
func (p *RevenuePool) accrue(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accrued = p.accrued.Add(amount)
	p.journal.RevenueAccrued(p.accrued)
	p.metrics.SetRevenuePool(p.accrued.InexactFloat64())
}

func (p *RevenuePool) restore(accrued decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accrued = accrued
	p.metrics.SetRevenuePool(accrued.InexactFloat64())
}

// Accrued returns the current pool balance.
func (p *RevenuePool) Accrued() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accrued
}

// Allocate splits the pool and resets it. An empty pool yields a zero
// allocation and is left untouched.
func (p *RevenuePool) Allocate() domain.Allocation {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.accrued.IsPositive() {
		return domain.Allocation{Total: decimal.Zero, Community: decimal.Zero, Research: decimal.Zero, Emergency: decimal.Zero}
	}

	total := p.accrued
	a := domain.Allocation{
		ID:        uuid.New(),
		Total:     total,
		Community: total.Mul(p.splits.Community),
		Research:  total.Mul(p.splits.Research),
		Emergency: total.Mul(p.splits.Emergency),
		CreatedAt: p.now().UTC(),
	}
	p.accrued = decimal.Zero

	p.journal.RevenueAllocated(a)
	p.metrics.RecordAllocation(total.InexactFloat64())
	p.metrics.SetRevenuePool(0)
	return a
}

// AllocationScheduler drains the pool on a fixed interval.
type AllocationScheduler struct {
	pool     *RevenuePool
	interval time.Duration
	log      zerolog.Logger
}

func NewAllocationScheduler(pool *RevenuePool, interval time.Duration, log zerolog.Logger) *AllocationScheduler {
	return &AllocationScheduler{pool: pool, interval: interval, log: log}
}

// Run blocks until ctx is done. A non-positive interval returns immediately.
func (s *AllocationScheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("Revenue allocation scheduler started")
	for {
		select {
		case <-ticker.C:
			a := s.pool.Allocate()
			if a.IsZero() {
				s.log.Debug().Msg("Revenue pool empty, nothing to allocate")
				continue
			}
			s.log.Info().
				Str("allocation_id", a.ID.String()).
				Str("total", a.Total.String()).
				Msg("Scheduled revenue allocation completed")
		case <-ctx.Done():
			s.log.Info().Msg("Revenue allocation scheduler stopping")
			return
		}
	}
}
