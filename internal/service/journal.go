package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/metrics"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const journalWriteTimeout = 5 * time.Second

type journalEntry struct {
	name    string
	persist func(ctx context.Context, repos *ports.Repositories) error
	event   *domain.Event
}

// Journal moves persistence and event publishing off the accounting path.
// Entries are enqueued while ledger locks are held, so the single worker
// observes them in commit order. Enqueueing never blocks: when the buffer is
// full the entry is dropped and counted. A nil *Journal discards everything.
type Journal struct {
	repos     *ports.Repositories
	publisher ports.EventPublisher
	queue     chan journalEntry
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	metrics   *metrics.Collector
	log       zerolog.Logger
}

// NewJournal starts the journal worker. repos and publisher may be nil.
func NewJournal(repos *ports.Repositories, publisher ports.EventPublisher, bufferSize int, m *metrics.Collector, log zerolog.Logger) *Journal {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	j := &Journal{
		repos:     repos,
		publisher: publisher,
		queue:     make(chan journalEntry, bufferSize),
		done:      make(chan struct{}),
		metrics:   m,
		log:       log,
	}
	go j.worker()
	return j
}

func (j *Journal) worker() {
	defer close(j.done)
	for entry := range j.queue {
		j.process(entry)
	}
}

func (j *Journal) process(entry journalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if entry.persist != nil && j.repos != nil {
		if err := entry.persist(ctx, j.repos); err != nil {
			j.metrics.RecordJournalDrop()
			j.log.Error().Err(err).Str("entry", entry.name).Msg("failed to persist journal entry")
		}
	}

	if entry.event != nil && j.publisher != nil {
		if err := j.publisher.Publish(ctx, *entry.event); err != nil {
			j.metrics.RecordJournalDrop()
			j.log.Warn().Err(err).Str("event", string(entry.event.Type)).Msg("failed to publish event")
		}
	}
}

func (j *Journal) enqueue(entry journalEntry) {
	if j == nil {
		return
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.log.Warn().Str("entry", entry.name).Msg("journal closed, dropping entry")
		return
	}
	select {
	case j.queue <- entry:
	default:
		j.metrics.RecordJournalDrop()
		j.log.Error().Str("entry", entry.name).Msg("journal buffer full, dropping entry")
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (j *Journal) Close(ctx context.Context) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	select {
	case <-j.done:
		j.log.Info().Msg("Journal drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining journal: %w", ctx.Err())
	}
}

func newEvent(t domain.EventType, key string, at time.Time, payload interface{}) *domain.Event {
	return &domain.Event{Type: t, Key: key, OccurredAt: at, Payload: payload}
}

func (j *Journal) AccountOpened(acc domain.Account) {
	j.enqueue(journalEntry{
		name: "account_opened",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.Accounts == nil {
				return nil
			}
			return r.Accounts.Upsert(ctx, &acc)
		},
		event: newEvent(domain.EventAccountOpened, acc.ID, acc.CreatedAt, acc),
	})
}

func (j *Journal) AccountChanged(acc domain.Account) {
	j.enqueue(journalEntry{
		name: "account",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.Accounts == nil {
				return nil
			}
			return r.Accounts.Upsert(ctx, &acc)
		},
	})
}

func (j *Journal) PositionChanged(p domain.Position) {
	j.enqueue(journalEntry{
		name: "position",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.Positions == nil {
				return nil
			}
			return r.Positions.Upsert(ctx, &p)
		},
	})
}

func (j *Journal) PositionClosed(accountID, assetKey string) {
	j.enqueue(journalEntry{
		name: "position_closed",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.Positions == nil {
				return nil
			}
			return r.Positions.Delete(ctx, accountID, assetKey)
		},
	})
}

func (j *Journal) TransactionFinalized(tx domain.Transaction) {
	key := tx.SenderID
	if key == "" {
		key = tx.RecipientID
	}
	at := tx.CreatedAt
	if tx.FinalizedAt != nil {
		at = *tx.FinalizedAt
	}
	j.enqueue(journalEntry{
		name: "transaction",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.Transactions == nil {
				return nil
			}
			return r.Transactions.Upsert(ctx, &tx)
		},
		event: newEvent(domain.EventTransactionFinalized, key, at, tx),
	})
}

func (j *Journal) TradeExecuted(t domain.Trade) {
	j.enqueue(journalEntry{
		name: "trade",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.Trades == nil {
				return nil
			}
			return r.Trades.Create(ctx, &t)
		},
		event: newEvent(domain.EventTradeExecuted, t.AccountID, t.CreatedAt, t),
	})
}

func (j *Journal) SecurityEventRecorded(e domain.SecurityEvent) {
	j.enqueue(journalEntry{
		name: "security_event",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.SecurityEvents == nil {
				return nil
			}
			return r.SecurityEvents.Create(ctx, &e)
		},
		event: newEvent(domain.EventSecurityFlagged, e.AccountID, e.CreatedAt, e),
	})
}

func (j *Journal) RevenueAccrued(accrued decimal.Decimal) {
	j.enqueue(journalEntry{
		name: "revenue_accrued",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.Revenue == nil {
				return nil
			}
			return r.Revenue.SaveAccrued(ctx, accrued)
		},
	})
}

func (j *Journal) RevenueAllocated(a domain.Allocation) {
	j.enqueue(journalEntry{
		name: "revenue_allocated",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.Revenue == nil {
				return nil
			}
			if err := r.Revenue.CreateAllocation(ctx, &a); err != nil {
				return err
			}
			return r.Revenue.SaveAccrued(ctx, decimal.Zero)
		},
		event: newEvent(domain.EventRevenueAllocated, "revenue", a.CreatedAt, a),
	})
}

func (j *Journal) AssetUpdated(a domain.Asset) {
	j.enqueue(journalEntry{
		name: "asset",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.Assets == nil {
				return nil
			}
			return r.Assets.Upsert(ctx, &a)
		},
	})
}

func (j *Journal) MoneyRequestChanged(mr domain.MoneyRequest) {
	at := mr.CreatedAt
	if mr.ResolvedAt != nil {
		at = *mr.ResolvedAt
	}
	j.enqueue(journalEntry{
		name: "money_request",
		persist: func(ctx context.Context, r *ports.Repositories) error {
			if r.MoneyRequests == nil {
				return nil
			}
			return r.MoneyRequests.Upsert(ctx, &mr)
		},
		event: newEvent(domain.EventMoneyRequestUpdated, mr.PayerID, at, mr),
	})
}
