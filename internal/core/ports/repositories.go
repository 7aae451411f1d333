package ports

import (
	"context"

	"breakbread-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// The ledger keeps its working state in memory; repositories receive
// snapshots from the journal and are read once at boot to restore state.

// AccountRepository persists account snapshots.
type AccountRepository interface {
	Upsert(ctx context.Context, account *domain.Account) error
	List(ctx context.Context) ([]domain.Account, error)
}

// TransactionRepository persists transaction records. Upsert inserts the
// pending record and later overwrites its terminal status.
type TransactionRepository interface {
	Upsert(ctx context.Context, tx *domain.Transaction) error
	List(ctx context.Context) ([]domain.Transaction, error)
}

// PositionRepository persists holdings keyed by (account, asset).
type PositionRepository interface {
	Upsert(ctx context.Context, position *domain.Position) error
	Delete(ctx context.Context, accountID, assetKey string) error
	List(ctx context.Context) ([]domain.Position, error)
}

// TradeRepository stores executed trades.
type TradeRepository interface {
	Create(ctx context.Context, trade *domain.Trade) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Trade, error)
}

// SecurityEventRepository stores the security audit chain.
type SecurityEventRepository interface {
	Create(ctx context.Context, event *domain.SecurityEvent) error
	List(ctx context.Context) ([]domain.SecurityEvent, error)
}

// RevenueRepository stores allocations and the pool's running balance.
type RevenueRepository interface {
	CreateAllocation(ctx context.Context, allocation *domain.Allocation) error
	SaveAccrued(ctx context.Context, accrued decimal.Decimal) error
	LoadAccrued(ctx context.Context) (decimal.Decimal, error)
}

// AssetRepository persists catalog prices pushed by the price feed.
type AssetRepository interface {
	Upsert(ctx context.Context, asset *domain.Asset) error
	List(ctx context.Context) ([]domain.Asset, error)
}

// MoneyRequestRepository persists money requests and their resolution.
type MoneyRequestRepository interface {
	Upsert(ctx context.Context, request *domain.MoneyRequest) error
	List(ctx context.Context) ([]domain.MoneyRequest, error)
}

// Repositories groups the persistence ports handed to the journal and
// the boot-time restore. A nil Repositories disables persistence.
type Repositories struct {
	Accounts       AccountRepository
	Transactions   TransactionRepository
	Positions      PositionRepository
	Trades         TradeRepository
	SecurityEvents SecurityEventRepository
	Revenue        RevenueRepository
	Assets         AssetRepository
	MoneyRequests  MoneyRequestRepository
}
