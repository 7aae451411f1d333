package service

import (
	"context"
	"fmt"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/apperror"
	"breakbread-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerConfig carries the business parameters of one ledger instance.
type LedgerConfig struct {
	FeeRate          decimal.Decimal
	DefaultLimit     decimal.Decimal
	Fraud            FraudConfig
	CommissionOnSell bool
	Splits           RevenueSplits
	SecurityKey      string
	Assets           []domain.Asset
}

// DefaultLedgerConfig mirrors the configuration defaults.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		FeeRate:      decimal.RequireFromString("0.015"),
		DefaultLimit: decimal.NewFromInt(1000),
		Fraud:        DefaultFraudConfig(),
		Splits:       DefaultRevenueSplits(),
	}
}

// LedgerDeps are the collaborators of a ledger instance. Every field is
// optional.
type LedgerDeps struct {
	StepUp      ports.StepUpService
	Idempotency ports.IdempotencyCache
	Prices      ports.PriceSource
	Journal     *Journal
	Metrics     *metrics.Collector
	Log         zerolog.Logger
}

// LedgerServiceImpl implements ports.LedgerService. It owns all ledger
// state; nothing is package-global, so each instance is independent.
type LedgerServiceImpl struct {
	ledger      *Ledger
	txlog       *TransactionLog
	security    *SecurityLog
	pool        *RevenuePool
	catalog     *Catalog
	transfers   *TransferService
	investments *InvestmentService
	requests    *MoneyRequestBook
	requestSvc  *MoneyRequestService
	journal     *Journal
	log         zerolog.Logger
}

var _ ports.LedgerService = (*LedgerServiceImpl)(nil)

func NewLedgerService(cfg LedgerConfig, deps LedgerDeps) *LedgerServiceImpl {
	ledger := NewLedger(cfg.DefaultLimit, deps.Journal)
	txlog := NewTransactionLog()
	security := NewSecurityLog(cfg.SecurityKey, deps.Journal, deps.Log)
	pool := NewRevenuePool(cfg.Splits, deps.Journal, deps.Metrics)
	catalog := NewCatalog(cfg.Assets, deps.Journal)
	transfers := NewTransferService(
		ledger, txlog, NewFraudEngine(cfg.Fraud), security, pool,
		deps.StepUp, deps.Idempotency, deps.Journal, deps.Metrics, cfg.FeeRate, deps.Log,
	)
	requests := NewMoneyRequestBook(deps.Journal)

	return &LedgerServiceImpl{
		ledger:    ledger,
		txlog:     txlog,
		security:  security,
		pool:      pool,
		catalog:   catalog,
		transfers: transfers,
		investments: NewInvestmentService(
			ledger, catalog, deps.Prices, pool, deps.Journal, deps.Metrics, cfg.CommissionOnSell, deps.Log,
		),
		requests:   requests,
		requestSvc: NewMoneyRequestService(requests, ledger, transfers, deps.Log),
		journal:    deps.Journal,
		log:        deps.Log,
	}
}

// Pool exposes the revenue pool to the allocation scheduler.
func (s *LedgerServiceImpl) Pool() *RevenuePool {
	return s.pool
}

// Restore rebuilds in-memory state from the repositories. It must run
// before the service takes traffic.
func (s *LedgerServiceImpl) Restore(ctx context.Context, repos *ports.Repositories) error {
	if repos == nil {
		return nil
	}
	var (
		accounts  []domain.Account
		positions []domain.Position
		err       error
	)
	if repos.Accounts != nil {
		if accounts, err = repos.Accounts.List(ctx); err != nil {
			return fmt.Errorf("restore accounts: %w", err)
		}
	}
	if repos.Positions != nil {
		if positions, err = repos.Positions.List(ctx); err != nil {
			return fmt.Errorf("restore positions: %w", err)
		}
	}
	s.ledger.Restore(accounts, positions)

	if repos.Transactions != nil {
		txs, err := repos.Transactions.List(ctx)
		if err != nil {
			return fmt.Errorf("restore transactions: %w", err)
		}
		s.txlog.Restore(txs)
	}
	if repos.SecurityEvents != nil {
		events, err := repos.SecurityEvents.List(ctx)
		if err != nil {
			return fmt.Errorf("restore security events: %w", err)
		}
		s.security.Restore(events)
	}
	if repos.Revenue != nil {
		accrued, err := repos.Revenue.LoadAccrued(ctx)
		if err != nil {
			return fmt.Errorf("restore revenue pool: %w", err)
		}
		s.pool.restore(accrued)
	}
	if repos.Assets != nil {
		assets, err := repos.Assets.List(ctx)
		if err != nil {
			return fmt.Errorf("restore assets: %w", err)
		}
		s.catalog.Restore(assets)
	}
	if repos.MoneyRequests != nil {
		reqs, err := repos.MoneyRequests.List(ctx)
		if err != nil {
			return fmt.Errorf("restore money requests: %w", err)
		}
		s.requests.Restore(reqs)
	}

	s.log.Info().
		Int("accounts", len(accounts)).
		Int("positions", len(positions)).
		Msg("Ledger state restored")
	return nil
}

func (s *LedgerServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	return s.transfers.Send(ctx, req)
}

func (s *LedgerServiceImpl) Invest(ctx context.Context, req ports.InvestRequest) (*ports.InvestResult, error) {
	return s.investments.Invest(ctx, req)
}

func (s *LedgerServiceImpl) AllocateRevenue(_ context.Context) (domain.Allocation, error) {
	a := s.pool.Allocate()
	if !a.IsZero() {
		s.log.Info().
			Str("allocation_id", a.ID.String()).
			Str("total", a.Total.String()).
			Msg("Revenue allocated")
	}
	return a, nil
}

func (s *LedgerServiceImpl) DiversificationScore(allocation map[string]decimal.Decimal) int {
	return Score(allocation)
}

func (s *LedgerServiceImpl) GetAccount(_ context.Context, accountID string) (*domain.Account, error) {
	acc, err := s.ledger.Account(accountID)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *LedgerServiceImpl) GetBalance(_ context.Context, accountID string) (decimal.Decimal, error) {
	acc, err := s.ledger.Account(accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (s *LedgerServiceImpl) GetPositions(_ context.Context, accountID string) ([]domain.Position, error) {
	return s.ledger.Positions(accountID)
}

// PortfolioValuation prices every holding and reports its unrealized P&L.
func (s *LedgerServiceImpl) PortfolioValuation(ctx context.Context, accountID string) (*ports.PortfolioValuation, error) {
	return s.investments.Valuation(ctx, accountID)
}

func (s *LedgerServiceImpl) ListTransactions(_ context.Context, accountID string) ([]domain.Transaction, error) {
	if !s.ledger.Exists(accountID) {
		return nil, apperror.ErrNotFound("account")
	}
	return s.txlog.ByAccount(accountID), nil
}

// OpenAccount creates an account; an initial balance is booked as a deposit.
func (s *LedgerServiceImpl) OpenAccount(ctx context.Context, req ports.OpenAccountRequest) (*domain.Account, error) {
	if req.InitialBalance.IsNegative() {
		return nil, apperror.ErrInvalidAmount()
	}
	acc, err := s.ledger.Open(domain.Account{
		ID:               req.ID,
		Balance:          decimal.Zero,
		TransactionLimit: req.Limit,
		Verified:         req.Verified,
	})
	if err != nil {
		return nil, err
	}

	if req.InitialBalance.IsPositive() {
		if _, err := s.Deposit(ctx, acc.ID, req.InitialBalance, "opening balance"); err != nil {
			return nil, err
		}
	}

	s.log.Info().Str("account_id", acc.ID).Msg("Account opened")
	return s.GetAccount(ctx, acc.ID)
}

// Deposit credits funds from outside the ledger and records it.
func (s *LedgerServiceImpl) Deposit(_ context.Context, accountID string, amount decimal.Decimal, note string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	var final domain.Transaction
	err := s.ledger.WithAccounts([]string{accountID}, func(ltx *LedgerTx) error {
		if err := ltx.Credit(accountID, amount); err != nil {
			return err
		}
		now := ltx.Now()
		final = domain.Transaction{
			ID:          uuid.New(),
			Type:        domain.TransactionTypeDeposit,
			RecipientID: accountID,
			Amount:      amount,
			Fee:         decimal.Zero,
			Note:        note,
			Status:      domain.TransactionStatusPending,
			CreatedAt:   now,
		}
		if err := final.Finalize(domain.TransactionStatusCompleted, "", now); err != nil {
			return apperror.InternalError(err)
		}
		s.txlog.Append(final)
		ltx.OnCommit(func() { s.journal.TransactionFinalized(final) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tx_id", final.ID.String()).
		Str("account_id", accountID).
		Str("amount", amount.String()).
		Msg("Deposit processed successfully")
	return &final, nil
}

func (s *LedgerServiceImpl) ListAssets(_ context.Context) []domain.Asset {
	return s.catalog.List()
}

func (s *LedgerServiceImpl) UpsertAsset(_ context.Context, asset domain.Asset) (*domain.Asset, error) {
	a, err := s.catalog.Upsert(asset)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("asset", a.Key).Str("unit_price", a.UnitPrice.String()).Msg("Asset price updated")
	return &a, nil
}

func (s *LedgerServiceImpl) RevenueAccrued(_ context.Context) decimal.Decimal {
	return s.pool.Accrued()
}

func (s *LedgerServiceImpl) PortfolioScore(_ context.Context, accountID string) (*ports.PortfolioScore, error) {
	positions, err := s.ledger.Positions(accountID)
	if err != nil {
		return nil, err
	}
	allocation := AllocationFromPositions(positions, s.catalog.Snapshot())
	return &ports.PortfolioScore{Score: Score(allocation), Allocation: allocation}, nil
}

func (s *LedgerServiceImpl) SecurityEvents(_ context.Context, limit int) (*ports.SecurityLogView, error) {
	return &ports.SecurityLogView{
		Events:     s.security.List(limit),
		ChainValid: s.security.Verify(),
	}, nil
}

func (s *LedgerServiceImpl) RequestMoney(ctx context.Context, in ports.MoneyRequestInput) (*domain.MoneyRequest, error) {
	return s.requestSvc.Request(ctx, in)
}

func (s *LedgerServiceImpl) ListMoneyRequests(_ context.Context, accountID string) ([]domain.MoneyRequest, error) {
	if !s.ledger.Exists(accountID) {
		return nil, apperror.ErrNotFound("account")
	}
	return s.requests.ForAccount(accountID), nil
}

func (s *LedgerServiceImpl) PayMoneyRequest(ctx context.Context, in ports.PayMoneyRequestInput) (*ports.MoneyRequestResult, error) {
	return s.requestSvc.Pay(ctx, in)
}

func (s *LedgerServiceImpl) DeclineMoneyRequest(ctx context.Context, payerID string, requestID uuid.UUID) (*domain.MoneyRequest, error) {
	return s.requestSvc.Decline(ctx, payerID, requestID)
}
