package service

import (
	"context"
	"errors"
	"fmt"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/apperror"
	"breakbread-ledger/pkg/metrics"
	"breakbread-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// InvestmentService executes buys and sells against the catalog snapshot
// and keeps average-cost positions.
type InvestmentService struct {
	ledger           *Ledger
	catalog          *Catalog
	prices           ports.PriceSource
	pool             *RevenuePool
	journal          *Journal
	metrics          *metrics.Collector
	commissionOnSell bool
	log              zerolog.Logger
}

// NewInvestmentService wires the executor. When prices is nil the catalog
// is the price source.
func NewInvestmentService(
	ledger *Ledger,
	catalog *Catalog,
	prices ports.PriceSource,
	pool *RevenuePool,
	journal *Journal,
	m *metrics.Collector,
	commissionOnSell bool,
	log zerolog.Logger,
) *InvestmentService {
	if prices == nil {
		prices = catalog
	}
	return &InvestmentService{
		ledger:           ledger,
		catalog:          catalog,
		prices:           prices,
		pool:             pool,
		journal:          journal,
		metrics:          m,
		commissionOnSell: commissionOnSell,
		log:              log,
	}
}

// Invest dispatches on side: Amount is cash for a buy and units for a sell.
func (s *InvestmentService) Invest(ctx context.Context, req ports.InvestRequest) (*ports.InvestResult, error) {
	switch req.Side {
	case domain.TradeSideBuy:
		return s.Buy(ctx, req.AccountID, req.AssetKey, req.Amount)
	case domain.TradeSideSell:
		return s.Sell(ctx, req.AccountID, req.AssetKey, req.Amount)
	default:
		return nil, apperror.Validation("side must be buy or sell")
	}
}

// quote resolves the asset and its unit price before any lock is taken.
func (s *InvestmentService) quote(ctx context.Context, assetKey string) (domain.Asset, decimal.Decimal, error) {
	asset, ok := s.catalog.Asset(assetKey)
	if !ok {
		return domain.Asset{}, decimal.Zero, apperror.ErrNotFound("asset")
	}
	price, err := s.prices.UnitPrice(ctx, assetKey)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return domain.Asset{}, decimal.Zero, err
		}
		return domain.Asset{}, decimal.Zero, apperror.InternalError(fmt.Errorf("price lookup %s: %w", assetKey, err))
	}
	if !price.IsPositive() {
		return domain.Asset{}, decimal.Zero, apperror.InternalError(fmt.Errorf("non-positive price for %s", assetKey))
	}
	return asset, price, nil
}

// Buy spends cash plus commission on units at the snapshot price.
func (s *InvestmentService) Buy(ctx context.Context, accountID, assetKey string, cash decimal.Decimal) (*ports.InvestResult, error) {
	if !cash.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	asset, price, err := s.quote(ctx, assetKey)
	if err != nil {
		return nil, err
	}

	units := cash.Div(price)
	commission := money.Percent(cash, asset.FeePercent)
	required := cash.Add(commission)

	var result ports.InvestResult
	err = s.ledger.WithAccounts([]string{accountID}, func(ltx *LedgerTx) error {
		if err := ltx.Debit(accountID, required); err != nil {
			return err
		}

		pos, _, err := ltx.Position(accountID, assetKey)
		if err != nil {
			return err
		}
		pos.ApplyBuy(units, price)
		if err := ltx.PutPosition(pos); err != nil {
			return err
		}

		acc, _ := ltx.Account(accountID)
		trade := domain.Trade{
			ID:         uuid.New(),
			AccountID:  accountID,
			AssetKey:   assetKey,
			Side:       domain.TradeSideBuy,
			Units:      units,
			UnitPrice:  price,
			Cash:       cash,
			Commission: commission,
			CreatedAt:  ltx.Now(),
		}
		pos.UpdatedAt = ltx.Now()
		result = ports.InvestResult{Trade: trade, NewBalance: acc.Balance, Position: &pos}

		ltx.OnCommit(func() {
			s.pool.accrue(commission)
			s.journal.TradeExecuted(trade)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTrade(string(domain.TradeSideBuy), assetKey)
	s.log.Info().
		Str("trade_id", result.Trade.ID.String()).
		Str("account_id", accountID).
		Str("asset", assetKey).
		Str("units", units.String()).
		Str("commission", commission.String()).
		Msg("Buy executed successfully")
	return &result, nil
}

// Sell converts units back to cash. Average cost is unchanged and an
// emptied position is removed.
func (s *InvestmentService) Sell(ctx context.Context, accountID, assetKey string, units decimal.Decimal) (*ports.InvestResult, error) {
	if !units.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	asset, price, err := s.quote(ctx, assetKey)
	if err != nil {
		return nil, err
	}

	proceeds := money.Round(units.Mul(price))
	if !proceeds.IsPositive() {
		// would give up units for nothing
		return nil, apperror.ErrInvalidAmount()
	}
	commission := decimal.Zero
	if s.commissionOnSell {
		commission = money.Percent(proceeds, asset.FeePercent)
	}
	net := proceeds.Sub(commission)

	var result ports.InvestResult
	err = s.ledger.WithAccounts([]string{accountID}, func(ltx *LedgerTx) error {
		pos, exists, err := ltx.Position(accountID, assetKey)
		if err != nil {
			return err
		}
		if !exists {
			return apperror.ErrInsufficientUnits()
		}
		if err := pos.ApplySell(units); err != nil {
			return apperror.ErrInsufficientUnits()
		}

		if pos.IsEmpty() {
			err = ltx.RemovePosition(accountID, assetKey)
		} else {
			err = ltx.PutPosition(pos)
		}
		if err != nil {
			return err
		}
		if err := ltx.Credit(accountID, net); err != nil {
			return err
		}

		acc, _ := ltx.Account(accountID)
		trade := domain.Trade{
			ID:         uuid.New(),
			AccountID:  accountID,
			AssetKey:   assetKey,
			Side:       domain.TradeSideSell,
			Units:      units,
			UnitPrice:  price,
			Cash:       proceeds,
			Commission: commission,
			CreatedAt:  ltx.Now(),
		}
		result = ports.InvestResult{Trade: trade, NewBalance: acc.Balance}
		if !pos.IsEmpty() {
			pos.UpdatedAt = ltx.Now()
			result.Position = &pos
		}

		ltx.OnCommit(func() {
			s.pool.accrue(commission)
			s.journal.TradeExecuted(trade)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTrade(string(domain.TradeSideSell), assetKey)
	s.log.Info().
		Str("trade_id", result.Trade.ID.String()).
		Str("account_id", accountID).
		Str("asset", assetKey).
		Str("units", units.String()).
		Str("proceeds", proceeds.String()).
		Msg("Sell executed successfully")
	return &result, nil
}

// Valuation prices every holding of accountID and reports unrealized gain
// or loss against average cost. Holdings in assets no longer in the catalog
// are carried at cost.
func (s *InvestmentService) Valuation(ctx context.Context, accountID string) (*ports.PortfolioValuation, error) {
	positions, err := s.ledger.Positions(accountID)
	if err != nil {
		return nil, err
	}

	out := &ports.PortfolioValuation{Positions: make([]ports.PositionValuation, 0, len(positions))}
	for _, p := range positions {
		price := p.AvgCost
		if _, ok := s.catalog.Asset(p.AssetKey); ok {
			if _, price, err = s.quote(ctx, p.AssetKey); err != nil {
				return nil, err
			}
		}
		v := ports.PositionValuation{
			Position:      p,
			UnitPrice:     price,
			MarketValue:   p.MarketValue(price),
			CostBasis:     p.CostBasis(),
			UnrealizedPnL: p.UnrealizedPnL(price),
		}
		out.Positions = append(out.Positions, v)
		out.MarketValue = out.MarketValue.Add(v.MarketValue)
		out.CostBasis = out.CostBasis.Add(v.CostBasis)
		out.UnrealizedPnL = out.UnrealizedPnL.Add(v.UnrealizedPnL)
	}
	return out, nil
}
