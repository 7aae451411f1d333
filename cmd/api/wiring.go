package main

import (
	"context"
	"fmt"

	"breakbread-ledger/config"
	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/internal/service"
	"breakbread-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ledgerConfig translates the validated file/env config into the
// service's decimal-typed parameters.
func ledgerConfig(cfg *config.Config) service.LedgerConfig {
	count, window := cfg.Fraud.Velocity()
	community, research, emergency := cfg.Revenue.Splits()

	assets := make([]domain.Asset, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		assets = append(assets, domain.Asset{
			Key:        a.Key,
			Name:       a.Name,
			Category:   a.Category,
			UnitPrice:  decimal.RequireFromString(a.UnitPrice),
			FeePercent: decimal.RequireFromString(a.FeePercent),
		})
	}

	return service.LedgerConfig{
		FeeRate:      cfg.Ledger.FeeRateDecimal(),
		DefaultLimit: cfg.Ledger.DefaultLimitDecimal(),
		Fraud: service.FraudConfig{
			VelocityMaxCount: count,
			VelocityWindow:   window,
			StepUpThreshold:  cfg.Fraud.StepUpThresholdDecimal(),
		},
		CommissionOnSell: cfg.Investment.CommissionOnSell,
		Splits: service.RevenueSplits{
			Community: community,
			Research:  research,
			Emergency: emergency,
		},
		SecurityKey: cfg.Security.ChainKey,
		Assets:      assets,
	}
}

// seedAccounts opens the configured accounts, skipping ids that already
// exist (restored from Postgres or seeded on an earlier boot).
func seedAccounts(ctx context.Context, svc ports.LedgerService, seeds []config.SeedAccount, log zerolog.Logger) (int, error) {
	opened := 0
	for _, s := range seeds {
		req := ports.OpenAccountRequest{
			ID:             s.ID,
			InitialBalance: decimal.RequireFromString(s.Balance),
			Verified:       s.Verified,
		}
		if s.Limit != "" {
			req.Limit = decimal.RequireFromString(s.Limit)
		}

		_, err := svc.OpenAccount(ctx, req)
		if apperror.Is(err, apperror.CodeDuplicateAccount) {
			log.Debug().Str("account_id", s.ID).Msg("Seed account already exists")
			continue
		}
		if err != nil {
			return opened, fmt.Errorf("seed account %s: %w", s.ID, err)
		}
		opened++
	}
	return opened, nil
}
