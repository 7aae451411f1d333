package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/apperror"
	"breakbread-ledger/pkg/metrics"
	"breakbread-ledger/pkg/money"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	idempotencyTTL      = 24 * time.Hour
	idempotencyClaimTTL = 30 * time.Second
)

// TransferService moves money between accounts: fee computation, fraud
// screening, ledger application and the transaction record.
type TransferService struct {
	ledger     *Ledger
	txlog      *TransactionLog
	fraud      *FraudEngine
	security   *SecurityLog
	pool       *RevenuePool
	stepUp     ports.StepUpService
	idempCache ports.IdempotencyCache
	journal    *Journal
	metrics    *metrics.Collector
	feeRate    decimal.Decimal
	log        zerolog.Logger
	now        func() time.Time
}

// NewTransferService wires the processor. stepUp and idempCache may be nil,
// which disables step-up confirmation and idempotent replay respectively.
func NewTransferService(
	ledger *Ledger,
	txlog *TransactionLog,
	fraud *FraudEngine,
	security *SecurityLog,
	pool *RevenuePool,
	stepUp ports.StepUpService,
	idempCache ports.IdempotencyCache,
	journal *Journal,
	m *metrics.Collector,
	feeRate decimal.Decimal,
	log zerolog.Logger,
) *TransferService {
	return &TransferService{
		ledger:     ledger,
		txlog:      txlog,
		fraud:      fraud,
		security:   security,
		pool:       pool,
		stepUp:     stepUp,
		idempCache: idempCache,
		journal:    journal,
		metrics:    m,
		feeRate:    feeRate,
		log:        log,
		now:        time.Now,
	}
}

func idempotencyKey(senderID, key string) string {
	return "transfer:" + senderID + ":" + key
}

// Send runs one transfer. Once a transaction record exists it is returned
// with the result even when err is non-nil.
func (s *TransferService) Send(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	return s.send(ctx, req, domain.TransactionTypeTransfer)
}

// send is Send for any peer transfer type. Request payments carry no fee.
func (s *TransferService) send(ctx context.Context, req ports.TransferRequest, txType domain.TransactionType) (*ports.TransferResult, error) {
	start := time.Now()

	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.SenderID == req.RecipientID {
		return nil, apperror.ErrInvalidRecipient()
	}
	if !s.ledger.Exists(req.SenderID) {
		return nil, apperror.ErrNotFound("account")
	}
	if !s.ledger.Exists(req.RecipientID) {
		return nil, apperror.ErrInvalidRecipient()
	}

	if cached := s.cachedResult(ctx, req); cached != nil {
		return cached, nil
	}
	replay, release, err := s.claim(ctx, req)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}
	defer release()

	fee := decimal.Zero
	if txType == domain.TransactionTypeTransfer {
		fee = money.Percent(req.Amount, s.feeRate)
	}

	// Step-up verification may hit Redis, so it happens before any lock.
	confirmed, stepUpErr := s.verifyStepUp(ctx, req)
	if stepUpErr != nil && apperror.CodeOf(stepUpErr) == apperror.CodeInternal {
		return nil, stepUpErr
	}

	var (
		final   domain.Transaction
		verdict domain.Verdict
		outcome error
	)

	err = s.ledger.WithAccounts([]string{req.SenderID, req.RecipientID}, func(ltx *LedgerTx) error {
		now := ltx.Now()
		pending := domain.NewTransfer(req.SenderID, req.RecipientID, req.Amount, fee, req.Note, now)
		pending.Type = txType
		s.txlog.Append(*pending)

		sender, err := ltx.Account(req.SenderID)
		if err != nil {
			return err
		}
		verdict = s.fraud.Evaluate(FraudCheck{
			Amount:      req.Amount,
			Sender:      sender,
			RecipientID: req.RecipientID,
			History:     s.txlog.BySender(req.SenderID),
			CandidateID: pending.ID,
			Now:         now,
		})

		status := domain.TransactionStatusCompleted
		reason := ""
		switch {
		case verdict.Decision == domain.DecisionBlocked:
			status, reason = domain.TransactionStatusFlagged, verdict.Reason
			if verdict.Reason == domain.ReasonOverLimit {
				outcome = apperror.ErrOverTransactionLimit()
			} else {
				outcome = apperror.ErrFraudBlocked(verdict.Reason)
			}
		case verdict.Decision == domain.DecisionStepUpRequired && !confirmed:
			status, reason = domain.TransactionStatusFlagged, verdict.Reason
			if stepUpErr != nil {
				reason = domain.ReasonStepUpInvalid
			}
			outcome = apperror.ErrStepUpRequired(reason)
		default:
			if err := ltx.Transfer(req.SenderID, req.RecipientID, req.Amount, fee); err != nil {
				status, reason = domain.TransactionStatusFailed, "insufficient_funds"
				outcome = err
			}
		}

		final, err = s.txlog.Finalize(pending.ID, status, reason, s.now().UTC())
		if err != nil {
			return apperror.InternalError(fmt.Errorf("finalize transaction: %w", err))
		}

		ltx.OnCommit(func() {
			if !verdict.IsAllowed() {
				txID := final.ID
				detail := fmt.Sprintf("recipient=%s amount=%s", req.RecipientID, req.Amount.String())
				if verdict.Decision == domain.DecisionStepUpRequired && confirmed {
					detail += " confirmed=true"
				}
				s.security.Record(req.SenderID, &txID, verdict, detail)
			}
			if final.Status == domain.TransactionStatusCompleted {
				s.pool.accrue(fee)
			}
			s.journal.TransactionFinalized(final)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ports.TransferResult{Transaction: &final, Verdict: verdict}
	s.metrics.RecordVerdict(string(verdict.Decision), verdict.Reason)
	s.metrics.RecordTransfer(string(final.Status), time.Since(start))

	logEvt := s.log.Info()
	if final.Status != domain.TransactionStatusCompleted {
		logEvt = s.log.Warn()
	}
	logEvt.
		Str("tx_id", final.ID.String()).
		Str("type", string(txType)).
		Str("sender_id", req.SenderID).
		Str("recipient_id", req.RecipientID).
		Str("amount", req.Amount.String()).
		Str("fee", fee.String()).
		Str("status", string(final.Status)).
		Str("reason", final.Reason).
		Msg("Transfer processed")

	if outcome != nil {
		return result, outcome
	}

	s.cacheResult(ctx, req, result)
	return result, nil
}

func (s *TransferService) verifyStepUp(ctx context.Context, req ports.TransferRequest) (bool, error) {
	if req.StepUpToken == "" || s.stepUp == nil {
		return false, nil
	}
	err := s.stepUp.Verify(ctx, req.StepUpToken, ports.StepUpChallenge{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *TransferService) cachedResult(ctx context.Context, req ports.TransferRequest) *ports.TransferResult {
	if req.IdempotencyKey == "" || s.idempCache == nil {
		return nil
	}
	key := idempotencyKey(req.SenderID, req.IdempotencyKey)
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("idempotency cache lookup failed, processing transfer")
		return nil
	}
	if cached == nil {
		return nil
	}
	var result ports.TransferResult
	if err := json.Unmarshal(cached, &result); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("corrupt idempotency entry, processing transfer")
		return nil
	}
	result.Replayed = true
	return &result
}

// claim reserves the idempotency key so concurrent duplicates cannot both
// execute. A loser replays the winner's cached result, or gets PAY_007 while
// the winner is still running.
func (s *TransferService) claim(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, func(), error) {
	noop := func() {}
	if req.IdempotencyKey == "" || s.idempCache == nil {
		return nil, noop, nil
	}
	key := idempotencyKey(req.SenderID, req.IdempotencyKey)
	ok, err := s.idempCache.Claim(ctx, key, idempotencyClaimTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("idempotency claim failed, processing transfer")
		return nil, noop, nil
	}
	if !ok {
		if cached := s.cachedResult(ctx, req); cached != nil {
			return cached, noop, nil
		}
		return nil, noop, apperror.ErrDuplicateTransaction()
	}
	return nil, func() {
		if err := s.idempCache.Release(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency claim")
		}
	}, nil
}

func (s *TransferService) cacheResult(ctx context.Context, req ports.TransferRequest, result *ports.TransferResult) {
	if req.IdempotencyKey == "" || s.idempCache == nil {
		return
	}
	key := idempotencyKey(req.SenderID, req.IdempotencyKey)
	data, err := json.Marshal(result)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to marshal transfer for idempotency cache")
		return
	}
	if err := s.idempCache.Set(ctx, key, data, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache transfer result")
	}
}
