package service

import (
	"time"

	"breakbread-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FraudConfig holds the thresholds of the transfer heuristics.
type FraudConfig struct {
	VelocityMaxCount int
	VelocityWindow   time.Duration
	StepUpThreshold  decimal.Decimal
}

// DefaultFraudConfig is 10 transfers per 24h and step-up above 500.00.
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		VelocityMaxCount: 10,
		VelocityWindow:   24 * time.Hour,
		StepUpThreshold:  decimal.NewFromInt(500),
	}
}

// FraudCheck is the input of one evaluation. History is the sender's
// transfer log and may include CandidateID, which is never counted.
type FraudCheck struct {
	Amount      decimal.Decimal
	Sender      domain.Account
	RecipientID string
	History     []domain.Transaction
	CandidateID uuid.UUID
	Now         time.Time
}

// FraudRule inspects a check and returns a verdict when it fires.
type FraudRule struct {
	Name   string
	Detect func(FraudCheck) (domain.Verdict, bool)
}

// FraudEngine evaluates rules in order; the first that fires wins.
type FraudEngine struct {
	cfg   FraudConfig
	rules []FraudRule
}

func NewFraudEngine(cfg FraudConfig) *FraudEngine {
	e := &FraudEngine{cfg: cfg}
	e.rules = []FraudRule{
		{Name: domain.ReasonOverLimit, Detect: e.detectOverLimit},
		{Name: domain.ReasonHighFrequency, Detect: e.detectHighFrequency},
		{Name: domain.ReasonNewRecipient, Detect: e.detectNewRecipient},
	}
	return e
}

// Evaluate is pure: it reads only the check.
func (e *FraudEngine) Evaluate(c FraudCheck) domain.Verdict {
	for _, rule := range e.rules {
		if v, hit := rule.Detect(c); hit {
			return v
		}
	}
	return domain.Allowed()
}

func (e *FraudEngine) detectOverLimit(c FraudCheck) (domain.Verdict, bool) {
	if c.Amount.GreaterThan(c.Sender.TransactionLimit) {
		return domain.Verdict{Decision: domain.DecisionBlocked, Reason: domain.ReasonOverLimit}, true
	}
	return domain.Verdict{}, false
}

func (e *FraudEngine) detectHighFrequency(c FraudCheck) (domain.Verdict, bool) {
	since := c.Now.Add(-e.cfg.VelocityWindow)
	count := 0
	for _, tx := range c.History {
		if tx.ID == c.CandidateID || !tx.IsPeerTransfer() || tx.SenderID != c.Sender.ID {
			continue
		}
		if tx.CreatedAt.After(since) {
			count++
		}
	}
	if count >= e.cfg.VelocityMaxCount {
		return domain.Verdict{Decision: domain.DecisionBlocked, Reason: domain.ReasonHighFrequency}, true
	}
	return domain.Verdict{}, false
}

func (e *FraudEngine) detectNewRecipient(c FraudCheck) (domain.Verdict, bool) {
	if !c.Amount.GreaterThan(e.cfg.StepUpThreshold) {
		return domain.Verdict{}, false
	}
	for _, tx := range c.History {
		if tx.ID != c.CandidateID &&
			tx.IsPeerTransfer() &&
			tx.RecipientID == c.RecipientID &&
			tx.Status == domain.TransactionStatusCompleted {
			return domain.Verdict{}, false
		}
	}
	return domain.Verdict{Decision: domain.DecisionStepUpRequired, Reason: domain.ReasonNewRecipient}, true
}
