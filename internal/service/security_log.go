package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"breakbread-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// SecurityLog is the append-only audit trail of non-allowed fraud verdicts.
// Each signature is HMAC-SHA256(key, previous signature | payload), so any
// edit or deletion breaks every later link. It never gates evaluation.
type SecurityLog struct {
	mu      sync.Mutex
	key     []byte
	events  []domain.SecurityEvent
	lastSig string
	entropy *ulid.MonotonicEntropy
	journal *Journal
	log     zerolog.Logger
	now     func() time.Time
}

func NewSecurityLog(key string, journal *Journal, log zerolog.Logger) *SecurityLog {
	return &SecurityLog{
		key:     []byte(key),
		entropy: ulid.Monotonic(rand.Reader, 0),
		journal: journal,
		log:     log,
		now:     time.Now,
	}
}

func (s *SecurityLog) sign(prev, payload string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(prev))
	mac.Write([]byte{'|'})
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Record appends an event for verdict and returns it.
func (s *SecurityLog) Record(accountID string, txID *uuid.UUID, verdict domain.Verdict, detail string) domain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Postgres keeps microseconds; the signed timestamp must survive a round trip.
	now := s.now().UTC().Truncate(time.Microsecond)
	event := domain.SecurityEvent{
		ID:            ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		TransactionID: txID,
		AccountID:     accountID,
		Decision:      verdict.Decision,
		Reason:        verdict.Reason,
		Detail:        detail,
		CreatedAt:     now,
	}
	event.Signature = s.sign(s.lastSig, event.CanonicalPayload())
	s.lastSig = event.Signature
	s.events = append(s.events, event)

	logEvt := s.log.Warn().
		Str("event_id", event.ID).
		Str("account_id", accountID).
		Str("decision", string(verdict.Decision)).
		Str("reason", verdict.Reason)
	if txID != nil {
		logEvt = logEvt.Str("tx_id", txID.String())
	}
	logEvt.Msg("security event recorded")

	s.journal.SecurityEventRecorded(event)
	return event
}

// Restore loads a persisted chain, oldest first.
func (s *SecurityLog) Restore(events []domain.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events[:0], events...)
	s.lastSig = ""
	if n := len(s.events); n > 0 {
		s.lastSig = s.events[n-1].Signature
	}
}

// List returns the newest limit events in chain order; limit <= 0 means all.
func (s *SecurityLog) List(limit int) []domain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	out := make([]domain.SecurityEvent, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// Verify recomputes the whole chain.
func (s *SecurityLog) Verify() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyChain(s.events)
}

func (s *SecurityLog) verifyChain(events []domain.SecurityEvent) bool {
	prev := ""
	for i := range events {
		expected := s.sign(prev, events[i].CanonicalPayload())
		if !hmac.Equal([]byte(expected), []byte(events[i].Signature)) {
			return false
		}
		prev = events[i].Signature
	}
	return true
}
