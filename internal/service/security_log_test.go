package service

import (
	"testing"
	"time"

	"breakbread-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSecurityLog() *SecurityLog {
	return NewSecurityLog(testChainKey, nil, zerolog.Nop())
}

func blocked(reason string) domain.Verdict {
	return domain.Verdict{Decision: domain.DecisionBlocked, Reason: reason}
}

func TestSecurityLog_RecordChains(t *testing.T) {
	s := newTestSecurityLog()
	txID := uuid.New()

	first := s.Record("u1", &txID, blocked(domain.ReasonOverLimit), "amount=1500.00")
	second := s.Record("u1", nil, blocked(domain.ReasonHighFrequency), "")

	assert.NotEmpty(t, first.Signature)
	assert.NotEqual(t, first.Signature, second.Signature)
	assert.Less(t, first.ID, second.ID, "ULIDs sort by creation")
	assert.Equal(t, s.sign("", first.CanonicalPayload()), first.Signature)
	assert.Equal(t, s.sign(first.Signature, second.CanonicalPayload()), second.Signature)
	assert.True(t, s.Verify())
}

func TestSecurityLog_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(events []domain.SecurityEvent) []domain.SecurityEvent
	}{
		{
			name: "edited reason",
			tamper: func(ev []domain.SecurityEvent) []domain.SecurityEvent {
				ev[1].Reason = domain.ReasonNewRecipient
				return ev
			},
		},
		{
			name: "deleted middle event",
			tamper: func(ev []domain.SecurityEvent) []domain.SecurityEvent {
				return append(ev[:1], ev[2:]...)
			},
		},
		{
			name: "reordered",
			tamper: func(ev []domain.SecurityEvent) []domain.SecurityEvent {
				ev[0], ev[1] = ev[1], ev[0]
				return ev
			},
		},
		{
			name: "forged signature",
			tamper: func(ev []domain.SecurityEvent) []domain.SecurityEvent {
				ev[2].Signature = "00"
				return ev
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSecurityLog()
			s.Record("u1", nil, blocked(domain.ReasonOverLimit), "")
			s.Record("u2", nil, blocked(domain.ReasonHighFrequency), "")
			s.Record("u3", nil, domain.Verdict{Decision: domain.DecisionStepUpRequired, Reason: domain.ReasonNewRecipient}, "")
			require.True(t, s.Verify())

			s.Restore(tt.tamper(s.List(0)))
			assert.False(t, s.Verify())
		})
	}
}

func TestSecurityLog_WrongKeyFailsVerification(t *testing.T) {
	s := newTestSecurityLog()
	s.Record("u1", nil, blocked(domain.ReasonOverLimit), "")

	other := NewSecurityLog("another-key", nil, zerolog.Nop())
	other.Restore(s.List(0))
	assert.False(t, other.Verify())
}

func TestSecurityLog_RestoreContinuesChain(t *testing.T) {
	s := newTestSecurityLog()
	s.Record("u1", nil, blocked(domain.ReasonOverLimit), "")
	s.Record("u1", nil, blocked(domain.ReasonOverLimit), "")

	restored := newTestSecurityLog()
	restored.Restore(s.List(0))
	restored.Record("u2", nil, blocked(domain.ReasonHighFrequency), "")

	assert.Len(t, restored.List(0), 3)
	assert.True(t, restored.Verify())
}

func TestSecurityLog_TimestampSurvivesMicrosecondStorage(t *testing.T) {
	s := newTestSecurityLog()
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC) }
	ev := s.Record("u1", nil, blocked(domain.ReasonOverLimit), "")

	stored := ev
	stored.CreatedAt = ev.CreatedAt.Truncate(time.Microsecond)
	restored := newTestSecurityLog()
	restored.Restore([]domain.SecurityEvent{stored})
	assert.True(t, restored.Verify())
}

func TestSecurityLog_ListLimit(t *testing.T) {
	s := newTestSecurityLog()
	for i := 0; i < 5; i++ {
		s.Record("u1", nil, blocked(domain.ReasonOverLimit), "")
	}
	all := s.List(0)
	last2 := s.List(2)
	require.Len(t, last2, 2)
	assert.Equal(t, all[3].ID, last2[0].ID)
	assert.Equal(t, all[4].ID, last2[1].ID)
	assert.Len(t, s.List(50), 5)
}
