package service

import (
	"sort"
	"sync"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// TransactionLog is the append-only record of transfers and deposits. It is
// the history the fraud engine reads for velocity and recipient checks.
type TransactionLog struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*domain.Transaction
	bySender map[string][]*domain.Transaction
	byAcct   map[string][]*domain.Transaction
}

func NewTransactionLog() *TransactionLog {
	return &TransactionLog{
		byID:     make(map[uuid.UUID]*domain.Transaction),
		bySender: make(map[string][]*domain.Transaction),
		byAcct:   make(map[string][]*domain.Transaction),
	}
}

// Append stores a copy of tx. Ids must be unique.
func (l *TransactionLog) Append(tx domain.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(&tx)
}

func (l *TransactionLog) appendLocked(tx *domain.Transaction) {
	l.byID[tx.ID] = tx
	if tx.SenderID != "" {
		l.bySender[tx.SenderID] = append(l.bySender[tx.SenderID], tx)
		l.byAcct[tx.SenderID] = append(l.byAcct[tx.SenderID], tx)
	}
	if tx.RecipientID != "" && tx.RecipientID != tx.SenderID {
		l.byAcct[tx.RecipientID] = append(l.byAcct[tx.RecipientID], tx)
	}
}

// Restore loads persisted records, oldest first.
func (l *TransactionLog) Restore(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CreatedAt.Before(txs[j].CreatedAt) })
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range txs {
		tx := txs[i]
		l.appendLocked(&tx)
	}
}

// Finalize moves a pending record to its terminal status.
func (l *TransactionLog) Finalize(id uuid.UUID, status domain.TransactionStatus, reason string, at time.Time) (domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.byID[id]
	if !ok {
		return domain.Transaction{}, apperror.ErrNotFound("transaction")
	}
	if err := tx.Finalize(status, reason, at); err != nil {
		return *tx, err
	}
	return *tx, nil
}

func (l *TransactionLog) Get(id uuid.UUID) (domain.Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.byID[id]
	if !ok {
		return domain.Transaction{}, false
	}
	return *tx, true
}

// BySender returns the transfers sent by accountID, newest first.
func (l *TransactionLog) BySender(accountID string) []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.bySender[accountID])
}

// ByAccount returns every record the account sent or received, newest first.
func (l *TransactionLog) ByAccount(accountID string) []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.byAcct[accountID])
}

func newestFirst(txs []*domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		out[len(txs)-1-i] = *tx
	}
	return out
}
