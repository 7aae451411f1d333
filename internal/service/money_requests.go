package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MoneyRequestBook holds money requests. A request being paid or declined
// is reserved first, so it resolves at most once.
type MoneyRequestBook struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*domain.MoneyRequest
	byAcct   map[string][]*domain.MoneyRequest
	inFlight map[uuid.UUID]bool
	journal  *Journal
	now      func() time.Time
}

func NewMoneyRequestBook(journal *Journal) *MoneyRequestBook {
	return &MoneyRequestBook{
		byID:     make(map[uuid.UUID]*domain.MoneyRequest),
		byAcct:   make(map[string][]*domain.MoneyRequest),
		inFlight: make(map[uuid.UUID]bool),
		journal:  journal,
		now:      time.Now,
	}
}

func (b *MoneyRequestBook) addLocked(r *domain.MoneyRequest) {
	b.byID[r.ID] = r
	b.byAcct[r.RequesterID] = append(b.byAcct[r.RequesterID], r)
	if r.PayerID != r.RequesterID {
		b.byAcct[r.PayerID] = append(b.byAcct[r.PayerID], r)
	}
}

// Create stores a new pending request.
func (b *MoneyRequestBook) Create(r domain.MoneyRequest) domain.MoneyRequest {
	r.ID = uuid.New()
	r.Status = domain.MoneyRequestPending
	r.CreatedAt = b.now().UTC()
	r.TransactionID = nil
	r.ResolvedAt = nil

	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(&r)
	b.journal.MoneyRequestChanged(r)
	return r
}

// Restore loads persisted requests.
func (b *MoneyRequestBook) Restore(reqs []domain.MoneyRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range reqs {
		r := reqs[i]
		b.addLocked(&r)
	}
}

func (b *MoneyRequestBook) Get(id uuid.UUID) (domain.MoneyRequest, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.byID[id]
	if !ok {
		return domain.MoneyRequest{}, false
	}
	return *r, true
}

// ForAccount returns requests the account made or was asked to pay,
// newest first.
func (b *MoneyRequestBook) ForAccount(accountID string) []domain.MoneyRequest {
	b.mu.RLock()
	out := make([]domain.MoneyRequest, 0, len(b.byAcct[accountID]))
	for _, r := range b.byAcct[accountID] {
		out = append(out, *r)
	}
	b.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// reserve claims a pending request addressed to payerID.
func (b *MoneyRequestBook) reserve(id uuid.UUID, payerID string) (domain.MoneyRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byID[id]
	if !ok || r.PayerID != payerID {
		return domain.MoneyRequest{}, apperror.ErrNotFound("money request")
	}
	if r.Status != domain.MoneyRequestPending {
		return domain.MoneyRequest{}, apperror.ErrRequestResolved()
	}
	if b.inFlight[id] {
		return domain.MoneyRequest{}, apperror.ErrDuplicateTransaction()
	}
	b.inFlight[id] = true
	return *r, nil
}

func (b *MoneyRequestBook) release(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inFlight, id)
}

// resolve finishes a reserved request and releases it.
func (b *MoneyRequestBook) resolve(id uuid.UUID, status domain.MoneyRequestStatus, txID *uuid.UUID) (domain.MoneyRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inFlight, id)
	r, ok := b.byID[id]
	if !ok {
		return domain.MoneyRequest{}, apperror.ErrNotFound("money request")
	}
	if err := r.Resolve(status, txID, b.now().UTC()); err != nil {
		return domain.MoneyRequest{}, apperror.ErrRequestResolved()
	}
	b.journal.MoneyRequestChanged(*r)
	return *r, nil
}

// MoneyRequestService lets an account ask another to pay it. Paying runs
// through the transfer processor as a fee-free request transfer, so fraud
// screening and step-up still apply to the payer.
type MoneyRequestService struct {
	book      *MoneyRequestBook
	ledger    *Ledger
	transfers *TransferService
	log       zerolog.Logger
}

func NewMoneyRequestService(book *MoneyRequestBook, ledger *Ledger, transfers *TransferService, log zerolog.Logger) *MoneyRequestService {
	return &MoneyRequestService{book: book, ledger: ledger, transfers: transfers, log: log}
}

// Request records that in.RequesterID asks in.PayerID for in.Amount.
func (s *MoneyRequestService) Request(_ context.Context, in ports.MoneyRequestInput) (*domain.MoneyRequest, error) {
	if !in.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if in.RequesterID == in.PayerID {
		return nil, apperror.ErrInvalidRecipient()
	}
	if !s.ledger.Exists(in.RequesterID) {
		return nil, apperror.ErrNotFound("account")
	}
	if !s.ledger.Exists(in.PayerID) {
		return nil, apperror.ErrInvalidRecipient()
	}

	r := s.book.Create(domain.MoneyRequest{
		RequesterID: in.RequesterID,
		PayerID:     in.PayerID,
		Amount:      in.Amount,
		Note:        in.Note,
	})

	s.log.Info().
		Str("request_id", r.ID.String()).
		Str("requester_id", r.RequesterID).
		Str("payer_id", r.PayerID).
		Str("amount", r.Amount.String()).
		Msg("Money request created")
	return &r, nil
}

// Pay approves a pending request. A payment the transfer processor does not
// complete (flagged, insufficient funds) leaves the request pending.
func (s *MoneyRequestService) Pay(ctx context.Context, in ports.PayMoneyRequestInput) (*ports.MoneyRequestResult, error) {
	r, err := s.book.reserve(in.RequestID, in.PayerID)
	if err != nil {
		return nil, err
	}

	res, err := s.transfers.send(ctx, ports.TransferRequest{
		SenderID:    r.PayerID,
		RecipientID: r.RequesterID,
		Amount:      r.Amount,
		Note:        r.Note,
		StepUpToken: in.StepUpToken,
	}, domain.TransactionTypeRequest)
	if err != nil {
		s.book.release(r.ID)
		if res == nil {
			return nil, err
		}
		current, _ := s.book.Get(r.ID)
		return &ports.MoneyRequestResult{Request: current, Transfer: res}, err
	}

	txID := res.Transaction.ID
	paid, err := s.book.resolve(r.ID, domain.MoneyRequestPaid, &txID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", paid.ID.String()).
		Str("tx_id", txID.String()).
		Msg("Money request paid")
	return &ports.MoneyRequestResult{Request: paid, Transfer: res}, nil
}

// Decline closes a pending request without moving money.
func (s *MoneyRequestService) Decline(_ context.Context, payerID string, requestID uuid.UUID) (*domain.MoneyRequest, error) {
	if _, err := s.book.reserve(requestID, payerID); err != nil {
		return nil, err
	}
	declined, err := s.book.resolve(requestID, domain.MoneyRequestDeclined, nil)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("request_id", requestID.String()).Msg("Money request declined")
	return &declined, nil
}
