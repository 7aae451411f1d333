package service

import (
	"sort"
	"sync"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

// accountState is the unit of locking: a balance plus its positions.
type accountState struct {
	mu        sync.Mutex
	account   domain.Account
	positions map[string]domain.Position
}

// Ledger owns every account balance and position. All mutations go through
// WithAccounts, which locks the touched accounts in sorted id order.
type Ledger struct {
	mu           sync.RWMutex // guards the accounts map, not the accounts
	accounts     map[string]*accountState
	defaultLimit decimal.Decimal
	journal      *Journal
	now          func() time.Time
}

func NewLedger(defaultLimit decimal.Decimal, journal *Journal) *Ledger {
	return &Ledger{
		accounts:     make(map[string]*accountState),
		defaultLimit: defaultLimit,
		journal:      journal,
		now:          time.Now,
	}
}

// Open registers a new account. Ids are opaque and must be unique.
func (l *Ledger) Open(acc domain.Account) (domain.Account, error) {
	if acc.ID == "" {
		return domain.Account{}, apperror.Validation("account id is required")
	}
	if acc.Balance.IsNegative() {
		return domain.Account{}, apperror.ErrInvalidAmount()
	}
	if !acc.TransactionLimit.IsPositive() {
		acc.TransactionLimit = l.defaultLimit
	}
	now := l.now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[acc.ID]; exists {
		return domain.Account{}, apperror.ErrDuplicateAccount()
	}
	l.accounts[acc.ID] = &accountState{account: acc, positions: make(map[string]domain.Position)}
	l.journal.AccountOpened(acc)
	return acc, nil
}

// Restore loads persisted state without journaling it again.
func (l *Ledger) Restore(accounts []domain.Account, positions []domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, acc := range accounts {
		l.accounts[acc.ID] = &accountState{account: acc, positions: make(map[string]domain.Position)}
	}
	for _, p := range positions {
		if st, ok := l.accounts[p.AccountID]; ok {
			st.positions[p.AssetKey] = p
		}
	}
}

func (l *Ledger) state(id string) (*accountState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.accounts[id]
	return st, ok
}

// Exists reports whether an account with id is open.
func (l *Ledger) Exists(id string) bool {
	_, ok := l.state(id)
	return ok
}

// Account returns a snapshot of one account.
func (l *Ledger) Account(id string) (domain.Account, error) {
	st, ok := l.state(id)
	if !ok {
		return domain.Account{}, apperror.ErrNotFound("account")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.account, nil
}

// Positions returns an account's holdings sorted by asset key.
func (l *Ledger) Positions(id string) ([]domain.Position, error) {
	st, ok := l.state(id)
	if !ok {
		return nil, apperror.ErrNotFound("account")
	}
	st.mu.Lock()
	out := make([]domain.Position, 0, len(st.positions))
	for _, p := range st.positions {
		out = append(out, p)
	}
	st.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AssetKey < out[j].AssetKey })
	return out, nil
}

// IDs lists every account id.
func (l *Ledger) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	return ids
}

// TotalBalance sums all balances under a consistent lock of every account.
func (l *Ledger) TotalBalance() decimal.Decimal {
	total := decimal.Zero
	_ = l.WithAccounts(l.IDs(), func(tx *LedgerTx) error {
		for _, st := range tx.states {
			total = total.Add(st.account.Balance)
		}
		return nil
	})
	return total
}

// Debit removes amount from one account.
func (l *Ledger) Debit(id string, amount decimal.Decimal) error {
	return l.WithAccounts([]string{id}, func(tx *LedgerTx) error {
		return tx.Debit(id, amount)
	})
}

// Credit adds amount to one account.
func (l *Ledger) Credit(id string, amount decimal.Decimal) error {
	return l.WithAccounts([]string{id}, func(tx *LedgerTx) error {
		return tx.Credit(id, amount)
	})
}

// Transfer debits amount+fee from one account and credits amount to another.
func (l *Ledger) Transfer(from, to string, amount, fee decimal.Decimal) error {
	return l.WithAccounts([]string{from, to}, func(tx *LedgerTx) error {
		return tx.Transfer(from, to, amount, fee)
	})
}

// WithAccounts runs fn as one atomic unit over the given accounts. Locks are
// taken in sorted id order. If fn fails or panics every mutation it made is
// undone; on success the changes and any OnCommit hooks are journaled before
// the locks are released.
func (l *Ledger) WithAccounts(ids []string, fn func(tx *LedgerTx) error) (err error) {
	ids = uniqueSorted(ids)

	tx := &LedgerTx{
		states:  make(map[string]*accountState, len(ids)),
		touched: make(map[string]bool),
		moved:   make(map[positionKey]bool),
		now:     l.now().UTC(),
	}
	for _, id := range ids {
		st, ok := l.state(id)
		if !ok {
			return apperror.ErrNotFound("account")
		}
		tx.states[id] = st
	}

	for _, id := range ids {
		tx.states[id].mu.Lock()
	}
	defer func() {
		for i := len(ids) - 1; i >= 0; i-- {
			tx.states[ids[i]].mu.Unlock()
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			tx.rollbackTo(0)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollbackTo(0)
		return err
	}

	l.commit(tx)
	return nil
}

func (l *Ledger) commit(tx *LedgerTx) {
	ids := make([]string, 0, len(tx.touched))
	for id := range tx.touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		l.journal.AccountChanged(tx.states[id].account)
	}

	keys := make([]positionKey, 0, len(tx.moved))
	for k := range tx.moved {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].account != keys[j].account {
			return keys[i].account < keys[j].account
		}
		return keys[i].asset < keys[j].asset
	})
	for _, k := range keys {
		if p, ok := tx.states[k.account].positions[k.asset]; ok {
			l.journal.PositionChanged(p)
		} else {
			l.journal.PositionClosed(k.account, k.asset)
		}
	}

	for _, hook := range tx.hooks {
		hook()
	}
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

type positionKey struct {
	account string
	asset   string
}

// LedgerTx is the view of the locked accounts handed to WithAccounts.
// It must not be retained after fn returns.
type LedgerTx struct {
	states  map[string]*accountState
	undo    []func()
	touched map[string]bool
	moved   map[positionKey]bool
	hooks   []func()
	now     time.Time
}

func (tx *LedgerTx) locked(id string) (*accountState, error) {
	st, ok := tx.states[id]
	if !ok {
		return nil, apperror.ErrNotFound("account")
	}
	return st, nil
}

func (tx *LedgerTx) rollbackTo(mark int) {
	for i := len(tx.undo) - 1; i >= mark; i-- {
		tx.undo[i]()
	}
	tx.undo = tx.undo[:mark]
}

// Now is the timestamp shared by every change in this unit.
func (tx *LedgerTx) Now() time.Time {
	return tx.now
}

// Account returns a snapshot of a locked account.
func (tx *LedgerTx) Account(id string) (domain.Account, error) {
	st, err := tx.locked(id)
	if err != nil {
		return domain.Account{}, err
	}
	return st.account, nil
}

func (tx *LedgerTx) setBalance(st *accountState, balance decimal.Decimal) {
	prev := st.account
	tx.undo = append(tx.undo, func() { st.account = prev })
	st.account.Balance = balance
	st.account.UpdatedAt = tx.now
	tx.touched[st.account.ID] = true
}

// Debit fails with InsufficientFunds when the balance does not cover amount.
func (tx *LedgerTx) Debit(id string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperror.ErrInvalidAmount()
	}
	st, err := tx.locked(id)
	if err != nil {
		return err
	}
	if !st.account.CanCover(amount) {
		return apperror.ErrInsufficientFunds()
	}
	tx.setBalance(st, st.account.Balance.Sub(amount))
	return nil
}

// Credit never fails for a non-negative amount on a locked account.
func (tx *LedgerTx) Credit(id string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperror.ErrInvalidAmount()
	}
	st, err := tx.locked(id)
	if err != nil {
		return err
	}
	tx.setBalance(st, st.account.Balance.Add(amount))
	return nil
}

// Transfer debits amount+fee from one account and credits amount to the
// other. The fee leaves the pair; the caller routes it to the revenue pool.
func (tx *LedgerTx) Transfer(from, to string, amount, fee decimal.Decimal) error {
	if amount.IsNegative() || fee.IsNegative() {
		return apperror.ErrInvalidAmount()
	}
	mark := len(tx.undo)
	if err := tx.Debit(from, amount.Add(fee)); err != nil {
		tx.rollbackTo(mark)
		return err
	}
	if err := tx.Credit(to, amount); err != nil {
		tx.rollbackTo(mark)
		return err
	}
	return nil
}

// Position returns the holding for (id, asset). The zero position, keyed
// to the account and asset, is returned when none exists.
func (tx *LedgerTx) Position(id, asset string) (domain.Position, bool, error) {
	st, err := tx.locked(id)
	if err != nil {
		return domain.Position{}, false, err
	}
	p, ok := st.positions[asset]
	if !ok {
		return domain.Position{AccountID: id, AssetKey: asset}, false, nil
	}
	return p, true, nil
}

func (tx *LedgerTx) savePosition(st *accountState, key positionKey) {
	prev, had := st.positions[key.asset]
	tx.undo = append(tx.undo, func() {
		if had {
			st.positions[key.asset] = prev
		} else {
			delete(st.positions, key.asset)
		}
	})
	tx.moved[key] = true
}

// PutPosition stores p, replacing any previous holding of the same asset.
func (tx *LedgerTx) PutPosition(p domain.Position) error {
	st, err := tx.locked(p.AccountID)
	if err != nil {
		return err
	}
	tx.savePosition(st, positionKey{account: p.AccountID, asset: p.AssetKey})
	p.UpdatedAt = tx.now
	st.positions[p.AssetKey] = p
	return nil
}

// RemovePosition drops a holding.
func (tx *LedgerTx) RemovePosition(id, asset string) error {
	st, err := tx.locked(id)
	if err != nil {
		return err
	}
	tx.savePosition(st, positionKey{account: id, asset: asset})
	delete(st.positions, asset)
	return nil
}

// OnCommit registers fn to run after a successful unit, still under lock.
func (tx *LedgerTx) OnCommit(fn func()) {
	tx.hooks = append(tx.hooks, fn)
}
