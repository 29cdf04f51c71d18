package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"arb-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- Row lock table ---

// lockTable emulates FOR UPDATE NOWAIT over in-memory rows: a lock is
// acquired with a non-blocking attempt and held until the owning
// transaction commits or rolls back.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]bool
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]bool)}
}

func (l *lockTable) tryLock(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[id] {
		return false
	}
	l.locks[id] = true
	return true
}

func (l *lockTable) unlock(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, id)
}

// --- In-Memory Transactor ---

type inMemoryTransactor struct {
	locks *lockTable
}

func newInMemoryTransactor(locks *lockTable) *inMemoryTransactor {
	return &inMemoryTransactor{locks: locks}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{locks: t.locks}, nil
}

// memTx is a pgx.Tx implementation that tracks row locks acquired
// through it and releases them on commit or rollback.
type memTx struct {
	noopTx
	locks *lockTable

	mu   sync.Mutex
	held []uuid.UUID
	done bool
}

// acquire takes the row lock in NOWAIT fashion.
func (t *memTx) acquire(id uuid.UUID) error {
	if !t.locks.tryLock(id) {
		return domain.ErrRowLocked
	}
	t.mu.Lock()
	t.held = append(t.held, id)
	t.mu.Unlock()
	return nil
}

func (t *memTx) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	for _, id := range t.held {
		t.locks.unlock(id)
	}
	t.held = nil
}

func (t *memTx) Commit(ctx context.Context) error {
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.release()
	return nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }

func lockIn(tx pgx.Tx, id uuid.UUID) error {
	if m, ok := tx.(*memTx); ok {
		return m.acquire(id)
	}
	return nil
}

// --- In-Memory Account Repo ---

type inMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
}

func newInMemoryAccountRepo() *inMemoryAccountRepo {
	return &inMemoryAccountRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *inMemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryAccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	_, ok := r.accounts[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if err := lockIn(tx, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *inMemoryAccountRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Account
	for _, a := range r.accounts {
		if a.ProjectID == projectID {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (r *inMemoryAccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account not found")
	}
	if a.Version != expectedVersion {
		return domain.ErrStaleVersion
	}
	a.Balance = newBalance
	a.Version = newVersion
	a.UpdatedAt = time.Now()
	return nil
}

func (r *inMemoryAccountRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account not found")
	}
	a.Status = status
	return nil
}

// --- In-Memory Credit Repo ---

type inMemoryCreditRepo struct {
	mu      sync.RWMutex
	credits map[uuid.UUID]*domain.PromotionalCredit
}

func newInMemoryCreditRepo() *inMemoryCreditRepo {
	return &inMemoryCreditRepo{credits: make(map[uuid.UUID]*domain.PromotionalCredit)}
}

func (r *inMemoryCreditRepo) Create(ctx context.Context, credit *domain.PromotionalCredit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *credit
	r.credits[credit.ID] = &cp
	return nil
}

func (r *inMemoryCreditRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PromotionalCredit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.credits[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryCreditRepo) GetActive(ctx context.Context, tx pgx.Tx, accountID, projectID uuid.UUID) (*domain.PromotionalCredit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var newest *domain.PromotionalCredit
	for _, c := range r.credits {
		if c.AccountID != accountID || c.ProjectID != projectID || !c.IsActive() {
			continue
		}
		if newest == nil || c.GrantedAt.After(newest.GrantedAt) {
			newest = c
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (r *inMemoryCreditRepo) ListActiveByAccount(ctx context.Context, accountID, projectID uuid.UUID) ([]domain.PromotionalCredit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.PromotionalCredit
	for _, c := range r.credits {
		if c.AccountID == accountID && c.ProjectID == projectID && c.Status == domain.CreditStatusCredited && c.OverlayBalance.Sign() > 0 {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].GrantedAt.After(result[j].GrantedAt) })
	return result, nil
}

func (r *inMemoryCreditRepo) UpdateOverlayBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, newOverlay decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credits[id]
	if !ok {
		return fmt.Errorf("credit not found")
	}
	c.OverlayBalance = newOverlay
	return nil
}

func (r *inMemoryCreditRepo) UpdateRolloverProgress(ctx context.Context, id uuid.UUID, progress decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credits[id]
	if !ok {
		return fmt.Errorf("credit not found")
	}
	c.RolloverProgress = progress
	return nil
}

func (r *inMemoryCreditRepo) Finalize(ctx context.Context, id uuid.UUID, status domain.CreditStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credits[id]
	if !ok {
		return fmt.Errorf("credit not found")
	}
	c.Status = status
	c.FinalizedAt = &at
	return nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	_, ok := r.wallets[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if err := lockIn(tx, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *inMemoryWalletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, total, locked decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.BalanceTotal = total
	w.BalanceLocked = locked
	w.UpdatedAt = time.Now()
	return nil
}

// --- In-Memory Transfer Repo ---

type inMemoryTransferRepo struct {
	mu        sync.RWMutex
	transfers map[uuid.UUID]*domain.TransitTransfer
}

func newInMemoryTransferRepo() *inMemoryTransferRepo {
	return &inMemoryTransferRepo{transfers: make(map[uuid.UUID]*domain.TransitTransfer)}
}

func (r *inMemoryTransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.TransitTransfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.transfers[t.ID] = &cp
	return nil
}

func (r *inMemoryTransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransitTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransferRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.TransitTransfer, error) {
	r.mu.RLock()
	_, ok := r.transfers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if err := lockIn(tx, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *inMemoryTransferRepo) Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransferStatus, confirmedAmount *decimal.Decimal, reason *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return fmt.Errorf("transfer not found")
	}
	t.Status = status
	t.ConfirmedAmount = confirmedAmount
	t.Reason = reason
	t.ResolvedAt = &at
	return nil
}

func (r *inMemoryTransferRepo) ListPendingByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.TransitTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.TransitTransfer
	for _, t := range r.transfers {
		if t.WalletID == walletID && t.Status == domain.TransferStatusPending {
			result = append(result, *t)
		}
	}
	return result, nil
}

// --- In-Memory Settlement Repo ---

type inMemorySettlementRepo struct {
	mu      sync.RWMutex
	entries []domain.SettlementEntry
}

func newInMemorySettlementRepo() *inMemorySettlementRepo {
	return &inMemorySettlementRepo{}
}

func (r *inMemorySettlementRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.SettlementEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *inMemorySettlementRepo) ListByAccount(ctx context.Context, accountID, projectID uuid.UUID) ([]domain.SettlementEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.SettlementEntry
	for _, e := range r.entries {
		if e.AccountID == accountID && e.ProjectID == projectID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *inMemorySettlementRepo) SumTurnover(ctx context.Context, creditID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, e := range r.entries {
		if e.CreditID == nil || *e.CreditID != creditID || e.CreatedAt.Before(since) {
			continue
		}
		total = total.Add(e.Turnover())
	}
	return total, nil
}

// --- In-Memory Operator Repo ---

type inMemoryOperatorRepo struct {
	mu        sync.RWMutex
	operators map[uuid.UUID]*domain.Operator
}

func newInMemoryOperatorRepo() *inMemoryOperatorRepo {
	return &inMemoryOperatorRepo{operators: make(map[uuid.UUID]*domain.Operator)}
}

func (r *inMemoryOperatorRepo) Create(ctx context.Context, o *domain.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.operators {
		if existing.Username == o.Username {
			return fmt.Errorf("username already exists")
		}
	}
	cp := *o
	r.operators[o.ID] = &cp
	return nil
}

func (r *inMemoryOperatorRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.operators[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *inMemoryOperatorRepo) GetByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.operators {
		if o.Username == username {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu   sync.RWMutex
	logs []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func (r *inMemoryAuditRepo) CreateInTx(ctx context.Context, tx pgx.Tx, log *domain.AuditLog) error {
	return r.Create(ctx, log)
}

// --- In-Memory Result Cache ---

type inMemoryResultCache struct {
	mu      sync.RWMutex
	results map[string][]byte
}

func newInMemoryResultCache() *inMemoryResultCache {
	return &inMemoryResultCache{results: make(map[string][]byte)}
}

func (c *inMemoryResultCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.results[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (c *inMemoryResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = value
	return nil
}
