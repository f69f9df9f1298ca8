package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"shipcrowd-wallet/internal/core/domain"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByCompanyID(ctx context.Context, companyID string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findByCompany(companyID), nil
}

func (r *inMemoryWalletRepo) GetByCompanyIDForUpdate(ctx context.Context, tx pgx.Tx, companyID string) (*domain.Wallet, error) {
	return r.GetByCompanyID(ctx, companyID)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return apperror.ErrWalletNotFound()
	}
	w.Balance = newBalance
	w.UpdatedAt = time.Now()
	return nil
}

func (r *inMemoryWalletRepo) UpdateLowBalanceThreshold(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, threshold int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return apperror.ErrWalletNotFound()
	}
	w.LowBalanceThreshold = threshold
	w.UpdatedAt = time.Now()
	return nil
}

func (r *inMemoryWalletRepo) UpdateAutoRecharge(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, settings domain.AutoRechargeSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return apperror.ErrWalletNotFound()
	}
	w.AutoRecharge = settings
	w.UpdatedAt = time.Now()
	return nil
}

func (r *inMemoryWalletRepo) ListAutoRechargeEnabled(ctx context.Context) ([]domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Wallet
	for _, w := range r.wallets {
		if w.AutoRecharge.Enabled {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, nil
}

func (r *inMemoryWalletRepo) findByCompany(companyID string) *domain.Wallet {
	for _, w := range r.wallets {
		if w.CompanyID == companyID {
			cp := *w
			return &cp
		}
	}
	return nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions []*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.IdempotencyKey != nil {
		for _, existing := range r.transactions {
			if existing.CompanyID == t.CompanyID &&
				existing.IdempotencyKey != nil &&
				*existing.IdempotencyKey == *t.IdempotencyKey {
				return apperror.ErrDuplicateIdempotencyKey()
			}
		}
	}
	cp := *t
	r.transactions = append(r.transactions, &cp)
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) GetByIdempotencyKey(ctx context.Context, companyID, key string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.CompanyID == companyID && t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) RefundExists(ctx context.Context, originalTxID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.Reason == domain.ReasonRefund &&
			t.Reference != nil &&
			t.Reference.Type == "transaction" &&
			t.Reference.ID == originalTxID.String() {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Transaction
	for _, t := range r.transactions {
		if t.CompanyID != params.CompanyID {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		if params.Reason != nil && t.Reason != *params.Reason {
			continue
		}
		if params.From != nil && t.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && t.CreatedAt.After(*params.To) {
			continue
		}
		matched = append(matched, *t)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	start := params.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *inMemoryTransactionRepo) GetStats(ctx context.Context, companyID string, from, to *time.Time) (*ports.WalletStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &ports.WalletStats{
		CreditsByReason: make(map[domain.TransactionReason]int64),
		DebitsByReason:  make(map[domain.TransactionReason]int64),
	}
	for _, t := range r.transactions {
		if t.CompanyID != companyID {
			continue
		}
		if from != nil && t.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && t.CreatedAt.After(*to) {
			continue
		}
		if t.Type == domain.TransactionTypeCredit {
			stats.TotalCredits += t.Amount
			stats.CreditCount++
			stats.CreditsByReason[t.Reason] += t.Amount
		} else {
			stats.TotalDebits += t.Amount
			stats.DebitCount++
			stats.DebitsByReason[t.Reason] += t.Amount
		}
	}
	return stats, nil
}

func (r *inMemoryTransactionRepo) SumDebits(ctx context.Context, companyID string, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, t := range r.transactions {
		if t.CompanyID == companyID && t.Type == domain.TransactionTypeDebit && !t.CreatedAt.Before(since) {
			total += t.Amount
		}
	}
	return total, nil
}

func (r *inMemoryTransactionRepo) SumRecharges(ctx context.Context, companyID, actor string, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, t := range r.transactions {
		if t.CompanyID == companyID &&
			t.Type == domain.TransactionTypeCredit &&
			t.Reason == domain.ReasonRecharge &&
			t.Actor == actor &&
			!t.CreatedAt.Before(since) {
			total += t.Amount
		}
	}
	return total, nil
}

// ledgerSum replays the full ledger for a company. Test helper backing
// the balance conservation checks.
func (r *inMemoryTransactionRepo) ledgerSum(companyID string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, t := range r.transactions {
		if t.CompanyID != companyID {
			continue
		}
		if t.Type == domain.TransactionTypeCredit {
			sum += t.Amount
		} else {
			sum -= t.Amount
		}
	}
	return sum
}

func (r *inMemoryTransactionRepo) count(companyID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.transactions {
		if t.CompanyID == companyID {
			n++
		}
	}
	return n
}

// --- In-Memory Dispute Repo ---

type inMemoryDisputeRepo struct {
	mu       sync.RWMutex
	disputes map[uuid.UUID]*domain.WeightDispute
}

func newInMemoryDisputeRepo() *inMemoryDisputeRepo {
	return &inMemoryDisputeRepo{disputes: make(map[uuid.UUID]*domain.WeightDispute)}
}

func (r *inMemoryDisputeRepo) Create(ctx context.Context, d *domain.WeightDispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.disputes[d.ID] = &cp
	return nil
}

func (r *inMemoryDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WeightDispute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.disputes[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *inMemoryDisputeRepo) Update(ctx context.Context, d *domain.WeightDispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.disputes[d.ID]; !ok {
		return apperror.ErrDisputeNotFound()
	}
	cp := *d
	r.disputes[d.ID] = &cp
	return nil
}

func (r *inMemoryDisputeRepo) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]domain.WeightDispute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WeightDispute
	for _, d := range r.disputes {
		if d.Status == domain.DisputeStatusOpen && !d.RespondBy.After(asOf) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RespondBy.Before(out[j].RespondBy) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *inMemoryDisputeRepo) ListPendingPayments(ctx context.Context, companyID string) ([]domain.WeightDispute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WeightDispute
	for _, d := range r.disputes {
		if d.CompanyID == companyID && d.PaymentStatus == domain.DisputePaymentPending {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- In-Memory Idempotency Cache ---

type inMemoryIdempotencyCache struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func newInMemoryIdempotencyCache() *inMemoryIdempotencyCache {
	return &inMemoryIdempotencyCache{values: make(map[string][]byte)}
}

func (c *inMemoryIdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (c *inMemoryIdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

// --- Stub external collaborators ---

// stubPaymentProvider captures every charge and returns deterministic
// charge ids derived from the call count.
type stubPaymentProvider struct {
	mu      sync.Mutex
	charges []int64
	fail    bool
}

func (p *stubPaymentProvider) Charge(ctx context.Context, paymentMethodRef string, amount int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return "", apperror.ErrPaymentCaptureFailed(nil)
	}
	p.charges = append(p.charges, amount)
	return "ch_" + uuid.NewString()[:8], nil
}

type stubSettlementSource struct {
	total int64
	err   error
}

func (s *stubSettlementSource) UpcomingSettlements(ctx context.Context, companyID string, within time.Duration) (int64, error) {
	return s.total, s.err
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
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
