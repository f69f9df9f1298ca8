package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shipcrowd-wallet/internal/core/domain"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL error code raised when the
// (company_id, idempotency_key) unique index rejects a duplicate.
const uniqueViolation = "23505"

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, company_id, wallet_id, type, reason, amount, balance_after,
	description, reference_type, reference_id, reference_external_id, actor, idempotency_key, created_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var refType, refID, refExternalID *string
	err := row.Scan(
		&t.ID, &t.CompanyID, &t.WalletID, &t.Type, &t.Reason, &t.Amount, &t.BalanceAfter,
		&t.Description, &refType, &refID, &refExternalID, &t.Actor, &t.IdempotencyKey, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if refType != nil {
		t.Reference = &domain.Reference{Type: *refType}
		if refID != nil {
			t.Reference.ID = *refID
		}
		if refExternalID != nil {
			t.Reference.ExternalID = *refExternalID
		}
	}
	return t, nil
}

// Create appends a ledger row within the mutation transaction. The
// unique index on (company_id, idempotency_key) is the authoritative
// idempotency constraint; a violation surfaces as a duplicate-key error.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, company_id, wallet_id, type, reason, amount, balance_after,
		description, reference_type, reference_id, reference_external_id, actor, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	var refType, refID, refExternalID *string
	if t.Reference != nil {
		refType = &t.Reference.Type
		refID = &t.Reference.ID
		if t.Reference.ExternalID != "" {
			refExternalID = &t.Reference.ExternalID
		}
	}

	_, err := tx.Exec(ctx, query,
		t.ID, t.CompanyID, t.WalletID, t.Type, t.Reason, t.Amount, t.BalanceAfter,
		t.Description, refType, refID, refExternalID, t.Actor, t.IdempotencyKey, t.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.ErrDuplicateIdempotencyKey()
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// GetByIdempotencyKey fetches a transaction by its per-company
// idempotency key. Returns nil, nil when no such key was used.
func (r *TransactionRepo) GetByIdempotencyKey(ctx context.Context, companyID, key string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE company_id = $1 AND idempotency_key = $2`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, companyID, key))
	if err != nil {
		return nil, fmt.Errorf("get transaction by idempotency key: %w", err)
	}
	return t, nil
}

// RefundExists checks if a refund credit already references the original
// transaction.
func (r *TransactionRepo) RefundExists(ctx context.Context, originalTxID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions
		WHERE reference_type = 'transaction' AND reference_id = $1 AND reason = 'refund')`

	var exists bool
	err := r.pool.QueryRow(ctx, query, originalTxID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check refund exists: %w", err)
	}
	return exists, nil
}

// List fetches transactions with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("company_id = $%d", argIdx))
	args = append(args, params.CompanyID)
	argIdx++

	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}
	if params.Reason != nil {
		conditions = append(conditions, fmt.Sprintf("reason = $%d", argIdx))
		args = append(args, *params.Reason)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM transactions " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, limit, params.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		var refType, refID, refExternalID *string
		err := rows.Scan(
			&t.ID, &t.CompanyID, &t.WalletID, &t.Type, &t.Reason, &t.Amount, &t.BalanceAfter,
			&t.Description, &refType, &refID, &refExternalID, &t.Actor, &t.IdempotencyKey, &t.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		if refType != nil {
			t.Reference = &domain.Reference{Type: *refType}
			if refID != nil {
				t.Reference.ID = *refID
			}
			if refExternalID != nil {
				t.Reference.ExternalID = *refExternalID
			}
		}
		transactions = append(transactions, t)
	}
	return transactions, total, rows.Err()
}

// GetStats aggregates credits/debits by reason over the optional window.
func (r *TransactionRepo) GetStats(ctx context.Context, companyID string, from, to *time.Time) (*ports.WalletStats, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("company_id = $%d", argIdx))
	args = append(args, companyID)
	argIdx++

	if from != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *to)
		argIdx++
	}

	query := "SELECT type, reason, COUNT(*), COALESCE(SUM(amount), 0) FROM transactions WHERE " +
		strings.Join(conditions, " AND ") + " GROUP BY type, reason"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get wallet stats: %w", err)
	}
	defer rows.Close()

	stats := &ports.WalletStats{
		CreditsByReason: make(map[domain.TransactionReason]int64),
		DebitsByReason:  make(map[domain.TransactionReason]int64),
	}
	for rows.Next() {
		var txType domain.TransactionType
		var reason domain.TransactionReason
		var count, sum int64
		if err := rows.Scan(&txType, &reason, &count, &sum); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		switch txType {
		case domain.TransactionTypeCredit:
			stats.TotalCredits += sum
			stats.CreditCount += count
			stats.CreditsByReason[reason] += sum
		case domain.TransactionTypeDebit:
			stats.TotalDebits += sum
			stats.DebitCount += count
			stats.DebitsByReason[reason] += sum
		}
	}
	return stats, rows.Err()
}

// SumDebits returns the total debited since the given time. Used by the
// outflow forecast only; no correctness-critical decision reads this.
func (r *TransactionRepo) SumDebits(ctx context.Context, companyID string, since time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE company_id = $1 AND type = 'debit' AND created_at >= $2`

	var total int64
	if err := r.pool.QueryRow(ctx, query, companyID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum debits: %w", err)
	}
	return total, nil
}

// SumRecharges returns the total recharge credits by the given actor
// since the given time. Used for auto-recharge daily/monthly caps.
func (r *TransactionRepo) SumRecharges(ctx context.Context, companyID, actor string, since time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE company_id = $1 AND type = 'credit' AND reason = 'recharge' AND actor = $2 AND created_at >= $3`

	var total int64
	if err := r.pool.QueryRow(ctx, query, companyID, actor, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum recharges: %w", err)
	}
	return total, nil
}
