package repository

import (
	"context"

	"primanota/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type TransactionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTransactionRepository(db *pgxpool.Pool, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, logger: logger}
}

// SaveOutcome reports a partial-success batched save.
type SaveOutcome struct {
	Saved      int
	Duplicates int
	Failed     int
	Errors     []string
}

// InsertBatchIdempotent persists transactions in fixed-size groups with
// ON CONFLICT DO NOTHING on (account_id, dedup_hash): a replayed import
// yields duplicates, not errors. One failing group does not block the
// next; the outcome reports saved, duplicate and failed counts separately.
func (r *TransactionRepository) InsertBatchIdempotent(ctx context.Context, transactions []models.BankTransaction, batchSize int) SaveOutcome {
	if batchSize < 1 {
		batchSize = 50
	}

	var outcome SaveOutcome
	for start := 0; start < len(transactions); start += batchSize {
		end := start + batchSize
		if end > len(transactions) {
			end = len(transactions)
		}
		group := transactions[start:end]

		inserted, err := r.insertGroup(ctx, group)
		if err != nil {
			outcome.Failed += len(group)
			outcome.Errors = append(outcome.Errors, err.Error())
			r.logger.Error("Transaction batch failed",
				zap.Int("from", start),
				zap.Int("size", len(group)),
				zap.Error(err),
			)
			continue
		}
		outcome.Saved += inserted
		outcome.Duplicates += len(group) - inserted
	}
	return outcome
}

func (r *TransactionRepository) insertGroup(ctx context.Context, group []models.BankTransaction) (int, error) {
	builder := squirrel.Insert("bank_transactions").
		Columns("id", "batch_id", "account_id", "date", "value_date", "amount", "commission", "balance",
			"description", "counterparty", "counter_iban", "type", "reference", "invoice_ref",
			"branch", "flow_id", "raw_text", "dedup_hash", "created_at").
		PlaceholderFormat(squirrel.Dollar).
		Suffix("ON CONFLICT (account_id, dedup_hash) DO NOTHING")

	for _, tx := range group {
		builder = builder.Values(tx.ID, tx.BatchID, tx.AccountID, tx.Date, nullable(tx.ValueDate), tx.Amount,
			tx.Commission, tx.Balance, tx.Description, tx.Counterparty, tx.CounterIBAN, tx.Type,
			tx.Reference, tx.InvoiceRef, tx.Branch, tx.FlowID, tx.RawText, tx.DedupHash, tx.CreatedAt)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListByBatch returns a batch's transactions newest first.
func (r *TransactionRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.BankTransaction, error) {
	query := squirrel.Select("id", "batch_id", "account_id", "date", "value_date", "amount", "commission", "balance",
		"description", "counterparty", "counter_iban", "type", "reference", "invoice_ref",
		"branch", "flow_id", "raw_text", "dedup_hash", "created_at").
		From("bank_transactions").
		Where(squirrel.Eq{"batch_id": batchID}).
		OrderBy("date DESC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.BankTransaction
	for rows.Next() {
		var tx models.BankTransaction
		var valueDate *string
		if err := rows.Scan(
			&tx.ID, &tx.BatchID, &tx.AccountID, &tx.Date, &valueDate, &tx.Amount, &tx.Commission, &tx.Balance,
			&tx.Description, &tx.Counterparty, &tx.CounterIBAN, &tx.Type, &tx.Reference, &tx.InvoiceRef,
			&tx.Branch, &tx.FlowID, &tx.RawText, &tx.DedupHash, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		if valueDate != nil {
			tx.ValueDate = *valueDate
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
