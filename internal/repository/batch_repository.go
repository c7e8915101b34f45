package repository

import (
	"context"
	"time"

	"primanota/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// maxBatchErrors bounds the stored error list; anything beyond is counted
// but not retained.
const maxBatchErrors = 20

type BatchRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewBatchRepository(db *pgxpool.Pool, logger *zap.Logger) *BatchRepository {
	return &BatchRepository{db: db, logger: logger}
}

func (r *BatchRepository) Create(ctx context.Context, batch *models.ImportBatch) error {
	query := squirrel.Insert("import_batches").
		Columns("id", "account_id", "file_name", "file_url", "status", "total_pages", "saved", "duplicates", "failed", "errors", "created_at", "updated_at").
		Values(batch.ID, batch.AccountID, batch.FileName, batch.FileURL, batch.Status, batch.TotalPages, batch.Saved, batch.Duplicates, batch.Failed, batch.Errors, batch.CreatedAt, batch.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	query := squirrel.Select("id", "account_id", "file_name", "file_url", "status", "total_pages", "saved", "duplicates", "failed", "errors", "created_at", "updated_at").
		From("import_batches").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var batch models.ImportBatch
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&batch.ID, &batch.AccountID, &batch.FileName, &batch.FileURL, &batch.Status, &batch.TotalPages,
		&batch.Saved, &batch.Duplicates, &batch.Failed, &batch.Errors, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateProgress advances a batch's status and counters after a window has
// been saved. Counters accumulate; errors are appended up to the bound.
func (r *BatchRepository) UpdateProgress(ctx context.Context, id uuid.UUID, status models.BatchStatus, saved, duplicates, failed int, errs []string) error {
	if len(errs) > maxBatchErrors {
		errs = errs[:maxBatchErrors]
	}

	query := squirrel.Update("import_batches").
		Set("status", status).
		Set("saved", squirrel.Expr("saved + ?", saved)).
		Set("duplicates", squirrel.Expr("duplicates + ?", duplicates)).
		Set("failed", squirrel.Expr("failed + ?", failed)).
		Set("errors", squirrel.Expr("(errors || ?::text[])[1:?]", errs, maxBatchErrors)).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// SetTotalPages records the page count discovered by the splitter.
func (r *BatchRepository) SetTotalPages(ctx context.Context, id uuid.UUID, pages int) error {
	query := squirrel.Update("import_batches").
		Set("total_pages", pages).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sql, args...)
	return err
}
