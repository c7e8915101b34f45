package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"primanota/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrDuplicateInvoice marks a re-upload of an already stored document.
// Callers count it as a duplicate outcome, not a failure.
var ErrDuplicateInvoice = errors.New("invoice already imported")

type InvoiceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewInvoiceRepository(db *pgxpool.Pool, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{db: db, logger: logger}
}

// InsertWithLines stores one parsed invoice and all its body lines in a
// single transaction. The (owner_id, content_hash) unique constraint makes
// repeated imports of the same source a no-op.
func (r *InvoiceRepository) InsertWithLines(ctx context.Context, ownerID uuid.UUID, result *models.ParseResult) (uuid.UUID, error) {
	invoiceID := uuid.New()
	now := time.Now()

	supplier, _ := json.Marshal(result.Invoice.Supplier)
	customer, _ := json.Marshal(result.Invoice.Customer)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	insert := squirrel.Insert("invoices").
		Columns("id", "owner_id", "file_name", "method", "content_hash", "transmission_id", "supplier", "customer", "raw_xml", "created_at").
		Values(invoiceID, ownerID, result.FileName, result.Method, result.ContentHash, result.Invoice.TransmissionID, supplier, customer, result.RawXML, now).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := insert.ToSql()
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, ErrDuplicateInvoice
		}
		return uuid.Nil, err
	}

	for bodyIdx, body := range result.Invoice.Bodies {
		bodyID := uuid.New()
		vatSummary, _ := json.Marshal(body.VatSummary)
		payments, _ := json.Marshal(body.Payments)

		bodyInsert := squirrel.Insert("invoice_bodies").
			Columns("id", "invoice_id", "position", "document_type", "currency", "date", "number", "total_amount", "notes", "vat_summary", "payments", "created_at").
			Values(bodyID, invoiceID, bodyIdx, body.DocumentType, body.Currency, body.Date, body.Number, body.TotalAmount, body.Notes, vatSummary, payments, now).
			PlaceholderFormat(squirrel.Dollar)
		sql, args, err := bodyInsert.ToSql()
		if err != nil {
			return uuid.Nil, err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return uuid.Nil, err
		}

		if len(body.Lines) > 0 {
			lineInsert := squirrel.Insert("invoice_lines").
				Columns("id", "body_id", "number", "article_code", "description", "quantity", "unit", "unit_price", "total", "vat_rate", "vat_nature").
				PlaceholderFormat(squirrel.Dollar)
			for _, line := range body.Lines {
				lineInsert = lineInsert.Values(uuid.New(), bodyID, line.Number, line.ArticleCode, line.Description, line.Quantity, line.Unit, line.UnitPrice, line.Total, line.VatRate, line.VatNature)
			}
			sql, args, err := lineInsert.ToSql()
			if err != nil {
				return uuid.Nil, err
			}
			if _, err := tx.Exec(ctx, sql, args...); err != nil {
				return uuid.Nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}

	r.logger.Info("Invoice stored",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("file", result.FileName),
		zap.Int("bodies", len(result.Invoice.Bodies)),
	)
	return invoiceID, nil
}

// GetByHash looks an invoice up by its content hash.
func (r *InvoiceRepository) GetByHash(ctx context.Context, ownerID uuid.UUID, contentHash string) (uuid.UUID, error) {
	query := squirrel.Select("id").
		From("invoices").
		Where(squirrel.Eq{"owner_id": ownerID, "content_hash": contentHash}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
