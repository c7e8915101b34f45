package models

import (
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchPending             BatchStatus = "pending"
	BatchProcessing          BatchStatus = "processing"
	BatchCompleted           BatchStatus = "completed"
	BatchCompletedWithErrors BatchStatus = "completed_with_errors"
	BatchFailed              BatchStatus = "failed"
)

// ImportBatch tracks one statement import from upload to final save.
// Errors holds a bounded list of human-readable messages; raw chunk text
// lives on the transactions, not here.
type ImportBatch struct {
	ID         uuid.UUID   `db:"id"`
	AccountID  uuid.UUID   `db:"account_id"`
	FileName   string      `db:"file_name"`
	FileURL    string      `db:"file_url"`
	Status     BatchStatus `db:"status"`
	TotalPages int         `db:"total_pages"`
	Saved      int         `db:"saved"`
	Duplicates int         `db:"duplicates"`
	Failed     int         `db:"failed"`
	Errors     []string    `db:"errors"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}
