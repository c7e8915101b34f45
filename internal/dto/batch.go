package dto

import (
	"time"

	"primanota/internal/models"
)

type BatchResponse struct {
	ID         string   `json:"id"`
	AccountID  string   `json:"account_id"`
	FileName   string   `json:"file_name"`
	Status     string   `json:"status"`
	TotalPages int      `json:"total_pages"`
	Saved      int      `json:"saved"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

func NewBatchResponse(batch *models.ImportBatch) *BatchResponse {
	return &BatchResponse{
		ID:         batch.ID.String(),
		AccountID:  batch.AccountID.String(),
		FileName:   batch.FileName,
		Status:     string(batch.Status),
		TotalPages: batch.TotalPages,
		Saved:      batch.Saved,
		Duplicates: batch.Duplicates,
		Failed:     batch.Failed,
		Errors:     batch.Errors,
		CreatedAt:  batch.CreatedAt.Format(time.RFC3339),
	}
}
