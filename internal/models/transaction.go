package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TypeBonifico     TransactionType = "bonifico"
	TypeAddebito     TransactionType = "addebito"
	TypeAccredito    TransactionType = "accredito"
	TypePagamentoPOS TransactionType = "pagamento_pos"
	TypePrelievo     TransactionType = "prelievo"
	TypeCommissione  TransactionType = "commissione"
	TypeImposta      TransactionType = "imposta"
	TypeGiroconto    TransactionType = "giroconto"
	TypeRID          TransactionType = "rid"
	TypeAltro        TransactionType = "altro"
)

// ValidTransactionType reports whether t belongs to the closed enumeration.
// Anything else collapses to TypeAltro during normalization.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TypeBonifico, TypeAddebito, TypeAccredito, TypePagamentoPOS,
		TypePrelievo, TypeCommissione, TypeImposta, TypeGiroconto,
		TypeRID, TypeAltro:
		return true
	}
	return false
}

// BankTransaction is one canonical statement movement. Amount is signed,
// negative for debits. Date is always ISO 8601 (YYYY-MM-DD) regardless of
// the source locale format.
type BankTransaction struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	BatchID      uuid.UUID       `db:"batch_id" json:"batch_id"`
	AccountID    uuid.UUID       `db:"account_id" json:"account_id"`
	Date         string          `db:"date" json:"date"`
	ValueDate    string          `db:"value_date" json:"value_date,omitempty"`
	Amount       float64         `db:"amount" json:"amount"`
	Commission   *float64        `db:"commission" json:"commission,omitempty"`
	Balance      *float64        `db:"balance" json:"balance,omitempty"`
	Description  string          `db:"description" json:"description"`
	Counterparty string          `db:"counterparty" json:"counterparty,omitempty"`
	CounterIBAN  string          `db:"counter_iban" json:"counter_iban,omitempty"`
	Type         TransactionType `db:"type" json:"transaction_type"`
	Reference    string          `db:"reference" json:"reference,omitempty"`
	InvoiceRef   string          `db:"invoice_ref" json:"invoice_ref,omitempty"`
	Branch       string          `db:"branch" json:"branch,omitempty"`
	FlowID       string          `db:"flow_id" json:"flow_id,omitempty"`
	RawText      string          `db:"raw_text" json:"raw_text"`
	DedupHash    string          `db:"dedup_hash" json:"dedup_hash"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
