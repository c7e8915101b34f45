package estratto

import "context"

// ExtractionModel is the swappable boundary to the language model that
// reads statement chunks. Implementations classify their transport errors
// with the sentinel errors above so the adapter can retry correctly.
type ExtractionModel interface {
	ExtractChunk(ctx context.Context, chunk Chunk) (*ModelResult, error)
}

// ModelResult is the raw outcome of one extraction call. FinishReason
// distinguishes a clean stop from output truncation; the repair stage
// decides what is still salvageable either way.
type ModelResult struct {
	RawText      string
	FinishReason string
}

// Truncated reports whether the model stopped because it ran out of output
// tokens.
func (r *ModelResult) Truncated() bool {
	return r.FinishReason == "length" || r.FinishReason == "max_tokens"
}

// extractionPrompt is the fixed contract sent with every chunk. The model
// must answer with a bare JSON array under the documented schema: debits
// negative, credits positive, transaction_type from the closed set.
const extractionPrompt = `Sei un estrattore di dati da estratti conto bancari italiani.
Analizza le pagine fornite ed estrai OGNI movimento bancario presente.

Rispondi ESCLUSIVAMENTE con un array JSON valido, senza markdown, senza commenti, senza testo prima o dopo.

Formato di ogni movimento:
[
  {
    "date": "data operazione (DD/MM/YYYY o YYYY-MM-DD)",
    "value_date": "data valuta, se presente",
    "amount": numero con segno (addebito NEGATIVO, accredito POSITIVO),
    "commission": numero, valore assoluto della commissione se presente,
    "balance": numero, saldo progressivo se presente,
    "description": "descrizione del movimento",
    "counterparty": "nome beneficiario/ordinante se presente",
    "counterparty_account": "IBAN o conto della controparte se presente",
    "transaction_type": "bonifico|addebito|accredito|pagamento_pos|prelievo|commissione|imposta|giroconto|rid|altro",
    "reference": "CRO/TRN o riferimento operazione se presente",
    "invoice_ref": "numero fattura citato nella causale se presente",
    "branch": "filiale se presente",
    "flow_id": "identificativo flusso se presente",
    "raw_text": "la riga o il paragrafo originale da cui hai estratto il movimento"
  }
]

REGOLE:
- Estrai solo movimenti realmente presenti nelle pagine, mai inventati.
- Gli addebiti hanno importo NEGATIVO, gli accrediti POSITIVO.
- Se non ci sono movimenti restituisci un array vuoto: []`
