package models

// ParsedInvoice is the canonical projection of one FatturaElettronica
// document. An envelope may legally carry several bodies under a single
// transmission header; Bodies is never empty for a valid document.
type ParsedInvoice struct {
	TransmissionID     string        `json:"transmission_id"`
	TransmissionFormat string        `json:"transmission_format"`
	SenderCountry      string        `json:"sender_country"`
	SenderCode         string        `json:"sender_code"`
	RecipientCode      string        `json:"recipient_code"`
	RecipientPEC       string        `json:"recipient_pec"`
	Supplier           Counterparty  `json:"supplier"`
	Customer           Counterparty  `json:"customer"`
	Bodies             []InvoiceBody `json:"bodies"`
}

// Counterparty describes the cedente (supplier) or cessionario (customer)
// identity block.
type Counterparty struct {
	VatCountry string `json:"vat_country"`
	VatNumber  string `json:"vat_number"`
	FiscalCode string `json:"fiscal_code"`
	Name       string `json:"name"`
	Regime     string `json:"regime"`
	Address    string `json:"address"`
}

type InvoiceBody struct {
	DocumentType     string            `json:"document_type"`
	Currency         string            `json:"currency"`
	Date             string            `json:"date"`
	Number           string            `json:"number"`
	TotalAmount      float64           `json:"total_amount"`
	Notes            string            `json:"notes"`
	Stamp            *Stamp            `json:"stamp,omitempty"`
	Withholding      *Withholding      `json:"withholding,omitempty"`
	ContributionFund *ContributionFund `json:"contribution_fund,omitempty"`
	Lines            []InvoiceLine     `json:"lines"`
	VatSummary       []VatSummaryEntry `json:"vat_summary"`
	Payments         []Payment         `json:"payments"`
	Attachments      []Attachment      `json:"attachments"`
	Contracts        []DocumentRef     `json:"contracts,omitempty"`
	PurchaseOrders   []DocumentRef     `json:"purchase_orders,omitempty"`
	DeliveryNotes    []DocumentRef     `json:"delivery_notes,omitempty"`
}

type InvoiceLine struct {
	Number      int     `json:"number"`
	ArticleCode string  `json:"article_code"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
	VatRate     float64 `json:"vat_rate"`
	VatNature   string  `json:"vat_nature"`
}

// VatSummaryEntry mirrors one DatiRiepilogo row verbatim. Taxable and tax
// are carried as declared, never recomputed from the lines.
type VatSummaryEntry struct {
	VatRate   float64 `json:"vat_rate"`
	VatNature string  `json:"vat_nature"`
	Taxable   float64 `json:"taxable"`
	Tax       float64 `json:"tax"`
	ChargType string  `json:"charge_type"`
}

type Payment struct {
	Terms   string  `json:"terms"`
	Mode    string  `json:"mode"`
	DueDate string  `json:"due_date"`
	Amount  float64 `json:"amount"`
	IBAN    string  `json:"iban"`
	Bank    string  `json:"bank"`
}

type Attachment struct {
	Name        string `json:"name"`
	Format      string `json:"format"`
	Description string `json:"description"`
	Data        string `json:"data,omitempty"`
}

type Stamp struct {
	Virtual bool    `json:"virtual"`
	Amount  float64 `json:"amount"`
}

type Withholding struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
	Rate   float64 `json:"rate"`
	Reason string  `json:"reason"`
}

type ContributionFund struct {
	Type    string  `json:"type"`
	Rate    float64 `json:"rate"`
	Amount  float64 `json:"amount"`
	Taxable float64 `json:"taxable"`
	VatRate float64 `json:"vat_rate"`
}

// DocumentRef is a cross-reference block (contract, purchase order or
// delivery note) attached to an invoice body.
type DocumentRef struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Item string `json:"item"`
	CIG  string `json:"cig,omitempty"`
	CUP  string `json:"cup,omitempty"`
}

// Extraction methods recorded on a ParseResult.
const (
	MethodDER      = "DER"
	MethodByteScan = "byte-scan"
	MethodPlainXML = "plain-XML"
	MethodFailed   = "failed"
)

// ParseResult is the per-source-file outcome of the invoice router.
// Exactly one of Invoice and Error is set.
type ParseResult struct {
	FileName    string         `json:"file_name"`
	Method      string         `json:"method"`
	RawXML      string         `json:"raw_xml,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	Invoice     *ParsedInvoice `json:"invoice,omitempty"`
	Error       string         `json:"error,omitempty"`
}
