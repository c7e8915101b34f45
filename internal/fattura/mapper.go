package fattura

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"primanota/internal/models"
)

// MapInvoice projects FatturaElettronica XML onto the canonical invoice
// record. Lookups run on local tag names only, so the wide variation in
// namespace prefixes across invoicing software is irrelevant. Every field
// access tolerates a missing block: optional sections yield zero values,
// never an error. Declared totals and taxables are carried verbatim.
func MapInvoice(xmlText string) (*models.ParsedInvoice, error) {
	root, err := parseTree(xmlText)
	if err != nil {
		return nil, fmt.Errorf("invalid XML: %w", err)
	}
	if !strings.Contains(root.tag, invoiceMarker) {
		return nil, ErrMarkerMissing
	}

	header := root.first("FatturaElettronicaHeader")

	inv := &models.ParsedInvoice{
		TransmissionID:     header.text("DatiTrasmissione", "ProgressivoInvio"),
		TransmissionFormat: header.text("DatiTrasmissione", "FormatoTrasmissione"),
		SenderCountry:      header.text("DatiTrasmissione", "IdTrasmittente", "IdPaese"),
		SenderCode:         header.text("DatiTrasmissione", "IdTrasmittente", "IdCodice"),
		RecipientCode:      header.text("DatiTrasmissione", "CodiceDestinatario"),
		RecipientPEC:       header.text("DatiTrasmissione", "PECDestinatario"),
		Supplier:           mapCounterparty(header.first("CedentePrestatore")),
		Customer:           mapCounterparty(header.first("CessionarioCommittente")),
	}

	for _, body := range root.all("FatturaElettronicaBody") {
		inv.Bodies = append(inv.Bodies, mapBody(body))
	}
	if len(inv.Bodies) == 0 {
		return nil, ErrNoBodies
	}
	return inv, nil
}

func mapCounterparty(n *node) models.Counterparty {
	anag := n.first("DatiAnagrafici")
	name := anag.text("Anagrafica", "Denominazione")
	if name == "" {
		name = strings.TrimSpace(anag.text("Anagrafica", "Nome") + " " + anag.text("Anagrafica", "Cognome"))
	}
	return models.Counterparty{
		VatCountry: anag.text("IdFiscaleIVA", "IdPaese"),
		VatNumber:  anag.text("IdFiscaleIVA", "IdCodice"),
		FiscalCode: anag.text("CodiceFiscale"),
		Name:       name,
		Regime:     anag.text("RegimeFiscale"),
		Address:    assembleAddress(n.first("Sede")),
	}
}

// assembleAddress joins the Sede sub-components into one display string:
// street and number, ZIP with city and province, country when foreign.
func assembleAddress(sede *node) string {
	var parts []string
	street := strings.TrimSpace(sede.text("Indirizzo") + " " + sede.text("NumeroCivico"))
	if street != "" {
		parts = append(parts, street)
	}
	city := strings.TrimSpace(sede.text("CAP") + " " + sede.text("Comune"))
	if prov := sede.text("Provincia"); prov != "" {
		city = strings.TrimSpace(city + " (" + prov + ")")
	}
	if city != "" {
		parts = append(parts, city)
	}
	if country := sede.text("Nazione"); country != "" && country != "IT" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}

func mapBody(body *node) models.InvoiceBody {
	general := body.first("DatiGenerali").first("DatiGeneraliDocumento")

	out := models.InvoiceBody{
		DocumentType: general.text("TipoDocumento"),
		Currency:     general.text("Divisa"),
		Date:         general.text("Data"),
		Number:       general.text("Numero"),
		TotalAmount:  parseAmount(general.text("ImportoTotaleDocumento")),
		Notes:        joinTexts(general.all("Causale")),
	}

	if bollo := general.first("DatiBollo"); !bollo.empty() {
		out.Stamp = &models.Stamp{
			Virtual: strings.EqualFold(bollo.text("BolloVirtuale"), "SI"),
			Amount:  parseAmount(bollo.text("ImportoBollo")),
		}
	}
	if rit := general.first("DatiRitenuta"); !rit.empty() {
		out.Withholding = &models.Withholding{
			Type:   rit.text("TipoRitenuta"),
			Amount: parseAmount(rit.text("ImportoRitenuta")),
			Rate:   parseAmount(rit.text("AliquotaRitenuta")),
			Reason: rit.text("CausalePagamento"),
		}
	}
	if cassa := general.first("DatiCassaPrevidenziale"); !cassa.empty() {
		out.ContributionFund = &models.ContributionFund{
			Type:    cassa.text("TipoCassa"),
			Rate:    parseAmount(cassa.text("AlCassa")),
			Amount:  parseAmount(cassa.text("ImportoContributoCassa")),
			Taxable: parseAmount(cassa.text("ImponibileCassa")),
			VatRate: parseAmount(cassa.text("AliquotaIVA")),
		}
	}

	dg := body.first("DatiGenerali")
	out.Contracts = mapRefs(dg.all("DatiContratto"))
	out.PurchaseOrders = mapRefs(dg.all("DatiOrdineAcquisto"))
	out.DeliveryNotes = mapDeliveryNotes(dg.all("DatiDDT"))

	goods := body.first("DatiBeniServizi")
	for _, line := range goods.all("DettaglioLinee") {
		out.Lines = append(out.Lines, mapLine(line))
	}
	for _, row := range goods.all("DatiRiepilogo") {
		out.VatSummary = append(out.VatSummary, models.VatSummaryEntry{
			VatRate:   parseAmount(row.text("AliquotaIVA")),
			VatNature: row.text("Natura"),
			Taxable:   parseAmount(row.text("ImponibileImporto")),
			Tax:       parseAmount(row.text("Imposta")),
			ChargType: row.text("EsigibilitaIVA"),
		})
	}

	for _, pay := range body.all("DatiPagamento") {
		terms := pay.text("CondizioniPagamento")
		details := pay.all("DettaglioPagamento")
		if len(details) == 0 {
			continue
		}
		for _, d := range details {
			out.Payments = append(out.Payments, models.Payment{
				Terms:   terms,
				Mode:    d.text("ModalitaPagamento"),
				DueDate: d.text("DataScadenzaPagamento"),
				Amount:  parseAmount(d.text("ImportoPagamento")),
				IBAN:    d.text("IBAN"),
				Bank:    d.text("IstitutoFinanziario"),
			})
		}
	}

	for _, att := range body.all("Allegati") {
		out.Attachments = append(out.Attachments, models.Attachment{
			Name:        att.text("NomeAttachment"),
			Format:      att.text("FormatoAttachment"),
			Description: att.text("DescrizioneAttachment"),
			Data:        att.text("Attachment"),
		})
	}
	return out
}

func mapLine(line *node) models.InvoiceLine {
	num, _ := strconv.Atoi(line.text("NumeroLinea"))

	// An article may carry several codes; concatenate them.
	var codes []string
	for _, c := range line.all("CodiceArticolo") {
		val := c.text("CodiceValore")
		if val == "" {
			continue
		}
		if typ := c.text("CodiceTipo"); typ != "" {
			val = typ + ":" + val
		}
		codes = append(codes, val)
	}

	return models.InvoiceLine{
		Number:      num,
		ArticleCode: strings.Join(codes, ", "),
		Description: line.text("Descrizione"),
		Quantity:    parseAmount(line.text("Quantita")),
		Unit:        line.text("UnitaMisura"),
		UnitPrice:   parseAmount(line.text("PrezzoUnitario")),
		Total:       parseAmount(line.text("PrezzoTotale")),
		VatRate:     parseAmount(line.text("AliquotaIVA")),
		VatNature:   line.text("Natura"),
	}
}

func mapRefs(nodes []*node) []models.DocumentRef {
	var refs []models.DocumentRef
	for _, n := range nodes {
		refs = append(refs, models.DocumentRef{
			ID:   n.text("IdDocumento"),
			Date: n.text("Data"),
			Item: n.text("RiferimentoNumeroLinea"),
			CIG:  n.text("CodiceCIG"),
			CUP:  n.text("CodiceCUP"),
		})
	}
	return refs
}

func mapDeliveryNotes(nodes []*node) []models.DocumentRef {
	var refs []models.DocumentRef
	for _, n := range nodes {
		refs = append(refs, models.DocumentRef{
			ID:   n.text("NumeroDDT"),
			Date: n.text("DataDDT"),
			Item: n.text("RiferimentoNumeroLinea"),
		})
	}
	return refs
}

func joinTexts(nodes []*node) string {
	var parts []string
	for _, n := range nodes {
		if t := strings.TrimSpace(n.content); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// parseAmount accepts both dot and comma decimal separators.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// node is a generic XML element keyed by local tag name.
type node struct {
	tag      string
	content  string
	children []*node
}

// emptyNode lets lookups on absent blocks chain without nil checks.
var emptyNode = &node{}

func (n *node) empty() bool {
	return n == nil || (n.tag == "" && len(n.children) == 0)
}

// first descends through the given local names, taking the first match at
// each level. It never returns nil.
func (n *node) first(path ...string) *node {
	cur := n
	for _, name := range path {
		if cur == nil {
			return emptyNode
		}
		var next *node
		for _, c := range cur.children {
			if c.tag == name {
				next = c
				break
			}
		}
		if next == nil {
			return emptyNode
		}
		cur = next
	}
	if cur == nil {
		return emptyNode
	}
	return cur
}

// text returns the trimmed character data of the element at path.
func (n *node) text(path ...string) string {
	return strings.TrimSpace(n.first(path...).content)
}

// all returns the direct children with the given local name, in document
// order.
func (n *node) all(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for _, c := range n.children {
		if c.tag == name {
			out = append(out, c)
		}
	}
	return out
}

// parseTree decodes XML into a node tree using local names only, which
// strips namespace prefixes and xmlns declarations in one move.
func parseTree(xmlText string) (*node, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlText))
	// Some uploads declare legacy encodings; treat content as-is.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var root *node
	var stack []*node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{tag: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].content += string(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("no root element")
	}
	return root, nil
}
