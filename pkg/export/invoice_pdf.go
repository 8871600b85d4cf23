package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
)

// InvoiceRenderer renders an invoice payload into a PDF document.
type InvoiceRenderer struct{}

// NewInvoiceRenderer constructs a renderer.
func NewInvoiceRenderer() *InvoiceRenderer {
	return &InvoiceRenderer{}
}

// Render produces the PDF bytes for the given invoice payload.
func (r *InvoiceRenderer) Render(p models.InvoicePayload) ([]byte, error) {
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("invoice requires at least one item")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 15, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Invoice No: %s", p.InvoiceNumber), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issue Date: %s", p.IssueDate.Format("02 Jan 2006")), "", 1, "L", false, 0, "")
	if p.DueDate != nil {
		pdf.CellFormat(0, 6, fmt.Sprintf("Due Date: %s", p.DueDate.Format("02 Jan 2006")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	r.renderParty(pdf, "From", p.SenderDetails)
	r.renderParty(pdf, "Bill To", p.ClientDetails)
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(96, 8, "Description", "1", 0, "L", false, 0, "")
	pdf.CellFormat(25, 8, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(32, 8, "Unit Price", "1", 0, "R", false, 0, "")
	pdf.CellFormat(33, 8, "Amount", "1", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, item := range p.Items {
		amount := item.Quantity * item.UnitPrice
		pdf.CellFormat(96, 7, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, trimFloat(item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(32, 7, money(p.Currency, item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(33, 7, money(p.Currency, amount), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	r.renderTotalLine(pdf, "Subtotal", money(p.Currency, p.Subtotal()), false)
	if p.TaxRate > 0 {
		r.renderTotalLine(pdf, fmt.Sprintf("Tax (%s%%)", trimFloat(p.TaxRate)), money(p.Currency, p.Subtotal()*p.TaxRate/100), false)
	}
	if p.Shipping > 0 {
		r.renderTotalLine(pdf, "Shipping", money(p.Currency, p.Shipping), false)
	}
	if p.Discount > 0 {
		r.renderTotalLine(pdf, "Discount", "-"+money(p.Currency, p.Discount), false)
	}
	r.renderTotalLine(pdf, "Total", money(p.Currency, p.Total()), true)

	if p.BankDetails != nil && p.BankDetails.AccountNumber != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "Payment Details", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 5, fmt.Sprintf("Bank: %s  Account: %s (%s)  IFSC: %s",
			p.BankDetails.BankName, p.BankDetails.AccountNumber, p.BankDetails.AccountName, p.BankDetails.IFSCCode), "", 1, "L", false, 0, "")
	}

	if p.Notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, "Notes: "+p.Notes, "", "L", false)
	}
	if p.Terms != "" {
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, "Terms: "+p.Terms, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *InvoiceRenderer) renderParty(pdf *gofpdf.Fpdf, label string, party models.PartyDetails) {
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, label, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, party.Name, "", 1, "L", false, 0, "")
	if party.Address != "" {
		pdf.MultiCell(0, 5, party.Address, "", "L", false)
	}
	if party.Email != "" {
		pdf.CellFormat(0, 5, party.Email, "", 1, "L", false, 0, "")
	}
	if party.Phone != "" {
		pdf.CellFormat(0, 5, party.Phone, "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
}

func (r *InvoiceRenderer) renderTotalLine(pdf *gofpdf.Fpdf, label, value string, bold bool) {
	if bold {
		pdf.SetFont("Arial", "B", 11)
	} else {
		pdf.SetFont("Arial", "", 9)
	}
	pdf.CellFormat(153, 7, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(33, 7, value, "", 1, "R", false, 0, "")
}

func money(currency string, amount float64) string {
	if currency == "" {
		currency = "INR"
	}
	return fmt.Sprintf("%s %.2f", currency, amount)
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
