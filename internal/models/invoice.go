package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// InvoiceStatus enumerates the invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "DRAFT"
	InvoicePending InvoiceStatus = "PENDING"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
)

// Invoice is a stored invoice header plus the full form payload as JSON. The
// rendered PDF lives in object storage under PDFKey.
type Invoice struct {
	ID            string         `db:"id" json:"id"`
	UserID        string         `db:"user_id" json:"user_id"`
	InvoiceNumber string         `db:"invoice_number" json:"invoice_number"`
	CustomerName  string         `db:"customer_name" json:"customer_name"`
	TotalAmount   float64        `db:"total_amount" json:"total_amount"`
	Status        InvoiceStatus  `db:"status" json:"status"`
	IssueDate     time.Time      `db:"issue_date" json:"issue_date"`
	DueDate       *time.Time     `db:"due_date" json:"due_date,omitempty"`
	Currency      string         `db:"currency" json:"currency"`
	PDFKey        string         `db:"pdf_key" json:"-"`
	PDFURL        string         `db:"pdf_url" json:"pdf_url"`
	InvoiceData   types.JSONText `db:"invoice_data" json:"invoice_data"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// PartyDetails identifies one side of an invoice.
type PartyDetails struct {
	Name    string `json:"name" validate:"required,min=2"`
	Address string `json:"address"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
}

// InvoiceItem is a single billed line.
type InvoiceItem struct {
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gte=1"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// BankDetails carries optional payment instructions printed on the invoice.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	IFSCCode      string `json:"ifsc_code"`
}

// InvoicePayload is the invoice form submitted by the client.
type InvoicePayload struct {
	InvoiceNumber string        `json:"invoice_number" validate:"required"`
	IssueDate     time.Time     `json:"issue_date" validate:"required"`
	DueDate       *time.Time    `json:"due_date"`
	SenderDetails PartyDetails  `json:"sender_details" validate:"required"`
	ClientDetails PartyDetails  `json:"client_details" validate:"required"`
	Items         []InvoiceItem `json:"items" validate:"required,min=1,dive"`
	Currency      string        `json:"currency"`
	TaxRate       float64       `json:"tax_rate" validate:"gte=0,lte=100"`
	Discount      float64       `json:"discount" validate:"gte=0"`
	Shipping      float64       `json:"shipping" validate:"gte=0"`
	Notes         string        `json:"notes"`
	Terms         string        `json:"terms"`
	BankDetails   *BankDetails  `json:"bank_details"`
	Status        InvoiceStatus `json:"status" validate:"omitempty,oneof=DRAFT PENDING PAID OVERDUE"`
}

// Subtotal sums the line amounts before tax, shipping and discount.
func (p InvoicePayload) Subtotal() float64 {
	var sum float64
	for _, item := range p.Items {
		sum += item.Quantity * item.UnitPrice
	}
	return sum
}

// Total applies tax, shipping and discount to the subtotal.
func (p InvoicePayload) Total() float64 {
	subtotal := p.Subtotal()
	tax := subtotal * p.TaxRate / 100
	return subtotal + tax + p.Shipping - p.Discount
}
