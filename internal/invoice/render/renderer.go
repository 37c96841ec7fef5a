// Package render produces the HTML representation of an invoice.
package render

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceView is the invoice header data fed to the template.
type InvoiceView struct {
	ID          string
	Number      string
	Status      string
	IssueDate   time.Time
	DueDate     time.Time
	Notes       string
	TotalAmount decimal.Decimal
}

// CustomerView is the bill-to block fed to the template.
type CustomerView struct {
	Name    string
	Email   string
	Address string
	Phone   string
}

// LineItemView is one table row, with absent amounts already coalesced.
type LineItemView struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

type RenderInput struct {
	Invoice  InvoiceView
	Customer CustomerView
	Items    []LineItemView
}

type Renderer interface {
	RenderHTML(input RenderInput) (string, error)
}
