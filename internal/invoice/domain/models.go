// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/facture/internal/customer/domain"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "Draft"
	InvoiceStatusSent      InvoiceStatus = "Sent"
	InvoiceStatusPaid      InvoiceStatus = "Paid"
	InvoiceStatusOverdue   InvoiceStatus = "Overdue"
	InvoiceStatusCancelled InvoiceStatus = "Cancelled"
)

// ParseStatus maps a raw string to a known status.
func ParseStatus(raw string) (InvoiceStatus, bool) {
	switch InvoiceStatus(raw) {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return InvoiceStatus(raw), true
	default:
		return "", false
	}
}

// Invoice represents an invoice issued to a customer.
type Invoice struct {
	ID            snowflake.ID             `gorm:"primaryKey" json:"id"`
	CustomerID    snowflake.ID             `gorm:"not null;index" json:"customer_id"`
	Customer      *customerdomain.Customer `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"customer,omitempty"`
	InvoiceNumber string                   `gorm:"type:text;not null;uniqueIndex:ux_invoices_number" json:"invoice_number"`
	IssueDate     time.Time                `gorm:"not null;index" json:"issue_date"`
	DueDate       time.Time                `gorm:"not null" json:"due_date"`
	Status        InvoiceStatus            `gorm:"type:text;not null;default:'Draft'" json:"status"`
	Notes         string                   `gorm:"type:text" json:"notes,omitempty"`
	Items         []InvoiceItem            `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt     time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// TotalAmount is derived from the items on every read, never stored.
	TotalAmount decimal.Decimal `gorm:"-" json:"total_amount"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// ComputeTotals recomputes every item's line total and the invoice
// total from the persisted quantity/unit_price values.
func (i *Invoice) ComputeTotals() {
	total := decimal.Zero
	for idx := range i.Items {
		i.Items[idx].LineTotal = i.Items[idx].ComputeLineTotal()
		total = total.Add(i.Items[idx].LineTotal)
	}
	i.TotalAmount = total
}

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID          snowflake.ID     `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID     `gorm:"not null;index" json:"invoice_id"`
	Description string           `gorm:"type:text;not null" json:"description"`
	Quantity    *decimal.Decimal `gorm:"type:numeric(10,2)" json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `gorm:"type:numeric(10,2)" json:"unit_price,omitempty"`
	CreatedAt   time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	// LineTotal is derived, see ComputeLineTotal.
	LineTotal decimal.Decimal `gorm:"-" json:"line_total"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// ComputeLineTotal returns quantity * unit_price with absent values
// coalesced to zero. Decimal arithmetic keeps currency math exact.
func (i InvoiceItem) ComputeLineTotal() decimal.Decimal {
	return coalesce(i.Quantity).Mul(coalesce(i.UnitPrice))
}

func coalesce(value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return *value
}
