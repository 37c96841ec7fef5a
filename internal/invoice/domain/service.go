package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CustomerRef is a discriminated customer reference: an existing
// customer id or a new customer name. A non-empty NewName wins.
type CustomerRef struct {
	ExistingID string `json:"existing_id,omitempty"`
	NewName    string `json:"new_name,omitempty"`
}

// ItemOpKind tags a line-item row operation.
type ItemOpKind string

const (
	ItemOpAdd    ItemOpKind = "add"
	ItemOpUpdate ItemOpKind = "update"
	ItemOpDelete ItemOpKind = "delete"
)

// ItemOp describes one submitted line-item row. Update and Delete
// carry the id of an existing row; Add carries none. Quantity and
// UnitPrice are raw decimal strings, nil meaning absent.
type ItemOp struct {
	Op          ItemOpKind `json:"op"`
	ID          string     `json:"id,omitempty"`
	Description string     `json:"description,omitempty"`
	Quantity    *string    `json:"quantity,omitempty"`
	UnitPrice   *string    `json:"unit_price,omitempty"`
}

// SaveInvoiceRequest is the composite submission for the editing
// transaction: header fields plus tagged item operations, committed
// atomically or rejected wholesale.
type SaveInvoiceRequest struct {
	// InvoiceID empty means create mode.
	InvoiceID string
	Customer  CustomerRef
	// InvoiceNumber is honored on create only; generated when empty.
	InvoiceNumber string
	IssueDate     time.Time
	DueDate       time.Time
	Status        string
	Notes         string
	Items         []ItemOp
}

// RenderPDFResponse carries a converted invoice document.
type RenderPDFResponse struct {
	Data        []byte
	ContentType string
	Filename    string
}

type Service interface {
	List(context.Context) ([]Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	Save(context.Context, SaveInvoiceRequest) (snowflake.ID, error)
	RenderInvoice(ctx context.Context, id string) (string, error)
	RenderInvoicePDF(ctx context.Context, id string) (RenderPDFResponse, error)
}

var (
	ErrInvalidInvoiceID = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound  = errors.New("invoice_not_found")
)

// ValidationError is a single field- or row-level failure. Row-level
// failures encode the row in the field path, e.g. "items[2].quantity".
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors aggregates every failure of a submission so the
// caller can correct everything in one pass.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	return "validation error"
}

func (v *ValidationErrors) Add(field, code, message string) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Code: code, Message: message})
}

func (v *ValidationErrors) AddRow(row int, field, code, message string) {
	v.Add(fmt.Sprintf("items[%d].%s", row, field), code, message)
}

func (v *ValidationErrors) Empty() bool {
	return len(v.Errors) == 0
}

// RenderError reports a failed HTML→PDF conversion. The offending HTML
// travels with the error so the caller can show what failed to render.
type RenderError struct {
	HTML string
	Err  error
}

func (e *RenderError) Error() string {
	return "render error: " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
