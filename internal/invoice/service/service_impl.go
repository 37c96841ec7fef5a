package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/facture/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/facture/internal/invoice/domain"
	"github.com/smallbiznis/facture/internal/invoice/format"
	"github.com/smallbiznis/facture/internal/invoice/render"
	"github.com/smallbiznis/facture/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	CustomerSvc customerdomain.Service
	Renderer    render.Renderer
	PDF         pdf.Converter
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	customerSvc customerdomain.Service
	renderer    render.Renderer
	pdf         pdf.Converter
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,

		customerSvc: p.CustomerSvc,
		renderer:    p.Renderer,
		pdf:         p.PDF,
	}
}

func (s *Service) List(ctx context.Context) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Preload("Customer").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at asc, id asc")
		}).
		Order("issue_date desc, id desc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}

	for i := range invoices {
		invoices[i].ComputeTotals()
	}
	return invoices, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	var invoice invoicedomain.Invoice
	err = s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at asc, id asc")
		}).
		First(&invoice, "id = ?", invoiceID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
		}
		return invoicedomain.Invoice{}, err
	}

	invoice.ComputeTotals()
	return invoice, nil
}

// parsedItem is an ItemOp with identifiers and amounts decoded.
type parsedItem struct {
	op        invoicedomain.ItemOpKind
	id        snowflake.ID
	desc      string
	quantity  *decimal.Decimal
	unitPrice *decimal.Decimal
}

// Save validates and atomically commits one composite submission:
// invoice header, tagged item operations, and an optional inline
// customer creation. Nothing is written unless everything passes.
func (s *Service) Save(ctx context.Context, req invoicedomain.SaveInvoiceRequest) (snowflake.ID, error) {
	verrs := &invoicedomain.ValidationErrors{}

	updating := strings.TrimSpace(req.InvoiceID) != ""
	var invoiceID snowflake.ID
	if updating {
		id, err := parseID(req.InvoiceID)
		if err != nil {
			return 0, invoicedomain.ErrInvalidInvoiceID
		}
		invoiceID = id
	}

	status := invoicedomain.InvoiceStatusDraft
	if strings.TrimSpace(req.Status) != "" {
		parsed, ok := invoicedomain.ParseStatus(req.Status)
		if !ok {
			verrs.Add("status", "invalid_status", "status must be one of Draft, Sent, Paid, Overdue, Cancelled")
		} else {
			status = parsed
		}
	}
	if req.IssueDate.IsZero() {
		verrs.Add("issue_date", "required", "issue date is required")
	}
	if req.DueDate.IsZero() {
		verrs.Add("due_date", "required", "due date is required")
	}

	newCustomerName := strings.TrimSpace(req.Customer.NewName)
	var existingCustomerID snowflake.ID
	if newCustomerName == "" {
		id, err := snowflake.ParseString(strings.TrimSpace(req.Customer.ExistingID))
		if err != nil || id == 0 {
			verrs.Add("customer", "required", "an existing customer or a new customer name is required")
		} else {
			existingCustomerID = id
		}
	}

	items := s.parseItems(req.Items, verrs)

	// Baseline state for update mode and for the existing-customer check.
	// Reads only; no write happens until every check has passed.
	var baselineItems map[snowflake.ID]struct{}
	if updating {
		existing, err := s.loadInvoice(ctx, s.db, invoiceID)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return 0, invoicedomain.ErrInvoiceNotFound
		}
		ids, err := s.listItemIDs(ctx, s.db, invoiceID)
		if err != nil {
			return 0, err
		}
		baselineItems = ids
	}
	if existingCustomerID != 0 {
		found, err := s.customerExists(ctx, existingCustomerID)
		if err != nil {
			return 0, err
		}
		if !found {
			verrs.Add("customer", "not_found", "customer does not exist")
		}
	}

	retained := len(baselineItems)
	deleted := map[snowflake.ID]struct{}{}
	for idx, item := range items {
		switch item.op {
		case invoicedomain.ItemOpAdd:
			retained++
		case invoicedomain.ItemOpUpdate, invoicedomain.ItemOpDelete:
			if item.id == 0 {
				continue // already reported by parseItems
			}
			if _, ok := baselineItems[item.id]; !ok {
				verrs.AddRow(idx, "id", "unknown_item", "item does not belong to this invoice")
				continue
			}
			if item.op == invoicedomain.ItemOpDelete {
				if _, seen := deleted[item.id]; !seen {
					deleted[item.id] = struct{}{}
					retained--
				}
			}
		}
	}
	if retained < 1 {
		verrs.Add("items", "min_items", "an invoice needs at least one line item")
	}

	if !verrs.Empty() {
		return 0, verrs
	}

	var savedID snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customerID := existingCustomerID
		if newCustomerName != "" {
			customer, err := s.customerSvc.GetOrCreateByName(ctx, tx, newCustomerName)
			if err != nil {
				return err
			}
			customerID = customer.ID
		}

		now := time.Now().UTC()
		if updating {
			if err := s.updateInvoiceHeader(ctx, tx, invoiceID, customerID, req, status, now); err != nil {
				return err
			}
			savedID = invoiceID
		} else {
			number := strings.TrimSpace(req.InvoiceNumber)
			if number == "" {
				number = format.NewInvoiceNumber()
			}
			invoice := invoicedomain.Invoice{
				ID:            s.genID.Generate(),
				CustomerID:    customerID,
				InvoiceNumber: number,
				IssueDate:     req.IssueDate,
				DueDate:       req.DueDate,
				Status:        status,
				Notes:         req.Notes,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.insertInvoice(ctx, tx, invoice); err != nil {
				return err
			}
			savedID = invoice.ID
		}

		// Deletions first, then updates, then insertions, so the
		// retained-row invariant holds against the final state.
		for _, item := range items {
			if item.op != invoicedomain.ItemOpDelete {
				continue
			}
			if err := s.deleteInvoiceItem(ctx, tx, savedID, item.id); err != nil {
				return err
			}
		}
		for _, item := range items {
			if item.op != invoicedomain.ItemOpUpdate {
				continue
			}
			if _, gone := deleted[item.id]; gone {
				continue
			}
			if err := s.updateInvoiceItem(ctx, tx, savedID, item); err != nil {
				return err
			}
		}
		for _, item := range items {
			if item.op != invoicedomain.ItemOpAdd {
				continue
			}
			if err := s.insertInvoiceItem(ctx, tx, invoicedomain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   savedID,
				Description: item.desc,
				Quantity:    item.quantity,
				UnitPrice:   item.unitPrice,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("invoice saved",
		zap.String("invoice_id", savedID.String()),
		zap.Bool("created", !updating),
		zap.Int("item_ops", len(items)),
	)
	return savedID, nil
}

func (s *Service) parseItems(ops []invoicedomain.ItemOp, verrs *invoicedomain.ValidationErrors) []parsedItem {
	items := make([]parsedItem, 0, len(ops))
	for idx, op := range ops {
		item := parsedItem{op: normalizeOp(op)}

		switch item.op {
		case invoicedomain.ItemOpAdd:
		case invoicedomain.ItemOpUpdate, invoicedomain.ItemOpDelete:
			id, err := snowflake.ParseString(strings.TrimSpace(op.ID))
			if err != nil || id == 0 {
				verrs.AddRow(idx, "id", "invalid_id", "an existing item id is required")
			} else {
				item.id = id
			}
		default:
			verrs.AddRow(idx, "op", "invalid_op", "op must be add, update or delete")
			items = append(items, item)
			continue
		}

		// Deleted rows carry no editable fields worth validating.
		if item.op != invoicedomain.ItemOpDelete {
			item.desc = strings.TrimSpace(op.Description)
			if item.desc == "" {
				verrs.AddRow(idx, "description", "required", "description is required")
			}
			item.quantity = parseAmount(op.Quantity, idx, "quantity", verrs)
			item.unitPrice = parseAmount(op.UnitPrice, idx, "unit_price", verrs)
		}

		items = append(items, item)
	}
	return items
}

// parseAmount decodes an optional decimal string with at most two
// fractional digits. Absent values stay nil; the zero-coalescing rule
// applies at computation time, not here.
func parseAmount(raw *string, row int, field string, verrs *invoicedomain.ValidationErrors) *decimal.Decimal {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		verrs.AddRow(row, field, "invalid_decimal", "must be a decimal number")
		return nil
	}
	if value.Exponent() < -2 {
		verrs.AddRow(row, field, "too_many_decimals", "at most 2 fractional digits allowed")
		return nil
	}
	return &value
}

func normalizeOp(op invoicedomain.ItemOp) invoicedomain.ItemOpKind {
	switch op.Op {
	case invoicedomain.ItemOpAdd, invoicedomain.ItemOpUpdate, invoicedomain.ItemOpDelete:
		return op.Op
	case "":
		// Untagged rows follow formset conventions: an id means update.
		if strings.TrimSpace(op.ID) != "" {
			return invoicedomain.ItemOpUpdate
		}
		return invoicedomain.ItemOpAdd
	default:
		return op.Op
	}
}

func (s *Service) customerExists(ctx context.Context, id snowflake.ID) (bool, error) {
	var found snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM customers WHERE id = ?`,
		id,
	).Scan(&found).Error
	if err != nil {
		return false, err
	}
	return found != 0, nil
}

func (s *Service) loadInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, invoice_number, issue_date, due_date, status, notes, created_at, updated_at
		 FROM invoices WHERE id = ?`,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (s *Service) listItemIDs(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (map[snowflake.ID]struct{}, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM invoice_items WHERE invoice_id = ?`,
		invoiceID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	set := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (s *Service) insertInvoice(ctx context.Context, tx *gorm.DB, invoice invoicedomain.Invoice) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO invoices (id, customer_id, invoice_number, issue_date, due_date, status, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.CustomerID,
		invoice.InvoiceNumber,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.Status,
		invoice.Notes,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

// updateInvoiceHeader never touches invoice_number: once assigned it
// stays for the life of the invoice.
func (s *Service) updateInvoiceHeader(ctx context.Context, tx *gorm.DB, id, customerID snowflake.ID, req invoicedomain.SaveInvoiceRequest, status invoicedomain.InvoiceStatus, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET customer_id = ?, issue_date = ?, due_date = ?, status = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		customerID,
		req.IssueDate,
		req.DueDate,
		status,
		req.Notes,
		now,
		id,
	).Error
}

func (s *Service) deleteInvoiceItem(ctx context.Context, tx *gorm.DB, invoiceID, itemID snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`DELETE FROM invoice_items WHERE invoice_id = ? AND id = ?`,
		invoiceID,
		itemID,
	).Error
}

func (s *Service) updateInvoiceItem(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, item parsedItem) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE invoice_items
		 SET description = ?, quantity = ?, unit_price = ?
		 WHERE invoice_id = ? AND id = ?`,
		item.desc,
		item.quantity,
		item.unitPrice,
		invoiceID,
		item.id,
	).Error
}

func (s *Service) insertInvoiceItem(ctx context.Context, tx *gorm.DB, item invoicedomain.InvoiceItem) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.InvoiceID,
		item.Description,
		item.Quantity,
		item.UnitPrice,
		item.CreatedAt,
	).Error
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}
