package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	customerdomain "github.com/smallbiznis/facture/internal/customer/domain"
	customerrepository "github.com/smallbiznis/facture/internal/customer/repository"
	customerservice "github.com/smallbiznis/facture/internal/customer/service"
	invoicedomain "github.com/smallbiznis/facture/internal/invoice/domain"
	"github.com/smallbiznis/facture/internal/invoice/render"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&customerdomain.Customer{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	customers := customerservice.New(customerservice.Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  customerrepository.Provide(),
	})

	svc := NewService(ServiceParam{
		DB:          gdb,
		Log:         zap.NewNop(),
		GenID:       node,
		CustomerSvc: customers,
		Renderer:    render.NewRenderer(),
	})
	return svc.(*Service)
}

func strp(v string) *string { return &v }

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func addItem(desc string, quantity, unitPrice *string) invoicedomain.ItemOp {
	return invoicedomain.ItemOp{
		Op:          invoicedomain.ItemOpAdd,
		Description: desc,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	}
}

func countRows(t *testing.T, gdb *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Raw("SELECT COUNT(*) FROM "+table).Scan(&n).Error)
	return n
}

func hasFieldError(verrs *invoicedomain.ValidationErrors, field, code string) bool {
	for _, e := range verrs.Errors {
		if e.Field == field && e.Code == code {
			return true
		}
	}
	return false
}

func TestSaveCreatesInvoiceWithNewCustomer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:  invoicedomain.CustomerRef{NewName: "Acme Corp"},
		IssueDate: date(2026, time.January, 15),
		DueDate:   date(2026, time.February, 15),
		Notes:     "Net 30",
		Items: []invoicedomain.ItemOp{
			addItem("Consulting", strp("3"), strp("19.99")),
			addItem("Hosting", nil, strp("10.00")),
		},
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	invoice, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(invoice.InvoiceNumber, "INV-"))
	assert.Len(t, invoice.InvoiceNumber, 12)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, "Net 30", invoice.Notes)
	require.NotNil(t, invoice.Customer)
	assert.Equal(t, "Acme Corp", invoice.Customer.Name)

	require.Len(t, invoice.Items, 2)
	assert.Equal(t, "Consulting", invoice.Items[0].Description)
	assert.Equal(t, "59.97", invoice.Items[0].LineTotal.StringFixed(2))
	// Absent quantity coalesces to zero in the line total.
	assert.Nil(t, invoice.Items[1].Quantity)
	assert.Equal(t, "0.00", invoice.Items[1].LineTotal.StringFixed(2))
	assert.Equal(t, "59.97", invoice.TotalAmount.StringFixed(2))
}

func TestSaveHonorsProvidedNumberOnCreate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:      invoicedomain.CustomerRef{NewName: "Acme Corp"},
		InvoiceNumber: "INV-CUSTOM01",
		IssueDate:     date(2026, time.March, 1),
		DueDate:       date(2026, time.March, 31),
		Items:         []invoicedomain.ItemOp{addItem("Audit", strp("1"), strp("500"))},
	})
	require.NoError(t, err)

	invoice, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, "INV-CUSTOM01", invoice.InvoiceNumber)
}

func TestSaveReusesCustomerByName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := invoicedomain.SaveInvoiceRequest{
		Customer:  invoicedomain.CustomerRef{NewName: "Globex"},
		IssueDate: date(2026, time.April, 1),
		DueDate:   date(2026, time.May, 1),
		Items:     []invoicedomain.ItemOp{addItem("Support", strp("1"), strp("99.00"))},
	}

	first, err := svc.Save(ctx, base)
	require.NoError(t, err)
	second, err := svc.Save(ctx, base)
	require.NoError(t, err)

	assert.EqualValues(t, 1, countRows(t, svc.db, "customers"))

	a, err := svc.GetByID(ctx, first.String())
	require.NoError(t, err)
	b, err := svc.GetByID(ctx, second.String())
	require.NoError(t, err)
	assert.Equal(t, a.CustomerID, b.CustomerID)
}

func TestSaveWithExistingCustomerID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	customer, err := svc.customerSvc.Create(ctx, customerdomain.CreateCustomerRequest{Name: "Initech"})
	require.NoError(t, err)

	id, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:  invoicedomain.CustomerRef{ExistingID: customer.ID.String()},
		IssueDate: date(2026, time.June, 1),
		DueDate:   date(2026, time.June, 30),
		Items:     []invoicedomain.ItemOp{addItem("TPS reports", strp("10"), strp("1.50"))},
	})
	require.NoError(t, err)

	invoice, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, customer.ID, invoice.CustomerID)
	assert.EqualValues(t, 1, countRows(t, svc.db, "customers"))
}

func TestSaveRejectsUnknownCustomerID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:  invoicedomain.CustomerRef{ExistingID: svc.genID.Generate().String()},
		IssueDate: date(2026, time.June, 1),
		DueDate:   date(2026, time.June, 30),
		Items:     []invoicedomain.ItemOp{addItem("Widget", strp("1"), strp("1.00"))},
	})

	var verrs *invoicedomain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, hasFieldError(verrs, "customer", "not_found"))
	assert.EqualValues(t, 0, countRows(t, svc.db, "invoices"))
}

func TestSaveAggregatesValidationErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Status: "Bogus",
		Items: []invoicedomain.ItemOp{
			addItem("", strp("19.999"), strp("abc")),
		},
	})

	var verrs *invoicedomain.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	assert.True(t, hasFieldError(verrs, "status", "invalid_status"))
	assert.True(t, hasFieldError(verrs, "issue_date", "required"))
	assert.True(t, hasFieldError(verrs, "due_date", "required"))
	assert.True(t, hasFieldError(verrs, "customer", "required"))
	assert.True(t, hasFieldError(verrs, "items[0].description", "required"))
	assert.True(t, hasFieldError(verrs, "items[0].quantity", "too_many_decimals"))
	assert.True(t, hasFieldError(verrs, "items[0].unit_price", "invalid_decimal"))

	// The whole submission is rejected; nothing touches the database.
	assert.EqualValues(t, 0, countRows(t, svc.db, "customers"))
	assert.EqualValues(t, 0, countRows(t, svc.db, "invoices"))
	assert.EqualValues(t, 0, countRows(t, svc.db, "invoice_items"))
}

func TestSaveRejectsDeletingEveryItem(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:  invoicedomain.CustomerRef{NewName: "Hooli"},
		IssueDate: date(2026, time.July, 1),
		DueDate:   date(2026, time.July, 31),
		Items: []invoicedomain.ItemOp{
			addItem("Compression", strp("1"), strp("100.00")),
			addItem("Storage", strp("2"), strp("50.00")),
		},
	})
	require.NoError(t, err)

	invoice, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)
	require.Len(t, invoice.Items, 2)

	ops := make([]invoicedomain.ItemOp, 0, 2)
	for _, item := range invoice.Items {
		ops = append(ops, invoicedomain.ItemOp{
			Op: invoicedomain.ItemOpDelete,
			ID: item.ID.String(),
		})
	}

	_, err = svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		InvoiceID: id.String(),
		Customer:  invoicedomain.CustomerRef{ExistingID: invoice.CustomerID.String()},
		IssueDate: invoice.IssueDate,
		DueDate:   invoice.DueDate,
		Items:     ops,
	})

	var verrs *invoicedomain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, hasFieldError(verrs, "items", "min_items"))

	after, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)
	assert.Len(t, after.Items, 2)
}

func TestSaveAppliesMixedOpsAtomically(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:  invoicedomain.CustomerRef{NewName: "Vandelay"},
		IssueDate: date(2026, time.August, 1),
		DueDate:   date(2026, time.August, 31),
		Items: []invoicedomain.ItemOp{
			addItem("Import", strp("1"), strp("10.00")),
			addItem("Export", strp("1"), strp("20.00")),
		},
	})
	require.NoError(t, err)

	invoice, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)
	require.Len(t, invoice.Items, 2)
	importItem, exportItem := invoice.Items[0], invoice.Items[1]

	_, err = svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		InvoiceID: id.String(),
		Customer:  invoicedomain.CustomerRef{ExistingID: invoice.CustomerID.String()},
		IssueDate: invoice.IssueDate,
		DueDate:   invoice.DueDate,
		Status:    "Sent",
		Items: []invoicedomain.ItemOp{
			{Op: invoicedomain.ItemOpDelete, ID: importItem.ID.String()},
			{
				Op:          invoicedomain.ItemOpUpdate,
				ID:          exportItem.ID.String(),
				Description: "Latex export",
				Quantity:    strp("2"),
				UnitPrice:   strp("5.00"),
			},
			addItem("Consulting", strp("3"), strp("19.99")),
		},
	})
	require.NoError(t, err)

	after, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, after.Status)
	require.Len(t, after.Items, 2)

	descriptions := []string{after.Items[0].Description, after.Items[1].Description}
	assert.ElementsMatch(t, []string{"Latex export", "Consulting"}, descriptions)
	assert.Equal(t, "69.97", after.TotalAmount.StringFixed(2))
}

func TestSaveKeepsInvoiceNumberAcrossUpdates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:  invoicedomain.CustomerRef{NewName: "Stark Industries"},
		IssueDate: date(2026, time.September, 1),
		DueDate:   date(2026, time.October, 1),
		Items:     []invoicedomain.ItemOp{addItem("Prototype", strp("1"), strp("1000.00"))},
	})
	require.NoError(t, err)

	before, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)

	_, err = svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		InvoiceID:     id.String(),
		Customer:      invoicedomain.CustomerRef{ExistingID: before.CustomerID.String()},
		InvoiceNumber: "INV-FORGED00",
		IssueDate:     before.IssueDate,
		DueDate:       before.DueDate,
		Notes:         "revised",
		Items:         nil,
	})
	require.NoError(t, err)

	after, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, before.InvoiceNumber, after.InvoiceNumber)
	assert.Equal(t, "revised", after.Notes)
}

func TestSaveRejectsItemFromAnotherInvoice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:  invoicedomain.CustomerRef{NewName: "Wayne Enterprises"},
		IssueDate: date(2026, time.October, 1),
		DueDate:   date(2026, time.November, 1),
		Items:     []invoicedomain.ItemOp{addItem("Grappling hook", strp("1"), strp("250.00"))},
	})
	require.NoError(t, err)

	invoice, err := svc.GetByID(ctx, id.String())
	require.NoError(t, err)

	_, err = svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		InvoiceID: id.String(),
		Customer:  invoicedomain.CustomerRef{ExistingID: invoice.CustomerID.String()},
		IssueDate: invoice.IssueDate,
		DueDate:   invoice.DueDate,
		Items: []invoicedomain.ItemOp{
			{
				Op:          invoicedomain.ItemOpUpdate,
				ID:          svc.genID.Generate().String(),
				Description: "Hijacked",
				Quantity:    strp("1"),
				UnitPrice:   strp("1.00"),
			},
		},
	})

	var verrs *invoicedomain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, hasFieldError(verrs, "items[0].id", "unknown_item"))
}

func TestSaveRollsBackWholeSubmissionOnDuplicateNumber(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:      invoicedomain.CustomerRef{NewName: "Acme Corp"},
		InvoiceNumber: "INV-SAMESAME",
		IssueDate:     date(2026, time.January, 15),
		DueDate:       date(2026, time.February, 15),
		Items:         []invoicedomain.ItemOp{addItem("Consulting", strp("3"), strp("19.99"))},
	})
	require.NoError(t, err)

	// Passes validation, then the header insert hits the unique number
	// constraint inside the transaction. The customer row created by
	// get-or-create and both item inserts must roll back with it.
	_, err = svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
		Customer:      invoicedomain.CustomerRef{NewName: "Globex"},
		InvoiceNumber: "INV-SAMESAME",
		IssueDate:     date(2026, time.March, 1),
		DueDate:       date(2026, time.March, 31),
		Items: []invoicedomain.ItemOp{
			addItem("Audit", strp("1"), strp("500.00")),
			addItem("Travel", strp("2"), strp("75.00")),
		},
	})
	require.Error(t, err)

	assert.EqualValues(t, 1, countRows(t, svc.db, "invoices"))
	assert.EqualValues(t, 1, countRows(t, svc.db, "invoice_items"))
	assert.EqualValues(t, 1, countRows(t, svc.db, "customers"))
}

func TestSaveUpdateUnknownInvoice(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Save(context.Background(), invoicedomain.SaveInvoiceRequest{
		InvoiceID: svc.genID.Generate().String(),
		Customer:  invoicedomain.CustomerRef{NewName: "Ghost"},
		IssueDate: date(2026, time.October, 1),
		DueDate:   date(2026, time.November, 1),
		Items:     []invoicedomain.ItemOp{addItem("Nothing", strp("1"), strp("0.01"))},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestListOrdersByIssueDateDescending(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, day := range []int{10, 25, 3} {
		_, err := svc.Save(ctx, invoicedomain.SaveInvoiceRequest{
			Customer:  invoicedomain.CustomerRef{NewName: "Umbrella"},
			IssueDate: date(2026, time.May, day),
			DueDate:   date(2026, time.June, day),
			Items:     []invoicedomain.ItemOp{addItem("Research", strp("1"), strp("5.00"))},
		})
		require.NoError(t, err)
	}

	invoices, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 3)

	for i := 1; i < len(invoices); i++ {
		assert.False(t, invoices[i-1].IssueDate.Before(invoices[i].IssueDate),
			"invoices out of order at %d", i)
	}
	require.NotNil(t, invoices[0].Customer)
	assert.Equal(t, "Umbrella", invoices[0].Customer.Name)
}

func TestGetByIDErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetByID(ctx, "not-a-snowflake")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidInvoiceID)

	_, err = svc.GetByID(ctx, svc.genID.Generate().String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
