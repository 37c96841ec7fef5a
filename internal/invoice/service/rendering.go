package service

import (
	"context"
	"errors"
	"fmt"

	invoicedomain "github.com/smallbiznis/facture/internal/invoice/domain"
	"github.com/smallbiznis/facture/internal/invoice/render"
	"go.uber.org/zap"
)

// RenderInvoice produces the HTML document for a fully-loaded invoice.
func (s *Service) RenderInvoice(ctx context.Context, invoiceID string) (string, error) {
	if s.renderer == nil {
		return "", errors.New("renderer_not_configured")
	}

	invoice, err := s.GetByID(ctx, invoiceID)
	if err != nil {
		return "", err
	}

	return s.renderer.RenderHTML(render.RenderInput{
		Invoice:  buildInvoiceView(invoice),
		Customer: buildCustomerView(invoice),
		Items:    buildLineItemViews(invoice.Items),
	})
}

// RenderInvoicePDF renders the HTML and hands it to the conversion
// collaborator. On conversion failure the offending HTML rides along
// in a RenderError so the operator can see what failed to render.
func (s *Service) RenderInvoicePDF(ctx context.Context, invoiceID string) (invoicedomain.RenderPDFResponse, error) {
	if s.pdf == nil {
		return invoicedomain.RenderPDFResponse{}, errors.New("pdf_converter_not_configured")
	}

	invoice, err := s.GetByID(ctx, invoiceID)
	if err != nil {
		return invoicedomain.RenderPDFResponse{}, err
	}

	html, err := s.renderer.RenderHTML(render.RenderInput{
		Invoice:  buildInvoiceView(invoice),
		Customer: buildCustomerView(invoice),
		Items:    buildLineItemViews(invoice.Items),
	})
	if err != nil {
		return invoicedomain.RenderPDFResponse{}, err
	}

	data, err := s.pdf.Convert(ctx, html)
	if err != nil {
		s.log.Warn("pdf conversion failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
		return invoicedomain.RenderPDFResponse{}, &invoicedomain.RenderError{HTML: html, Err: err}
	}

	return invoicedomain.RenderPDFResponse{
		Data:        data,
		ContentType: "application/pdf",
		Filename:    fmt.Sprintf("invoice_%s.pdf", invoice.InvoiceNumber),
	}, nil
}

func buildInvoiceView(invoice invoicedomain.Invoice) render.InvoiceView {
	return render.InvoiceView{
		ID:          invoice.ID.String(),
		Number:      invoice.InvoiceNumber,
		Status:      string(invoice.Status),
		IssueDate:   invoice.IssueDate,
		DueDate:     invoice.DueDate,
		Notes:       invoice.Notes,
		TotalAmount: invoice.TotalAmount,
	}
}

func buildCustomerView(invoice invoicedomain.Invoice) render.CustomerView {
	if invoice.Customer == nil {
		return render.CustomerView{}
	}
	return render.CustomerView{
		Name:    invoice.Customer.Name,
		Email:   invoice.Customer.Email,
		Address: invoice.Customer.Address,
		Phone:   invoice.Customer.Phone,
	}
}

func buildLineItemViews(items []invoicedomain.InvoiceItem) []render.LineItemView {
	views := make([]render.LineItemView, 0, len(items))
	for _, item := range items {
		view := render.LineItemView{
			Description: item.Description,
			LineTotal:   item.ComputeLineTotal(),
		}
		if item.Quantity != nil {
			view.Quantity = *item.Quantity
		}
		if item.UnitPrice != nil {
			view.UnitPrice = *item.UnitPrice
		}
		views = append(views, view)
	}
	return views
}
