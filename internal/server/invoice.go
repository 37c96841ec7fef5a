package server

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/facture/internal/invoice/domain"
)

type saveInvoiceRequest struct {
	CustomerID      string          `json:"customer_id"`
	NewCustomerName string          `json:"new_customer_name"`
	InvoiceNumber   string          `json:"invoice_number"`
	IssueDate       string          `json:"issue_date"`
	DueDate         string          `json:"due_date"`
	Status          string          `json:"status"`
	Notes           string          `json:"notes"`
	Items           []itemOpRequest `json:"items"`
}

type itemOpRequest struct {
	Op          string  `json:"op"`
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Quantity    *string `json:"quantity"`
	UnitPrice   *string `json:"unit_price"`
}

const dateLayout = "2006-01-02"

func (s *Server) ListInvoices(c *gin.Context) {
	invoices, err := s.invoiceSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	item, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	req, err := s.bindSaveRequest(c, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := s.invoiceSvc.Save(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"id": id.String()}})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	req, err := s.bindSaveRequest(c, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := s.invoiceSvc.Save(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id.String()}})
}

func (s *Server) GetInvoiceHTML(c *gin.Context) {
	doc, err := s.invoiceSvc.RenderInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

func (s *Server) GetInvoicePDF(c *gin.Context) {
	resp, err := s.invoiceSvc.RenderInvoicePDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		// Degrade to a diagnostic echo of the HTML that failed to
		// convert instead of an opaque failure.
		var rErr *invoicedomain.RenderError
		if errors.As(err, &rErr) {
			body := "We had some errors <pre>" + html.EscapeString(rErr.HTML) + "</pre>"
			c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(body))
			return
		}
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", resp.Filename))
	c.Data(http.StatusOK, resp.ContentType, resp.Data)
}

func (s *Server) bindSaveRequest(c *gin.Context, invoiceID string) (invoicedomain.SaveInvoiceRequest, error) {
	var body saveInvoiceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return invoicedomain.SaveInvoiceRequest{}, invalidRequestError()
	}

	verrs := &invoicedomain.ValidationErrors{}
	issueDate := parseDate(body.IssueDate, "issue_date", verrs)
	dueDate := parseDate(body.DueDate, "due_date", verrs)
	if !verrs.Empty() {
		return invoicedomain.SaveInvoiceRequest{}, verrs
	}

	items := make([]invoicedomain.ItemOp, 0, len(body.Items))
	for _, item := range body.Items {
		items = append(items, invoicedomain.ItemOp{
			Op:          invoicedomain.ItemOpKind(strings.ToLower(strings.TrimSpace(item.Op))),
			ID:          item.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	return invoicedomain.SaveInvoiceRequest{
		InvoiceID: invoiceID,
		Customer: invoicedomain.CustomerRef{
			ExistingID: body.CustomerID,
			NewName:    body.NewCustomerName,
		},
		InvoiceNumber: body.InvoiceNumber,
		IssueDate:     issueDate,
		DueDate:       dueDate,
		Status:        body.Status,
		Notes:         body.Notes,
		Items:         items,
	}, nil
}

func parseDate(raw, field string, verrs *invoicedomain.ValidationErrors) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		// Leave zero; the service reports the missing field.
		return time.Time{}
	}
	value, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		verrs.Add(field, "invalid_date", "must be a YYYY-MM-DD date")
		return time.Time{}
	}
	return value
}
