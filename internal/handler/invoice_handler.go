package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AnchalDevBytes/challan-maker/internal/middleware"
	"github.com/AnchalDevBytes/challan-maker/internal/models"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
	"github.com/AnchalDevBytes/challan-maker/pkg/response"
)

type invoiceService interface {
	Create(ctx context.Context, userID string, payload models.InvoicePayload) (*models.Invoice, error)
	List(ctx context.Context, userID string) ([]models.Invoice, error)
}

// InvoiceHandler exposes invoice creation and listing endpoints.
type InvoiceHandler struct {
	invoices invoiceService
}

// NewInvoiceHandler constructs an InvoiceHandler instance.
func NewInvoiceHandler(invoices invoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// Create renders and stores a new invoice for the authenticated user.
func (h *InvoiceHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload models.InvoicePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	invoice, err := h.invoices.Create(c.Request.Context(), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invoice)
}

// List returns the authenticated user's recent invoices.
func (h *InvoiceHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	invoices, err := h.invoices.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoices, nil)
}
