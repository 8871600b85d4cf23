package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnchalDevBytes/challan-maker/internal/middleware"
	"github.com/AnchalDevBytes/challan-maker/internal/models"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
)

type invoiceServiceMock struct {
	createResp *models.Invoice
	createErr  error
	listResp   []models.Invoice
	listErr    error
	lastUserID string
}

func (m *invoiceServiceMock) Create(_ context.Context, userID string, _ models.InvoicePayload) (*models.Invoice, error) {
	m.lastUserID = userID
	return m.createResp, m.createErr
}

func (m *invoiceServiceMock) List(_ context.Context, userID string) ([]models.Invoice, error) {
	m.lastUserID = userID
	return m.listResp, m.listErr
}

func invoiceBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	payload := models.InvoicePayload{
		InvoiceNumber: "INV-001",
		IssueDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		SenderDetails: models.PartyDetails{Name: "Acme Corp"},
		ClientDetails: models.PartyDetails{Name: "Globex Inc"},
		Items:         []models.InvoiceItem{{Description: "Consulting", Quantity: 1, UnitPrice: 100}},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestInvoiceHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &invoiceServiceMock{
		createResp: &models.Invoice{ID: "inv-1", UserID: "u1", InvoiceNumber: "INV-001"},
	}
	handler := NewInvoiceHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/invoices", invoiceBody(t))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, "u1")

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u1", mockSvc.lastUserID)
	assert.Contains(t, w.Body.String(), "inv-1")
}

func TestInvoiceHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewInvoiceHandler(&invoiceServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/invoices", bytes.NewBufferString(`{"invoice_number":`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, "u1")

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoiceHandlerCreateWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewInvoiceHandler(&invoiceServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/invoices", invoiceBody(t))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvoiceHandlerCreateValidationError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewInvoiceHandler(&invoiceServiceMock{createErr: appErrors.ErrValidation})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/invoices", invoiceBody(t))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, "u1")

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoiceHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &invoiceServiceMock{
		listResp: []models.Invoice{{ID: "inv-1"}, {ID: "inv-2"}},
	}
	handler := NewInvoiceHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/invoices", nil)
	c.Set(middleware.ContextUserKey, "u1")

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", mockSvc.lastUserID)
	assert.Contains(t, w.Body.String(), "inv-2")
}
