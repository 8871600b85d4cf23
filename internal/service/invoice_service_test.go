package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
	"github.com/AnchalDevBytes/challan-maker/pkg/config"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
)

type mockInvoiceRepo struct {
	inserted  []*models.Invoice
	evicted   *models.Invoice
	listed    []models.Invoice
	listCalls int
	insertErr error
}

func (m *mockInvoiceRepo) InsertCapped(_ context.Context, invoice *models.Invoice, _ int) (*models.Invoice, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.inserted = append(m.inserted, invoice)
	return m.evicted, nil
}

func (m *mockInvoiceRepo) ListByUser(_ context.Context, _ string, _ int) ([]models.Invoice, error) {
	m.listCalls++
	return m.listed, nil
}

type stubCache struct {
	store map[string][]byte
}

func (s *stubCache) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCache) Delete(_ context.Context, key string) error {
	delete(s.store, key)
	return nil
}

type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) Render(models.InvoicePayload) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

type fakeObjectStore struct {
	uploads map[string][]byte
	deleted []string
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func validPayload() models.InvoicePayload {
	return models.InvoicePayload{
		InvoiceNumber: "INV-001",
		IssueDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		SenderDetails: models.PartyDetails{Name: "Acme Corp"},
		ClientDetails: models.PartyDetails{Name: "Globex Inc"},
		Items: []models.InvoiceItem{
			{Description: "Consulting", Quantity: 10, UnitPrice: 100},
			{Description: "Support", Quantity: 2, UnitPrice: 50},
		},
		TaxRate:  18,
		Shipping: 30,
		Discount: 100,
	}
}

func newTestInvoiceService(repo *mockInvoiceRepo, cache *stubCache, store *fakeObjectStore) *InvoiceService {
	return NewInvoiceService(repo, cache, &fakeRenderer{}, store, nil, nil, nil, config.InvoicesConfig{
		MaxPerUser:   5,
		ListCacheTTL: time.Minute,
	})
}

func TestInvoiceTotalComputation(t *testing.T) {
	p := validPayload()
	assert.InDelta(t, 1100.0, p.Subtotal(), 0.001)
	// subtotal + 18% tax + shipping - discount
	assert.InDelta(t, 1100+198+30-100, p.Total(), 0.001)
}

func TestCreateInvoiceStoresPDFAndRecord(t *testing.T) {
	repo := &mockInvoiceRepo{}
	cache := &stubCache{store: map[string][]byte{"invoices:list:u1": []byte("[]")}}
	store := &fakeObjectStore{}
	svc := newTestInvoiceService(repo, cache, store)

	invoice, err := svc.Create(context.Background(), "u1", validPayload())
	require.NoError(t, err)

	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "u1", invoice.UserID)
	assert.Equal(t, "INV-001", invoice.InvoiceNumber)
	assert.Equal(t, "Globex Inc", invoice.CustomerName)
	assert.InDelta(t, 1228.0, invoice.TotalAmount, 0.001)
	assert.Equal(t, models.InvoiceDraft, invoice.Status)
	assert.True(t, strings.HasPrefix(invoice.PDFKey, "invoices/u1/"))
	assert.True(t, strings.HasSuffix(invoice.PDFKey, ".pdf"))
	assert.Contains(t, store.uploads, invoice.PDFKey)

	// Creation invalidates the cached listing.
	_, cached := cache.store["invoices:list:u1"]
	assert.False(t, cached)
}

func TestCreateInvoiceRejectsInvalidPayload(t *testing.T) {
	repo := &mockInvoiceRepo{}
	store := &fakeObjectStore{}
	svc := newTestInvoiceService(repo, &stubCache{}, store)

	payload := validPayload()
	payload.Items = nil

	_, err := svc.Create(context.Background(), "u1", payload)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, repo.inserted)
	assert.Empty(t, store.uploads)
}

func TestCreateInvoiceDeletesEvictedPDF(t *testing.T) {
	repo := &mockInvoiceRepo{evicted: &models.Invoice{ID: "old", PDFKey: "invoices/u1/old.pdf"}}
	store := &fakeObjectStore{}
	svc := newTestInvoiceService(repo, &stubCache{}, store)

	_, err := svc.Create(context.Background(), "u1", validPayload())
	require.NoError(t, err)
	assert.Contains(t, store.deleted, "invoices/u1/old.pdf")
}

func TestCreateInvoiceCleansUpPDFOnInsertFailure(t *testing.T) {
	repo := &mockInvoiceRepo{insertErr: errors.New("db down")}
	store := &fakeObjectStore{}
	svc := newTestInvoiceService(repo, &stubCache{}, store)

	_, err := svc.Create(context.Background(), "u1", validPayload())
	require.Error(t, err)
	require.Len(t, store.deleted, 1)
	assert.True(t, strings.HasPrefix(store.deleted[0], "invoices/u1/"))
}

func TestListInvoicesUsesCache(t *testing.T) {
	repo := &mockInvoiceRepo{listed: []models.Invoice{{ID: "inv-1", UserID: "u1"}}}
	cache := &stubCache{}
	svc := newTestInvoiceService(repo, cache, &fakeObjectStore{})
	ctx := context.Background()

	first, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.listCalls)

	second, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "inv-1", second[0].ID)
	assert.Equal(t, 1, repo.listCalls, "second listing served from cache")
}
