package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
	"github.com/AnchalDevBytes/challan-maker/pkg/config"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
	"github.com/AnchalDevBytes/challan-maker/pkg/storage"
)

type invoiceRepository interface {
	InsertCapped(ctx context.Context, invoice *models.Invoice, maxPerUser int) (*models.Invoice, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Invoice, error)
}

type invoiceCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type invoiceRenderer interface {
	Render(p models.InvoicePayload) ([]byte, error)
}

// InvoiceService renders, stores and lists invoices. History is capped per
// user: creating an invoice beyond the cap evicts the oldest one.
type InvoiceService struct {
	repo      invoiceRepository
	cache     invoiceCache
	renderer  invoiceRenderer
	store     storage.ObjectStore
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	cfg       config.InvoicesConfig
}

// NewInvoiceService constructs an InvoiceService instance.
func NewInvoiceService(repo invoiceRepository, cache invoiceCache, renderer invoiceRenderer, store storage.ObjectStore, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cfg config.InvoicesConfig) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = 5
	}
	if cfg.ListCacheTTL <= 0 {
		cfg.ListCacheTTL = 5 * time.Minute
	}
	return &InvoiceService{repo: repo, cache: cache, renderer: renderer, store: store, validator: validate, logger: logger, metrics: metrics, cfg: cfg}
}

// Create validates the payload, renders the PDF, uploads it and persists the
// invoice. Returns the stored invoice.
func (s *InvoiceService) Create(ctx context.Context, userID string, payload models.InvoicePayload) (*models.Invoice, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invoice payload")
	}
	if payload.Status == "" {
		payload.Status = models.InvoiceDraft
	}
	if payload.Currency == "" {
		payload.Currency = "INR"
	}

	pdfBytes, err := s.renderer.Render(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice PDF")
	}

	key := fmt.Sprintf("invoices/%s/%s.pdf", userID, uuid.NewString())
	url, err := s.store.Upload(ctx, key, pdfBytes, "application/pdf")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store invoice PDF")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode invoice data")
	}

	invoice := &models.Invoice{
		ID:            uuid.NewString(),
		UserID:        userID,
		InvoiceNumber: payload.InvoiceNumber,
		CustomerName:  payload.ClientDetails.Name,
		TotalAmount:   payload.Total(),
		Status:        payload.Status,
		IssueDate:     payload.IssueDate,
		DueDate:       payload.DueDate,
		Currency:      payload.Currency,
		PDFKey:        key,
		PDFURL:        url,
		InvoiceData:   data,
		CreatedAt:     time.Now().UTC(),
	}

	evicted, err := s.repo.InsertCapped(ctx, invoice, s.cfg.MaxPerUser)
	if err != nil {
		// The invoice row failed; remove the orphaned PDF.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to delete orphaned invoice PDF", zap.String("key", key), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist invoice")
	}

	if evicted != nil {
		s.logger.Info("evicted oldest invoice to hold history cap",
			zap.String("user_id", userID),
			zap.String("invoice_id", evicted.ID))
		if err := s.store.Delete(ctx, evicted.PDFKey); err != nil {
			s.logger.Warn("failed to delete evicted invoice PDF", zap.String("key", evicted.PDFKey), zap.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, listCacheKey(userID)); err != nil {
			s.logger.Warn("failed to invalidate invoice list cache", zap.Error(err))
		}
	}

	s.logger.Info("invoice created",
		zap.String("user_id", userID),
		zap.String("invoice_id", invoice.ID),
		zap.String("invoice_number", invoice.InvoiceNumber))
	return invoice, nil
}

// List returns the user's recent invoices, served from cache when possible.
func (s *InvoiceService) List(ctx context.Context, userID string) ([]models.Invoice, error) {
	key := listCacheKey(userID)

	if s.cache != nil {
		var cached []models.Invoice
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheLookup(true)
			}
			return cached, nil
		}
		if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("invoice list cache lookup failed", zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(false)
		}
	}

	invoices, err := s.repo.ListByUser(ctx, userID, s.cfg.MaxPerUser)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, invoices, s.cfg.ListCacheTTL); err != nil {
			s.logger.Warn("failed to cache invoice list", zap.Error(err))
		}
	}
	return invoices, nil
}

func listCacheKey(userID string) string {
	return "invoices:list:" + userID
}
