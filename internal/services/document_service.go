package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/internal/models/response_models"
	"storehere/pkg/utils"
)

var errNotPDF = errors.New("upload is not a pdf")

type StorageConfig struct {
	InvoiceBucket   string
	AgreementBucket string
	SiteMapBucket   string
	SignedURLTTL    time.Duration
}

type IDocumentService interface {
	UploadAgreement(ctx context.Context, userID string, body []byte) (string, error)
	ListAgreements(ctx context.Context) ([]response_models.DocumentResponse, error)
	ListInvoices(ctx context.Context, billingCustomerID string) ([]response_models.DocumentResponse, error)
}

type documentService struct {
	store  infra.ObjectStore
	cfg    StorageConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewDocumentService(store infra.ObjectStore, cfg StorageConfig, logger *zap.Logger) IDocumentService {
	return &documentService{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("documents"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *documentService) UploadAgreement(ctx context.Context, userID string, body []byte) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: missing user", utils.ErrInvalidInput)
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		return "", fmt.Errorf("%w: %w", utils.ErrInvalidInput, errNotPDF)
	}
	key := fmt.Sprintf("agreements/%s_%d.pdf", userID, s.now().Unix())
	if err := s.store.Put(ctx, s.cfg.AgreementBucket, key, body, "application/pdf", map[string]string{"userId": userID}); err != nil {
		return "", err
	}
	s.logger.Info("agreement uploaded", zap.String("user_id", userID), zap.String("key", key))
	return key, nil
}

func (s *documentService) ListAgreements(ctx context.Context) ([]response_models.DocumentResponse, error) {
	return s.list(ctx, s.cfg.AgreementBucket, "agreements/")
}

func (s *documentService) ListInvoices(ctx context.Context, billingCustomerID string) ([]response_models.DocumentResponse, error) {
	if billingCustomerID == "" {
		return nil, fmt.Errorf("%w: customerId is required", utils.ErrInvalidInput)
	}
	return s.list(ctx, s.cfg.InvoiceBucket, "invoices/"+billingCustomerID+"/")
}

// list returns newest first, each with a time-limited download link.
func (s *documentService) list(ctx context.Context, bucket, prefix string) ([]response_models.DocumentResponse, error) {
	objects, err := s.store.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(objects, func(i, j int) bool { return objects[i].LastModified.After(objects[j].LastModified) })

	docs := make([]response_models.DocumentResponse, 0, len(objects))
	for _, obj := range objects {
		url, err := s.store.PresignGet(ctx, bucket, obj.Key, s.cfg.SignedURLTTL)
		if err != nil {
			return nil, err
		}
		docs = append(docs, response_models.DocumentResponse{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			URL:          url,
		})
	}
	return docs, nil
}
