package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/internal/models/billing_models"
	"storehere/pkg/resilience"
	"storehere/pkg/utils"
)

type ArchiveResult struct {
	Stored     bool
	Key        string
	SkipReason string
	// Invoice is the billing record looked at, nil when it could not be fetched.
	Invoice *billing_models.Invoice
}

type IInvoiceArchiveService interface {
	// Archive never fails the caller; problems are reported in the result.
	Archive(ctx context.Context, invoiceID, billingCustomerID, customerEmail string) ArchiveResult
	ArchiveInvoice(ctx context.Context, inv *billing_models.Invoice, billingCustomerID, customerEmail string) ArchiveResult
}

type invoiceArchiveService struct {
	billing    infra.BillingGateway
	store      infra.ObjectStore
	downloader infra.DocumentDownloader
	runner     *resilience.Runner
	bucket     string
	logger     *zap.Logger
}

func NewInvoiceArchiveService(billing infra.BillingGateway, store infra.ObjectStore, downloader infra.DocumentDownloader, runner *resilience.Runner, bucket string, logger *zap.Logger) IInvoiceArchiveService {
	return &invoiceArchiveService{
		billing:    billing,
		store:      store,
		downloader: downloader,
		runner:     runner,
		bucket:     bucket,
		logger:     logger.Named("invoice_archive"),
	}
}

// InvoiceKey is invoices/{billingCustomerId}/{yyyy-mm-dd}_{invoiceNumber}.pdf.
func InvoiceKey(billingCustomerID string, inv *billing_models.Invoice) string {
	number := inv.Number
	if number == "" {
		number = inv.ID
	}
	created := inv.Created
	if created.IsZero() {
		created = time.Now()
	}
	return fmt.Sprintf("invoices/%s/%s_%s.pdf", billingCustomerID, utils.ISODate(created), number)
}

func (s *invoiceArchiveService) Archive(ctx context.Context, invoiceID, billingCustomerID, customerEmail string) ArchiveResult {
	if invoiceID == "" {
		return s.skip("no invoice id", invoiceID)
	}
	inv, err := s.billing.GetInvoice(ctx, invoiceID)
	if err != nil {
		s.logger.Warn("fetch invoice failed", zap.String("invoice_id", invoiceID), zap.Error(err))
		return ArchiveResult{SkipReason: "invoice fetch failed"}
	}
	return s.ArchiveInvoice(ctx, inv, billingCustomerID, customerEmail)
}

func (s *invoiceArchiveService) ArchiveInvoice(ctx context.Context, inv *billing_models.Invoice, billingCustomerID, customerEmail string) ArchiveResult {
	res := s.storeInvoice(ctx, inv, billingCustomerID, customerEmail)
	res.Invoice = inv
	return res
}

func (s *invoiceArchiveService) storeInvoice(ctx context.Context, inv *billing_models.Invoice, billingCustomerID, customerEmail string) ArchiveResult {
	if inv == nil {
		return s.skip("no invoice", "")
	}
	if inv.InvoicePDF == "" {
		return s.skip("invoice has no pdf", inv.ID)
	}
	customerID := inv.CustomerID
	if customerID == "" {
		customerID = billingCustomerID
	}
	if customerID == "" {
		return s.skip("no customer linkage", inv.ID)
	}
	if customerEmail == "" {
		customerEmail = inv.CustomerEmail
	}

	var pdf []byte
	err := s.runner.Retry(ctx, "invoice_pdf", func(ctx context.Context) error {
		body, err := s.downloader.Download(ctx, inv.InvoicePDF)
		if err != nil {
			var statusErr *infra.HTTPStatusError
			if errors.Is(err, infra.ErrEmptyDocument) || errors.Is(err, infra.ErrTooManyRedirects) ||
				(errors.As(err, &statusErr) && !statusErr.Retryable()) {
				return resilience.Permanent(err)
			}
			return err
		}
		pdf = body
		return nil
	})
	if err != nil {
		s.logger.Warn("invoice pdf download failed", zap.String("invoice_id", inv.ID), zap.Error(err))
		return ArchiveResult{SkipReason: "pdf download failed"}
	}

	key := InvoiceKey(customerID, inv)
	metadata := map[string]string{
		"customerEmail":     customerEmail,
		"invoiceNumber":     inv.Number,
		"amount":            strconv.FormatInt(inv.AmountPaid, 10),
		"billingCustomerId": customerID,
	}
	err = s.runner.Retry(ctx, "s3", func(ctx context.Context) error {
		return s.store.Put(ctx, s.bucket, key, pdf, "application/pdf", metadata)
	})
	if err != nil {
		s.logger.Error("invoice store failed", zap.String("invoice_id", inv.ID), zap.String("key", key), zap.Error(err))
		return ArchiveResult{Key: key, SkipReason: "store failed"}
	}

	s.logger.Info("invoice archived",
		zap.String("invoice_id", inv.ID),
		zap.String("key", key),
		zap.Int("bytes", len(pdf)),
	)
	return ArchiveResult{Stored: true, Key: key}
}

func (s *invoiceArchiveService) skip(reason, invoiceID string) ArchiveResult {
	s.logger.Info("invoice not archived", zap.String("invoice_id", invoiceID), zap.String("reason", reason))
	return ArchiveResult{SkipReason: reason}
}
