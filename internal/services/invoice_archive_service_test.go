package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"storehere/internal/infra"
	"storehere/internal/models/billing_models"
)

func newArchive(t *testing.T) (IInvoiceArchiveService, *fakeBilling, *fakeStore, *fakeDownloader) {
	billing := newFakeBilling()
	store := &fakeStore{}
	downloader := &fakeDownloader{body: []byte("%PDF-1.7")}
	svc := NewInvoiceArchiveService(billing, store, downloader, testRunner(t), "storehere-invoices", zaptest.NewLogger(t))
	return svc, billing, store, downloader
}

func TestInvoiceKey(t *testing.T) {
	inv := &billing_models.Invoice{ID: "in_1", Number: "SH-0007", Created: invoiceCreated}
	assert.Equal(t, "invoices/cus_1/2025-07-14_SH-0007.pdf", InvoiceKey("cus_1", inv))

	inv.Number = ""
	assert.Equal(t, "invoices/cus_1/2025-07-14_in_1.pdf", InvoiceKey("cus_1", inv))
}

func TestArchive_StoresWithMetadata(t *testing.T) {
	svc, billing, store, _ := newArchive(t)
	billing.invoices["in_1"] = &billing_models.Invoice{
		ID:            "in_1",
		Number:        "SH-0001",
		CustomerEmail: "invoice@example.com",
		InvoicePDF:    "https://pay.stripe.com/invoice/in_1/pdf",
		AmountPaid:    8000,
		Created:       invoiceCreated,
	}

	res := svc.Archive(context.Background(), "in_1", "cus_1", "")
	require.True(t, res.Stored)
	assert.Equal(t, "invoices/cus_1/2025-07-14_SH-0001.pdf", res.Key)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, "in_1", res.Invoice.ID)

	require.Len(t, store.objects, 1)
	obj := store.objects[0]
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, map[string]string{
		"customerEmail":     "invoice@example.com",
		"invoiceNumber":     "SH-0001",
		"amount":            "8000",
		"billingCustomerId": "cus_1",
	}, obj.Metadata)
}

func TestArchive_Skips(t *testing.T) {
	tests := []struct {
		name    string
		inv     *billing_models.Invoice
		cust    string
		reason  string
		prepare func(*fakeDownloader, *fakeStore)
	}{
		{
			name:   "no pdf",
			inv:    &billing_models.Invoice{ID: "in_1", CustomerID: "cus_1"},
			reason: "invoice has no pdf",
		},
		{
			name:   "no customer",
			inv:    &billing_models.Invoice{ID: "in_1", InvoicePDF: "https://pay.stripe.com/x"},
			reason: "no customer linkage",
		},
		{
			name:   "empty document",
			inv:    &billing_models.Invoice{ID: "in_1", InvoicePDF: "https://pay.stripe.com/x"},
			cust:   "cus_1",
			reason: "pdf download failed",
			prepare: func(d *fakeDownloader, _ *fakeStore) {
				d.err = infra.ErrEmptyDocument
			},
		},
		{
			name:   "store down",
			inv:    &billing_models.Invoice{ID: "in_1", InvoicePDF: "https://pay.stripe.com/x"},
			cust:   "cus_1",
			reason: "store failed",
			prepare: func(_ *fakeDownloader, s *fakeStore) {
				s.putErr = errors.New("503 slow down")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, store, downloader := newArchive(t)
			if tt.prepare != nil {
				tt.prepare(downloader, store)
			}
			res := svc.ArchiveInvoice(context.Background(), tt.inv, tt.cust, "")
			assert.False(t, res.Stored)
			assert.Equal(t, tt.reason, res.SkipReason)
		})
	}
}

func TestArchive_PermanentDownloadErrorNotRetried(t *testing.T) {
	svc, _, _, downloader := newArchive(t)
	downloader.err = &infra.HTTPStatusError{StatusCode: 404}

	res := svc.ArchiveInvoice(context.Background(), &billing_models.Invoice{ID: "in_1", CustomerID: "cus_1", InvoicePDF: "https://pay.stripe.com/x"}, "", "")
	assert.False(t, res.Stored)
	assert.Equal(t, 1, downloader.calls)
}

func TestArchive_FetchFailure(t *testing.T) {
	svc, billing, store, _ := newArchive(t)
	billing.invoiceErr = errors.New("billing down")

	res := svc.Archive(context.Background(), "in_1", "cus_1", "")
	assert.False(t, res.Stored)
	assert.Equal(t, "invoice fetch failed", res.SkipReason)
	assert.Empty(t, store.objects)
}
