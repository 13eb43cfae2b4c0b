package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/internal/models/billing_models"
	"storehere/internal/models/db_models"
	"storehere/internal/repositories"
	"storehere/pkg/utils"
)

const (
	OutcomeProcessed  = "processed"
	OutcomeSkipped    = "skipped"
	OutcomeNoMatch    = "no_container"
	OutcomeFirstTrial = "first_invoice"
)

type IRecurringPaymentService interface {
	HandleSucceeded(ctx context.Context, inv *billing_models.InvoiceObject) (string, error)
	HandleFailed(ctx context.Context, inv *billing_models.InvoiceObject) (string, error)
	HandleSubscriptionDeleted(ctx context.Context, sub *billing_models.SubscriptionObject) (string, error)
}

type recurringPaymentService struct {
	billing    infra.BillingGateway
	archive    IInvoiceArchiveService
	mail       IMailService
	containers repositories.IContainerRepository
	waitlist   IWaitingListService
	logger     *zap.Logger
	now        func() time.Time
}

func NewRecurringPaymentService(
	billing infra.BillingGateway,
	archive IInvoiceArchiveService,
	mail IMailService,
	containers repositories.IContainerRepository,
	waitlist IWaitingListService,
	logger *zap.Logger,
) IRecurringPaymentService {
	return &recurringPaymentService{
		billing:    billing,
		archive:    archive,
		mail:       mail,
		containers: containers,
		waitlist:   waitlist,
		logger:     logger.Named("recurring_payment"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *recurringPaymentService) HandleSucceeded(ctx context.Context, inv *billing_models.InvoiceObject) (string, error) {
	log := s.logger.With(zap.String("invoice_id", inv.ID), zap.String("billing_customer_id", inv.Customer))

	if inv.AmountPaid == 0 {
		log.Info("zero amount invoice skipped")
		return OutcomeSkipped, nil
	}
	// one-off checkout invoices are settled and archived by the initial flow
	if inv.SubscriptionID() == "" {
		log.Info("invoice without subscription skipped", zap.String("billing_reason", inv.BillingReason))
		return OutcomeSkipped, nil
	}

	c, err := s.containerForInvoice(ctx, inv)
	if err != nil {
		return "", err
	}
	if c == nil {
		log.Warn("paid invoice for unknown customer")
		return OutcomeNoMatch, nil
	}
	log = log.With(zap.String("site_id", c.SiteID), zap.String("container", c.Number))

	// decided before the container is touched, the update below clears the trial
	first := s.isFirstInvoice(ctx, log, inv, c)

	now := s.now()
	c, err = updateContainer(ctx, s.containers, c, func(c *db_models.Container) {
		if first {
			c.RecordOpeningPayment(now)
		} else {
			c.RecordPayment(now)
		}
		if c.BillingCustomerID == "" {
			c.BillingCustomerID = inv.Customer
		}
		if c.BillingSubscriptionID == "" {
			c.BillingSubscriptionID = inv.SubscriptionID()
		}
	})
	if err != nil {
		log.Error("record payment failed", zap.Error(err))
		return "", err
	}

	res := s.archive.ArchiveInvoice(ctx, invoiceFromObject(inv), inv.Customer, c.CustomerEmail)
	log.Info("invoice archival", zap.Bool("stored", res.Stored), zap.String("reason", res.SkipReason))

	if first {
		log.Info("first invoice of subscription, confirmation suppressed")
		return OutcomeFirstTrial, nil
	}

	err = s.mail.SendPaymentConfirmation(ctx, PaymentMail{
		To:              firstNonEmpty(c.CustomerEmail, inv.CustomerEmail),
		Name:            c.CustomerName,
		ContainerNumber: c.Number,
		AmountCents:     inv.AmountPaid,
		PaidAt:          now,
		NextDueDate:     c.NextDueDate,
		InvoiceURL:      inv.HostedInvoiceURL,
	})
	if err != nil {
		log.Error("confirmation email failed", zap.Error(err))
	}
	return OutcomeProcessed, nil
}

// containerForInvoice finds the rental by billing customer, falling back to
// the container named in the subscription metadata for records that never
// stored the customer id.
func (s *recurringPaymentService) containerForInvoice(ctx context.Context, inv *billing_models.InvoiceObject) (*db_models.Container, error) {
	c, err := s.containers.FindByBillingCustomer(ctx, inv.Customer)
	if err != nil || c != nil {
		return c, err
	}
	siteID, number := inv.MetadataValue("siteId"), inv.MetadataValue("containerNumber")
	if siteID == "" || number == "" {
		return nil, nil
	}
	c, err = s.containers.Get(ctx, siteID, number)
	if err != nil || c == nil {
		return nil, err
	}
	if c.BillingCustomerID != "" && c.BillingCustomerID != inv.Customer {
		return nil, nil
	}
	return c, nil
}

// isFirstInvoice reports whether the invoice settles the subscription's
// opening period, which the welcome email already covered.
func (s *recurringPaymentService) isFirstInvoice(ctx context.Context, log *zap.Logger, inv *billing_models.InvoiceObject, c *db_models.Container) bool {
	if inv.BillingReason == billing_models.BillingReasonSubscriptionCreate {
		return true
	}
	if inv.Metadata["paymentIntentId"] != "" {
		return true
	}
	if c.SubscriptionStatus == db_models.SubStatusTrialing {
		return true
	}

	subID := firstNonEmpty(inv.SubscriptionID(), c.BillingSubscriptionID)
	if subID == "" {
		return false
	}
	sub, err := s.billing.GetSubscription(ctx, subID)
	if err != nil {
		log.Warn("subscription lookup failed", zap.Error(err))
	} else if sub.Status == string(db_models.SubStatusTrialing) {
		return true
	}

	paid, err := s.billing.ListPaidInvoices(ctx, subID)
	if err != nil {
		log.Warn("invoice history lookup failed", zap.Error(err))
		return false
	}
	for _, prior := range paid {
		if prior.ID != inv.ID && prior.AmountPaid > 0 {
			return false
		}
	}
	return true
}

func (s *recurringPaymentService) HandleFailed(ctx context.Context, inv *billing_models.InvoiceObject) (string, error) {
	log := s.logger.With(zap.String("invoice_id", inv.ID), zap.String("billing_customer_id", inv.Customer))

	c, err := s.containerForInvoice(ctx, inv)
	if err != nil {
		return "", err
	}
	if c == nil {
		log.Warn("failed invoice for unknown customer")
		return OutcomeNoMatch, nil
	}

	now := s.now()
	c, err = updateContainer(ctx, s.containers, c, func(c *db_models.Container) {
		c.RecordFailedPayment(now)
	})
	if err != nil {
		log.Error("record failed payment failed", zap.Error(err))
		return "", err
	}
	log.Warn("container marked overdue", zap.String("site_id", c.SiteID), zap.String("container", c.Number))

	err = s.mail.SendPaymentFailed(ctx, PaymentMail{
		To:              firstNonEmpty(c.CustomerEmail, inv.CustomerEmail),
		Name:            c.CustomerName,
		ContainerNumber: c.Number,
		AmountCents:     inv.AmountDue,
		InvoiceURL:      inv.HostedInvoiceURL,
	})
	if err != nil {
		log.Error("payment failed email failed", zap.Error(err))
	}
	return OutcomeProcessed, nil
}

func (s *recurringPaymentService) HandleSubscriptionDeleted(ctx context.Context, sub *billing_models.SubscriptionObject) (string, error) {
	log := s.logger.With(zap.String("subscription_id", sub.ID), zap.String("billing_customer_id", sub.Customer))

	c, err := s.containers.FindBySubscription(ctx, sub.ID)
	if err == nil && c == nil {
		c, err = s.containers.FindByBillingCustomer(ctx, sub.Customer)
	}
	if err != nil {
		return "", err
	}
	if c == nil {
		log.Warn("cancelled subscription has no container")
		return OutcomeNoMatch, nil
	}

	c, err = updateContainer(ctx, s.containers, c, func(c *db_models.Container) {
		c.Cancel()
	})
	if err != nil {
		return "", fmt.Errorf("cancel container: %w", err)
	}
	log.Info("subscription cancelled", zap.String("site_id", c.SiteID), zap.String("container", c.Number), zap.String("status", string(c.Status)))

	if c.Status == db_models.StatusAvailable {
		if err := s.waitlist.NotifyNext(ctx); err != nil {
			log.Warn("waiting list notification failed", zap.Error(err))
		}
	}
	return OutcomeProcessed, nil
}

func invoiceFromObject(inv *billing_models.InvoiceObject) *billing_models.Invoice {
	return &billing_models.Invoice{
		ID:               inv.ID,
		Number:           inv.Number,
		CustomerID:       inv.Customer,
		CustomerEmail:    inv.CustomerEmail,
		SubscriptionID:   inv.SubscriptionID(),
		Status:           inv.Status,
		BillingReason:    inv.BillingReason,
		HostedInvoiceURL: inv.HostedInvoiceURL,
		InvoicePDF:       inv.InvoicePDF,
		AmountPaid:       inv.AmountPaid,
		AmountDue:        inv.AmountDue,
		Created:          utils.FromUnixSeconds(inv.Created),
		Metadata:         inv.Metadata,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
