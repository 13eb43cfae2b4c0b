package services

import (
	"context"
	"errors"
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
	OutcomeAssigned   = "assigned"
	OutcomeWaitlisted = "waitlisted"
)

type IInitialPaymentService interface {
	// Reconcile turns a completed first payment into a rental. Steps run in
	// order and a failing later step never undoes an earlier one.
	Reconcile(ctx context.Context, p billing_models.InitialPayment) (string, error)
}

type initialPaymentService struct {
	assignment IAssignmentService
	billing    infra.BillingGateway
	archive    IInvoiceArchiveService
	mail       IMailService
	sites      repositories.ISiteRepository
	containers repositories.IContainerRepository
	waitlist   repositories.IWaitingListRepository
	cfg        BillingConfig
	logger     *zap.Logger
	now        func() time.Time
}

func NewInitialPaymentService(
	assignment IAssignmentService,
	billing infra.BillingGateway,
	archive IInvoiceArchiveService,
	mail IMailService,
	sites repositories.ISiteRepository,
	containers repositories.IContainerRepository,
	waitlist repositories.IWaitingListRepository,
	cfg BillingConfig,
	logger *zap.Logger,
) IInitialPaymentService {
	return &initialPaymentService{
		assignment: assignment,
		billing:    billing,
		archive:    archive,
		mail:       mail,
		sites:      sites,
		containers: containers,
		waitlist:   waitlist,
		cfg:        cfg,
		logger:     logger.Named("initial_payment"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *initialPaymentService) Reconcile(ctx context.Context, p billing_models.InitialPayment) (string, error) {
	log := s.logger.With(zap.String("event_id", p.EventID), zap.String("billing_customer_id", p.BillingCustomerID))

	if p.BillingCustomerID == "" {
		return "", fmt.Errorf("%w: payment has no billing customer", utils.ErrInvalidInput)
	}

	// step 1: context
	p.Email = s.resolveEmail(ctx, log, p)
	freq := db_models.BillingFrequency(p.Frequency)
	if !freq.Valid() {
		freq = db_models.FrequencyWeekly
	}
	weeks := p.PrepaidWeeks
	if weeks <= 0 {
		weeks = s.cfg.PrepaidWeeks
	}
	trial := s.cfg.TrialPeriod(weeks)
	if p.PaymentMethodID == "" && p.PaymentIntentID != "" {
		pm, err := s.billing.PaymentMethodForIntent(ctx, p.PaymentIntentID)
		if err != nil {
			log.Warn("payment method lookup failed", zap.String("step", "context"), zap.Error(err))
		}
		p.PaymentMethodID = pm
	}

	// step 2: assignment
	container, err := s.assignment.Assign(ctx, AssignRequest{
		PreferredSiteID:    p.SiteID,
		PreferredContainer: p.ContainerNumber,
		BillingCustomerID:  p.BillingCustomerID,
		PaymentIntentID:    p.PaymentIntentID,
		CustomerEmail:      p.Email,
		CustomerName:       p.Name,
		UserID:             p.UserID,
		BillingFrequency:   freq,
		TrialPeriod:        trial,
	})
	if errors.Is(err, utils.ErrContainerUnavailable) {
		return s.waitlistPaidCustomer(ctx, log, p)
	}
	if err != nil {
		log.Error("assignment failed", zap.String("step", "assign"), zap.Error(err))
		return "", err
	}
	log = log.With(zap.String("site_id", container.SiteID), zap.String("container", container.Number))
	log.Info("container assigned", zap.String("step", "assign"))
	s.convertWaitingEntry(ctx, log, p.Email)

	site, err := s.sites.Get(ctx, container.SiteID)
	if err != nil {
		log.Warn("site lookup failed", zap.Error(err))
	}

	// step 3: payment method
	pm := s.ensurePaymentMethod(ctx, log, p)

	// step 4: subscription
	container = s.ensureSubscription(ctx, log, p, container, site, freq, pm)

	// step 6: invoice
	inv := s.archiveInvoice(ctx, log, p)
	invoiceURL := ""
	if inv != nil {
		invoiceURL = inv.HostedInvoiceURL
	}

	// step 7: welcome email
	total := p.AmountTotal
	if total == 0 && inv != nil {
		total = inv.AmountPaid
	}
	if total == 0 {
		total = s.cfg.PrepaidRentCents + s.cfg.SecurityBondCents
	}
	siteName := container.SiteID
	if site != nil && site.Name != "" {
		siteName = site.Name
	}
	err = s.mail.SendWelcome(ctx, WelcomeMail{
		To:               p.Email,
		Name:             p.Name,
		ContainerNumber:  container.Number,
		SiteName:         siteName,
		TotalCents:       total,
		BondCents:        s.cfg.SecurityBondCents,
		TrialDays:        int(trial.Hours() / 24),
		BillingFrequency: string(freq),
		InvoiceURL:       invoiceURL,
	})
	if err != nil {
		log.Error("welcome email failed", zap.String("step", "email"), zap.Error(err))
	}

	return OutcomeAssigned, nil
}

func (s *initialPaymentService) resolveEmail(ctx context.Context, log *zap.Logger, p billing_models.InitialPayment) string {
	if p.Email != "" {
		return db_models.NormalizeEmail(p.Email)
	}
	cust, err := s.billing.GetCustomer(ctx, p.BillingCustomerID)
	if err != nil || cust == nil {
		log.Warn("could not resolve customer email", zap.String("step", "context"), zap.Error(err))
		return ""
	}
	return db_models.NormalizeEmail(cust.Email)
}

func (s *initialPaymentService) waitlistPaidCustomer(ctx context.Context, log *zap.Logger, p billing_models.InitialPayment) (string, error) {
	log.Warn("no container available for paying customer", zap.String("step", "assign"))

	if p.Email == "" {
		log.Error("paid customer has no email, not added to waiting list",
			zap.String("step", "waitlist"),
			zap.Bool("anomaly", true),
			zap.String("payment_intent_id", p.PaymentIntentID),
		)
	} else {
		entry, err := s.waitlist.Get(ctx, p.Email)
		if err != nil {
			log.Error("waiting list lookup failed", zap.Error(err))
		}
		if entry == nil {
			entry = db_models.NewWaitingListEntry(p.Email, p.Name, db_models.WaitingStatusPaidUnassigned, s.now())
		}
		entry.Status = db_models.WaitingStatusPaidUnassigned
		entry.BillingCustomerID = p.BillingCustomerID
		if err := s.waitlist.Save(ctx, entry); err != nil {
			log.Error("waiting list save failed", zap.String("step", "waitlist"), zap.Error(err))
		}
		if err := s.mail.SendWaitlistPaid(ctx, p.Email, p.Name); err != nil {
			log.Error("waiting list email failed", zap.String("step", "email"), zap.Error(err))
		}
	}

	s.archiveInvoice(ctx, log, p)
	return OutcomeWaitlisted, nil
}

// convertWaitingEntry closes the customer's waiting list entry once they hold a container.
func (s *initialPaymentService) convertWaitingEntry(ctx context.Context, log *zap.Logger, email string) {
	if email == "" {
		return
	}
	entry, err := s.waitlist.Get(ctx, email)
	if err != nil {
		log.Warn("waiting list lookup failed", zap.String("step", "waitlist"), zap.Error(err))
		return
	}
	if entry == nil || entry.Status == db_models.WaitingStatusConverted {
		return
	}
	entry.Status = db_models.WaitingStatusConverted
	if err := s.waitlist.Save(ctx, entry); err != nil {
		log.Warn("waiting list save failed", zap.String("step", "waitlist"), zap.Error(err))
	}
}

// ensurePaymentMethod returns the method to bill once the prepaid period ends.
func (s *initialPaymentService) ensurePaymentMethod(ctx context.Context, log *zap.Logger, p billing_models.InitialPayment) string {
	if p.PaymentMethodID != "" {
		err := s.billing.AttachPaymentMethod(ctx, p.BillingCustomerID, p.PaymentMethodID)
		if err == nil {
			log.Info("payment method attached", zap.String("step", "payment_method"))
			return p.PaymentMethodID
		}
		log.Warn("attach payment method failed, checking existing methods", zap.String("step", "payment_method"), zap.Error(err))
	}

	methods, err := s.billing.ListCardPaymentMethods(ctx, p.BillingCustomerID)
	if err != nil {
		log.Error("list payment methods failed", zap.String("step", "payment_method"), zap.Error(err))
		return ""
	}
	if len(methods) == 0 {
		log.Error("customer has no card on file", zap.String("step", "payment_method"))
		return ""
	}
	return methods[0].ID
}

func (s *initialPaymentService) ensureSubscription(ctx context.Context, log *zap.Logger, p billing_models.InitialPayment, c *db_models.Container, site *db_models.Site, freq db_models.BillingFrequency, pm string) *db_models.Container {
	if c.BillingSubscriptionID != "" {
		log.Info("subscription already exists", zap.String("step", "subscription"), zap.String("subscription_id", c.BillingSubscriptionID))
		return c
	}
	price := s.cfg.PriceFor(site, freq)
	if price == "" {
		log.Error("no recurring price configured", zap.String("step", "subscription"), zap.String("frequency", string(freq)))
		return c
	}

	trialEnd := c.NextDueDate
	if trialEnd == nil || !trialEnd.After(s.now()) {
		t := s.now().Add(s.cfg.TrialPeriod(p.PrepaidWeeks))
		trialEnd = &t
	}

	sub, err := s.billing.CreateSubscription(ctx, billing_models.SubscriptionParams{
		CustomerID:           p.BillingCustomerID,
		PriceID:              price,
		DefaultPaymentMethod: pm,
		TrialEnd:             *trialEnd,
		Metadata: map[string]string{
			"containerNumber": c.Number,
			"siteId":          c.SiteID,
			"userId":          p.UserID,
			"paymentIntentId": p.PaymentIntentID,
		},
		IdempotencyKey: "sub-" + p.EventID,
	})
	if err != nil {
		log.Error("create subscription failed", zap.String("step", "subscription"), zap.Error(err))
		return c
	}

	updated, err := updateContainer(ctx, s.containers, c, func(c *db_models.Container) {
		c.BillingSubscriptionID = sub.ID
	})
	if err != nil {
		log.Error("persist subscription id failed", zap.String("step", "persist"), zap.String("subscription_id", sub.ID), zap.Error(err))
		return c
	}
	log.Info("subscription created", zap.String("step", "subscription"), zap.String("subscription_id", sub.ID))
	return updated
}

// archiveInvoice stores the session's invoice, or the customer's latest when
// the event named none, and returns it for the welcome email.
func (s *initialPaymentService) archiveInvoice(ctx context.Context, log *zap.Logger, p billing_models.InitialPayment) *billing_models.Invoice {
	var res ArchiveResult
	if p.InvoiceID != "" {
		res = s.archive.Archive(ctx, p.InvoiceID, p.BillingCustomerID, p.Email)
	} else {
		inv, err := s.billing.LatestInvoice(ctx, p.BillingCustomerID)
		if err != nil {
			log.Warn("invoice lookup failed", zap.String("step", "archive"), zap.Error(err))
			return nil
		}
		res = s.archive.ArchiveInvoice(ctx, inv, p.BillingCustomerID, p.Email)
	}
	log.Info("invoice archival", zap.String("step", "archive"), zap.Bool("stored", res.Stored), zap.String("reason", res.SkipReason))
	return res.Invoice
}
