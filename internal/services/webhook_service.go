package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/internal/models/billing_models"
	"storehere/internal/repositories"
	mem "storehere/pkg/memcache"
)

const (
	OutcomeDuplicate = "duplicate"
	OutcomeInFlight  = "in_flight"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

type WebhookConfig struct {
	Deadline  time.Duration
	Retention time.Duration
}

type WebhookResult struct {
	EventID string
	Type    string
	Outcome string
}

type IWebhookService interface {
	Verify(payload []byte, signature string) error
	// Dispatch processes an event at most once across redeliveries.
	Dispatch(ctx context.Context, event *billing_models.Event) (WebhookResult, error)
}

type webhookService struct {
	events    repositories.IEventRepository
	cache     mem.EventCache
	billing   infra.BillingGateway
	initial   IInitialPaymentService
	recurring IRecurringPaymentService
	cfg       WebhookConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewWebhookService(
	events repositories.IEventRepository,
	cache mem.EventCache,
	billing infra.BillingGateway,
	initial IInitialPaymentService,
	recurring IRecurringPaymentService,
	cfg WebhookConfig,
	logger *zap.Logger,
) IWebhookService {
	return &webhookService{
		events:    events,
		cache:     cache,
		billing:   billing,
		initial:   initial,
		recurring: recurring,
		cfg:       cfg,
		logger:    logger.Named("webhook"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *webhookService) Verify(payload []byte, signature string) error {
	return s.billing.VerifyWebhook(payload, signature)
}

var errUndecodable = errors.New("undecodable event object")

func (s *webhookService) Dispatch(ctx context.Context, event *billing_models.Event) (WebhookResult, error) {
	result := WebhookResult{EventID: event.ID, Type: event.Type}
	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	if s.cache.Seen(event.ID) {
		log.Info("duplicate event acknowledged from cache")
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	if s.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Deadline)
		defer cancel()
	}

	ledger := true
	begin, err := s.events.Begin(ctx, event.ID, event.Type, s.now())
	switch {
	case err != nil:
		// every flow is idempotent on its own, so an unreachable ledger only
		// costs the duplicate short circuit
		log.Error("event ledger unavailable, processing without it", zap.Error(err))
		ledger = false
	case begin == repositories.BeginDuplicate:
		log.Info("duplicate event skipped")
		s.cache.Remember(event.ID, s.cfg.Retention)
		result.Outcome = OutcomeDuplicate
		return result, nil
	case begin == repositories.BeginInFlight:
		log.Info("event is being processed elsewhere")
		result.Outcome = OutcomeInFlight
		return result, nil
	}

	outcome, flowErr := s.route(ctx, event)
	switch {
	case errors.Is(flowErr, errUndecodable):
		outcome = OutcomeRejected
	case flowErr != nil:
		outcome = OutcomeFailed
	}
	result.Outcome = outcome

	if flowErr != nil {
		log.Error("event processing failed", zap.String("outcome", outcome), zap.Error(flowErr))
	} else {
		log.Info("event processed", zap.String("outcome", outcome))
	}

	if ledger {
		s.complete(ctx, log, event.ID, outcome)
	}
	return result, flowErr
}

// complete records the outcome even when the request deadline has passed.
func (s *webhookService) complete(ctx context.Context, log *zap.Logger, eventID, outcome string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.events.Complete(ctx, eventID, outcome, s.now()); err != nil {
		log.Error("event ledger completion failed", zap.Error(err))
		s.cache.Forget(eventID)
		return
	}
	s.cache.Remember(eventID, s.cfg.Retention)
}

func (s *webhookService) route(ctx context.Context, event *billing_models.Event) (string, error) {
	switch event.Type {
	case billing_models.EventCheckoutSessionCompleted:
		session, err := decode[billing_models.CheckoutSessionObject](event)
		if err != nil {
			return "", err
		}
		if session.PaymentStatus != "" && session.PaymentStatus != "paid" {
			return OutcomeSkipped, nil
		}
		return s.initial.Reconcile(ctx, session.ToInitialPayment(event.ID))

	case billing_models.EventPaymentIntentSucceeded:
		pi, err := decode[billing_models.PaymentIntentObject](event)
		if err != nil {
			return "", err
		}
		// intents raised by checkout or by subscription renewals carry no
		// container binding and are handled by their own events
		if pi.Metadata["containerNumber"] == "" && pi.Metadata["siteId"] == "" {
			return OutcomeIgnored, nil
		}
		return s.initial.Reconcile(ctx, pi.ToInitialPayment(event.ID))

	case billing_models.EventInvoicePaymentSucceeded, billing_models.EventInvoicePaid:
		inv, err := decode[billing_models.InvoiceObject](event)
		if err != nil {
			return "", err
		}
		// both event types fire for one payment; settle each invoice once
		return s.once(ctx, "invoice-paid:"+inv.ID, event.Type, func() (string, error) {
			return s.recurring.HandleSucceeded(ctx, inv)
		})

	case billing_models.EventInvoicePaymentFailed:
		inv, err := decode[billing_models.InvoiceObject](event)
		if err != nil {
			return "", err
		}
		return s.recurring.HandleFailed(ctx, inv)

	case billing_models.EventSubscriptionDeleted:
		sub, err := decode[billing_models.SubscriptionObject](event)
		if err != nil {
			return "", err
		}
		return s.recurring.HandleSubscriptionDeleted(ctx, sub)

	default:
		return OutcomeIgnored, nil
	}
}

// once runs fn under a ledger entry keyed by key instead of the event id.
func (s *webhookService) once(ctx context.Context, key, eventType string, fn func() (string, error)) (string, error) {
	begin, err := s.events.Begin(ctx, key, eventType, s.now())
	if err == nil && begin != repositories.BeginAcquired {
		return OutcomeDuplicate, nil
	}
	outcome, flowErr := fn()
	if err == nil {
		recorded := outcome
		if flowErr != nil {
			recorded = OutcomeFailed
		}
		if cerr := s.events.Complete(context.WithoutCancel(ctx), key, recorded, s.now()); cerr != nil {
			s.logger.Warn("ledger completion failed", zap.String("key", key), zap.Error(cerr))
		}
	}
	return outcome, flowErr
}

func decode[T any](event *billing_models.Event) (*T, error) {
	obj, err := billing_models.DecodeObject[T](event)
	if err != nil {
		return nil, errors.Join(errUndecodable, err)
	}
	return obj, nil
}
