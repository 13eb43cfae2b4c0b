package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/paymentmethod"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"storehere/internal/models/billing_models"
	"storehere/pkg/config"
	"storehere/pkg/resilience"
	"storehere/pkg/utils"
)

// BillingGateway is everything the reconciliation flows need from the
// billing provider.
type BillingGateway interface {
	FindCustomerByEmail(ctx context.Context, email string) (*billing_models.Customer, error)
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*billing_models.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*billing_models.Customer, error)
	CreateCheckoutSession(ctx context.Context, params billing_models.CheckoutSessionParams) (*billing_models.CheckoutSession, error)
	PaymentMethodForIntent(ctx context.Context, paymentIntentID string) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	ListCardPaymentMethods(ctx context.Context, customerID string) ([]billing_models.PaymentMethod, error)
	CreateSubscription(ctx context.Context, params billing_models.SubscriptionParams) (*billing_models.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*billing_models.Subscription, error)
	GetInvoice(ctx context.Context, invoiceID string) (*billing_models.Invoice, error)
	LatestInvoice(ctx context.Context, customerID string) (*billing_models.Invoice, error)
	ListPaidInvoices(ctx context.Context, subscriptionID string) ([]billing_models.Invoice, error)
	VerifyWebhook(payload []byte, signatureHeader string) error
}

const stripeDependency = "stripe"

type StripeGateway struct {
	webhookSecret string
	runner        *resilience.Runner
	logger        *zap.Logger
}

func NewStripeGateway(cfg *config.Config, runner *resilience.Runner, logger *zap.Logger) BillingGateway {
	stripe.Key = cfg.StripeSecretKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.ExternalCallTimeout},
		MaxNetworkRetries: stripe.Int64(0),
	}))
	return &StripeGateway{
		webhookSecret: cfg.StripeWebhookSecret,
		runner:        runner,
		logger:        logger.Named("stripe"),
	}
}

// classify turns client errors into permanent failures so the runner does
// not retry a request the provider has rejected.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.HTTPStatusCode >= 400 && serr.HTTPStatusCode < 500 && serr.HTTPStatusCode != http.StatusTooManyRequests {
		return resilience.Permanent(err)
	}
	return err
}

func (g *StripeGateway) call(ctx context.Context, op func() error) error {
	err := g.runner.Retry(ctx, stripeDependency, func(context.Context) error {
		return classify(op())
	})
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrBillingUnavailable, err)
	}
	return nil
}

func (g *StripeGateway) FindCustomerByEmail(ctx context.Context, email string) (*billing_models.Customer, error) {
	var found *billing_models.Customer
	err := g.call(ctx, func() error {
		query := fmt.Sprintf("email:'%s'", strings.ReplaceAll(email, "'", `\'`))
		iter := customer.Search(&stripe.CustomerSearchParams{SearchParams: stripe.SearchParams{Query: query}})
		for iter.Next() {
			found = customerFromStripe(iter.Customer())
			break
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// CreateCustomer is not retried: a repeated create would duplicate the customer.
func (g *StripeGateway) CreateCustomer(_ context.Context, email, name string, metadata map[string]string) (*billing_models.Customer, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	if name != "" {
		params.Name = stripe.String(name)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	c, err := customer.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create customer: %w", utils.ErrBillingUnavailable, err)
	}
	return customerFromStripe(c), nil
}

func (g *StripeGateway) GetCustomer(ctx context.Context, customerID string) (*billing_models.Customer, error) {
	var c *stripe.Customer
	err := g.call(ctx, func() (err error) {
		c, err = customer.Get(customerID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return customerFromStripe(c), nil
}

func (g *StripeGateway) CreateCheckoutSession(_ context.Context, p billing_models.CheckoutSessionParams) (*billing_models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(p.CustomerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
		InvoiceCreation: &stripe.CheckoutSessionInvoiceCreationParams{
			Enabled: stripe.Bool(true),
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripe.String("off_session"),
			Metadata:         p.Metadata,
		},
	}
	for _, item := range p.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.Currency),
				UnitAmount: stripe.Int64(item.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %w", utils.ErrBillingUnavailable, err)
	}
	return &billing_models.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) PaymentMethodForIntent(ctx context.Context, paymentIntentID string) (string, error) {
	var pi *stripe.PaymentIntent
	err := g.call(ctx, func() (err error) {
		pi, err = paymentintent.Get(paymentIntentID, nil)
		return err
	})
	if err != nil {
		return "", err
	}
	if pi.PaymentMethod == nil {
		return "", nil
	}
	return pi.PaymentMethod.ID, nil
}

// AttachPaymentMethod attaches the method and makes it the invoice default.
func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return g.call(ctx, func() error {
		if _, err := paymentmethod.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
			Customer: stripe.String(customerID),
		}); err != nil {
			return err
		}
		_, err := customer.Update(customerID, &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(paymentMethodID),
			},
		})
		return err
	})
}

func (g *StripeGateway) ListCardPaymentMethods(ctx context.Context, customerID string) ([]billing_models.PaymentMethod, error) {
	var methods []billing_models.PaymentMethod
	err := g.call(ctx, func() error {
		methods = methods[:0]
		iter := paymentmethod.List(&stripe.PaymentMethodListParams{
			Customer: stripe.String(customerID),
			Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
		})
		for iter.Next() {
			pm := iter.PaymentMethod()
			methods = append(methods, billing_models.PaymentMethod{ID: pm.ID, Type: string(pm.Type)})
		}
		return iter.Err()
	})
	return methods, err
}

// CreateSubscription is safe to retry because every attempt carries the
// same idempotency key.
func (g *StripeGateway) CreateSubscription(ctx context.Context, p billing_models.SubscriptionParams) (*billing_models.Subscription, error) {
	var sub *stripe.Subscription
	err := g.call(ctx, func() (err error) {
		params := &stripe.SubscriptionParams{
			Customer: stripe.String(p.CustomerID),
			Items: []*stripe.SubscriptionItemsParams{
				{Price: stripe.String(p.PriceID)},
			},
			TrialEnd: stripe.Int64(p.TrialEnd.Unix()),
		}
		if p.DefaultPaymentMethod != "" {
			params.DefaultPaymentMethod = stripe.String(p.DefaultPaymentMethod)
		}
		for k, v := range p.Metadata {
			params.AddMetadata(k, v)
		}
		if p.IdempotencyKey != "" {
			params.SetIdempotencyKey(p.IdempotencyKey)
		}
		sub, err = subscription.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*billing_models.Subscription, error) {
	var sub *stripe.Subscription
	err := g.call(ctx, func() (err error) {
		sub, err = subscription.Get(subscriptionID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

func (g *StripeGateway) GetInvoice(ctx context.Context, invoiceID string) (*billing_models.Invoice, error) {
	var inv *stripe.Invoice
	err := g.call(ctx, func() (err error) {
		inv, err = invoice.Get(invoiceID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := invoiceFromStripe(inv)
	if inv.LastResponse != nil && len(inv.LastResponse.RawJSON) > 0 {
		// the subscription reference moved between API versions; read it
		// from the raw body so both shapes resolve
		var raw billing_models.InvoiceObject
		if err := json.Unmarshal(inv.LastResponse.RawJSON, &raw); err == nil {
			out.SubscriptionID = raw.SubscriptionID()
			if out.Metadata == nil {
				out.Metadata = raw.Metadata
			}
		}
	}
	return &out, nil
}

func (g *StripeGateway) LatestInvoice(ctx context.Context, customerID string) (*billing_models.Invoice, error) {
	var latest *billing_models.Invoice
	err := g.call(ctx, func() error {
		params := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
		params.Limit = stripe.Int64(1)
		params.Single = true
		iter := invoice.List(params)
		for iter.Next() {
			inv := invoiceFromStripe(iter.Invoice())
			latest = &inv
			break
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// ListPaidInvoices returns the subscription's paid invoices, newest first.
func (g *StripeGateway) ListPaidInvoices(ctx context.Context, subscriptionID string) ([]billing_models.Invoice, error) {
	var invoices []billing_models.Invoice
	err := g.call(ctx, func() error {
		invoices = invoices[:0]
		params := &stripe.InvoiceListParams{
			Subscription: stripe.String(subscriptionID),
			Status:       stripe.String(string(stripe.InvoiceStatusPaid)),
		}
		params.Limit = stripe.Int64(10)
		params.Single = true
		iter := invoice.List(params)
		for iter.Next() {
			invoices = append(invoices, invoiceFromStripe(iter.Invoice()))
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(invoices, func(i, j int) bool { return invoices[i].Created.After(invoices[j].Created) })
	return invoices, nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) error {
	if g.webhookSecret == "" {
		return nil
	}
	_, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: webhook signature: %w", utils.ErrInvalidInput, err)
	}
	return nil
}

func customerFromStripe(c *stripe.Customer) *billing_models.Customer {
	if c == nil {
		return nil
	}
	return &billing_models.Customer{ID: c.ID, Email: c.Email, Name: c.Name, Metadata: c.Metadata}
}

func subscriptionFromStripe(s *stripe.Subscription) *billing_models.Subscription {
	out := &billing_models.Subscription{ID: s.ID, Status: string(s.Status), Metadata: s.Metadata}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.TrialEnd > 0 {
		t := time.Unix(s.TrialEnd, 0).UTC()
		out.TrialEnd = &t
	}
	return out
}

func invoiceFromStripe(inv *stripe.Invoice) billing_models.Invoice {
	out := billing_models.Invoice{
		ID:               inv.ID,
		Number:           inv.Number,
		CustomerEmail:    inv.CustomerEmail,
		Status:           string(inv.Status),
		BillingReason:    string(inv.BillingReason),
		HostedInvoiceURL: inv.HostedInvoiceURL,
		InvoicePDF:       inv.InvoicePDF,
		AmountPaid:       inv.AmountPaid,
		AmountDue:        inv.AmountDue,
		Currency:         string(inv.Currency),
		Created:          time.Unix(inv.Created, 0).UTC(),
		Metadata:         inv.Metadata,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	return out
}
