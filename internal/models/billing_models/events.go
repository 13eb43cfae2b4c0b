package billing_models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventInvoicePaid              = "invoice.paid"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
)

// Event is the envelope of a webhook delivery.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func ParseEvent(payload []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("event id and type are required")
	}
	return &e, nil
}

// DecodeObject unmarshals the event's data.object into T.
func DecodeObject[T any](e *Event) (*T, error) {
	if len(e.Data.Object) == 0 {
		return nil, fmt.Errorf("event %s has no data.object", e.ID)
	}
	var obj T
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("decode %s object: %w", e.Type, err)
	}
	return &obj, nil
}

type CheckoutSessionObject struct {
	ID              string            `json:"id"`
	Customer        string            `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	PaymentIntent   string            `json:"payment_intent"`
	Invoice         string            `json:"invoice"`
	AmountTotal     int64             `json:"amount_total"`
	PaymentStatus   string            `json:"payment_status"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
}

type PaymentIntentObject struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	PaymentMethod string            `json:"payment_method"`
	Amount        int64             `json:"amount"`
	ReceiptEmail  string            `json:"receipt_email"`
	Metadata      map[string]string `json:"metadata"`
}

type InvoiceObject struct {
	ID               string            `json:"id"`
	Number           string            `json:"number"`
	Customer         string            `json:"customer"`
	CustomerEmail    string            `json:"customer_email"`
	Subscription     string            `json:"subscription"`
	AmountPaid       int64             `json:"amount_paid"`
	AmountDue        int64             `json:"amount_due"`
	BillingReason    string            `json:"billing_reason"`
	HostedInvoiceURL string            `json:"hosted_invoice_url"`
	InvoicePDF       string            `json:"invoice_pdf"`
	Status           string            `json:"status"`
	Created          int64             `json:"created"`
	Metadata         map[string]string `json:"metadata"`
	Parent           *struct {
		SubscriptionDetails *struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID handles both the legacy top-level field and the newer
// parent.subscription_details shape.
func (i *InvoiceObject) SubscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

// MetadataValue looks in the invoice metadata, then the subscription metadata.
func (i *InvoiceObject) MetadataValue(key string) string {
	if v := i.Metadata[key]; v != "" {
		return v
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Metadata[key]
	}
	return ""
}

type SubscriptionObject struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// InitialPayment is the normalised context of a first payment, whichever
// event carried it.
type InitialPayment struct {
	EventID           string
	BillingCustomerID string
	PaymentIntentID   string
	PaymentMethodID   string
	InvoiceID         string
	AmountTotal       int64
	SiteID            string
	ContainerNumber   string
	Email             string
	Name              string
	UserID            string
	Frequency         string
	PrepaidWeeks      int
}

func (s *CheckoutSessionObject) ToInitialPayment(eventID string) InitialPayment {
	md := s.Metadata
	p := InitialPayment{
		EventID:           eventID,
		BillingCustomerID: s.Customer,
		PaymentIntentID:   s.PaymentIntent,
		InvoiceID:         s.Invoice,
		AmountTotal:       s.AmountTotal,
		SiteID:            md["site_id"],
		ContainerNumber:   md["container_id"],
		Email:             firstNonEmpty(md["user_email"], s.CustomerEmail),
		Name:              md["user_name"],
		UserID:            md["user_id"],
		Frequency:         md["billing_frequency"],
		PrepaidWeeks:      atoi(md["prepaid_weeks"]),
	}
	if s.CustomerDetails != nil {
		p.Email = firstNonEmpty(p.Email, s.CustomerDetails.Email)
		p.Name = firstNonEmpty(p.Name, s.CustomerDetails.Name)
	}
	return p
}

func (pi *PaymentIntentObject) ToInitialPayment(eventID string) InitialPayment {
	md := pi.Metadata
	return InitialPayment{
		EventID:           eventID,
		BillingCustomerID: pi.Customer,
		PaymentIntentID:   pi.ID,
		PaymentMethodID:   pi.PaymentMethod,
		AmountTotal:       pi.Amount,
		SiteID:            md["siteId"],
		ContainerNumber:   md["containerNumber"],
		Email:             firstNonEmpty(md["userEmail"], pi.ReceiptEmail),
		Name:              md["userName"],
		UserID:            md["userId"],
		Frequency:         md["billingFrequency"],
		PrepaidWeeks:      atoi(md["weeksPaid"]),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
