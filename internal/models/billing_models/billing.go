// Package billing_models holds the provider-neutral shapes exchanged with the
// billing gateway.
package billing_models

import "time"

type Customer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

type Invoice struct {
	ID               string
	Number           string
	CustomerID       string
	CustomerEmail    string
	SubscriptionID   string
	Status           string
	BillingReason    string
	HostedInvoiceURL string
	InvoicePDF       string
	AmountPaid       int64
	AmountDue        int64
	Currency         string
	Created          time.Time
	Metadata         map[string]string
}

const BillingReasonSubscriptionCreate = "subscription_create"

type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	TrialEnd   *time.Time
	Metadata   map[string]string
}

type LineItem struct {
	Name        string
	AmountCents int64
	Quantity    int64
}

type CheckoutSessionParams struct {
	CustomerID string
	Currency   string
	SuccessURL string
	CancelURL  string
	LineItems  []LineItem
	Metadata   map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type SubscriptionParams struct {
	CustomerID           string
	PriceID              string
	DefaultPaymentMethod string
	TrialEnd             time.Time
	Metadata             map[string]string
	// IdempotencyKey makes a redelivered event return the subscription
	// created the first time.
	IdempotencyKey string
}

type PaymentMethod struct {
	ID   string
	Type string
}
