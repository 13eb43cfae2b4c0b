package billing_models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`{"type":"invoice.paid"}`))
	assert.Error(t, err)

	e, err := ParseEvent([]byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", e.ID)
}

func TestCheckoutSessionToInitialPayment(t *testing.T) {
	e, err := ParseEvent([]byte(`{
		"id": "evt_123",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"customer": "cus_1",
			"payment_intent": "pi_1",
			"invoice": "in_1",
			"amount_total": 64000,
			"customer_details": {"email": "jo@example.com", "name": "Jo"},
			"metadata": {"container_id": "A01", "site_id": "edwardstown", "billing_frequency": "weekly", "prepaid_weeks": "4"}
		}}
	}`))
	require.NoError(t, err)

	session, err := DecodeObject[CheckoutSessionObject](e)
	require.NoError(t, err)

	p := session.ToInitialPayment(e.ID)
	assert.Equal(t, "cus_1", p.BillingCustomerID)
	assert.Equal(t, "A01", p.ContainerNumber)
	assert.Equal(t, "edwardstown", p.SiteID)
	assert.Equal(t, "jo@example.com", p.Email)
	assert.Equal(t, "Jo", p.Name)
	assert.Equal(t, 4, p.PrepaidWeeks)
	assert.Equal(t, int64(64000), p.AmountTotal)
}

func TestPaymentIntentToInitialPayment(t *testing.T) {
	pi := &PaymentIntentObject{
		ID:            "pi_9",
		Customer:      "cus_9",
		PaymentMethod: "pm_9",
		Amount:        64000,
		Metadata:      map[string]string{"containerNumber": "B02", "siteId": "lonsdale", "userEmail": "x@example.com", "weeksPaid": "bad"},
	}
	p := pi.ToInitialPayment("evt_9")
	assert.Equal(t, "pi_9", p.PaymentIntentID)
	assert.Equal(t, "pm_9", p.PaymentMethodID)
	assert.Equal(t, "B02", p.ContainerNumber)
	assert.Zero(t, p.PrepaidWeeks)
}

func TestInvoiceSubscriptionID(t *testing.T) {
	e, err := ParseEvent([]byte(`{"id":"evt_2","type":"invoice.payment_succeeded","data":{"object":{
		"id":"in_2","subscription":null,
		"parent":{"subscription_details":{"subscription":"sub_2","metadata":{"paymentIntentId":"pi_2"}}}
	}}}`))
	require.NoError(t, err)
	inv, err := DecodeObject[InvoiceObject](e)
	require.NoError(t, err)

	assert.Equal(t, "sub_2", inv.SubscriptionID())
	assert.Equal(t, "pi_2", inv.MetadataValue("paymentIntentId"))
}
