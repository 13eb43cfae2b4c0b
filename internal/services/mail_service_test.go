package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"storehere/pkg/utils"
)

type capturedEmail struct {
	To, Subject, HTML, Text string
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []capturedEmail
	failures int
}

func (f *fakeSender) Send(_ context.Context, to, subject, html, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("throttled")
	}
	f.sent = append(f.sent, capturedEmail{to, subject, html, text})
	return nil
}

func newMail(t *testing.T) (IMailService, *fakeSender) {
	sender := &fakeSender{}
	svc := NewMailService(MailConfig{AppName: "StoreHere", AppBaseURL: "https://storehere.example"}, sender, testRunner(t), zaptest.NewLogger(t))
	return svc, sender
}

func TestSendWelcome(t *testing.T) {
	svc, sender := newMail(t)

	err := svc.SendWelcome(context.Background(), WelcomeMail{
		To:               "jo@example.com",
		Name:             "Jo",
		ContainerNumber:  "A01",
		SiteName:         "Edwardstown",
		TotalCents:       64000,
		BondCents:        30000,
		TrialDays:        28,
		BillingFrequency: "weekly",
		InvoiceURL:       "https://invoice.stripe.com/i/in_1",
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "jo@example.com", msg.To)
	assert.Equal(t, "Your StoreHere container is ready", msg.Subject)
	for _, want := range []string{"Hi Jo,", "A01", "Edwardstown", "$640.00", "$340.00", "$300.00", "28 days", "https://invoice.stripe.com/i/in_1"} {
		assert.Contains(t, msg.Text, want)
	}
	assert.Contains(t, msg.HTML, "$640.00")
}

func TestSendPaymentFailed_FallsBackToProfileLink(t *testing.T) {
	svc, sender := newMail(t)

	err := svc.SendPaymentFailed(context.Background(), PaymentMail{To: "jo@example.com", ContainerNumber: "A01", AmountCents: 8000})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "Pay now: https://storehere.example/profile")
	assert.Contains(t, sender.sent[0].Text, "Hi there,")
}

func TestSendPaymentConfirmation_ShowsNextDueDate(t *testing.T) {
	svc, sender := newMail(t)
	next := time.Date(2025, 8, 11, 2, 0, 0, 0, time.UTC)

	err := svc.SendPaymentConfirmation(context.Background(), PaymentMail{
		To:          "jo@example.com",
		AmountCents: 8000,
		PaidAt:      time.Date(2025, 8, 4, 2, 0, 0, 0, time.UTC),
		NextDueDate: &next,
	})
	require.NoError(t, err)
	assert.Contains(t, sender.sent[0].Text, "Next payment: 11 August 2025")
	assert.Contains(t, sender.sent[0].Text, "Amount: $80.00")
}

func TestDeliver_RetriesTransientFailure(t *testing.T) {
	svc, sender := newMail(t)
	sender.failures = 1

	require.NoError(t, svc.SendContainerAvailable(context.Background(), "next@example.com", "Next"))
	assert.Len(t, sender.sent, 1)
}

func TestDeliver_RequiresRecipient(t *testing.T) {
	svc, sender := newMail(t)

	err := svc.SendWaitlistPaid(context.Background(), "", "Jo")
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
	assert.Empty(t, sender.sent)
}
