package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/internal/models/billing_models"
	"storehere/internal/models/db_models"
	"storehere/internal/models/request_models"
	"storehere/internal/models/response_models"
	"storehere/pkg/utils"
)

type BillingConfig struct {
	Currency          string
	PrepaidRentCents  int64
	SecurityBondCents int64
	PrepaidWeeks      int
	PriceIDs          map[string]string
	SuccessURL        string
	CancelURL         string
	AppBaseURL        string
}

// TrialPeriod is the prepaid window before recurring billing starts.
func (c BillingConfig) TrialPeriod(weeks int) time.Duration {
	if weeks <= 0 {
		weeks = c.PrepaidWeeks
	}
	return time.Duration(weeks) * 7 * 24 * time.Hour
}

// PriceFor resolves the recurring price: site override, then the configured
// price for the frequency, then the weekly price.
func (c BillingConfig) PriceFor(site *db_models.Site, f db_models.BillingFrequency) string {
	if p := site.PriceFor(f); p != "" {
		return p
	}
	if p := c.PriceIDs[string(f)]; p != "" {
		return p
	}
	return c.PriceIDs[string(db_models.FrequencyWeekly)]
}

type PaymentService interface {
	CreateCheckout(ctx context.Context, req request_models.CreateCustomerRequest) (*response_models.CreateCustomerResponse, error)
}

type paymentService struct {
	billing infra.BillingGateway
	cfg     BillingConfig
	logger  *zap.Logger
}

func NewPaymentService(billing infra.BillingGateway, cfg BillingConfig, logger *zap.Logger) PaymentService {
	return &paymentService{billing: billing, cfg: cfg, logger: logger.Named("payment")}
}

func (p *paymentService) CreateCheckout(ctx context.Context, req request_models.CreateCustomerRequest) (*response_models.CreateCustomerResponse, error) {
	freq := db_models.BillingFrequency(req.BillingFrequency)
	if !freq.Valid() {
		return nil, fmt.Errorf("%w: billing frequency %q", utils.ErrInvalidInput, req.BillingFrequency)
	}
	email := db_models.NormalizeEmail(req.UserEmail)
	userID := req.UserID()

	cust, err := p.billing.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		cust, err = p.billing.CreateCustomer(ctx, email, req.UserName, map[string]string{"userId": userID})
		if err != nil {
			return nil, err
		}
		p.logger.Info("billing customer created", zap.String("billing_customer_id", cust.ID))
	}

	weeks := strconv.Itoa(p.cfg.PrepaidWeeks)
	metadata := map[string]string{
		"payment_type":      "initial",
		"container_id":      req.ContainerID,
		"site_id":           req.SiteID,
		"user_email":        email,
		"user_name":         req.UserName,
		"user_id":           userID,
		"billing_frequency": string(freq),
		"prepaid_weeks":     weeks,
	}

	session, err := p.billing.CreateCheckoutSession(ctx, billing_models.CheckoutSessionParams{
		CustomerID: cust.ID,
		Currency:   p.cfg.Currency,
		SuccessURL: p.cfg.SuccessURL,
		CancelURL:  p.cfg.CancelURL,
		LineItems: []billing_models.LineItem{
			{Name: fmt.Sprintf("%d weeks storage rent", p.cfg.PrepaidWeeks), AmountCents: p.cfg.PrepaidRentCents, Quantity: 1},
			{Name: "Security bond (refundable)", AmountCents: p.cfg.SecurityBondCents, Quantity: 1},
		},
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("checkout session created",
		zap.String("billing_customer_id", cust.ID),
		zap.String("session_id", session.ID),
		zap.String("site_id", req.SiteID),
		zap.String("container", req.ContainerID),
	)
	return &response_models.CreateCustomerResponse{SessionURL: session.URL, CustomerID: cust.ID}, nil
}
