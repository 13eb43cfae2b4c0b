package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"storehere/internal/models/db_models"
	"storehere/internal/repositories"
	"storehere/pkg/utils"
)

type AssignRequest struct {
	PreferredSiteID    string
	PreferredContainer string
	BillingCustomerID  string
	PaymentIntentID    string
	CustomerEmail      string
	CustomerName       string
	UserID             string
	BillingFrequency   db_models.BillingFrequency
	TrialPeriod        time.Duration
}

type IAssignmentService interface {
	// Assign claims a container for a paying customer. It returns
	// utils.ErrContainerUnavailable when every container is taken.
	Assign(ctx context.Context, req AssignRequest) (*db_models.Container, error)
}

type assignmentService struct {
	sites      repositories.ISiteRepository
	containers repositories.IContainerRepository
	logger     *zap.Logger
	now        func() time.Time
}

func NewAssignmentService(sites repositories.ISiteRepository, containers repositories.IContainerRepository, logger *zap.Logger) IAssignmentService {
	return &assignmentService{
		sites:      sites,
		containers: containers,
		logger:     logger.Named("assignment"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (a *assignmentService) Assign(ctx context.Context, req AssignRequest) (*db_models.Container, error) {
	if existing, err := a.alreadyAssigned(ctx, req); err != nil || existing != nil {
		return existing, err
	}

	if req.PreferredSiteID != "" && req.PreferredContainer != "" {
		c, err := a.containers.Get(ctx, req.PreferredSiteID, req.PreferredContainer)
		if err != nil {
			return nil, err
		}
		if c != nil && c.IsAvailable() {
			err = a.claim(ctx, c, req)
			if err == nil {
				return c, nil
			}
			if !errors.Is(err, utils.ErrContainerUnavailable) {
				return nil, err
			}
		}
		a.logger.Info("preferred container not available, falling back",
			zap.String("site_id", req.PreferredSiteID),
			zap.String("container", req.PreferredContainer),
		)
	}

	return a.firstAvailable(ctx, req)
}

// alreadyAssigned makes redelivery of the same payment return the container
// it claimed the first time.
func (a *assignmentService) alreadyAssigned(ctx context.Context, req AssignRequest) (*db_models.Container, error) {
	if req.BillingCustomerID == "" {
		return nil, nil
	}
	c, err := a.containers.FindByBillingCustomer(ctx, req.BillingCustomerID)
	if err != nil || c == nil {
		return nil, err
	}
	if c.EffectiveStatus() == db_models.StatusAvailable || c.EffectiveStatus() == db_models.StatusAbandoned {
		return nil, nil
	}
	if req.PaymentIntentID != "" && c.BillingPaymentIntentID != "" && c.BillingPaymentIntentID != req.PaymentIntentID {
		return nil, nil
	}
	a.logger.Info("customer already assigned",
		zap.String("billing_customer_id", req.BillingCustomerID),
		zap.String("site_id", c.SiteID),
		zap.String("container", c.Number),
	)
	return c, nil
}

func (a *assignmentService) firstAvailable(ctx context.Context, req AssignRequest) (*db_models.Container, error) {
	sites, err := a.sites.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	for _, site := range preferSite(sites, req.PreferredSiteID) {
		containers, err := a.containers.ListBySite(ctx, site.ID)
		if err != nil {
			return nil, fmt.Errorf("list containers: %w", err)
		}
		for _, c := range containers {
			if !c.IsAvailable() {
				continue
			}
			err := a.claim(ctx, c, req)
			if err == nil {
				return c, nil
			}
			if errors.Is(err, utils.ErrContainerUnavailable) {
				a.logger.Info("lost claim race", zap.String("site_id", c.SiteID), zap.String("container", c.Number))
				continue
			}
			return nil, err
		}
	}
	return nil, utils.ErrContainerUnavailable
}

func (a *assignmentService) claim(ctx context.Context, c *db_models.Container, req AssignRequest) error {
	c.Claim(db_models.ClaimDetails{
		BillingCustomerID: req.BillingCustomerID,
		PaymentIntentID:   req.PaymentIntentID,
		CustomerEmail:     db_models.NormalizeEmail(req.CustomerEmail),
		CustomerName:      req.CustomerName,
		UserID:            req.UserID,
		BillingFrequency:  req.BillingFrequency,
		TrialPeriod:       req.TrialPeriod,
	}, a.now())

	if err := a.containers.Claim(ctx, c); err != nil {
		return err
	}
	a.logger.Info("container claimed",
		zap.String("site_id", c.SiteID),
		zap.String("container", c.Number),
		zap.String("billing_customer_id", req.BillingCustomerID),
	)
	return nil
}

// preferSite moves the preferred site to the front, keeping the rest in order.
func preferSite(sites []*db_models.Site, preferred string) []*db_models.Site {
	if preferred == "" {
		return sites
	}
	ordered := make([]*db_models.Site, 0, len(sites))
	for _, s := range sites {
		if s.ID == preferred {
			ordered = append(ordered, s)
		}
	}
	for _, s := range sites {
		if s.ID != preferred {
			ordered = append(ordered, s)
		}
	}
	return ordered
}
