package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/internal/models/db_models"
	"storehere/internal/models/request_models"
	"storehere/internal/models/response_models"
	"storehere/internal/repositories"
	"storehere/pkg/utils"
)

type IContainerService interface {
	ListSites(ctx context.Context) ([]*db_models.Site, error)
	CreateSite(ctx context.Context, req request_models.CreateSiteRequest) (*db_models.Site, error)
	UploadSiteMap(ctx context.Context, siteID, filename string, body []byte, contentType string) (*db_models.Site, error)
	ListContainers(ctx context.Context, siteID string) (*response_models.SiteContainersResponse, error)
	CreateContainer(ctx context.Context, siteID string, req request_models.CreateContainerRequest) (*db_models.Container, error)
	Release(ctx context.Context, siteID, number string) (*db_models.Container, error)
	Abandon(ctx context.Context, siteID, number string) (*db_models.Container, error)
	ListOverdue(ctx context.Context) ([]*db_models.Container, error)
	MyContainer(ctx context.Context, email string) (*db_models.Container, error)
	Availability(ctx context.Context) (*response_models.AvailabilityResponse, error)
}

type containerService struct {
	sites      repositories.ISiteRepository
	containers repositories.IContainerRepository
	waitlist   IWaitingListService
	store      infra.ObjectStore
	storage    StorageConfig
	logger     *zap.Logger
	now        func() time.Time
}

func NewContainerService(
	sites repositories.ISiteRepository,
	containers repositories.IContainerRepository,
	waitlist IWaitingListService,
	store infra.ObjectStore,
	storage StorageConfig,
	logger *zap.Logger,
) IContainerService {
	return &containerService{
		sites:      sites,
		containers: containers,
		waitlist:   waitlist,
		store:      store,
		storage:    storage,
		logger:     logger.Named("containers"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *containerService) ListSites(ctx context.Context) ([]*db_models.Site, error) {
	return s.sites.List(ctx)
}

func (s *containerService) CreateSite(ctx context.Context, req request_models.CreateSiteRequest) (*db_models.Site, error) {
	site := db_models.NewSite(req.Name, req.Address, s.now())
	if site.ID == "" {
		return nil, fmt.Errorf("%w: site name %q", utils.ErrInvalidInput, req.Name)
	}
	if err := s.sites.Create(ctx, site); err != nil {
		return nil, err
	}
	s.logger.Info("site created", zap.String("site_id", site.ID))
	return site, nil
}

func (s *containerService) site(ctx context.Context, siteID string) (*db_models.Site, error) {
	site, err := s.sites.Get(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, utils.ErrSiteNotFound
	}
	return site, nil
}

func (s *containerService) UploadSiteMap(ctx context.Context, siteID, filename string, body []byte, contentType string) (*db_models.Site, error) {
	site, err := s.site(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty upload", utils.ErrInvalidInput)
	}
	name := strings.ReplaceAll(path.Base(filename), " ", "_")
	key := fmt.Sprintf("site-map/%s_%d_%s", siteID, s.now().Unix(), name)
	if err := s.store.Put(ctx, s.storage.SiteMapBucket, key, body, contentType, map[string]string{"siteId": siteID}); err != nil {
		return nil, err
	}
	site.MapImageKey = key
	if err := s.sites.Save(ctx, site); err != nil {
		return nil, err
	}
	return site, nil
}

func (s *containerService) ListContainers(ctx context.Context, siteID string) (*response_models.SiteContainersResponse, error) {
	site, err := s.site(ctx, siteID)
	if err != nil {
		return nil, err
	}
	containers, err := s.containers.ListBySite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, c := range containers {
		c.Refresh()
		counts[string(c.Status)]++
	}
	return &response_models.SiteContainersResponse{Site: site, Containers: containers, Counts: counts}, nil
}

func (s *containerService) CreateContainer(ctx context.Context, siteID string, req request_models.CreateContainerRequest) (*db_models.Container, error) {
	site, err := s.site(ctx, siteID)
	if err != nil {
		return nil, err
	}
	existing, err := s.containers.ListBySite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site.ContainerCapacity > 0 && len(existing) >= site.ContainerCapacity {
		return nil, fmt.Errorf("%w: site %s is at capacity (%d)", utils.ErrInvalidInput, siteID, site.ContainerCapacity)
	}

	c := db_models.NewContainer(siteID, strings.ToUpper(req.Number))
	c.Notes = req.Notes
	if err := s.containers.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("container created", zap.String("site_id", siteID), zap.String("container", c.Number))
	return c, nil
}

func (s *containerService) container(ctx context.Context, siteID, number string) (*db_models.Container, error) {
	c, err := s.containers.Get(ctx, siteID, number)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, utils.ErrContainerNotFound
	}
	return c, nil
}

// Release is the operator returning a container to stock.
func (s *containerService) Release(ctx context.Context, siteID, number string) (*db_models.Container, error) {
	c, err := s.container(ctx, siteID, number)
	if err != nil {
		return nil, err
	}
	c, err = updateContainer(ctx, s.containers, c, func(c *db_models.Container) { c.Release() })
	if err != nil {
		return nil, err
	}
	s.logger.Info("container released", zap.String("site_id", siteID), zap.String("container", number))

	if err := s.waitlist.NotifyNext(ctx); err != nil {
		s.logger.Warn("waiting list notification failed", zap.Error(err))
	}
	return c, nil
}

func (s *containerService) Abandon(ctx context.Context, siteID, number string) (*db_models.Container, error) {
	c, err := s.container(ctx, siteID, number)
	if err != nil {
		return nil, err
	}
	now := s.now()
	c, err = updateContainer(ctx, s.containers, c, func(c *db_models.Container) { c.Abandon(now) })
	if err != nil {
		return nil, err
	}
	s.logger.Info("container abandoned", zap.String("site_id", siteID), zap.String("container", number))
	return c, nil
}

// ListOverdue returns rentals past their due date or in arrears.
func (s *containerService) ListOverdue(ctx context.Context) ([]*db_models.Container, error) {
	all, err := s.containers.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var overdue []*db_models.Container
	for _, c := range all {
		switch c.SubscriptionStatus {
		case db_models.SubStatusPastDue:
			overdue = append(overdue, c)
		case db_models.SubStatusActive, db_models.SubStatusTrialing:
			if c.NextDueDate != nil && c.NextDueDate.Before(now) {
				overdue = append(overdue, c)
			}
		}
	}
	return overdue, nil
}

func (s *containerService) MyContainer(ctx context.Context, email string) (*db_models.Container, error) {
	c, err := s.containers.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if c == nil || c.EffectiveStatus() == db_models.StatusAvailable {
		return nil, utils.ErrContainerNotFound
	}
	return c, nil
}

func (s *containerService) Availability(ctx context.Context) (*response_models.AvailabilityResponse, error) {
	sites, err := s.sites.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, site := range sites {
		containers, err := s.containers.ListBySite(ctx, site.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range containers {
			if c.IsAvailable() {
				return &response_models.AvailabilityResponse{
					Available:       true,
					SiteID:          site.ID,
					SiteName:        site.Name,
					ContainerNumber: c.Number,
				}, nil
			}
		}
	}
	return &response_models.AvailabilityResponse{WaitingList: true}, nil
}
