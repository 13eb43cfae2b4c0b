package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"storehere/internal/models/db_models"
	"storehere/internal/repositories"
)

type IWaitingListService interface {
	Join(ctx context.Context, email, name string) (*db_models.WaitingListEntry, bool, error)
	List(ctx context.Context) ([]*db_models.WaitingListEntry, error)
	// NotifyNext emails the longest-waiting person that a container is free.
	NotifyNext(ctx context.Context) error
}

type waitingListService struct {
	repo   repositories.IWaitingListRepository
	mail   IMailService
	logger *zap.Logger
	now    func() time.Time
}

func NewWaitingListService(repo repositories.IWaitingListRepository, mail IMailService, logger *zap.Logger) IWaitingListService {
	return &waitingListService{
		repo:   repo,
		mail:   mail,
		logger: logger.Named("waiting_list"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Join adds the email once; the boolean reports whether it was new.
func (s *waitingListService) Join(ctx context.Context, email, name string) (*db_models.WaitingListEntry, bool, error) {
	entry := db_models.NewWaitingListEntry(email, name, db_models.WaitingStatusWaiting, s.now())
	added, err := s.repo.Add(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	if !added {
		existing, err := s.repo.Get(ctx, email)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			entry = existing
		}
	}
	return entry, added, nil
}

func (s *waitingListService) List(ctx context.Context) ([]*db_models.WaitingListEntry, error) {
	return s.repo.List(ctx)
}

func (s *waitingListService) NotifyNext(ctx context.Context) error {
	entry, err := s.repo.OldestWaiting(ctx)
	if err != nil || entry == nil {
		return err
	}
	if err := s.mail.SendContainerAvailable(ctx, entry.Email, entry.Name); err != nil {
		return err
	}
	now := s.now()
	entry.Status = db_models.WaitingStatusNotified
	entry.NotifiedAt = &now
	if err := s.repo.Save(ctx, entry); err != nil {
		return err
	}
	s.logger.Info("waiting list notified", zap.String("email", entry.Email))
	return nil
}
