package services

import (
	"context"
	"errors"

	"storehere/internal/models/db_models"
	"storehere/internal/repositories"
	"storehere/pkg/utils"
)

// updateContainer applies mutate and saves. On a version conflict it re-reads
// the container and applies mutate once more.
func updateContainer(ctx context.Context, repo repositories.IContainerRepository, c *db_models.Container, mutate func(*db_models.Container)) (*db_models.Container, error) {
	mutate(c)
	err := repo.Save(ctx, c)
	if !errors.Is(err, utils.ErrConflict) {
		return c, err
	}

	fresh, err := repo.Get(ctx, c.SiteID, c.Number)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, utils.ErrContainerNotFound
	}
	mutate(fresh)
	if err := repo.Save(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}
