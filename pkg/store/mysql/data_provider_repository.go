package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"exportestimator/internal/model"
)

// ErrProviderNotFound is returned when no provider matches a slug
var ErrProviderNotFound = errors.New("data provider not found")

// DataProviderRepository reads data provider definitions
type DataProviderRepository struct {
	ds *Datastore
}

// NewDataProviderRepository creates a new data provider repository
func NewDataProviderRepository(ds *Datastore) *DataProviderRepository {
	return &DataProviderRepository{ds: ds}
}

// List returns every provider ordered by name
func (r *DataProviderRepository) List(ctx context.Context) ([]*model.DataProvider, error) {
	var providers []*DataProvider
	if err := r.ds.DB(ctx).Order("name").Find(&providers).Error; err != nil {
		return nil, fmt.Errorf("failed to list data providers: %w", err)
	}

	out := make([]*model.DataProvider, 0, len(providers))
	for _, p := range providers {
		out = append(out, ToDataProviderDomain(p))
	}
	return out, nil
}

// GetBySlug returns the provider with slug
func (r *DataProviderRepository) GetBySlug(ctx context.Context, slug string) (*model.DataProvider, error) {
	var p DataProvider
	err := r.ds.DB(ctx).Where("slug = ?", slug).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data provider %s: %w", slug, err)
	}
	return ToDataProviderDomain(&p), nil
}
