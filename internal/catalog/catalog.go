// Package catalog caches the software catalog and compares installed
// versions against it.
package catalog

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/serversoft/serversoft/internal/db/models"
)

const (
	defaultCacheTTL = 5 * time.Minute
	listAllKey      = "software:all"
	listCategoryKey = "software:category:"
	categoriesKey   = "categories"
)

// Source is the catalog backing store. *repositories.SoftwareRepository
// satisfies it.
type Source interface {
	ListSoftware(ctx context.Context, category string) ([]*models.Software, error)
	ListCategories(ctx context.Context) ([]string, error)
}

// Catalog serves catalog listings from memory for up to the configured TTL.
// Writes to the catalog must call Invalidate.
type Catalog struct {
	source Source
	cache  *cache.Cache
}

// New wraps source with a cache. A ttl of zero uses the default.
func New(source Source, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Catalog{source: source, cache: cache.New(ttl, 2*ttl)}
}

// List returns the catalog entries, optionally restricted to one category.
func (c *Catalog) List(ctx context.Context, category string) ([]*models.Software, error) {
	// category keys carry their own prefix so no category name maps onto the
	// unfiltered listing
	key := listAllKey
	if category != "" {
		key = listCategoryKey + category
	}
	if v, ok := c.cache.Get(key); ok {
		return v.([]*models.Software), nil
	}

	items, err := c.source.ListSoftware(ctx, category)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, items)
	return items, nil
}

// Categories returns the distinct catalog categories.
func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	if v, ok := c.cache.Get(categoriesKey); ok {
		return v.([]string), nil
	}
	cats, err := c.source.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(categoriesKey, cats)
	return cats, nil
}

// Invalidate drops every cached listing.
func (c *Catalog) Invalidate() {
	c.cache.Flush()
}
