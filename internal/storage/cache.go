// Package storage shares one open storage handle per admission year between
// ingestion and queries.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
)

// Opener opens the storage unit for year. When create is false a missing
// unit must yield admission.ErrNotFound.
type Opener func(ctx context.Context, year int, create bool) (admission.Store, error)

// Cache maps a year to its single live handle. Handles are created on first
// use and stay open until Replace, Release or Close.
type Cache struct {
	open   Opener
	logger *zap.Logger

	mu      sync.RWMutex
	handles map[int]admission.Store
}

// NewCache builds an empty cache that opens handles with open.
func NewCache(open Opener, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		open:    open,
		logger:  logger.Named("store_cache"),
		handles: make(map[int]admission.Store),
	}
}

// GetOrCreate returns the live handle for year, opening it on a miss.
func (c *Cache) GetOrCreate(ctx context.Context, year int, create bool) (admission.Store, error) {
	c.mu.RLock()
	h, ok := c.handles[year]
	c.mu.RUnlock()
	if ok {
		return h, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[year]; ok {
		return h, nil
	}

	h, err := c.open(ctx, year, create)
	if err != nil {
		return nil, fmt.Errorf("open year %d: %w", year, err)
	}
	c.install(year, h)
	return h, nil
}

// Replace installs h as the handle for year, closing any handle it supersedes.
func (c *Cache) Replace(year int, h admission.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.install(year, h)
}

// install must be called with mu held.
func (c *Cache) install(year int, h admission.Store) {
	if prev, ok := c.handles[year]; ok && prev != h {
		if err := prev.Close(); err != nil {
			c.logger.Warn("close superseded handle", zap.Int("year", year), zap.Error(err))
		}
	}
	c.handles[year] = h
}

// Release closes and forgets the handle for year, if any.
func (c *Cache) Release(year int) error {
	c.mu.Lock()
	h, ok := c.handles[year]
	delete(c.handles, year)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := h.Close(); err != nil {
		return fmt.Errorf("close year %d: %w", year, err)
	}
	return nil
}

// Years lists the years with a live handle, ascending.
func (c *Cache) Years() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	years := make([]int, 0, len(c.handles))
	for y := range c.handles {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Close closes every handle. The cache is empty afterwards and may be reused.
func (c *Cache) Close() error {
	c.mu.Lock()
	handles := c.handles
	c.handles = make(map[int]admission.Store)
	c.mu.Unlock()

	var err error
	for year, h := range handles {
		if closeErr := h.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close year %d: %w", year, closeErr))
		}
	}
	return err
}
