package seed

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/libqb/invariant"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
)

// Cache lazily fetches and retains upstream strata and the minimals registry.
type Cache struct {
	fetcher  *Fetcher
	mu       sync.Mutex
	tables   map[qbound.Stratum]stratum.ValueTable
	minimals *stratum.Registry
}

func NewCache(fetcher *Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		tables:  make(map[qbound.Stratum]stratum.ValueTable),
	}
}

// Table returns the value table of s, fetching it on first use.
func (c *Cache) Table(ctx context.Context, s qbound.Stratum) (stratum.ValueTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if table, cached := c.tables[s]; cached {
		return table, nil
	}
	table, err := c.fetcher.FetchStratum(ctx, s)
	if err != nil {
		return nil, err
	}
	c.tables[s] = table
	return table, nil
}

func (c *Cache) registry(ctx context.Context) (*stratum.Registry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.minimals == nil {
		reg, err := c.fetcher.FetchMinimals(ctx)
		if err != nil {
			return nil, err
		}
		c.minimals = reg
	}
	return c.minimals, nil
}

// Value returns the upstream value recorded for a graph identity.
func (c *Cache) Value(ctx context.Context, id qbound.Identity) (int, error) {
	table, err := c.Table(ctx, id.Stratum)
	if err != nil {
		return 0, err
	}
	v, found := table[id.Key]
	if !found {
		return 0, errors.Wrapf(qbound.ErrNotFound, "%s %v", id.Key, id.Stratum)
	}
	return v, nil
}

func (c *Cache) Minimals(ctx context.Context, k int) ([]qbound.Key, error) {
	reg, err := c.registry(ctx)
	if err != nil {
		return nil, err
	}
	return reg.Keys(k), nil
}

func (c *Cache) MinimalValues(ctx context.Context) ([]int, error) {
	reg, err := c.registry(ctx)
	if err != nil {
		return nil, err
	}
	return reg.Values(), nil
}

// Oracle serves single-graph values out of the upstream tables so the published data can drive propagation.
func (c *Cache) Oracle() invariant.Oracle {
	return invariant.Func(func(ctx context.Context, X *graph.Graph) (int, error) {
		return c.Value(ctx, X.Identity())
	})
}
