// Package seed reads the published upstream dataset as a read-only source of values and minimal graphs.
package seed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/libqb/metrics"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://raw.githubusercontent.com/cerickson30/qBound/main/data"

// FetcherOpts configures a Fetcher.
type FetcherOpts struct {
	BaseURL           string       // defaults to DefaultBaseURL
	Client            *http.Client // defaults to a client with a 30s timeout
	RequestsPerSecond float64      // defaults to 8
	MaxConcurrent     int          // defaults to 4
	MaxRetries        uint64       // defaults to 4
}

// Fetcher downloads and decodes upstream artifacts.  It is safe for concurrent use.
type Fetcher struct {
	opts    FetcherOpts
	limiter *rate.Limiter
}

func NewFetcher(opts FetcherOpts) *Fetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 8
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 4
	}
	return &Fetcher{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
}

func stratumPath(s qbound.Stratum) string {
	return fmt.Sprintf("uspcm_dict/uspcm_dict_%d_verts_%d_edges.txt", s.N, s.M)
}

const minimalsPath = "minimals_dict.txt"

// get fetches a path under the base URL, retrying transient failures with exponential backoff.
// A 404 is permanent and reported as qbound.ErrSeedNotFound.
func (f *Fetcher) get(ctx context.Context, path string) ([]byte, error) {
	url := f.opts.BaseURL + "/" + path

	var body []byte
	op := func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.opts.Client.Do(req)
		if err != nil {
			metrics.SeedRequests.WithLabelValues("error").Inc()
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			metrics.SeedRequests.WithLabelValues("not_found").Inc()
			return backoff.Permanent(errors.Wrap(qbound.ErrSeedNotFound, url))
		case resp.StatusCode != http.StatusOK:
			metrics.SeedRequests.WithLabelValues("error").Inc()
			err = errors.Errorf("GET %s: %s", url, resp.Status)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			metrics.SeedRequests.WithLabelValues("error").Inc()
			return err
		}
		metrics.SeedRequests.WithLabelValues("ok").Inc()
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, f.opts.MaxRetries), ctx),
		func(err error, wait time.Duration) {
			klog.Warningf("seed fetch %s failed, retrying in %v: %v", path, wait.Round(time.Millisecond), err)
		})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// FetchStratum returns the upstream value table for s with keys rewritten into canonical keys.
func (f *Fetcher) FetchStratum(ctx context.Context, s qbound.Stratum) (stratum.ValueTable, error) {
	if !s.Valid() {
		return nil, errors.Wrapf(qbound.ErrBadStratum, "%v", s)
	}
	path := stratumPath(s)
	body, err := f.get(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := ParseValueTable(path, body)
	if err != nil {
		return nil, err
	}

	table := make(stratum.ValueTable, len(raw))
	for g6, v := range raw {
		id, err := canonicalize(g6)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		if id.Stratum != s {
			return nil, errors.Wrapf(qbound.ErrUnmarshal, "%s: %q is in stratum %v", path, g6, id.Stratum)
		}
		table.Relax(id.Key, v)
	}
	return table, nil
}

// FetchMinimals returns the upstream minimals registry with keys rewritten into canonical keys.
func (f *Fetcher) FetchMinimals(ctx context.Context) (*stratum.Registry, error) {
	body, err := f.get(ctx, minimalsPath)
	if err != nil {
		return nil, err
	}
	raw, err := ParseMinimals(minimalsPath, body)
	if err != nil {
		return nil, err
	}

	reg := stratum.NewRegistry()
	for k, items := range raw {
		for _, g6 := range items {
			id, err := canonicalize(g6)
			if err != nil {
				return nil, errors.Wrap(err, minimalsPath)
			}
			reg.Add(k, id.Key)
		}
	}
	return reg, nil
}

// FetchAll fetches every stratum holding connected graphs on up to maxVerts vertices.
// Strata missing upstream are skipped.
func (f *Fetcher) FetchAll(ctx context.Context, maxVerts int) (map[qbound.Stratum]stratum.ValueTable, error) {
	var (
		mu     sync.Mutex
		tables = make(map[qbound.Stratum]stratum.ValueTable)
	)

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(f.opts.MaxConcurrent)

	qbound.WalkStrata(qbound.Stratum{N: 1, M: 0}, maxVerts, func(s qbound.Stratum) bool {
		grp.Go(func() error {
			table, err := f.FetchStratum(ctx, s)
			if errors.Is(err, qbound.ErrSeedNotFound) {
				klog.Warningf("seed stratum %v not published", s)
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "fetching %v", s)
			}
			mu.Lock()
			tables[s] = table
			mu.Unlock()
			return nil
		})
		return ctx.Err() == nil
	})

	if err := grp.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, table := range tables {
		total += len(table)
	}
	klog.Infof("fetched %d seed strata, %s graphs", len(tables), humanize.Comma(int64(total)))
	return tables, nil
}

func canonicalize(g6 string) (qbound.Identity, error) {
	X, err := graph.FromGraph6(g6)
	if err != nil {
		return qbound.Identity{}, err
	}
	return X.Identity(), nil
}
