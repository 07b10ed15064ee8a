package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/remote"
	"github.com/distantorigin/butter-launcher/internal/version"
)

const (
	// DefaultProbeCap bounds how many builds past the declared latest are probed
	DefaultProbeCap = 50

	DefaultProbeConcurrency = 8
	DefaultProbeTTL         = 5 * time.Minute
	DefaultFetchRetries     = 2
	DefaultRetryInterval    = 500 * time.Millisecond

	// CacheFileName is the last successfully fetched catalog inside the cache dir
	CacheFileName = "versions.json"
)

// Config describes where catalogs and patches live
type Config struct {
	// CatalogURL serves the version catalog document
	CatalogURL string
	// DownloadsURL is the base of the fix catalog (<base>/online/versions.json)
	DownloadsURL string
	// PatchBaseURL is the root of <os>/<arch>/<channel>/0/<n>.pwr
	PatchBaseURL string
	// CacheDir keeps the last fetched catalog for offline use; empty disables it
	CacheDir string

	ProbeCap         int
	ProbeConcurrency int
	ProbeTTL         time.Duration
	FetchRetries     uint64
	RetryInterval    time.Duration

	// GOOS and GOARCH override the running platform
	GOOS   string
	GOARCH string
}

func (c *Config) setDefaults() {
	if c.ProbeCap <= 0 {
		c.ProbeCap = DefaultProbeCap
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = DefaultProbeConcurrency
	}
	if c.ProbeTTL <= 0 {
		c.ProbeTTL = DefaultProbeTTL
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.GOOS == "" {
		c.GOOS = runtime.GOOS
	}
	if c.GOARCH == "" {
		c.GOARCH = runtime.GOARCH
	}
}

// Resolver turns the remote catalog into the list of builds that can
// actually be downloaded
type Resolver struct {
	cfg     Config
	fetcher remote.Fetcher
	probes  *gocache.Cache
	now     func() time.Time
}

// NewResolver creates a resolver using fetcher for every network call
func NewResolver(cfg Config, fetcher remote.Fetcher) *Resolver {
	cfg.setDefaults()
	return &Resolver{
		cfg:     cfg,
		fetcher: fetcher,
		probes:  gocache.New(cfg.ProbeTTL, 2*cfg.ProbeTTL),
		now:     time.Now,
	}
}

// SetClock replaces the clock used to decide whether a catalog is stale
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// PlatformOS maps a GOOS value to the patch server's OS segment
func PlatformOS(goos string) string {
	switch goos {
	case "windows":
		return "windows"
	case "darwin":
		return "darwin"
	default:
		return "linux"
	}
}

// PlatformArch returns the patch server's architecture segment. Only arm64
// builds are published for macOS and only amd64 everywhere else.
func PlatformArch(goos string) string {
	if goos == "darwin" {
		return "arm64"
	}
	return "amd64"
}

// PatchURL is the full-build patch for build n of a channel
func (r *Resolver) PatchURL(ch channel.Channel, n int) string {
	osName := PlatformOS(r.cfg.GOOS)
	return fmt.Sprintf("%s/%s/%s/%s/0/%d.pwr", r.cfg.PatchBaseURL, osName, PlatformArch(r.cfg.GOOS), ch, n)
}

// Resolve returns the downloadable builds of a channel, ascending by build
// index. A catalog that can be neither fetched nor read from cache yields an
// empty list; only cancellation is reported as an error.
func (r *Resolver) Resolve(ctx context.Context, ch channel.Channel) ([]version.GameVersion, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("invalid channel %q", ch)
	}

	cat, ok := r.Catalog(ctx)
	if !ok {
		return nil, ctx.Err()
	}

	ids, err := r.existingListed(ctx, cat, ch)
	if err != nil {
		return nil, err
	}

	if latest := cat.LatestID(ch); latest > 0 && r.isStale(cat) {
		extras, err := r.probeBeyondLatest(ctx, ch, latest+1)
		if err != nil {
			return nil, err
		}
		ids = append(ids, extras...)
	}

	ids = dedupeSorted(ids)

	names := cat.Names(ch)
	versions := make([]version.GameVersion, 0, len(ids))
	for _, n := range ids {
		v := version.GameVersion{
			URL:        r.PatchURL(ch, n),
			Channel:    ch,
			BuildIndex: n,
			BuildName:  fmt.Sprintf("build-%d", n),
		}
		if d, ok := names[fmt.Sprint(n)]; ok {
			if d.Name != "" {
				v.BuildName = d.Name
			}
			if d.URL != "" && d.Hash != "" {
				v.PatchURL = d.URL
				v.PatchHash = d.Hash
			}
		}
		versions = append(versions, v)
	}

	r.attachFixes(ctx, versions)

	if ch == channel.Release && len(versions) > 0 {
		versions[len(versions)-1].IsLatest = true
	}

	return versions, nil
}

// MarkInstalled flags the build recorded as installed, clearing any other flag
func MarkInstalled(versions []version.GameVersion, installedBuild int) []version.GameVersion {
	out := make([]version.GameVersion, len(versions))
	for i, v := range versions {
		v.Installed = installedBuild > 0 && v.BuildIndex == installedBuild
		out[i] = v
	}
	return out
}

// Catalog fetches the version catalog, falling back to the cached copy
func (r *Resolver) Catalog(ctx context.Context) (*version.Catalog, bool) {
	cat, err := r.fetchCatalog(ctx)
	if err == nil {
		if err := r.saveCache(cat); err != nil {
			log.Debugf("failed to cache version catalog: %v", err)
		}
		return cat, true
	}
	log.Warnf("failed to fetch version catalog, trying cache: %v", err)

	cat, err = r.loadCache()
	if err != nil {
		log.Debugf("no cached version catalog: %v", err)
		return nil, false
	}
	return cat, true
}

func (r *Resolver) retryPolicy(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     r.cfg.RetryInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * r.cfg.RetryInterval,
		MaxElapsedTime:      time.Minute,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, r.cfg.FetchRetries), ctx)
}

func (r *Resolver) fetchJSON(ctx context.Context, url string, v interface{}) error {
	if url == "" {
		return errors.New("no url configured")
	}
	operation := func() error {
		err := r.fetcher.FetchJSON(ctx, url, v)
		if remote.IsStatus(err, http.StatusNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, r.retryPolicy(ctx))
}

func (r *Resolver) fetchCatalog(ctx context.Context) (*version.Catalog, error) {
	var cat version.Catalog
	if err := r.fetchJSON(ctx, r.cfg.CatalogURL, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (r *Resolver) cachePath() string {
	return filepath.Join(r.cfg.CacheDir, CacheFileName)
}

func (r *Resolver) saveCache(cat *version.Catalog) error {
	if r.cfg.CacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.cfg.CacheDir, 0755); err != nil {
		return err
	}

	data, err := json.Marshal(cat)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.cfg.CacheDir, CacheFileName+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), r.cachePath()); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (r *Resolver) loadCache() (*version.Catalog, error) {
	if r.cfg.CacheDir == "" {
		return nil, errors.New("catalog cache disabled")
	}
	data, err := os.ReadFile(r.cachePath())
	if err != nil {
		return nil, err
	}
	var cat version.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse cached catalog: %w", err)
	}
	return &cat, nil
}

// isStale reports whether the catalog's listing date is before today
func (r *Resolver) isStale(cat *version.Catalog) bool {
	listed, ok := cat.ListedDate()
	if !ok {
		return false
	}
	now := r.now().In(time.Local)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	return listed.Before(today)
}

// exists probes one build. Any failure counts as absent.
func (r *Resolver) exists(ctx context.Context, ch channel.Channel, n int) bool {
	url := r.PatchURL(ch, n)
	if v, ok := r.probes.Get(url); ok {
		return v.(bool)
	}

	code, err := r.fetcher.Head(ctx, url)
	if err != nil {
		log.Debugf("probe %s failed: %v", url, err)
		if ctx.Err() == nil {
			r.probes.Set(url, false, gocache.DefaultExpiration)
		}
		return false
	}

	ok := code == http.StatusOK
	r.probes.Set(url, ok, gocache.DefaultExpiration)
	return ok
}

func (r *Resolver) existingListed(ctx context.Context, cat *version.Catalog, ch channel.Channel) ([]int, error) {
	candidates := cat.BuildIDs(ch)
	if latest := cat.LatestID(ch); latest > 0 {
		candidates = append(candidates, latest)
	}
	candidates = dedupeSorted(candidates)

	found := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.ProbeConcurrency)
	for i, n := range candidates {
		g.Go(func() error {
			found[i] = r.exists(gctx, ch, n)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []int
	for i, ok := range found {
		if ok {
			ids = append(ids, candidates[i])
		}
	}
	return ids, nil
}

// probeBeyondLatest walks start, start+1, ... until the first missing build
func (r *Resolver) probeBeyondLatest(ctx context.Context, ch channel.Channel, start int) ([]int, error) {
	var found []int
	for n := start; n < start+r.cfg.ProbeCap; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.exists(ctx, ch, n) {
			break
		}
		found = append(found, n)
	}
	return found, nil
}

func (r *Resolver) attachFixes(ctx context.Context, versions []version.GameVersion) {
	if r.cfg.DownloadsURL == "" || len(versions) == 0 {
		return
	}

	var fixes version.FixCatalog
	if err := r.fetchJSON(ctx, r.cfg.DownloadsURL+"/online/versions.json", &fixes); err != nil {
		log.Debugf("fix catalog unavailable: %v", err)
		return
	}

	osName := PlatformOS(r.cfg.GOOS)
	entries := fixes[osName]
	if len(entries) == 0 {
		return
	}

	ranges := make([]RangeSet, len(entries))
	valid := make([]bool, len(entries))
	for i, e := range entries {
		rs, err := ParseRange(e.Range)
		if err != nil {
			log.Debugf("skipping fix %s: %v", e.Path, err)
			continue
		}
		ranges[i] = rs
		valid[i] = true
	}

	for i := range versions {
		for j, e := range entries {
			if valid[j] && ranges[j].Check(versions[i].BuildIndex) {
				versions[i].FixURL = fmt.Sprintf("%s/online/%s/%s", r.cfg.DownloadsURL, osName, e.Path)
				versions[i].FixHash = e.Hash
				break
			}
		}
	}
}

func dedupeSorted(ids []int) []int {
	if len(ids) == 0 {
		return ids
	}
	sort.Ints(ids)
	out := ids[:1]
	for _, n := range ids[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}
