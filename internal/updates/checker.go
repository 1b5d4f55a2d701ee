package updates

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/pkg/logger"
	"github.com/exiloncms/exiloncms/pkg/metrics"
)

const defaultConcurrency = 4

// Update describes a target with a newer release available.
type Update struct {
	Kind           string   `json:"kind"`
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	CurrentVersion string   `json:"current_version"`
	LatestVersion  string   `json:"latest_version"`
	Source         string   `json:"source"`
	Release        *Release `json:"release"`
}

// Checker resolves targets against an ordered list of sources. Sources that
// support a target are asked in order; a failure or a missing release falls
// through to the next one, and the first release returned wins.
type Checker struct {
	sources     []Source
	concurrency int
	log         *zap.Logger
}

// NewChecker builds a checker; nil sources are ignored.
func NewChecker(sources ...Source) *Checker {
	filtered := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &Checker{sources: filtered, concurrency: defaultConcurrency, log: logger.WithModule("updates")}
}

// Check returns the targets that have a newer release, sorted by kind then id.
// Lookup failures are logged and treated as "no update".
func (c *Checker) Check(ctx context.Context, targets []Target) []Update {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		found   []Update
		workers = make(chan struct{}, c.concurrency)
	)

	for _, target := range targets {
		sources := c.sourcesFor(target)
		if len(sources) == 0 {
			continue
		}

		wg.Add(1)
		go func(target Target, sources []Source) {
			defer wg.Done()
			workers <- struct{}{}
			defer func() { <-workers }()

			update, ok := c.checkOne(ctx, target, sources)
			if !ok {
				return
			}
			mu.Lock()
			found = append(found, update)
			mu.Unlock()
		}(target, sources)
	}
	wg.Wait()

	sort.Slice(found, func(i, j int) bool {
		if found[i].Kind != found[j].Kind {
			return found[i].Kind < found[j].Kind
		}
		return found[i].ID < found[j].ID
	})
	return found
}

// Latest resolves a single target and reports whether it is newer than the
// current version.
func (c *Checker) Latest(ctx context.Context, target Target) (*Update, bool) {
	update, ok := c.checkOne(ctx, target, c.sourcesFor(target))
	if !ok {
		return nil, false
	}
	return &update, true
}

func (c *Checker) checkOne(ctx context.Context, target Target, sources []Source) (Update, bool) {
	source, release := c.resolve(ctx, target, sources)
	if release == nil || !extensions.IsNewer(release.Version, target.CurrentVersion) {
		return Update{}, false
	}
	return Update{
		Kind:           target.Kind,
		ID:             target.ID,
		Name:           target.Name,
		CurrentVersion: target.CurrentVersion,
		LatestVersion:  release.Version,
		Source:         source.Name(),
		Release:        release,
	}, true
}

func (c *Checker) resolve(ctx context.Context, target Target, sources []Source) (Source, *Release) {
	for _, source := range sources {
		release, err := source.Latest(ctx, target)
		switch {
		case errors.Is(err, ErrNoRelease):
			metrics.UpdateChecks.WithLabelValues(source.Name(), "none").Inc()
			continue
		case err != nil:
			metrics.UpdateChecks.WithLabelValues(source.Name(), "failure").Inc()
			c.log.Warn("update lookup failed",
				zap.String("source", source.Name()),
				zap.String("kind", target.Kind),
				zap.String("id", target.ID),
				zap.Error(err))
			continue
		case release == nil:
			continue
		}
		metrics.UpdateChecks.WithLabelValues(source.Name(), "success").Inc()
		return source, release
	}
	return nil, nil
}

func (c *Checker) sourcesFor(target Target) []Source {
	var out []Source
	for _, source := range c.sources {
		if source.Supports(target) {
			out = append(out, source)
		}
	}
	return out
}
