package sources

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sovereign-xds/sovereign/internal/common/config"
	"github.com/sovereign-xds/sovereign/internal/common/telemetry"
)

type namedSource struct {
	name   string
	source Source
}

// Aggregator maintains a process-wide, read-mostly aggregate of instance
// records drawn from all configured sources. The served view is swapped
// atomically on refresh; readers see either the old or the new whole view.
type Aggregator struct {
	sources  []namedSource
	mods     []Modification
	interval time.Duration

	view atomic.Pointer[[]Instance]

	// refreshMu serializes refreshes; lastGood holds each source's
	// contribution from its most recent successful fetch.
	refreshMu sync.Mutex
	lastGood  [][]Instance
}

// NewAggregator constructs the configured sources and modification pipeline.
// The view is empty until the first Refresh.
func NewAggregator(cfgs []config.SourceConfig, modNames []string, interval time.Duration) (*Aggregator, error) {
	srcs := make([]namedSource, 0, len(cfgs))
	for i, cfg := range cfgs {
		src, err := NewSource(cfg.Type, cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", i, cfg.Type, err)
		}
		srcs = append(srcs, namedSource{
			name:   fmt.Sprintf("%s[%d]", cfg.Type, i),
			source: src,
		})
	}
	mods, err := ResolveModifications(modNames)
	if err != nil {
		return nil, err
	}

	a := &Aggregator{
		sources:  srcs,
		mods:     mods,
		interval: interval,
		lastGood: make([][]Instance, len(srcs)),
	}
	empty := make([]Instance, 0)
	a.view.Store(&empty)
	return a, nil
}

// Refresh pulls every source once and atomically installs the new aggregate.
// A failing source keeps its previous contribution; a source that has never
// succeeded contributes nothing.
func (a *Aggregator) Refresh() {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()
	a.refreshLocked()
}

func (a *Aggregator) refreshLocked() {
	for i, src := range a.sources {
		instances, err := src.source.Get()
		if err != nil {
			slog.Error("Source refresh failed, keeping previous contribution",
				"source", src.name, "error", err)
			telemetry.MetricSourceFailures.WithLabelValues(src.name).Inc()
			continue
		}
		a.lastGood[i] = a.applyModifications(src.name, instances)
	}

	total := 0
	for _, contribution := range a.lastGood {
		total += len(contribution)
	}
	aggregate := make([]Instance, 0, total)
	for _, contribution := range a.lastGood {
		aggregate = append(aggregate, contribution...)
	}

	a.view.Store(&aggregate)
	telemetry.MetricSourceRefreshes.Inc()
	telemetry.MetricInstancesAggregated.Set(float64(len(aggregate)))
	slog.Debug("Installed aggregate view", "instances", len(aggregate))
}

func (a *Aggregator) applyModifications(sourceName string, instances []Instance) []Instance {
	out := make([]Instance, 0, len(instances))
instances:
	for _, instance := range instances {
		modified := Instance(maps.Clone(instance))
		for _, mod := range a.mods {
			next, err := mod(modified)
			if err != nil {
				slog.Error("Modification failed, dropping instance",
					"source", sourceName, "instance", modified.Name(), "error", err)
				continue instances
			}
			if next == nil {
				continue instances
			}
			modified = next
		}
		out = append(out, modified)
	}
	return out
}

// Run refreshes on a fixed schedule until the context is cancelled. A tick
// that arrives while a refresh is still in flight is skipped.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping source refresh loop, context cancelled")
			return
		case <-ticker.C:
			if !a.refreshMu.TryLock() {
				slog.Warn("Previous refresh still running, skipping tick")
				continue
			}
			a.refreshLocked()
			a.refreshMu.Unlock()
		}
	}
}

// All returns the current aggregate view. The returned slice must not be
// mutated.
func (a *Aggregator) All() []Instance {
	return *a.view.Load()
}

// Match returns the instances whose service_clusters intersect the given
// node value under glob rules ("*" on either side matches). Ordering is
// source-declaration order, then input order within a source.
func (a *Aggregator) Match(nodeValue string) []Instance {
	view := a.All()
	matched := make([]Instance, 0, len(view))
	for _, instance := range view {
		if instance.MatchesCluster(nodeValue) {
			matched = append(matched, instance)
		}
	}
	return matched
}
