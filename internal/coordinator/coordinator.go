// Package coordinator owns the refresh cycle: it fetches the current data
// window, runs aggregation, and publishes the result as an atomically
// replaced snapshot. Consumers always observe either the fully previous or
// the fully current snapshot; a failed refresh leaves the previous one in
// place.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Philra94/homeassistant-energy-charts/internal/aggregate"
	"github.com/Philra94/homeassistant-energy-charts/internal/energycharts"
)

// ErrUpdateFailed is the single failure signal surfaced to the scheduler.
// The scheduler decides retry cadence; no retrying happens here beyond what
// the fetch client already did.
var ErrUpdateFailed = errors.New("coordinator: update failed")

// State of the refresh cycle.
type State int32

const (
	StateUninitialized State = iota
	StateRefreshing
	StateReady
	// StateReadyStale means the last refresh failed but an earlier snapshot
	// is still being served.
	StateReadyStale
	// StateFailedInitial means the very first refresh failed and there is no
	// snapshot to fall back to. Setup must abort visibly in this case.
	StateFailedInitial
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRefreshing:
		return "refreshing"
	case StateReady:
		return "ready"
	case StateReadyStale:
		return "ready-stale"
	case StateFailedInitial:
		return "failed-initial"
	default:
		return "unknown"
	}
}

// Snapshot is one complete, internally consistent poll result.
type Snapshot struct {
	Timestamp  time.Time                           `json:"timestamp"`
	Raw        energycharts.ApiSnapshot            `json:"-"`
	Sources    map[string]aggregate.SourceRecord   `json:"sources"`
	Aggregated aggregate.Totals                    `json:"aggregated"`
	Categories aggregate.Categories                `json:"categories"`
	History    map[string][]energycharts.DataPoint `json:"history,omitempty"`
	Forecasts  map[string][]energycharts.DataPoint `json:"forecasts,omitempty"`
}

// Fetcher is the fetch-client capability the coordinator needs.
type Fetcher interface {
	FetchDay(ctx context.Context) (energycharts.ApiSnapshot, error)
	FetchWeek(ctx context.Context) (energycharts.ApiSnapshot, error)
	FetchMonth(ctx context.Context) (energycharts.ApiSnapshot, error)
}

// Options configure what a refresh attaches beyond the aggregated data.
type Options struct {
	// HistoricalRange is one of "none", "day", "week", "month". Anything but
	// "none" attaches per-source history lists to each snapshot.
	HistoricalRange string
	// EnableForecasts attaches the (timestamp, value) lists of
	// forecast-marked series. They stay excluded from aggregation.
	EnableForecasts bool
}

type metrics struct {
	refreshes   *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energycharts_refreshes_total",
				Help: "Refresh cycles by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "energycharts_refresh_duration_seconds",
				Help:    "Duration of refresh cycles",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "energycharts_last_success_timestamp_seconds",
				Help: "Unix time of the last successful refresh",
			},
		),
	}
	reg.MustRegister(m.refreshes, m.duration, m.lastSuccess)
	return m
}

// Coordinator runs one refresh at a time and publishes snapshots.
type Coordinator struct {
	fetcher Fetcher
	opts    Options
	logger  *logrus.Logger
	metrics *metrics
	now     func() time.Time

	// mu serializes refresh cycles so a slow refresh never overlaps the
	// next tick.
	mu       sync.Mutex
	state    atomic.Int32
	snapshot atomic.Pointer[Snapshot]

	hooks []func()
}

// New creates a Coordinator. Metrics are registered on reg.
func New(fetcher Fetcher, opts Options, logger *logrus.Logger, reg prometheus.Registerer) *Coordinator {
	return &Coordinator{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		metrics: newMetrics(reg),
		now:     time.Now,
	}
}

// OnPublish registers fn to run after each snapshot publication. Register
// before the first refresh; hooks are not guarded against concurrent
// registration.
func (c *Coordinator) OnPublish(fn func()) {
	c.hooks = append(c.hooks, fn)
}

// Snapshot returns the last published snapshot. The bool is false before
// the first successful refresh.
func (c *Coordinator) Snapshot() (*Snapshot, bool) {
	snap := c.snapshot.Load()
	return snap, snap != nil
}

// State returns the current refresh state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Refresh runs one full cycle: fetch the day window, aggregate, optionally
// fetch history, publish. On failure the previous snapshot stays published
// and the error wraps ErrUpdateFailed. A first-ever failure leaves the
// coordinator in StateFailedInitial and must abort setup.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Store(int32(StateRefreshing))
	start := time.Now()

	resp, err := c.fetcher.FetchDay(ctx)
	if err != nil {
		return c.fail(err)
	}

	result := aggregate.Aggregate(resp)
	snap := &Snapshot{
		Timestamp:  c.now(),
		Raw:        resp,
		Sources:    result.Sources,
		Aggregated: result.Totals,
		Categories: result.Categories,
	}

	if c.opts.HistoricalRange != "" && c.opts.HistoricalRange != "none" {
		snap.History = c.fetchHistory(ctx)
	}
	if c.opts.EnableForecasts {
		snap.Forecasts = collectForecasts(resp)
	}

	// A cancelled refresh publishes nothing, not even a partial snapshot.
	if err := ctx.Err(); err != nil {
		return c.fail(err)
	}

	c.snapshot.Store(snap)
	c.state.Store(int32(StateReady))
	c.metrics.refreshes.WithLabelValues("success").Inc()
	c.metrics.duration.Observe(time.Since(start).Seconds())
	c.metrics.lastSuccess.Set(float64(snap.Timestamp.Unix()))

	for _, hook := range c.hooks {
		hook()
	}

	c.logger.WithFields(logrus.Fields{
		"sources":          len(snap.Sources),
		"total_production": snap.Aggregated.TotalProduction,
		"renewable_share":  snap.Aggregated.RenewableShare,
	}).Info("Refresh complete")

	return nil
}

func (c *Coordinator) fail(cause error) error {
	c.metrics.refreshes.WithLabelValues("error").Inc()
	if c.snapshot.Load() != nil {
		c.state.Store(int32(StateReadyStale))
		c.logger.WithError(cause).Warn("Refresh failed, serving previous snapshot")
	} else {
		c.state.Store(int32(StateFailedInitial))
		c.logger.WithError(cause).Error("Initial refresh failed")
	}
	return fmt.Errorf("%w: %v", ErrUpdateFailed, cause)
}

// fetchHistory fetches the configured historical window and converts each
// series into (timestamp, value) pairs. A failure here is logged and leaves
// history empty; it never fails the refresh.
func (c *Coordinator) fetchHistory(ctx context.Context) map[string][]energycharts.DataPoint {
	var (
		resp energycharts.ApiSnapshot
		err  error
	)
	switch c.opts.HistoricalRange {
	case "day":
		resp, err = c.fetcher.FetchDay(ctx)
	case "week":
		resp, err = c.fetcher.FetchWeek(ctx)
	case "month":
		resp, err = c.fetcher.FetchMonth(ctx)
	default:
		return nil
	}
	if err != nil {
		c.logger.WithError(err).Warn("Failed to fetch historical data")
		return nil
	}

	history := make(map[string][]energycharts.DataPoint, len(resp.Series))
	for _, series := range resp.Series {
		history[series.Key()] = series.DataPoints()
	}
	return history
}

func collectForecasts(resp energycharts.ApiSnapshot) map[string][]energycharts.DataPoint {
	forecasts := make(map[string][]energycharts.DataPoint)
	for _, series := range resp.Series {
		if series.IsForecast() {
			forecasts[series.Key()] = series.DataPoints()
		}
	}
	return forecasts
}
