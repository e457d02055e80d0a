// Package aggregator runs refresh cycles: fetch every identifier of a
// source, drop failures, order the rest by metric and publish the result.
package aggregator

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"pricewatch/internal/coordinator"
	"pricewatch/internal/fetcher"
	"pricewatch/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrRefreshInProgress is returned when Refresh is called while a cycle is
// already running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Source yields the fetchers for one refresh cycle. Fixed identifier lists
// use StaticSource; snapshot-based services build the list per cycle.
type Source interface {
	Fetchers(ctx context.Context) ([]fetcher.Fetcher, error)
}

// StaticSource is a fixed list of fetchers
type StaticSource []fetcher.Fetcher

// Fetchers implements Source
func (s StaticSource) Fetchers(ctx context.Context) ([]fetcher.Fetcher, error) {
	return s, nil
}

// Phase is the position of an aggregator within a refresh cycle
type Phase int32

const (
	// PhaseIdle means no cycle is running
	PhaseIdle Phase = iota
	// PhaseFetching means fetchers are running
	PhaseFetching
	// PhaseNormalizing means results are being turned into rows
	PhaseNormalizing
	// PhaseSorting means rows are being ordered
	PhaseSorting
	// PhasePublished means the result set has just been stored
	PhasePublished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseNormalizing:
		return "normalizing"
	case PhaseSorting:
		return "sorting"
	case PhasePublished:
		return "published"
	default:
		return "unknown"
	}
}

// Params configures an Aggregator
type Params struct {
	Board       string
	Source      Source
	Coordinator *coordinator.Coordinator
	Logger      logrus.FieldLogger
	Metrics     *metrics.Recorder
	// Now defaults to time.Now
	Now func() time.Time
}

// Aggregator owns the refresh cycle for one board
type Aggregator struct {
	p Params

	running sync.Mutex
	phase   atomic.Int32
	latest  atomic.Pointer[ResultSet]
}

// New creates an Aggregator
func New(p Params) *Aggregator {
	if p.Coordinator == nil {
		p.Coordinator = coordinator.New(coordinator.DefaultConcurrency)
	}
	if p.Logger == nil {
		p.Logger = logrus.StandardLogger()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Aggregator{p: p}
}

// Board returns the board name
func (a *Aggregator) Board() string {
	return a.p.Board
}

// Phase reports the current cycle phase
func (a *Aggregator) Phase() Phase {
	return Phase(a.phase.Load())
}

// Latest returns the most recently published result set, or nil.
func (a *Aggregator) Latest() *ResultSet {
	return a.latest.Load()
}

// LastRefreshed returns when the latest result set was published, or the
// zero time.
func (a *Aggregator) LastRefreshed() time.Time {
	if rs := a.latest.Load(); rs != nil {
		return rs.RefreshedAt
	}
	return time.Time{}
}

type candidate struct {
	row    Row
	metric float64
}

// Refresh runs one cycle and publishes its result set.
//
// Per-identifier failures are logged and dropped; a cycle in which every
// fetch fails publishes an empty result set. The only errors returned are
// ErrRefreshInProgress and the context's error, in which case nothing is
// published.
func (a *Aggregator) Refresh(ctx context.Context, dir Direction) (*ResultSet, error) {
	if !a.running.TryLock() {
		a.p.Metrics.ObserveRefresh(a.p.Board, metrics.OutcomeRejected, 0)
		return nil, ErrRefreshInProgress
	}
	defer a.running.Unlock()
	defer a.enter(PhaseIdle, nil)

	if dir == "" {
		dir = Descending
	}

	start := a.p.Now()
	cycleID := uuid.NewString()
	log := a.p.Logger.WithFields(logrus.Fields{
		"board":    a.p.Board,
		"cycle_id": cycleID,
	})

	a.enter(PhaseFetching, log)
	results, failures := a.fetch(ctx, log)
	attempted := len(results) + len(failures)

	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("refresh cancelled, discarding partial results")
		a.p.Metrics.ObserveRefresh(a.p.Board, metrics.OutcomeCancelled, 0)
		return nil, err
	}

	a.enter(PhaseNormalizing, log)
	candidates := make([]candidate, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			errType := fetcher.TypeOf(r.Error)
			log.WithFields(logrus.Fields{
				"identifier": identifierOf(r),
				"key":        r.Key,
				"error_type": errType,
			}).WithError(r.Error).Warn("fetch failed, dropping identifier")
			a.p.Metrics.ObserveFetch(a.p.Board, string(errType))
			failures = append(failures, Failure{Key: r.Key, Type: string(errType)})
			continue
		}
		a.p.Metrics.ObserveFetch(a.p.Board, "")
		candidates = append(candidates, candidate{
			row: Row{
				ID:      r.Record.ID,
				Name:    r.Record.Name,
				Price:   r.Record.Price,
				Columns: r.Record.Columns,
			},
			metric: r.Record.Metric,
		})
	}

	a.enter(PhaseSorting, log)
	SortStable(candidates, dir, func(c candidate) float64 { return c.metric })

	rows := make([]Row, len(candidates))
	for i, c := range candidates {
		rows[i] = c.row
	}

	now := a.p.Now()
	rs := &ResultSet{
		Board:       a.p.Board,
		CycleID:     cycleID,
		Direction:   dir,
		RefreshedAt: now,
		Rows:        rows,
		Attempted:   attempted,
		Failures:    failures,
	}

	a.enter(PhasePublished, log)
	a.latest.Store(rs)

	took := now.Sub(start)
	a.p.Metrics.ObserveRefresh(a.p.Board, metrics.OutcomePublished, took)
	a.p.Metrics.ObservePublished(a.p.Board, len(rows), now)
	log.WithFields(logrus.Fields{
		"rows":     len(rows),
		"failed":   len(failures),
		"duration": took,
	}).Info("refresh published")

	return rs, nil
}

// fetch resolves the source and runs every fetcher. A source failure yields
// no results and a single failure entry, counted as one attempt.
func (a *Aggregator) fetch(ctx context.Context, log logrus.FieldLogger) ([]fetcher.Result, []Failure) {
	fetchers, err := a.p.Source.Fetchers(ctx)
	if err != nil {
		errType := fetcher.TypeOf(err)
		log.WithField("error_type", errType).WithError(err).Warn("source unavailable, publishing empty result set")
		a.p.Metrics.ObserveFetch(a.p.Board, string(errType))
		return nil, []Failure{{Key: "source:" + a.p.Board, Type: string(errType)}}
	}
	return a.p.Coordinator.Run(ctx, fetchers), nil
}

// identifierOf prefers the identifier carried by a FetchError and falls
// back to the fetcher key.
func identifierOf(r fetcher.Result) string {
	var fe *fetcher.FetchError
	if errors.As(r.Error, &fe) && fe.Identifier != "" {
		return fe.Identifier
	}
	return r.Key
}

func (a *Aggregator) enter(p Phase, log logrus.FieldLogger) {
	a.phase.Store(int32(p))
	if log != nil {
		log.WithField("phase", p.String()).Debug("refresh phase")
	}
}

// SortStable orders items by key in dir. Equal keys keep their input order.
func SortStable[T any](items []T, dir Direction, key func(T) float64) {
	slices.SortStableFunc(items, func(x, y T) int {
		c := cmp.Compare(key(x), key(y))
		if dir == Descending {
			return -c
		}
		return c
	})
}
