package history

import (
	"context"
	"errors"
	"math"
	"slices"
	"strconv"
	"time"

	"pricewatch/internal/fetcher"

	"github.com/sirupsen/logrus"
)

// DefaultWindow is the number of most recent points averaged.
const DefaultWindow = 30

// SeriesFetcher is implemented by Client.
type SeriesFetcher interface {
	Series(ctx context.Context, itemID int) ([]Point, error)
}

// Averager reduces an item's most recent history points to a mean
// minimum sell price.
type Averager struct {
	series SeriesFetcher
	window int
	logger logrus.FieldLogger
}

// NewAverager creates an Averager. A non-positive window means DefaultWindow.
func NewAverager(series SeriesFetcher, window int, logger logrus.FieldLogger) *Averager {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Averager{
		series: series,
		window: window,
		logger: logger,
	}
}

// Window returns the configured number of points.
func (a *Averager) Window() int {
	return a.window
}

// Average returns the rounded mean sell_price_min of the most recent points.
//
// A series without any sell_price_min values averages to 0. That is
// indistinguishable from a genuine zero average except through the debug log.
func (a *Averager) Average(ctx context.Context, itemID int) (int64, error) {
	points, err := a.series.Series(ctx, itemID)
	if err != nil {
		return 0, err
	}

	recent, err := Latest(points, a.window)
	if err != nil {
		var fe *fetcher.FetchError
		if errors.As(err, &fe) {
			fe.For(strconv.Itoa(itemID))
		}
		return 0, err
	}

	avg, ok := MeanSellPrice(recent)
	if !ok {
		a.logger.WithFields(logrus.Fields{
			"identifier": itemID,
			"points":     len(points),
		}).Debug("no sell_price_min in history window, using zero average")
	}
	return avg, nil
}

type datedPoint struct {
	at    time.Time
	point Point
}

// Latest parses every timestamp as a UTC instant, orders the points newest
// first and keeps at most n of them.
func Latest(points []Point, n int) ([]Point, error) {
	dated := make([]datedPoint, 0, len(points))
	for _, p := range points {
		at, err := time.Parse(time.RFC3339Nano, p.Date)
		if err != nil {
			return nil, fetcher.NewParseError("invalid history timestamp "+strconv.Quote(p.Date), err)
		}
		dated = append(dated, datedPoint{at: at.UTC(), point: p})
	}

	slices.SortStableFunc(dated, func(a, b datedPoint) int {
		return b.at.Compare(a.at)
	})

	if n >= 0 && len(dated) > n {
		dated = dated[:n]
	}

	out := make([]Point, len(dated))
	for i, d := range dated {
		out[i] = d.point
	}
	return out, nil
}

// MeanSellPrice averages the points that carry sell_price_min, rounding half
// to even. ok is false when no point carries the field.
func MeanSellPrice(points []Point) (avg int64, ok bool) {
	var sum float64
	var count int
	for _, p := range points {
		if p.SellPriceMin == nil {
			continue
		}
		sum += *p.SellPriceMin
		count++
	}
	if count == 0 {
		return 0, false
	}
	return int64(math.RoundToEven(sum / float64(count))), true
}
