package history

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pricewatch/internal/fetcher"
)

func price(v float64) *float64 {
	return &v
}

// series builds n daily points ending at 2024-03-01, newest last, with
// sell_price_min equal to the day index + 1.
func series(n int) []Point {
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]Point, n)
	for i := 0; i < n; i++ {
		at := end.AddDate(0, 0, i-n+1)
		points[i] = Point{
			Date:         at.Format("2006-01-02T15:04:05.000Z"),
			SellPriceMin: price(float64(i + 1)),
		}
	}
	return points
}

type stubSeries struct {
	points []Point
	err    error
}

func (s stubSeries) Series(ctx context.Context, itemID int) ([]Point, error) {
	return s.points, s.err
}

func TestLatest_WindowSize(t *testing.T) {
	for _, n := range []int{0, 1, 29, 30, 31, 90} {
		t.Run(fmt.Sprintf("points_%d", n), func(t *testing.T) {
			got, err := Latest(series(n), DefaultWindow)
			if err != nil {
				t.Fatalf("Latest() returned unexpected error: %v", err)
			}
			want := min(n, DefaultWindow)
			if len(got) != want {
				t.Errorf("len(Latest()) = %d, want %d", len(got), want)
			}
		})
	}
}

func TestLatest_NewestFirst(t *testing.T) {
	got, err := Latest(series(40), DefaultWindow)
	if err != nil {
		t.Fatalf("Latest() returned unexpected error: %v", err)
	}
	if *got[0].SellPriceMin != 40 {
		t.Errorf("first point = %v, want newest (40)", *got[0].SellPriceMin)
	}
	if *got[len(got)-1].SellPriceMin != 11 {
		t.Errorf("last point = %v, want 11", *got[len(got)-1].SellPriceMin)
	}
}

func TestLatest_TimezoneNormalized(t *testing.T) {
	points := []Point{
		{Date: "2024-01-15T12:00:00.000+02:00", SellPriceMin: price(1)}, // 10:00Z
		{Date: "2024-01-15T11:00:00.000Z", SellPriceMin: price(2)},
	}

	got, err := Latest(points, 1)
	if err != nil {
		t.Fatalf("Latest() returned unexpected error: %v", err)
	}
	if *got[0].SellPriceMin != 2 {
		t.Errorf("Latest() kept %v, want the 11:00Z point", *got[0].SellPriceMin)
	}
}

func TestLatest_InvalidTimestamp(t *testing.T) {
	_, err := Latest([]Point{{Date: "yesterday"}}, DefaultWindow)
	if fetcher.TypeOf(err) != fetcher.ErrorTypeParse {
		t.Errorf("Latest() error = %v, want parse error", err)
	}
}

func TestMeanSellPrice(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   int64
		wantOK bool
	}{
		{"empty", nil, 0, false},
		{"no field", []Point{{Date: "x"}, {Date: "y"}}, 0, false},
		{"skips missing", []Point{{SellPriceMin: price(100)}, {}, {SellPriceMin: price(200)}}, 150, true},
		{"half to even down", []Point{{SellPriceMin: price(2)}, {SellPriceMin: price(3)}}, 2, true},
		{"half to even up", []Point{{SellPriceMin: price(3)}, {SellPriceMin: price(4)}}, 4, true},
		{"rounds nearest", []Point{{SellPriceMin: price(1)}, {SellPriceMin: price(1)}, {SellPriceMin: price(2)}}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MeanSellPrice(tt.points)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("MeanSellPrice() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAverager_Average(t *testing.T) {
	// 40 points valued 1..40; the 30 newest are 11..40, mean 25.5 -> 26
	a := NewAverager(stubSeries{points: series(40)}, 0, nil)
	if a.Window() != DefaultWindow {
		t.Fatalf("Window() = %d, want %d", a.Window(), DefaultWindow)
	}

	got, err := a.Average(context.Background(), 19721)
	if err != nil {
		t.Fatalf("Average() returned unexpected error: %v", err)
	}
	if got != 26 {
		t.Errorf("Average() = %d, want 26", got)
	}
}

func TestAverager_EmptySeriesIsZero(t *testing.T) {
	a := NewAverager(stubSeries{points: []Point{}}, DefaultWindow, nil)
	got, err := a.Average(context.Background(), 19721)
	if err != nil || got != 0 {
		t.Errorf("Average() = (%d, %v), want (0, nil)", got, err)
	}
}

func TestAverager_FetchError(t *testing.T) {
	want := fetcher.NewServerError(502).For("19721")
	a := NewAverager(stubSeries{err: want}, DefaultWindow, nil)
	if _, err := a.Average(context.Background(), 19721); !errors.Is(err, want) {
		t.Errorf("Average() error = %v, want %v", err, want)
	}
}

func TestAverager_ParseErrorTagged(t *testing.T) {
	a := NewAverager(stubSeries{points: []Point{{Date: "bad"}}}, DefaultWindow, nil)
	_, err := a.Average(context.Background(), 24283)

	var fe *fetcher.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Average() error = %v, want *FetchError", err)
	}
	if fe.Identifier != "24283" {
		t.Errorf("Identifier = %q, want 24283", fe.Identifier)
	}
}

func TestClient_Series(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history" {
			t.Errorf("path = %q, want /history", r.URL.Path)
		}
		if got := r.URL.Query().Get("itemID"); got != "19721" {
			t.Errorf("itemID = %q, want 19721", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[
			{"date": "2024-01-14T00:00:00.000Z", "sell_price_min": 120, "buy_price_max": 100},
			{"date": "2024-01-15T00:00:00.000Z", "buy_price_max": 101}
		]`))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := NewClient(server.URL, fetcher.ClientOptions{})
	points, err := client.Series(context.Background(), 19721)
	if err != nil {
		t.Fatalf("Series() returned unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len(Series()) = %d, want 2", len(points))
	}
	if points[0].SellPriceMin == nil || *points[0].SellPriceMin != 120 {
		t.Errorf("points[0].SellPriceMin = %v, want 120", points[0].SellPriceMin)
	}
	if points[1].SellPriceMin != nil {
		t.Errorf("points[1].SellPriceMin = %v, want nil", *points[1].SellPriceMin)
	}
}

func TestClient_Series_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, fetcher.ClientOptions{})
	_, err := client.Series(context.Background(), 1)
	if fetcher.TypeOf(err) != fetcher.ErrorTypeClient {
		t.Errorf("Series() error = %v, want client error", err)
	}
}

func TestClient_Series_MalformedResponse(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"html maintenance page", "text/html", `<html>maintenance</html>`},
		{"truncated json", "application/json", `[{"date": "2024-01-14T00:00:00.000Z", "sell_price_min": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			averager := NewAverager(NewClient(server.URL, fetcher.ClientOptions{}), DefaultWindow, nil)
			_, err := averager.Average(context.Background(), 19721)
			if got := fetcher.TypeOf(err); got != fetcher.ErrorTypeParse {
				t.Errorf("Average() error = %v (type %q), want parse", err, got)
			}
		})
	}
}
