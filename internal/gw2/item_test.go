package gw2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pricewatch/internal/coin"
	"pricewatch/internal/fetcher"
)

// newTradingPost serves /items/{id} and /commerce/prices/{id} from bodies.
// Paths without a body return 404.
func newTradingPost(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"text": "no such id"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

type stubAverager struct {
	avg int64
	err error
}

func (s stubAverager) Average(ctx context.Context, itemID int) (int64, error) {
	return s.avg, s.err
}

func (s stubAverager) Window() int {
	return 30
}

func TestItemFetcher_Key(t *testing.T) {
	f := NewItemFetcher(19721, NewClient("http://localhost", fetcher.ClientOptions{}), ItemOptions{})
	if got := f.Key(); got != "fetcher:gw2:19721" {
		t.Errorf("Key() = %q, want fetcher:gw2:19721", got)
	}
}

func TestItemFetcher_Fetch_Success(t *testing.T) {
	server := newTradingPost(t, map[string]string{
		"/items/19721":           `{"id": 19721, "name": "Glob of Ectoplasm", "description": "Salvage item"}`,
		"/commerce/prices/19721": `{"id": 19721, "buys": {"quantity": 10, "unit_price": 12345}, "sells": {"quantity": 5, "unit_price": 13000}}`,
	})

	f := NewItemFetcher(19721, NewClient(server.URL, fetcher.ClientOptions{}), ItemOptions{})
	record, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() returned unexpected error: %v", err)
	}

	if record.ID != "19721" {
		t.Errorf("ID = %q, want 19721", record.ID)
	}
	if record.Name != "Glob of Ectoplasm" {
		t.Errorf("Name = %q, want Glob of Ectoplasm", record.Name)
	}
	if record.Price != "1G 23S 45C" {
		t.Errorf("Price = %q, want 1G 23S 45C", record.Price)
	}
	if record.Metric != 12345 {
		t.Errorf("Metric = %v, want 12345", record.Metric)
	}
	if len(record.Columns) != 0 {
		t.Errorf("Columns = %v, want none", record.Columns)
	}
}

func TestItemFetcher_Fetch_Defaults(t *testing.T) {
	server := newTradingPost(t, map[string]string{
		"/items/1":           `{"id": 1}`,
		"/commerce/prices/1": `{"id": 1, "whitelisted": false}`,
	})

	f := NewItemFetcher(1, NewClient(server.URL, fetcher.ClientOptions{}), ItemOptions{
		Format:             coin.FormatNameDecimal,
		IncludeDescription: true,
	})
	record, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() returned unexpected error: %v", err)
	}

	if record.Name != "Unknown" {
		t.Errorf("Name = %q, want Unknown", record.Name)
	}
	if record.Price != "0.00" {
		t.Errorf("Price = %q, want 0.00", record.Price)
	}
	want := []fetcher.Column{{Name: "Description", Value: "No description"}}
	if len(record.Columns) != 1 || record.Columns[0] != want[0] {
		t.Errorf("Columns = %v, want %v", record.Columns, want)
	}
}

func TestItemFetcher_Fetch_WithHistory(t *testing.T) {
	server := newTradingPost(t, map[string]string{
		"/items/19976":           `{"id": 19976, "name": "Mystic Coin"}`,
		"/commerce/prices/19976": `{"id": 19976, "buys": {"quantity": 1, "unit_price": 10000}}`,
	})

	tests := []struct {
		name       string
		metric     Metric
		averager   stubAverager
		wantMetric float64
		wantAvg    string
		wantProfit string
	}{
		{"price metric", MetricPrice, stubAverager{avg: 10150}, 10000, "1G 1S 50C", "0G -1S -50C"},
		{"profit metric", MetricProfit, stubAverager{avg: 10150}, -150, "1G 1S 50C", "0G -1S -50C"},
		{"history failure", MetricProfit, stubAverager{err: errors.New("boom")}, 10000, "0G 0S 0C", "1G 0S 0C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewItemFetcher(19976, NewClient(server.URL, fetcher.ClientOptions{}), ItemOptions{
				Metric:   tt.metric,
				Averager: tt.averager,
			})
			record, err := f.Fetch(context.Background())
			if err != nil {
				t.Fatalf("Fetch() returned unexpected error: %v", err)
			}
			if record.Metric != tt.wantMetric {
				t.Errorf("Metric = %v, want %v", record.Metric, tt.wantMetric)
			}
			if len(record.Columns) != 2 {
				t.Fatalf("Columns = %v, want average and profit", record.Columns)
			}
			if record.Columns[0].Name != "Average Price (30 Entry Avg)" || record.Columns[0].Value != tt.wantAvg {
				t.Errorf("average column = %+v, want %q", record.Columns[0], tt.wantAvg)
			}
			if record.Columns[1].Name != "Profit" || record.Columns[1].Value != tt.wantProfit {
				t.Errorf("profit column = %+v, want %q", record.Columns[1], tt.wantProfit)
			}
		})
	}
}

func TestItemFetcher_Fetch_NotFound(t *testing.T) {
	server := newTradingPost(t, map[string]string{})

	f := NewItemFetcher(24283, NewClient(server.URL, fetcher.ClientOptions{}), ItemOptions{})
	_, err := f.Fetch(context.Background())

	var fe *fetcher.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch() error = %v, want *FetchError", err)
	}
	if fe.Type != fetcher.ErrorTypeClient || fe.StatusCode != http.StatusNotFound {
		t.Errorf("Fetch() error = %+v, want client 404", fe)
	}
	if fe.Identifier != "24283" {
		t.Errorf("Identifier = %q, want 24283", fe.Identifier)
	}
}

func TestItemFetcher_Fetch_PriceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/commerce/") {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": 19701, "name": "Orichalcum Ore"}`))
	}))
	defer server.Close()

	f := NewItemFetcher(19701, NewClient(server.URL, fetcher.ClientOptions{}), ItemOptions{})
	_, err := f.Fetch(context.Background())
	if fetcher.TypeOf(err) != fetcher.ErrorTypeServer {
		t.Errorf("Fetch() error = %v, want server error", err)
	}
}

func TestItemFetcher_Fetch_MalformedResponse(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"html maintenance page", "text/html", `<html>maintenance</html>`},
		{"truncated json", "application/json", `{"id": 1, "name": "X", "buys": {"unit_price": `},
		{"empty body", "application/json", ``},
		{"other item", "application/json", `{"id": 2, "name": "X", "buys": {"unit_price": 5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f := NewItemFetcher(1, NewClient(server.URL, fetcher.ClientOptions{}), ItemOptions{})
			record, err := f.Fetch(context.Background())
			if got := fetcher.TypeOf(err); got != fetcher.ErrorTypeParse {
				t.Fatalf("Fetch() = (%+v, %v), want parse error", record, err)
			}
			if record.Name != "" || record.Price != "" {
				t.Errorf("Fetch() returned placeholder record %+v", record)
			}
		})
	}
}

func TestItemFetcher_Fetch_JSONWithoutContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusOK)
		if strings.HasPrefix(r.URL.Path, "/commerce/") {
			w.Write([]byte(`{"id": 1, "buys": {"quantity": 1, "unit_price": 777}}`))
			return
		}
		w.Write([]byte(`{"id": 1, "name": "Glob of Ectoplasm"}`))
	}))
	defer server.Close()

	f := NewItemFetcher(1, NewClient(server.URL, fetcher.ClientOptions{}), ItemOptions{Format: coin.FormatNameDecimal})
	record, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() returned unexpected error: %v", err)
	}
	if record.Price != "7.77" || record.Name != "Glob of Ectoplasm" {
		t.Errorf("Fetch() = %+v, want Glob of Ectoplasm at 7.77", record)
	}
}

func TestItemFetcher_Fetch_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	f := NewItemFetcher(19721, NewClient(server.URL, fetcher.ClientOptions{}), ItemOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx); err == nil {
		t.Error("Fetch() expected error for cancelled context, got nil")
	}
}

func TestParseMetric(t *testing.T) {
	for _, in := range []string{"price", "PROFIT"} {
		if _, err := ParseMetric(in); err != nil {
			t.Errorf("ParseMetric(%q) returned %v", in, err)
		}
	}
	if _, err := ParseMetric("volume"); err == nil {
		t.Error("ParseMetric(volume) expected error")
	}
}

func ExampleItemFetcher_Key() {
	f := NewItemFetcher(19721, nil, ItemOptions{})
	fmt.Println(f.Key())
	// Output: fetcher:gw2:19721
}
