package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/pkg/config"
	"github.com/wonny/aegis-screener/pkg/httputil"
	"github.com/wonny/aegis-screener/pkg/logger"
)

func fixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	routes := map[string]string{
		"/stocks/listing?page=1":      "listing_1.html",
		"/stocks/listing?page=2":      "listing_2.html",
		"/stocks/7974/quote":          "quote.html",
		"/stocks/7974/financials":     "financials.html",
		"/stocks/7974/history?days=0": "history.html",
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := routes[r.URL.RequestURI()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		data, err := os.ReadFile(filepath.Join("testdata", name))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	httpClient := httputil.New(config.ProviderConfig{
		Timeout:    5 * time.Second,
		RatePerSec: 1000,
		Burst:      10,
	}, logger.NewNop())
	return NewClient(httpClient, baseURL+"/", logger.NewNop())
}

func TestClient_FetchAllListings(t *testing.T) {
	srv := fixtureServer(t)
	c := newTestClient(t, srv.URL)

	rows, err := c.FetchAllListings(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "7974", rows[0].Code)
	assert.Equal(t, "Nintendo", rows[0].Name)
	assert.Equal(t, "Other Products", rows[0].Sector)
	assert.Equal(t, "10512300000000", rows[0].MarketCap.String())

	assert.Equal(t, "Sony Group", rows[1].Name, "whitespace collapsed")
	assert.False(t, rows[2].MarketCap.Present(), "dash is absent")
}

func TestClient_FetchAllListings_MaxPages(t *testing.T) {
	srv := fixtureServer(t)
	c := newTestClient(t, srv.URL)

	rows, err := c.FetchAllListings(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestClient_FetchQuote(t *testing.T) {
	srv := fixtureServer(t)
	c := newTestClient(t, srv.URL)

	q, err := c.FetchQuote(context.Background(), "7974")
	require.NoError(t, err)

	assert.Equal(t, "7974", q.Code)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), q.AsOf)
	assert.Equal(t, "18.5", q.Fields["P/E Ratio"])
	assert.Equal(t, "2.71%", q.Fields["Dividend Yield"])
	assert.Equal(t, "--", q.Fields["ROE"])
	assert.Len(t, q.Fields, 6)
}

func TestClient_FetchFinancials(t *testing.T) {
	srv := fixtureServer(t)
	c := newTestClient(t, srv.URL)

	table, err := c.FetchFinancials(context.Background(), "7974")
	require.NoError(t, err)

	assert.Equal(t, []int{2021, 2022, 2023}, table.Years, "forecast column dropped")
	require.Len(t, table.Rows, 4)
	assert.Equal(t, "Net Income Attributable to Parent", table.Rows[1].Label)
	assert.Equal(t, []string{"480,376", "477,691", "432,768"}, table.Rows[1].Values)
	assert.Equal(t, []string{"2,446,918", "2,662,384", "2,854,366"}, table.Rows[2].Values, "forecast cell dropped")
	assert.Equal(t, []string{"1", "", "-"}, table.Rows[3].Values, "empty and dash cells kept verbatim")
}

func TestClient_FetchPrices(t *testing.T) {
	srv := fixtureServer(t)
	c := newTestClient(t, srv.URL)

	bars, err := c.FetchPrices(context.Background(), "7974", 0)
	require.NoError(t, err)
	require.Len(t, bars, 3, "holiday and zero-close rows skipped")

	assert.True(t, bars[0].Date.Before(bars[2].Date), "oldest first")
	assert.Equal(t, "8420", bars[2].Close.String())
	assert.Equal(t, "1500000", bars[2].Volume.String())
}

func TestClient_NotFound(t *testing.T) {
	srv := fixtureServer(t)
	c := newTestClient(t, srv.URL)

	_, err := c.FetchQuote(context.Background(), "0000")
	require.Error(t, err)

	var statusErr *httputil.StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024/03/08", "2024-03-08", true},
		{"As of 2024-3-8", "2024-03-08", true},
		{"2024.12.31", "2024-12-31", true},
		{"2024/13/01", "", false},
		{"holiday", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}
