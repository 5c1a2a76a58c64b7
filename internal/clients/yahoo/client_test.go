package yahoo

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(zerolog.Nop())
	c.baseURL = srv.URL
	return c
}

func TestRangeFor(t *testing.T) {
	assert.Equal(t, "5d", rangeFor(3))
	assert.Equal(t, "1mo", rangeFor(21))
	assert.Equal(t, "6mo", rangeFor(120))
	assert.Equal(t, "1y", rangeFor(180))
	assert.Equal(t, "5y", rangeFor(2000))
}

func chartJSON(timestamps []int64, closes []float64) string {
	ts := make([]string, len(timestamps))
	for i, v := range timestamps {
		ts[i] = fmt.Sprintf("%d", v)
	}
	vals := make([]string, len(closes))
	for i, v := range closes {
		vals[i] = fmt.Sprintf("%g", v)
	}
	cols := strings.Join(vals, ",")
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],
		"indicators":{"quote":[{"open":[%s],"high":[%s],"low":[%s],"close":[%s],"volume":[%s]}]}}],
		"error":null}}`,
		strings.Join(ts, ","), cols, cols, cols, cols, cols)
}

func TestGetHistoryParsesBars(t *testing.T) {
	// Two sessions plus one zero-padded halted row.
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON(
			[]int64{1735689600, 1735776000, 1735862400}, // 2025-01-01..03 UTC
			[]float64{100, 0, 102},
		))
	})

	series, err := c.GetHistory("2330.TW", 30)
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, "2025-01-01", series[0].Date.Format("2006-01-02"))
	assert.Equal(t, 100.0, series[0].Close)
	assert.Equal(t, "2025-01-03", series[1].Date.Format("2006-01-02"))
	require.NoError(t, series.Validate())
}

func TestGetHistoryFallsBackToOTC(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "6488.TWO") {
			fmt.Fprint(w, chartJSON([]int64{1735689600}, []float64{500}))
			return
		}
		// The .TW lookup returns an empty result set.
		fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
	})

	series, err := c.GetHistory("6488.TW", 30)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 500.0, series[0].Close)
}

func TestGetHistoryChartError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found"}}}`)
	})

	_, err := c.GetHistory("9999.XX", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chart API error")
}

func TestGetInfoFieldFallbacks(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteResponse":{"result":[{
			"shortName":"TSMC",
			"marketCap":600000000000,
			"trailingAnnualDividendYield":0.021,
			"regularMarketPrice":980.0,
			"returnOnEquity":0.27
		}],"error":null}}`)
	})

	fund, err := c.GetInfo("2330.TW")
	require.NoError(t, err)

	// longName missing: shortName serves. currentPrice missing: the
	// regular market price serves. dividendYield missing: the trailing
	// annual yield serves.
	assert.Equal(t, "TSMC", fund.Name)
	require.NotNil(t, fund.CurrentPrice)
	assert.Equal(t, 980.0, *fund.CurrentPrice)
	require.NotNil(t, fund.DividendYield)
	assert.Equal(t, 0.021, *fund.DividendYield)
	require.NotNil(t, fund.ROE)

	// Unreported fields stay nil rather than zero.
	assert.Nil(t, fund.TrailingPE)
	assert.Nil(t, fund.Beta)
}

func TestGetInfoNoData(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteResponse":{"result":[],"error":null}}`)
	})

	_, err := c.GetInfo("9999.TW")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no quote data")
}
