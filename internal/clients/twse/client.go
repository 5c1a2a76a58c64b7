// Package twse is the Taiwan Stock Exchange client: daily institutional
// investor flows (T86), the ISIN listing used to seed the universe, and
// quarterly income-statement rows for margin-trend scoring.
package twse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/universe"
)

// T86 row layout: code, name, then net-buy columns. Foreign total net is
// column 4, investment trust net is column 10, dealer total net is 11.
const (
	t86ColCode       = 0
	t86ColForeignNet = 4
	t86ColTrustNet   = 10
	t86ColDealerNet  = 11
)

// Client talks to the TWSE public endpoints.
type Client struct {
	client     *http.Client
	baseURL    string
	openAPIURL string
	isinURL    string
	log        zerolog.Logger
}

// NewClient creates a TWSE client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    "https://www.twse.com.tw",
		openAPIURL: "https://openapi.twse.com.tw",
		isinURL:    "https://isin.twse.com.tw/isin/C_public.jsp?strMode=2",
		log:        log.With().Str("client", "twse").Logger(),
	}
}

type t86Response struct {
	Stat string     `json:"stat"`
	Date string     `json:"date"`
	Data [][]string `json:"data"`
}

// GetFlow returns per-session institutional net buying for an exchange
// code over the trailing lookback calendar days, oldest first. Non-trading
// days are skipped; a day where the code is absent contributes nothing.
func (c *Client) GetFlow(code string, lookbackDays int) ([]domain.FlowRecord, error) {
	if lookbackDays <= 0 {
		lookbackDays = 5
	}

	var records []domain.FlowRecord
	day := time.Now()
	for i := 0; i < lookbackDays; i++ {
		rec, ok, err := c.flowForDate(code, day)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
		day = day.AddDate(0, 0, -1)
	}

	// Collected newest-first; scoring wants oldest-first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (c *Client) flowForDate(code string, day time.Time) (domain.FlowRecord, bool, error) {
	params := url.Values{}
	params.Add("response", "json")
	params.Add("date", day.Format("20060102"))
	params.Add("selectType", "ALL")

	body, err := c.get(c.baseURL + "/rwd/zh/fund/T86?" + params.Encode())
	if err != nil {
		return domain.FlowRecord{}, false, err
	}

	var result t86Response
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.FlowRecord{}, false, fmt.Errorf("failed to parse T86 response: %w", err)
	}
	if result.Stat != "OK" {
		// Weekend, holiday, or a date before data is published.
		return domain.FlowRecord{}, false, nil
	}

	for _, row := range result.Data {
		if len(row) <= t86ColDealerNet || strings.TrimSpace(row[t86ColCode]) != code {
			continue
		}
		return domain.FlowRecord{
			Date:       day.Truncate(24 * time.Hour),
			ForeignNet: parseNumber(row[t86ColForeignNet]),
			TrustNet:   parseNumber(row[t86ColTrustNet]),
			DealerNet:  parseNumber(row[t86ColDealerNet]),
		}, true, nil
	}
	return domain.FlowRecord{}, false, nil
}

var isinRowPattern = regexp.MustCompile(`<td[^>]*>([^<]+)</td>`)

// GetListing fetches the exchange's ISIN listing and extracts equity and
// ETF rows. The page intermixes warrants and bonds; only 4-digit codes
// (stocks) and 00-prefixed codes (ETFs) are kept.
func (c *Client) GetListing() ([]universe.Stock, error) {
	body, err := c.get(c.isinURL)
	if err != nil {
		return nil, err
	}

	var stocks []universe.Stock
	for _, match := range isinRowPattern.FindAllStringSubmatch(string(body), -1) {
		// Cell format: "2330　台積電" with a full-width space.
		fields := strings.Fields(strings.ReplaceAll(match[1], "　", " "))
		if len(fields) < 2 {
			continue
		}
		code, name := fields[0], fields[1]
		if !isListedCode(code) {
			continue
		}
		stocks = append(stocks, universe.Stock{
			Code:     code,
			Name:     name,
			Ticker:   code + ".TW",
			Market:   "TWSE",
			IsETF:    universe.IsETFCode(code),
			IsActive: true,
		})
	}

	c.log.Info().Int("count", len(stocks)).Msg("Fetched exchange listing")
	return stocks, nil
}

func isListedCode(code string) bool {
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	if len(code) == 4 {
		return true
	}
	// ETFs carry 5-6 digit codes starting with 00.
	return (len(code) == 5 || len(code) == 6) && strings.HasPrefix(code, "00")
}

// incomeStatementRow is one company's row in the quarterly income-statement
// open-data set. Keys are the endpoint's Chinese field names.
type incomeStatementRow struct {
	Code        string `json:"公司代號"`
	Year        string `json:"年度"`
	Quarter     string `json:"季別"`
	Revenue     string `json:"營業收入"`
	GrossProfit string `json:"營業毛利（毛損）"`
}

// GetQuarterlyFinancials returns gross profit and revenue per reported
// quarter for a company code, oldest first.
func (c *Client) GetQuarterlyFinancials(code string) ([]domain.QuarterlyFinancial, error) {
	body, err := c.get(c.openAPIURL + "/v1/opendata/t187ap06_L_ci")
	if err != nil {
		return nil, err
	}

	var rows []incomeStatementRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse income statement data: %w", err)
	}

	var financials []domain.QuarterlyFinancial
	for _, row := range rows {
		if strings.TrimSpace(row.Code) != code {
			continue
		}
		financials = append(financials, domain.QuarterlyFinancial{
			Quarter:     fmt.Sprintf("%sQ%s", strings.TrimSpace(row.Year), strings.TrimSpace(row.Quarter)),
			GrossProfit: parseNumber(row.GrossProfit),
			Revenue:     parseNumber(row.Revenue),
		})
	}

	sortByQuarter(financials)
	return financials, nil
}

func sortByQuarter(financials []domain.QuarterlyFinancial) {
	for i := 1; i < len(financials); i++ {
		for j := i; j > 0 && financials[j].Quarter < financials[j-1].Quarter; j-- {
			financials[j], financials[j-1] = financials[j-1], financials[j]
		}
	}
}

func (c *Client) get(reqURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TWSE returned status %d", resp.StatusCode)
	}
	return body, nil
}

// parseNumber reads TWSE's comma-grouped numerals; parentheses mark
// negatives in financial statements.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if negative {
		return -v
	}
	return v
}
