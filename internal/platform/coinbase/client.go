package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spikebot/internal/crypto"
	"github.com/alanyoungcy/spikebot/internal/domain"
)

const (
	// DefaultBaseURL is the Coinbase v2 REST root.
	DefaultBaseURL = "https://api.coinbase.com"
	apiVersion     = "2021-06-01"
	maxPages       = 50
)

// Compile-time interface checks.
var (
	_ domain.PriceSource   = (*Client)(nil)
	_ domain.SpotSource    = (*Client)(nil)
	_ domain.AccountSource = (*Client)(nil)
)

// Client is the REST client for the Coinbase v2 API.
type Client struct {
	baseURL    string
	fiat       string
	auth       *crypto.HMACAuth
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a Coinbase client. Historic prices are quoted in fiat.
// auth may be nil, in which case only public endpoints work.
func NewClient(baseURL, fiat string, auth *crypto.HMACAuth) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		fiat:    strings.ToUpper(fiat),
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// PriceHistory returns the symbol's prices over period, oldest first.
func (c *Client) PriceHistory(ctx context.Context, symbol string, period domain.Period) (domain.PriceSeries, error) {
	path := fmt.Sprintf("/v2/prices/%s/historic?%s",
		pair(symbol, c.fiat),
		url.Values{"period": {period.String()}}.Encode(),
	)

	var data struct {
		Prices []HistoricPrice `json:"prices"`
	}
	if _, err := c.get(ctx, path, &data); err != nil {
		return nil, fmt.Errorf("coinbase: historic %s/%s: %w", symbol, period, err)
	}

	series := make(domain.PriceSeries, 0, len(data.Prices))
	for _, p := range data.Prices {
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("coinbase: historic %s: bad price %q: %w", symbol, p.Price, domain.ErrDataUnavailable)
		}
		ts, err := time.Parse(time.RFC3339, p.Time)
		if err != nil {
			return nil, fmt.Errorf("coinbase: historic %s: bad time %q: %w", symbol, p.Time, domain.ErrDataUnavailable)
		}
		series = append(series, domain.PricePoint{Time: ts, Price: price})
	}
	// The API returns newest first.
	sort.SliceStable(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	return series, nil
}

// SpotPrice returns the current price of one symbol in fiat.
func (c *Client) SpotPrice(ctx context.Context, symbol, fiat string) (float64, error) {
	return c.spot(ctx, symbol, fiat, "")
}

// HistoricRate returns the spot price of symbol in fiat on the day of at.
func (c *Client) HistoricRate(ctx context.Context, symbol, fiat string, at time.Time) (float64, error) {
	return c.spot(ctx, symbol, fiat, at.UTC().Format("2006-01-02"))
}

func (c *Client) spot(ctx context.Context, symbol, fiat, date string) (float64, error) {
	path := fmt.Sprintf("/v2/prices/%s/spot", pair(symbol, fiat))
	if date != "" {
		path += "?" + url.Values{"date": {date}}.Encode()
	}

	var data SpotPrice
	if _, err := c.get(ctx, path, &data); err != nil {
		return 0, fmt.Errorf("coinbase: spot %s: %w", pair(symbol, fiat), err)
	}
	amount, err := strconv.ParseFloat(data.Amount, 64)
	if err != nil {
		return 0, fmt.Errorf("coinbase: spot %s: bad amount %q: %w", pair(symbol, fiat), data.Amount, domain.ErrDataUnavailable)
	}
	return amount, nil
}

// Balance returns the wallet balance held in coin.
func (c *Client) Balance(ctx context.Context, coin string) (decimal.Decimal, error) {
	var acc Account
	if _, err := c.get(ctx, "/v2/accounts/"+url.PathEscape(strings.ToUpper(coin)), &acc); err != nil {
		return decimal.Zero, fmt.Errorf("coinbase: account %s: %w", coin, err)
	}
	bal, err := decimal.NewFromString(acc.Balance.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coinbase: account %s: bad balance %q: %w", coin, acc.Balance.Amount, err)
	}
	return bal, nil
}

// Transactions returns every ledger entry of the coin's wallet. Amounts are
// positive for receipts and negative for sends and trades out.
func (c *Client) Transactions(ctx context.Context, coin string) ([]domain.Transaction, error) {
	path := "/v2/accounts/" + url.PathEscape(strings.ToUpper(coin)) + "/transactions?limit=100"

	var out []domain.Transaction
	for page := 0; path != "" && page < maxPages; page++ {
		var batch []Transaction
		next, err := c.get(ctx, path, &batch)
		if err != nil {
			return nil, fmt.Errorf("coinbase: transactions %s: %w", coin, err)
		}
		for _, tx := range batch {
			amount, err := decimal.NewFromString(tx.Amount.Amount)
			if err != nil {
				return nil, fmt.Errorf("coinbase: transaction %s: bad amount %q: %w", tx.ID, tx.Amount.Amount, err)
			}
			ts, err := time.Parse(time.RFC3339, tx.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("coinbase: transaction %s: bad time %q: %w", tx.ID, tx.CreatedAt, err)
			}
			out = append(out, domain.Transaction{Amount: amount, CreatedAt: ts})
		}
		path = next
	}
	if path != "" {
		return nil, fmt.Errorf("coinbase: transactions %s: %w: more than %d pages", coin, domain.ErrDataUnavailable, maxPages)
	}
	return out, nil
}

func pair(symbol, fiat string) string {
	return strings.ToUpper(symbol) + "-" + strings.ToUpper(fiat)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// get issues a GET, unwraps the {"data": ...} envelope into out and returns
// the next page path, if any.
func (c *Client) get(ctx context.Context, path string, out any) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return "", err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w: %w", domain.ErrDataUnavailable, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return "", fmt.Errorf("decode data: %w: %w", domain.ErrDataUnavailable, err)
	}
	if env.Pagination != nil {
		return env.Pagination.NextURI, nil
	}
	return "", nil
}

// doRequest builds, signs when credentials are set, sends, and reads an
// HTTP request against the Coinbase API.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("CB-VERSION", apiVersion)

	if c.auth != nil {
		c.auth.Sign(req.Header, method, path, nil, c.now())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %w", domain.ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrDataUnavailable, err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to domain errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w: %s", domain.ErrNotFound, domain.ErrDataUnavailable, apiErr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, apiErr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrRateLimited, domain.ErrDataUnavailable, apiErr)
	default:
		return fmt.Errorf("HTTP %d: %w: %s", statusCode, domain.ErrDataUnavailable, apiErr)
	}
}
