package prices

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"github.com/atharvakonge/crypto-academy/internal/config"
	"github.com/atharvakonge/crypto-academy/internal/logger"
)

const (
	_simplePriceURL = "/simple/price"
)

type coinQuote struct {
	USD    decimal.Decimal `json:"usd"`
	Change decimal.Decimal `json:"usd_24h_change"`
}

// {"bitcoin": {"usd": 50000, "usd_24h_change": 1.5}, ...}
type simplePriceResponse map[string]coinQuote

type coinGeckoError struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func (e *coinGeckoError) message() string {
	if e.Status.ErrorMessage != "" {
		return e.Status.ErrorMessage
	}
	return e.Error
}

// CoinGecko fetches spot prices for a fixed set of coins.
type CoinGecko struct {
	c       *resty.Client
	coins   map[string]string // coingecko id -> symbol
	ids     string
	limiter ratelimit.Limiter

	logger logger.Logger
}

func NewCoinGecko(cfg config.PricesConfig, logger logger.Logger) *CoinGecko {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.CoinGeckoURL).
		SetTimeout(cfg.Timeout)

	ids := make([]string, 0, len(cfg.Coins))
	for id := range cfg.Coins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &CoinGecko{
		c:       client,
		coins:   cfg.Coins,
		ids:     strings.Join(ids, ","),
		limiter: ratelimit.New(cfg.RequestsPerMinute, ratelimit.Per(time.Minute)),
		logger:  logger,
	}
}

// Close releases idle connections.
func (g *CoinGecko) Close() error {
	return g.c.Close()
}

// curl "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin,ethereum&vs_currencies=usd&include_24hr_change=true"
func (g *CoinGecko) Fetch(ctx context.Context) ([]Quote, error) {
	g.limiter.Take()

	result := simplePriceResponse{}
	req := g.c.R().
		SetQueryParams(map[string]string{
			"ids":                 g.ids,
			"vs_currencies":       "usd",
			"include_24hr_change": "true",
		}).
		SetResult(&result).
		SetError(&coinGeckoError{}).
		SetContext(ctx)

	resp, err := req.Get(_simplePriceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: can't send request for prices", err)
	}
	defer resp.Body.Close()

	g.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	if resp.IsError() {
		if e, ok := resp.Error().(*coinGeckoError); ok && e.message() != "" {
			return nil, fmt.Errorf("%s: coingecko request error", e.message())
		}
		return nil, fmt.Errorf("coingecko request error: %s", resp.Status())
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("coingecko unexpected request error: %s", resp.Status())
	}

	quotes := make([]Quote, 0, len(g.coins))
	for id, symbol := range g.coins {
		q, ok := result[id]
		if !ok {
			return nil, fmt.Errorf("coingecko response missing %s", id)
		}
		if !q.USD.IsPositive() {
			return nil, fmt.Errorf("coingecko returned non-positive price for %s: %s", id, q.USD)
		}
		quotes = append(quotes, Quote{
			Symbol:    symbol,
			Price:     q.USD,
			Change24h: q.Change.Round(8),
		})
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })

	return quotes, nil
}
