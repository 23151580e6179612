package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"trading-analyst/internal/market"
)

const maxBinancePage = 1000

var binanceIntervals = map[string]struct{}{
	"1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "8h": {}, "12h": {},
	"1d": {}, "3d": {}, "1w": {}, "1M": {},
}

// TradingView numeric tokens mapped onto exchange intervals.
var chartTokens = map[string]string{
	"1": "1m", "3": "3m", "5": "5m", "15": "15m", "30": "30m",
	"60": "1h", "120": "2h", "240": "4h", "360": "6h", "480": "8h", "720": "12h",
	"1D": "1d", "D": "1d", "1W": "1w", "W": "1w",
}

// Binance fetches spot klines.
type Binance struct {
	client    *binance.Client
	limiter   *rate.Limiter
	pageLimit int
	logger    zerolog.Logger
}

var _ Fetcher = (*Binance)(nil)

// NewBinance constructs a Binance fetcher.
func NewBinance(opts Options, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	page := opts.PageLimit
	if page <= 0 || page > maxBinancePage {
		page = maxBinancePage
	}

	client := binance.NewClient(opts.APIKey, opts.SecretKey)
	client.HTTPClient = &http.Client{Timeout: timeout}
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		client.BaseURL = base
	}

	return &Binance{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		pageLimit: page,
		logger:    logger.With().Str("component", "binance_fetcher").Logger(),
	}
}

// Symbol converts "BTC/USDT" or "btc-usdt" into "BTCUSDT".
func Symbol(symbol string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "", " ", "")
	return strings.ToUpper(r.Replace(symbol))
}

// Interval validates a timeframe and returns the exchange interval for it.
// Accepts exchange notation ("1h", "4H") and chart tokens ("60", "1D").
func Interval(timeframe string) (string, error) {
	tf := strings.TrimSpace(timeframe)
	if mapped, ok := chartTokens[strings.ToUpper(tf)]; ok {
		return mapped, nil
	}
	if tf != "1M" {
		tf = strings.ToLower(tf)
	}
	if _, ok := binanceIntervals[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, timeframe)
	}
	return tf, nil
}

// FetchCandles returns up to limit most recent candles in ascending order. Pages
// are requested backwards from now and paced by the rate limiter.
func (b *Binance) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	interval, err := Interval(timeframe)
	if err != nil {
		return nil, err
	}
	pair := Symbol(symbol)
	if pair == "" {
		return nil, fmt.Errorf("symbol required")
	}

	byOpen := make(map[int64]market.Candle, limit)
	var endTime int64
	for len(byOpen) < limit {
		size := b.pageLimit
		if remaining := limit - len(byOpen); remaining < size {
			size = remaining
		}

		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		svc := b.client.NewKlinesService().Symbol(pair).Interval(interval).Limit(size)
		if endTime > 0 {
			svc = svc.EndTime(endTime)
		}
		klines, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch klines %s %s: %w", pair, interval, err)
		}
		if len(klines) == 0 {
			break
		}

		added := 0
		oldest := klines[0].OpenTime
		for _, k := range klines {
			if k.OpenTime < oldest {
				oldest = k.OpenTime
			}
			if _, seen := byOpen[k.OpenTime]; seen {
				continue
			}
			candle, err := toCandle(k)
			if err != nil {
				return nil, fmt.Errorf("decode kline %d: %w", k.OpenTime, err)
			}
			byOpen[k.OpenTime] = candle
			added++
		}
		b.logger.Debug().
			Str("symbol", pair).
			Str("interval", interval).
			Int("page", len(klines)).
			Int("total", len(byOpen)).
			Msg("fetched kline page")

		if added == 0 || len(klines) < size {
			break
		}
		endTime = oldest - 1
	}

	candles := make([]market.Candle, 0, len(byOpen))
	for _, c := range byOpen {
		candles = append(candles, c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	b.logger.Info().Str("symbol", pair).Str("interval", interval).Int("candles", len(candles)).Msg("fetch complete")
	return candles, nil
}

func toCandle(k *binance.Kline) (market.Candle, error) {
	values := make([]decimal.Decimal, 5)
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return market.Candle{}, err
		}
		values[i] = v
	}
	return market.Candle{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
