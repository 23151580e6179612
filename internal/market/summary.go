package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary holds descriptive figures for a series.
type Summary struct {
	Count     int
	Start     time.Time
	End       time.Time
	First     decimal.Decimal
	Last      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	ChangePct decimal.Decimal
	AvgVolume decimal.Decimal
}

// Summary computes price range, change and mean volume over the whole series.
func (s *Series) Summary() Summary {
	if len(s.Candles) == 0 {
		return Summary{}
	}
	first := s.Candles[0]
	last := s.Candles[len(s.Candles)-1]
	sum := Summary{
		Count: len(s.Candles),
		Start: first.Time,
		End:   last.Time,
		First: first.Close,
		Last:  last.Close,
		High:  first.High,
		Low:   first.Low,
	}

	volume := decimal.Zero
	for _, c := range s.Candles {
		if c.High.GreaterThan(sum.High) {
			sum.High = c.High
		}
		if c.Low.LessThan(sum.Low) {
			sum.Low = c.Low
		}
		volume = volume.Add(c.Volume)
	}
	sum.AvgVolume = volume.Div(decimal.NewFromInt(int64(len(s.Candles))))
	if !first.Close.IsZero() {
		sum.ChangePct = last.Close.Sub(first.Close).Div(first.Close).Mul(decimal.NewFromInt(100))
	}
	return sum
}

// Closes returns the close prices of the given candles.
func Closes(candles []Candle) []decimal.Decimal {
	return pick(candles, func(c Candle) decimal.Decimal { return c.Close })
}

// Highs returns the high prices of the given candles.
func Highs(candles []Candle) []decimal.Decimal {
	return pick(candles, func(c Candle) decimal.Decimal { return c.High })
}

// Lows returns the low prices of the given candles.
func Lows(candles []Candle) []decimal.Decimal {
	return pick(candles, func(c Candle) decimal.Decimal { return c.Low })
}

// Volumes returns the volumes of the given candles.
func Volumes(candles []Candle) []decimal.Decimal {
	return pick(candles, func(c Candle) decimal.Decimal { return c.Volume })
}

func pick(candles []Candle, f func(Candle) decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = f(c)
	}
	return out
}
