// Package execquality reconciles a trade log against an independent market bar
// series to estimate slippage, participation rate, and VWAP/TWAP divergence.
package execquality

import (
	"sort"

	"tradesim/services/marketdata"
	"tradesim/services/sim"
)

// MinuteBar is one minute of aggregated market activity: the volume-weighted
// average price of every raw record mapping to that minute, and their summed
// volume.
type MinuteBar struct {
	Timestamp int64 // minute-truncated epoch ms UTC
	VWAP      float64
	Volume    float64
}

// MinuteBook is the per-minute market reference, sorted by timestamp.
type MinuteBook struct {
	Minutes []MinuteBar
}

// BuildMinuteBook truncates market timestamps to minute resolution and
// aggregates same-minute records by VWAP and summed volume. Zero-volume
// minutes keep the plain mean of their prices so the book stays dense.
func BuildMinuteBook(market *marketdata.Series) (*MinuteBook, error) {
	if err := market.Validate(1); err != nil {
		return nil, err
	}
	type bucket struct {
		weighted float64
		volume   float64
		priceSum float64
		count    int
	}
	buckets := make(map[int64]*bucket)
	for _, bar := range market.Bars {
		minute := marketdata.TruncateMinute(bar.Timestamp)
		b := buckets[minute]
		if b == nil {
			b = &bucket{}
			buckets[minute] = b
		}
		price := bar.Close.InexactFloat64()
		vol := bar.Volume.InexactFloat64()
		b.weighted += price * vol
		b.volume += vol
		b.priceSum += price
		b.count++
	}

	book := &MinuteBook{Minutes: make([]MinuteBar, 0, len(buckets))}
	for minute, b := range buckets {
		vwap := b.priceSum / float64(b.count)
		if b.volume > 0 {
			vwap = b.weighted / b.volume
		}
		book.Minutes = append(book.Minutes, MinuteBar{Timestamp: minute, VWAP: vwap, Volume: b.volume})
	}
	sort.Slice(book.Minutes, func(i, j int) bool { return book.Minutes[i].Timestamp < book.Minutes[j].Timestamp })
	return book, nil
}

// At returns the minute bar matching ts exactly, or the most recent prior
// minute (forward-fill). ok is false when no minute at or before ts exists.
func (b *MinuteBook) At(ts int64) (MinuteBar, bool) {
	minute := marketdata.TruncateMinute(ts)
	i := sort.Search(len(b.Minutes), func(i int) bool { return b.Minutes[i].Timestamp > minute })
	if i == 0 {
		return MinuteBar{}, false
	}
	return b.Minutes[i-1], true
}

// AnnotatedTrade is a trade event scored against the market reference. The
// pointer fields are nil when the trade could not be aligned to any market
// minute, or (for Participation) when the matched minute traded zero volume.
type AnnotatedTrade struct {
	sim.TradeEvent
	MarketVWAP    *float64
	Slippage      *float64 // (trade price - market VWAP) * shares
	Participation *float64 // trade shares / minute market volume
}

// Summary aggregates execution quality for one instrument. Nil fields follow
// the same undefined-denominator convention as the performance snapshots.
type Summary struct {
	Symbol                   string
	TotalTrades              int
	TotalSharesTraded        int64
	TotalMarketVolume        float64
	AverageParticipationRate *float64
	TotalSlippage            float64
	AverageSlippagePerShare  *float64
	MarketVWAP               float64 // mean of the per-minute VWAP series
	TradesTWAP               *float64
}

// Analyze aligns the trade log with the market series and scores each fill.
// Trades with no matching or prior market minute keep nil metrics and are
// excluded from the aggregate sums but retained in the annotated log.
func Analyze(symbol string, trades []sim.TradeEvent, market *marketdata.Series) ([]AnnotatedTrade, Summary, error) {
	book, err := BuildMinuteBook(market)
	if err != nil {
		return nil, Summary{}, err
	}

	summary := Summary{Symbol: symbol, TotalTrades: len(trades)}
	var (
		vwapSum      float64
		volumeSum    float64
		partSum      float64
		partCount    int
		notional     float64
		twapShares   int64
		slippageDone bool
	)
	for _, m := range book.Minutes {
		vwapSum += m.VWAP
		volumeSum += m.Volume
	}
	if len(book.Minutes) > 0 {
		summary.MarketVWAP = vwapSum / float64(len(book.Minutes))
	}
	summary.TotalMarketVolume = volumeSum

	annotated := make([]AnnotatedTrade, 0, len(trades))
	for _, t := range trades {
		a := AnnotatedTrade{TradeEvent: t}
		summary.TotalSharesTraded += t.Shares
		notional += t.Price.InexactFloat64() * float64(t.Shares)
		twapShares += t.Shares

		if m, ok := book.At(t.Timestamp); ok {
			vwap := m.VWAP
			a.MarketVWAP = &vwap
			slip := (t.Price.InexactFloat64() - vwap) * float64(t.Shares)
			a.Slippage = &slip
			summary.TotalSlippage += slip
			slippageDone = true
			if m.Volume > 0 {
				part := float64(t.Shares) / m.Volume
				a.Participation = &part
				partSum += part
				partCount++
			}
		}
		annotated = append(annotated, a)
	}

	if partCount > 0 {
		avg := partSum / float64(partCount)
		summary.AverageParticipationRate = &avg
	}
	if summary.TotalSharesTraded > 0 && slippageDone {
		avg := summary.TotalSlippage / float64(summary.TotalSharesTraded)
		summary.AverageSlippagePerShare = &avg
	}
	if twapShares > 0 {
		twap := notional / float64(twapShares)
		summary.TradesTWAP = &twap
	}
	return annotated, summary, nil
}
