package mockapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourorg/signal-dashboard/internal/model"
)

type stockFixture struct {
	symbol    string
	name      string
	price     decimal.Decimal
	rsi       float64
	sma14     float64
	sma20     float64
	macd      model.MACD
	bollinger model.BollingerBands
}

func fixture(symbol, name, price string, rsi, sma14, sma20 float64, macd model.MACD, bands model.BollingerBands) stockFixture {
	return stockFixture{
		symbol:    symbol,
		name:      name,
		price:     decimal.RequireFromString(price),
		rsi:       rsi,
		sma14:     sma14,
		sma20:     sma20,
		macd:      macd,
		bollinger: bands,
	}
}

var defaultFixtures = []stockFixture{
	fixture("RELIANCE", "Reliance Industries Ltd", "2456.75", 62.4, 2431.2, 2418.6,
		model.MACD{MACD: 14.21, Signal: 9.87, Histogram: 4.34},
		model.BollingerBands{Upper: 2510.4, Middle: 2418.6, Lower: 2326.8}),
	fixture("TCS", "Tata Consultancy Services Ltd", "3892.10", 71.8, 3850.5, 3811.9,
		model.MACD{MACD: 22.4, Signal: 25.1, Histogram: -2.7},
		model.BollingerBands{Upper: 3880.2, Middle: 3811.9, Lower: 3743.6}),
	fixture("INFY", "Infosys Ltd", "1498.35", 27.6, 1532.8, 1547.3,
		model.MACD{MACD: -11.6, Signal: -14.2, Histogram: 2.6},
		model.BollingerBands{Upper: 1601.9, Middle: 1547.3, Lower: 1492.7}),
	fixture("HDFCBANK", "HDFC Bank Ltd", "1642.90", 48.9, 1639.4, 1651.2,
		model.MACD{MACD: -3.1, Signal: -2.2, Histogram: -0.9},
		model.BollingerBands{Upper: 1688.5, Middle: 1651.2, Lower: 1613.9}),
	fixture("ICICIBANK", "ICICI Bank Ltd", "1087.45", 55.3, 1079.8, 1072.1,
		model.MACD{MACD: 6.4, Signal: 5.9, Histogram: 0.5},
		model.BollingerBands{Upper: 1110.6, Middle: 1072.1, Lower: 1033.6}),
	fixture("TATAMOTORS", "Tata Motors Ltd", "968.20", 44.1, 975.6, 981.4,
		model.MACD{MACD: -4.8, Signal: -2.9, Histogram: -1.9},
		model.BollingerBands{Upper: 1012.3, Middle: 981.4, Lower: 950.5}),
}

// Market serves canned analytics for a fixed set of NSE symbols
type Market struct {
	exchange string
	stocks   map[string]stockFixture
}

// NewMarket creates a Market over the built-in fixtures
func NewMarket() *Market {
	m := &Market{exchange: "NSE", stocks: make(map[string]stockFixture, len(defaultFixtures))}
	for _, f := range defaultFixtures {
		m.stocks[f.symbol] = f
	}
	return m
}

// Quote returns analytics for symbol, or false when it is unknown
func (m *Market) Quote(symbol string) (*model.StockAnalytics, bool) {
	f, ok := m.stocks[strings.ToUpper(symbol)]
	if !ok {
		return nil, false
	}

	ind := f.indicators()
	return &model.StockAnalytics{
		Symbol:       f.symbol,
		CurrentPrice: f.price,
		Indicators:   ind,
		Signals:      signalsFor(f.price, ind),
	}, true
}

// Watchlist returns one entry per requested symbol; unknown symbols get an
// error entry rather than failing the whole request.
func (m *Market) Watchlist(symbols []string) *model.WatchlistResponse {
	out := make(model.Watchlist, len(symbols))
	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" {
			continue
		}

		f, ok := m.stocks[symbol]
		if !ok {
			out[symbol] = model.WatchlistEntry{
				Status:  "error",
				Message: fmt.Sprintf("No data available for %s", symbol),
			}
			continue
		}

		rsi, sma := f.rsi, f.sma14
		out[symbol] = model.WatchlistEntry{
			CurrentPrice:   f.price,
			Indicators:     model.WatchlistIndicators{RSI: &rsi, SMA14: &sma},
			Recommendation: signalsFor(f.price, f.indicators()).Recommendation,
			Status:         "success",
		}
	}
	return &model.WatchlistResponse{Watchlist: out, TotalSymbols: len(out)}
}

// Search matches query against symbols and company names
func (m *Market) Search(query string) *model.SearchResult {
	q := strings.ToUpper(strings.TrimSpace(query))
	results := []model.StockMatch{}
	if q != "" {
		for _, f := range m.stocks {
			if strings.Contains(f.symbol, q) || strings.Contains(strings.ToUpper(f.name), q) {
				results = append(results, model.StockMatch{Symbol: f.symbol, Name: f.name, Exchange: m.exchange})
			}
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })

	return &model.SearchResult{Query: query, Count: len(results), Results: results}
}

// Signals returns the signal report for symbol over period calendar days
func (m *Market) Signals(symbol string, period int) (*model.SignalReport, bool) {
	quote, ok := m.Quote(symbol)
	if !ok {
		return nil, false
	}
	return &model.SignalReport{
		Symbol:         quote.Symbol,
		AnalysisPeriod: period,
		DataPoints:     tradingDays(period),
		CurrentPrice:   quote.CurrentPrice,
		Indicators:     quote.Indicators,
		Signals:        quote.Signals,
	}, true
}

func (f stockFixture) indicators() model.Indicators {
	rsi, sma14, sma20 := f.rsi, f.sma14, f.sma20
	macd, bands := f.macd, f.bollinger
	return model.Indicators{
		RSI14:     &rsi,
		SMA14:     &sma14,
		SMA20:     &sma20,
		MACD:      &macd,
		Bollinger: &bands,
	}
}

func signalsFor(price decimal.Decimal, ind model.Indicators) model.Signals {
	buy, sell := []string{}, []string{}
	p := price.InexactFloat64()

	if ind.RSI14 != nil {
		switch {
		case *ind.RSI14 < 30:
			buy = append(buy, "RSI oversold")
		case *ind.RSI14 > 70:
			sell = append(sell, "RSI overbought")
		}
	}
	if ind.MACD != nil {
		if ind.MACD.MACD > ind.MACD.Signal {
			buy = append(buy, "MACD bullish crossover")
		} else if ind.MACD.MACD < ind.MACD.Signal {
			sell = append(sell, "MACD bearish crossover")
		}
	}
	if ind.SMA20 != nil {
		if p > *ind.SMA20 {
			buy = append(buy, "Price above SMA 20")
		} else if p < *ind.SMA20 {
			sell = append(sell, "Price below SMA 20")
		}
	}
	if ind.Bollinger != nil {
		if p < ind.Bollinger.Lower {
			buy = append(buy, "Price below lower Bollinger band")
		} else if p > ind.Bollinger.Upper {
			sell = append(sell, "Price above upper Bollinger band")
		}
	}

	rec := model.RecommendationHold
	switch {
	case len(buy) > len(sell):
		rec = model.RecommendationBuy
	case len(sell) > len(buy):
		rec = model.RecommendationSell
	}

	return model.Signals{Recommendation: rec, BuySignals: buy, SellSignals: sell}
}

func tradingDays(period int) int {
	return period - 2*(period/7)
}
