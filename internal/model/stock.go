package model

import (
	"github.com/shopspring/decimal"
)

// Recommendation values produced by the backend
const (
	RecommendationBuy  = "BUY"
	RecommendationSell = "SELL"
	RecommendationHold = "HOLD"
)

// StockAnalytics represents price, indicators and signals for one symbol
type StockAnalytics struct {
	Symbol       string          `json:"symbol"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Indicators   Indicators      `json:"indicators"`
	Signals      Signals         `json:"signals"`
}

// Indicators holds technical indicators. Each field may be absent on its own.
type Indicators struct {
	RSI14     *float64        `json:"rsi_14,omitempty"`
	SMA14     *float64        `json:"sma_14,omitempty"`
	SMA20     *float64        `json:"sma_20,omitempty"`
	MACD      *MACD           `json:"macd,omitempty"`
	Bollinger *BollingerBands `json:"bollinger_bands,omitempty"`
}

// MACD represents the MACD line, signal line and histogram
type MACD struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerBands represents the upper, middle and lower bands
type BollingerBands struct {
	Upper  float64 `json:"upper_band"`
	Middle float64 `json:"middle_band"`
	Lower  float64 `json:"lower_band"`
}

// Signals represents the backend's trading recommendation
type Signals struct {
	Recommendation string   `json:"recommendation"`
	BuySignals     []string `json:"buy_signals"`
	SellSignals    []string `json:"sell_signals"`
}

// WatchlistEntry is one symbol's row in a watchlist response
type WatchlistEntry struct {
	CurrentPrice   decimal.Decimal     `json:"current_price"`
	Indicators     WatchlistIndicators `json:"indicators"`
	Recommendation string              `json:"recommendation"`
	Status         string              `json:"status"`
	Message        string              `json:"message,omitempty"`
}

// WatchlistIndicators is the reduced indicator set of a watchlist entry
type WatchlistIndicators struct {
	RSI   *float64 `json:"rsi,omitempty"`
	SMA14 *float64 `json:"sma_14,omitempty"`
}

// Watchlist maps symbol to entry exactly as returned by the backend
type Watchlist map[string]WatchlistEntry

// WatchlistResponse is the envelope of the watchlist endpoint
type WatchlistResponse struct {
	Watchlist    Watchlist `json:"watchlist"`
	TotalSymbols int       `json:"total_symbols,omitempty"`
}

// StockMatch is a single search hit
type StockMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}

// SearchResult is the body of the search endpoint
type SearchResult struct {
	Query   string       `json:"query,omitempty"`
	Count   int          `json:"count"`
	Results []StockMatch `json:"results"`
}

// SignalReport is the body of the signals endpoint
type SignalReport struct {
	Symbol         string          `json:"symbol,omitempty"`
	AnalysisPeriod int             `json:"analysis_period"`
	DataPoints     int             `json:"data_points"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	Indicators     Indicators      `json:"indicators"`
	Signals        Signals         `json:"signals"`
}
