package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/metrics"
	"github.com/yourorg/signal-dashboard/internal/model"
)

// DefaultSignalPeriod is the analysis window in days used when none is given
const DefaultSignalPeriod = 30

// MarketClient fetches analytics with the current session's bearer token.
// Every method returns (nil, nil) without sending anything when no session
// is present.
type MarketClient struct {
	baseClient
	session SessionSource
}

// NewMarketClient creates a new market data client reading tokens from session
func NewMarketClient(baseURL string, session SessionSource, logger *zap.Logger, opts ...Option) *MarketClient {
	return &MarketClient{
		baseClient: newBaseClient(baseURL, logger, opts),
		session:    session,
	}
}

// GetQuote fetches analytics for symbol, used verbatim
func (c *MarketClient) GetQuote(ctx context.Context, symbol, exchange string) (*model.StockAnalytics, error) {
	sess, ok := c.session.Get()
	if !ok {
		c.metrics.ObserveRequest(string(ResourceQuote), metrics.OutcomeSkipped, 0)
		return nil, nil
	}

	var analytics model.StockAnalytics
	err := c.fetch(ctx, ResourceQuote, sess.Token,
		"/api/stocks/ltp/"+url.PathEscape(symbol),
		"exchange="+url.QueryEscape(exchange),
		&analytics)
	if err != nil {
		return nil, err
	}
	return &analytics, nil
}

// GetWatchlist fetches analytics for several symbols in one request. The
// returned map is exactly what the backend sent.
func (c *MarketClient) GetWatchlist(ctx context.Context, symbols []string, exchange string) (model.Watchlist, error) {
	sess, ok := c.session.Get()
	if !ok {
		c.metrics.ObserveRequest(string(ResourceWatchlist), metrics.OutcomeSkipped, 0)
		return nil, nil
	}

	// Commas stay literal so the backend sees symbols=A,B.
	escaped := make([]string, len(symbols))
	for i, s := range symbols {
		escaped[i] = url.QueryEscape(s)
	}
	rawQuery := "symbols=" + strings.Join(escaped, ",") + "&exchange=" + url.QueryEscape(exchange)

	var response model.WatchlistResponse
	if err := c.fetch(ctx, ResourceWatchlist, sess.Token, "/api/stocks/watchlist", rawQuery, &response); err != nil {
		return nil, err
	}
	if response.Watchlist == nil {
		return model.Watchlist{}, nil
	}
	return response.Watchlist, nil
}

// Search looks up symbols matching query
func (c *MarketClient) Search(ctx context.Context, query string) (*model.SearchResult, error) {
	sess, ok := c.session.Get()
	if !ok {
		c.metrics.ObserveRequest(string(ResourceSearch), metrics.OutcomeSkipped, 0)
		return nil, nil
	}

	var result model.SearchResult
	if err := c.fetch(ctx, ResourceSearch, sess.Token, "/api/stocks/search", "q="+url.QueryEscape(query), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSignals fetches the signal report for symbol over period days
func (c *MarketClient) GetSignals(ctx context.Context, symbol, exchange string, period int) (*model.SignalReport, error) {
	sess, ok := c.session.Get()
	if !ok {
		c.metrics.ObserveRequest(string(ResourceSignals), metrics.OutcomeSkipped, 0)
		return nil, nil
	}
	if period <= 0 {
		period = DefaultSignalPeriod
	}

	var report model.SignalReport
	err := c.fetch(ctx, ResourceSignals, sess.Token,
		"/api/stocks/signals/"+url.PathEscape(symbol),
		"exchange="+url.QueryEscape(exchange)+"&period="+strconv.Itoa(period),
		&report)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *MarketClient) fetch(ctx context.Context, res Resource, token, path, rawQuery string, dest interface{}) error {
	status, body, err := c.send(ctx, request{
		endpoint: string(res),
		method:   http.MethodGet,
		path:     path,
		rawQuery: rawQuery,
		token:    token,
	})
	if err != nil {
		c.logger.Error("Backend request failed",
			zap.String("resource", string(res)),
			zap.String("path", path),
			zap.Error(err))
		return &FetchError{Resource: res, Kind: KindNetwork, Err: err}
	}

	if !isSuccess(status) {
		c.logger.Warn("Backend returned non-success status",
			zap.String("resource", string(res)),
			zap.String("path", path),
			zap.Int("status_code", status))
		return &FetchError{
			Resource: res,
			Kind:     KindStatus,
			Status:   status,
			Err:      fmt.Errorf("backend returned status code %d", status),
		}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		c.logger.Error("Failed to decode backend response",
			zap.String("resource", string(res)),
			zap.Error(err))
		return &FetchError{Resource: res, Kind: KindNetwork, Status: status, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}
