// Package service holds the dashboard controller and its background refresher.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/client"
	"github.com/yourorg/signal-dashboard/internal/events"
	"github.com/yourorg/signal-dashboard/internal/logger"
	"github.com/yourorg/signal-dashboard/internal/model"
)

// Phase is the coarse dashboard state
type Phase string

const (
	PhaseLoggedOut Phase = "logged_out"
	PhaseLoggedIn  Phase = "logged_in"
)

const (
	loginSuccessMessage  = "Login successful!"
	logoutSuccessMessage = "Logged out successfully"
)

// LoginForm carries pre-fill values for the login view
type LoginForm struct {
	Username string `json:"username"`
	TOTP     string `json:"totp,omitempty"`
}

// State is a snapshot of everything the presentation layer shows
type State struct {
	Phase          Phase      `json:"phase"`
	Username       string     `json:"username,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	Loading        bool       `json:"loading"`
	Error          string     `json:"error,omitempty"`
	Success        string     `json:"success,omitempty"`
	LoginForm      LoginForm  `json:"login_form"`

	Symbol           string                `json:"symbol,omitempty"`
	Quote            *model.StockAnalytics `json:"quote,omitempty"`
	WatchlistSymbols []string              `json:"watchlist_symbols,omitempty"`
	Watchlist        model.Watchlist       `json:"watchlist,omitempty"`
	SearchResult     *model.SearchResult   `json:"search_result,omitempty"`
	Signals          *model.SignalReport   `json:"signals,omitempty"`
}

// SessionStore is the part of the session store the dashboard reads
type SessionStore interface {
	Get() (model.Session, bool)
	Restore(ctx context.Context) (bool, error)
}

// Authenticator creates and destroys sessions
type Authenticator interface {
	Login(ctx context.Context, username, pin, totp string) (*model.Session, error)
	Logout(ctx context.Context)
}

// MarketData fetches analytics for the current session
type MarketData interface {
	GetQuote(ctx context.Context, symbol, exchange string) (*model.StockAnalytics, error)
	GetWatchlist(ctx context.Context, symbols []string, exchange string) (model.Watchlist, error)
	Search(ctx context.Context, query string) (*model.SearchResult, error)
	GetSignals(ctx context.Context, symbol, exchange string, period int) (*model.SignalReport, error)
}

// DashboardOptions configures a Dashboard
type DashboardOptions struct {
	Exchange        string
	DefaultUsername string
	DefaultSymbol   string
	Watchlist       []string

	// TOTP pre-fill; no refresher runs when CodeFetcher is nil
	CodeFetcher  CodeFetcher
	TOTPInterval time.Duration

	Publisher events.Publisher
}

// Dashboard drives login, logout and data fetches and owns the transient UI
// flags. The session itself lives in the SessionStore.
type Dashboard struct {
	sessions  SessionStore
	auth      Authenticator
	market    MarketData
	publisher events.Publisher
	refresher *TOTPRefresher
	exchange  string
	logger    *zap.Logger

	mu       sync.Mutex
	state    State
	inFlight int
	// bumped on every login and logout; results from an older session are dropped
	generation uint64

	runCtx    context.Context
	runCancel context.CancelFunc
	task      *RefreshTask
}

// NewDashboard creates a Dashboard in the LoggedOut phase. Call Start to
// restore a persisted session and begin the TOTP refresher.
func NewDashboard(sessions SessionStore, auth Authenticator, market MarketData, opts DashboardOptions, log *zap.Logger) *Dashboard {
	d := &Dashboard{
		sessions:  sessions,
		auth:      auth,
		market:    market,
		publisher: opts.Publisher,
		exchange:  opts.Exchange,
		logger:    logger.OrNop(log),
	}
	if d.publisher == nil {
		d.publisher = events.NopPublisher{}
	}
	if d.exchange == "" {
		d.exchange = "NSE"
	}

	d.state = State{
		LoginForm:        LoginForm{Username: opts.DefaultUsername},
		Symbol:           NormalizeSymbol(opts.DefaultSymbol),
		WatchlistSymbols: normalizeSymbols(opts.Watchlist),
	}
	if opts.CodeFetcher != nil {
		d.refresher = NewTOTPRefresher(opts.CodeFetcher, opts.TOTPInterval, d.setTOTP, d.logger)
	}
	return d
}

// Start restores a persisted session, if any, and starts the TOTP refresher
// when the dashboard ends up logged out. An unreadable store leaves the
// dashboard logged out. Background work lives until Close.
func (d *Dashboard) Start(ctx context.Context) {
	d.mu.Lock()
	d.runCtx, d.runCancel = context.WithCancel(ctx)
	d.mu.Unlock()

	restored, err := d.sessions.Restore(ctx)
	if err != nil {
		d.logger.Warn("Failed to restore session", zap.Error(err))
	}
	if restored {
		d.logger.Info("Dashboard resumed from stored session")
		return
	}

	d.startRefresher()
}

// Close stops background work
func (d *Dashboard) Close() {
	d.stopRefresher()

	d.mu.Lock()
	if d.runCancel != nil {
		d.runCancel()
	}
	d.mu.Unlock()
}

// State returns a snapshot of the current state
func (d *Dashboard) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Login authenticates with the backend. An empty totp uses the latest
// pre-filled code.
func (d *Dashboard) Login(ctx context.Context, username, pin, totp string) State {
	d.mu.Lock()
	if totp == "" {
		totp = d.state.LoginForm.TOTP
	}
	if username == "" {
		username = d.state.LoginForm.Username
	}
	d.state.Error = ""
	d.state.Success = ""
	d.mu.Unlock()

	d.begin()
	sess, err := d.auth.Login(ctx, username, pin, totp)
	d.mu.Lock()
	d.inFlight--
	if err != nil {
		d.state.Error = userMessage(err, "Login failed")
	} else {
		d.generation++
		d.state.Error = ""
		d.state.Success = loginSuccessMessage
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Info("Dashboard login failed", zap.String("username", username))
		d.publish(ctx, events.Event{Type: events.TypeLoginFailed, Username: username, Detail: userMessage(err, "Login failed")})
		return d.State()
	}

	d.stopRefresher()
	d.publish(ctx, events.Event{Type: events.TypeLogin, Username: sess.Username})
	return d.State()
}

// Logout always ends in the LoggedOut phase, whatever the backend says
func (d *Dashboard) Logout(ctx context.Context) State {
	username := ""
	if sess, ok := d.sessions.Get(); ok {
		username = sess.Username
	}

	d.auth.Logout(ctx)

	// Unlike the browser page, logout does not leave the last session's data on screen.
	d.mu.Lock()
	d.generation++
	d.state.Error = ""
	d.state.Success = logoutSuccessMessage
	d.state.Quote = nil
	d.state.Watchlist = nil
	d.state.SearchResult = nil
	d.state.Signals = nil
	d.mu.Unlock()

	d.startRefresher()
	d.publish(ctx, events.Event{Type: events.TypeLogout, Username: username})
	return d.State()
}

// FetchQuote loads analytics for symbol; an empty symbol reuses the last one.
// On failure the previous quote stays in place.
func (d *Dashboard) FetchQuote(ctx context.Context, symbol string) State {
	gen := d.currentGeneration()
	sess, ok := d.sessions.Get()
	if !ok {
		return d.State()
	}

	sym := d.resolveSymbol(symbol)

	d.begin()
	quote, err := d.market.GetQuote(ctx, sym, d.exchange)
	applied := d.finish(gen, func(s *State) {
		if err != nil {
			s.Error = userMessage(err, "Failed to fetch stock data")
			return
		}
		if quote != nil {
			s.Symbol = sym
			s.Quote = quote
			s.Error = ""
		}
	})

	if applied && err == nil && quote != nil {
		d.publish(ctx, events.Event{Type: events.TypeQuote, Username: sess.Username, Symbol: sym})
	}
	return d.State()
}

// FetchWatchlist loads the watchlist. Nil symbols reuse the configured list.
func (d *Dashboard) FetchWatchlist(ctx context.Context, symbols []string) State {
	gen := d.currentGeneration()
	if _, ok := d.sessions.Get(); !ok {
		return d.State()
	}

	d.mu.Lock()
	if symbols != nil {
		d.state.WatchlistSymbols = normalizeSymbols(symbols)
	}
	list := append([]string(nil), d.state.WatchlistSymbols...)
	d.mu.Unlock()

	d.begin()
	watchlist, err := d.market.GetWatchlist(ctx, list, d.exchange)
	d.finish(gen, func(s *State) {
		if err != nil {
			s.Error = userMessage(err, "Failed to fetch watchlist data")
			return
		}
		if watchlist != nil {
			s.Watchlist = watchlist
			s.Error = ""
		}
	})
	return d.State()
}

// Search looks up symbols matching query
func (d *Dashboard) Search(ctx context.Context, query string) State {
	gen := d.currentGeneration()
	if _, ok := d.sessions.Get(); !ok {
		return d.State()
	}

	d.begin()
	result, err := d.market.Search(ctx, strings.TrimSpace(query))
	d.finish(gen, func(s *State) {
		if err != nil {
			s.Error = userMessage(err, "Failed to search stocks")
			return
		}
		if result != nil {
			s.SearchResult = result
			s.Error = ""
		}
	})
	return d.State()
}

// FetchSignals loads the signal report for symbol over period days
func (d *Dashboard) FetchSignals(ctx context.Context, symbol string, period int) State {
	gen := d.currentGeneration()
	if _, ok := d.sessions.Get(); !ok {
		return d.State()
	}

	sym := d.resolveSymbol(symbol)

	d.begin()
	report, err := d.market.GetSignals(ctx, sym, d.exchange, period)
	d.finish(gen, func(s *State) {
		if err != nil {
			s.Error = userMessage(err, "Failed to fetch trading signals")
			return
		}
		if report != nil {
			s.Signals = report
			s.Error = ""
		}
	})
	return d.State()
}

// currentGeneration is read before the session check, so a result is only
// applied under the session it was requested for
func (d *Dashboard) currentGeneration() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

func (d *Dashboard) begin() {
	d.mu.Lock()
	d.inFlight++
	d.mu.Unlock()
}

// finish applies the result of one operation in arrival order. Results
// issued under an earlier session are discarded.
func (d *Dashboard) finish(gen uint64, apply func(s *State)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--
	if gen != d.generation {
		return false
	}
	apply(&d.state)
	return true
}

func (d *Dashboard) snapshotLocked() State {
	s := d.state
	s.Loading = d.inFlight > 0
	s.WatchlistSymbols = append([]string(nil), d.state.WatchlistSymbols...)

	if sess, ok := d.sessions.Get(); ok {
		s.Phase = PhaseLoggedIn
		s.Username = sess.Username
		if exp, ok := client.TokenExpiry(sess.Token); ok {
			s.TokenExpiresAt = &exp
		}
	} else {
		s.Phase = PhaseLoggedOut
	}
	return s
}

func (d *Dashboard) resolveSymbol(symbol string) string {
	sym := NormalizeSymbol(symbol)
	if sym != "" {
		return sym
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Symbol
}

func (d *Dashboard) setTOTP(code string) {
	d.mu.Lock()
	d.state.LoginForm.TOTP = code
	d.mu.Unlock()
}

func (d *Dashboard) startRefresher() {
	if d.refresher == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.task != nil || d.runCtx == nil {
		return
	}
	d.task = d.refresher.Start(d.runCtx)
}

func (d *Dashboard) stopRefresher() {
	d.mu.Lock()
	task := d.task
	d.task = nil
	d.mu.Unlock()

	// Outside the lock: the worker may be waiting on setTOTP.
	task.Stop()
}

func (d *Dashboard) publish(ctx context.Context, evt events.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := d.publisher.Publish(ctx, evt); err != nil {
		d.logger.Warn("Failed to publish dashboard event",
			zap.String("type", evt.Type),
			zap.Error(err))
	}
}

// NormalizeSymbol trims and upper-cases a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ParseSymbols splits comma-separated input into normalized symbols,
// dropping empty items.
func ParseSymbols(input string) []string {
	return normalizeSymbols(strings.Split(input, ","))
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if sym := NormalizeSymbol(s); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

func userMessage(err error, fallback string) string {
	var authErr *client.AuthError
	if errors.As(err, &authErr) {
		return authErr.Error()
	}
	var fetchErr *client.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Error()
	}
	return fallback
}
