package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/yourorg/signal-dashboard/internal/client"
	"github.com/yourorg/signal-dashboard/internal/events"
	"github.com/yourorg/signal-dashboard/internal/model"
	"github.com/yourorg/signal-dashboard/internal/session"
)

type testEnv struct {
	store     *session.Store
	backend   *session.MemoryBackend
	dashboard *Dashboard
	published *recordingPublisher
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// newTestEnv wires real clients against srv
func newTestEnv(t *testing.T, srv *httptest.Server, fetcher CodeFetcher) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	backend := session.NewMemoryBackend()
	store := session.NewStore(backend, log)
	pub := &recordingPublisher{}

	d := NewDashboard(store,
		client.NewAuthClient(srv.URL, store, log),
		client.NewMarketClient(srv.URL, store, log),
		DashboardOptions{
			Exchange:        "NSE",
			DefaultUsername: "demo_user",
			DefaultSymbol:   "reliance",
			Watchlist:       []string{"RELIANCE", "TCS"},
			CodeFetcher:     fetcher,
			Publisher:       pub,
		}, log)
	if d.refresher != nil {
		d.refresher.timer = newFakeTimer()
	}
	t.Cleanup(d.Close)

	return &testEnv{store: store, backend: backend, dashboard: d, published: pub}
}

func backendMux(t *testing.T, quoteStatus *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600,"user_info":{"username":"demo_user"}}`))
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/stocks/ltp/", func(w http.ResponseWriter, r *http.Request) {
		if quoteStatus != nil {
			if status := atomic.LoadInt32(quoteStatus); status != http.StatusOK {
				w.WriteHeader(int(status))
				return
			}
		}
		w.Write([]byte(`{"symbol":"RELIANCE","current_price":2456.75,"indicators":{},"signals":{"recommendation":"BUY","buy_signals":[],"sell_signals":[]}}`))
	})
	mux.HandleFunc("/api/stocks/watchlist", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "symbols=RELIANCE,TCS&exchange=NSE" {
			t.Errorf("unexpected watchlist query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"watchlist":{"RELIANCE":{"current_price":2456.75,"indicators":{"rsi":55.1},"recommendation":"HOLD","status":"success"}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, env *testEnv) State {
	t.Helper()
	state := env.dashboard.Login(context.Background(), "demo_user", "1234", "123456")
	if state.Phase != PhaseLoggedIn {
		t.Fatalf("expected logged in, got %+v", state)
	}
	return state
}

func TestDashboardStartsLoggedOut(t *testing.T) {
	env := newTestEnv(t, backendMux(t, nil), nil)
	env.dashboard.Start(context.Background())

	state := env.dashboard.State()
	if state.Phase != PhaseLoggedOut || state.Loading {
		t.Fatalf("unexpected initial state %+v", state)
	}
	if state.LoginForm.Username != "demo_user" || state.Symbol != "RELIANCE" {
		t.Fatalf("expected pre-filled defaults, got %+v", state)
	}
}

func TestDashboardRestoresPersistedSession(t *testing.T) {
	env := newTestEnv(t, backendMux(t, nil), &countingFetcher{})
	ctx := context.Background()
	env.backend.Set(ctx, session.KeyToken, "stored-token")
	env.backend.Set(ctx, session.KeyUsername, "demo_user")

	env.dashboard.Start(ctx)

	state := env.dashboard.State()
	if state.Phase != PhaseLoggedIn || state.Username != "demo_user" {
		t.Fatalf("expected restored login, got %+v", state)
	}
	sess, _ := env.store.Get()
	if sess.ExpiresInSeconds != model.RestoredSessionExpiry {
		t.Fatalf("expected restored expiry %d, got %d", model.RestoredSessionExpiry, sess.ExpiresInSeconds)
	}
	if env.dashboard.task != nil {
		t.Fatal("refresher must not run while logged in")
	}
}

func TestDashboardLoginAndLogout(t *testing.T) {
	fetcher := &countingFetcher{}
	env := newTestEnv(t, backendMux(t, nil), fetcher)
	env.dashboard.Start(context.Background())
	if env.dashboard.task == nil {
		t.Fatal("refresher should run on the login view")
	}

	state := login(t, env)
	if state.Success != "Login successful!" || state.Error != "" {
		t.Fatalf("unexpected messages %+v", state)
	}
	if env.dashboard.task != nil {
		t.Fatal("refresher should stop after login")
	}

	env.dashboard.FetchQuote(context.Background(), "")

	// The backend fails the logout call; the local session still goes.
	state = env.dashboard.Logout(context.Background())
	if state.Phase != PhaseLoggedOut {
		t.Fatalf("expected logged out, got %+v", state)
	}
	if state.Success != "Logged out successfully" || state.Quote != nil {
		t.Fatalf("unexpected state after logout %+v", state)
	}
	if _, ok := env.store.Get(); ok {
		t.Fatal("session must be absent after logout")
	}
	if env.dashboard.task == nil {
		t.Fatal("refresher should restart after logout")
	}

	want := []string{events.TypeLogin, events.TypeQuote, events.TypeLogout}
	got := env.published.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestDashboardLoginFailureStaysLoggedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Invalid credentials"}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, srv, nil)
	state := env.dashboard.Login(context.Background(), "demo_user", "0000", "000000")
	if state.Phase != PhaseLoggedOut {
		t.Fatalf("expected logged out, got %+v", state)
	}
	if state.Error != "Invalid credentials" || state.Success != "" {
		t.Fatalf("unexpected messages %+v", state)
	}
	if types := env.published.types(); len(types) != 1 || types[0] != events.TypeLoginFailed {
		t.Fatalf("expected a login_failed event, got %v", types)
	}
}

func TestDashboardFailedQuoteKeepsPreviousData(t *testing.T) {
	status := int32(http.StatusOK)
	env := newTestEnv(t, backendMux(t, &status), nil)
	login(t, env)
	ctx := context.Background()

	first := env.dashboard.FetchQuote(ctx, "reliance")
	if first.Quote == nil || first.Error != "" {
		t.Fatalf("expected quote, got %+v", first)
	}

	atomic.StoreInt32(&status, http.StatusInternalServerError)
	second := env.dashboard.FetchQuote(ctx, "RELIANCE")
	if second.Error != "Failed to fetch stock data" {
		t.Fatalf("expected fetch error, got %q", second.Error)
	}
	if second.Quote == nil || !second.Quote.CurrentPrice.Equal(first.Quote.CurrentPrice) {
		t.Fatalf("previous quote must be retained, got %+v", second.Quote)
	}
	if second.Loading {
		t.Fatal("loading must clear once the fetch completes")
	}
}

func TestDashboardWatchlistRendersReturnedSymbolsOnly(t *testing.T) {
	env := newTestEnv(t, backendMux(t, nil), nil)
	login(t, env)

	state := env.dashboard.FetchWatchlist(context.Background(), ParseSymbols(" reliance, tcs ,"))
	if state.Error != "" {
		t.Fatalf("unexpected error %q", state.Error)
	}
	if len(state.Watchlist) != 1 {
		t.Fatalf("expected only RELIANCE, got %+v", state.Watchlist)
	}
	if _, ok := state.Watchlist["RELIANCE"]; !ok {
		t.Fatalf("expected RELIANCE entry, got %+v", state.Watchlist)
	}
}

func TestDashboardFetchWithoutSessionIsNoop(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv, nil)
	ctx := context.Background()
	before := env.dashboard.State()

	env.dashboard.FetchQuote(ctx, "TCS")
	env.dashboard.FetchWatchlist(ctx, nil)
	env.dashboard.Search(ctx, "tata")
	after := env.dashboard.FetchSignals(ctx, "TCS", 30)

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
	if after.Error != before.Error || after.Quote != nil || after.Loading {
		t.Fatalf("state must be unchanged, got %+v", after)
	}
}

func TestDashboardLoginUsesPrefilledTOTP(t *testing.T) {
	auth := &fakeAuth{}
	store := session.NewStore(session.NewMemoryBackend(), zaptest.NewLogger(t))
	auth.store = store

	d := NewDashboard(store, auth, &blockingMarket{}, DashboardOptions{
		DefaultUsername: "demo_user",
		CodeFetcher:     &countingFetcher{},
	}, zaptest.NewLogger(t))
	d.refresher.timer = newFakeTimer()
	d.Start(context.Background())
	defer d.Close()

	deadline := time.Now().Add(time.Second)
	for d.State().LoginForm.TOTP == "" {
		if time.Now().After(deadline) {
			t.Fatal("TOTP pre-fill never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	d.Login(context.Background(), "", "1234", "")
	if auth.username != "demo_user" || auth.totp != "000001" {
		t.Fatalf("expected pre-filled credentials, got %q/%q", auth.username, auth.totp)
	}
}

func TestDashboardConcurrentFetchesLastArrivalWins(t *testing.T) {
	store := session.NewStore(session.NewMemoryBackend(), zaptest.NewLogger(t))
	store.Set(context.Background(), model.Session{Username: "demo_user", Token: "tok"})

	market := &blockingMarket{
		entered: make(chan string, 2),
		release: map[string]chan *model.StockAnalytics{
			"TCS":  make(chan *model.StockAnalytics),
			"INFY": make(chan *model.StockAnalytics),
		},
	}
	d := NewDashboard(store, &fakeAuth{store: store}, market, DashboardOptions{}, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for _, sym := range []string{"TCS", "INFY"} {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			d.FetchQuote(context.Background(), sym)
		}(sym)
	}
	<-market.entered
	<-market.entered

	if !d.State().Loading {
		t.Fatal("expected loading while requests are in flight")
	}

	// INFY was issued alongside TCS but arrives first; TCS lands last.
	market.release["INFY"] <- &model.StockAnalytics{Symbol: "INFY", CurrentPrice: decimal.NewFromInt(1500)}
	market.release["TCS"] <- &model.StockAnalytics{Symbol: "TCS", CurrentPrice: decimal.NewFromInt(3900)}
	wg.Wait()

	state := d.State()
	if state.Loading {
		t.Fatal("loading must clear once all requests finish")
	}
	if state.Quote == nil || state.Quote.Symbol != "TCS" || state.Symbol != "TCS" {
		t.Fatalf("expected last arrival TCS to win, got %+v", state.Quote)
	}
}

func TestDashboardDropsResultsFromEndedSession(t *testing.T) {
	store := session.NewStore(session.NewMemoryBackend(), zaptest.NewLogger(t))
	store.Set(context.Background(), model.Session{Username: "demo_user", Token: "tok"})

	market := &blockingMarket{
		entered: make(chan string, 1),
		release: map[string]chan *model.StockAnalytics{"TCS": make(chan *model.StockAnalytics)},
	}
	pub := &recordingPublisher{}
	d := NewDashboard(store, &fakeAuth{store: store}, market, DashboardOptions{Publisher: pub}, zaptest.NewLogger(t))

	done := make(chan State, 1)
	go func() {
		done <- d.FetchQuote(context.Background(), "TCS")
	}()
	<-market.entered

	d.Logout(context.Background())
	if state := d.Login(context.Background(), "other_user", "1234", "123456"); state.Phase != PhaseLoggedIn {
		t.Fatalf("expected re-login, got %+v", state)
	}

	market.release["TCS"] <- &model.StockAnalytics{Symbol: "TCS", CurrentPrice: decimal.NewFromInt(3900)}
	<-done

	state := d.State()
	if state.Loading {
		t.Fatal("loading must clear when a stale result is dropped")
	}
	if state.Quote != nil || state.Symbol == "TCS" {
		t.Fatalf("quote from the previous session leaked into %+v", state)
	}
	for _, typ := range pub.types() {
		if typ == events.TypeQuote {
			t.Fatal("a dropped quote must not be published")
		}
	}
}

func TestDashboardLogoutClearsDisplayedData(t *testing.T) {
	store := session.NewStore(session.NewMemoryBackend(), zaptest.NewLogger(t))
	store.Set(context.Background(), model.Session{Username: "demo_user", Token: "tok"})

	market := &blockingMarket{
		entered: make(chan string, 1),
		release: map[string]chan *model.StockAnalytics{"INFY": make(chan *model.StockAnalytics, 1)},
	}
	market.release["INFY"] <- &model.StockAnalytics{Symbol: "INFY", CurrentPrice: decimal.NewFromInt(1500)}
	d := NewDashboard(store, &fakeAuth{store: store}, market, DashboardOptions{Watchlist: []string{"INFY"}}, zaptest.NewLogger(t))

	ctx := context.Background()
	d.FetchQuote(ctx, "INFY")
	d.FetchWatchlist(ctx, nil)
	d.Search(ctx, "inf")
	state := d.FetchSignals(ctx, "INFY", 30)
	if state.Quote == nil || state.Watchlist == nil || state.SearchResult == nil || state.Signals == nil {
		t.Fatalf("expected data before logout, got %+v", state)
	}

	state = d.Logout(ctx)
	if state.Quote != nil || state.Watchlist != nil || state.SearchResult != nil || state.Signals != nil {
		t.Fatalf("expected displayed data cleared on logout, got %+v", state)
	}
	if len(state.WatchlistSymbols) != 1 || state.WatchlistSymbols[0] != "INFY" {
		t.Fatalf("watchlist symbols should survive logout, got %v", state.WatchlistSymbols)
	}
}

func TestParseSymbols(t *testing.T) {
	got := ParseSymbols("reliance, tcs,,  infy ")
	want := []string{"RELIANCE", "TCS", "INFY"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if len(ParseSymbols("")) != 0 {
		t.Fatal("expected no symbols for empty input")
	}
}

type fakeAuth struct {
	store    *session.Store
	username string
	totp     string
}

func (a *fakeAuth) Login(ctx context.Context, username, pin, totp string) (*model.Session, error) {
	a.username, a.totp = username, totp
	sess := model.Session{Username: username, Token: "tok", ExpiresInSeconds: 60}
	a.store.Set(ctx, sess)
	return &sess, nil
}

func (a *fakeAuth) Logout(ctx context.Context) { a.store.Clear(ctx) }

type blockingMarket struct {
	entered chan string
	release map[string]chan *model.StockAnalytics
}

func (m *blockingMarket) GetQuote(_ context.Context, symbol, _ string) (*model.StockAnalytics, error) {
	m.entered <- symbol
	return <-m.release[symbol], nil
}

func (m *blockingMarket) GetWatchlist(context.Context, []string, string) (model.Watchlist, error) {
	return model.Watchlist{}, nil
}

func (m *blockingMarket) Search(context.Context, string) (*model.SearchResult, error) {
	return &model.SearchResult{}, nil
}

func (m *blockingMarket) GetSignals(context.Context, string, string, int) (*model.SignalReport, error) {
	return &model.SignalReport{}, nil
}
