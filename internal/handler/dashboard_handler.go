// Package handler exposes the dashboard controller over a local HTTP API.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/logger"
	"github.com/yourorg/signal-dashboard/internal/service"
)

// Controller is the dashboard surface the handler drives
type Controller interface {
	State() service.State
	Login(ctx context.Context, username, pin, totp string) service.State
	Logout(ctx context.Context) service.State
	FetchQuote(ctx context.Context, symbol string) service.State
	FetchWatchlist(ctx context.Context, symbols []string) service.State
	Search(ctx context.Context, query string) service.State
	FetchSignals(ctx context.Context, symbol string, period int) service.State
}

// DashboardHandler handles dashboard actions. Every action answers with the
// resulting state snapshot; user-facing errors travel in the snapshot.
type DashboardHandler struct {
	dashboard  Controller
	defaultPIN string
	logger     *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard Controller, defaultPIN string, log *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboard:  dashboard,
		defaultPIN: defaultPIN,
		logger:     logger.OrNop(log),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
	TOTP     string `json:"totp"`
}

type quoteRequest struct {
	Symbol string `json:"symbol"`
}

// Symbols may be a list or a single comma-separated string
type watchlistRequest struct {
	Symbols    []string `json:"symbols"`
	SymbolList string   `json:"symbol_list"`
}

type signalsRequest struct {
	Symbol string `json:"symbol"`
	Period int    `json:"period" binding:"gte=0"`
}

// RegisterRoutes mounts the dashboard routes on r
func (h *DashboardHandler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/dashboard")
	g.GET("/state", h.GetState)
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.POST("/quote", h.Quote)
	g.POST("/watchlist", h.Watchlist)
	g.GET("/search", h.Search)
	g.POST("/signals", h.Signals)
}

// GetState returns the current state
// GET /api/dashboard/state
func (h *DashboardHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.dashboard.State())
}

// Login logs in; empty fields fall back to the pre-filled form values
// POST /api/dashboard/login
func (h *DashboardHandler) Login(c *gin.Context) {
	var request loginRequest
	if !h.bindOptionalJSON(c, &request) {
		return
	}
	if request.PIN == "" {
		request.PIN = h.defaultPIN
	}

	c.JSON(http.StatusOK, h.dashboard.Login(c.Request.Context(), request.Username, request.PIN, request.TOTP))
}

// Logout logs out
// POST /api/dashboard/logout
func (h *DashboardHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, h.dashboard.Logout(c.Request.Context()))
}

// Quote fetches analytics for one symbol
// POST /api/dashboard/quote
func (h *DashboardHandler) Quote(c *gin.Context) {
	var request quoteRequest
	if !h.bindOptionalJSON(c, &request) {
		return
	}
	c.JSON(http.StatusOK, h.dashboard.FetchQuote(c.Request.Context(), request.Symbol))
}

// Watchlist fetches the watchlist
// POST /api/dashboard/watchlist
func (h *DashboardHandler) Watchlist(c *gin.Context) {
	var request watchlistRequest
	if !h.bindOptionalJSON(c, &request) {
		return
	}

	var symbols []string
	switch {
	case len(request.Symbols) > 0:
		symbols = request.Symbols
	case strings.TrimSpace(request.SymbolList) != "":
		symbols = service.ParseSymbols(request.SymbolList)
	}

	c.JSON(http.StatusOK, h.dashboard.FetchWatchlist(c.Request.Context(), symbols))
}

// Search looks up symbols
// GET /api/dashboard/search?q=
func (h *DashboardHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if strings.TrimSpace(query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	c.JSON(http.StatusOK, h.dashboard.Search(c.Request.Context(), query))
}

// Signals fetches the signal report for one symbol
// POST /api/dashboard/signals
func (h *DashboardHandler) Signals(c *gin.Context) {
	var request signalsRequest
	if !h.bindOptionalJSON(c, &request) {
		return
	}
	c.JSON(http.StatusOK, h.dashboard.FetchSignals(c.Request.Context(), request.Symbol, request.Period))
}

// bindOptionalJSON binds the body when there is one
func (h *DashboardHandler) bindOptionalJSON(c *gin.Context, dest interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		h.logger.Debug("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
