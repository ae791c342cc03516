// Package mockapi is a self-contained demo of the stock-signal backend the
// dashboard talks to. It serves canned market data behind TOTP login.
package mockapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/logger"
	"github.com/yourorg/signal-dashboard/internal/middleware"
	"github.com/yourorg/signal-dashboard/internal/model"
)

const defaultSignalPeriod = 30

// Handler serves the demo backend endpoints
type Handler struct {
	auth   *AuthService
	market *Market
	logger *zap.Logger
}

// NewHandler creates a new demo backend handler
func NewHandler(auth *AuthService, market *Market, log *zap.Logger) *Handler {
	return &Handler{
		auth:   auth,
		market: market,
		logger: logger.OrNop(log),
	}
}

// NewRouter wires the demo backend routes
func NewRouter(h *Handler, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.GET("/current-totp", h.CurrentTOTP)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)

		stocks := api.Group("/stocks")
		stocks.Use(middleware.BearerAuth(h.auth, log))
		stocks.GET("/ltp/:symbol", h.Quote)
		stocks.GET("/watchlist", h.Watchlist)
		stocks.GET("/search", h.Search)
		stocks.GET("/signals/:symbol", h.Signals)
	}

	return router
}

// CurrentTOTP returns the demo one-time code
// GET /api/auth/current-totp
func (h *Handler) CurrentTOTP(c *gin.Context) {
	resp, err := h.auth.CurrentCode()
	if err != nil {
		h.logger.Error("failed to generate totp", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to generate TOTP"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Login exchanges demo credentials for an access token
// POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var request model.LoginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	resp, err := h.auth.Login(&request)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid credentials"})
		return
	case errors.Is(err, ErrInvalidTOTP):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid TOTP"})
		return
	case err != nil:
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout acknowledges a logout; tokens are stateless
// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Quote returns analytics for one symbol
// GET /api/stocks/ltp/:symbol
func (h *Handler) Quote(c *gin.Context) {
	symbol := c.Param("symbol")
	quote, ok := h.market.Quote(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Stock %s not found", symbol)})
		return
	}
	c.JSON(http.StatusOK, quote)
}

// Watchlist returns analytics for several symbols
// GET /api/stocks/watchlist?symbols=A,B
func (h *Handler) Watchlist(c *gin.Context) {
	raw := c.Query("symbols")
	if strings.TrimSpace(raw) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "symbols is required"})
		return
	}
	c.JSON(http.StatusOK, h.market.Watchlist(strings.Split(raw, ",")))
}

// Search looks up symbols by code or name
// GET /api/stocks/search?q=
func (h *Handler) Search(c *gin.Context) {
	c.JSON(http.StatusOK, h.market.Search(c.Query("q")))
}

// Signals returns the signal report for one symbol
// GET /api/stocks/signals/:symbol?period=
func (h *Handler) Signals(c *gin.Context) {
	period := defaultSignalPeriod
	if raw := c.Query("period"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "period must be a positive integer"})
			return
		}
		period = p
	}

	symbol := c.Param("symbol")
	report, ok := h.market.Signals(symbol, period)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Stock %s not found", symbol)})
		return
	}
	c.JSON(http.StatusOK, report)
}
