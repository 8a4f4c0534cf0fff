package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"backend/internal/engine"
	"backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"
)

// Bank moves tokens out of the operator wallet and reads the chain height.
// State changes commit before any transfer is attempted, so a failed
// transfer never rolls back an operation.
type Bank interface {
	Transfer(ctx context.Context, recipient string, token engine.Token, amount uint64) error
	Height(ctx context.Context) (int64, error)
}

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	engine *engine.Engine
	bank   Bank
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(eng *engine.Engine, bank Bank) *HTTPHandler {
	return &HTTPHandler{
		engine: eng,
		bank:   bank,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/tickets", h.BuyTickets)
	router.POST("/incentives", h.AddIncentives)
	router.POST("/terminate", h.TerminateRound)
	router.POST("/cancel", h.CancelRound)
	router.POST("/refunds", h.IssueRefund)
	router.GET("/rounds/:index", h.GetRound)
}

// env builds the invocation facts for a verified sender: normalized
// address, wall-clock time and the current chain height.
func (h *HTTPHandler) env(c *gin.Context, sender string) (engine.Env, bool) {
	accountID, err := ton.ParseAccountID(sender)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sender address"})
		return engine.Env{}, false
	}

	var height int64
	if h.bank != nil {
		height, err = h.bank.Height(c.Request.Context())
		if err != nil {
			logger.Error("chain height lookup failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "chain height unavailable"})
			return engine.Env{}, false
		}
	}

	return engine.Env{
		Sender: accountID.ToRaw(),
		Time:   time.Now().UTC(),
		Height: height,
	}, true
}

type buyTicketsRequest struct {
	Sender   string `json:"sender" binding:"required"`
	Count    uint32 `json:"count" binding:"required"`
	Payment  uint64 `json:"payment"`
	Message  string `json:"message"`
	IsPublic bool   `json:"is_public"`
}

// BuyTickets handles a ticket purchase.
func (h *HTTPHandler) BuyTickets(c *gin.Context) {
	var req buyTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, ok := h.env(c, req.Sender)
	if !ok {
		return
	}

	payouts, err := h.engine.BuyTickets(c.Request.Context(), env, req.Count, req.Payment, req.Message, req.IsPublic)
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.sendPayouts(c.Request.Context(), payouts)

	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

type addIncentivesRequest struct {
	Sender  string          `json:"sender" binding:"required"`
	Rewards []engine.Reward `json:"rewards"`
}

// AddIncentives handles a reward donation to the current round.
func (h *HTTPHandler) AddIncentives(c *gin.Context) {
	var req addIncentivesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, ok := h.env(c, req.Sender)
	if !ok {
		return
	}

	if err := h.engine.AddIncentives(c.Request.Context(), env, req.Rewards); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type senderRequest struct {
	Sender string `json:"sender" binding:"required"`
}

// TerminateRound handles an explicit settlement attempt.
func (h *HTTPHandler) TerminateRound(c *gin.Context) {
	var req senderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, ok := h.env(c, req.Sender)
	if !ok {
		return
	}

	payouts, err := h.engine.TerminateRound(env)
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.sendPayouts(c.Request.Context(), payouts)

	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// CancelRound handles an owner cancelation of the current round.
func (h *HTTPHandler) CancelRound(c *gin.Context) {
	var req senderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, ok := h.env(c, req.Sender)
	if !ok {
		return
	}

	if err := h.engine.CancelRound(env); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type issueRefundRequest struct {
	Sender     string `json:"sender" binding:"required"`
	RoundIndex uint32 `json:"round_index"`
	Recipient  string `json:"recipient" binding:"required"`
}

// IssueRefund handles an owner refund of one wallet on a canceled round.
func (h *HTTPHandler) IssueRefund(c *gin.Context) {
	var req issueRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, ok := h.env(c, req.Sender)
	if !ok {
		return
	}
	recipientID, err := ton.ParseAccountID(req.Recipient)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient address"})
		return
	}

	payout, err := h.engine.IssueRefund(env, req.RoundIndex, recipientID.ToRaw())
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.sendPayouts(c.Request.Context(), []engine.Payout{*payout})

	c.JSON(http.StatusOK, gin.H{"payout": payout})
}

// GetRound handles a round query. Players, winners and orders are included
// on request via query flags.
func (h *HTTPHandler) GetRound(c *gin.Context) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid round index"})
		return
	}

	view, err := h.engine.GetRound(uint32(index),
		c.Query("players") == "true",
		c.Query("winners") == "true",
		c.Query("orders") == "true")
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// sendPayouts performs the transfers an operation produced. The operation
// is already committed, so failures are logged for the operator to retry
// rather than surfaced as request errors.
func (h *HTTPHandler) sendPayouts(ctx context.Context, payouts []engine.Payout) {
	if h.bank == nil {
		return
	}
	for _, payout := range payouts {
		if err := h.bank.Transfer(ctx, payout.Address, payout.Token, payout.Amount); err != nil {
			logger.Error("payout transfer failed",
				zap.String("recipient", payout.Address),
				zap.Uint64("amount", payout.Amount),
				zap.Error(err))
		}
	}
}

func (h *HTTPHandler) renderError(c *gin.Context, err error) {
	var validationErr *engine.ValidationError
	var tooManyErr *engine.TooManyTicketsError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrRoundNotFound), errors.Is(err, engine.ErrPlayerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotAuthorized), errors.Is(err, engine.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInsufficientFunds), errors.Is(err, engine.ErrExcessiveFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, engine.ErrInactiveRound), errors.Is(err, engine.ErrNotActive),
		errors.Is(err, engine.ErrMissingRewards):
		status = http.StatusConflict
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &tooManyErr):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		logger.Error("operation failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
