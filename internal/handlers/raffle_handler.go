package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ArowuTest/raffle-engine/internal/ledger"
	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/repositories"
	"github.com/ArowuTest/raffle-engine/internal/services"
	"github.com/gin-gonic/gin"
)

// RaffleHandler handles raffle related HTTP requests
type RaffleHandler struct {
	raffleService services.RaffleService
}

// NewRaffleHandler creates a new RaffleHandler
func NewRaffleHandler(raffleService services.RaffleService) *RaffleHandler {
	return &RaffleHandler{raffleService: raffleService}
}

// CreateRaffle handles POST /raffles
func (h *RaffleHandler) CreateRaffle(c *gin.Context) {
	var req models.CreateRaffleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raffle, err := h.raffleService.CreateRaffle(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, raffle)
}

// GetRaffle handles GET /raffles/:id
func (h *RaffleHandler) GetRaffle(c *gin.Context) {
	raffle, err := h.raffleService.GetRaffle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raffle)
}

// ListRaffles handles GET /raffles with optional creator and status filters
func (h *RaffleHandler) ListRaffles(c *gin.Context) {
	filter := models.RaffleFilter{
		Creator: c.Query("creator"),
		Status:  models.RaffleStatus(c.Query("status")),
	}
	if filter.Status != "" && filter.Status != models.RaffleStatusLive && filter.Status != models.RaffleStatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be live or completed"})
		return
	}

	raffles, err := h.raffleService.ListRaffles(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffles": raffles, "count": len(raffles)})
}

// ProcessDeposits handles POST /raffles/:id/process
func (h *RaffleHandler) ProcessDeposits(c *gin.Context) {
	raffle, res, err := h.raffleService.ProcessDeposits(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"raffle":     raffle,
		"credited":   res.Credited,
		"duplicates": res.Duplicates,
		"malformed":  res.Malformed,
		"skipped":    res.NotEligible,
	})
}

// ReleaseLease handles POST /raffles/:id/lease/release
func (h *RaffleHandler) ReleaseLease(c *gin.Context) {
	raffle, err := h.raffleService.ReleaseLease(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raffle)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrRaffleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Raffle not found"})
	case errors.Is(err, repositories.ErrVersionConflict), errors.Is(err, repositories.ErrDuplicateRaffle):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidRaffle):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrAggregateMismatch):
		slog.Error("Ledger invariant violated", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
