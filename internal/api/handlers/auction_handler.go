package handlers

import (
	"errors"
	"net/http"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/services"
	"auction-settlement/pkg/logger"

	"github.com/labstack/echo/v4"
)

type AuctionHandler struct {
	scheduler   *services.AuctionScheduler
	auctionRepo domain.AuctionRepository
	log         logger.Logger
}

type CreateAuctionRequest struct {
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

type AuctionResponse struct {
	AuctionID   string    `json:"auction_id"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"`
}

func NewAuctionHandler(scheduler *services.AuctionScheduler,
	auctionRepo domain.AuctionRepository, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		scheduler:   scheduler,
		auctionRepo: auctionRepo,
		log:         log,
	}
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		h.log.Error("Failed to bind request", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	// Validation
	if req.Description == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Description is required"})
	}
	if req.EndTime.Before(req.StartTime) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "End time must be after start time"})
	}

	auction, err := h.scheduler.CreateAuction(c.Request().Context(), req.Description, req.StartTime, req.EndTime)
	if err != nil {
		h.log.Error("Failed to create auction", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create auction"})
	}

	h.log.Info("Auction created successfully", "auction_id", auction.ID)
	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auctionID := c.Param("id")

	auction, err := h.auctionRepo.GetAuction(c.Request().Context(), auctionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Auction not found"})
		}
		h.log.Error("Failed to load auction", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load auction"})
	}

	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) ListUnfinishedAuctions(c echo.Context) error {
	auctions, err := h.auctionRepo.GetUnfinishedAuctions(c.Request().Context())
	if err != nil {
		h.log.Error("Failed to list auctions", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list auctions"})
	}

	response := make([]AuctionResponse, 0, len(auctions))
	for _, auction := range auctions {
		response = append(response, toAuctionResponse(auction))
	}
	return c.JSON(http.StatusOK, response)
}

func toAuctionResponse(auction *domain.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:   auction.ID,
		Description: auction.Description,
		StartTime:   auction.StartTime,
		EndTime:     auction.EndTime,
		Status:      auction.Status.String(),
	}
}
