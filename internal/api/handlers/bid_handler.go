package handlers

import (
	"net/http"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/services"
	"auction-settlement/pkg/logger"

	"github.com/labstack/echo/v4"
)

type BidHandler struct {
	validator *services.BidValidator
	keys      domain.KeyRegistry
	log       logger.Logger
}

type SubmitBidRequest struct {
	AuctionID string    `json:"auction"`
	BidderID  string    `json:"bidder"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"ts"`
	Signature string    `json:"signature"`
}

type SubmitBidResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type RegisterKeyRequest struct {
	BidderID  string `json:"bidder"`
	PublicKey string `json:"public_key"`
}

func NewBidHandler(validator *services.BidValidator, keys domain.KeyRegistry,
	log logger.Logger) *BidHandler {
	return &BidHandler{
		validator: validator,
		keys:      keys,
		log:       log,
	}
}

func (h *BidHandler) SubmitBid(c echo.Context) error {
	var req SubmitBidRequest
	if err := c.Bind(&req); err != nil {
		h.log.Error("Failed to bind bid", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	bid := &domain.Bid{
		AuctionID: req.AuctionID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		Timestamp: req.Timestamp,
		Signature: req.Signature,
	}

	result, err := h.validator.Submit(c.Request().Context(), bid)
	if err != nil {
		h.log.Error("Failed to process bid", "auction_id", req.AuctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to process bid"})
	}

	if !result.Accepted {
		return c.JSON(http.StatusUnprocessableEntity, SubmitBidResponse{
			Accepted: false,
			Reason:   result.Reason,
		})
	}

	return c.JSON(http.StatusOK, SubmitBidResponse{Accepted: true})
}

func (h *BidHandler) RegisterKey(c echo.Context) error {
	var req RegisterKeyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if req.BidderID == "" || req.PublicKey == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bidder and public_key are required"})
	}

	if err := h.keys.Register(req.BidderID, []byte(req.PublicKey)); err != nil {
		h.log.Error("Failed to register key", "bidder_id", req.BidderID, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid public key"})
	}

	h.log.Info("Public key registered", "bidder_id", req.BidderID)
	return c.JSON(http.StatusCreated, map[string]string{"message": "Key registered"})
}
