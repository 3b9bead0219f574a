package handlers

import (
	"errors"
	"net/http"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/services"
	"auction-settlement/pkg/logger"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	coordinator *services.PaymentCoordinator
	paymentRepo domain.PaymentRepository
	log         logger.Logger
}

type PaymentCallbackRequest struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Details   string `json:"details,omitempty"`
}

type PaymentResponse struct {
	PaymentID string  `json:"payment_id"`
	AuctionID string  `json:"auction"`
	WinnerID  string  `json:"winner"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	Link      string  `json:"link,omitempty"`
}

func NewPaymentHandler(coordinator *services.PaymentCoordinator,
	paymentRepo domain.PaymentRepository, log logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		coordinator: coordinator,
		paymentRepo: paymentRepo,
		log:         log,
	}
}

// Callback receives the provider's asynchronous status notification.
func (h *PaymentHandler) Callback(c echo.Context) error {
	var req PaymentCallbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	payment, err := h.coordinator.ReportStatus(c.Request().Context(), req.PaymentID, req.Status, req.Details)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Payment not found"})
		}
		if errors.Is(err, services.ErrInvalidPaymentStatus) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		h.log.Error("Failed to process status report", "payment_id", req.PaymentID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to process status report"})
	}

	return c.JSON(http.StatusOK, toPaymentResponse(payment))
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	paymentID := c.Param("id")

	payment, err := h.paymentRepo.GetPayment(c.Request().Context(), paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Payment not found"})
		}
		h.log.Error("Failed to load payment", "payment_id", paymentID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load payment"})
	}

	return c.JSON(http.StatusOK, toPaymentResponse(payment))
}

func (h *PaymentHandler) ListPayments(c echo.Context) error {
	payments, err := h.paymentRepo.ListPayments(c.Request().Context())
	if err != nil {
		h.log.Error("Failed to list payments", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list payments"})
	}

	response := make([]PaymentResponse, 0, len(payments))
	for _, payment := range payments {
		response = append(response, toPaymentResponse(payment))
	}
	return c.JSON(http.StatusOK, response)
}

func toPaymentResponse(payment *domain.Payment) PaymentResponse {
	return PaymentResponse{
		PaymentID: payment.ID,
		AuctionID: payment.AuctionID,
		WinnerID:  payment.WinnerID,
		Amount:    payment.Amount,
		Status:    string(payment.Status),
		Link:      payment.Link,
	}
}
