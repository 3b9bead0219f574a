package handlers

import (
	"encoding/json"
	"net/http"

	"auction-settlement/internal/services"
	"auction-settlement/pkg/logger"

	"github.com/gorilla/mux"
)

// InterestHandler exposes the dispatcher's interest registry over REST
// for clients that manage interests outside their push channel.
type InterestHandler struct {
	dispatcher *services.NotificationDispatcher
	log        logger.Logger
}

type RegisterInterestRequest struct {
	ClientID  string `json:"client"`
	AuctionID string `json:"auction"`
}

func NewInterestHandler(dispatcher *services.NotificationDispatcher, log logger.Logger) *InterestHandler {
	return &InterestHandler{
		dispatcher: dispatcher,
		log:        log,
	}
}

func (h *InterestHandler) RegisterInterest(w http.ResponseWriter, r *http.Request) {
	var req RegisterInterestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.ClientID == "" || req.AuctionID == "" {
		http.Error(w, "client and auction are required", http.StatusBadRequest)
		return
	}

	h.dispatcher.RegisterInterest(req.ClientID, req.AuctionID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"message": "interest registered"})
}

func (h *InterestHandler) CancelInterest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	clientID := vars["clientID"]
	auctionID := vars["auctionID"]

	if clientID == "" || auctionID == "" {
		http.Error(w, "client and auction are required", http.StatusBadRequest)
		return
	}

	h.dispatcher.CancelInterest(clientID, auctionID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "interest cancelled"})
}
