package websocket

import (
	"net/http"
	"sync"

	"auction-settlement/internal/services"
	"auction-settlement/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type PushHandler struct {
	dispatcher *services.NotificationDispatcher
	log        logger.Logger
}

func NewPushHandler(dispatcher *services.NotificationDispatcher, log logger.Logger) *PushHandler {
	return &PushHandler{
		dispatcher: dispatcher,
		log:        log,
	}
}

// HandleConnection upgrades /ws/clients/{clientID} to a websocket and
// attaches it as the client's push channel. Closing the socket removes
// the channel and the client's interest set.
func (h *PushHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	clientID := vars["clientID"]

	if clientID == "" {
		http.Error(w, "client id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewClientConnection(conn, clientID, h.log)

	if err := h.dispatcher.Connect(clientID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "client_id", clientID, "error", err)
		conn.Close()
		return
	}

	go h.handleMessages(wsConn, clientID)
}

func (h *PushHandler) handleMessages(conn *ClientConnection, clientID string) {
	defer h.dispatcher.Disconnect(clientID, conn)

	for {
		var msg map[string]interface{}
		if err := conn.conn.ReadJSON(&msg); err != nil {
			h.log.Info("Client disconnected", "client_id", clientID)
			return
		}

		msgType, ok := msg["type"].(string)
		if !ok {
			continue
		}

		switch msgType {
		case "register_interest":
			if auctionID, ok := msg["auction"].(string); ok {
				h.dispatcher.RegisterInterest(clientID, auctionID)
			}
		case "cancel_interest":
			if auctionID, ok := msg["auction"].(string); ok {
				h.dispatcher.CancelInterest(clientID, auctionID)
			}
		case "ping":
			conn.Send(map[string]string{"type": "pong"})
		}
	}
}

type ClientConnection struct {
	conn     *websocket.Conn
	clientID string
	mutex    sync.Mutex
	log      logger.Logger
}

func NewClientConnection(conn *websocket.Conn, clientID string, log logger.Logger) *ClientConnection {
	return &ClientConnection{
		conn:     conn,
		clientID: clientID,
		log:      log,
	}
}

func (c *ClientConnection) Send(message interface{}) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if raw, ok := message.([]byte); ok {
		return c.conn.WriteMessage(websocket.TextMessage, raw)
	}
	return c.conn.WriteJSON(message)
}

func (c *ClientConnection) Close() error {
	return c.conn.Close()
}

func (c *ClientConnection) ClientID() string {
	return c.clientID
}
