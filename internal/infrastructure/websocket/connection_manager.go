package websocket

import (
	"encoding/json"
	"sync"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"
)

// ConnectionManager tracks one push connection per client id. Delivery
// is best effort: a dead connection drops the event for that client
// only, everyone else still gets theirs.
type ConnectionManager struct {
	connections map[string]domain.ClientConnection
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]domain.ClientConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(clientID string, conn domain.ClientConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	// A reconnect supersedes the old channel.
	if existing, exists := cm.connections[clientID]; exists {
		existing.Close()
	}
	cm.connections[clientID] = conn

	cm.log.Info("Connection registered", "client_id", clientID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(clientID string, conn domain.ClientConnection) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	current, exists := cm.connections[clientID]
	if !exists || current != conn {
		// A superseded connection tearing down after a reconnect; the
		// live connection stays registered.
		cm.log.Info("Ignoring unregister for superseded connection", "client_id", clientID)
		return false
	}

	delete(cm.connections, clientID)
	cm.log.Info("Connection unregistered", "client_id", clientID)
	return true
}

func (cm *ConnectionManager) NotifyClient(clientID string, message interface{}) error {
	cm.mutex.RLock()
	conn, exists := cm.connections[clientID]
	cm.mutex.RUnlock()

	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	if err := conn.Send(messageBytes); err != nil {
		cm.log.Error("Failed to send message", "client_id", clientID, "error", err)
	}

	return nil
}

func (cm *ConnectionManager) NotifyClients(clientIDs []string, message interface{}) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	for _, clientID := range clientIDs {
		conn, exists := cm.connections[clientID]
		if !exists {
			continue
		}
		if err := conn.Send(messageBytes); err != nil {
			cm.log.Error("Failed to send message", "client_id", clientID, "error", err)
			// Continue to other clients
		}
	}

	return nil
}
