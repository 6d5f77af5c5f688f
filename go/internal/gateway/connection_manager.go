package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/coordinator"
	"github.com/showdownhq/showdown/go/internal/models"
	"github.com/showdownhq/showdown/go/internal/notify"
)

// Deps are the collaborators each per-connection coordinator is wired to.
type Deps struct {
	Sessions coordinator.SessionStore
	Votes    coordinator.VoteStore
	Stream   notify.Stream
	// Prefs builds a preference store scoped to one client identity; optional.
	Prefs func(scope string) coordinator.Preferences
}

// ConnectionManager manages WebSocket connections for session updates. Every
// connection hosts its own coordinator; snapshots flow out through the
// connection's send buffer.
type ConnectionManager struct {
	// Connection pools organized by session code
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	deps     Deps
}

// Connection represents a WebSocket connection to a client.
type Connection struct {
	ID      string
	Code    string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager
	coord   *coordinator.Coordinator

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // 1KB max message size
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, deps Deps) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		deps:   deps,
	}
}

// outboundMessage is the wire shape of everything pushed to a client.
type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins the
// coded session on the client's behalf. clientID is the client's stable
// self-chosen identity; it scopes the preference store so the last-chosen
// team survives reconnects. An empty clientID means no preferences.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, code string, team models.Team, clientID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Code:        code,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	var prefs coordinator.Preferences
	if cm.deps.Prefs != nil && clientID != "" {
		prefs = cm.deps.Prefs(clientID)
	}

	coord, err := coordinator.New(coordinator.Config{
		Code:            code,
		PreselectedTeam: team,
		Sessions:        cm.deps.Sessions,
		Votes:           cm.deps.Votes,
		Stream:          cm.deps.Stream,
		Prefs:           prefs,
		OnChange:        connection.pushSnapshot,
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	connection.coord = coord

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	// Join after the pumps are running so loading snapshots reach the client.
	go func() {
		if err := coord.Initialize(context.Background()); err != nil {
			log.Error().
				Err(err).
				Str("connection_id", connection.ID).
				Str("code", code).
				Msg("failed to initialize coordinator")
			connection.pushError("failed to join session")
		}
	}()

	log.Info().
		Str("connection_id", connection.ID).
		Str("code", code).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager.
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.Code] == nil {
		cm.sessionConnections[conn.Code] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.Code][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("code", conn.Code).
		Int("total_connections", len(cm.sessionConnections[conn.Code])).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager and tears down
// its coordinator.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.sessionConnections[conn.Code]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)
			conn.coord.Close()

			if len(connections) == 0 {
				delete(cm.sessionConnections, conn.Code)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("code", conn.Code).
				Msg("connection unregistered")
		}
	}
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() (total int, sessions int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, connections := range cm.sessionConnections {
		total += len(connections)
	}
	return total, len(cm.sessionConnections)
}

// pushSnapshot serializes a coordinator snapshot into the send buffer. A full
// buffer drops the snapshot; the next change produces a fresh, complete one.
func (c *Connection) pushSnapshot(snap coordinator.Snapshot) {
	c.push(outboundMessage{Type: "snapshot", Data: snap})
}

func (c *Connection) pushError(msg string) {
	c.push(outboundMessage{Type: "error", Data: msg})
}

func (c *Connection) push(msg outboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal outbound message")
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("code", c.Code).
			Msg("send buffer full, dropping message")
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
