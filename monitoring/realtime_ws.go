package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType is the kind of a pushed message.
type MessageType string

const (
	PredictionEvent MessageType = "prediction"
	ModelReload     MessageType = "model_reload"
	SystemStatus    MessageType = "system_status"
	Heartbeat       MessageType = "heartbeat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var ErrMonitorNotRunning = errors.New("monitor is not running")

// Message is the envelope written to every client.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// Client is one websocket connection.
type Client struct {
	conn     *websocket.Conn
	send     chan outbound
	clientID string

	subsMu        sync.RWMutex
	subscriptions map[MessageType]bool // empty means everything
}

type outbound struct {
	kind    MessageType
	payload []byte
}

func (c *Client) wants(kind MessageType) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[kind]
}

// WebSocketHub fans messages out to connected clients.
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	metrics    *Metrics
	ctx        context.Context
	cancel     context.CancelFunc
	count      atomic.Int64
}

// NewWebSocketHub creates a hub. An empty allowedOrigins or one containing "*" accepts any origin.
func NewWebSocketHub(logger *zap.Logger, metrics *Metrics, allowedOrigins []string) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins["*"] || origins[origin]
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start runs the hub loop until Stop.
func (h *WebSocketHub) Start() {
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			h.logger.Debug("client connected", zap.String("client", client.clientID), zap.Int("total", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.setCount()
			h.logger.Debug("client disconnected", zap.String("client", client.clientID), zap.Int("total", len(h.clients)))

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.kind) {
					continue
				}
				select {
				case client.send <- msg:
				default:
					// slow client, drop it
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.setCount()

		case <-h.ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setCount()
			return
		}
	}
}

func (h *WebSocketHub) setCount() {
	h.count.Store(int64(len(h.clients)))
	h.metrics.SetWebSocketClients(len(h.clients))
}

func (h *WebSocketHub) Stop() {
	h.cancel()
}

func (h *WebSocketHub) ClientCount() int {
	return int(h.count.Load())
}

// HandleWebSocket upgrades the request and registers the client.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan outbound, sendBuffer),
		clientID:      uuid.NewString(),
		subscriptions: make(map[MessageType]bool),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

// Broadcast queues a message; it is dropped when the queue is full.
func (h *WebSocketHub) Broadcast(kind MessageType, message []byte) {
	select {
	case h.broadcast <- outbound{kind: kind, payload: message}:
	default:
		h.logger.Warn("websocket broadcast queue is full, dropping message", zap.String("type", string(kind)))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles subscription messages until the connection fails.
func (c *Client) readPump(h *WebSocketHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.String("client", c.clientID), zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid client message", zap.String("client", c.clientID), zap.Error(err))
			continue
		}
		c.handleClientMessage(msg)
	}
}

func (c *Client) handleClientMessage(msg ClientMessage) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	switch msg.Type {
	case "subscribe":
		c.subscriptions[MessageType(msg.Topic)] = true
	case "unsubscribe":
		delete(c.subscriptions, MessageType(msg.Topic))
	}
}

// RealtimeMonitor publishes prediction, model-reload and heartbeat events.
type RealtimeMonitor struct {
	hub     *WebSocketHub
	logger  *zap.Logger
	mu      sync.RWMutex
	running bool
	stop    chan struct{}
	stats   MonitorStats
}

type MonitorStats struct {
	ConnectedClients int64     `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	BytesSent        int64     `json:"bytes_sent"`
	StartTime        time.Time `json:"start_time"`
	LastMessageTime  time.Time `json:"last_message_time"`
}

func NewRealtimeMonitor(hub *WebSocketHub, logger *zap.Logger) *RealtimeMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeMonitor{hub: hub, logger: logger}
}

// Start runs the hub and, when heartbeat > 0, a heartbeat ticker.
func (m *RealtimeMonitor) Start(heartbeat time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor is already running")
	}
	go m.hub.Start()

	m.running = true
	m.stop = make(chan struct{})
	m.stats.StartTime = time.Now()
	if heartbeat > 0 {
		go m.heartbeatLoop(heartbeat, m.stop)
	}

	m.logger.Info("realtime monitor started")
	return nil
}

func (m *RealtimeMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrMonitorNotRunning
	}
	m.running = false
	close(m.stop)
	m.hub.Stop()

	m.logger.Info("realtime monitor stopped")
	return nil
}

func (m *RealtimeMonitor) heartbeatLoop(every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := m.publish(Heartbeat, HeartbeatMessage{ServerTime: now, Clients: m.hub.ClientCount()}); err != nil && !errors.Is(err, ErrMonitorNotRunning) {
				m.logger.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (m *RealtimeMonitor) SendPrediction(p PredictionMessage) error {
	return m.publish(PredictionEvent, p)
}

func (m *RealtimeMonitor) SendModelReload(r ModelReloadMessage) error {
	return m.publish(ModelReload, r)
}

func (m *RealtimeMonitor) SendSystemStatus(s SystemStatusMessage) error {
	return m.publish(SystemStatus, s)
}

func (m *RealtimeMonitor) publish(kind MessageType, data interface{}) error {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return ErrMonitorNotRunning
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	messageBytes, err := json.Marshal(Message{
		Type:      kind,
		Timestamp: time.Now(),
		Data:      payload,
		ID:        uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	m.hub.Broadcast(kind, messageBytes)

	m.mu.Lock()
	m.stats.MessagesSent++
	m.stats.BytesSent += int64(len(messageBytes))
	m.stats.LastMessageTime = time.Now()
	m.mu.Unlock()
	return nil
}

func (m *RealtimeMonitor) GetStats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.ConnectedClients = int64(m.hub.ClientCount())
	return stats
}

// Hub exposes the hub so the HTTP layer can mount it.
func (m *RealtimeMonitor) Hub() *WebSocketHub {
	return m.hub
}

// PredictionMessage is sent for every served prediction.
type PredictionMessage struct {
	District     string   `json:"district"`
	DayOfWeek    string   `json:"day_of_week"`
	Hour         int      `json:"hour"`
	Label        string   `json:"label"`
	Confidence   float64  `json:"confidence"`
	ModelVersion string   `json:"model_version"`
	Dropped      []string `json:"dropped,omitempty"`
}

// ModelReloadMessage is sent after a model is swapped in.
type ModelReloadMessage struct {
	Version       string `json:"version,omitempty"`
	ModelType     string `json:"model_type,omitempty"`
	SchemaColumns int    `json:"schema_columns,omitempty"`
	Classes       int    `json:"classes,omitempty"`
	Error         string `json:"error,omitempty"`
}

type SystemStatusMessage struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Records     int    `json:"records"`
}

type HeartbeatMessage struct {
	ServerTime time.Time `json:"server_time"`
	Clients    int       `json:"clients"`
}

// ClientMessage is a subscription request, e.g. {"type":"subscribe","topic":"prediction"}.
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}
