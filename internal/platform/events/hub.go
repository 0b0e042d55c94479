// Package events pushes committed domain changes to websocket subscribers.
// Clients subscribe to topics such as "appointments" or "doctors/7" and the
// wildcard topic "*" receives everything. Only admins may use the shared
// topics; patients and doctors are limited to their own stream. Delivery is
// best-effort: a slow client misses events rather than blocking a request.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

const Wildcard = "*"

// Event is a notification about one changed entity.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Entity    string          `json:"entity"`
	EntityID  int64           `json:"entity_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Publisher delivers events after the originating transaction commits.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Emit builds an event from payload and publishes it to each topic. Errors
// are logged and dropped.
func Emit(ctx context.Context, pub Publisher, typ, entity string, id int64, payload interface{}, topics ...string) {
	if pub == nil {
		return
	}
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("event", typ).Msg("marshal event payload")
			return
		}
		data = b
	}
	now := time.Now().UTC()
	for _, topic := range topics {
		ev := Event{Type: typ, Topic: topic, Entity: entity, EntityID: id, Timestamp: now, Data: data}
		if err := pub.Publish(ctx, ev); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("event", typ).Str("topic", topic).Msg("publish event")
		}
	}
}

type clientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is a single websocket subscriber.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

func NewClient(topics ...string) *Client {
	return &Client{ID: uuid.New().String(), Topics: topics, Send: make(chan []byte, 256)}
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
	dropped func()
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "events").Logger(),
	}
}

// OnDrop registers a callback invoked whenever a full client buffer forces
// an event to be skipped.
func (h *Hub) OnDrop(fn func()) { h.dropped = fn }

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	h.subscribeLocked(client, client.Topics)
}

// Unregister removes the client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribeLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribeLocked(client, topics)
	client.Topics = append(client.Topics, topics...)
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(client, topics)
	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}
	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) subscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

func (h *Hub) unsubscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}
}

// Publish sends the event to subscribers of its topic and of the wildcard.
// A client subscribed to both receives it once.
func (h *Hub) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := make(map[*Client]struct{})
	for _, topic := range []string{event.Topic, Wildcard} {
		for client := range h.clients[topic] {
			if _, dup := sent[client]; dup {
				continue
			}
			sent[client] = struct{}{}
			select {
			case client.Send <- data:
			default:
				h.logger.Debug().Str("client", client.ID).Str("topic", event.Topic).Msg("client buffer full, event dropped")
				if h.dropped != nil {
					h.dropped()
				}
			}
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// TopicAllowed reports whether the caller in ctx may receive events on topic.
func TopicAllowed(ctx context.Context, topic string) bool {
	return accessFrom(ctx).allows(topic)
}

// access is the caller identity captured when the socket is opened; the
// request context is gone once the connection is hijacked.
type access struct {
	roles     []string
	profileID int64
}

func accessFrom(ctx context.Context) access {
	return access{roles: auth.RolesFromContext(ctx), profileID: auth.ProfileIDFromContext(ctx)}
}

func (a access) allows(topic string) bool {
	own := strconv.FormatInt(a.profileID, 10)
	for _, role := range a.roles {
		switch role {
		case auth.RoleAdmin:
			return true
		case "patient":
			if a.profileID > 0 && topic == "patients/"+own {
				return true
			}
		case "doctor":
			if a.profileID > 0 && topic == "doctors/"+own {
				return true
			}
		}
	}
	return false
}

func (h *Hub) process(client *Client, msg clientMessage, allow func(string) bool) {
	switch msg.Action {
	case "subscribe":
		var topics []string
		for _, t := range msg.Topics {
			if !allow(t) {
				h.logger.Warn().Str("client", client.ID).Str("topic", t).Msg("subscription refused")
				continue
			}
			topics = append(topics, t)
		}
		h.Subscribe(client, topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// -- HTTP --

// Handler upgrades /ws requests and pumps events to the client.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts connections from allowedOrigins; an empty list or "*"
// allows any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allow := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allow[o] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allow) == 0 || allow["*"] || allow[origin]
			},
		},
	}
}

func (wh *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.GET("/ws", wh.Connect, mw...)
}

// Connect upgrades the request. Initial topics come from the comma-separated
// topics query parameter; any topic the caller may not read fails the
// handshake with 403.
func (wh *Handler) Connect(c echo.Context) error {
	acc := accessFrom(c.Request().Context())

	var topics []string
	for _, t := range strings.Split(c.QueryParam("topics"), ",") {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		if !acc.allows(t) {
			return echo.NewHTTPError(http.StatusForbidden, "topic not permitted: "+t)
		}
		topics = append(topics, t)
	}

	ws, err := wh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(topics...)
	wh.hub.Register(client)

	go wh.writePump(client, ws)
	go wh.readPump(client, ws, acc.allows)
	return nil
}

func (wh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn, allow func(string) bool) {
	defer func() {
		wh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wh.hub.process(client, msg, allow)
	}
}

func (wh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
