package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	// EventTelemetry frames are high-frequency and may be dropped for
	// clients that cannot keep up or read faster than the throttle allows.
	EventTelemetry EventType = "TELEMETRY"
	// EventRiskStatus and EventCrashAlert always bypass the throttle.
	EventRiskStatus EventType = "RISK_STATUS"
	EventCrashAlert EventType = "ALERT_CRITICAL"
	EventTripStart  EventType = "TRIP_START"
	EventTripEnd    EventType = "TRIP_END"
	EventGeofence   EventType = "GEOFENCE_ALERT"
)

type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type Hub struct {
	id          string
	redis       *redis.Client
	minInterval time.Duration
	clients     map[string]map[*Client]struct{}
	mu          sync.RWMutex
}

type Client struct {
	DeviceID string
	Send     chan []byte

	mu            sync.Mutex
	closed        bool
	lastTelemetry time.Time
}

// send queues the payload unless the client has been unregistered or its
// buffer is full. Sending under the mutex keeps the write ordered against
// the close in Unregister.
func (c *Client) send(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- payload:
	default:
	}
}

// allowTelemetry reports whether enough time has passed since the last
// telemetry frame this client received, and records the new send time.
func (c *Client) allowTelemetry(now time.Time, minInterval time.Duration) bool {
	if minInterval <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastTelemetry) < minInterval {
		return false
	}
	c.lastTelemetry = now
	return true
}

// NewHub builds the per-device broadcaster. minInterval throttles telemetry
// frames per client; alert and status events are never throttled. When a
// redis client is given, events are relayed across instances over pub/sub.
func NewHub(redisClient *redis.Client, minInterval time.Duration) *Hub {
	h := &Hub{
		id:          uuid.NewString(),
		redis:       redisClient,
		minInterval: minInterval,
		clients:     map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(deviceID string) *Client {
	client := &Client{
		DeviceID: deviceID,
		Send:     make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[deviceID] == nil {
		h.clients[deviceID] = map[*Client]struct{}{}
	}
	h.clients[deviceID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if deviceClients, ok := h.clients[client.DeviceID]; ok {
		delete(deviceClients, client)
		if len(deviceClients) == 0 {
			delete(h.clients, client.DeviceID)
		}
	}

	client.mu.Lock()
	if !client.closed {
		client.closed = true
		close(client.Send)
	}
	client.mu.Unlock()
}

// Broadcast fans an event out to every watcher of the device. Slow clients
// lose the frame rather than stall the caller.
func (h *Hub) Broadcast(deviceID string, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("stream: marshal %s event: %v", evt.Type, err)
		return
	}

	h.deliver(deviceID, evt.Type, payload)

	if h.redis != nil {
		env, _ := json.Marshal(relayEnvelope{Origin: h.id, Type: evt.Type, Event: payload})
		if err := h.redis.Publish(context.Background(), redisChannel(deviceID), env).Err(); err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) deliver(deviceID string, typ EventType, payload []byte) {
	// copy the set before iterating; Register/Unregister mutate the map
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[deviceID]))
	for client := range h.clients[deviceID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	now := time.Now()
	for _, client := range clients {
		if typ == EventTelemetry && !client.allowTelemetry(now, h.minInterval) {
			continue
		}
		client.send(payload)
	}
}

// relayEnvelope wraps events on the redis channel so an instance can skip
// messages it published itself.
type relayEnvelope struct {
	Origin string          `json:"origin"`
	Type   EventType       `json:"type"`
	Event  json.RawMessage `json:"event"`
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "live:*:broadcast")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		deviceID := deviceIDFromChannel(msg.Channel)
		if deviceID == "" {
			continue
		}
		var env relayEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Origin == h.id {
			continue
		}
		h.deliver(deviceID, env.Type, env.Event)
	}
}

func redisChannel(deviceID string) string {
	return "live:" + deviceID + ":broadcast"
}

func deviceIDFromChannel(ch string) string {
	// live:{device}:broadcast
	const prefix = "live:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
