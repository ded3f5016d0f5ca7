package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans freshly created notifications out to the recipient's open
// websocket connections. Delivery is best-effort: a slow client drops
// messages instead of blocking the publisher, and the durable notification
// record is the source of truth anyway. Redis pub/sub bridges multiple API
// instances.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	UserID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(userID string) *Client {
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userClients, ok := h.clients[client.UserID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	close(client.Send)
}

// Push delivers payload to every open connection of userID. With redis
// configured the payload goes through pub/sub so that every API instance,
// this one included, delivers to its own clients exactly once; without redis
// it is delivered locally. Implements content.Pusher.
func (h *Hub) Push(userID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(userID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
		return
	}
	h.deliverLocal(userID, payload)
}

func (h *Hub) deliverLocal(userID string, payload []byte) {
	// sends are non-blocking, so holding the read lock for the whole loop is
	// fine and keeps Unregister from closing a channel mid-delivery
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "notifications:*:push")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		userID := userIDFromChannel(msg.Channel)
		h.deliverLocal(userID, []byte(msg.Payload))
	}
}

func redisChannel(userID string) string {
	return "notifications:" + userID + ":push"
}

func userIDFromChannel(ch string) string {
	// notifications:{user}:push
	const prefix = "notifications:"
	const suffix = ":push"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
