package websocket

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	domainInstance "github.com/AzielCF/az-wacrm/domains/instance"
	"github.com/AzielCF/az-wacrm/infrastructure/valkey"
)

const (
	CodeConnectionStatus = "CONNECTION_STATUS"
	CodeFetchStatus      = "FETCH_STATUS"

	broadcastChannel = "wacrm:ws_broadcast"
)

type BroadcastMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Result   any    `json:"result"`
	SenderID string `json:"sender_id,omitempty"`
}

// conn is the part of *websocket.Conn the hub writes to.
type conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub fans status messages out to every connected browser. With a valkey
// client, messages are also relayed to the other servers behind the balancer.
type Hub struct {
	clients    map[conn]struct{}
	register   chan conn
	unregister chan conn
	broadcast  chan BroadcastMessage
	remote     chan BroadcastMessage
	done       chan struct{}
	vkClient   *valkey.Client
	serverID   string
}

func NewHub(vkClient *valkey.Client, serverID string) *Hub {
	return &Hub{
		clients:    make(map[conn]struct{}),
		register:   make(chan conn),
		unregister: make(chan conn),
		broadcast:  make(chan BroadcastMessage, 64),
		remote:     make(chan BroadcastMessage, 64),
		done:       make(chan struct{}),
		vkClient:   vkClient,
		serverID:   serverID,
	}
}

// Run owns the client set until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	if h.vkClient != nil {
		go h.subscribe(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				h.closeConnection(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			logrus.Debug("[WS] Connection registered")
		case c := <-h.unregister:
			delete(h.clients, c)
			logrus.Debug("[WS] Connection unregistered")
		case message := <-h.broadcast:
			h.broadcastToLocal(message)
			h.publishToValkey(ctx, message)
		case message := <-h.remote:
			h.broadcastToLocal(message)
		}
	}
}

// Broadcast queues message for every client. A full queue drops it; the next
// status change carries the full state anyway.
func (h *Hub) Broadcast(message BroadcastMessage) {
	select {
	case h.broadcast <- message:
	default:
		logrus.Warnf("[WS] Broadcast queue full, dropping %s", message.Code)
	}
}

func (h *Hub) BroadcastStatus(status domainInstance.StatusResponse) {
	h.Broadcast(BroadcastMessage{
		Code:    CodeConnectionStatus,
		Message: status.Message,
		Result:  status,
	})
}

func (h *Hub) broadcastToLocal(message BroadcastMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			h.closeConnection(c)
		}
	}
}

func (h *Hub) publishToValkey(ctx context.Context, message BroadcastMessage) {
	if h.vkClient == nil {
		return
	}
	message.SenderID = h.serverID

	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	if err := h.vkClient.Publish(ctx, broadcastChannel, string(data)); err != nil {
		logrus.Errorf("[WS] Failed to publish to Valkey: %v", err)
	}
}

func (h *Hub) subscribe(ctx context.Context) {
	logrus.Info("[WS] Starting Valkey Pub/Sub subscriber for distributed events")
	err := h.vkClient.Subscribe(ctx, broadcastChannel, func(payload string) {
		var message BroadcastMessage
		if err := json.Unmarshal([]byte(payload), &message); err != nil {
			return
		}
		// Our own publications come back through the channel too.
		if message.SenderID == h.serverID {
			return
		}
		select {
		case h.remote <- message:
		default:
		}
	})
	if err != nil && ctx.Err() == nil {
		logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
	}
}

func (h *Hub) closeConnection(c conn) {
	_ = c.WriteMessage(websocket.CloseMessage, []byte{})
	_ = c.Close()
	delete(h.clients, c)
}

// RegisterRoutes mounts /ws on router. New connections get the current status
// right away and may ask for it again with FETCH_STATUS.
func RegisterRoutes(router fiber.Router, hub *Hub, service domainInstance.IInstanceUsecase) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	router.Get("/ws", websocket.New(func(c *websocket.Conn) {
		defer func() {
			select {
			case hub.unregister <- c:
			case <-hub.done:
			}
			_ = c.Close()
		}()
		select {
		case hub.register <- c:
		case <-hub.done:
			return
		}

		sendStatus := func() {
			status, err := service.GetStatus(context.Background(), "")
			if err != nil {
				logrus.Warnf("[WS] status lookup failed: %v", err)
				return
			}
			hub.BroadcastStatus(status)
		}
		sendStatus()

		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("[WS] read error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}

			var request BroadcastMessage
			if err := json.Unmarshal(message, &request); err != nil {
				logrus.Debugf("[WS] unmarshal error: %v", err)
				continue
			}
			if request.Code == CodeFetchStatus {
				sendStatus()
			}
		}
	}))
}
