package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/infrastructure/notify"
	"github.com/AzielCF/az-compare/infrastructure/valkey"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type client struct{}

type BroadcastMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Result   any    `json:"result"`
	SenderID string `json:"sender_id,omitempty"`
}

var (
	Clients    = make(map[*websocket.Conn]client)
	Register   = make(chan *websocket.Conn)
	Broadcast  = make(chan BroadcastMessage, 64)
	Unregister = make(chan *websocket.Conn)

	vkClient *valkey.Client
	localID  string
)

// SetValkeyClient relays events published by other processes to local clients.
func SetValkeyClient(client *valkey.Client, serverID string) {
	vkClient = client
	localID = serverID
}

// Sink forwards engine events to connected clients without blocking.
type Sink struct{}

func (Sink) Publish(e domainReconcile.Event) {
	select {
	case Broadcast <- eventMessage(e):
	default:
		logrus.Debug("[WS] Broadcast buffer full, dropping event")
	}
}

func eventMessage(e domainReconcile.Event) BroadcastMessage {
	return BroadcastMessage{
		Code:    string(e.Type),
		Message: e.Message,
		Result:  e,
	}
}

func handleRegister(conn *websocket.Conn) {
	Clients[conn] = client{}
	logrus.Debug("[WS] Connection registered")
}

func handleUnregister(conn *websocket.Conn) {
	delete(Clients, conn)
	logrus.Debug("[WS] Connection unregistered")
}

func broadcastToLocal(message BroadcastMessage) {
	marshalMessage, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for conn := range Clients {
		if err := conn.WriteMessage(websocket.TextMessage, marshalMessage); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			closeConnection(conn)
		}
	}
}

func startValkeySubscriber(ctx context.Context) {
	channel := vkClient.Channel(notify.EventsChannel)
	logrus.Infof("[WS] Relaying events from Valkey channel %s", channel)
	go func() {
		for {
			err := vkClient.Subscribe(ctx, channel, func(message string) {
				var env notify.Envelope
				if err := json.Unmarshal([]byte(message), &env); err != nil {
					logrus.Debugf("[WS] Ignoring malformed event: %v", err)
					return
				}
				// Events from this process already reached local clients.
				if env.SenderID == localID {
					return
				}
				msg := eventMessage(env.Event)
				msg.SenderID = env.SenderID
				select {
				case Broadcast <- msg:
				default:
				}
			})
			if ctx.Err() != nil {
				return
			}
			logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}()
}

func closeConnection(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(Clients, conn)
}

func RunHub(ctx context.Context) {
	if vkClient != nil {
		startValkeySubscriber(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for conn := range Clients {
				closeConnection(conn)
			}
			return

		case conn := <-Register:
			handleRegister(conn)

		case conn := <-Unregister:
			handleUnregister(conn)

		case message := <-Broadcast:
			broadcastToLocal(message)
		}
	}
}

// RegisterRoutes serves the event stream. Clients may send FETCH_SESSION or
// RESCAN; service is nil when no document is being watched.
func RegisterRoutes(app fiber.Router, service domainReconcile.IReconcileUsecase) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		defer func() {
			Unregister <- conn
			_ = conn.Close()
		}()

		Register <- conn

		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("[WS] Read error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				logrus.Debugf("[WS] Unsupported message type: %d", messageType)
				continue
			}

			var request BroadcastMessage
			if err := json.Unmarshal(message, &request); err != nil {
				logrus.Debugf("[WS] Unmarshal error: %v", err)
				return
			}
			handleRequest(request, service)
		}
	}))
}

func handleRequest(request BroadcastMessage, service domainReconcile.IReconcileUsecase) {
	if service == nil {
		Broadcast <- BroadcastMessage{Code: "NO_DOCUMENT", Message: "no document is being watched"}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch request.Code {
	case "FETCH_SESSION":
		snap, err := service.Snapshot(ctx)
		if err != nil {
			logrus.Warnf("[WS] Snapshot failed: %v", err)
			return
		}
		Broadcast <- BroadcastMessage{Code: "SESSION", Message: "Session snapshot", Result: snap}
	case "RESCAN":
		if err := service.Rescan(ctx); err != nil {
			logrus.Warnf("[WS] Rescan failed: %v", err)
		}
	}
}
