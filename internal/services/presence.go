package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type PresenceMessage struct {
	Type         string      `json:"type"`
	Data         interface{} `json:"data"`
	Tenant       string      `json:"tenant"`
	TechnicianID uint        `json:"technician_id"`
	Timestamp    time.Time   `json:"timestamp"`
}

type PresenceClient struct {
	ID           string
	Tenant       string
	TechnicianID uint
	Conn         *websocket.Conn
	Send         chan PresenceMessage
	Hub          *PresenceHub
}

// PresenceHub tracks which technicians keep a live console connection,
// grouped by tenant. Duty rosters read it to show who is reachable.
type PresenceHub struct {
	clients    map[string]*PresenceClient
	broadcast  chan PresenceMessage
	register   chan *PresenceClient
	unregister chan *PresenceClient
	mutex      sync.RWMutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

func NewPresenceHub() *PresenceHub {
	return &PresenceHub{
		clients:    make(map[string]*PresenceClient),
		broadcast:  make(chan PresenceMessage),
		register:   make(chan *PresenceClient),
		unregister: make(chan *PresenceClient),
	}
}

func (h *PresenceHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			logrus.Infof("Technician %d (%s) connected", client.TechnicianID, client.Tenant)
			h.announce(client, "technician-online")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				logrus.Infof("Technician %d (%s) disconnected", client.TechnicianID, client.Tenant)
			}
			h.mutex.Unlock()
			h.announce(client, "technician-offline")

		case message := <-h.broadcast:
			// 慢客户端会在这里被摘除，必须持写锁
			h.mutex.Lock()
			for _, client := range h.clients {
				if message.Tenant == "" || client.Tenant == message.Tenant {
					select {
					case client.Send <- message:
					default:
						close(client.Send)
						delete(h.clients, client.ID)
					}
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *PresenceHub) announce(client *PresenceClient, event string) {
	go func() {
		h.broadcast <- PresenceMessage{
			Type:         event,
			Tenant:       client.Tenant,
			TechnicianID: client.TechnicianID,
			Timestamp:    time.Now(),
		}
	}()
}

func (h *PresenceHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Error("WebSocket upgrade failed:", err)
		return
	}

	tenant := c.Query("tenant")
	techID, _ := strconv.ParseUint(c.Query("technician_id"), 10, 64)

	client := &PresenceClient{
		ID:           fmt.Sprintf("presence_%d", time.Now().UnixNano()),
		Tenant:       tenant,
		TechnicianID: uint(techID),
		Conn:         conn,
		Send:         make(chan PresenceMessage, 256),
		Hub:          h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *PresenceClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error: %v", err)
			}
			break
		}

		var message PresenceMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			logrus.Error("Invalid message format:", err)
			continue
		}

		message.Tenant = c.Tenant
		message.TechnicianID = c.TechnicianID
		message.Timestamp = time.Now()

		switch message.Type {
		case "heartbeat":
			// 保持在线状态，无需转发
		default:
			c.Hub.broadcast <- message
		}
	}
}

func (c *PresenceClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				logrus.Error("WriteJSON error:", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// OnlineTechnicians returns the ids of technicians holding a live
// connection for the tenant, deduplicated.
func (h *PresenceHub) OnlineTechnicians(tenant string) []uint {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	seen := make(map[uint]bool)
	var ids []uint
	for _, client := range h.clients {
		if client.Tenant != tenant || client.TechnicianID == 0 {
			continue
		}
		if !seen[client.TechnicianID] {
			seen[client.TechnicianID] = true
			ids = append(ids, client.TechnicianID)
		}
	}
	return ids
}

func (h *PresenceHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
