package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/domain"
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}

			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeEmailSent     MessageType = "email_sent"
	MessageTypeKeyRegistered MessageType = "public_key_registered"
	MessageTypePing          MessageType = "ping"
	MessageTypePong          MessageType = "pong"
	MessageTypeSubscribe     MessageType = "subscribe"
	MessageTypeUnsubscribe   MessageType = "unsubscribe"
	MessageTypeSubscribed    MessageType = "subscribed"
	MessageTypeError         MessageType = "error"
)

// Message 定义WebSocket消息结构
//
// 账本事件本身就是公开元数据，订阅不做身份认证，正文仍是
// 只有私钥持有者能解开的密文。
type Message struct {
	Type      MessageType     `json:"type"`
	Account   string          `json:"account,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	accounts map[domain.Address]bool // 订阅的账户地址
	mu       sync.RWMutex
	log      *zap.Logger
}

// Hub 管理所有WebSocket连接
type Hub struct {
	clients        map[string]*Client                     // clientID -> Client
	accounts       map[domain.Address]map[string]*Client  // account -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	Account domain.Address
	Message *Message
}

// NewHub 创建WebSocket Hub
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return &Hub{
		clients:        make(map[string]*Client),
		accounts:       make(map[domain.Address]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
	}
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for account := range client.accounts {
					if clients, exists := h.accounts[account]; exists {
						delete(clients, client.ID)
						if len(clients) == 0 {
							delete(h.accounts, account)
						}
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToAccount(msg.Account, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// EmailEventData 新邮件事件通知数据
type EmailEventData struct {
	EmailID        uint64 `json:"emailId"`
	Sender         string `json:"sender"`
	Recipient      string `json:"recipient"`
	ContentPointer string `json:"contentPointer"`
	Seq            uint64 `json:"seq"`
	Timestamp      string `json:"timestamp"`
}

// KeyEventData 公钥注册事件通知数据
type KeyEventData struct {
	Account   string `json:"account"`
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"timestamp"`
}

// NotifyEvent 将账本事件推送给相关账户的订阅者
//
// email_sent 同时通知收件人和发件人，public_key_registered
// 通知注册账户自己的订阅者。
func (h *Hub) NotifyEvent(event *domain.Event) {
	switch event.Type {
	case domain.EventEmailSent:
		data, err := json.Marshal(EmailEventData{
			EmailID:        event.EmailID,
			Sender:         event.Sender.String(),
			Recipient:      event.Recipient.String(),
			ContentPointer: event.ContentPointer,
			Seq:            event.Seq,
			Timestamp:      event.Timestamp.Format(time.RFC3339),
		})
		if err != nil {
			h.log.Error("failed to marshal email event", zap.Error(err))
			return
		}

		msg := &Message{
			Type:      MessageTypeEmailSent,
			Data:      data,
			Timestamp: time.Now(),
		}

		h.broadcast <- &BroadcastMessage{Account: event.Recipient, Message: msg}
		if event.Sender != event.Recipient {
			h.broadcast <- &BroadcastMessage{Account: event.Sender, Message: msg}
		}

	case domain.EventPublicKeyRegistered:
		data, err := json.Marshal(KeyEventData{
			Account:   event.Account.String(),
			Seq:       event.Seq,
			Timestamp: event.Timestamp.Format(time.RFC3339),
		})
		if err != nil {
			h.log.Error("failed to marshal key event", zap.Error(err))
			return
		}

		h.broadcast <- &BroadcastMessage{
			Account: event.Account,
			Message: &Message{
				Type:      MessageTypeKeyRegistered,
				Data:      data,
				Timestamp: time.Now(),
			},
		}
	}
}

// broadcastToAccount 向订阅特定账户的客户端广播消息
func (h *Hub) broadcastToAccount(account domain.Address, msg *Message) {
	h.mu.RLock()
	clients := h.accounts[account]
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	msg := &Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.accounts = make(map[domain.Address]map[string]*Client)
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			conn:     conn,
			send:     make(chan []byte, 256),
			hub:      hub,
			accounts: make(map[domain.Address]bool),
			log:      hub.log,
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribeAccount(msg.Account)
	case MessageTypeUnsubscribe:
		c.unsubscribeAccount(msg.Account)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}

// subscribeAccount 订阅账户地址
func (c *Client) subscribeAccount(accountHex string) {
	account, err := domain.ParseAddress(accountHex)
	if err != nil {
		c.sendError("invalid account address")
		return
	}

	c.mu.Lock()
	c.accounts[account] = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	if c.hub.accounts[account] == nil {
		c.hub.accounts[account] = make(map[string]*Client)
	}
	c.hub.accounts[account][c.ID] = c
	c.hub.mu.Unlock()

	c.log.Info("subscribed to account",
		zap.String("clientID", c.ID),
		zap.String("account", account.String()))

	c.sendMessage(&Message{
		Type:      MessageTypeSubscribed,
		Account:   account.String(),
		Timestamp: time.Now(),
	})
}

// unsubscribeAccount 取消订阅账户地址
func (c *Client) unsubscribeAccount(accountHex string) {
	account, err := domain.ParseAddress(accountHex)
	if err != nil {
		c.sendError("invalid account address")
		return
	}

	c.mu.Lock()
	delete(c.accounts, account)
	c.mu.Unlock()

	c.hub.mu.Lock()
	if clients, exists := c.hub.accounts[account]; exists {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(c.hub.accounts, account)
		}
	}
	c.hub.mu.Unlock()

	c.log.Info("unsubscribed from account",
		zap.String("clientID", c.ID),
		zap.String("account", account.String()))
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
