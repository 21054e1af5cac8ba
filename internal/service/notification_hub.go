package service

import (
	"context"
	"edu_library_backend/pkg/logger"
	"edu_library_backend/pkg/monitoring"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	shardCount     = 32
	onlineTTL      = 2 * time.Minute

	notifyChannel = "library_notify_channel"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage 下行推送载荷
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Client struct {
	Hub     *NotificationHub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  uint
	Limiter *rate.Limiter
}

// readPump 通知通道是单向下行的，读循环只负责消费控制帧和探测断连
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			break
		}
		if !c.Limiter.Allow() {
			continue
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if n := len(c.Send); n > 0 {
				for i := 0; i < n; i++ {
					w.Write(<-c.Send)
				}
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type shard struct {
	clients map[uint]*Client
	mu      sync.RWMutex
}

// NotificationHub 站内实时通知推送。分片保存本地连接，
// 跨实例投递走 Redis PubSub，在线状态在 Redis 里带 TTL 续期
type NotificationHub struct {
	shards     [shardCount]*shard
	register   chan *Client
	unregister chan *Client
	Redis      *redis.Client
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewNotificationHub(rdb *redis.Client) *NotificationHub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &NotificationHub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		Redis:      rdb,
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{
			clients: make(map[uint]*Client),
		}
	}
	return h
}

func (h *NotificationHub) getShard(userID uint) *shard {
	return h.shards[userID%shardCount]
}

type pubSubMessage struct {
	TargetUsers []uint          `json:"targetUsers"`
	Payload     json.RawMessage `json:"payload"`
}

func (h *NotificationHub) Run() {
	pubsub := h.Redis.Subscribe(h.ctx, notifyChannel)
	go func() {
		ch := pubsub.Channel()
		for msg := range ch {
			var psMsg pubSubMessage
			if err := json.Unmarshal([]byte(msg.Payload), &psMsg); err != nil {
				logger.Log.Error("PubSub unmarshal error", zap.Error(err))
				continue
			}
			h.pushToLocalUsers(psMsg.TargetUsers, psMsg.Payload)
		}
	}()

	heartbeatTicker := time.NewTicker(time.Minute)
	defer heartbeatTicker.Stop()

	for {
		select {
		case client := <-h.register:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			if old, ok := s.clients[client.UserID]; ok {
				close(old.Send)
			}
			s.clients[client.UserID] = client
			s.mu.Unlock()
			h.Redis.Set(h.ctx, h.onlineKey(client.UserID), "true", onlineTTL)

		case client := <-h.unregister:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			if current, ok := s.clients[client.UserID]; ok && current == client {
				close(client.Send)
				delete(s.clients, client.UserID)
				h.Redis.Del(h.ctx, h.onlineKey(client.UserID))
			}
			s.mu.Unlock()

		case <-heartbeatTicker.C:
			h.refreshOnlineStatus()

		case <-h.ctx.Done():
			pubsub.Close()
			return
		}
	}
}

func (h *NotificationHub) onlineKey(userID uint) string {
	return fmt.Sprintf("user:online:%d", userID)
}

// refreshOnlineStatus 为仍在线的连接续期 Redis 标记
func (h *NotificationHub) refreshOnlineStatus() {
	pipe := h.Redis.Pipeline()
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.RLock()
		for userID := range s.clients {
			pipe.Expire(h.ctx, h.onlineKey(userID), onlineTTL)
		}
		s.mu.RUnlock()
	}
	if _, err := pipe.Exec(h.ctx); err != nil && err != redis.Nil {
		logger.Log.Error("online status refresh failed", zap.Error(err))
	}
}

// Stop 关闭所有连接并清理在线状态
func (h *NotificationHub) Stop() {
	h.cancel()

	var allUserIDs []uint
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.Lock()
		for userID, client := range s.clients {
			allUserIDs = append(allUserIDs, userID)
			close(client.Send)
			delete(s.clients, userID)
		}
		s.mu.Unlock()
	}

	if len(allUserIDs) > 0 {
		pipe := h.Redis.Pipeline()
		for _, userID := range allUserIDs {
			pipe.Del(context.Background(), h.onlineKey(userID))
		}
		pipe.Exec(context.Background())
	}

	logger.Log.Info("NotificationHub stopped", zap.Int("closedConnections", len(allUserIDs)))
}

// PushToUser 经 PubSub 广播，本实例和其它实例都会尝试投递
func (h *NotificationHub) PushToUser(userID uint, msg WSMessage) {
	msgBytes, _ := json.Marshal(msg)
	psMsg := pubSubMessage{
		TargetUsers: []uint{userID},
		Payload:     msgBytes,
	}
	payload, _ := json.Marshal(psMsg)
	if err := h.Redis.Publish(h.ctx, notifyChannel, payload).Err(); err != nil {
		logger.Log.Error("notify publish failed", zap.Error(err), zap.Uint("userId", userID))
		monitoring.NotificationCounter.WithLabelValues("websocket", "error").Inc()
		return
	}
	monitoring.NotificationCounter.WithLabelValues("websocket", "ok").Inc()
}

func (h *NotificationHub) pushToLocalUsers(userIDs []uint, payload []byte) {
	for _, id := range userIDs {
		s := h.getShard(id)
		s.mu.RLock()
		if client, ok := s.clients[id]; ok {
			select {
			case client.Send <- payload:
			default:
			}
		}
		s.mu.RUnlock()
	}
}

func (h *NotificationHub) IsUserOnline(userID uint) bool {
	s := h.getShard(userID)
	s.mu.RLock()
	_, ok := s.clients[userID]
	s.mu.RUnlock()
	if ok {
		return true
	}

	// 多实例部署时查 Redis
	val, err := h.Redis.Get(h.ctx, h.onlineKey(userID)).Result()
	return err == nil && val == "true"
}

func ServeWs(hub *NotificationHub, w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &Client{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 64),
		UserID:  userID,
		Limiter: rate.NewLimiter(rate.Limit(30), 50),
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}
