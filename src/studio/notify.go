package studio

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"imagestudio-server-go/src/core/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var notifyUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// notifyHub 按客户端ID维护WebSocket连接，推送异步任务结果
type notifyHub struct {
	logger *utils.Logger
	conns  map[string][]*websocket.Conn
	mu     sync.Mutex
}

func newNotifyHub(logger *utils.Logger) *notifyHub {
	return &notifyHub{
		logger: logger,
		conns:  make(map[string][]*websocket.Conn),
	}
}

// handleNotify 升级为WebSocket连接并注册到hub
func (s *DefaultStudioService) handleNotify(c *gin.Context) {
	clientID := c.Query("client_id")
	if s.config.Server.Auth.Enabled {
		token := c.Query("token")
		isValid, tokenClientID, err := s.authToken.VerifyToken(token)
		if err != nil || !isValid {
			s.respondError(c, http.StatusUnauthorized, "无效的认证token或token已过期")
			return
		}
		clientID = tokenClientID
	}
	if clientID == "" {
		clientID = "anonymous"
	}

	conn, err := notifyUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("WebSocket升级失败: %v", err))
		return
	}

	s.hub.register(clientID, conn)
	s.logger.Info("WebSocket连接已建立 client=%s", clientID)

	// 读循环只用于感知断开
	go func() {
		defer s.hub.unregister(clientID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *notifyHub) register(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[clientID] = append(h.conns[clientID], conn)
}

func (h *notifyHub) unregister(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[clientID]
	for i, c := range conns {
		if c == conn {
			h.conns[clientID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[clientID]) == 0 {
		delete(h.conns, clientID)
	}
	conn.Close()
}

// Push 向客户端的所有连接推送一条通知，失败的连接被移除
func (h *notifyHub) Push(clientID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("通知序列化失败: %v", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.conns[clientID]
	alive := conns[:0]
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			continue
		}
		alive = append(alive, conn)
	}
	if len(alive) == 0 {
		delete(h.conns, clientID)
	} else {
		h.conns[clientID] = alive
	}
}

// Close 关闭所有连接
func (h *notifyHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.conns {
		for _, conn := range conns {
			conn.Close()
		}
	}
	h.conns = make(map[string][]*websocket.Conn)
}
