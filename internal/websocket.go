package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把房間事件即時推送給正確的玩家，並以連線狀態驅動
//   斷線 / 重連的生命週期？
//
// 核心挑戰：
//   1. 定向投遞：射擊結果與重連快照只能給單一玩家，不能廣播
//   2. 連線即會話：WebSocket 斷開就是 disconnect()，重開就是 reconnect()
//   3. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   4. 並發廣播：同時向多個客戶端發送訊息而不阻塞房間操作
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連線（roomCode → playerID → Connection）
//   ✅ 每房間事件泵 - 專職 goroutine 排空房間事件通道，即時投遞
//   ✅ Ping/Pong 心跳 - 54s/60s 檢測死連接
//   ✅ 緩衝 channel - 異步發送，慢客戶端不拖累房間

// WebSocketHub WebSocket 連接中心
type WebSocketHub struct {
	manager     *Manager
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[string]map[string]*Connection // roomCode -> playerID -> Connection
	pumping     map[string]bool                   // roomCode -> 事件泵已啟動
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// Connection WebSocket 連接
type Connection struct {
	PlayerID  string
	RoomCode  string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *WebSocketHub
	LastPing  time.Time
	mu        sync.Mutex
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(manager *Manager, logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]map[string]*Connection),
		pumping:     make(map[string]bool),
	}
}

// ServeWS 處理 WebSocket 連接
//
// 連線本身就是會話存活訊號：升級成功後向管理器回報連線
// （首次連線與重連走同一條路，重連會拿到狀態快照並取消
// 未決的棄權計時器）；讀取迴圈結束則回報斷線。
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		http.Error(w, "缺少房間碼", http.StatusBadRequest)
		return
	}

	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		http.Error(w, "缺少玩家 ID", http.StatusBadRequest)
		return
	}

	room, err := hub.manager.GetRoom(code)
	if err != nil {
		http.Error(w, "房間不存在", http.StatusNotFound)
		return
	}
	if !room.HasSession(playerID) {
		http.Error(w, "玩家不在房間中", http.StatusForbidden)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		PlayerID: playerID,
		RoomCode: room.Code,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Hub:      hub,
		LastPing: time.Now(),
	}

	// 先註冊（必要時啟動事件泵），快照事件才不會漏接
	hub.register(connection, room)

	go connection.writePump()
	go connection.readPump()

	if err := hub.manager.ResumeSession(playerID, room.Code); err != nil {
		hub.logger.Error("恢復會話失敗",
			"error", err,
			"room_code", room.Code,
			"player_id", playerID)
	}

	hub.logger.Info("WebSocket 連接建立",
		"room_code", room.Code,
		"player_id", playerID)
}

// register 註冊連接，房間的第一條連線順帶啟動事件泵
func (hub *WebSocketHub) register(conn *Connection, room *Room) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.connections[conn.RoomCode] == nil {
		hub.connections[conn.RoomCode] = make(map[string]*Connection)
	}

	// 同一玩家的新連線取代舊連線
	if oldConn, exists := hub.connections[conn.RoomCode][conn.PlayerID]; exists {
		oldConn.closeOnce.Do(func() {
			close(oldConn.Send)
		})
		oldConn.Conn.Close()
	}

	hub.connections[conn.RoomCode][conn.PlayerID] = conn

	if !hub.pumping[conn.RoomCode] {
		hub.pumping[conn.RoomCode] = true
		hub.wg.Add(1)
		go hub.pumpRoomEvents(conn.RoomCode, room.Events())
	}
}

// unregister 取消註冊連接
//
// 回傳此連線是否仍是該玩家的當前連線（被新連線取代的舊連線
// 斷開時不應觸發斷線處理）。
func (hub *WebSocketHub) unregister(conn *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	roomConns, exists := hub.connections[conn.RoomCode]
	if !exists {
		return false
	}
	current, exists := roomConns[conn.PlayerID]
	if !exists || current != conn {
		return false
	}

	delete(roomConns, conn.PlayerID)
	conn.closeOnce.Do(func() {
		close(conn.Send)
	})

	if len(roomConns) == 0 {
		delete(hub.connections, conn.RoomCode)
	}
	return true
}

// pumpRoomEvents 房間事件泵
//
// 專職排空單一房間的事件通道並投遞；回合制對局的事件
// 必須即時送達，不能靠定期輪詢。通道關閉（房間拆除）時結束。
func (hub *WebSocketHub) pumpRoomEvents(code string, events <-chan Event) {
	defer hub.wg.Done()
	defer func() {
		hub.mu.Lock()
		delete(hub.pumping, code)
		hub.mu.Unlock()
	}()

	for event := range events {
		message, err := json.Marshal(event)
		if err != nil {
			hub.logger.Error("序列化事件失敗", "error", err, "event", event.Type)
			continue
		}

		if event.To == "" {
			hub.broadcast(code, message)
		} else {
			hub.sendTo(code, event.To, message)
		}
	}
}

// broadcast 廣播訊息到房間內所有連線
func (hub *WebSocketHub) broadcast(code string, message []byte) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, conn := range hub.connections[code] {
		select {
		case conn.Send <- message:
		default:
			hub.logger.Warn("連接緩衝區滿",
				"room_code", code,
				"player_id", conn.PlayerID)
		}
	}
}

// sendTo 投遞訊息給房間內的單一玩家
func (hub *WebSocketHub) sendTo(code, playerID string, message []byte) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	conn, exists := hub.connections[code][playerID]
	if !exists {
		return
	}
	select {
	case conn.Send <- message:
	default:
		hub.logger.Warn("連接緩衝區滿",
			"room_code", code,
			"player_id", playerID)
	}
}

// Stop 停止 WebSocket Hub
//
// 管理器先 Stop（關閉所有房間的事件通道），事件泵才會收斂。
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	for _, roomConns := range hub.connections {
		for _, conn := range roomConns {
			conn.closeOnce.Do(func() {
				close(conn.Send)
			})
			conn.Conn.Close()
		}
	}
	hub.connections = make(map[string]map[string]*Connection)
	hub.mu.Unlock()

	hub.wg.Wait()
	hub.logger.Info("WebSocket Hub 已停止")
}

// ConnectionCount 目前連線數（統計用）
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	total := 0
	for _, conns := range hub.connections {
		total += len(conns)
	}
	return total
}

// readPump 讀取客戶端消息
//
// 心跳機制（讀取端）：60 秒內沒有任何訊息（包括 Pong）就關閉連接，
// 配合 writePump 的 54 秒 Ping（留 6 秒餘量）。
// 讀取迴圈結束就是斷線訊號：觸發管理器的寬限期流程。
func (c *Connection) readPump() {
	defer func() {
		wasCurrent := c.Hub.unregister(c)
		c.Conn.Close()
		if wasCurrent {
			c.Hub.manager.HandleDisconnect(c.PlayerID)
		}
	}()

	if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"room_code", c.RoomCode,
					"player_id", c.PlayerID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

// writePump 寫入消息到客戶端
//
// 心跳機制（發送端）：54 秒 Ping 間隔避開常見的 60 秒代理超時。
// 異步發送：Send channel 緩衝訊息，房間操作不被慢客戶端阻塞。
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				deadline := time.Now().Add(time.Second)
				if err := c.Conn.SetWriteDeadline(deadline); err == nil {
					_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					c.Hub.logger.Error("發送消息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 處理客戶端消息
//
// 動作類請求走 REST API；這裡只處理應用層 ping。
func (c *Connection) handleMessage(message []byte) {
	var msg map[string]any
	if err := json.Unmarshal(message, &msg); err != nil {
		c.Hub.logger.Error("解析客戶端消息失敗",
			"error", err,
			"room_code", c.RoomCode,
			"player_id", c.PlayerID)
		return
	}

	if msgType, ok := msg["type"].(string); ok {
		switch msgType {
		case "ping":
			response, _ := json.Marshal(map[string]string{"type": "pong"})
			select {
			case c.Send <- response:
			default:
			}
		default:
			c.Hub.logger.Debug("收到未知消息類型",
				"type", msgType,
				"room_code", c.RoomCode,
				"player_id", c.PlayerID)
		}
	}
}
