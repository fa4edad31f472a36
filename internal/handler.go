package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/koopa0/battleship-server/internal/game"
)

// API 設計：
//   動作走 REST（建房、加入、佈陣、射擊、查詢狀態），
//   異步事件走 WebSocket（對手動作、回合切換、終局）。
//   請求 / 回應的因果清晰，事件的推送即時。
//
// 錯誤分類（HTTP 狀態碼即錯誤類別）：
//   400 - 驗證失敗：參數本身不合法（座標越界、艦隊不完整、重複射擊）
//   404 - 找不到：房間碼或玩家會話不存在
//   409 - 協議違規：參數合法但時機不對（非你的回合、階段不符、房間已滿）
//   500 - 內部不變量被破壞（panic 由 recoverer 捕獲）

// Handler HTTP 處理器
type Handler struct {
	manager *Manager
	hub     *WebSocketHub
	logger  *slog.Logger
}

// NewHandler 創建處理器
func NewHandler(manager *Manager, hub *WebSocketHub, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		hub:     hub,
		logger:  logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// 對局操作 API
	mux.HandleFunc("POST /api/v1/rooms/create", wrap(h.createRoom))
	mux.HandleFunc("POST /api/v1/rooms/{code}/join", wrap(h.joinRoom))
	mux.HandleFunc("POST /api/v1/rooms/{code}/placement", wrap(h.submitPlacement))
	mux.HandleFunc("POST /api/v1/rooms/{code}/fire", wrap(h.fire))
	mux.HandleFunc("GET /api/v1/rooms/{code}/state", wrap(h.getState))

	// WebSocket 事件推送
	// 升級需要劫持底層連線，不套狀態碼包裝器
	mux.HandleFunc("GET /ws/rooms/{code}", h.recoverer(h.hub.ServeWS))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// 請求結構
type createRoomRequest struct {
	PlayerID string   `json:"player_id"`
	Mode     GameMode `json:"mode,omitempty"`
}

type joinRoomRequest struct {
	PlayerID string `json:"player_id"`
}

type placementRequest struct {
	PlayerID string          `json:"player_id"`
	Ships    []PlacementSpec `json:"ships"`
}

type fireRequest struct {
	PlayerID string `json:"player_id"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
}

// createRoom 創建房間
func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "無效的請求格式")
		return
	}

	if req.PlayerID == "" {
		h.errorResponse(w, http.StatusBadRequest, "玩家 ID 不能為空")
		return
	}

	room, err := h.manager.CreateRoom(req.PlayerID, req.Mode)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("房間創建成功",
		"room_code", room.Code,
		"mode", room.Mode,
		"player_id", req.PlayerID)

	h.jsonResponse(w, http.StatusCreated, map[string]any{
		"room_code": room.Code,
		"mode":      room.Mode,
		"phase":     room.Phase(),
	})
}

// joinRoom 加入房間
func (h *Handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "無效的請求格式")
		return
	}

	if req.PlayerID == "" {
		h.errorResponse(w, http.StatusBadRequest, "玩家 ID 不能為空")
		return
	}

	room, err := h.manager.JoinRoom(code, req.PlayerID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("玩家加入房間",
		"room_code", room.Code,
		"player_id", req.PlayerID)

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"room_code": room.Code,
		"mode":      room.Mode,
		"phase":     room.Phase(),
	})
}

// submitPlacement 提交佈陣
//
// 佈陣是原子操作：五艘船全部通過驗證才生效，
// 任何一艘失敗則整份佈陣被拒絕、棋盤保持原狀。
func (h *Handler) submitPlacement(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	var req placementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "無效的請求格式")
		return
	}

	if req.PlayerID == "" {
		h.errorResponse(w, http.StatusBadRequest, "玩家 ID 不能為空")
		return
	}

	room, err := h.requireMember(w, code, req.PlayerID)
	if err != nil {
		return
	}

	if _, err := h.manager.SubmitPlacement(req.PlayerID, req.Ships); err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("佈陣完成",
		"room_code", room.Code,
		"player_id", req.PlayerID,
		"phase", room.Phase())

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"room_code": room.Code,
		"phase":     room.Phase(),
	})
}

// fire 射擊
func (h *Handler) fire(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	var req fireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "無效的請求格式")
		return
	}

	if req.PlayerID == "" {
		h.errorResponse(w, http.StatusBadRequest, "玩家 ID 不能為空")
		return
	}

	if _, err := h.requireMember(w, code, req.PlayerID); err != nil {
		return
	}

	_, report, err := h.manager.Fire(req.PlayerID, req.Row, req.Col)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response := map[string]any{
		"row":      report.Result.Row,
		"col":      report.Result.Col,
		"outcome":  report.Result.Outcome,
		"sunk":     report.Result.Sunk,
		"finished": report.Finished,
	}
	if report.Result.Sunk {
		response["kind"] = report.Result.Kind
	}
	if report.Finished {
		response["winner"] = report.Winner
	} else {
		response["turn_holder"] = report.TurnHolder
	}

	h.jsonResponse(w, http.StatusOK, response)
}

// getState 查詢房間狀態
//
// 只回傳請求者自己視角的快照；對手的船艦位置
// 在任何查詢路徑上都不存在。
func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		h.errorResponse(w, http.StatusBadRequest, "玩家 ID 不能為空")
		return
	}

	room, err := h.manager.GetRoom(code)
	if err != nil {
		h.handleError(w, err)
		return
	}

	snapshot, err := room.Snapshot(playerID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, snapshot)
}

// requireMember 確認玩家屬於指定房間
func (h *Handler) requireMember(w http.ResponseWriter, code, playerID string) (*Room, error) {
	room, err := h.manager.GetRoom(code)
	if err != nil {
		h.handleError(w, err)
		return nil, err
	}
	got, err := h.manager.RoomOf(playerID)
	if err != nil || got != room {
		h.errorResponse(w, http.StatusNotFound, "玩家不在此房間中")
		return nil, ErrNotInRoom
	}
	return room, nil
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"active_rooms": h.manager.ActiveRooms(),
		"connections":  h.hub.ConnectionCount(),
		"timestamp":    time.Now().Unix(),
	})
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.manager.Stats()
	stats["connections"] = h.hub.ConnectionCount()
	h.jsonResponse(w, http.StatusOK, stats)
}

// handleError 將領域錯誤映射為 HTTP 狀態碼
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	var placementErr *game.PlacementError

	switch {
	case IsNotFound(err):
		h.errorResponse(w, http.StatusNotFound, err.Error())
	case IsProtocolViolation(err):
		h.errorResponse(w, http.StatusConflict, err.Error())
	case errors.As(err, &placementErr),
		errors.Is(err, ErrInvalidFleet),
		errors.Is(err, ErrInvalidCoordinate),
		errors.Is(err, ErrAlreadyFired):
		h.errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("未分類的錯誤", "error", err)
		h.errorResponse(w, http.StatusBadRequest, err.Error())
	}
}

// jsonResponse 發送 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼響應失敗", "error", err)
	}
}

// errorResponse 發送錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]any{
		"error":  message,
		"status": status,
	})
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr)
	}
}

// recoverer 恐慌恢復中間件
//
// 內部不變量被破壞時以 panic 快速失敗，
// 由這裡攔截成 500，不讓單一請求拖垮整個進程。
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("處理請求時發生恐慌",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path)
				h.errorResponse(w, http.StatusInternalServerError, "內部伺服器錯誤")
			}
		}()
		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
