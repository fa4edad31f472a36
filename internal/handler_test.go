package internal_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/battleship-server/internal"
	"github.com/koopa0/battleship-server/internal/game"
)

// newTestRoutes 組好一套完整的 HTTP 路由
func newTestRoutes(t *testing.T) http.Handler {
	t.Helper()
	logger := testLogger()
	manager := internal.NewManager(testConfig(), logger)
	t.Cleanup(manager.Stop)
	hub := internal.NewWebSocketHub(manager, logger)
	return internal.NewHandler(manager, hub, logger).Routes()
}

// doJSON 發送 JSON 請求並解析回應
func doJSON(t *testing.T, routes http.Handler, method, url string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

// fleetJSON validFleet 的 JSON 請求形式
func fleetJSON() []map[string]any {
	var ships []map[string]any
	for _, spec := range validFleet() {
		ships = append(ships, map[string]any{
			"kind":        spec.Kind,
			"row":         spec.Row,
			"col":         spec.Col,
			"orientation": spec.Orientation,
		})
	}
	return ships
}

// TestHandler_CreateRoom 測試創建房間 API
func TestHandler_CreateRoom(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:           "create versus room",
			requestBody:    map[string]any{"player_id": "alice"},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Len(t, resp["room_code"], 6)
				assert.Equal(t, "versus", resp["mode"])
				assert.Equal(t, "waiting", resp["phase"])
			},
		},
		{
			name:           "create solo room",
			requestBody:    map[string]any{"player_id": "bob", "mode": "solo"},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "solo", resp["mode"])
				// AI 已就位，直接進入佈陣
				assert.Equal(t, "placement", resp["phase"])
			},
		},
		{
			name:           "missing player id",
			requestBody:    map[string]any{"mode": "versus"},
			expectedStatus: http.StatusBadRequest,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Contains(t, resp["error"], "玩家 ID 不能為空")
			},
		},
		{
			name:           "malformed body",
			requestBody:    "not json at all",
			expectedStatus: http.StatusBadRequest,
			validate:       func(t *testing.T, resp map[string]any) {},
		},
	}

	routes := newTestRoutes(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := doJSON(t, routes, http.MethodPost, "/api/v1/rooms/create", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status)
			tt.validate(t, resp)
		})
	}
}

// TestHandler_JoinRoom 測試加入房間 API
func TestHandler_JoinRoom(t *testing.T) {
	routes := newTestRoutes(t)

	status, created := doJSON(t, routes, http.MethodPost, "/api/v1/rooms/create",
		map[string]any{"player_id": "alice"})
	require.Equal(t, http.StatusCreated, status)
	code := created["room_code"].(string)

	t.Run("join successfully", func(t *testing.T) {
		status, resp := doJSON(t, routes, http.MethodPost,
			fmt.Sprintf("/api/v1/rooms/%s/join", code),
			map[string]any{"player_id": "bob"})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "placement", resp["phase"])
	})

	t.Run("unknown room code", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodPost,
			"/api/v1/rooms/ZZZZ99/join",
			map[string]any{"player_id": "carol"})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("room full", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodPost,
			fmt.Sprintf("/api/v1/rooms/%s/join", code),
			map[string]any{"player_id": "carol"})
		assert.Equal(t, http.StatusConflict, status)
	})
}

// TestHandler_Placement 測試佈陣 API
func TestHandler_Placement(t *testing.T) {
	routes := newTestRoutes(t)

	_, created := doJSON(t, routes, http.MethodPost, "/api/v1/rooms/create",
		map[string]any{"player_id": "alice"})
	code := created["room_code"].(string)
	doJSON(t, routes, http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/join", code),
		map[string]any{"player_id": "bob"})

	placementURL := fmt.Sprintf("/api/v1/rooms/%s/placement", code)

	t.Run("incomplete fleet rejected", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodPost, placementURL,
			map[string]any{"player_id": "alice", "ships": fleetJSON()[:3]})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("overlapping fleet rejected", func(t *testing.T) {
		ships := fleetJSON()
		ships[1]["row"] = 0 // 與第一艘同列重疊
		status, resp := doJSON(t, routes, http.MethodPost, placementURL,
			map[string]any{"player_id": "alice", "ships": ships})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, resp["error"], "重疊")
	})

	t.Run("player not in room", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodPost, placementURL,
			map[string]any{"player_id": "ghost", "ships": fleetJSON()})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("valid placements reach battle", func(t *testing.T) {
		status, resp := doJSON(t, routes, http.MethodPost, placementURL,
			map[string]any{"player_id": "alice", "ships": fleetJSON()})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "placement", resp["phase"])

		status, resp = doJSON(t, routes, http.MethodPost, placementURL,
			map[string]any{"player_id": "bob", "ships": fleetJSON()})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "battle", resp["phase"])
	})

	t.Run("resubmission rejected", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodPost, placementURL,
			map[string]any{"player_id": "alice", "ships": fleetJSON()})
		assert.Equal(t, http.StatusConflict, status)
	})
}

// TestHandler_FireFlow 測試完整的射擊流程
func TestHandler_FireFlow(t *testing.T) {
	routes := newTestRoutes(t)

	_, created := doJSON(t, routes, http.MethodPost, "/api/v1/rooms/create",
		map[string]any{"player_id": "alice"})
	code := created["room_code"].(string)
	doJSON(t, routes, http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/join", code),
		map[string]any{"player_id": "bob"})

	placementURL := fmt.Sprintf("/api/v1/rooms/%s/placement", code)
	doJSON(t, routes, http.MethodPost, placementURL,
		map[string]any{"player_id": "alice", "ships": fleetJSON()})
	doJSON(t, routes, http.MethodPost, placementURL,
		map[string]any{"player_id": "bob", "ships": fleetJSON()})

	// 從快照得知先手
	status, state := doJSON(t, routes, http.MethodGet,
		fmt.Sprintf("/api/v1/rooms/%s/state?player_id=alice", code), nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "battle", state["phase"])

	firer, other := "alice", "bob"
	if state["is_your_turn"] != true {
		firer, other = "bob", "alice"
	}

	fireURL := fmt.Sprintf("/api/v1/rooms/%s/fire", code)

	t.Run("not your turn", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodPost, fireURL,
			map[string]any{"player_id": other, "row": 0, "col": 0})
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("out of bounds", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodPost, fireURL,
			map[string]any{"player_id": firer, "row": 10, "col": 0})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("hit then sink the destroyer", func(t *testing.T) {
		// 驅逐艦在 (4,0)-(4,1)：第一發命中未沉，不揭露艦種
		status, resp := doJSON(t, routes, http.MethodPost, fireURL,
			map[string]any{"player_id": firer, "row": 4, "col": 0})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "hit", resp["outcome"])
		assert.Equal(t, false, resp["sunk"])
		assert.NotContains(t, resp, "kind")
		assert.Equal(t, other, resp["turn_holder"])

		// 對手消耗回合
		status, _ = doJSON(t, routes, http.MethodPost, fireURL,
			map[string]any{"player_id": other, "row": 9, "col": 9})
		require.Equal(t, http.StatusOK, status)

		// 第二發擊沉，這時才揭露艦種
		status, resp = doJSON(t, routes, http.MethodPost, fireURL,
			map[string]any{"player_id": firer, "row": 4, "col": 1})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "hit", resp["outcome"])
		assert.Equal(t, true, resp["sunk"])
		assert.Equal(t, string(game.Destroyer), resp["kind"])
		assert.Equal(t, false, resp["finished"])
	})

	t.Run("repeated shot rejected without passing turn", func(t *testing.T) {
		// 換對手出手，射一發已射過的格子
		status, _ := doJSON(t, routes, http.MethodPost, fireURL,
			map[string]any{"player_id": other, "row": 9, "col": 9})
		assert.Equal(t, http.StatusBadRequest, status)

		// 回合仍在對手手上，合法射擊成功
		status, _ = doJSON(t, routes, http.MethodPost, fireURL,
			map[string]any{"player_id": other, "row": 9, "col": 8})
		assert.Equal(t, http.StatusOK, status)
	})
}

// TestHandler_GetState 測試狀態查詢 API
func TestHandler_GetState(t *testing.T) {
	routes := newTestRoutes(t)

	_, created := doJSON(t, routes, http.MethodPost, "/api/v1/rooms/create",
		map[string]any{"player_id": "alice"})
	code := created["room_code"].(string)

	t.Run("own snapshot only", func(t *testing.T) {
		status, state := doJSON(t, routes, http.MethodGet,
			fmt.Sprintf("/api/v1/rooms/%s/state?player_id=alice", code), nil)
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, code, state["room_code"])
		assert.Equal(t, "waiting", state["phase"])
		assert.Contains(t, state, "own_board")
		assert.Contains(t, state, "own_fleet")
		for key := range state {
			assert.NotContains(t, key, "opponent")
		}
	})

	t.Run("missing player id", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodGet,
			fmt.Sprintf("/api/v1/rooms/%s/state", code), nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("player not in room", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodGet,
			fmt.Sprintf("/api/v1/rooms/%s/state?player_id=ghost", code), nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("unknown room", func(t *testing.T) {
		status, _ := doJSON(t, routes, http.MethodGet,
			"/api/v1/rooms/ZZZZ99/state?player_id=alice", nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

// TestHandler_Health 測試健康檢查
func TestHandler_Health(t *testing.T) {
	routes := newTestRoutes(t)

	status, resp := doJSON(t, routes, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", resp["status"])
	assert.Contains(t, resp, "active_rooms")
	assert.Contains(t, resp, "connections")
}

// TestHandler_Stats 測試統計端點
func TestHandler_Stats(t *testing.T) {
	routes := newTestRoutes(t)

	doJSON(t, routes, http.MethodPost, "/api/v1/rooms/create",
		map[string]any{"player_id": "alice"})
	doJSON(t, routes, http.MethodPost, "/api/v1/rooms/create",
		map[string]any{"player_id": "bob", "mode": "solo"})

	status, resp := doJSON(t, routes, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), resp["total_rooms"])
	assert.Equal(t, float64(3), resp["total_players"])
}
