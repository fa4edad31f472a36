package internal

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
	"strings"
	"sync"
	"time"
)

// Manager 房間管理器
//
// 全部對局狀態的單一擁有者：
//   - code → Room 與 playerID → code 兩個索引，生命週期綁定房間的
//     創建與拆除，不散落在各呼叫點
//   - 房間碼由密碼學隨機源產生（房間碼是加入對局的唯一門禁），
//     碰撞時重抽，保證存活房間不重碼
//   - 閒置回收用單一定期掃描，而非每房間各排一個計時器
//   - AI 出手用 time.AfterFunc 延遲排程，不阻塞任何房間的處理
type Manager struct {
	config     *Config
	rooms      map[string]*Room  // roomCode -> Room
	playerRoom map[string]string // playerID -> roomCode
	mu         sync.RWMutex
	logger     *slog.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewManager 創建房間管理器
func NewManager(config *Config, logger *slog.Logger) *Manager {
	m := &Manager{
		config:     config,
		rooms:      make(map[string]*Room),
		playerRoom: make(map[string]string),
		logger:     logger,
		stopCh:     make(chan struct{}),
	}

	// 啟動清理 goroutine
	m.wg.Add(1)
	go m.sweepLoop()

	return m
}

// CreateRoom 創建房間
//
// solo 模式在創建當下就掛上 AI 對手，房間直接進入佈陣階段。
func (m *Manager) CreateRoom(playerID string, mode GameMode) (*Room, error) {
	if playerID == "" || playerID == AIPlayerID {
		return nil, ErrSessionNotFound
	}
	if mode != ModeVersus && mode != ModeSolo {
		mode = ModeVersus
	}

	m.mu.Lock()
	if _, exists := m.playerRoom[playerID]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}

	// 碰撞時重抽，存活房間保證不重碼
	code := generateRoomCode()
	for {
		if _, taken := m.rooms[code]; !taken {
			break
		}
		code = generateRoomCode()
	}

	room := NewRoom(code, mode, newRoomRand())
	m.rooms[code] = room
	m.playerRoom[playerID] = code
	m.mu.Unlock()

	if err := room.AddSession(playerID); err != nil {
		m.removeRoom(code)
		return nil, err
	}
	if mode == ModeSolo {
		if err := room.AttachAI(); err != nil {
			m.removeRoom(code)
			return nil, err
		}
	}

	m.logger.Info("房間已創建",
		"room_code", code,
		"player_id", playerID,
		"mode", mode)

	return room, nil
}

// JoinRoom 以房間碼加入
func (m *Manager) JoinRoom(code, playerID string) (*Room, error) {
	if playerID == "" || playerID == AIPlayerID {
		return nil, ErrSessionNotFound
	}
	code = strings.ToUpper(code)

	// 檢查與預占索引在同一臨界區完成，同一玩家併發加入
	// 兩個房間時恰好一邊成功
	m.mu.Lock()
	room, exists := m.rooms[code]
	if !exists {
		m.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if existing, inRoom := m.playerRoom[playerID]; inRoom && existing != code {
		m.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	m.playerRoom[playerID] = code
	m.mu.Unlock()

	if err := room.AddSession(playerID); err != nil {
		// 回滾預占——除非玩家其實已是房間成員（重複加入）
		m.mu.Lock()
		if m.playerRoom[playerID] == code && !room.HasSession(playerID) {
			delete(m.playerRoom, playerID)
		}
		m.mu.Unlock()
		return nil, err
	}

	m.logger.Info("玩家加入房間",
		"room_code", code,
		"player_id", playerID,
		"player_count", room.PlayerCount())

	return room, nil
}

// GetRoom 以房間碼取得房間
func (m *Manager) GetRoom(code string) (*Room, error) {
	m.mu.RLock()
	room, exists := m.rooms[strings.ToUpper(code)]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// RoomOf 玩家目前所在的房間
func (m *Manager) RoomOf(playerID string) (*Room, error) {
	m.mu.RLock()
	code, exists := m.playerRoom[playerID]
	m.mu.RUnlock()
	if !exists {
		return nil, ErrNotInRoom
	}
	return m.GetRoom(code)
}

// SubmitPlacement 提交佈陣
//
// solo 模式下若開戰且先手是 AI，排程 AI 的第一發。
func (m *Manager) SubmitPlacement(playerID string, specs []PlacementSpec) (*Room, error) {
	room, err := m.RoomOf(playerID)
	if err != nil {
		return nil, err
	}

	if err := room.SubmitPlacement(playerID, specs); err != nil {
		return nil, err
	}

	m.logger.Info("佈陣完成",
		"room_code", room.Code,
		"player_id", playerID,
		"phase", room.Phase())

	m.maybeScheduleAI(room)
	return room, nil
}

// Fire 射擊
func (m *Manager) Fire(playerID string, row, col int) (*Room, FireReport, error) {
	room, err := m.RoomOf(playerID)
	if err != nil {
		return nil, FireReport{}, err
	}

	report, err := room.Fire(playerID, row, col)
	if err != nil {
		return nil, FireReport{}, err
	}

	if report.Finished {
		m.logger.Info("對局結束",
			"room_code", room.Code,
			"winner", report.Winner,
			"reason", ReasonAllSunk)
	}

	m.maybeScheduleAI(room)
	return room, report, nil
}

// maybeScheduleAI 輪到 AI 時排程出手
//
// 「思考」延遲純屬裝飾：用 AfterFunc 非同步觸發，
// 期間其他房間（與本房間的查詢）完全不受影響。
func (m *Manager) maybeScheduleAI(room *Room) {
	if room.Mode != ModeSolo {
		return
	}
	if room.Phase() != PhaseBattle || room.TurnHolder() != AIPlayerID {
		return
	}

	delay := m.config.Game.AIDelayMin
	if spread := m.config.Game.AIDelayMax - m.config.Game.AIDelayMin; spread > 0 {
		delay += time.Duration(mrand.Int63n(int64(spread)))
	}

	time.AfterFunc(delay, func() {
		report, err := room.FireAI()
		if err != nil {
			// 房間可能已在延遲期間結束或拆除，屬正常競速
			return
		}
		if report.Finished {
			m.logger.Info("對局結束",
				"room_code", room.Code,
				"winner", report.Winner,
				"reason", ReasonAllSunk)
		}
	})
}

// HandleDisconnect 處理玩家斷線（由傳輸層觸發）
//
// 雙人對局進入寬限期，逾時未重連判棄權；
// 獨自一人的房間與 solo 房直接拆除。
func (m *Manager) HandleDisconnect(playerID string) {
	room, err := m.RoomOf(playerID)
	if err != nil {
		return
	}

	switch room.MarkDisconnected(playerID) {
	case DisconnectTeardown:
		m.logger.Info("玩家離開，拆除房間",
			"room_code", room.Code,
			"player_id", playerID)
		room.Close("peer-left")
		m.removeRoom(room.Code)

	case DisconnectGrace:
		m.logger.Info("玩家斷線，進入寬限期",
			"room_code", room.Code,
			"player_id", playerID,
			"grace", m.config.Game.DisconnectGrace)
		room.BeginGrace(playerID, m.config.Game.DisconnectGrace, func() {
			if room.ForfeitIfAbsent(playerID) {
				winner, _ := room.Winner()
				m.logger.Info("寬限期滿，判定棄權",
					"room_code", room.Code,
					"player_id", playerID,
					"winner", winner)
			}
		})
	}
}

// ResumeSession 玩家連線 / 重連
//
// 取消未決的棄權計時器、通知對手，並向本人推送只含
// 自己棋盤的狀態快照。
func (m *Manager) ResumeSession(playerID, code string) error {
	room, err := m.GetRoom(code)
	if err != nil {
		return err
	}
	if err := room.Resume(playerID); err != nil {
		return err
	}

	m.logger.Info("玩家已連線",
		"room_code", room.Code,
		"player_id", playerID)
	return nil
}

// sweepLoop 定期清理過期房間
func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Game.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// Sweep 執行清理（公開方法供測試使用）
func (m *Manager) Sweep() {
	m.sweep()
}

func (m *Manager) sweep() {
	m.mu.RLock()
	var expired []*Room
	for _, room := range m.rooms {
		if room.IsExpired(m.config.Game.IdleTimeout, m.config.Game.FinishedLinger) {
			expired = append(expired, room)
		}
	}
	m.mu.RUnlock()

	for _, room := range expired {
		room.Close("idle_timeout")
		m.removeRoom(room.Code)
		m.logger.Info("房間閒置回收", "room_code", room.Code)
	}
}

// removeRoom 移除房間與相關索引
func (m *Manager) removeRoom(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[code]
	if !exists {
		return
	}

	for _, playerID := range room.PlayerIDs() {
		if m.playerRoom[playerID] == code {
			delete(m.playerRoom, playerID)
		}
	}
	delete(m.rooms, code)
}

// Stop 停止管理器
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()

	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.RUnlock()

	for _, room := range rooms {
		room.Close("server_shutdown")
		m.removeRoom(room.Code)
	}

	m.logger.Info("房間管理器已停止")
}

// Stats 獲取統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	phaseCount := make(map[Phase]int)
	modeCount := make(map[GameMode]int)
	totalPlayers := 0

	for _, room := range m.rooms {
		phaseCount[room.Phase()]++
		modeCount[room.Mode]++
		totalPlayers += room.PlayerCount()
	}

	return map[string]any{
		"total_rooms":   len(m.rooms),
		"total_players": totalPlayers,
		"by_phase":      phaseCount,
		"by_mode":       modeCount,
	}
}

// ActiveRooms 存活房間數（健康檢查用）
func (m *Manager) ActiveRooms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// roomCodeChars 房間碼字元集（36^6 ≈ 2.2e9，碰撞機率可忽略）
const roomCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateRoomCode 生成 6 位房間碼
//
// 房間碼是加入對局的唯一門禁，必須用密碼學隨機源、不可預測。
// 拒絕取樣：256 不是 36 的倍數，直接取模會讓前幾個字元
// 略微過度出現，超出 252（36 的最大整數倍）的位元組丟棄重抽。
func generateRoomCode() string {
	const (
		codeLen = 6
		limit   = byte(252)
	)

	code := make([]byte, 0, codeLen)
	buf := make([]byte, 16)
	for len(code) < codeLen {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand 失敗代表系統隨機源異常，無法安全發碼
			panic("internal: 無法讀取隨機源: " + err.Error())
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, roomCodeChars[int(b)%len(roomCodeChars)])
			if len(code) == codeLen {
				break
			}
		}
	}
	return string(code)
}

// newRoomRand 每房間一個獨立播種的隨機源（先手選擇、AI 佈陣與選擊）
func newRoomRand() *mrand.Rand {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	return mrand.New(mrand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
}
