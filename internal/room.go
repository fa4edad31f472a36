package internal

import (
	"math/rand"
	"sync"
	"time"

	"github.com/koopa0/battleship-server/internal/game"
)

// 系統設計問題：
//   如何讓單一房間成為兩名玩家棋盤狀態的唯一權威擁有者？
//
// 核心挑戰：
//   1. 狀態管理：房間有嚴格的單向階段轉換（waiting → placement → battle → finished）
//   2. 對手盲射：玩家永遠拿不到對方的棋盤，只能拿到「射擊結果」
//   3. 並發控制：同一房間的操作必須序列化（read-modify-write 不得交錯）
//   4. 計時器生命週期：斷線寬限計時器必須可取消且恰好取消一次
//
// 設計方案：
//   ✅ 有限狀態機 - 階段單向轉換，不可重入
//   ✅ 互斥鎖 - 每個操作完整執行後才輪到下一個（跨房間互不影響）
//   ✅ 事件通道 - 狀態變更異步推送（可指定單一收件者）
//   ✅ 值快照 - 棋盤以值傳遞，舊引用永不觀察到後續變動

// Phase 房間階段
//
// 階段轉換規則（單向，不可逆）：
//
//	waiting → placement：第二名玩家加入
//	placement → battle：雙方都提交了合法佈陣
//	battle → finished：一方艦隊全滅或棄權
//
// 任何階段都可能因閒置回收而直接關閉。
type Phase string

const (
	PhaseWaiting   Phase = "waiting"   // 等待第二名玩家
	PhasePlacement Phase = "placement" // 雙方佈陣中
	PhaseBattle    Phase = "battle"    // 對戰中
	PhaseFinished  Phase = "finished"  // 已分出勝負
)

// GameMode 遊戲模式
type GameMode string

const (
	ModeVersus GameMode = "versus" // 雙人對戰
	ModeSolo   GameMode = "solo"   // 單人對抗 AI
)

// AIPlayerID AI 對手的保留識別碼
const AIPlayerID = "@ai"

// 終局原因
const (
	ReasonAllSunk = "all_sunk" // 艦隊全滅
	ReasonForfeit = "forfeit"  // 斷線逾時棄權
)

// Event 房間事件
//
// To 為空字串表示廣播給房間內所有連線；
// 否則只投遞給指定玩家（例如射擊結果、重連快照）。
type Event struct {
	Type string         `json:"event"`
	To   string         `json:"-"`
	Data map[string]any `json:"data"`
}

// PlacementSpec 單艘船的佈陣請求
type PlacementSpec struct {
	Kind        game.ShipKind    `json:"kind"`
	Row         int              `json:"row"`
	Col         int              `json:"col"`
	Orientation game.Orientation `json:"orientation"`
}

// Session 房間內的一名參與者
//
// 棋盤與艦隊刻意不匯出：這是「對手永遠看不到船艦位置」
// 不變量的結構性保證，外部只能透過 Snapshot 取得自己的狀態。
type Session struct {
	PlayerID  string
	IsAI      bool
	Ready     bool
	Connected bool
	JoinedAt  time.Time

	board game.Board
	fleet game.Fleet
}

// FireReport 一次射擊後協調器需要知道的結果
type FireReport struct {
	Result     game.ShotResult
	Finished   bool
	Winner     string
	TurnHolder string
}

// Room 一場對局
//
// 兩名玩家的棋盤都由房間獨佔持有；所有變更操作都在互斥鎖下
// 完整執行，同一房間內的 read-modify-write 永不交錯。
// 不同房間不共享任何可變狀態，彼此完全並行。
type Room struct {
	Code string
	Mode GameMode

	mu           sync.RWMutex
	phase        Phase
	turnHolder   string
	sessions     map[string]*Session
	order        []string // 加入順序
	createdAt    time.Time
	lastActive   time.Time
	winner       string
	finishReason string
	closed       bool

	events chan Event

	// 斷線寬限計時器，每名斷線玩家各一個（雙方同時斷線時
	// 互不覆蓋），重連時只取消本人的那一個
	graceTimers map[string]*time.Timer

	// AI 對局狀態（只在 solo 模式使用，絕不跨房間共享）
	aiStrategy *game.HuntTarget
	aiHistory  []game.ShotRecord

	rng *rand.Rand
}

// NewRoom 創建新房間
func NewRoom(code string, mode GameMode, rng *rand.Rand) *Room {
	now := time.Now()
	return &Room{
		Code:        code,
		Mode:        mode,
		phase:       PhaseWaiting,
		sessions:    make(map[string]*Session, 2),
		createdAt:   now,
		lastActive:  now,
		events:      make(chan Event, 100),
		graceTimers: make(map[string]*time.Timer),
		rng:         rng,
	}
}

// AddSession 加入一名玩家
//
// 只允許在 waiting 階段加入；第二名玩家加入後自動轉入 placement，
// 並通知雙方。
func (r *Room) AddSession(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	if r.phase != PhaseWaiting {
		return ErrWrongPhase
	}
	if _, exists := r.sessions[playerID]; exists {
		return ErrAlreadyInRoom
	}
	if len(r.sessions) >= 2 {
		return ErrRoomFull
	}

	r.sessions[playerID] = &Session{
		PlayerID: playerID,
		JoinedAt: time.Now(),
	}
	r.order = append(r.order, playerID)
	r.touchLocked()

	r.sendEventLocked(Event{
		Type: "peer-joined",
		Data: map[string]any{"player_id": playerID, "player_count": len(r.sessions)},
	})

	if len(r.sessions) == 2 {
		r.phase = PhasePlacement
		r.sendEventLocked(Event{Type: "phase-placement", Data: map[string]any{}})
	}

	return nil
}

// AttachAI 掛載 AI 對手（solo 模式，房間創建時呼叫）
//
// AI 艦隊立即隨機佈陣並標記就緒，房間直接進入 placement 階段。
func (r *Room) AttachAI() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseWaiting || len(r.sessions) != 1 {
		return ErrWrongPhase
	}

	board, fleet, err := game.RandomFleet(r.rng)
	if err != nil {
		return err
	}

	r.sessions[AIPlayerID] = &Session{
		PlayerID:  AIPlayerID,
		IsAI:      true,
		Ready:     true,
		Connected: true,
		JoinedAt:  time.Now(),
		board:     board,
		fleet:     fleet,
	}
	r.order = append(r.order, AIPlayerID)
	r.aiStrategy = game.NewHuntTarget(r.rng)
	r.phase = PhasePlacement
	r.touchLocked()

	r.sendEventLocked(Event{Type: "phase-placement", Data: map[string]any{}})
	return nil
}

// SubmitPlacement 提交完整佈陣
//
// 全有或全無：從空棋盤重新套用五次放置，任何一次失敗就回傳
// 該錯誤且不留任何狀態。成功後標記就緒；雙方都就緒時轉入 battle
// 並均勻隨機選出先手。
func (r *Room) SubmitPlacement(playerID string, specs []PlacementSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[playerID]
	if !exists {
		return ErrSessionNotFound
	}
	if r.phase != PhasePlacement {
		return ErrWrongPhase
	}
	if sess.Ready {
		return ErrAlreadyReady
	}

	// 五種船艦各恰好一艘
	if len(specs) != len(game.FleetKinds) {
		return ErrInvalidFleet
	}
	seen := make(map[game.ShipKind]bool, len(specs))
	for _, spec := range specs {
		if _, known := game.ShipSizes[spec.Kind]; !known || seen[spec.Kind] {
			return ErrInvalidFleet
		}
		seen[spec.Kind] = true
	}

	board := game.Board{}
	fleet := make(game.Fleet, 0, len(specs))
	for _, spec := range specs {
		next, ship, err := game.Place(board, spec.Kind, spec.Row, spec.Col, spec.Orientation)
		if err != nil {
			return err
		}
		board = next
		fleet = append(fleet, ship)
	}

	sess.board = board
	sess.fleet = fleet
	sess.Ready = true
	r.touchLocked()

	allReady := len(r.sessions) == 2
	for _, s := range r.sessions {
		if !s.Ready {
			allReady = false
			break
		}
	}

	if allReady {
		r.phase = PhaseBattle
		r.turnHolder = r.order[r.rng.Intn(2)]
		for _, s := range r.sessions {
			r.sendEventLocked(Event{
				Type: "phase-battle",
				To:   s.PlayerID,
				Data: map[string]any{
					"turn_holder":  r.turnHolder,
					"is_your_turn": s.PlayerID == r.turnHolder,
				},
			})
		}
	}

	return nil
}

// Fire 向對手棋盤射擊
//
// 只有 battle 階段的回合持有者可以射擊。結果分別通知：
// 射擊方收到 shot-outcome，被射方收到 mirrored-shot——
// 除了這一格的結果之外，對手棋盤的內容絕不傳給射擊方。
func (r *Room) Fire(firerID string, row, col int) (FireReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fireLocked(firerID, row, col)
}

func (r *Room) fireLocked(firerID string, row, col int) (FireReport, error) {
	firer, exists := r.sessions[firerID]
	if !exists {
		return FireReport{}, ErrSessionNotFound
	}
	if r.phase != PhaseBattle {
		return FireReport{}, ErrWrongPhase
	}
	if r.turnHolder != firerID {
		return FireReport{}, ErrNotYourTurn
	}
	if !game.InBounds(row, col) {
		return FireReport{}, ErrInvalidCoordinate
	}

	opponent := r.opponentLocked(firerID)
	if opponent == nil {
		return FireReport{}, ErrSessionNotFound
	}

	board, fleet, result := game.Resolve(opponent.board, opponent.fleet, row, col)
	if result.Outcome == game.OutcomeAlreadyFired {
		// 冪等空操作：不改狀態、不換回合
		return FireReport{}, ErrAlreadyFired
	}

	opponent.board = board
	opponent.fleet = fleet
	r.touchLocked()

	if firer.IsAI {
		r.aiHistory = append(r.aiHistory, game.ShotRecord{
			Row: row, Col: col, Hit: result.Hit(), Sunk: result.Sunk,
		})
	}

	data := map[string]any{
		"row":  result.Row,
		"col":  result.Col,
		"hit":  result.Hit(),
		"sunk": result.Sunk,
	}
	if result.Sunk {
		data["kind"] = result.Kind
	}
	r.sendEventLocked(Event{Type: "shot-outcome", To: firerID, Data: data})
	r.sendEventLocked(Event{Type: "mirrored-shot", To: opponent.PlayerID, Data: data})

	report := FireReport{Result: result}

	if game.AllSunk(fleet) {
		r.phase = PhaseFinished
		r.winner = firerID
		r.finishReason = ReasonAllSunk
		r.sendEventLocked(Event{
			Type: "game-over",
			Data: map[string]any{"winner": r.winner, "reason": r.finishReason},
		})
		report.Finished = true
		report.Winner = firerID
		return report, nil
	}

	r.turnHolder = opponent.PlayerID
	for _, s := range r.sessions {
		r.sendEventLocked(Event{
			Type: "turn-changed",
			To:   s.PlayerID,
			Data: map[string]any{
				"turn_holder":  r.turnHolder,
				"is_your_turn": s.PlayerID == r.turnHolder,
			},
		})
	}
	report.TurnHolder = r.turnHolder
	return report, nil
}

// FireAI 讓 AI 出手一次
//
// 策略選擊與射擊在同一把鎖內完成，房間操作的序列化不被打破。
// 策略只拿得到自己的射擊歷史，碰不到玩家的棋盤。
func (r *Room) FireAI() (FireReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.aiStrategy == nil {
		return FireReport{}, ErrSessionNotFound
	}
	if r.phase != PhaseBattle || r.turnHolder != AIPlayerID {
		return FireReport{}, ErrWrongPhase
	}

	shot, err := r.aiStrategy.NextShot(r.aiHistory)
	if err != nil {
		// 棋盤射滿前勝負必已揭曉，走到這裡代表邏輯毀損
		panic("internal: AI 選擊失敗: " + err.Error())
	}

	return r.fireLocked(AIPlayerID, shot.Row, shot.Col)
}

// DisconnectAction 斷線後協調器應採取的動作
type DisconnectAction int

const (
	DisconnectNone     DisconnectAction = iota // 不需處理
	DisconnectTeardown                         // 立即拆除房間
	DisconnectGrace                            // 啟動寬限計時器
)

// MarkDisconnected 標記玩家斷線
//
// 回傳協調器應採取的動作：獨自一人的房間（或 solo 房）直接拆除，
// 雙人對局則通知對手並進入寬限期。
func (r *Room) MarkDisconnected(playerID string) DisconnectAction {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[playerID]
	if !exists || sess.IsAI || r.closed {
		return DisconnectNone
	}
	sess.Connected = false

	if r.phase == PhaseFinished {
		return DisconnectNone
	}
	if len(r.sessions) <= 1 || r.Mode == ModeSolo {
		return DisconnectTeardown
	}

	if opponent := r.opponentLocked(playerID); opponent != nil {
		r.sendEventLocked(Event{
			Type: "peer-disconnected",
			To:   opponent.PlayerID,
			Data: map[string]any{"player_id": playerID},
		})
	}
	return DisconnectGrace
}

// BeginGrace 啟動斷線寬限計時器
//
// 同一玩家既有的計時器先停掉再重排；別的玩家的計時器不受影響，
// 雙方同時斷線時兩個寬限各自倒數。
func (r *Room) BeginGrace(playerID string, d time.Duration, onExpire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if timer, exists := r.graceTimers[playerID]; exists {
		timer.Stop()
	}
	r.graceTimers[playerID] = time.AfterFunc(d, onExpire)
}

// ForfeitIfAbsent 寬限期滿的判定
//
// 計時器觸發時重新檢查狀態（玩家可能已重連、房間可能已結束），
// 避免對過期狀態動手。只有確實仍斷線才判棄權。
func (r *Room) ForfeitIfAbsent(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.phase == PhaseFinished {
		return false
	}
	sess, exists := r.sessions[playerID]
	if !exists || sess.Connected {
		return false
	}

	opponent := r.opponentLocked(playerID)
	if opponent == nil {
		return false
	}

	r.phase = PhaseFinished
	r.winner = opponent.PlayerID
	r.finishReason = ReasonForfeit
	delete(r.graceTimers, playerID)
	r.touchLocked()

	r.sendEventLocked(Event{
		Type: "game-over",
		Data: map[string]any{"winner": r.winner, "reason": r.finishReason},
	})
	return true
}

// Resume 玩家（重新）連線
//
// 只取消本人的寬限計時器，恰好一次；對手若也在寬限中，
// 其計時器照常倒數。若是真正的重連（先前斷線），通知對手已恢復。
// 無論如何都發送一份只含本人狀態的快照。
func (r *Room) Resume(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[playerID]
	if !exists {
		return ErrSessionNotFound
	}

	wasDisconnected := !sess.Connected && !sess.IsAI
	sess.Connected = true
	r.touchLocked()

	if timer, pending := r.graceTimers[playerID]; pending {
		timer.Stop()
		delete(r.graceTimers, playerID)
	}

	if wasDisconnected && r.phase != PhaseFinished && r.phase != PhaseWaiting {
		if opponent := r.opponentLocked(playerID); opponent != nil {
			r.sendEventLocked(Event{
				Type: "peer-reconnected",
				To:   opponent.PlayerID,
				Data: map[string]any{"player_id": playerID},
			})
		}
	}

	r.sendEventLocked(Event{
		Type: "state-snapshot",
		To:   playerID,
		Data: r.snapshotLocked(sess),
	})
	return nil
}

// Snapshot 取得玩家自己視角的狀態快照
//
// 只包含本人的棋盤與艦隊，加上公開的階段 / 回合資訊；
// 沒有任何欄位來自對手的棋盤或艦隊位置。
func (r *Room) Snapshot(playerID string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[playerID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return r.snapshotLocked(sess), nil
}

func (r *Room) snapshotLocked(sess *Session) map[string]any {
	snapshot := map[string]any{
		"room_code":    r.Code,
		"mode":         r.Mode,
		"phase":        r.phase,
		"own_board":    sess.board,
		"own_fleet":    sess.fleet,
		"ready":        sess.Ready,
		"turn_holder":  r.turnHolder,
		"is_your_turn": r.phase == PhaseBattle && r.turnHolder == sess.PlayerID,
	}
	if r.phase == PhaseFinished {
		snapshot["winner"] = r.winner
		snapshot["reason"] = r.finishReason
	}
	return snapshot
}

// opponentLocked 找到對手 session（需持有鎖）
func (r *Room) opponentLocked(playerID string) *Session {
	for _, s := range r.sessions {
		if s.PlayerID != playerID {
			return s
		}
	}
	return nil
}

// Phase 目前階段
func (r *Room) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// TurnHolder 目前的回合持有者
func (r *Room) TurnHolder() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.turnHolder
}

// Winner 勝者與終局原因
func (r *Room) Winner() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.winner, r.finishReason
}

// HasSession 玩家是否屬於此房間
func (r *Room) HasSession(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sessions[playerID]
	return exists
}

// PlayerCount 參與者人數（含 AI）
func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// PlayerIDs 參與者識別碼（依加入順序）
func (r *Room) PlayerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// IsExpired 是否應被回收
//
// 已結束的房間保留一小段時間讓終局事件送達；
// 其餘房間以最後活動時間判斷。任何成功的變更操作都會刷新
// 時間戳——用時間戳而非重排計時器，避免取消 / 重排競態。
func (r *Room) IsExpired(idleTimeout, finishedLinger time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return true
	}
	now := time.Now()
	if r.phase == PhaseFinished {
		return now.Sub(r.lastActive) > finishedLinger
	}
	return now.Sub(r.lastActive) > idleTimeout
}

// Close 關閉房間
//
// 停掉未決的寬限計時器、廣播關閉事件後關閉事件通道。
func (r *Room) Close(reason string) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true

	for _, timer := range r.graceTimers {
		timer.Stop()
	}
	r.graceTimers = nil

	// 發送關閉事件前先釋放鎖，避免死鎖
	r.mu.Unlock()

	event := Event{
		Type: "room-closed",
		Data: map[string]any{"reason": reason},
	}

	select {
	case r.events <- event:
	case <-time.After(100 * time.Millisecond):
	}

	// 給接收者一點時間處理事件
	time.Sleep(10 * time.Millisecond)
	close(r.events)
}

// Events 獲取事件通道
func (r *Room) Events() <-chan Event {
	return r.events
}

// sendEventLocked 發送事件（需持有鎖）
//
// 非阻塞發送：通道滿了就丟棄，優先保證操作成功。
func (r *Room) sendEventLocked(event Event) {
	if r.closed {
		return
	}
	select {
	case r.events <- event:
	default:
	}
}

func (r *Room) touchLocked() {
	r.lastActive = time.Now()
}
