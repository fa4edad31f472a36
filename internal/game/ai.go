package game

import (
	"errors"
	"math/rand"
	"time"
)

// 系統設計問題：
//   AI 對手如何選擊而不作弊（不偷看玩家棋盤）？
//
// 設計方案：
//   ✅ Hunt/Target 兩態策略 - 隨機搜索，命中後轉為系統性探測鄰格
//   ✅ 純歷史驅動 - 策略只拿得到自己的射擊歷史，碰不到棋盤與艦隊
//   ✅ processed 計數 - 只處理歷史的新增後綴，重複呼叫不會重複入隊

// ErrExhausted 棋盤上已無未射擊格
//
// 正常終局（勝利條件先觸發）不可能發生，視為斷言失敗而非可回復錯誤。
var ErrExhausted = errors.New("game: 已無未射擊的格子")

// ShotRecord AI 射擊歷史中的一筆記錄
type ShotRecord struct {
	Row  int  `json:"row"`
	Col  int  `json:"col"`
	Hit  bool `json:"hit"`
	Sunk bool `json:"sunk"`
}

// HuntTarget Hunt/Target 射擊策略
//
// 兩種模式：
//   - Hunt：沒有待追擊的命中，在所有未射擊格中均勻隨機選取
//   - Target：佇列中有命中格的鄰格待探測，依 FIFO 順序取出
//
// 模式轉換：
//   - Hunt → Target：歷史中出現未沉的命中，將其上下左右
//     在棋盤內且未射擊的鄰格入隊（跳過已在佇列中的）
//   - Target → Hunt：命中且擊沉，清空整個佇列
//     （不沿著已沉船艦的軸線繼續追擊）
//
// 策略不信任自己對「已射擊格」的記憶，每次呼叫都從完整歷史
// 重新推導 targeted 集合；processed 只用來避免重複入隊。
// 同一場對局共用一個實例，絕不跨房間共享。
type HuntTarget struct {
	rng       *rand.Rand
	pending   []Coord // Target 模式的待探測佇列（FIFO）
	processed int     // 已處理過的歷史長度
}

// NewHuntTarget 建立策略實例
//
// rng 傳入 nil 時以目前時間播種；測試可注入固定種子取得可重現行為。
func NewHuntTarget(rng *rand.Rand) *HuntTarget {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &HuntTarget{rng: rng}
}

// NextShot 根據射擊歷史選出下一發座標
//
// history 必須是本策略至今所有射擊的完整記錄（依時間排序）。
// 回傳的座標保證不在 history 中。
func (s *HuntTarget) NextShot(history []ShotRecord) (Coord, error) {
	targeted := make(map[Coord]bool, len(history))
	for _, rec := range history {
		targeted[Coord{Row: rec.Row, Col: rec.Col}] = true
	}

	// 歷史被截短不應該發生，保守地重新處理全部
	if s.processed > len(history) {
		s.processed = 0
		s.pending = s.pending[:0]
	}

	// 只處理尚未看過的後綴
	for _, rec := range history[s.processed:] {
		if rec.Hit && rec.Sunk {
			s.pending = s.pending[:0]
			continue
		}
		if rec.Hit {
			s.enqueueNeighbors(Coord{Row: rec.Row, Col: rec.Col}, targeted)
		}
	}
	s.processed = len(history)

	// Target 模式：取出第一個仍未射擊的候選
	for len(s.pending) > 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		if !targeted[c] {
			return c, nil
		}
	}

	// Hunt 模式：在所有未射擊格中均勻隨機
	free := make([]Coord, 0, BoardSize*BoardSize-len(history))
	for r := 0; r < BoardSize; r++ {
		for c := 0; c < BoardSize; c++ {
			if !targeted[Coord{Row: r, Col: c}] {
				free = append(free, Coord{Row: r, Col: c})
			}
		}
	}
	if len(free) == 0 {
		return Coord{}, ErrExhausted
	}
	return free[s.rng.Intn(len(free))], nil
}

// enqueueNeighbors 將命中格的正交鄰格入隊
func (s *HuntTarget) enqueueNeighbors(hit Coord, targeted map[Coord]bool) {
	candidates := []Coord{
		{Row: hit.Row - 1, Col: hit.Col},
		{Row: hit.Row + 1, Col: hit.Col},
		{Row: hit.Row, Col: hit.Col - 1},
		{Row: hit.Row, Col: hit.Col + 1},
	}
	for _, c := range candidates {
		if !InBounds(c.Row, c.Col) || targeted[c] {
			continue
		}
		queued := false
		for _, p := range s.pending {
			if p == c {
				queued = true
				break
			}
		}
		if !queued {
			s.pending = append(s.pending, c)
		}
	}
}

// 隨機佈艦的重試上限
const (
	placeAttempts = 100  // 單一船艦的嘗試次數
	fleetRestarts = 1000 // 整個棋盤的重置次數（實務上用不到）
)

// RandomFleet 隨機產生一副完整佈陣
//
// 對五種船艦依序：隨機取起點與方向，透過 Place 嘗試放置，
// 最多重試 placeAttempts 次；若某一艘放不下，整個棋盤砍掉重來。
// 「有限重試 + 整盤重置」避免部分佈陣造成的死局——
// 10x10 裝 17 格綽綽有餘，重置既便宜又罕見。
func RandomFleet(rng *rand.Rand) (Board, Fleet, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for restart := 0; restart < fleetRestarts; restart++ {
		board := Board{}
		fleet := make(Fleet, 0, len(FleetKinds))
		complete := true

		for _, kind := range FleetKinds {
			placed := false
			for attempt := 0; attempt < placeAttempts; attempt++ {
				orientation := Horizontal
				if rng.Intn(2) == 0 {
					orientation = Vertical
				}
				nb, ship, err := Place(board, kind, rng.Intn(BoardSize), rng.Intn(BoardSize), orientation)
				if err != nil {
					continue
				}
				board = nb
				fleet = append(fleet, ship)
				placed = true
				break
			}
			if !placed {
				complete = false
				break
			}
		}

		if complete {
			return board, fleet, nil
		}
	}

	return Board{}, nil, errors.New("game: 隨機佈艦失敗")
}
