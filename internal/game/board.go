package game

import (
	"fmt"

	"github.com/google/uuid"
)

// 系統設計問題：
//   如何表示戰艦棋盤，讓「對手永遠看不到我方船艦位置」成為結構性保證？
//
// 核心挑戰：
//   1. 別名問題：棋盤若以指標共享，任何一層的修改都會洩漏到其他持有者
//   2. 驗證順序：放置船艦的錯誤必須可區分（界外 / 超出邊界 / 重疊）
//   3. 不變量：船艦格子必須連續、同軸，且每格只屬於一艘船
//
// 設計方案：
//   ✅ 值語義 - Board 是 [10][10] 陣列值，賦值即深拷貝，舊快照永不變動
//   ✅ 標記聯合 - PlacementError 帶明確錯誤碼，呼叫端被迫窮舉處理
//   ✅ 唯一船艦 ID - uuid 前綴，快速重複放置也不會碰撞

// BoardSize 棋盤邊長（10x10）
const BoardSize = 10

// Orientation 船艦方向
type Orientation string

const (
	Horizontal Orientation = "horizontal" // 水平（欄遞增）
	Vertical   Orientation = "vertical"   // 垂直（列遞增）
)

// ShipKind 船艦種類
type ShipKind string

const (
	Carrier    ShipKind = "Carrier"    // 航空母艦（5 格）
	Battleship ShipKind = "Battleship" // 戰艦（4 格）
	Cruiser    ShipKind = "Cruiser"    // 巡洋艦（3 格）
	Submarine  ShipKind = "Submarine"  // 潛艦（3 格）
	Destroyer  ShipKind = "Destroyer"  // 驅逐艦（2 格）
)

// ShipSizes 各種類的格數，總計 17 格
var ShipSizes = map[ShipKind]int{
	Carrier:    5,
	Battleship: 4,
	Cruiser:    3,
	Submarine:  3,
	Destroyer:  2,
}

// FleetKinds 完整艦隊的五種船艦（放置順序）
var FleetKinds = []ShipKind{Carrier, Battleship, Cruiser, Submarine, Destroyer}

// Coord 棋盤座標
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Cell 單一棋盤格
//
// ShipID 為空字串表示水域；Targeted 表示此格已被射擊過。
type Cell struct {
	ShipID   string `json:"ship_id,omitempty"`
	Targeted bool   `json:"targeted"`
}

// Board 10x10 棋盤
//
// 注意：Board 刻意設計為值型別（內含定長陣列）。
// 所有操作都接收 Board 值並回傳新的 Board 值，
// 持有舊快照的呼叫端永遠觀察不到後續的變動。
type Board struct {
	Cells [BoardSize][BoardSize]Cell `json:"cells"`
}

// Ship 已放置的船艦
//
// 放置後除了 Sunk 旗標（單向 false→true）之外不可變。
// Cells 依放置方向的遍歷順序排列。
type Ship struct {
	ID    string   `json:"ship_id"`
	Kind  ShipKind `json:"kind"`
	Cells []Coord  `json:"cells"`
	Sunk  bool     `json:"sunk"`
}

// Fleet 一名玩家的艦隊（完整時恰為 5 艘）
type Fleet []Ship

// InBounds 座標是否在棋盤內
func InBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}

// PlacementErrorCode 放置錯誤碼
type PlacementErrorCode string

const (
	PlacementOutOfBounds     PlacementErrorCode = "out_of_bounds"    // 起點在棋盤外
	PlacementExceedsBoundary PlacementErrorCode = "exceeds_boundary" // 終點超出棋盤
	PlacementOverlap         PlacementErrorCode = "overlap"          // 與既有船艦重疊
)

// PlacementError 放置失敗的具體原因
//
// 以明確的錯誤碼取代字串比對，呼叫端用 errors.As 取出後
// 可以窮舉處理每一種失敗情況。
type PlacementError struct {
	Code PlacementErrorCode
	Kind ShipKind
	Row  int
	Col  int
}

func (e *PlacementError) Error() string {
	switch e.Code {
	case PlacementOutOfBounds:
		return fmt.Sprintf("放置 %s 失敗：起點 (%d,%d) 在棋盤外", e.Kind, e.Row, e.Col)
	case PlacementExceedsBoundary:
		return fmt.Sprintf("放置 %s 失敗：船身超出棋盤邊界", e.Kind)
	case PlacementOverlap:
		return fmt.Sprintf("放置 %s 失敗：(%d,%d) 與既有船艦重疊", e.Kind, e.Row, e.Col)
	default:
		return fmt.Sprintf("放置 %s 失敗", e.Kind)
	}
}

// Place 在棋盤上放置一艘船艦
//
// 驗證順序（第一個失敗的檢查決定錯誤碼）：
//  1. 起點座標必須在 [0,10)x[0,10) 內 → PlacementOutOfBounds
//  2. 終點（起點 + 長度 - 1）必須在棋盤內 → PlacementExceedsBoundary
//  3. 船身路徑上不得有任何已佔用格 → PlacementOverlap
//
// 成功時回傳「新的」棋盤快照與船艦；輸入棋盤完全不受影響。
// 船艦 ID 取 uuid 前 8 碼，在單一棋盤生命週期內碰撞機率可忽略。
func Place(b Board, kind ShipKind, row, col int, orientation Orientation) (Board, Ship, error) {
	size, ok := ShipSizes[kind]
	if !ok {
		return b, Ship{}, fmt.Errorf("未知的船艦種類: %s", kind)
	}
	if orientation != Horizontal && orientation != Vertical {
		return b, Ship{}, fmt.Errorf("未知的方向: %s", orientation)
	}

	if !InBounds(row, col) {
		return b, Ship{}, &PlacementError{Code: PlacementOutOfBounds, Kind: kind, Row: row, Col: col}
	}

	endRow, endCol := row, col
	if orientation == Vertical {
		endRow = row + size - 1
	} else {
		endCol = col + size - 1
	}
	if !InBounds(endRow, endCol) {
		return b, Ship{}, &PlacementError{Code: PlacementExceedsBoundary, Kind: kind, Row: row, Col: col}
	}

	cells := make([]Coord, 0, size)
	for i := 0; i < size; i++ {
		r, c := row, col
		if orientation == Vertical {
			r += i
		} else {
			c += i
		}
		if b.Cells[r][c].ShipID != "" {
			return b, Ship{}, &PlacementError{Code: PlacementOverlap, Kind: kind, Row: r, Col: c}
		}
		cells = append(cells, Coord{Row: r, Col: c})
	}

	ship := Ship{
		ID:    uuid.NewString()[:8],
		Kind:  kind,
		Cells: cells,
	}

	// b 是呼叫端棋盤的副本（值傳遞），這裡的修改不會外洩
	for _, c := range cells {
		b.Cells[c.Row][c.Col].ShipID = ship.ID
	}

	return b, ship, nil
}

// OccupiedCount 已佔用的格數（測試與不變量檢查用）
func (b Board) OccupiedCount() int {
	count := 0
	for r := 0; r < BoardSize; r++ {
		for c := 0; c < BoardSize; c++ {
			if b.Cells[r][c].ShipID != "" {
				count++
			}
		}
	}
	return count
}
