package game

import "fmt"

// ShotOutcome 射擊結果種類
type ShotOutcome string

const (
	OutcomeMiss         ShotOutcome = "miss"          // 未命中
	OutcomeHit          ShotOutcome = "hit"           // 命中
	OutcomeAlreadyFired ShotOutcome = "already_fired" // 重複射擊（無副作用）
)

// ShotResult 單次射擊的完整結果
//
// Kind 只在船艦「剛好」被擊沉時填入；未沉的命中不揭露船艦種類，
// 避免向射擊方洩漏多餘資訊。
type ShotResult struct {
	Row     int         `json:"row"`
	Col     int         `json:"col"`
	Outcome ShotOutcome `json:"outcome"`
	Sunk    bool        `json:"sunk"`
	Kind    ShipKind    `json:"kind,omitempty"`
}

// Hit 是否命中
func (r ShotResult) Hit() bool { return r.Outcome == OutcomeHit }

// Resolve 對棋盤與艦隊套用一次射擊
//
// 前置條件：座標必須在棋盤內。協調器在呼叫前已驗證使用者輸入，
// 走到這裡還越界代表程式邏輯錯誤，直接 panic（fail fast），
// 不當作可回復的使用者錯誤。
//
// 行為：
//   - 目標格已被射擊過：回傳 OutcomeAlreadyFired，棋盤與艦隊原封不動
//     （重複射擊是唯一要求冪等空操作的地方，不推進任何狀態）
//   - 否則標記該格；水域 → OutcomeMiss
//   - 命中時重新計算該船的 sunk（所有格子都被射擊過才算沉）；
//     剛沉的船在結果中帶上種類名稱
//
// 與 Place 相同，輸入值不被修改，回傳的是新的快照。
func Resolve(b Board, f Fleet, row, col int) (Board, Fleet, ShotResult) {
	if !InBounds(row, col) {
		panic(fmt.Sprintf("game: 射擊座標越界 (%d,%d)，協調器必須先驗證", row, col))
	}

	cell := b.Cells[row][col]
	if cell.Targeted {
		return b, f, ShotResult{Row: row, Col: col, Outcome: OutcomeAlreadyFired}
	}

	b.Cells[row][col].Targeted = true

	if cell.ShipID == "" {
		return b, f, ShotResult{Row: row, Col: col, Outcome: OutcomeMiss}
	}

	// 找到被命中的船；找不到代表棋盤與艦隊配對已毀損
	idx := -1
	for i := range f {
		if f[i].ID == cell.ShipID {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic(fmt.Sprintf("game: 格子 (%d,%d) 的船艦 %s 不存在於艦隊中，狀態已毀損", row, col, cell.ShipID))
	}

	result := ShotResult{Row: row, Col: col, Outcome: OutcomeHit}

	// 重新計算 sunk：該船所有格子都已被射擊過
	sunk := true
	for _, c := range f[idx].Cells {
		if !b.Cells[c.Row][c.Col].Targeted {
			sunk = false
			break
		}
	}

	if sunk {
		// 寫入前複製艦隊，持有舊艦隊的呼叫端不受影響
		nf := make(Fleet, len(f))
		copy(nf, f)
		nf[idx].Sunk = true
		result.Sunk = true
		result.Kind = nf[idx].Kind
		return b, nf, result
	}

	return b, f, result
}

// AllSunk 艦隊是否全滅
//
// 空艦隊回傳 false（尚未部署不算戰敗）。
func AllSunk(f Fleet) bool {
	if len(f) == 0 {
		return false
	}
	for i := range f {
		if !f[i].Sunk {
			return false
		}
	}
	return true
}
