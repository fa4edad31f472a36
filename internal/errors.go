package internal

import "errors"

// 錯誤分類（全部可用 errors.Is 判斷）：
//
//   - 驗證失敗（ValidationFailed）：輸入有誤，使用者可自行修正，狀態不變
//   - 協議違規（ProtocolViolation）：錯誤的階段或回合。競速中的客戶端
//     可能合法觸發，拒絕但不視為異常，不記錯誤日誌
//   - 找不到（NotFound）：過期或偽造的識別碼
//
// 內部不變量毀損不走錯誤值：直接 panic（fail fast），
// 由 handler 的 recoverer 攔截，避免帶著毀損狀態繼續運行。
var (
	// 找不到類
	ErrRoomNotFound    = errors.New("房間不存在")
	ErrSessionNotFound = errors.New("玩家不在此房間")
	ErrNotInRoom       = errors.New("玩家不在任何房間")

	// 協議違規類
	ErrRoomFull      = errors.New("房間已滿")
	ErrAlreadyInRoom = errors.New("玩家已在房間內")
	ErrWrongPhase    = errors.New("當前階段不允許此操作")
	ErrNotYourTurn   = errors.New("尚未輪到你的回合")
	ErrAlreadyReady  = errors.New("已提交過艦隊佈陣")

	// 驗證失敗類
	ErrInvalidCoordinate = errors.New("座標超出棋盤範圍")
	ErrAlreadyFired      = errors.New("該格已射擊過")
	ErrInvalidFleet      = errors.New("艦隊必須恰好包含五種船艦各一艘")
)

// IsProtocolViolation 是否屬於協議違規（錯誤階段 / 錯誤回合）
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrRoomFull) ||
		errors.Is(err, ErrAlreadyInRoom) ||
		errors.Is(err, ErrWrongPhase) ||
		errors.Is(err, ErrNotYourTurn) ||
		errors.Is(err, ErrAlreadyReady)
}

// IsNotFound 是否屬於識別碼無效
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrNotInRoom)
}
