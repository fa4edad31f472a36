package game_test

import (
	"errors"
	"testing"

	"github.com/koopa0/battleship-server/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPlace_Success 測試成功放置
func TestPlace_Success(t *testing.T) {
	tests := []struct {
		name        string
		kind        game.ShipKind
		row, col    int
		orientation game.Orientation
		wantCells   []game.Coord
	}{
		{
			name:        "horizontal destroyer at origin",
			kind:        game.Destroyer,
			row:         0,
			col:         0,
			orientation: game.Horizontal,
			wantCells:   []game.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}},
		},
		{
			name:        "vertical carrier along left edge",
			kind:        game.Carrier,
			row:         5,
			col:         0,
			orientation: game.Vertical,
			wantCells: []game.Coord{
				{Row: 5, Col: 0}, {Row: 6, Col: 0}, {Row: 7, Col: 0}, {Row: 8, Col: 0}, {Row: 9, Col: 0},
			},
		},
		{
			name:        "horizontal battleship touching right edge",
			kind:        game.Battleship,
			row:         3,
			col:         6,
			orientation: game.Horizontal,
			wantCells: []game.Coord{
				{Row: 3, Col: 6}, {Row: 3, Col: 7}, {Row: 3, Col: 8}, {Row: 3, Col: 9},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := game.Board{}
			next, ship, err := game.Place(board, tt.kind, tt.row, tt.col, tt.orientation)

			require.NoError(t, err)
			assert.Equal(t, tt.kind, ship.Kind)
			assert.False(t, ship.Sunk)
			assert.NotEmpty(t, ship.ID)

			// 佔用格依遍歷順序排列
			assert.Equal(t, tt.wantCells, ship.Cells)

			// 新快照上每一格都標記了船艦 ID
			for _, c := range tt.wantCells {
				assert.Equal(t, ship.ID, next.Cells[c.Row][c.Col].ShipID)
			}

			// 輸入棋盤完全不受影響（持久值語義）
			assert.Equal(t, game.Board{}, board)
			assert.Equal(t, 0, board.OccupiedCount())
			assert.Equal(t, game.ShipSizes[tt.kind], next.OccupiedCount())
		})
	}
}

// TestPlace_Errors 測試放置失敗的錯誤碼
func TestPlace_Errors(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() game.Board
		kind        game.ShipKind
		row, col    int
		orientation game.Orientation
		wantCode    game.PlacementErrorCode
	}{
		{
			name:        "negative row is out of bounds",
			setup:       func() game.Board { return game.Board{} },
			kind:        game.Destroyer,
			row:         -1,
			col:         0,
			orientation: game.Horizontal,
			wantCode:    game.PlacementOutOfBounds,
		},
		{
			name:        "column beyond grid is out of bounds",
			setup:       func() game.Board { return game.Board{} },
			kind:        game.Cruiser,
			row:         0,
			col:         10,
			orientation: game.Vertical,
			wantCode:    game.PlacementOutOfBounds,
		},
		{
			name:        "horizontal carrier tail past right edge",
			setup:       func() game.Board { return game.Board{} },
			kind:        game.Carrier,
			row:         0,
			col:         6,
			orientation: game.Horizontal,
			wantCode:    game.PlacementExceedsBoundary,
		},
		{
			name:        "vertical destroyer tail past bottom edge",
			setup:       func() game.Board { return game.Board{} },
			kind:        game.Destroyer,
			row:         9,
			col:         0,
			orientation: game.Vertical,
			wantCode:    game.PlacementExceedsBoundary,
		},
		{
			name: "crossing an existing ship overlaps",
			setup: func() game.Board {
				b, _, err := game.Place(game.Board{}, game.Cruiser, 4, 3, game.Horizontal)
				require.NoError(t, err)
				return b
			},
			kind:        game.Submarine,
			row:         3,
			col:         4,
			orientation: game.Vertical,
			wantCode:    game.PlacementOverlap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := tt.setup()
			before := board
			_, _, err := game.Place(board, tt.kind, tt.row, tt.col, tt.orientation)

			require.Error(t, err)
			var perr *game.PlacementError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.wantCode, perr.Code)

			// 失敗不留任何痕跡
			assert.Equal(t, before, board)
		})
	}
}

// TestPlace_BoundaryEveryOrientationAndSize 測試每種船艦、每個方向的邊界裁剪
//
// start + size - 1 超過 9 的放置一律回傳 exceeds_boundary。
func TestPlace_BoundaryEveryOrientationAndSize(t *testing.T) {
	for kind, size := range game.ShipSizes {
		for _, orientation := range []game.Orientation{game.Horizontal, game.Vertical} {
			// 取剛好超界一格的起點
			start := game.BoardSize - size + 1
			row, col := 0, start
			if orientation == game.Vertical {
				row, col = start, 0
			}

			_, _, err := game.Place(game.Board{}, kind, row, col, orientation)
			var perr *game.PlacementError
			require.True(t, errors.As(err, &perr), "%s %s 應該超出邊界", kind, orientation)
			assert.Equal(t, game.PlacementExceedsBoundary, perr.Code)

			// 往回退一格則剛好合法
			row, col = 0, start-1
			if orientation == game.Vertical {
				row, col = start-1, 0
			}
			_, _, err = game.Place(game.Board{}, kind, row, col, orientation)
			assert.NoError(t, err, "%s %s 靠邊放置應該合法", kind, orientation)
		}
	}
}

// TestPlace_FullFleetOccupies17Cells 測試標準五艦共佔 17 格
func TestPlace_FullFleetOccupies17Cells(t *testing.T) {
	board := game.Board{}
	ids := make(map[string]bool)

	// 逐列放置五艘船，彼此隔行避免重疊
	for i, kind := range game.FleetKinds {
		next, ship, err := game.Place(board, kind, i*2, 0, game.Horizontal)
		require.NoError(t, err)
		board = next

		assert.Len(t, ship.Cells, game.ShipSizes[kind])
		assert.False(t, ids[ship.ID], "船艦 ID 不得重複")
		ids[ship.ID] = true
	}

	assert.Equal(t, 17, board.OccupiedCount())
}

// TestPlace_RapidPlacementUniqueIDs 測試快速重複放置時 ID 不碰撞
func TestPlace_RapidPlacementUniqueIDs(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 500; i++ {
		_, ship, err := game.Place(game.Board{}, game.Destroyer, 0, 0, game.Horizontal)
		require.NoError(t, err)
		assert.False(t, ids[ship.ID])
		ids[ship.ID] = true
	}
}
