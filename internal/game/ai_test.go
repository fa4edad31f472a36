package game_test

import (
	"math/rand"
	"testing"

	"github.com/koopa0/battleship-server/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHuntTarget_NeverRepeats 測試全未命中時持續 Hunt 且永不重複
func TestHuntTarget_NeverRepeats(t *testing.T) {
	strategy := game.NewHuntTarget(rand.New(rand.NewSource(1)))
	history := []game.ShotRecord{}
	seen := make(map[game.Coord]bool)

	for i := 0; i < 60; i++ {
		shot, err := strategy.NextShot(history)
		require.NoError(t, err)

		assert.True(t, game.InBounds(shot.Row, shot.Col))
		assert.False(t, seen[shot], "第 %d 發重複選取 (%d,%d)", i+1, shot.Row, shot.Col)
		seen[shot] = true

		history = append(history, game.ShotRecord{Row: shot.Row, Col: shot.Col})
	}
}

// TestHuntTarget_NeighborsAfterHit 測試命中後轉入 Target 模式探測鄰格
func TestHuntTarget_NeighborsAfterHit(t *testing.T) {
	tests := []struct {
		name          string
		hit           game.Coord
		wantCandidate []game.Coord
	}{
		{
			name: "center hit probes four neighbors",
			hit:  game.Coord{Row: 5, Col: 5},
			wantCandidate: []game.Coord{
				{Row: 4, Col: 5}, {Row: 6, Col: 5}, {Row: 5, Col: 4}, {Row: 5, Col: 6},
			},
		},
		{
			name: "corner hit clips to two neighbors",
			hit:  game.Coord{Row: 0, Col: 0},
			wantCandidate: []game.Coord{
				{Row: 1, Col: 0}, {Row: 0, Col: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := game.NewHuntTarget(rand.New(rand.NewSource(7)))
			history := []game.ShotRecord{
				{Row: tt.hit.Row, Col: tt.hit.Col, Hit: true, Sunk: false},
			}

			shot, err := strategy.NextShot(history)
			require.NoError(t, err)
			assert.Contains(t, tt.wantCandidate, shot)
		})
	}
}

// TestHuntTarget_DrainsQueueFIFO 測試佇列依 FIFO 順序耗盡且不重複入隊
//
// 同一筆命中在歷史中只處理一次（processed 計數），
// 四個鄰格恰好各出現一次。
func TestHuntTarget_DrainsQueueFIFO(t *testing.T) {
	strategy := game.NewHuntTarget(rand.New(rand.NewSource(3)))
	history := []game.ShotRecord{
		{Row: 5, Col: 5, Hit: true, Sunk: false},
	}

	want := []game.Coord{
		{Row: 4, Col: 5}, {Row: 6, Col: 5}, {Row: 5, Col: 4}, {Row: 5, Col: 6},
	}

	for _, expected := range want {
		shot, err := strategy.NextShot(history)
		require.NoError(t, err)
		assert.Equal(t, expected, shot)

		// 探測結果是未命中，佇列不應新增候選
		history = append(history, game.ShotRecord{Row: shot.Row, Col: shot.Col})
	}

	// 佇列耗盡後回到 Hunt 模式，仍不得重複
	shot, err := strategy.NextShot(history)
	require.NoError(t, err)
	assert.NotContains(t, want, shot)
	assert.NotEqual(t, game.Coord{Row: 5, Col: 5}, shot)
}

// TestHuntTarget_SunkClearsQueue 測試擊沉後立即清空佇列回到 Hunt
//
// 若佇列未清空，策略會決定性地回傳 (4,5)（佇列頭）。
// 清空後是在未射擊格中均勻隨機，50 個獨立實例全部選中 (4,5)
// 的機率可忽略。
func TestHuntTarget_SunkClearsQueue(t *testing.T) {
	history := []game.ShotRecord{
		{Row: 5, Col: 5, Hit: true, Sunk: false},
		{Row: 5, Col: 6, Hit: true, Sunk: true},
	}

	sawOther := false
	for seed := int64(0); seed < 50; seed++ {
		strategy := game.NewHuntTarget(rand.New(rand.NewSource(seed)))
		shot, err := strategy.NextShot(history)
		require.NoError(t, err)

		if (shot != game.Coord{Row: 4, Col: 5}) {
			sawOther = true
		}
	}
	assert.True(t, sawOther, "擊沉後佇列應已清空，不應固定回傳原佇列頭")
}

// TestHuntTarget_Exhausted 測試 100 格射完後回報 Exhausted
func TestHuntTarget_Exhausted(t *testing.T) {
	strategy := game.NewHuntTarget(rand.New(rand.NewSource(5)))

	history := make([]game.ShotRecord, 0, 100)
	for r := 0; r < game.BoardSize; r++ {
		for c := 0; c < game.BoardSize; c++ {
			history = append(history, game.ShotRecord{Row: r, Col: c})
		}
	}

	_, err := strategy.NextShot(history)
	assert.ErrorIs(t, err, game.ErrExhausted)
}

// TestRandomFleet 測試隨機佈艦的完整性
func TestRandomFleet(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		board, fleet, err := game.RandomFleet(rand.New(rand.NewSource(seed)))
		require.NoError(t, err)

		// 五艘船、每種恰一艘
		require.Len(t, fleet, 5)
		kinds := make(map[game.ShipKind]int)
		for _, ship := range fleet {
			kinds[ship.Kind]++
			assert.Len(t, ship.Cells, game.ShipSizes[ship.Kind])
			for _, c := range ship.Cells {
				assert.True(t, game.InBounds(c.Row, c.Col))
				assert.Equal(t, ship.ID, board.Cells[c.Row][c.Col].ShipID)
			}
		}
		for _, kind := range game.FleetKinds {
			assert.Equal(t, 1, kinds[kind])
		}

		// 17 格且零重疊（重疊會讓總數低於 17）
		assert.Equal(t, 17, board.OccupiedCount())
	}
}
