// Package battleship 提供了一個權威式的雙人海戰棋對局服務器。
//
// 服務器獨佔持有全部遊戲狀態，客戶端只是動作的提交者與事件的
// 訂閱者，包含以下核心功能：
//
// 對局引擎
//
// 純粹的規則層，不含任何網路或並發邏輯：
//   - 10×10 棋盤與五艘標準艦隊（5/4/3/3/2）
//   - 佈陣驗證（越界、出界、重疊）
//   - 射擊判定（未命中 / 命中 / 擊沉 / 重複射擊）
//   - Hunt/Target 策略的 AI 對手
//
// 房間協調
//
// 提供完整的對局生命週期管理：
//   - 六位房間碼的創建與加入
//   - 佈陣 → 交戰 → 終局的階段推進
//   - 回合輪替與勝負判定
//   - 斷線寬限期、重連快照、閒置回收
//
// # WebSocket 事件推送
//
// 動作走 REST、事件走 WebSocket 的混合通訊：
//   - 每房間專職事件泵，即時投遞
//   - 定向事件（射擊結果）與廣播事件（回合切換）
//   - 心跳檢測（Ping/Pong），連線狀態即會話狀態
//
// 資訊隔離
//
// 「對手永遠看不到你的船」是結構性保證而非過濾邏輯：
//   - 棋盤與艦隊由房間獨佔持有，不匯出
//   - 快照只從請求者自己的會話組裝
//   - 鏡像事件只含座標與結果，不含艦種以外的資訊
//
// 使用範例
//
// 啟動服務器：
//
//	config, _ := internal.LoadConfig("config.yaml")
//	manager := internal.NewManager(config, logger)
//	hub := internal.NewWebSocketHub(manager, logger)
//	handler := internal.NewHandler(manager, hub, logger)
//
//	log.Fatal(http.ListenAndServe(":8080", handler.Routes()))
//
// 客戶端流程：
//
//	POST /api/v1/rooms/create          建房，取得房間碼
//	POST /api/v1/rooms/{code}/join     對手憑碼加入
//	GET  /ws/rooms/{code}?player_id=   訂閱事件（斷線後重連同一端點）
//	POST /api/v1/rooms/{code}/placement 提交佈陣
//	POST /api/v1/rooms/{code}/fire     輪到自己時射擊
//
// 架構設計
//
// 系統採用分層架構設計：
//   - Handler 層：REST 動作與錯誤分類
//   - Manager 層：房間註冊表、排程 AI、閒置清掃
//   - Room 層：單場對局的全部規則推進
//   - game 套件：無狀態的棋盤、射擊與 AI 演算法
//
// 每層都有明確的職責邊界；game 套件不知道房間的存在，
// 房間不知道 HTTP 的存在。
//
// 配置選項
//
// 支援 config.yaml 與命令行覆蓋：
//   - -port：服務監聽端口（預設 8080）
//   - -config：配置文件路徑
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
package battleship
