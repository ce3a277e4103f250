package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"qsafp-harness/internal/events"
	"qsafp-harness/internal/failsafe"
	"qsafp-harness/internal/hal"
	"qsafp-harness/internal/harness"
	"qsafp-harness/internal/logger"
	"qsafp-harness/internal/metrics"
	"qsafp-harness/internal/scenario"

	"golang.org/x/net/websocket"
)

// OutcomeStore は永続化済みの結果を読み出す
type OutcomeStore interface {
	Outcomes(ctx context.Context, runID string) ([]failsafe.Outcome, error)
}

// Server はライブフィードのAPIサーバー
type Server struct {
	addr   string
	engine *harness.Engine
	bus    *events.Bus
	store  OutcomeStore
	runs   sync.WaitGroup

	mu        sync.RWMutex
	ctx       context.Context
	running   bool
	preset    string
	lastRun   *harness.RunResult
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
// bus は engine に設定済みのイベントバス（nil ならイベント配信なし）
func NewServer(addr string, engine *harness.Engine, bus *events.Bus) *Server {
	return &Server{
		addr:      addr,
		engine:    engine,
		bus:       bus,
		ctx:       context.Background(),
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// SetStore は /api/outcomes の読み出し元を設定する（nil ならメモリ上の結果）
func (s *Server) SetStore(store OutcomeStore) {
	s.store = store
}

// Wait はバックグラウンドで実行中の Run の終了を待つ
func (s *Server) Wait() {
	s.runs.Wait()
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/outcomes", s.handleOutcomes)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/vendors", s.handleVendors)
	mux.HandleFunc("/api/presets", s.handlePresets)
	mux.HandleFunc("/api/run", s.handleRun)

	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))
	return mux
}

// Start はサーバーを開始する（ctx のキャンセルで停止する）
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	// バックグラウンドでイベント配信
	go s.broadcastLoop(ctx)

	logger.Info("api", "API Server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running     bool    `json:"running"`
	RunID       string  `json:"run_id,omitempty"`
	Preset      string  `json:"preset,omitempty"`
	Vendor      string  `json:"vendor"`
	Outcomes    int     `json:"outcomes"`
	Subscribers int     `json:"subscribers"`
	Dropped     uint64  `json:"dropped_events"`
	LastRunMs   float64 `json:"last_run_ms,omitempty"`
}

func (s *Server) status() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		Running:     s.running,
		RunID:       s.engine.RunID(),
		Preset:      s.preset,
		Vendor:      s.engine.Host().Name(),
		Outcomes:    len(s.engine.Reporter().Outcomes()),
		Subscribers: len(s.wsClients),
	}
	if s.bus != nil {
		resp.Dropped = s.bus.Dropped()
	}
	if s.lastRun != nil {
		resp.LastRunMs = metrics.Milliseconds(s.lastRun.Duration)
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var outcomes []failsafe.Outcome
	if s.store != nil {
		var err error
		outcomes, err = s.store.Outcomes(r.Context(), r.URL.Query().Get("run_id"))
		if err != nil {
			logger.Error("api", "Failed to read outcomes: %v", err)
			http.Error(w, "Failed to read outcomes", http.StatusInternalServerError)
			return
		}
	} else {
		outcomes = s.engine.Reporter().Outcomes()
	}
	if outcomes == nil {
		outcomes = []failsafe.Outcome{}
	}
	s.writeJSON(w, outcomes)
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	Scenarios         uint64  `json:"scenarios"`
	QuorumTriggers    uint64  `json:"quorum_triggers"`
	LeaseTriggers     uint64  `json:"lease_triggers"`
	QuorumRate        float64 `json:"quorum_rate"`
	SkippedThreats    uint64  `json:"skipped_threats"`
	AbortedThreats    uint64  `json:"aborted_threats"`
	AvgDecisionMs     float64 `json:"avg_decision_ms"`
	AvgContainmentMs  float64 `json:"avg_containment_ms"`
	P99ContainmentMs  float64 `json:"p99_containment_ms"`
	MaxContainmentMs  float64 `json:"max_containment_ms"`
	HostAlertsTrigger int     `json:"host_alerts_triggered"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.engine.Metrics().Snapshot()
	s.writeJSON(w, MetricsResponse{
		Scenarios:         snap.Scenarios,
		QuorumTriggers:    snap.QuorumTriggers,
		LeaseTriggers:     snap.LeaseTriggers,
		QuorumRate:        snap.QuorumRate,
		SkippedThreats:    snap.SkippedThreats,
		AbortedThreats:    snap.AbortedThreats,
		AvgDecisionMs:     metrics.Milliseconds(snap.AverageDecision),
		AvgContainmentMs:  metrics.Milliseconds(snap.AverageContainment),
		P99ContainmentMs:  metrics.Milliseconds(snap.P99Containment),
		MaxContainmentMs:  metrics.Milliseconds(snap.MaxContainment),
		HostAlertsTrigger: s.engine.Host().Alerts(hal.SignalTriggered),
	})
}

// VendorInfo はベンダー情報
type VendorInfo struct {
	Name      string `json:"name"`
	Biometric bool   `json:"biometric"`
	Active    bool   `json:"active"`
}

func (s *Server) handleVendors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	active := s.engine.Host().Name()
	var vendors []VendorInfo
	for _, name := range hal.List() {
		vendors = append(vendors, VendorInfo{
			Name:      name,
			Biometric: hal.SupportsBiometric(name),
			Active:    name == active,
		})
	}
	s.writeJSON(w, vendors)
}

// PresetInfo はプリセット情報
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Scenarios   int    `json:"scenarios"`
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var presets []PresetInfo
	for _, name := range scenario.ListPresets() {
		p, _ := scenario.GetPreset(name)
		presets = append(presets, PresetInfo{
			Name:        p.Name,
			Description: p.Description,
			Scenarios:   len(p.Scenarios),
		})
	}
	s.writeJSON(w, presets)
}

// RunRequest はプリセット実行リクエスト
type RunRequest struct {
	Preset string `json:"preset"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	preset, ok := scenario.GetPreset(req.Preset)
	if !ok {
		http.Error(w, "Unknown preset", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	if s.running || s.engine.IsRunning() {
		s.mu.Unlock()
		http.Error(w, "Run already in progress", http.StatusConflict)
		return
	}
	s.running = true
	s.preset = preset.Name
	ctx := s.ctx
	s.runs.Add(1)
	s.mu.Unlock()

	// バックグラウンドで実行
	go func() {
		defer s.runs.Done()
		result, err := s.engine.Run(ctx, preset.Scenarios)

		s.mu.Lock()
		s.running = false
		if err == nil {
			s.lastRun = result
		}
		s.mu.Unlock()

		if err != nil {
			logger.Error("api", "Run failed: %v", err)
			return
		}
		logger.Info("api", "Run %s completed: %d outcome(s)", result.RunID, len(result.Outcomes))

		s.broadcast(map[string]any{
			"type":     "run_complete",
			"run_id":   result.RunID,
			"outcomes": result.Outcomes,
		})
	}()

	w.WriteHeader(http.StatusAccepted)
	s.writeJSON(w, map[string]string{"status": "started", "preset": preset.Name})
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// broadcastLoop はイベントバスのイベントをWebSocketクライアントへ転送する
func (s *Server) broadcastLoop(ctx context.Context) {
	if s.bus == nil {
		return
	}
	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": ev,
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("api", "Failed to encode JSON: %v", err)
	}
}
