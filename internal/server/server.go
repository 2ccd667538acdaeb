package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"buyback-bot-go/internal/config"
	"buyback-bot-go/internal/dashboard"
	"buyback-bot-go/internal/logger"
	"buyback-bot-go/pkg/utils"

	"github.com/gorilla/websocket"
)

const wsSnapshotInterval = 3 * time.Second

// Refresher updates market data in the dashboard state
type Refresher interface {
	Refresh(ctx context.Context)
}

// Evaluator checks for goal crossings and runs the buyback pipeline
type Evaluator interface {
	Evaluate(ctx context.Context)
}

// Server exposes the dashboard HTTP API and a websocket snapshot stream
type Server struct {
	addr           string
	tokenMint      string
	goalStepUSD    float64
	allowedOrigins map[string]bool

	state    *dashboard.State
	market   Refresher
	pipeline Evaluator
	logger   *logger.Logger
	upgrader websocket.Upgrader

	// baseCtx backs evaluation cycles; a client disconnect must not cancel
	// in-flight trade stages
	baseCtx context.Context
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	ListenAddr  string
	TokenMint   string
	GoalStepUSD float64
	Origins     []string
}

// DashboardResponse is the GET /dashboard payload
type DashboardResponse struct {
	dashboard.Snapshot
	NextGoalUSD         float64 `json:"next_goal_usd"`
	NextGoalProgressPct float64 `json:"next_goal_progress_pct"`
	TokenMint           string  `json:"token_mint"`
}

// NewServer creates the dashboard server
func NewServer(cfg ServerConfig, state *dashboard.State, market Refresher, pipeline Evaluator, log *logger.Logger) *Server {
	if cfg.GoalStepUSD <= 0 {
		cfg.GoalStepUSD = config.DefaultGoalStepUSD
	}

	origins := make(map[string]bool, len(cfg.Origins))
	for _, o := range cfg.Origins {
		origins[o] = true
	}

	s := &Server{
		addr:           cfg.ListenAddr,
		tokenMint:      cfg.TokenMint,
		goalStepUSD:    cfg.GoalStepUSD,
		allowedOrigins: origins,
		state:          state,
		market:         market,
		pipeline:       pipeline,
		logger:         log,
		baseCtx:        context.Background(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}

	return s
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("addr", s.addr).Info("🌐 Dashboard server listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/dashboard", s.handleDashboard)
	mux.HandleFunc("/simulate/bump-mc", s.handleBumpMarketCap)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebsocket)
	return s.withCORS(mux)
}

// handleDashboard refreshes market data, evaluates the pipeline and returns
// the state snapshot. Pipeline failures surface only in the transaction log,
// never in the HTTP status.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.market.Refresh(s.baseCtx)
	s.pipeline.Evaluate(s.baseCtx)

	writeJSON(w, http.StatusOK, s.dashboardResponse())
}

func (s *Server) dashboardResponse() DashboardResponse {
	snapshot := s.state.Snapshot()

	bucketStart := math.Floor(snapshot.MarketCapUSD/s.goalStepUSD) * s.goalStepUSD
	progress := utils.ClampF64((snapshot.MarketCapUSD-bucketStart)/s.goalStepUSD*100, 0, 100)

	return DashboardResponse{
		Snapshot:            snapshot,
		NextGoalUSD:         bucketStart + s.goalStepUSD,
		NextGoalProgressPct: utils.RoundTo(progress, 2),
		TokenMint:           s.tokenMint,
	}
}

// handleBumpMarketCap adds delta_usd (default 110000) to the market cap
func (s *Server) handleBumpMarketCap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	delta := 110_000.0
	if raw := r.URL.Query().Get("delta_usd"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "invalid delta_usd", http.StatusBadRequest)
			return
		}
		delta = parsed
	}

	newValue := s.state.BumpMarketCap(delta)

	writeJSON(w, http.StatusOK, map[string]float64{"market_cap_usd": newValue})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleWebsocket streams dashboard snapshots on a fixed interval until the
// client disconnects
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsSnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(s.dashboardResponse()); err != nil {
				return
			}
		}
	}
}

// withCORS reflects allowed origins and answers preflight requests
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// originAllowed treats requests without an Origin header as same-origin
func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	return s.allowedOrigins[origin]
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
