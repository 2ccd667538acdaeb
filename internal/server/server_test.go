package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"buyback-bot-go/internal/dashboard"
	"buyback-bot-go/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct{ calls int }

func (f *fakeRefresher) Refresh(ctx context.Context) { f.calls++ }

type fakeEvaluator struct {
	calls int
	ctx   context.Context
	onRun func()
}

func (f *fakeEvaluator) Evaluate(ctx context.Context) {
	f.calls++
	f.ctx = ctx
	if f.onRun != nil {
		f.onRun()
	}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LogConfig{Level: "error", Format: "text"})
	require.NoError(t, err)
	log.SetOutput(io.Discard)
	return log
}

func newTestServer(t *testing.T, state *dashboard.State, refresher *fakeRefresher, evaluator *fakeEvaluator) *Server {
	t.Helper()
	return NewServer(ServerConfig{
		ListenAddr:  ":0",
		TokenMint:   "So11111111111111111111111111111111111111112",
		GoalStepUSD: 100_000,
		Origins:     []string{"http://localhost:3000"},
	}, state, refresher, evaluator, testLogger(t))
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, dashboard.NewState(), &fakeRefresher{}, &fakeEvaluator{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["ok"])
}

func TestDashboard_RefreshesAndEvaluates(t *testing.T) {
	state := dashboard.NewState()
	state.SetMarketData(1.25, 150_000)
	refresher := &fakeRefresher{}
	evaluator := &fakeEvaluator{}
	s := newTestServer(t, state, refresher, evaluator)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, 1, evaluator.calls)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 1.25, body["price_usd"])
	assert.Equal(t, 150_000.0, body["market_cap_usd"])
	assert.Equal(t, 200_000.0, body["next_goal_usd"])
	assert.Equal(t, 50.0, body["next_goal_progress_pct"])
	assert.Equal(t, "So11111111111111111111111111111111111111112", body["token_mint"])

	for _, field := range []string{
		"volume_change_pct", "buybacks_usd", "burned_usd",
		"supply_burned_pct", "transactions",
	} {
		assert.Contains(t, body, field)
	}
	assert.NotContains(t, body, "last_goal_bucket", "the bucket watermark is internal state, not a wire field")
}

func TestDashboard_EvaluationSurvivesClientDisconnect(t *testing.T) {
	evaluator := &fakeEvaluator{}
	s := newTestServer(t, dashboard.NewState(), &fakeRefresher{}, evaluator)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil).WithContext(reqCtx)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, 1, evaluator.calls)
	assert.NoError(t, evaluator.ctx.Err(), "evaluation must not run on the request context")
}

func TestDashboard_ProgressZeroAtExactMultiple(t *testing.T) {
	state := dashboard.NewState()
	state.SetMarketData(1, 200_000)
	s := newTestServer(t, state, &fakeRefresher{}, &fakeEvaluator{})

	resp := s.dashboardResponse()
	assert.Equal(t, 0.0, resp.NextGoalProgressPct)
	assert.Equal(t, 300_000.0, resp.NextGoalUSD)
}

func TestDashboard_ProgressAlwaysWithinBounds(t *testing.T) {
	for _, marketCap := range []float64{0, 1, 99_999.99, 100_000, 123_456.78, 1e12} {
		state := dashboard.NewState()
		state.SetMarketData(1, marketCap)
		s := newTestServer(t, state, &fakeRefresher{}, &fakeEvaluator{})

		resp := s.dashboardResponse()
		assert.GreaterOrEqual(t, resp.NextGoalProgressPct, 0.0, "market cap %f", marketCap)
		assert.LessOrEqual(t, resp.NextGoalProgressPct, 100.0, "market cap %f", marketCap)
	}
}

func TestDashboard_PipelineFailureStillReturns200(t *testing.T) {
	state := dashboard.NewState()
	evaluator := &fakeEvaluator{onRun: func() {
		state.PushTx(dashboard.TxClaim, 0, "creator fee claim failed: portal down", "")
	}}
	s := newTestServer(t, state, &fakeRefresher{}, evaluator)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Transactions []dashboard.TransactionRecord `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Transactions, 1)
	assert.Equal(t, dashboard.StatusRecorded, body.Transactions[0].Status)
}

func TestDashboard_RejectsNonGET(t *testing.T) {
	s := newTestServer(t, dashboard.NewState(), &fakeRefresher{}, &fakeEvaluator{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dashboard", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBumpMarketCap_DefaultDelta(t *testing.T) {
	state := dashboard.NewState()
	s := newTestServer(t, state, &fakeRefresher{}, &fakeEvaluator{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/simulate/bump-mc", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 110_000.0, body["market_cap_usd"])
	assert.Equal(t, 110_000.0, state.MarketCapUSD())
}

func TestBumpMarketCap_RepeatedCallsAccumulate(t *testing.T) {
	state := dashboard.NewState()
	s := newTestServer(t, state, &fakeRefresher{}, &fakeEvaluator{})
	handler := s.Handler()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/simulate/bump-mc?delta_usd=50000", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 150_000.0, state.MarketCapUSD())
}

func TestBumpMarketCap_InvalidDelta(t *testing.T) {
	s := newTestServer(t, dashboard.NewState(), &fakeRefresher{}, &fakeEvaluator{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/simulate/bump-mc?delta_usd=lots", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBumpMarketCap_RejectsNonPOST(t *testing.T) {
	s := newTestServer(t, dashboard.NewState(), &fakeRefresher{}, &fakeEvaluator{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/simulate/bump-mc", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS_AllowedOriginReflected(t *testing.T) {
	s := newTestServer(t, dashboard.NewState(), &fakeRefresher{}, &fakeEvaluator{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_UnknownOriginNotReflected(t *testing.T) {
	s := newTestServer(t, dashboard.NewState(), &fakeRefresher{}, &fakeEvaluator{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	refresher := &fakeRefresher{}
	s := newTestServer(t, dashboard.NewState(), refresher, &fakeEvaluator{})

	req := httptest.NewRequest(http.MethodOptions, "/dashboard", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, refresher.calls)
}
