package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-lab/internal/analysis"
	"smc-lab/internal/config"
	"smc-lab/internal/domain"
	"smc-lab/internal/reporting"
	"smc-lab/internal/smc"
	"smc-lab/internal/storage/memory"
	"smc-lab/internal/verification"
)

var btc = domain.SeriesKey{Symbol: "BTCUSDT", Interval: "1m"}

func testCandles() []domain.Candle {
	ohlc := [][4]float64{
		{10, 12, 9, 11},
		{11, 13, 10, 12},
		{9, 10, 8, 9.5},
		{12, 15, 11, 14},
		{14, 16, 13, 15},
		{15, 15.5, 12, 12.5},
		{12, 12.5, 6, 7},
	}
	out := make([]domain.Candle, len(ohlc))
	for i, v := range ohlc {
		out[i] = domain.Candle{Time: 1_700_000_000 + int64(i)*60, Open: v[0], High: v[1], Low: v[2], Close: v[3]}
	}
	return out
}

type testEnv struct {
	api     *Server
	server  *httptest.Server
	candles *memory.CandleStore
	runs    *memory.AnalysisRunStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	candles := memory.NewCandleStore()
	runs := memory.NewAnalysisRunStore()

	engineCfg := smc.DefaultConfig()
	engineCfg.SwingLength = 2
	engineCfg.InternalLength = 1

	runner, err := analysis.New(analysis.Options{
		CandleStore: candles,
		RunStore:    runs,
		Config:      engineCfg,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	cfg := config.Default().Server
	cfg.MaxCandles = 10
	cfg.AllowedOrigins = []string{"https://charts.example.com"}

	s := NewServer(cfg, runner, reporting.NewGenerator(runs), zerolog.Nop()).
		WithVerifier(verification.New(candles, runs, zerolog.Nop()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{api: s, server: ts, candles: candles, runs: runs}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPostAnalysis_JSON(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/v1/analysis", AnalyzeRequest{Symbol: "BTCUSDT", Interval: "1m", Candles: testCandles()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decode[AnalysisResponse](t, resp)
	assert.NotEmpty(t, body.RunID)
	assert.Equal(t, "BTCUSDT", body.Symbol)
	require.NotNil(t, body.Results)
	assert.Equal(t, 7, body.Results.CandleCount)
	assert.NotEmpty(t, body.Results.Structures)

	run, err := env.runs.GetByID(context.Background(), body.RunID)
	require.NoError(t, err)
	assert.Equal(t, body.Fingerprint, run.Fingerprint)
}

func TestPostAnalysis_ConfigOverride(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/v1/analysis", map[string]any{
		"symbol":   "BTCUSDT",
		"interval": "1m",
		"candles":  testCandles(),
		"config":   map[string]any{"show_fvg": false},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[AnalysisResponse](t, resp)
	assert.Empty(t, body.Results.FairValueGaps)
	assert.NotEmpty(t, body.Results.Structures, "other defaults are kept")
}

func TestPostAnalysis_Errors(t *testing.T) {
	env := newTestEnv(t)

	bad := testCandles()
	bad[2].Time = bad[1].Time - 1
	bad[2].High = bad[2].Low - 1

	tooMany := make([]domain.Candle, 11)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"missing interval", AnalyzeRequest{Symbol: "BTCUSDT", Candles: testCandles()}, http.StatusBadRequest},
		{"invalid candle", AnalyzeRequest{Symbol: "BTCUSDT", Interval: "1m", Candles: bad}, http.StatusBadRequest},
		{"invalid config", map[string]any{"symbol": "BTCUSDT", "interval": "1m", "candles": testCandles(), "config": map[string]any{"swing_length": 0}}, http.StatusBadRequest},
		{"too many candles", AnalyzeRequest{Symbol: "BTCUSDT", Interval: "1m", Candles: tooMany}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/v1/analysis", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decode[errorResponse](t, resp).Error)
		})
	}
}

func TestPostAnalysis_MalformedBody(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Post(env.server.URL+"/v1/analysis", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetAnalysis_FromStore(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.candles.InsertBulk(context.Background(), btc, testCandles()))

	resp := env.get(t, "/v1/analysis/BTCUSDT/1m")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[AnalysisResponse](t, resp)
	assert.Equal(t, 7, body.Results.CandleCount)

	ranged := env.get(t, "/v1/analysis/BTCUSDT/1m?start=1700000000&end=1700000120")
	require.Equal(t, http.StatusOK, ranged.StatusCode)
	assert.Equal(t, 3, decode[AnalysisResponse](t, ranged).Results.CandleCount)

	badRange := env.get(t, "/v1/analysis/BTCUSDT/1m?start=yesterday")
	assert.Equal(t, http.StatusBadRequest, badRange.StatusCode)
}

func TestGetAnalysis_Formats(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.candles.InsertBulk(context.Background(), btc, testCandles()))

	md := env.get(t, "/v1/analysis/BTCUSDT/1m?format=markdown")
	require.Equal(t, http.StatusOK, md.StatusCode)
	assert.Contains(t, md.Header.Get("Content-Type"), "text/markdown")
	var buf bytes.Buffer
	buf.ReadFrom(md.Body)
	assert.Contains(t, buf.String(), "# SMC Analysis: BTCUSDT 1m")

	csv := env.get(t, "/v1/analysis/BTCUSDT/1m?format=csv")
	require.Equal(t, http.StatusOK, csv.StatusCode)
	buf.Reset()
	buf.ReadFrom(csv.Body)
	assert.True(t, strings.HasPrefix(buf.String(), "kind,time,"))

	unknown := env.get(t, "/v1/analysis/BTCUSDT/1m?format=xml")
	assert.Equal(t, http.StatusBadRequest, unknown.StatusCode)
}

func TestLatestAndRunLookup(t *testing.T) {
	env := newTestEnv(t)

	missing := env.get(t, "/v1/analysis/BTCUSDT/1m/latest")
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	created := decode[AnalysisResponse](t, env.post(t, "/v1/analysis", AnalyzeRequest{Symbol: "BTCUSDT", Interval: "1m", Candles: testCandles()}))

	latest := env.get(t, "/v1/analysis/BTCUSDT/1m/latest")
	require.Equal(t, http.StatusOK, latest.StatusCode)
	body := decode[AnalysisResponse](t, latest)
	assert.Equal(t, created.RunID, body.RunID)
	assert.Equal(t, created.Results.Structures, body.Results.Structures)

	byID := env.get(t, "/v1/runs/"+created.RunID)
	require.Equal(t, http.StatusOK, byID.StatusCode)
	assert.Equal(t, created.RunID, decode[AnalysisResponse](t, byID).RunID)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/v1/runs/nope").StatusCode)
}

func TestStatus_CountsRuns(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/v1/analysis", AnalyzeRequest{Symbol: "BTCUSDT", Interval: "1m", Candles: testCandles()})
	env.post(t, "/v1/analysis", AnalyzeRequest{Symbol: "", Interval: "1m", Candles: testCandles()})

	status := decode[StatusResponse](t, env.get(t, "/status"))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, 1, status.Runs)
	assert.Equal(t, 1, status.Failures)
	assert.False(t, status.LastRun.IsZero())
	assert.Zero(t, status.ScheduledPasses)

	started := time.Unix(1_700_000_000, 0).UTC()
	env.api.RecordBatch(analysis.BatchReport{Started: started, Series: 2})
	status = decode[StatusResponse](t, env.get(t, "/status"))
	assert.Equal(t, 1, status.ScheduledPasses)
	assert.True(t, started.Equal(status.LastPass))
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://charts.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://charts.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/v1/analysis")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_StartStop(t *testing.T) {
	runner, err := analysis.New(analysis.Options{Config: smc.DefaultConfig(), Logger: zerolog.Nop()})
	require.NoError(t, err)

	cfg := config.Default().Server
	cfg.Addr = "127.0.0.1:0"
	s := NewServer(cfg, runner, reporting.NewGenerator(memory.NewAnalysisRunStore()), zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestVerifyRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.candles.InsertBulk(ctx, btc, testCandles()))

	resp := env.get(t, "/v1/analysis/BTCUSDT/1m?format=json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[AnalysisResponse](t, resp)

	verify := env.get(t, "/v1/runs/"+created.RunID+"/verify")
	require.Equal(t, http.StatusOK, verify.StatusCode)
	body := decode[VerifyResponse](t, verify)
	assert.True(t, body.Match)
	assert.Equal(t, "BTCUSDT/1m", body.Series)
	assert.Empty(t, body.Divergences)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/v1/runs/nope/verify").StatusCode)

	posted := env.post(t, "/v1/analysis", AnalyzeRequest{Symbol: "ETHUSDT", Interval: "1m", Candles: testCandles()})
	require.Equal(t, http.StatusOK, posted.StatusCode)
	eth := decode[AnalysisResponse](t, posted)
	assert.Equal(t, http.StatusUnprocessableEntity, env.get(t, "/v1/runs/"+eth.RunID+"/verify").StatusCode)
}
