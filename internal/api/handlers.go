package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"smc-lab/internal/analysis"
	"smc-lab/internal/domain"
	"smc-lab/internal/normalization"
	"smc-lab/internal/reporting"
	"smc-lab/internal/smc"
	"smc-lab/internal/storage"
	"smc-lab/internal/verification"
)

// maxBodyBytes bounds POST bodies independently of MaxCandles.
const maxBodyBytes = 32 << 20

// AnalyzeRequest is the POST /v1/analysis body. Config fields override the
// server defaults; omitted fields keep them.
type AnalyzeRequest struct {
	Symbol   string          `json:"symbol"`
	Interval string          `json:"interval"`
	Candles  []domain.Candle `json:"candles"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// AnalysisResponse is the JSON form of an analysis.
type AnalysisResponse struct {
	RunID       string              `json:"run_id,omitempty"`
	Fingerprint string              `json:"fingerprint,omitempty"`
	Symbol      string              `json:"symbol"`
	Interval    string              `json:"interval"`
	Cached      bool                `json:"cached"`
	Duplicates  int                 `json:"duplicates,omitempty"`
	Gaps        []normalization.Gap `json:"gaps,omitempty"`
	Results     *smc.Results        `json:"results"`
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status   string    `json:"status"`
	Uptime   string    `json:"uptime"`
	Started  time.Time `json:"started"`
	Runs     int       `json:"runs"`
	Failures int       `json:"failures"`
	LastRun  time.Time `json:"last_run,omitempty"`

	ScheduledPasses int       `json:"scheduled_passes"`
	LastPass        time.Time `json:"last_pass,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:   "running",
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Started:  s.started,
		Runs:     s.runs,
		Failures: s.failures,
		LastRun:  s.lastRun,

		ScheduledPasses: s.passes,
		LastPass:        s.lastPass,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// handleAnalyzeSeries handles GET /v1/analysis/{symbol}/{interval}?start=&end=&format=
func (s *Server) handleAnalyzeSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req := analysis.Request{Series: domain.SeriesKey{Symbol: vars["symbol"], Interval: vars["interval"]}}

	var err error
	if req.Start, err = queryInt(r, "start"); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.End, err = queryInt(r, "end"); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.analyze(w, r, req)
}

// handleAnalyzeCandles handles POST /v1/analysis
func (s *Server) handleAnalyzeCandles(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(body.Candles) > s.cfg.MaxCandles {
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("%d candles exceeds limit of %d", len(body.Candles), s.cfg.MaxCandles))
		return
	}

	req := analysis.Request{
		Series:  domain.SeriesKey{Symbol: body.Symbol, Interval: body.Interval},
		Candles: body.Candles,
	}
	if req.Candles == nil {
		req.Candles = []domain.Candle{}
	}
	if len(body.Config) > 0 {
		cfg := s.runner.Config()
		if err := json.Unmarshal(body.Config, &cfg); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid config: %w", err))
			return
		}
		req.Config = &cfg
	}

	s.analyze(w, r, req)
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, req analysis.Request) {
	format, err := parseFormat(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := s.runner.Analyze(r.Context(), req)
	s.recordRun(err)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	switch format {
	case "markdown":
		writeText(w, "text/markdown; charset=utf-8", reporting.RenderMarkdown(s.reports.FromOutcome(out)))
	case "csv":
		writeText(w, "text/csv; charset=utf-8", reporting.RenderCSV(out.Results))
	default:
		writeJSON(w, http.StatusOK, AnalysisResponse{
			RunID:       out.Run.RunID,
			Fingerprint: out.Run.Fingerprint,
			Symbol:      out.Run.Series.Symbol,
			Interval:    out.Run.Series.Interval,
			Cached:      out.Cached,
			Duplicates:  out.Duplicates,
			Gaps:        out.Gaps,
			Results:     out.Results,
		})
	}
}

// handleLatestRun handles GET /v1/analysis/{symbol}/{interval}/latest
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	report, err := s.reports.Latest(r.Context(), domain.SeriesKey{Symbol: vars["symbol"], Interval: vars["interval"]})
	s.writeReport(w, r, report, err)
}

// handleGetRun handles GET /v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.ByRunID(r.Context(), mux.Vars(r)["id"])
	s.writeReport(w, r, report, err)
}

// VerifyResponse is the JSON response for /v1/runs/{id}/verify.
type VerifyResponse struct {
	RunID       string       `json:"run_id"`
	Series      string       `json:"series"`
	Match       bool         `json:"match"`
	Divergences []Divergence `json:"divergences,omitempty"`
}

// Divergence is one field that differs between the stored run and its replay.
type Divergence struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

// handleVerifyRun handles GET /v1/runs/{id}/verify
func (s *Server) handleVerifyRun(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("verification disabled"))
		return
	}
	res, err := s.verifier.VerifyRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	resp := VerifyResponse{RunID: res.RunID, Series: res.Series.String(), Match: res.Match}
	for _, d := range res.Divergences {
		resp.Divergences = append(resp.Divergences, Divergence{Field: d.Field, Expected: d.Expected, Actual: d.Actual})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, report *reporting.Report, err error) {
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	format, err := parseFormat(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	switch format {
	case "markdown":
		writeText(w, "text/markdown; charset=utf-8", reporting.RenderMarkdown(report))
	case "csv":
		writeText(w, "text/csv; charset=utf-8", reporting.RenderCSV(report.Results))
	default:
		writeJSON(w, http.StatusOK, AnalysisResponse{
			RunID:       report.RunID,
			Fingerprint: report.Fingerprint,
			Symbol:      report.Series.Symbol,
			Interval:    report.Series.Interval,
			Results:     report.Results,
		})
	}
}

func parseFormat(r *http.Request) (string, error) {
	switch f := r.URL.Query().Get("format"); f {
	case "", "json":
		return "json", nil
	case "markdown", "md":
		return "markdown", nil
	case "csv":
		return "csv", nil
	default:
		return "", fmt.Errorf("unknown format %q", f)
	}
}

func queryInt(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, smc.ErrInvalidCandle),
		errors.Is(err, smc.ErrNonMonotonicTime),
		errors.Is(err, smc.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, verification.ErrNoCandles):
		return http.StatusUnprocessableEntity
	case errors.Is(err, analysis.ErrNoCandleSource):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}
