package server

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"

	"github.com/twsight/twsight/internal/modules/backtest"
	"github.com/twsight/twsight/internal/modules/scoring"
	"github.com/twsight/twsight/internal/modules/universe"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "twsight",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSystemStatus handles system status requests
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := map[string]interface{}{
		"status": "running",
		"memory": map[string]interface{}{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"num_gc":         m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSignal returns the rule-based signal for one ticker.
// GET /api/signal/{ticker}?mode=short|long
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	horizon := scoring.HorizonShort
	if r.URL.Query().Get("mode") == string(scoring.HorizonLong) {
		horizon = scoring.HorizonLong
	}

	result, err := s.analysis.ScoreOne(ticker, horizon)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleSnapshot returns the model-probability snapshot for one ticker.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.analysis.Snapshot(chi.URLParam(r, "ticker"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

// handleScan runs a universe scan.
// GET /api/scan?mode=short|long|probability&sector=all|semi|finance|etf
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	sector := r.URL.Query().Get("sector")
	if sector == "" {
		sector = "all"
	}

	mode := universe.ScanMode(r.URL.Query().Get("mode"))
	switch mode {
	case universe.ModeShort, universe.ModeLong, universe.ModeProbability:
	default:
		mode = universe.ModeShort
	}

	s.writeJSON(w, http.StatusOK, s.analysis.Scan(sector, mode))
}

// handlePredict returns P(up) for the ticker's latest session.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	prob, modelUsed, err := s.analysis.PredictLatest(ticker)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":     ticker,
		"prob_up":    prob,
		"model_used": modelUsed,
	})
}

type trainRequest struct {
	Tickers []string `json:"tickers"`
}

// handleTrain trains the direction classifier and persists the payload.
// POST /api/train {"tickers": ["2330.TW", ...]} — empty body pools the
// default universe.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if r.Body != nil {
		// An empty or absent body is a valid "use defaults" request.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := s.analysis.Train(req.Tickers)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics":     result.Metrics,
		"train_rows":  result.TrainRows,
		"test_rows":   result.TestRows,
		"hyperparams": result.Hyperparams,
		"metadata":    result.Payload.Metadata,
	})
}

type backtestRequest struct {
	BuyThreshold  *float64 `json:"buy_threshold"`
	SellThreshold *float64 `json:"sell_threshold"`
}

// handleBacktest replays the persisted model over one ticker's history.
// Failures are part of the stats payload, not HTTP errors: the simulator
// reports them as structured result strings.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	cfg := backtest.Config{
		BuyThreshold:      s.cfg.BuyThreshold,
		SellThreshold:     s.cfg.SellThreshold,
		IncludeStochastic: s.cfg.IncludeStochastic,
	}

	var req backtestRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.BuyThreshold != nil {
		cfg.BuyThreshold = *req.BuyThreshold
	}
	if req.SellThreshold != nil {
		cfg.SellThreshold = *req.SellThreshold
	}
	if cfg.BuyThreshold <= cfg.SellThreshold {
		s.writeError(w, http.StatusBadRequest, "buy threshold must exceed sell threshold")
		return
	}

	stats, err := s.analysis.Backtest(chi.URLParam(r, "ticker"), cfg)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
