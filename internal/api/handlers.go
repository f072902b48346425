package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/BlissPhinehas/trading-dashboard/internal/aggregate"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

// Response is the envelope of every /api/stocks answer.
type Response[T any] struct {
	Data       T         `json:"data"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	DataSource string    `json:"dataSource"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	Version       string    `json:"version"`
	HasRecentData bool      `json:"hasRecentData"`
}

type infoResponse struct {
	Provider        string            `json:"provider"`
	HasRecentData   bool              `json:"hasRecentData"`
	TrackedSymbols  []string          `json:"trackedSymbols"`
	CacheTTLSeconds int               `json:"cacheTtlSeconds"`
	RefreshSchedule string            `json:"refreshSchedule,omitempty"`
	Summary         aggregate.Summary `json:"summary"`
	LastRefresh     *refreshStatus    `json:"lastRefresh,omitempty"`
	RefreshRunning  string            `json:"refreshRunning,omitempty"`
}

type refreshAccepted struct {
	RefreshID string `json:"refreshId"`
	Status    string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) requestLog(r *http.Request) logrus.FieldLogger {
	return s.log.WithField("request_id", RequestID(r.Context()))
}

func (s *Server) quotesResponse(quotes []provider.Quote, msg string) Response[[]provider.Quote] {
	return Response[[]provider.Quote]{
		Data:       quotes,
		Message:    msg,
		Timestamp:  time.Now().UTC(),
		DataSource: aggregate.Summarize(quotes).DataSource(s.svc.ProviderName()),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "UP",
		Timestamp:     time.Now().UTC(),
		Service:       serviceName,
		Version:       s.opts.Version,
		HasRecentData: s.svc.HasRecentData(),
	})
}

// handleMarketData never reaches the provider.
func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.quotesResponse(s.svc.GetCachedQuotes(), "Market data retrieved successfully"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	quotes, err := s.svc.GetAllQuotes(ctx)
	msg := "Live market data retrieved successfully"
	if err != nil {
		if r.Context().Err() != nil {
			s.requestLog(r).WithError(err).Debug("client went away")
			return
		}
		s.requestLog(r).WithError(err).Warn("live fetch timed out, serving cached data")
		quotes = s.svc.GetCachedQuotes()
		msg = "Live data unavailable in time, serving cached data"
	}
	writeJSON(w, http.StatusOK, s.quotesResponse(quotes, msg))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last, running := s.lastRefresh, s.refreshID
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, infoResponse{
		Provider:        s.svc.ProviderName(),
		HasRecentData:   s.svc.HasRecentData(),
		TrackedSymbols:  s.svc.TrackedSymbols(),
		CacheTTLSeconds: int(s.svc.CacheTTL() / time.Second),
		RefreshSchedule: s.opts.RefreshSchedule,
		Summary:         aggregate.Summarize(s.svc.GetCachedQuotes()),
		LastRefresh:     last,
		RefreshRunning:  running,
	})
}

func (s *Server) handleSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := provider.NormalizeSymbol(r.PathValue("symbol"))
	if !provider.ValidSymbol(symbol) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid symbol %q", r.PathValue("symbol")))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	q, err := s.svc.GetQuote(ctx, symbol)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.requestLog(r).WithError(err).WithField("symbol", symbol).Warn("quote fetch timed out, serving cached data")
		q = s.svc.GetCachedQuote(symbol)
	}

	msg := fmt.Sprintf("Stock data for %s retrieved successfully", symbol)
	if q.Provenance == provider.ProvenanceFallback {
		msg = fmt.Sprintf("Real data unavailable for %s, using simulated data", symbol)
	}
	writeJSON(w, http.StatusOK, Response[provider.Quote]{
		Data:       q,
		Message:    msg,
		Timestamp:  time.Now().UTC(),
		DataSource: aggregate.Summarize([]provider.Quote{q}).DataSource(s.svc.ProviderName()),
	})
}

// handleRefresh starts RefreshAll in the background. While one is running
// further triggers get its id instead of starting another.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.refreshID != "" {
		id := s.refreshID
		s.mu.Unlock()
		writeJSON(w, http.StatusAccepted, Response[refreshAccepted]{
			Data:       refreshAccepted{RefreshID: id, Status: "running"},
			Message:    "Market data refresh already in progress",
			Timestamp:  time.Now().UTC(),
			DataSource: s.svc.ProviderName(),
		})
		return
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	id := uuid.NewString()
	s.refreshID = id
	s.wg.Add(1)
	s.mu.Unlock()

	log := s.requestLog(r).WithField("refresh_id", id)
	go func() {
		defer s.wg.Done()
		report := s.svc.RefreshAll(s.ctx)
		s.mu.Lock()
		s.refreshID = ""
		s.lastRefresh = &refreshStatus{ID: id, RefreshReport: report}
		s.mu.Unlock()
		log.WithFields(logrus.Fields{
			"updated": len(report.Updated),
			"failed":  len(report.Failed),
		}).Info("manual refresh finished")
	}()

	log.Info("manual refresh started")
	writeJSON(w, http.StatusAccepted, Response[refreshAccepted]{
		Data:       refreshAccepted{RefreshID: id, Status: "started"},
		Message:    "Market data refresh initiated - data will update in background",
		Timestamp:  time.Now().UTC(),
		DataSource: s.svc.ProviderName(),
	})
}
