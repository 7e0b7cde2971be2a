package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"TechTreeCost/internal/domain"
	"TechTreeCost/internal/ports"
)

// CostResponse is the JSON body of the unit cost endpoint.
type CostResponse struct {
	UnitID         string    `json:"unitId"`
	ResearchPoints int64     `json:"researchPoints"`
	PurchaseCost   int64     `json:"purchaseCost"`
	FetchedAt      time.Time `json:"fetchedAt"`
	Cached         bool      `json:"cached"`
	Resolved       bool      `json:"resolved"`
	Badge          string    `json:"badge"`
}

// Server exposes the cache-or-fetch path over HTTP.
type Server struct {
	cache  ports.CostCache
	queue  ports.FetchQueue
	logger *slog.Logger
	router chi.Router
}

// New builds the router with request id, recovery and slog request logging.
func New(cache ports.CostCache, queue ports.FetchQueue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cache: cache, queue: queue, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/units/{unitID}/costs", s.handleUnitCosts)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleUnitCosts(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")
	if unitID == "" {
		http.Error(w, "missing unit id", http.StatusBadRequest)
		return
	}

	if s.cache != nil {
		rec, ok, err := s.cache.Get(r.Context(), unitID)
		if err != nil {
			s.logger.Warn("cache read failed", "unit", unitID, "error", err)
		} else if ok {
			s.writeJSON(w, http.StatusOK, toResponse(unitID, domain.Resolution{Record: rec, Resolved: true}, true))
			return
		}
	}

	results := make(chan domain.Resolution, 1)
	s.queue.Enqueue(unitID, func(res domain.Resolution) {
		results <- res
	})

	select {
	case res := <-results:
		s.writeJSON(w, http.StatusOK, toResponse(unitID, res, false))
	case <-r.Context().Done():
		http.Error(w, "fetch still queued", http.StatusGatewayTimeout)
	}
}

func toResponse(unitID string, res domain.Resolution, cached bool) CostResponse {
	return CostResponse{
		UnitID:         unitID,
		ResearchPoints: res.Record.ResearchPoints,
		PurchaseCost:   res.Record.PurchaseCost,
		FetchedAt:      res.Record.FetchedAt,
		Cached:         cached,
		Resolved:       res.Resolved,
		Badge:          domain.Badge(res.Record),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
