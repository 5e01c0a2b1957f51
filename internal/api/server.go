// Package api serves tracked data over a read-only HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
	"github.com/eliteGoblin/focusd/focustrack/internal/export"
)

const dateLayout = "2006-01-02"

// maxRangeDays bounds one request.
const maxRangeDays = 366

// Pinger is implemented by readers that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config controls request interpretation.
type Config struct {
	Location            *time.Location // calendar days; nil means time.Local
	ProductiveThreshold float64
}

// Server is the read-only HTTP API.
type Server struct {
	router    chi.Router
	cfg       Config
	reader    domain.ActivityReader
	exporters *export.Registry
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewServer creates the API server and its routes.
func NewServer(cfg Config, reader domain.ActivityReader, exporters *export.Registry, clock clockwork.Clock, logger *zap.Logger) *Server {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		reader:    reader,
		exporters: exporters,
		clock:     clock,
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := s.clock.Now()
			next.ServeHTTP(w, r)
			s.logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("dur", s.clock.Since(start)))
		})
	})

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/activity", s.handleActivity)
		r.Get("/sessions", s.handleSessions)
		r.Get("/summaries", s.handleSummaries)
		r.Get("/summaries/{date}", s.handleSummary)
		r.Get("/export/{format}", s.handleExport)
	})
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// within a bounded grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.reader.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := export.LoadActivity(r.Context(), s.reader, s.exportRequest(rng))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	sessions, err := s.reader.ListSessions(r.Context(), rng)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]export.SessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, export.SessionJSON(sess, s.cfg.Location))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	summaries, err := s.reader.ListSummaries(r.Context(), rng)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]export.SummaryView, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, export.SummaryJSON(sum))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.ParseInLocation(dateLayout, date, s.cfg.Location); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date))
		return
	}
	sum, err := s.reader.GetSummary(r.Context(), date)
	if errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no summary for %s", date))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, export.SummaryJSON(*sum))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	exporter, err := s.exporters.Get(chi.URLParam(r, "format"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	rng, err := s.parseRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	// Render fully before writing so a failure can still set the status.
	var buf strings.Builder
	if err := exporter.Export(r.Context(), &buf, s.reader, s.exportRequest(rng)); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="focustrack-%s.%s"`, rng.From.Format(dateLayout), exporter.Name()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(buf.String()))
}

func (s *Server) exportRequest(rng domain.TimeRange) export.Request {
	return export.Request{
		Range:               rng,
		Location:            s.cfg.Location,
		ProductiveThreshold: s.cfg.ProductiveThreshold,
	}
}

// parseRange reads ?date= or ?from=&to= (inclusive calendar days). With
// neither, the range is today.
func (s *Server) parseRange(r *http.Request) (domain.TimeRange, error) {
	q := r.URL.Query()
	if date := q.Get("date"); date != "" {
		day, err := s.parseDay(date)
		if err != nil {
			return domain.TimeRange{}, err
		}
		return domain.TimeRange{From: day, To: day.AddDate(0, 0, 1)}, nil
	}

	now := s.clock.Now().In(s.cfg.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	from, to := today, today
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = s.parseDay(v); err != nil {
			return domain.TimeRange{}, err
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = s.parseDay(v); err != nil {
			return domain.TimeRange{}, err
		}
	} else if q.Get("from") != "" && from.After(to) {
		to = from
	}
	if to.Before(from) {
		return domain.TimeRange{}, fmt.Errorf("from %s is after to %s", from.Format(dateLayout), to.Format(dateLayout))
	}
	end := to.AddDate(0, 0, 1)
	if end.Sub(from) > maxRangeDays*24*time.Hour+time.Hour {
		return domain.TimeRange{}, fmt.Errorf("range exceeds %d days", maxRangeDays)
	}
	return domain.TimeRange{From: from, To: end}, nil
}

func (s *Server) parseDay(v string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, v, s.cfg.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
	}
	return day, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
