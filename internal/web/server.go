// Package web serves the question form and a small JSON API. Questions are
// answered one at a time.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ory/herodot"

	"pdfqa/internal/apperrors"
)

// QA is the part of the QA service the web front end uses.
type QA interface {
	Ask(ctx context.Context, question string) (string, error)
	Summary(ctx context.Context) (string, error)
}

// Server is the HTTP front end for a QA service.
type Server struct {
	qa     QA
	router chi.Router
	writer *herodot.JSONWriter
	logger *slog.Logger

	// held while a question is processed
	mu sync.Mutex
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewServer builds the router for qa. A nil logger falls back to slog.Default.
func NewServer(qa QA, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		qa:     qa,
		router: chi.NewRouter(),
		writer: herodot.NewJSONWriter(nil),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", s.showForm)
	s.router.Post("/", s.submitForm)
	s.router.Get("/health", s.healthCheck)
	s.router.Post("/api/ask", s.askJSON)
	s.router.Get("/api/summary", s.summaryJSON)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ask runs one question with the server marked busy.
func (s *Server) ask(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qa.Ask(ctx, question)
}

func (s *Server) showForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, pageData{Summary: s.pageSummary(r.Context())})
}

// pageSummary returns the document summary shown above the form. It is asked
// for on every page view so a reloaded document shows its own summary. A
// failure leaves it blank.
func (s *Server) pageSummary(ctx context.Context) string {
	summary, err := s.qa.Summary(ctx)
	if err != nil {
		s.logger.Warn("document summary unavailable", "error", err)
		return ""
	}
	return summary
}

func (s *Server) submitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, pageData{Error: "Invalid form submission."})
		return
	}
	question := strings.TrimSpace(r.PostForm.Get("question"))
	if question == "" {
		s.render(w, http.StatusOK, pageData{Summary: s.pageSummary(r.Context())})
		return
	}

	answer, err := s.ask(r.Context(), question)
	if err != nil {
		s.logger.Error("question failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		s.render(w, apperrors.HTTPStatus(err), pageData{Question: question, Error: apperrors.UserMessage(err)})
		return
	}
	s.render(w, http.StatusOK, pageData{Question: question, Answer: answer, Answered: true})
}

func (s *Server) askJSON(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Invalid request body"))
		return
	}
	answer, err := s.ask(r.Context(), req.Question)
	if err != nil {
		s.logger.Error("question failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		s.writer.WriteError(w, r, toHerodot(err))
		return
	}
	s.writer.Write(w, r, &askResponse{Question: strings.TrimSpace(req.Question), Answer: answer})
}

func (s *Server) summaryJSON(w http.ResponseWriter, r *http.Request) {
	summary, err := s.qa.Summary(r.Context())
	if err != nil {
		s.writer.WriteError(w, r, toHerodot(err))
		return
	}
	s.writer.Write(w, r, &summaryResponse{Summary: summary})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.writer.Write(w, r, &healthResponse{Status: "healthy"})
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("rendering page", "error", err)
	}
}

func toHerodot(err error) *herodot.DefaultError {
	code := apperrors.HTTPStatus(err)
	return &herodot.DefaultError{
		CodeField:   code,
		StatusField: http.StatusText(code),
		ErrorField:  apperrors.UserMessage(err),
		ReasonField: string(apperrors.KindOf(err)),
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
