package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/importer"
	"github.com/MikeSquared-Agency/shiftbook/internal/qa"
	"github.com/MikeSquared-Agency/shiftbook/internal/ratelimit"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
	"github.com/MikeSquared-Agency/shiftbook/internal/session"
)

// maxUploadBytes bounds a turn body, including a base64 or multipart PDF.
const maxUploadBytes = 32 << 20

type TurnHandler interface {
	HandleTurn(ctx context.Context, req importer.TurnRequest) (*importer.TurnResponse, error)
}

type SessionReader interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

type Answerer interface {
	Answer(ctx context.Context, agentID, question string, today schedule.Date) (*qa.Response, error)
}

type Options struct {
	Port     int
	Turns    TurnHandler
	Sessions SessionReader
	QA       Answerer
	Limiter  *ratelimit.IPRateLimiter
	// Location is the zone Q&A resolves "today" in.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

type Server struct {
	router   *chi.Mux
	http     *http.Server
	turns    TurnHandler
	sessions SessionReader
	qa       Answerer
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

type questionRequest struct {
	AgentID  string `json:"agent_id" validate:"required,max=128"`
	Question string `json:"question" validate:"required,max=1000"`
}

var validate = validator.New()

func NewServer(opts Options) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		turns:    opts.Turns,
		sessions: opts.Sessions,
		qa:       opts.QA,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}
		r.Post("/bulletins/turns", s.handleTurn)
		r.Get("/bulletins/sessions/{id}", s.getSession)
		r.Post("/qa", s.askQuestion)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called, which makes it return nil.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	req, err := decodeTurn(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp, err := s.turns.HandleTurn(r.Context(), req)
	if err != nil {
		s.logger.Warn("turn failed",
			"agent_id", req.AgentID,
			"conversation_id", req.ConversationID,
			"kind", apperr.GetKind(err).String(),
			"error", err,
		)
		if resp != nil {
			writeJSON(w, apperr.Status(err), resp)
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeTurn accepts either a JSON body or a multipart form whose "file"
// part is the bulletin and whose "payload" part, when present, is the JSON
// turn without the document.
func decodeTurn(r *http.Request) (importer.TurnRequest, error) {
	var req importer.TurnRequest
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, apperr.Validation(fmt.Sprintf("invalid request body: %v", err))
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return req, apperr.Validation(fmt.Sprintf("invalid multipart body: %v", err))
	}
	if payload := r.FormValue("payload"); payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return req, apperr.Validation(fmt.Sprintf("invalid payload: %v", err))
		}
	}
	if req.AgentID == "" {
		req.AgentID = r.FormValue("agent_id")
	}
	if req.ConversationID == "" {
		req.ConversationID = r.FormValue("conversation_id")
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil
		}
		return req, apperr.Validation(fmt.Sprintf("read upload: %v", err))
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return req, apperr.Validation(fmt.Sprintf("read upload: %v", err))
	}
	req.PDFBytes = data
	return req, nil
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		s.writeError(w, apperr.Validation("agent_id query parameter is required"))
		return
	}

	if _, err := uuid.Parse(id); err != nil {
		s.writeError(w, apperr.NotFound(fmt.Sprintf("session %s not found", id)))
		return
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Sessions of other agents are reported as missing.
	if sess.OwnerID != agentID {
		s.writeError(w, apperr.NotFound(fmt.Sprintf("session %s not found", id)))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) askQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Validation(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, apperr.Validation(err.Error()))
		return
	}

	today := schedule.DateOf(s.now().In(s.loc))
	resp, err := s.qa.Answer(r.Context(), req.AgentID, req.Question, today)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperr.Status(err)
	msg := "internal error"
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind != apperr.KindInternal {
		msg = e.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   apperr.GetKind(err).String(),
		"message": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
