package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"insightquest/events"
	"insightquest/models"
	"insightquest/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// SessionService is the session core as seen by the HTTP surface
type SessionService interface {
	Connect(ctx context.Context) (*models.User, error)
	RestoreSession(ctx context.Context) (*models.User, error)
	Disconnect(ctx context.Context) error
	EnsureNetwork(ctx context.Context) error
	AwardXP(ctx context.Context, amount int64) (*models.User, error)
	UpdateUsername(ctx context.Context, name string) (*models.User, error)
	RefreshUser(ctx context.Context) (*models.User, error)
	RefreshBalance() error
	State() models.SessionState
	Session() (models.Session, bool)
	User() (*models.User, bool)
	Balance() (models.BalanceCache, bool)
}

// EventSource delivers every published event to a handler in publish order
type EventSource interface {
	SubscribeAll(handler events.Handler) func()
}

type handler struct {
	sessions SessionService
	events   EventSource
}

// NewRouter returns the HTTP surface of the session core
func NewRouter(sessions SessionService, source EventSource) http.Handler {
	h := &handler{sessions: sessions, events: source}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Post("/connect", h.connect)
		r.Post("/restore", h.restore)
		r.Post("/disconnect", h.disconnect)
		r.Post("/network", h.ensureNetwork)
	})

	r.Route("/user", func(r chi.Router) {
		r.Get("/", h.getUser)
		r.Post("/xp", h.awardXP)
		r.Put("/username", h.updateUsername)
		r.Post("/refresh", h.refreshUser)
	})

	r.Route("/balance", func(r chi.Router) {
		r.Get("/", h.getBalance)
		r.Post("/refresh", h.refreshBalance)
	})

	r.Get("/events", h.streamEvents)
	return r
}

// Server runs the router until its context is cancelled
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// NewServer creates an HTTP server for handler on addr
func NewServer(addr string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.srv.Addr).Info("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  time.Since(start),
			"requestId": middleware.GetReqID(r.Context()),
		}).Debug("Handled request")
	})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessions.Session()
	resp := sessionResponse{State: h.sessions.State()}
	if ok {
		resp.Session = &session
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) connect(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.Connect(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *handler) restore(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.RestoreSession(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *handler) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Disconnect(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) ensureNetwork(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.EnsureNetwork(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.sessions.User()
	if !ok {
		writeServiceError(w, r, service.ErrNoActiveSession)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *handler) awardXP(w http.ResponseWriter, r *http.Request) {
	var req awardXPRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	user, err := h.sessions.AwardXP(r.Context(), req.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *handler) updateUsername(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	user, err := h.sessions.UpdateUsername(r.Context(), req.Username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *handler) refreshUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.RefreshUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.sessions.Balance()
	if !ok {
		writeServiceError(w, r, service.ErrNoActiveSession)
		return
	}
	writeJSON(w, http.StatusOK, newBalanceResponse(cache))
}

func (h *handler) refreshBalance(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.RefreshBalance(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
