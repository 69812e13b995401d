package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pders01/feedq/internal/debuglog"
	"github.com/pders01/feedq/internal/relay"
)

// UserHeader names the caller on read-only API requests.
const UserHeader = "X-Feedq-User"

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// CommandResponse carries the reply text of a command.
type CommandResponse struct {
	Reply string `json:"reply"`
}

// QueueEntry is one record as served by GET /api/queue.
type QueueEntry struct {
	GUID      string `json:"guid"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	PublishAt int64  `json:"publish_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes the command surface over HTTP.
type Server struct {
	cmds   *Commands
	svc    *relay.Service
	router chi.Router
	log    *debuglog.FieldLogger
}

func NewServer(cmds *Commands, svc *relay.Service) *Server {
	s := &Server{
		cmds: cmds,
		svc:  svc,
		log:  debuglog.WithFields(map[string]any{"component": "http"}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/command", s.handleCommand)
		r.Get("/queue", s.handleQueue)
	})

	s.router = r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("admin API listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.With("request_id", middleware.GetReqID(r.Context())).
			Debugf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	reply, ok, err := s.cmds.Execute(req.User, req.Text)
	if err != nil {
		s.log.Errorf("command %q failed: %v", req.Text, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Reply: reply})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	// Callers outside the allowlist see the same answer as a missing route.
	if !s.cmds.Authorized(r.Header.Get(UserHeader)) {
		http.NotFound(w, r)
		return
	}

	records, err := s.svc.List()
	if err != nil {
		s.log.Errorf("listing queue: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	entries := make([]QueueEntry, 0, len(records))
	for _, rec := range records {
		entry := QueueEntry{GUID: rec.GUID, PublishAt: rec.PublishAt}
		if p, err := rec.Decode(); err == nil {
			entry.Title = p.Title
			entry.Link = p.Link
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, entries)
}
