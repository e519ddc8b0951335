// Package server exposes a msglog.Store and a tokendiff.Engine over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/msglog/msglog/internal/msglog"
	"github.com/msglog/msglog/internal/q/health"
	"github.com/msglog/msglog/internal/tokendiff"
	"github.com/msglog/msglog/internal/wireformat"
)

// DefaultMaxMessageBytes limits request bodies and websocket frames when Options.MaxMessageBytes is zero.
const DefaultMaxMessageBytes = 1 << 20

// shutdownGrace bounds how long Serve waits for in-flight requests after its context is canceled.
const shutdownGrace = 5 * time.Second

type Options struct {
	MaxMessageBytes int64         // 0 means DefaultMaxMessageBytes
	ReadTimeout     time.Duration // 0 means no timeout
	Logger          *slog.Logger  // nil discards logs
}

// Server serves the HTTP API. Create one with New.
type Server struct {
	store  *msglog.Store
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
	hub    *hub
}

func New(store *msglog.Store, opts Options) *Server {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		store:  store,
		opts:   opts,
		logger: logger,
		mux:    http.NewServeMux(),
		hub:    newHub(logger),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler (useful for testing).
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/diff", s.handleDiff)
	s.mux.HandleFunc("POST /api/events", s.handleEvent)
	s.mux.HandleFunc("GET /api/channels/{channel}/messages", s.handleMessages)
	s.mux.HandleFunc("GET /api/channels/{channel}/messages/{id}", s.handleMessage)
	s.mux.HandleFunc("GET /api/channels/{channel}/messages/{id}/edits", s.handleEdits)
	s.mux.HandleFunc("POST /api/channels/{channel}/messages/{id}/diff-view", s.handleToggleDiffView)
	s.mux.HandleFunc("DELETE /api/channels/{channel}/messages/{id}/history", s.handleRemoveHistory)
	s.mux.HandleFunc("DELETE /api/channels/{channel}/log", s.handleClearChannel)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return health.WrapHuman(fmt.Sprintf("cannot listen on %s", addr), "listen", err, "addr", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully: websocket clients are disconnected and in-flight requests get a grace period. It returns nil after
// a shutdown caused by ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.mux,
		ReadTimeout: s.opts.ReadTimeout,
		ErrorLog:    slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("serving", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return health.LogWrappedErr(s.logger, "shutdown", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

type diffRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type diffResponse struct {
	Segments tokendiff.Result `json:"segments"`
	Stats    tokendiff.Stats  `json:"stats"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req diffRequest
	if !s.decode(w, r, &req) {
		return
	}
	segments, stats := s.store.Engine().DiffWithStats(req.Old, req.New)
	if wireformat.Negotiate(r.Header.Get("Accept")) == wireformat.FormatText {
		s.respond(w, r, http.StatusOK, segments)
		return
	}
	s.respond(w, r, http.StatusOK, diffResponse{Segments: segments, Stats: stats})
}

// eventResponse is the reply to POST /api/events. Notice is set when the event recorded an edit.
type eventResponse struct {
	Notice *msglog.EditNotice `json:"notice,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev msglog.Event
	if !s.decode(w, r, &ev) {
		return
	}
	notice, err := s.apply(ev)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, eventResponse{Notice: notice})
}

// apply applies ev to the store and broadcasts any resulting notice to websocket clients.
func (s *Server) apply(ev msglog.Event) (*msglog.EditNotice, error) {
	notice, err := s.store.Apply(ev)
	if err != nil {
		return nil, err
	}
	if notice != nil {
		s.hub.broadcast(frame{Type: frameEdit, Notice: notice})
	}
	return notice, nil
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, s.store.Messages(r.PathValue("channel")))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	channelID, id := r.PathValue("channel"), r.PathValue("id")
	m, ok := s.store.Get(channelID, id)
	if !ok {
		s.fail(w, r, health.Wrap("get message", msglog.ErrUnknownMessage, "channel_id", channelID, "message_id", id))
		return
	}
	s.respond(w, r, http.StatusOK, m)
}

func (s *Server) handleEdits(w http.ResponseWriter, r *http.Request) {
	views, err := s.store.Edits(r.PathValue("channel"), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, views)
}

func (s *Server) handleToggleDiffView(w http.ResponseWriter, r *http.Request) {
	disabled, err := s.store.ToggleDiffView(r.PathValue("channel"), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]bool{"disabled": disabled})
}

func (s *Server) handleRemoveHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveHistory(r.PathValue("channel"), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearChannel(w http.ResponseWriter, r *http.Request) {
	n := s.store.ClearChannel(r.PathValue("channel"))
	s.respond(w, r, http.StatusOK, map[string]int{"cleared": n})
}

// decode reads the request body into v. On failure it writes a 400 (or 413 for an oversized body) and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxMessageBytes)
	err := wireformat.Decode(body, r.Header.Get("Content-Type"), v)
	if err == nil {
		return true
	}

	status := http.StatusBadRequest
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, io.EOF):
		err = errors.New("empty request body")
	}
	s.respond(w, r, status, errorResponse{Error: err.Error()})
	return false
}

// fail maps a store error to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, msglog.ErrUnknownMessage):
		status = http.StatusNotFound
	case errors.Is(err, msglog.ErrUnknownEvent), errors.Is(err, msglog.ErrInvalidEvent):
		status = http.StatusBadRequest
	default:
		health.LogErr(s.logger, err, "path", r.URL.Path)
	}
	s.respond(w, r, status, errorResponse{Error: err.Error()})
}

// respond writes v in the format the request's Accept header asks for. Only a bare tokendiff.Result has a text form; anything else is JSON when text is asked for.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	f := wireformat.Negotiate(r.Header.Get("Accept"))
	if _, ok := v.(tokendiff.Result); f == wireformat.FormatText && !ok {
		f = wireformat.FormatJSON
	}
	w.Header().Set("Content-Type", wireformat.ContentType(f))
	w.WriteHeader(status)
	if err := wireformat.Encode(w, f, v); err != nil {
		s.logger.Warn("write response", "path", r.URL.Path, "err", err)
	}
}
