// Package api exposes the editor commands over HTTP.
//
// Routes take and return JSON, except the preview (PNG), audio (WAV) and
// scene (SVG/DOT) renderings. Errors are reported as
//
//	{"code": "TIMELINE", "error": "element x: trims exceed duration"}
//
// with a status derived from the error code. Exports run in the background:
// POST /export starts one and GET /export polls its status.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/framecut/framecut/pkg/editor"
	"github.com/framecut/framecut/pkg/errors"
)

// Server serves one editor.
type Server struct {
	ed     *editor.Editor
	logger *log.Logger
	router chi.Router

	// exports outlive the request that started them.
	base    context.Context
	stop    context.CancelFunc
	exports sync.WaitGroup
}

// New creates a server for ed.
func New(ed *editor.Editor, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	base, stop := context.WithCancel(context.Background())
	s := &Server{ed: ed, logger: logger, base: base, stop: stop}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/media", s.listMedia)
	r.Get("/timeline", s.getTimeline)

	r.Route("/tracks", func(r chi.Router) {
		r.Post("/", s.addTrack)
		r.Delete("/{trackID}", s.removeTrack)
		r.Post("/{trackID}/elements", s.addElement)
	})
	r.Post("/drop", s.drop)

	r.Route("/elements/{elementID}", func(r chi.Router) {
		r.Delete("/", s.removeElement)
		r.Post("/trim", s.trim)
		r.Post("/move", s.move)
		r.Post("/split", s.split)
	})

	r.Route("/resize", func(r chi.Router) {
		r.Post("/begin", s.beginResize)
		r.Post("/move", s.resizeTo)
		r.Post("/end", s.endResize)
		r.Post("/cancel", s.cancelResize)
	})

	r.Route("/playback", func(r chi.Router) {
		r.Get("/", s.playbackState)
		r.Post("/play", s.play)
		r.Post("/pause", s.pause)
		r.Post("/seek", s.seek)
		r.Post("/speed", s.speed)
	})

	r.Get("/preview.png", s.preview)
	r.Get("/audio.wav", s.audio)
	r.Get("/scene.dot", s.sceneDOT)
	r.Get("/scene.svg", s.sceneSVG)

	r.Route("/export", func(r chi.Router) {
		r.Get("/", s.exportStatus)
		r.Post("/", s.startExport)
		r.Delete("/", s.cancelExport)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully and cancels running exports.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdown)
	s.Close()
	return err
}

// Close cancels running exports and waits for them to stop.
func (s *Server) Close() {
	s.stop()
	s.exports.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).Round(time.Microsecond),
			"id", middleware.GetReqID(r.Context()))
	})
}

// =============================================================================
// Responses
// =============================================================================

type errorResponse struct {
	Code  errors.Code `json:"code,omitempty"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := statusFor(code)
	if status >= 500 {
		s.logger.Warn("request failed", "code", code, "error", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Error: err.Error()})
}

func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeTimeline:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeCanceled:
		return http.StatusConflict
	case errors.ErrCodeResource:
		return http.StatusRequestEntityTooLarge
	case errors.ErrCodePlatformCompatibility:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request")
	}
	return nil
}

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	var f float64
	if _, err := fmt.Sscan(v, &f); err != nil {
		return 0, errors.New(errors.ErrCodeInvalidInput, "query %s: %q is not a number", name, v)
	}
	return f, nil
}
