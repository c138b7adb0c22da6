package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"epdacep/internal/app"
	"epdacep/internal/battery"
	"epdacep/internal/config"
	"epdacep/internal/convert"
	"epdacep/internal/framebuf"
	appLog "epdacep/internal/log"
)

// Display is what the HTTP surface needs from the application.
type Display interface {
	Status() app.Status
	Update(ctx context.Context) error
	LastFrame() *framebuf.Buffer
}

// Server provides the HTTP status API.
// /health 는 항상 무인증, 나머지는 basic auth 설정 시 인증이 필요하다.
type Server struct {
	cfg     *config.Config
	disp    Display
	battery battery.Reader
	mux     *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, disp Display) *Server {
	s := &Server{
		cfg:  cfg,
		disp: disp,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// WithBattery enables /api/battery backed by r.
func (s *Server) WithBattery(r battery.Reader) *Server {
	s.battery = r
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// 빈 사용자명 또는 비밀번호가 설정된 경우에는 비활성화로 취급한다.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="epdacep", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/battery", s.handleBattery)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.HandleFunc("GET /preview.bmp", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.disp.Status())
}

// handleRefresh runs one update synchronously. Updates are serialized with
// the scheduler inside app.Display, so a request during a scheduled refresh
// waits for it.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.disp.Update(r.Context()); err != nil {
		appLog.Error("manual refresh failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.disp.Status())
}

// handleBattery exposes current battery status (percent, voltage).
func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	if s.battery == nil {
		writeError(w, http.StatusNotFound, "battery readout disabled")
		return
	}
	status, err := s.battery.Read(r.Context())
	if err != nil {
		appLog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handlePreview encodes the last presented frame. The format follows the
// request path (.png or .bmp).
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	buf := s.disp.LastFrame()
	if buf == nil {
		writeError(w, http.StatusNotFound, "no frame presented yet")
		return
	}

	var (
		out         bytes.Buffer
		err         error
		contentType string
	)
	if r.URL.Path == "/preview.bmp" {
		contentType = "image/bmp"
		err = convert.WriteBMP(&out, buf)
	} else {
		contentType = "image/png"
		err = convert.WritePNG(&out, buf)
	}
	if err != nil {
		appLog.Error("preview encode failed", err)
		writeError(w, http.StatusInternalServerError, "failed to encode preview")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(out.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
