package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"unicornhat/internal/anim"
	"unicornhat/internal/config"
	"unicornhat/internal/convert"
	appLog "unicornhat/internal/log"
	"unicornhat/internal/matrix"
	"unicornhat/internal/model"
	"unicornhat/internal/panel"
)

// maxBody bounds request bodies; a PNG of the whole panel is far smaller.
const maxBody = 1 << 20

// Display is the panel surface the API drives. *panel.Panel satisfies it.
type Display interface {
	anim.Canvas
	Clear()
	Draw(dst image.Rectangle, src image.Image, sp image.Point) error
	Image() *image.NRGBA
	Brightness() float64
	SetBrightness(v float64) error
	Rotation() panel.Rotation
	SetRotation(r panel.Rotation) error
}

// Server provides the HTTP control API, the PNG preview and the websocket
// frame stream.
type Server struct {
	cfg      *config.Config
	display  Display
	player   *anim.Player
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, d Display, p *anim.Player) *Server {
	s := &Server{
		cfg:     cfg,
		display: d,
		player:  p,
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.registerRoutes()
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
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
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
			w.Header().Set("WWW-Authenticate", `Basic realm="unicornd", charset="UTF-8"`)
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
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
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

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/brightness", s.handleBrightness)
	s.mux.HandleFunc("POST /api/rotation", s.handleRotation)
	s.mux.HandleFunc("POST /api/mode", s.handleMode)
	s.mux.HandleFunc("POST /api/pixel", s.handlePixel)
	s.mux.HandleFunc("POST /api/fill", s.handleFill)
	s.mux.HandleFunc("POST /api/clear", s.handleClear)
	s.mux.HandleFunc("GET /api/frame", s.handleGetFrame)
	s.mux.HandleFunc("PUT /api/frame", s.handleFrame)
	s.mux.HandleFunc("GET /api/stream", s.handleStream)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type stateResponse struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Rotation   int     `json:"rotation"`
	Brightness float64 `json:"brightness"`
	Mode       string  `json:"mode"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	b := s.display.Bounds()
	writeJSON(w, http.StatusOK, stateResponse{
		Width:      b.Dx(),
		Height:     b.Dy(),
		Rotation:   int(s.display.Rotation()),
		Brightness: s.display.Brightness(),
		Mode:       s.player.Mode(),
	})
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value *float64 `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil || *req.Value < 0 || *req.Value > 1 {
		writeError(w, http.StatusBadRequest, "value must be between 0 and 1")
		return
	}
	if err := s.display.SetBrightness(*req.Value); err != nil {
		writeDisplayError(w, "set brightness", err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleRotation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rotation int `json:"rotation"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.display.SetRotation(panel.Rotation(req.Rotation)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode   string     `json:"mode"`
		Colour *model.RGB `json:"colour"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	col, err := model.ParseHex(s.cfg.Colour)
	if err != nil {
		col = model.White
	}
	if req.Colour != nil {
		col = *req.Colour
	}
	e, err := anim.ByName(req.Mode, col)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.player.SetEffect(e)
	appLog.Info("mode changed", "mode", s.player.Mode())
	s.handleState(w, r)
}

func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X      int       `json:"x"`
		Y      int       `json:"y"`
		Colour model.RGB `json:"colour"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.player.SetEffect(nil)
	if err := s.display.SetPixel(req.X, req.Y, req.Colour); err != nil {
		writeDisplayError(w, "set pixel", err)
		return
	}
	s.show(w)
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Colour model.RGB `json:"colour"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.player.SetEffect(nil)
	s.display.SetAll(req.Colour)
	s.show(w)
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.player.SetEffect(nil)
	s.display.Clear()
	s.show(w)
}

func (s *Server) show(w http.ResponseWriter) {
	if err := s.display.Show(); err != nil {
		writeDisplayError(w, "show", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFrame replaces the whole framebuffer. The body is either a PNG
// (Content-Type: image/png) or raw packed RGB of exactly width*height*3
// bytes.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "frame too large")
		return
	}
	var img image.Image
	if strings.HasPrefix(r.Header.Get("Content-Type"), "image/png") {
		img, err = s.pngFrame(body)
	} else {
		img, err = s.rawFrame(body)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.drawFrame(img); err != nil {
		writeDisplayError(w, "draw frame", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetFrame returns the framebuffer in the same raw layout PUT accepts.
func (s *Server) handleGetFrame(w http.ResponseWriter, _ *http.Request) {
	img := s.display.Image()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(convert.PackRGB(img, img.Bounds()))
}

// pngFrame decodes a PNG frame. The header is checked first so a small file
// declaring huge dimensions is rejected before any pixels are allocated.
func (s *Server) pngFrame(b []byte) (image.Image, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	bounds := s.display.Bounds()
	if cfg.Width != bounds.Dx() || cfg.Height != bounds.Dy() {
		return nil, fmt.Errorf("expected %dx%d image, got %dx%d", bounds.Dx(), bounds.Dy(), cfg.Width, cfg.Height)
	}
	return png.Decode(bytes.NewReader(b))
}

func (s *Server) rawFrame(b []byte) (image.Image, error) {
	bounds := s.display.Bounds()
	return convert.UnpackRGB(b, bounds.Dx(), bounds.Dy())
}

func (s *Server) drawFrame(img image.Image) error {
	s.player.SetEffect(nil)
	return s.display.Draw(s.display.Bounds(), img, img.Bounds().Min)
}

// handleStream accepts a websocket on which every binary message is one raw
// frame. Text messages are ignored; frame errors are reported back as text.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		appLog.Error("websocket upgrade failed", err)
		return
	}
	defer c.Close()
	c.SetReadLimit(maxBody)
	appLog.Info("stream client connected", "remote", r.RemoteAddr)

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				appLog.Debug("stream read ended", "err", err)
			}
			appLog.Info("stream client disconnected", "remote", r.RemoteAddr)
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		img, err := s.rawFrame(data)
		if err == nil {
			err = s.drawFrame(img)
		}
		if err != nil {
			if werr := c.WriteMessage(websocket.TextMessage, []byte(err.Error())); werr != nil {
				return
			}
		}
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, s.display.Image()); err != nil {
		appLog.Error("failed to encode preview", err)
	}
}

// decodeJSON reads a JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeDisplayError maps panel errors onto status codes: caller mistakes are
// 400, a shut-down panel is 503, bus failures are 500.
func writeDisplayError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, panel.ErrOutOfBounds):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, matrix.ErrHalted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		appLog.Error("display operation failed", err, "op", op)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
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
