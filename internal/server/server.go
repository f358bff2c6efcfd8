// Package server streams solves to browsers over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lawnchairsociety/wfcgen/internal/config"
	"github.com/lawnchairsociety/wfcgen/internal/database"
	"github.com/lawnchairsociety/wfcgen/internal/logger"
	"github.com/lawnchairsociety/wfcgen/internal/sample"
	"github.com/lawnchairsociety/wfcgen/internal/wfc"
)

// MaxAttempts caps the attempts a single request may ask for.
const MaxAttempts = 10

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg         config.ServerConfig
	sample      *sample.Sample
	model       *wfc.Model
	store       *database.Database
	connLimiter *ConnLimiter
	upgrader    websocket.Upgrader
}

// NewServer creates a server that solves smp unless a request brings its
// own sample. store may be nil, in which case nothing is persisted.
func NewServer(cfg config.ServerConfig, smp *sample.Sample, store *database.Database) (*Server, error) {
	if smp == nil {
		smp = sample.Coastline()
	}
	model, err := wfc.Learn(smp.Rows)
	if err != nil {
		return nil, fmt.Errorf("learning sample %s: %w", smp.Name, err)
	}

	s := &Server{
		cfg:         cfg,
		sample:      smp,
		model:       model,
		store:       store,
		connLimiter: NewConnLimiter(cfg.Connections),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := s.cfg.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("WebSocket connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}
	return s, nil
}

// Handler returns the HTTP routes: /ws for streaming and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocketUpgrade)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled. Open streams are closed
// along with it.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info("Server listening", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Server shutdown complete")
	return nil
}

// handleWebSocketUpgrade upgrades an HTTP connection to WebSocket and runs
// the session until the client goes away.
func (s *Server) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	ip := getRealIP(r)

	if !s.connLimiter.TryAcquire(ip) {
		logger.Warning("WebSocket connection rejected - limit exceeded",
			"remote_addr", r.RemoteAddr,
			"client_ip", ip)
		http.Error(w, "Too many connections. Please try again later.", http.StatusTooManyRequests)
		return
	}
	defer s.connLimiter.Release(ip)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		logger.Debug("WebSocket upgrade failed", "client_ip", ip, "error", err)
		return
	}
	if s.cfg.WebSocket.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.WebSocket.MaxMessageSize)
	}

	client := NewWebSocketClient(conn)
	defer client.Close()

	// Hijacked connections outlive http.Server.Shutdown, so close it here.
	ctx := r.Context()
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	s.handleSession(ctx, client, logger.With("client_ip", ip))
}

func (s *Server) handleSession(ctx context.Context, client *WebSocketClient, log *slog.Logger) {
	log.Info("Client connected")
	defer log.Info("Client disconnected")

	for {
		req, err := client.ReadRequest()
		if errors.Is(err, ErrBadRequest) {
			if err := client.WriteFrame(errorFrame(err)); err != nil {
				return
			}
			continue
		}
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.Debug("Read failed", "error", err)
			}
			return
		}

		if err := s.solve(ctx, client, req, log); err != nil {
			log.Debug("Session ended", "error", err)
			return
		}
	}
}

// solve runs one request and streams it. Rejected or failed solves are
// reported to the client; only connection errors are returned.
func (s *Server) solve(ctx context.Context, client *WebSocketClient, req *Request, log *slog.Logger) error {
	smp, model := s.sample, s.model
	if len(req.Sample) > 0 {
		custom, err := sample.FromStrings("", req.Sample)
		if err != nil {
			return client.WriteFrame(errorFrame(err))
		}
		if model, err = wfc.Learn(custom.Rows); err != nil {
			return client.WriteFrame(errorFrame(err))
		}
		smp = custom
	}

	if req.Width <= 0 || req.Height <= 0 {
		return client.WriteFrame(errorFrame(fmt.Errorf("%w: %dx%d", wfc.ErrInvalidSize, req.Width, req.Height)))
	}
	if req.Width > s.cfg.MaxCells/req.Height {
		return client.WriteFrame(errorFrame(fmt.Errorf("grid %dx%d exceeds the limit of %d cells",
			req.Width, req.Height, s.cfg.MaxCells)))
	}
	attempts := min(max(req.Attempts, 1), MaxAttempts)

	solveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeErr error
	delay := s.cfg.StepDelay()
	gen := wfc.NewGenerator(&wfc.Config{
		Width:    req.Width,
		Height:   req.Height,
		Seed:     req.Seed,
		Attempts: attempts,
	})
	gen.OnStep = func(step wfc.Step) {
		if writeErr != nil {
			return
		}
		writeErr = client.WriteFrame(StepFrame{
			Type:      FrameStep,
			Iteration: step.Iteration,
			X:         step.X,
			Y:         step.Y,
			Tile:      step.Tile.String(),
			Remaining: step.Remaining,
		})
		if writeErr != nil {
			cancel()
			return
		}
		if delay > 0 {
			select {
			case <-solveCtx.Done():
			case <-time.After(delay):
			}
		}
	}

	log.Debug("Solve started", "width", req.Width, "height", req.Height, "seed", req.Seed, "attempts", attempts)
	result, err := gen.GenerateModel(solveCtx, model)
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Info("Solve failed", "width", req.Width, "height", req.Height, "seed", req.Seed, "error", err)
		return client.WriteFrame(errorFrame(err))
	}

	done := DoneFrame{
		Type:       FrameDone,
		Seed:       result.Seed,
		Attempt:    result.Attempt,
		Iterations: result.Iterations,
	}
	for _, row := range result.Tiles {
		done.Rows = append(done.Rows, tileString(row))
	}
	if s.store != nil {
		id, err := s.persist(smp, done.Rows, result)
		if err != nil {
			log.Error("Failed to store generation", "error", err)
		}
		done.ID = id
	}

	log.Info("Solve finished",
		"width", result.Width,
		"height", result.Height,
		"seed", result.Seed,
		"iterations", result.Iterations,
		"duration", result.Duration)
	return client.WriteFrame(done)
}

func (s *Server) persist(smp *sample.Sample, rows []string, result *wfc.Result) (string, error) {
	fingerprint := smp.Fingerprint()
	if _, err := s.store.SaveSample(&database.Sample{
		Fingerprint: fingerprint,
		Name:        smp.Name,
		Rows:        smp.Strings(),
	}); err != nil {
		return "", err
	}
	return s.store.SaveGeneration(&database.Generation{
		SampleFingerprint: fingerprint,
		Width:             result.Width,
		Height:            result.Height,
		Seed:              result.Seed,
		Attempt:           result.Attempt,
		Iterations:        result.Iterations,
		Rows:              rows,
	})
}

func errorFrame(err error) ErrorFrame {
	frame := ErrorFrame{Type: FrameError, Error: err.Error()}
	var ce *wfc.ContradictionError
	if errors.As(err, &ce) {
		x, y := ce.X, ce.Y
		frame.X, frame.Y = &x, &y
	}
	return frame
}

func tileString(row []wfc.Tile) string {
	runes := make([]rune, len(row))
	for i, t := range row {
		runes[i] = rune(t)
	}
	return string(runes)
}
