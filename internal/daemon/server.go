package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/g960059/puppeteer/internal/api"
	"github.com/g960059/puppeteer/internal/config"
	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/engine"
	"github.com/g960059/puppeteer/internal/model"
	"github.com/g960059/puppeteer/internal/query"
)

const maxRequestBody = 1 << 20

type Deps struct {
	Store   *db.Store
	Engine  *engine.Engine
	Gateway *query.Gateway
	Logger  zerolog.Logger
}

type Server struct {
	cfg         config.Config
	httpSrv     *http.Server
	listener    net.Listener
	lockFile    *os.File
	engine      *engine.Engine
	gateway     *query.Gateway
	log         zerolog.Logger
	now         func() time.Time
	mu          sync.Mutex
	shutdown    sync.Once
	shutdownErr error
}

// NewServer serves only the health endpoint.
func NewServer(cfg config.Config) *Server {
	return NewServerWithDeps(cfg, Deps{Logger: zerolog.Nop()})
}

func NewServerWithDeps(cfg config.Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  deps.Engine,
		gateway: deps.Gateway,
		log:     deps.Logger.With().Str("component", "api").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	if s.gateway == nil && deps.Store != nil {
		s.gateway = query.NewGateway(deps.Store)
	}
	if s.engine == nil && deps.Store != nil {
		s.engine = engine.New(deps.Store, engine.Options{Logger: deps.Logger})
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, model.CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, model.CodeRefInvalid, "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.healthHandler)
		if s.engine == nil || s.gateway == nil {
			return
		}
		r.Post("/instantiate", s.instantiateHandler)
		r.Get("/config", s.getConfigHandler)
		r.Post("/config", s.updateConfigHandler)
		r.Get("/state", s.stateHandler)
		r.Get("/transactions", s.transactionsHandler)
		r.Get("/transactions/{sequence}", s.transactionHandler)
		r.Get("/delegations", s.delegationsHandler)
		r.Post("/ica/register", s.registerICAHandler)
		r.Post("/channel/open", s.channelOpenHandler)
		r.Post("/channel/close", s.channelCloseHandler)
		r.Post("/submit", s.submitHandler)
		r.Post("/ack", s.ackHandler)
		r.Post("/resync", s.resyncHandler)
		r.Post("/remote-snapshot", s.remoteSnapshotHandler)
		r.Get("/outbox", s.outboxHandler)
		r.Get("/events", s.eventsHandler)
	})

	s.httpSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.cfg.SocketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not unix socket: %s", s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("listen uds: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close()      //nolint:errcheck
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info().Str("socket", s.cfg.SocketPath).Msg("listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve uds: %w", err)
		}
		return nil
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		if s.cfg.SocketPath != "" {
			if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return s.shutdownErr
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				s.log.Error().
					Interface("panic", rvr).
					Str("path", r.URL.Path).
					Msg("recovered from panic")
				s.writeError(w, http.StatusInternalServerError, model.CodeInternal, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	resp := api.ErrorResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   s.now(),
		Error: api.APIError{
			Code:    code,
			Message: msg,
		},
	}
	s.writeJSON(w, status, resp)
}

// writeOpError maps an engine or gateway error to its HTTP status.
func (s *Server) writeOpError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case model.CodeUnauthorized:
		status = http.StatusForbidden
	case model.CodeNotFound:
		status = http.StatusNotFound
	case model.CodeDuplicateSequence, model.CodeNeedsResync, model.CodeAlreadyInitialized, model.CodeICANotRegistered:
		status = http.StatusConflict
	case model.CodeInvalidInstruction, model.CodeRefInvalid, model.CodeUnknownSequence:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		s.writeError(w, status, model.CodeInternal, "internal error")
		return
	}
	s.writeError(w, status, code, err.Error())
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, model.CodeRefInvalid, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) acquireLock() error {
	lockPath := s.cfg.SocketPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("daemon already running")
	}
	s.mu.Lock()
	s.lockFile = f
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	f := s.lockFile
	s.lockFile = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}
