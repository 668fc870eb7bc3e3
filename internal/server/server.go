package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/standardbeagle/themescan/internal/config"
	"github.com/standardbeagle/themescan/internal/debug"
	scanerrors "github.com/standardbeagle/themescan/internal/errors"
	"github.com/standardbeagle/themescan/internal/scan"
	"github.com/standardbeagle/themescan/internal/types"
	"github.com/standardbeagle/themescan/internal/version"
)

// Backend is the store a ScanServer scans
type Backend interface {
	scan.Source
	ResolveThemeID(ctx context.Context, configured int64) (int64, error)
}

// ScanServer streams scans of one store over HTTP as NDJSON
type ScanServer struct {
	backend      Backend
	engine       *scan.Engine
	cfg          *config.Config
	listener     net.Listener
	server       *http.Server
	watcher      *config.Watcher
	startTime    time.Time
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	mu           sync.RWMutex
	running      bool
	active       map[types.ScanType]*activeScan
	summaries    []types.ScanSummary
	logger       *zap.Logger

	// BuildIDOverride replaces the reported build id (used for testing)
	BuildIDOverride string
}

type activeScan struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc
}

// NewScanServer creates a server for backend using cfg
func NewScanServer(cfg *config.Config, backend Backend) (*ScanServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	logger := debug.Component("server")

	return &ScanServer{
		backend:      backend,
		engine:       scan.NewEngine(backend, EngineOptions(cfg), nil),
		cfg:          cfg,
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
		active:       make(map[types.ScanType]*activeScan),
		logger:       logger,
	}, nil
}

// Engine returns the engine scans run on
func (s *ScanServer) Engine() *scan.Engine {
	return s.engine
}

// Config returns the configuration currently in effect
func (s *ScanServer) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ApplyConfig swaps in new scan tunables. Store settings are not reloaded;
// scans already running keep the tunables they started with.
func (s *ScanServer) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	next := *cfg
	next.Store = s.cfg.Store
	next.Server.Addr = s.cfg.Server.Addr
	s.cfg = &next
	s.mu.Unlock()

	s.engine.SetOptions(EngineOptions(&next))
	s.logger.Info("scan settings updated",
		zap.Int("batch_size", next.Scan.BatchSize),
		zap.Int("delay_ms", next.Scan.DelayMs))
}

// WatchConfig reloads scan tunables whenever the config file at path changes
func (s *ScanServer) WatchConfig(path string) error {
	w, err := config.Watch(context.Background(), path, config.DefaultWatchDebounce,
		func() (*config.Config, error) { return config.Load(path) },
		s.ApplyConfig)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// Addr returns the address the server is listening on
func (s *ScanServer) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the HTTP handler without starting a listener
func (s *ScanServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHandlers(mux)
	return mux
}

// Start begins listening on the configured address
func (s *ScanServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	addr := s.cfg.Server.Addr
	s.mu.Unlock()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.running = true
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", zap.Error(err))
		}
	}()

	s.logger.Info("scan server started",
		zap.String("addr", listener.Addr().String()),
		zap.String("store", s.cfg.Store.Domain))
	return nil
}

// registerHandlers sets up the HTTP endpoints
func (s *ScanServer) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/scan", s.handleScan)
	mux.HandleFunc("/shutdown", s.handleShutdown)
}

// handlePing responds to health check requests
func (s *ScanServer) handlePing(w http.ResponseWriter, r *http.Request) {
	buildID := s.BuildIDOverride
	if buildID == "" {
		buildID = version.BuildID()
	}
	writeJSON(w, http.StatusOK, PingResponse{
		Uptime:  time.Since(s.startTime).Seconds(),
		Version: version.Version,
		BuildID: buildID,
		Store:   s.Config().Store.Domain,
	})
}

// handleStatus returns recent scan summaries and the scans still running
func (s *ScanServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	scans := make([]types.ScanSummary, len(s.summaries))
	copy(scans, s.summaries)
	active := make([]ActiveScan, 0, len(s.active))
	for _, t := range types.AllScanTypes {
		if as, ok := s.active[t]; ok {
			active = append(active, ActiveScan{
				ID:        as.id,
				Type:      t,
				StartedAt: as.startedAt.UTC().Format(time.RFC3339),
			})
		}
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, StatusResponse{Scans: scans, Active: active})
}

// handleScan runs one scan and streams its frames as NDJSON
func (s *ScanServer) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	params, err := parseScanParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	cfg := s.Config()
	configured := params.ThemeID
	if configured == 0 {
		configured = cfg.Store.ThemeID
	}
	themeID, err := s.backend.ResolveThemeID(r.Context(), configured)
	if err != nil {
		err = scanerrors.NewScanError(scanerrors.ErrorTypeTheme, params.Type, types.StatusInit, err)
		s.logger.Error("theme resolution failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	entry := &activeScan{id: id, startedAt: time.Now(), cancel: cancel}
	s.register(params.Type, entry)
	defer s.deregister(params.Type, entry)

	req := scan.Request{ID: id, Type: params.Type, ThemeID: themeID}
	if params.BatchSize >= 0 || params.DelayMs >= 0 {
		tp := scan.Throughput{BatchSize: params.BatchSize, Delay: -1}
		if params.DelayMs >= 0 {
			tp.Delay = time.Duration(params.DelayMs) * time.Millisecond
		}
		req.Throughput = &tp
	}

	w.Header().Set("Content-Type", NDJSONContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(ScanIDHeader, id)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	stream := s.engine.Stream(ctx, req)
	for frame := range stream.Events {
		if err := enc.Encode(frame); err != nil {
			// Client went away; keep draining so the scan can wind down
			cancel()
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	res := stream.Result()
	s.recordSummary(res.Summary())
}

// handleShutdown asks the process to shut the server down
func (s *ScanServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, ShutdownResponse{Success: true, Message: "Server shutting down"})
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// register records entry as the running scan of t, canceling the one it supersedes
func (s *ScanServer) register(t types.ScanType, entry *activeScan) {
	s.mu.Lock()
	prev := s.active[t]
	s.active[t] = entry
	s.mu.Unlock()

	if prev != nil {
		s.logger.Info("superseding running scan",
			zap.String("scan_type", t.String()),
			zap.String("scan_id", prev.id),
			zap.String("superseded_by", entry.id))
		prev.cancel()
	}
}

func (s *ScanServer) deregister(t types.ScanType, entry *activeScan) {
	s.mu.Lock()
	if s.active[t] == entry {
		delete(s.active, t)
	}
	s.mu.Unlock()
}

// recordSummary keeps the newest summaries first, bounded by server.max_summaries
func (s *ScanServer) recordSummary(summary types.ScanSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := s.cfg.Server.MaxSummaries
	if limit <= 0 {
		limit = config.DefaultMaxSummaries
	}
	s.summaries = append([]types.ScanSummary{summary}, s.summaries...)
	if len(s.summaries) > limit {
		s.summaries = s.summaries[:limit]
	}
}

// Summaries returns the recorded summaries, newest first
func (s *ScanServer) Summaries() []types.ScanSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ScanSummary, len(s.summaries))
	copy(out, s.summaries)
	return out
}

// Wait blocks until a shutdown was requested through /shutdown
func (s *ScanServer) Wait() {
	<-s.shutdownChan
}

// Done is closed when a shutdown was requested through /shutdown
func (s *ScanServer) Done() <-chan struct{} {
	return s.shutdownChan
}

// Shutdown cancels running scans and gracefully shuts down the server
func (s *ScanServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	for _, as := range s.active {
		as.cancel()
	}
	running := s.running
	s.running = false
	srv := s.server
	s.mu.Unlock()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			s.logger.Warn("failed to stop config watcher", zap.Error(err))
		}
	}

	if !running {
		return nil
	}

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Info("scan server shut down cleanly")
	return nil
}

// parseScanParams reads type, theme_id, batch_size and delay_ms from the query
func parseScanParams(r *http.Request) (ScanParams, error) {
	q := r.URL.Query()
	params := ScanParams{BatchSize: -1, DelayMs: -1}

	t, err := types.ParseScanType(q.Get("type"))
	if err != nil {
		return params, err
	}
	params.Type = t

	if v := q.Get("theme_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			return params, fmt.Errorf("invalid theme_id %q", v)
		}
		params.ThemeID = id
	}
	if v := q.Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return params, fmt.Errorf("invalid batch_size %q", v)
		}
		params.BatchSize = n
	}
	if v := q.Get("delay_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return params, fmt.Errorf("invalid delay_ms %q", v)
		}
		params.DelayMs = n
	}
	return params, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.LogServer("failed to write response", zap.Error(err))
	}
}
