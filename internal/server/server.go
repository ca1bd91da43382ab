package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/forPelevin/aishorts/internal/pipeline"
	"github.com/forPelevin/aishorts/internal/types"
)

const defaultMaxUploadBytes = 500 * 1024 * 1024

// Runner executes the long-running flows.
type Runner interface {
	Shorts(ctx context.Context, req pipeline.ShortsRequest) (pipeline.RunResult, error)
	Subtitles(ctx context.Context, req pipeline.SubtitlesRequest) (pipeline.RunResult, error)
}

type Options struct {
	UploadsDir     string
	MaxUploadBytes int64
	// InputRoots bound the local paths a request may reference. The
	// uploads directory is always allowed.
	InputRoots []string
	RunTimeout time.Duration
}

type App struct {
	logger *slog.Logger
	router *chi.Mux
	runner Runner
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	runs map[string]*Run
	subs map[string]map[*subscriber]struct{}

	upgrader websocket.Upgrader
}

type subscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *subscriber) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(v)
}

func (s *subscriber) write(v any) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}

// finish sends a normal close frame and drops the connection.
func (s *subscriber) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = s.conn.Close()
}

func NewApp(logger *slog.Logger, runner Runner, opts Options) *App {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.UploadsDir == "" {
		opts.UploadsDir = "uploads"
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 2 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		logger: logger,
		router: chi.NewRouter(),
		runner: runner,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*Run),
		subs:   make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	a.registerRoutes()
	return a
}

func (a *App) Router() http.Handler {
	return a.router
}

// Close cancels in-flight runs and waits for them to record their outcome.
func (a *App) Close() {
	a.cancel()
	a.wg.Wait()
}

func (a *App) registerRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Recoverer)
	a.router.Use(a.corsMiddleware)

	a.router.Get("/healthz", a.health)
	a.router.Route("/api", func(r chi.Router) {
		r.Post("/uploads", a.upload)
		r.Post("/shorts", a.startShorts)
		r.Post("/subtitles", a.startSubtitles)
		r.Get("/runs", a.listRuns)
		r.Get("/runs/{id}", a.getRunHandler)
		r.Get("/runs/{id}/output", a.download)
		r.Get("/runs/{id}/ws", a.runWS)
	})
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

func (a *App) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxUploadBytes+1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.logger.Warn("invalid multipart upload", "error", err)
		a.respondError(w, http.StatusBadRequest, "invalid upload or file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(a.opts.UploadsDir, 0o755); err != nil {
		a.logger.Error("failed to ensure uploads dir", "error", err)
		a.respondError(w, http.StatusInternalServerError, "could not prepare upload")
		return
	}
	path := filepath.Join(a.opts.UploadsDir, uuid.NewString()[:8]+"_"+sanitizeFileName(header.Filename))
	out, err := os.Create(path)
	if err != nil {
		a.logger.Error("failed to create upload file", "error", err)
		a.respondError(w, http.StatusInternalServerError, "could not save upload")
		return
	}
	defer out.Close()
	if _, err := out.ReadFrom(file); err != nil {
		a.logger.Error("failed to persist upload", "error", err)
		_ = os.Remove(path)
		a.respondError(w, http.StatusInternalServerError, "could not save upload")
		return
	}
	a.logger.Info("upload saved", "path", path, "bytes", header.Size)
	a.respondJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func (a *App) startShorts(w http.ResponseWriter, r *http.Request) {
	var req shortsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Video == "" || req.Audio == "" {
		a.respondError(w, http.StatusBadRequest, "video and audio are required")
		return
	}
	if err := a.checkPaths(append([]string{req.Video, req.Audio}, req.Images...)...); err != nil {
		a.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := a.newRun("shorts")
	a.start(run.ID, func(ctx context.Context, onJob func(types.Job)) (pipeline.RunResult, error) {
		return a.runner.Shorts(ctx, pipeline.ShortsRequest{
			Video:  req.Video,
			Audio:  req.Audio,
			Images: req.Images,
			Loop:   req.Loop,
			OnJob:  onJob,
		})
	})
	a.respondJSON(w, http.StatusAccepted, run)
}

func (a *App) startSubtitles(w http.ResponseWriter, r *http.Request) {
	var req subtitlesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Audio == "" {
		a.respondError(w, http.StatusBadRequest, "audio is required")
		return
	}
	paths := []string{req.Audio}
	if req.Burn != "" {
		paths = append(paths, req.Burn)
	}
	if err := a.checkPaths(paths...); err != nil {
		a.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := a.newRun("subtitles")
	a.start(run.ID, func(ctx context.Context, onJob func(types.Job)) (pipeline.RunResult, error) {
		return a.runner.Subtitles(ctx, pipeline.SubtitlesRequest{
			Audio: req.Audio,
			Burn:  req.Burn,
			Top:   req.Top,
			OnJob: onJob,
		})
	})
	a.respondJSON(w, http.StatusAccepted, run)
}

func (a *App) newRun(kind string) Run {
	now := time.Now()
	run := &Run{ID: uuid.NewString(), Kind: kind, Status: RunQueued, CreatedAt: now, UpdatedAt: now}
	a.mu.Lock()
	a.runs[run.ID] = run
	a.mu.Unlock()
	a.logger.Info("run queued", "run_id", run.ID, "kind", kind)
	return *run
}

type flow func(ctx context.Context, onJob func(types.Job)) (pipeline.RunResult, error)

func (a *App) start(id string, fn flow) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.execute(id, fn)
	}()
}

func (a *App) execute(id string, fn flow) {
	ctx, cancel := context.WithTimeout(a.ctx, a.opts.RunTimeout)
	defer cancel()

	a.updateRun(id, func(r *Run) { r.Status = RunRunning })
	a.broadcast(id, Event{RunID: id, Status: RunRunning, Message: "run started"})

	onJob := func(j types.Job) {
		a.updateRun(id, func(r *Run) { r.Job = &j })
		a.broadcast(id, Event{RunID: id, Status: RunRunning, Job: &j, Message: "job " + string(j.Status)})
	}
	res, err := fn(ctx, onJob)

	a.updateRun(id, func(r *Run) {
		r.RunDir = res.RunDir
		r.Output = res.Output
		if res.Manifest.Kind != "" {
			m := res.Manifest
			r.Manifest = &m
		}
		if err != nil {
			r.Status = RunFailed
			r.Error = err.Error()
			return
		}
		r.Status = RunCompleted
	})
	if err != nil {
		a.logger.Error("run failed", "run_id", id, "error", err)
		a.broadcast(id, Event{RunID: id, Status: RunFailed, Error: err.Error(), Message: "run failed"})
		return
	}
	a.logger.Info("run completed", "run_id", id, "output", res.Output)
	a.broadcast(id, Event{RunID: id, Status: RunCompleted, Message: "run completed", DownloadURL: downloadURL(id, res.Output)})
}

func (a *App) listRuns(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, a.recentRuns(50))
}

func (a *App) getRunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := a.getRun(chi.URLParam(r, "id"))
	if !ok {
		a.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	a.respondJSON(w, http.StatusOK, run)
}

func (a *App) download(w http.ResponseWriter, r *http.Request) {
	run, ok := a.getRun(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if run.Status != RunCompleted || run.Output == "" {
		a.respondError(w, http.StatusConflict, "output is not ready")
		return
	}
	if _, err := os.Stat(run.Output); err != nil {
		a.respondError(w, http.StatusNotFound, "output not found")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(run.Output)+"\"")
	http.ServeFile(w, r, run.Output)
}

func (a *App) runWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.getRun(id); !ok {
		a.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sub := &subscriber{conn: conn}

	// The snapshot is taken after registration and written before any
	// broadcast can reach sub, so no update falls between the two.
	a.mu.Lock()
	run, ok := a.runs[id]
	if !ok {
		a.mu.Unlock()
		_ = conn.Close()
		return
	}
	evt := snapshot(run)
	if a.subs[id] == nil {
		a.subs[id] = make(map[*subscriber]struct{})
	}
	a.subs[id][sub] = struct{}{}
	sub.mu.Lock()
	a.mu.Unlock()
	_ = sub.write(evt)
	sub.mu.Unlock()

	if evt.Status.Terminal() {
		a.unsubscribe(id, sub)
		sub.finish()
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	a.unsubscribe(id, sub)
	_ = conn.Close()
}

func (a *App) unsubscribe(id string, sub *subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subs[id], sub)
	if len(a.subs[id]) == 0 {
		delete(a.subs, id)
	}
}

func snapshot(run *Run) Event {
	return Event{
		RunID:       run.ID,
		Status:      run.Status,
		Job:         run.Job,
		Error:       run.Error,
		DownloadURL: downloadURL(run.ID, run.Output),
	}
}

func downloadURL(id, output string) string {
	if output == "" {
		return ""
	}
	return "/api/runs/" + id + "/output"
}

func (a *App) broadcast(id string, evt Event) {
	a.mu.RLock()
	subs := make([]*subscriber, 0, len(a.subs[id]))
	for s := range a.subs[id] {
		subs = append(subs, s)
	}
	a.mu.RUnlock()

	for _, s := range subs {
		err := s.send(evt)
		if err != nil || evt.Status.Terminal() {
			a.unsubscribe(id, s)
			s.finish()
		}
	}
}

func (a *App) checkPaths(paths ...string) error {
	roots := append([]string{a.opts.UploadsDir}, a.opts.InputRoots...)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid path %q", p)
		}
		if !within(abs, roots) {
			return fmt.Errorf("path %q is outside the allowed input directories", p)
		}
		if _, err := os.Stat(abs); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s: %s", types.ErrNotFound, p)
			}
			return fmt.Errorf("stat %q: %v", p, err)
		}
	}
	return nil
}

func within(path string, roots []string) bool {
	for _, root := range roots {
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (a *App) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode json", "error", err)
	}
}

func (a *App) respondError(w http.ResponseWriter, code int, msg string) {
	a.respondJSON(w, code, map[string]string{"error": msg})
}

func (a *App) getRun(id string) (*Run, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	run, ok := a.runs[id]
	if !ok {
		return nil, false
	}
	clone := *run
	return &clone, true
}

func (a *App) updateRun(id string, fn func(*Run)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if run, ok := a.runs[id]; ok {
		fn(run)
		run.UpdatedAt = time.Now()
	}
}

func (a *App) recentRuns(limit int) []Run {
	a.mu.RLock()
	runs := make([]Run, 0, len(a.runs))
	for _, r := range a.runs {
		runs = append(runs, *r)
	}
	a.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// StartCleanupLoop forgets finished runs older than ttl.
func (a *App) StartCleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.cleanup(ttl)
			}
		}
	}()
}

func (a *App) cleanup(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	removed := 0
	a.mu.Lock()
	for id, run := range a.runs {
		finished := run.Status == RunCompleted || run.Status == RunFailed
		if finished && run.UpdatedAt.Before(cutoff) {
			delete(a.runs, id)
			delete(a.subs, id)
			removed++
		}
	}
	a.mu.Unlock()
	if removed > 0 {
		a.logger.Info("cleanup completed", "removed_runs", removed)
	}
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == ".." {
		return "upload.bin"
	}
	return name
}

func (a *App) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
