package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/fateweaver/internal/events"
	"github.com/jwebster45206/fateweaver/internal/logger"
	"github.com/jwebster45206/fateweaver/internal/metrics"
	"github.com/jwebster45206/fateweaver/pkg/engine"
	"github.com/jwebster45206/fateweaver/pkg/storage"
	"github.com/jwebster45206/fateweaver/pkg/workflow"
)

const playthroughsPath = "/v1/playthroughs"

// Actions accepted under /v1/playthroughs/{id}/
const (
	ActionChoose   = "choices"
	ActionContinue = "continue"
	ActionRetry    = "retry"
	ActionRestart  = "restart"
)

// EventDone closes every action stream with the saved state
const EventDone = "done"

// WatchPath is the GET endpoint under /v1/playthroughs/{id}/ that relays live action events
const WatchPath = "events"

var errInterrupted = errors.New("exchange interrupted before the stream finished")

type ErrorResponse struct {
	Error string `json:"error"`
}

// PlaythroughResponse is returned by create and read, and sent as the done event
type PlaythroughResponse struct {
	ID       uuid.UUID        `json:"id"`
	State    engine.State     `json:"state"`
	Commands []engine.Command `json:"commands,omitempty"`
}

// ChooseRequest is the body of POST /v1/playthroughs/{id}/choices
type ChooseRequest struct {
	Index *int `json:"index"`
}

// PlaythroughOptions tune the engines the handler builds
type PlaythroughOptions struct {
	EngineOptions []engine.Option
	// LockTTL bounds how long one action may hold a playthrough.
	LockTTL time.Duration
	// Events receives every action event for watchers. Defaults to an in-process hub.
	Events events.Hub
}

type PlaythroughHandler struct {
	table    engine.Table
	streamer workflow.Streamer
	storage  storage.Storage
	metrics  *metrics.Metrics
	logger   *slog.Logger
	opts     PlaythroughOptions
}

func NewPlaythroughHandler(table engine.Table, streamer workflow.Streamer, store storage.Storage, m *metrics.Metrics, opts PlaythroughOptions, logger *slog.Logger) *PlaythroughHandler {
	if opts.LockTTL <= 0 {
		opts.LockTTL = workflow.DefaultTimeout + 30*time.Second
	}
	if m == nil {
		m = metrics.New()
	}
	if opts.Events == nil {
		opts.Events = events.NewMemoryHub()
	}
	return &PlaythroughHandler{
		table:    table,
		streamer: m.Instrument(streamer),
		storage:  store,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

// ServeHTTP routes:
// POST   /v1/playthroughs              - Start a playthrough
// GET    /v1/playthroughs/{id}         - Read state and redraw commands
// DELETE /v1/playthroughs/{id}         - Abandon a playthrough
// GET    /v1/playthroughs/{id}/events  - Watch the actions of a playthrough (event stream)
// POST   /v1/playthroughs/{id}/{action} - choices, continue, retry, restart (event stream)
func (h *PlaythroughHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, playthroughsPath), "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		parts = nil
	}

	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
			return
		}
		h.handleCreate(w, r)
		return
	}

	id, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid playthrough ID", "id", parts[0], "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid playthrough ID format")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleRead(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, id)
	case len(parts) == 2 && parts[1] == WatchPath && r.Method == http.MethodGet:
		h.handleWatch(w, r, id)
	case len(parts) == 2 && r.Method == http.MethodPost:
		h.handleAction(w, r, id, parts[1])
	case len(parts) > 2:
		h.writeError(w, http.StatusNotFound, "Not found")
	default:
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *PlaythroughHandler) newEngine(sink engine.Sink, state *engine.State) *engine.Engine {
	opts := append([]engine.Option{}, h.opts.EngineOptions...)
	opts = append(opts, engine.WithLogger(h.logger))
	if state != nil {
		opts = append(opts, engine.WithState(*state))
	}
	return engine.New(h.table, sink, opts...)
}

func (h *PlaythroughHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	rec := engine.NewRecorder()
	e := h.newEngine(rec, nil)
	if err := e.Start(); err != nil {
		h.logger.Error("Failed to render opening scene", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Story content is missing its start scene")
		return
	}

	p := storage.NewPlaythrough(e.Snapshot())
	if err := h.storage.SavePlaythrough(r.Context(), p); err != nil {
		h.logger.Error("Failed to save playthrough", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to save playthrough")
		return
	}

	logger.WithPlaythrough(h.logger, p.ID.String()).Info("Playthrough created")
	h.writeJSON(w, http.StatusCreated, PlaythroughResponse{ID: p.ID, State: p.State, Commands: rec.Commands})
}

func (h *PlaythroughHandler) handleRead(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	p, ok := h.load(r.Context(), w, id)
	if !ok {
		return
	}

	rec := engine.NewRecorder()
	if err := h.newEngine(rec, &p.State).Redraw(); err != nil {
		h.logger.Warn("Failed to redraw playthrough", "uuid", id, "error", err)
	}
	h.writeJSON(w, http.StatusOK, PlaythroughResponse{ID: p.ID, State: p.State, Commands: rec.Commands})
}

func (h *PlaythroughHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.storage.DeletePlaythrough(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete playthrough", "uuid", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to delete playthrough")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PlaythroughHandler) handleAction(w http.ResponseWriter, r *http.Request, id uuid.UUID, action string) {
	log := logger.WithPlaythrough(h.logger, id.String()).With("action", action)

	var index int
	switch action {
	case ActionChoose:
		var req ChooseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
			h.writeError(w, http.StatusBadRequest, `Request body must be {"index": n}`)
			h.metrics.Action(action, strconv.Itoa(http.StatusBadRequest))
			return
		}
		index = *req.Index
	case ActionContinue, ActionRetry, ActionRestart:
	default:
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown action %q", action))
		return
	}

	token, err := h.storage.AcquireLock(r.Context(), id, h.opts.LockTTL)
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			log.Info("Playthrough busy")
			h.writeError(w, http.StatusConflict, "Playthrough is busy with another action")
			h.metrics.Action(action, strconv.Itoa(http.StatusConflict))
			return
		}
		log.Error("Failed to lock playthrough", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to lock playthrough")
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer cancel()
		if err := h.storage.ReleaseLock(ctx, id, token); err != nil {
			log.Warn("Failed to release playthrough lock", "error", err)
		}
	}()

	p, ok := h.load(r.Context(), w, id)
	if !ok {
		h.metrics.Action(action, strconv.Itoa(http.StatusNotFound))
		return
	}

	// Commands are buffered until the action is known to be valid
	rec := engine.NewRecorder()
	e := h.newEngine(rec, &p.State)
	if s := e.Snapshot(); s.Phase == engine.PhaseAwaitingAI && !s.StreamDone {
		// No one holds the lock, so the stream that owned this exchange is gone
		e.FinishExchange(errInterrupted)
	}
	startPhase := e.Phase()

	var req *workflow.RunRequest
	switch action {
	case ActionChoose:
		req, err = e.Choose(index)
	case ActionContinue:
		err = e.Continue()
	case ActionRetry:
		req, err = e.Retry()
	case ActionRestart:
		err = e.Restart()
	}
	if err != nil && !errors.Is(err, engine.ErrNoPayload) {
		status := statusForEngineError(err)
		log.Info("Action rejected", "error", err, "status", status, "phase", startPhase)
		h.writeError(w, status, err.Error())
		h.metrics.Action(action, strconv.Itoa(status))
		return
	}

	// Persist the recorded choice before the exchange in case the stream never finishes
	ctx := context.WithoutCancel(r.Context())
	p.State = e.Snapshot()
	if err := h.storage.SavePlaythrough(ctx, p); err != nil {
		log.Error("Failed to save playthrough", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to save playthrough")
		h.metrics.Action(action, strconv.Itoa(http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	h.metrics.Action(action, strconv.Itoa(http.StatusOK))

	sink := engine.SinkFunc(func(c engine.Command) {
		h.emit(ctx, w, id, string(c.Type), c)
	})
	for _, c := range rec.Commands {
		sink(c)
	}
	e.SetSink(sink)

	if req != nil {
		if err := e.Play(r.Context(), h.streamer, req); err != nil {
			log.Warn("Exchange failed", "error", err)
		}
		p.State = e.Snapshot()
		if err := h.storage.SavePlaythrough(ctx, p); err != nil {
			log.Error("Failed to save playthrough after exchange", "error", err)
		}
	}

	if startPhase != engine.PhaseEnding && e.Phase() == engine.PhaseEnding {
		h.metrics.EndingReached(p.State.EndingID)
	}
	h.emit(ctx, w, id, EventDone, PlaythroughResponse{ID: p.ID, State: p.State})
}

// emit sends an action event to the caller and to any watchers.
func (h *PlaythroughHandler) emit(ctx context.Context, w http.ResponseWriter, id uuid.UUID, event string, data any) {
	h.sendSSE(w, event, data)
	if err := h.opts.Events.Publish(ctx, id, event, data); err != nil {
		h.logger.Warn("Failed to publish event", "uuid", id, "event", event, "error", err)
	}
}

// handleWatch relays the events of every later action until the client goes away.
func (h *PlaythroughHandler) handleWatch(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if _, ok := h.load(r.Context(), w, id); !ok {
		return
	}

	msgs, err := h.opts.Events.Subscribe(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to subscribe to playthrough events", "uuid", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to watch playthrough")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	log := logger.WithPlaythrough(h.logger, id.String())
	log.Debug("Watcher connected")
	for msg := range msgs {
		h.sendSSE(w, msg.Event, msg.Data)
	}
	log.Debug("Watcher disconnected")
}

// load writes the error response itself when it returns false.
func (h *PlaythroughHandler) load(ctx context.Context, w http.ResponseWriter, id uuid.UUID) (*storage.Playthrough, bool) {
	p, err := h.storage.LoadPlaythrough(ctx, id)
	if err != nil {
		h.logger.Error("Failed to load playthrough", "uuid", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load playthrough")
		return nil, false
	}
	if p == nil {
		h.writeError(w, http.StatusNotFound, "Playthrough not found")
		return nil, false
	}
	return p, true
}

func statusForEngineError(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidChoice):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrChoiceUnavailable),
		errors.Is(err, engine.ErrNotAwaiting),
		errors.Is(err, engine.ErrNoRetry):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// sendSSE writes one event and flushes it
func (h *PlaythroughHandler) sendSSE(w http.ResponseWriter, eventType string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, dataJSON); err != nil {
		h.logger.Debug("Failed to write event", "event", eventType, "error", err)
		return
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (h *PlaythroughHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *PlaythroughHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}
