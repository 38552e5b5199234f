package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/tourpipe/internal/archival"
)

// Processor runs the ingestion workflow. *Service satisfies it.
type Processor interface {
	Process(ctx context.Context, ev UploadEvent, invocationID string) *ProcessingResult
}

// Archiver runs the archival workflow. *archival.Service satisfies it.
type Archiver interface {
	Archive(ctx context.Context, req archival.Request) (archival.Result, error)
}

// HTTPHandler exposes the function invocation endpoint.
type HTTPHandler struct {
	processor    Processor
	archiver     Archiver
	logger       *zap.Logger
	maxBodyBytes int64
	budget       time.Duration
	router       chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes. budget bounds
// each invocation's wall-clock time.
func NewHTTPHandler(processor Processor, archiver Archiver, logger *zap.Logger, maxBodyBytes int64, budget time.Duration) *HTTPHandler {
	h := &HTTPHandler{
		processor:    processor,
		archiver:     archiver,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
		budget:       budget,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Post("/invoke", h.handleInvoke)

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HTTPHandler) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if int64(len(body)) > h.maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	invocationID := middleware.GetReqID(r.Context())
	if invocationID == "" {
		invocationID = uuid.NewString()
	}

	ctx := r.Context()
	if h.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.budget)
		defer cancel()
	}
	status, payload := Dispatch(ctx, body, invocationID, h.processor, h.archiver, h.logger)
	writeJSON(w, status, payload)
}

// Dispatch parses raw once and routes it to the matching workflow, returning
// the response status and body. It is shared by every invocation surface.
func Dispatch(ctx context.Context, raw []byte, invocationID string, processor Processor, archiver Archiver, logger *zap.Logger) (int, any) {
	trigger, err := ParseTrigger(raw)
	if err != nil {
		logger.Warn("rejected trigger", zap.String("invocation_id", invocationID), zap.Error(err))
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	}

	switch t := trigger.(type) {
	case IngestionTrigger:
		if t.Records > 1 {
			logger.Warn("notification carried several records, processing the first",
				zap.Int("records", t.Records), zap.String("invocation_id", invocationID))
		}
		res := processor.Process(ctx, t.Event, invocationID)
		return res.HTTPStatus(), res

	case IgnoredEvent:
		logger.Debug("notification ignored", zap.String("event", t.EventName),
			zap.String("key", t.Event.Key), zap.String("invocation_id", invocationID))
		return http.StatusOK, &ProcessingResult{
			Status:       StatusSkipped,
			Skipped:      true,
			Message:      fmt.Sprintf("Skipped %s event for %q", t.EventName, t.Event.Key),
			SourceKey:    t.Event.Key,
			Bucket:       t.Event.Bucket,
			InvocationID: invocationID,
		}

	case ArchivalTrigger:
		res, err := archiver.Archive(ctx, t.Request)
		switch {
		case errors.Is(err, archival.ErrInvalidRequest):
			return http.StatusBadRequest, res
		case err != nil:
			logger.Error("archival failed", zap.String("invocation_id", invocationID), zap.Error(err))
			return http.StatusInternalServerError, res
		case ctx.Err() != nil:
			logger.Warn("archival interrupted by invocation budget", zap.String("invocation_id", invocationID))
			return http.StatusInternalServerError, res
		}
		return http.StatusOK, res

	default:
		return http.StatusBadRequest, map[string]string{"error": "unrecognized trigger payload"}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
