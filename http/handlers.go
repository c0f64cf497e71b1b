package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sepsiswatch/db"
	"sepsiswatch/inference"
	"sepsiswatch/monitoring"
)

// LivenessMessage is the body of GET /.
const LivenessMessage = "Sepsis Detector API is online and running!"

// RunLister is the read side of the training-run store.
type RunLister interface {
	ListTrainingRuns(ctx context.Context, limit int) ([]db.TrainingRun, error)
}

// Handler serves the API from an injected service provider.
type Handler struct {
	provider *inference.Provider
	runs     RunLister
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// HandlerDeps are the collaborators a Handler needs.
type HandlerDeps struct {
	Provider *inference.Provider
	// Runs is optional; without it /api/runs answers 503.
	Runs    RunLister
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// NewHandler fills missing metrics and logger with working defaults.
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		provider: deps.Provider,
		runs:     deps.Runs,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	if h.metrics == nil {
		h.metrics = monitoring.NewMetrics()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type featureMean struct {
	Name string  `json:"name"`
	Mean float64 `json:"mean"`
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, LivenessMessage)
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	prediction, err := h.predict(r.Context(), "http", r.Body)
	if err != nil {
		status, kind := classify(err)
		if inference.KindOf(err) != inference.KindValidation {
			h.logger.Error("prediction failed",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err),
			)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, kind, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, prediction)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	svc := h.provider.Service()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"features": svc.Means().Len(),
		"model":    svc.ModelName(),
	})
}

func (h *Handler) handleFeatures(w http.ResponseWriter, r *http.Request) {
	means := h.provider.Service().Means()
	names, values := means.Names(), means.Values()
	features := make([]featureMean, len(names))
	for i, name := range names {
		features[i] = featureMean{Name: name, Mean: values[i]}
	}
	respondJSON(w, http.StatusOK, features)
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "training run store not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			writeError(w, http.StatusBadRequest, inference.KindValidation.String(), "limit must be a positive integer")
			return
		}
		limit = l
	}
	runs, err := h.runs.ListTrainingRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("list training runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not list training runs")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// liveMessage answers one websocket frame with the same envelope as POST
// /predict.
func (h *Handler) liveMessage(ctx context.Context, payload []byte) []byte {
	var body any
	prediction, err := h.predict(ctx, "ws", bytes.NewReader(payload))
	if err != nil {
		_, kind := classify(err)
		body = errorResponse{Error: err.Error(), Kind: kind}
	} else {
		body = prediction
	}
	data, err := json.Marshal(body)
	if err != nil {
		return []byte(`{"error":"encode response","kind":"internal"}`)
	}
	return data
}

func (h *Handler) predict(ctx context.Context, transport string, body io.Reader) (inference.Prediction, error) {
	start := time.Now()
	var prediction inference.Prediction
	partial, err := decodePartialInput(body)
	if err == nil {
		prediction, err = h.provider.Service().Predict(ctx, partial)
	}
	h.metrics.ObservePrediction(transport, outcome(err), prediction.Probability, time.Since(start))
	return prediction, err
}

// decodePartialInput reads exactly one JSON object. Numbers stay json.Number
// so the service sees them without float rounding surprises.
func decodePartialInput(body io.Reader) (inference.PartialInput, error) {
	const op = "decode"
	if body == nil {
		return nil, &inference.Error{Kind: inference.KindValidation, Op: op, Err: errors.New("request body is empty")}
	}
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var partial inference.PartialInput
	if err := dec.Decode(&partial); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		return nil, &inference.Error{Kind: inference.KindValidation, Op: op, Err: err}
	}
	if partial == nil {
		return nil, &inference.Error{Kind: inference.KindValidation, Op: op, Err: errors.New("request body must be a JSON object")}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &inference.Error{Kind: inference.KindValidation, Op: op, Err: errors.New("unexpected data after JSON object")}
	}
	return partial, nil
}

// classify maps a /predict failure to its status and kind. Every failure is
// answered with 400; the kind tells validation and inference apart.
func classify(err error) (int, string) {
	switch kind := inference.KindOf(err); kind {
	case inference.KindValidation, inference.KindInference, inference.KindArtifact:
		return http.StatusBadRequest, kind.String()
	default:
		return http.StatusBadRequest, "internal"
	}
}

func outcome(err error) string {
	switch inference.KindOf(err) {
	case 0:
		if err == nil {
			return monitoring.OutcomeOK
		}
		return monitoring.OutcomeInference
	case inference.KindValidation:
		return monitoring.OutcomeValidation
	default:
		return monitoring.OutcomeInference
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, errorResponse{Error: message, Kind: kind})
}
