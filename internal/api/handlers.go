package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/saludstack/anemia-triage/internal/models"
	"github.com/saludstack/anemia-triage/internal/utils"
)

// Service is the slice of the triage service the HTTP layer depends on.
type Service interface {
	Diagnose(ctx context.Context, obs models.Observation) (models.DiagnosisResult, error)
	History(ctx context.Context, limit int) ([]models.HistoryRecord, error)
}

type handler struct {
	svc    Service
	logger *slog.Logger
}

// NewRouter wires the triage endpoints onto a mux router.
func NewRouter(svc Service, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/", h.status).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.status).Methods(http.MethodGet)
	r.HandleFunc("/predict", h.predict).Methods(http.MethodPost)
	r.HandleFunc("/history", h.history).Methods(http.MethodGet)
	return r
}

type predictResponse struct {
	DxPredicho     models.Class       `json:"dx_predicho"`
	Semaforo       string             `json:"semaforo"`
	Probabilidades map[string]float64 `json:"probabilidades"`
	Recomendacion  string             `json:"recomendacion"`
	Saved          bool               `json:"saved"`
	Warning        string             `json:"warning,omitempty"`
}

type errorDetail struct {
	Kind   string `json:"kind"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) predict(w http.ResponseWriter, r *http.Request) {
	obs, err := decodePredictPayload(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.svc.Diagnose(r.Context(), obs)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toPredictResponse(result, ""))
	case utils.KindOf(err) == utils.KindValidation:
		h.writeError(w, http.StatusBadRequest, err)
	case utils.KindOf(err) == utils.KindPersistence && result.Class != "":
		// Diagnosed but not recorded: surface the verdict anyway.
		writeJSON(w, http.StatusOK, toPredictResponse(result, utils.DetailOf(err)))
	default:
		h.logger.Error("predict failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, utils.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	records, err := h.svc.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("history listing failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func toPredictResponse(result models.DiagnosisResult, warning string) predictResponse {
	probs := make(map[string]float64, len(result.Probabilities))
	for class, p := range result.Probabilities {
		probs[string(class)] = p
	}
	return predictResponse{
		DxPredicho:     result.Class,
		Semaforo:       result.Semaphore,
		Probabilidades: probs,
		Recomendacion:  result.Recommendation,
		Saved:          result.Saved,
		Warning:        warning,
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: errorDetail{
		Kind:   string(utils.KindOf(err)),
		Field:  utils.FieldOf(err),
		Detail: utils.DetailOf(err),
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
