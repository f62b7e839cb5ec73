package checkpoint_api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/models"
	"github.com/AndeanRace/ChronoGate/internal/services/checkpoints"
	"github.com/go-chi/chi/v5"
)

type CheckpointAPI struct {
	svc *checkpoints.Service
}

func New(svc *checkpoints.Service) *CheckpointAPI {
	return &CheckpointAPI{svc: svc}
}

func (a *CheckpointAPI) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/checkpoint", a.ingest)
	r.Post("/checkpoint/validate", a.validate)
	r.Get("/checkpoint/race/{raceId}", a.raceBackups)
	r.Get("/checkpoint/status/{raceId}", a.raceStatus)
	r.Get("/checkpoint/stats/{raceId}", a.raceStats)
	r.Get("/checkpoint/report/{raceId}", a.raceReport)
	r.Post("/checkpoint/purge/{raceId}", a.purge)

	r.Post("/races", a.createRace)
	r.Post("/races/{raceId}/runners", a.registerRunners)
	r.Post("/races/{raceId}/reset", a.resetRace)

	return r
}

type checkpointRequest struct {
	RunnerID         string    `json:"runnerId"`
	RaceID           string    `json:"raceId"`
	Time             time.Time `json:"time"`
	CheckpointNumber *int32    `json:"checkpointNumber,omitempty"`
}

func (req checkpointRequest) toEvent() models.CheckpointEvent {
	return models.CheckpointEvent{
		RunnerID:         req.RunnerID,
		RaceID:           req.RaceID,
		Time:             req.Time,
		CheckpointNumber: req.CheckpointNumber,
	}
}

type ingestResponse struct {
	Message       string    `json:"message"`
	BackedUp      bool      `json:"backedUp"`
	RecordUpdated bool      `json:"recordUpdated"`
	RaceCompleted bool      `json:"raceCompleted"`
	Time          time.Time `json:"time"`
	RunnerID      string    `json:"runnerId"`
	RaceID        string    `json:"raceId"`
	ProcessedAt   time.Time `json:"processedAt"`
	Warning       string    `json:"warning,omitempty"`
}

func (a *CheckpointAPI) ingest(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeClientError(w, http.StatusBadRequest, "Cuerpo JSON inválido")
		return
	}

	out, err := a.svc.Process(r.Context(), req.toEvent())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	msg := "Checkpoint registrado correctamente"
	if !out.RecordUpdated {
		msg = "El corredor ya completó todos los tramos; el tiempo fue ignorado"
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Message:       msg,
		BackedUp:      out.BackedUp,
		RecordUpdated: out.RecordUpdated,
		RaceCompleted: out.RaceCompleted,
		Time:          out.Time,
		RunnerID:      req.RunnerID,
		RaceID:        req.RaceID,
		ProcessedAt:   time.Now().UTC(),
		Warning:       out.Warning,
	})
}

func (a *CheckpointAPI) validate(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeClientError(w, http.StatusBadRequest, "Cuerpo JSON inválido")
		return
	}
	rep, err := a.svc.GenerateReport(r.Context(), req.toEvent())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *CheckpointAPI) raceBackups(w http.ResponseWriter, r *http.Request) {
	raceID := chi.URLParam(r, "raceId")
	items, err := a.svc.ListBackups(r.Context(), raceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raceId": raceID,
		"count":  len(items),
		"items":  items,
	})
}

func (a *CheckpointAPI) raceStatus(w http.ResponseWriter, r *http.Request) {
	v, err := a.svc.RaceStatus(r.Context(), chi.URLParam(r, "raceId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *CheckpointAPI) raceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.BackupStats(r.Context(), chi.URLParam(r, "raceId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *CheckpointAPI) raceReport(w http.ResponseWriter, r *http.Request) {
	v, err := a.svc.RaceReport(r.Context(), chi.URLParam(r, "raceId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *CheckpointAPI) purge(w http.ResponseWriter, r *http.Request) {
	raceID := chi.URLParam(r, "raceId")
	days := 30
	if q := r.URL.Query().Get("days"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeClientError(w, http.StatusBadRequest, "days debe ser un entero mayor a 0")
			return
		}
		days = n
	}
	deleted, err := a.svc.PurgeBackups(r.Context(), raceID, days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raceId":  raceID,
		"days":    days,
		"deleted": deleted,
	})
}

type createRaceRequest struct {
	RaceID           string     `json:"raceId"`
	Name             string     `json:"name"`
	StartAt          *time.Time `json:"startAt,omitempty"`
	ParticipantLimit int32      `json:"participantLimit,omitempty"`
	SectionCount     int32      `json:"sectionCount"`
}

func (a *CheckpointAPI) createRace(w http.ResponseWriter, r *http.Request) {
	var req createRaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeClientError(w, http.StatusBadRequest, "Cuerpo JSON inválido")
		return
	}
	race, err := a.svc.CreateRace(r.Context(), models.RaceCreateInput{
		RaceKey:          req.RaceID,
		Name:             req.Name,
		StartAt:          req.StartAt,
		ParticipantLimit: req.ParticipantLimit,
		SectionCount:     req.SectionCount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raceId":       race.RaceKey,
		"sectionCount": race.SectionCount,
		"terminated":   race.Terminated,
	})
}

type registerRunnersRequest struct {
	Runners []struct {
		Document string `json:"document"`
		Name     string `json:"name"`
		Phone    string `json:"phone,omitempty"`
		Email    string `json:"email,omitempty"`
	} `json:"runners"`
}

func (a *CheckpointAPI) registerRunners(w http.ResponseWriter, r *http.Request) {
	var req registerRunnersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeClientError(w, http.StatusBadRequest, "Cuerpo JSON inválido")
		return
	}
	in := make([]models.RunnerCreateInput, 0, len(req.Runners))
	for _, rr := range req.Runners {
		in = append(in, models.RunnerCreateInput{
			Document: rr.Document,
			Name:     rr.Name,
			Phone:    rr.Phone,
			Email:    rr.Email,
		})
	}
	created, err := a.svc.RegisterRunners(r.Context(), chi.URLParam(r, "raceId"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raceId":     chi.URLParam(r, "raceId"),
		"registered": created,
	})
}

func (a *CheckpointAPI) resetRace(w http.ResponseWriter, r *http.Request) {
	raceID := chi.URLParam(r, "raceId")
	if err := a.svc.ResetRace(r.Context(), raceID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raceId":  raceID,
		"message": "Registros de la carrera reiniciados",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeClientError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error":     msg,
		"timestamp": time.Now().UTC(),
	})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses:
// validation 400, not-found 404, persistence 500, anything else 400 (bad
// input caught by the service's own argument checks).
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *checkpoints.ValidationError
	if errors.As(err, &verr) {
		writeClientError(w, http.StatusBadRequest, verr.Message)
		return
	}
	var nferr *checkpoints.NotFoundError
	if errors.As(err, &nferr) {
		writeClientError(w, http.StatusNotFound, nferr.Message)
		return
	}
	var perr *checkpoints.PersistenceError
	if errors.As(err, &perr) {
		slog.Error("persistence failure", "op", perr.Op, "err", perr.Err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "Error interno al guardar el registro",
			"detail":    perr.Op,
			"timestamp": time.Now().UTC(),
		})
		return
	}
	writeClientError(w, http.StatusBadRequest, err.Error())
}
