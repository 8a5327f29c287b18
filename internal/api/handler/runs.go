package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/albapepper/scoracle-nhl/internal/api/respond"
	"github.com/albapepper/scoracle-nhl/internal/runs"
)

// GetRun returns a projection or accuracy run by id, including its metrics.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_RUN_ID", "id must be a UUID")
		return
	}
	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		h.logger.Error("Run lookup failed", "run_id", id, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", "Failed to load run")
		return
	}
	if run == nil {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No run with id "+id.String())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, run)
}

// GetLatestRun returns the latest succeeded run of a kind for an as-of date.
// Query: kind (projection|accuracy, default projection), date (default today).
func (h *Handler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	kind := runs.Kind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		kind = runs.KindProjection
	case runs.KindProjection, runs.KindAccuracy:
	default:
		respond.WriteError(w, http.StatusBadRequest, "INVALID_KIND", "kind must be projection or accuracy")
		return
	}
	date, err := queryDate(r, "date", h.jobs.Location(), h.jobs.Today())
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return
	}

	run, err := h.runs.LatestSucceededRun(r.Context(), kind, date)
	if err != nil {
		h.logger.Error("Latest run lookup failed", "kind", kind, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", "Failed to load run")
		return
	}
	if run == nil {
		respond.WriteErrorDetail(w, http.StatusNotFound, "NOT_FOUND",
			"No succeeded run", string(kind)+" as of "+date.Format(time.DateOnly))
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, run)
}
