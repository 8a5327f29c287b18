package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/albapepper/scoracle-nhl/internal/api/respond"
	"github.com/albapepper/scoracle-nhl/internal/cache"
	"github.com/albapepper/scoracle-nhl/internal/pipeline"
)

// jobAccepted is the 202 body returned by every job endpoint.
type jobAccepted struct {
	Job    string            `json:"job"`
	Status string            `json:"status"`
	Params map[string]string `json:"params"`
}

// StartStrengthPlayers rebuilds player strength rows for games in [start, end].
// Query: start, end (YYYY-MM-DD, default yesterday), overwrite (bool).
func (h *Handler) StartStrengthPlayers(w http.ResponseWriter, r *http.Request) {
	h.startStrength(w, r, "players")
}

// StartStrengthTeams rebuilds team strength rows for games in [start, end].
func (h *Handler) StartStrengthTeams(w http.ResponseWriter, r *http.Request) {
	h.startStrength(w, r, "teams")
}

func (h *Handler) startStrength(w http.ResponseWriter, r *http.Request, target string) {
	yesterday := h.jobs.Today().AddDate(0, 0, -1)
	start, end, ok := h.dateRange(w, r, "start", "end", yesterday, yesterday)
	if !ok {
		return
	}
	overwrite, err := queryBool(r, "overwrite")
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	params := map[string]string{
		"start":     start.Format(time.DateOnly),
		"end":       end.Format(time.DateOnly),
		"overwrite": strconv.FormatBool(overwrite),
	}
	h.launch(w, pipeline.JobStrength+":"+target, params, func(ctx context.Context) {
		var summary string
		if target == "players" {
			res := h.jobs.BuildPlayers(ctx, start, end, overwrite)
			summary = res.Summary()
		} else {
			res := h.jobs.BuildTeams(ctx, start, end, overwrite)
			summary = res.Summary()
		}
		h.logger.Info("Strength job finished", "target", target, "summary", summary)
	})
}

// StartProjection runs projections as of a date.
// Query: date (YYYY-MM-DD, default today), horizon (games, default configured).
func (h *Handler) StartProjection(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date", h.jobs.Location(), h.jobs.Today())
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return
	}
	horizon, err := queryInt(r, "horizon")
	if err != nil || horizon < 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", "horizon must be a non-negative integer")
		return
	}

	params := map[string]string{"date": date.Format(time.DateOnly)}
	if horizon > 0 {
		params["horizon"] = strconv.Itoa(horizon)
	}
	h.launch(w, pipeline.JobProjection, params, func(ctx context.Context) {
		run, err := h.jobs.Project(ctx, date, horizon)
		if err != nil {
			h.logger.Error("Projection job failed", "run_id", run.ID, "error", err)
			return
		}
		h.logger.Info("Projection job finished", "run_id", run.ID, "status", run.Status)
	})
}

// StartBacktest scores every date in [start, end] and drops cached accuracy reads.
// Query: start, end (default yesterday), lookback (days, default configured).
func (h *Handler) StartBacktest(w http.ResponseWriter, r *http.Request) {
	yesterday := h.jobs.Today().AddDate(0, 0, -1)
	start, end, ok := h.dateRange(w, r, "start", "end", yesterday, yesterday)
	if !ok {
		return
	}
	lookback, err := queryInt(r, "lookback")
	if err != nil || lookback < 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", "lookback must be a non-negative integer")
		return
	}

	params := map[string]string{
		"start": start.Format(time.DateOnly),
		"end":   end.Format(time.DateOnly),
	}
	if lookback > 0 {
		params["lookback"] = strconv.Itoa(lookback)
	}
	h.launch(w, pipeline.JobBacktest, params, func(ctx context.Context) {
		res := h.jobs.Backtest(ctx, start, end, lookback)
		dropped := h.cache.InvalidatePrefix(cache.AccuracyPrefix)
		h.logger.Info("Backtest job finished", "summary", res.Summary(), "cache_dropped", dropped)
	})
}

// launch acquires the job slot, replies 202 and runs fn in the background.
func (h *Handler) launch(w http.ResponseWriter, job string, params map[string]string, fn func(ctx context.Context)) {
	release, ok := h.jobs.Acquire(job)
	if !ok {
		respond.WriteError(w, http.StatusConflict, "JOB_RUNNING", fmt.Sprintf("%s job is already running", job))
		return
	}

	h.logger.Info("Job accepted", "job", job, "params", params)
	h.spawn(func() {
		defer release()
		fn(h.base)
	})
	respond.WriteJSONObject(w, http.StatusAccepted, jobAccepted{Job: job, Status: "accepted", Params: params})
}

// dateRange parses an inclusive [from, to] pair and writes a 400 on failure.
func (h *Handler) dateRange(w http.ResponseWriter, r *http.Request, fromKey, toKey string, defFrom, defTo time.Time) (time.Time, time.Time, bool) {
	loc := h.jobs.Location()
	from, err := queryDate(r, fromKey, loc, defFrom)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return time.Time{}, time.Time{}, false
	}
	to, err := queryDate(r, toKey, loc, defTo)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_RANGE",
			fmt.Sprintf("%s must not be before %s", toKey, fromKey))
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func queryDate(r *http.Request, key string, loc *time.Location, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return parseDate(key, v, loc)
}

func parseDate(key, v string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD, got %q", key, v)
	}
	return t, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func queryBool(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}
